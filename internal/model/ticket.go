package model

import "time"

const TicketActive = "ACTIVE"

// Ticket is issued per seat of a paid booking.  QRCode is the hex SHA-256 of
// "bookingID:seatID", so re-issuing yields the same code.
type Ticket struct {
	TicketID  string    `json:"ticketId"`
	BookingID string    `json:"bookingId"`
	EventID   string    `json:"eventId"`
	SeatID    string    `json:"seatId"`
	QRCode    string    `json:"qrCode"`
	Status    string    `json:"status"`
	IssuedAt  time.Time `json:"issuedAt"`
}
