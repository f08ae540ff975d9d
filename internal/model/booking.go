package model

import "time"

const (
	PaymentPending = "PENDING"
	PaymentSuccess = "SUCCESS"
)

// Booking is created PENDING at checkout and flips to SUCCESS once, when
// payment is confirmed.
type Booking struct {
	BookingID     string     `json:"bookingId"`
	HoldToken     string     `json:"holdToken"`
	EventID       string     `json:"eventId"`
	VisitorToken  string     `json:"-"`
	SeatIDs       []string   `json:"seatIds"`
	TotalAmount   int64      `json:"totalAmount"`
	PaymentStatus string     `json:"paymentStatus"`
	CreatedAt     time.Time  `json:"createdAt"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
}

// BookingResult is returned by checkout; Duplicate marks a retried checkout.
type BookingResult struct {
	Booking   Booking `json:"booking"`
	Duplicate bool    `json:"duplicate"`
}

// PaymentResult carries enough of the booking to publish the paid event.
type PaymentResult struct {
	BookingID     string    `json:"bookingId"`
	EventID       string    `json:"eventId"`
	VisitorToken  string    `json:"-"`
	SeatIDs       []string  `json:"seatIds"`
	TotalAmount   int64     `json:"totalAmount"`
	PaidAt        time.Time `json:"paidAt"`
	TicketsIssued int       `json:"ticketsIssued"`
	Duplicate     bool      `json:"duplicate"`
}
