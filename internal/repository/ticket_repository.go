package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/ticket-sale-gate/internal/model"
)

// TicketRepo manages the tickets table.  (booking_id, seat_id) is unique,
// so issuing twice for the same booking is a no-op.
type TicketRepo struct {
	db *sql.DB
}

func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// InsertIgnoreTx bulk inserts tickets, skipping any (booking, seat) pair that
// already exists, and returns the number of new rows.
func (r *TicketRepo) InsertIgnoreTx(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) (int64, error) {
	if len(tickets) == 0 {
		return 0, nil
	}
	query := `INSERT IGNORE INTO tickets (ticket_id, booking_id, event_id, seat_id, qr_code, status, issued_at) VALUES `
	args := make([]any, 0, len(tickets)*7)
	for i, t := range tickets {
		if i > 0 {
			query += ", "
		}
		query += "(?, ?, ?, ?, ?, ?, ?)"
		args = append(args, t.TicketID, t.BookingID, t.EventID, t.SeatID, t.QRCode, t.Status, t.IssuedAt.UTC())
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const ticketColumns = `t.ticket_id, t.booking_id, t.event_id, t.seat_id, t.qr_code, t.status, t.issued_at`

func scanTicket(row interface{ Scan(...any) error }) (model.Ticket, error) {
	var t model.Ticket
	err := row.Scan(&t.TicketID, &t.BookingID, &t.EventID, &t.SeatID, &t.QRCode, &t.Status, &t.IssuedAt)
	return t, err
}

// ByBooking lists the tickets of a booking owned by visitorToken.  It
// returns ErrTicketsNotAvailable when there are none, which also covers a
// foreign or unpaid booking.
func (r *TicketRepo) ByBooking(ctx context.Context, bookingID, visitorToken string) ([]model.Ticket, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets t
		 JOIN bookings b ON b.booking_id = t.booking_id
		 WHERE t.booking_id = ? AND b.visitor_token = ?
		 ORDER BY t.seat_id`,
		bookingID, visitorToken,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrTicketsNotAvailable
	}
	return out, nil
}

// GetForVisitor loads one ticket when its booking belongs to visitorToken.
func (r *TicketRepo) GetForVisitor(ctx context.Context, ticketID, visitorToken string) (model.Ticket, error) {
	t, err := scanTicket(r.db.QueryRowContext(ctx,
		`SELECT `+ticketColumns+` FROM tickets t
		 JOIN bookings b ON b.booking_id = t.booking_id
		 WHERE t.ticket_id = ? AND b.visitor_token = ?`,
		ticketID, visitorToken,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Ticket{}, ErrTicketsNotAvailable
	}
	return t, err
}
