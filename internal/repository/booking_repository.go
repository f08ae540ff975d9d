package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/ticket-sale-gate/internal/model"
)

// BookingRepo provides data access to the bookings table.  A booking is
// created PENDING at checkout, one per hold (hold_token is UNIQUE), and is
// paid through a single conditional update.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `booking_id, hold_token, event_id, visitor_token, seat_ids, total_amount, payment_status, created_at, paid_at`

func scanBooking(row interface{ Scan(...any) error }) (model.Booking, error) {
	var (
		b       model.Booking
		seatIDs []byte
		paidAt  sql.NullTime
	)
	if err := row.Scan(&b.BookingID, &b.HoldToken, &b.EventID, &b.VisitorToken, &seatIDs, &b.TotalAmount, &b.PaymentStatus, &b.CreatedAt, &paidAt); err != nil {
		return model.Booking{}, err
	}
	if err := json.Unmarshal(seatIDs, &b.SeatIDs); err != nil {
		return model.Booking{}, fmt.Errorf("decode seat_ids of %s: %w", b.BookingID, err)
	}
	b.PaidAt = nullTimePtr(paidAt)
	return b, nil
}

// FindByHoldTx returns the booking created from holdToken, or nil.
func (r *BookingRepo) FindByHoldTx(ctx context.Context, tx *sql.Tx, holdToken string) (*model.Booking, error) {
	b, err := scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE hold_token = ?`, holdToken))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateTx inserts a PENDING booking.  seat_ids is stored as a JSON array.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b model.Booking) error {
	seatIDs, err := json.Marshal(b.SeatIDs)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO bookings (booking_id, hold_token, event_id, visitor_token, seat_ids, total_amount, payment_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.BookingID, b.HoldToken, b.EventID, b.VisitorToken, seatIDs, b.TotalAmount, model.PaymentPending, b.CreatedAt.UTC(),
	)
	return err
}

// MarkPaidTx flips a PENDING booking owned by visitorToken to SUCCESS.  It
// returns 0 when the booking is missing, foreign or already paid; callers
// re-read to tell those apart.
func (r *BookingRepo) MarkPaidTx(ctx context.Context, tx *sql.Tx, bookingID, visitorToken string, paidAt time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE bookings SET payment_status = 'SUCCESS', paid_at = ?
		 WHERE booking_id = ? AND visitor_token = ? AND payment_status = 'PENDING'`,
		paidAt.UTC(), bookingID, visitorToken,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetTx returns ErrBookingNotFound when the id is unknown.
func (r *BookingRepo) GetTx(ctx context.Context, tx *sql.Tx, bookingID string) (model.Booking, error) {
	b, err := scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_id = ?`, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ErrBookingNotFound
	}
	return b, err
}
