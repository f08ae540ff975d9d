// Package service holds the seat reservation engine.  It coordinates the
// repositories inside single MySQL transactions so that a hold, a checkout
// or a payment either fully happens or leaves no trace.
package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/ticket-sale-gate/internal/apperror"
	"github.com/iliyamo/ticket-sale-gate/internal/database"
	"github.com/iliyamo/ticket-sale-gate/internal/logger"
	"github.com/iliyamo/ticket-sale-gate/internal/model"
	"github.com/iliyamo/ticket-sale-gate/internal/repository"
)

const (
	holdPrefix    = "HOLD_"
	bookingPrefix = "BKG_"
	ticketPrefix  = "TCK_"
)

// HoldRequest asks for Quantity seats in one section.  With Adjacent set the
// seats must be contiguous in one row and Price is the exact total of the
// window; otherwise the cheapest seats are taken and Price is ignored.
type HoldRequest struct {
	EventID      string
	VisitorToken string
	SectionID    string
	Quantity     int
	Price        int64
	Adjacent     bool
	TTL          time.Duration // zero uses the service default
}

// ReservationService is safe for concurrent use.
type ReservationService struct {
	db       *sql.DB
	seats    *repository.SeatRepo
	holds    *repository.HoldRepo
	bookings *repository.BookingRepo
	tickets  *repository.TicketRepo
	events   *repository.EventRepo
	holdTTL  time.Duration
	log      *logger.Logger
	now      func() time.Time
}

// NewReservationService builds the engine and its repositories over db.
func NewReservationService(db *sql.DB, holdTTL time.Duration, log *logger.Logger) *ReservationService {
	if db == nil {
		panic("nil database passed to NewReservationService")
	}
	if log == nil {
		log = logger.Discard()
	}
	return &ReservationService{
		db:       db,
		seats:    repository.NewSeatRepo(db),
		holds:    repository.NewHoldRepo(db),
		bookings: repository.NewBookingRepo(db),
		tickets:  repository.NewTicketRepo(db),
		events:   repository.NewEventRepo(db),
		holdTTL:  holdTTL,
		log:      log.With("component", "reservation"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// inTx runs fn inside a transaction.  fn's error rolls everything back,
// including a business rejection raised after some rows were already
// written.
func (s *ReservationService) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// Hold claims seats for a visitor.  A retry while the visitor already has
// an ACTIVE hold on the section returns that hold with Duplicate set.
func (s *ReservationService) Hold(ctx context.Context, req HoldRequest) (model.HoldResult, error) {
	if req.EventID == "" || req.SectionID == "" || req.VisitorToken == "" || req.Quantity <= 0 {
		return model.HoldResult{}, apperror.InvalidRequest("eventId, sectionId, visitorToken and a positive quantity are required")
	}
	if req.Adjacent && req.Price <= 0 {
		return model.HoldResult{}, apperror.InvalidRequest("price is required for adjacent seats")
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.holdTTL
	}
	now := s.now()

	var result model.HoldResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		// a retried request must not claim a second set of seats
		existing, err := s.holds.FindActiveTx(ctx, tx, req.EventID, req.SectionID, req.VisitorToken, now)
		if err != nil {
			return fmt.Errorf("find active hold: %w", err)
		}
		if existing != nil {
			seats, err := s.seats.SeatsByHoldTx(ctx, tx, existing.HoldToken)
			if err != nil {
				return fmt.Errorf("load held seats: %w", err)
			}
			result = holdResult(*existing, seats)
			result.Duplicate = true
			return nil
		}

		hold := model.Hold{
			HoldToken:    holdPrefix + uuid.NewString(),
			EventID:      req.EventID,
			SectionID:    req.SectionID,
			VisitorToken: req.VisitorToken,
			Quantity:     req.Quantity,
			Status:       model.HoldActive,
			ExpiresAt:    now.Add(ttl),
			CreatedAt:    now,
		}
		// the hold row goes in first so the seat updates can reference its token
		if err := s.holds.CreateTx(ctx, tx, hold); err != nil {
			return fmt.Errorf("insert hold: %w", err)
		}

		var (
			updated  int64
			shortage *apperror.AppError
		)
		if req.Adjacent {
			updated, err = s.seats.HoldAdjacentTx(ctx, tx, req.EventID, req.SectionID, req.Quantity, req.Price, hold.HoldToken, hold.ExpiresAt)
			shortage = repository.ErrNoAdjacentSeats
		} else {
			updated, err = s.seats.HoldCheapestTx(ctx, tx, req.EventID, req.SectionID, req.Quantity, hold.HoldToken, hold.ExpiresAt)
			shortage = repository.ErrInsufficientSeats
		}
		if err != nil {
			return fmt.Errorf("hold seats: %w", err)
		}
		// a partial claim is rolled back with the hold row
		if updated != int64(req.Quantity) {
			return shortage.WithDetails(map[string]any{"requested": req.Quantity, "available": updated})
		}

		seats, err := s.seats.SeatsByHoldTx(ctx, tx, hold.HoldToken)
		if err != nil {
			return fmt.Errorf("load held seats: %w", err)
		}
		result = holdResult(hold, seats)
		return nil
	})
	if err != nil {
		return model.HoldResult{}, err
	}
	if !result.Duplicate {
		s.log.Info("seats held", "event_id", req.EventID, "section_id", req.SectionID, "hold_token", result.HoldToken, "quantity", req.Quantity, "adjacent", req.Adjacent)
	}
	return result, nil
}

func holdResult(h model.Hold, seats []model.HeldSeat) model.HoldResult {
	r := model.HoldResult{
		HoldToken: h.HoldToken,
		EventID:   h.EventID,
		SectionID: h.SectionID,
		Quantity:  h.Quantity,
		Seats:     seats,
		ExpiresAt: h.ExpiresAt,
	}
	for _, seat := range seats {
		r.TotalPrice += seat.Price
	}
	return r
}

// ReleaseHold gives the seats of an ACTIVE hold back.  Releasing a hold that
// is already EXPIRED or CONFIRMED is a no-op and reports false.  eventID is
// the event the caller's credential was minted for; a hold of any other
// event reads as forbidden.
func (s *ReservationService) ReleaseHold(ctx context.Context, eventID, holdToken, visitorToken string) (bool, error) {
	released := false
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		h, err := s.holds.LockForVisitorTx(ctx, tx, holdToken, visitorToken)
		if err != nil {
			return err
		}
		if h.EventID != eventID {
			return repository.ErrHoldForbidden
		}
		if h.Status != model.HoldActive {
			return nil
		}
		if _, err := s.seats.FreeByHoldTx(ctx, tx, holdToken); err != nil {
			return fmt.Errorf("free seats: %w", err)
		}
		if _, err := s.holds.MarkExpiredTx(ctx, tx, holdToken); err != nil {
			return fmt.Errorf("expire hold: %w", err)
		}
		released = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if released {
		s.log.Info("hold released", "hold_token", holdToken)
	}
	return released, nil
}

// Checkout turns an ACTIVE hold into a PENDING booking.  Retrying after a
// successful checkout returns the same booking with Duplicate set.  The hold
// must belong to eventID, the event of the caller's credential.
func (s *ReservationService) Checkout(ctx context.Context, eventID, holdToken, visitorToken string) (model.BookingResult, error) {
	now := s.now()
	var result model.BookingResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := s.bookings.FindByHoldTx(ctx, tx, holdToken)
		if err != nil {
			return fmt.Errorf("find booking: %w", err)
		}
		if existing != nil {
			if existing.VisitorToken != visitorToken || existing.EventID != eventID {
				return repository.ErrCheckoutNotAllowed
			}
			result = model.BookingResult{Booking: *existing, Duplicate: true}
			return nil
		}

		confirmed, err := s.holds.ConfirmTx(ctx, tx, holdToken, visitorToken, now)
		if err != nil {
			return fmt.Errorf("confirm hold: %w", err)
		}
		if confirmed == 0 {
			return repository.ErrCheckoutNotAllowed
		}
		hold, err := s.holds.GetTx(ctx, tx, holdToken)
		if err != nil {
			return fmt.Errorf("load hold: %w", err)
		}
		// the confirm above is undone by the rollback
		if hold.EventID != eventID {
			return repository.ErrCheckoutNotAllowed
		}
		// every held seat must flip to SOLD, or the whole checkout is undone
		sold, err := s.seats.MarkSoldTx(ctx, tx, holdToken)
		if err != nil {
			return fmt.Errorf("sell seats: %w", err)
		}
		if sold != int64(hold.Quantity) {
			return repository.ErrCheckoutNotAllowed.WithDetails(map[string]any{"expected": hold.Quantity, "sold": sold})
		}
		seats, err := s.seats.SeatsByHoldTx(ctx, tx, holdToken)
		if err != nil {
			return fmt.Errorf("load sold seats: %w", err)
		}

		b := model.Booking{
			BookingID:     bookingPrefix + uuid.NewString(),
			HoldToken:     holdToken,
			EventID:       hold.EventID,
			VisitorToken:  visitorToken,
			SeatIDs:       make([]string, 0, len(seats)),
			PaymentStatus: model.PaymentPending,
			CreatedAt:     now,
		}
		for _, seat := range seats {
			b.SeatIDs = append(b.SeatIDs, seat.SeatID)
			b.TotalAmount += seat.Price
		}
		if err := s.bookings.CreateTx(ctx, tx, b); err != nil {
			if database.IsDuplicateKey(err) {
				return repository.ErrCheckoutNotAllowed
			}
			return fmt.Errorf("insert booking: %w", err)
		}
		result = model.BookingResult{Booking: b}
		return nil
	})
	if err != nil {
		return model.BookingResult{}, err
	}
	if !result.Duplicate {
		s.log.Info("hold checked out", "hold_token", holdToken, "booking_id", result.Booking.BookingID, "total", result.Booking.TotalAmount)
	}
	return result, nil
}

// ConfirmPayment marks a booking paid and issues one ticket per seat.  The
// PENDING → SUCCESS flip is a conditional update, so concurrent or repeated
// confirmations issue tickets exactly once.  A booking of another visitor or
// of an event other than eventID reads as not found.
func (s *ReservationService) ConfirmPayment(ctx context.Context, eventID, bookingID, visitorToken string) (model.PaymentResult, error) {
	now := s.now()
	var result model.PaymentResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		// paid is 0 for a repeated confirmation; the row is read either way
		paid, err := s.bookings.MarkPaidTx(ctx, tx, bookingID, visitorToken, now)
		if err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		b, err := s.bookings.GetTx(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if b.VisitorToken != visitorToken || b.EventID != eventID {
			return repository.ErrBookingNotFound
		}
		result = model.PaymentResult{
			BookingID:    b.BookingID,
			EventID:      b.EventID,
			VisitorToken: b.VisitorToken,
			SeatIDs:      b.SeatIDs,
			TotalAmount:  b.TotalAmount,
			PaidAt:       now,
		}
		if paid == 0 {
			if b.PaymentStatus == model.PaymentSuccess {
				if b.PaidAt != nil {
					result.PaidAt = *b.PaidAt
				}
				result.Duplicate = true
				return nil
			}
			return repository.ErrPaymentNotAllowed
		}

		tickets := make([]model.Ticket, 0, len(b.SeatIDs))
		for _, seatID := range b.SeatIDs {
			tickets = append(tickets, model.Ticket{
				TicketID:  ticketPrefix + uuid.NewString(),
				BookingID: b.BookingID,
				EventID:   b.EventID,
				SeatID:    seatID,
				QRCode:    TicketCode(b.BookingID, seatID),
				Status:    model.TicketActive,
				IssuedAt:  now,
			})
		}
		issued, err := s.tickets.InsertIgnoreTx(ctx, tx, tickets)
		if err != nil {
			return fmt.Errorf("issue tickets: %w", err)
		}
		result.TicketsIssued = int(issued)
		return nil
	})
	if err != nil {
		return model.PaymentResult{}, err
	}
	if !result.Duplicate {
		s.log.Info("payment confirmed", "booking_id", bookingID, "tickets", result.TicketsIssued)
	}
	return result, nil
}

// TicketCode is the deterministic code printed on a ticket.
func TicketCode(bookingID, seatID string) string {
	sum := sha256.Sum256([]byte(bookingID + ":" + seatID))
	return hex.EncodeToString(sum[:])
}

// ExpireHolds frees the seats of every ACTIVE hold past its expiry and marks
// those holds EXPIRED.  Both statements share one cutoff and one
// transaction, so a hold is never EXPIRED while its seats stay HELD.
func (s *ReservationService) ExpireHolds(ctx context.Context) (int64, error) {
	cutoff := s.now()
	var expired int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		freed, err := s.seats.FreeExpiredTx(ctx, tx, cutoff)
		if err != nil {
			return fmt.Errorf("free expired seats: %w", err)
		}
		expired, err = s.holds.ExpireDueTx(ctx, tx, cutoff)
		if err != nil {
			return fmt.Errorf("expire holds: %w", err)
		}
		if expired > 0 {
			s.log.Info("holds expired", "holds", expired, "seats", freed)
		}
		return nil
	})
	return expired, err
}

// ActiveHolds lists the visitor's live holds on an event with their seats.
func (s *ReservationService) ActiveHolds(ctx context.Context, eventID, visitorToken string) ([]model.HoldResult, error) {
	holds, err := s.holds.ActiveByVisitor(ctx, eventID, visitorToken, s.now())
	if err != nil {
		return nil, err
	}
	out := make([]model.HoldResult, 0, len(holds))
	for _, h := range holds {
		seats, err := s.seats.SeatsByHold(ctx, h.HoldToken)
		if err != nil {
			return nil, err
		}
		out = append(out, holdResult(h, seats))
	}
	return out, nil
}

// Tickets lists the tickets of a paid booking owned by the visitor.
func (s *ReservationService) Tickets(ctx context.Context, bookingID, visitorToken string) ([]model.Ticket, error) {
	return s.tickets.ByBooking(ctx, bookingID, visitorToken)
}

func (s *ReservationService) Ticket(ctx context.Context, ticketID, visitorToken string) (model.Ticket, error) {
	return s.tickets.GetForVisitor(ctx, ticketID, visitorToken)
}

// Sections fails with EVENT_NOT_FOUND for unknown events rather than
// returning an empty list.
func (s *ReservationService) Sections(ctx context.Context, eventID string) ([]model.SectionAvailability, error) {
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.seats.Sections(ctx, eventID)
}

// Listings reports the hold totals available for quantity seats in each
// section.  Adjacent listings price contiguous windows the same way Hold
// matches them, so any listed price is a valid Hold price.
func (s *ReservationService) Listings(ctx context.Context, eventID string, quantity int, adjacent bool) ([]model.SectionListing, error) {
	if quantity <= 0 {
		return nil, apperror.InvalidRequest("quantity must be positive")
	}
	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		return nil, err
	}
	return s.seats.Listings(ctx, eventID, quantity, adjacent)
}

func (s *ReservationService) Events(ctx context.Context) ([]model.Event, error) {
	return s.events.List(ctx)
}
