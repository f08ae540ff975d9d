package service

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/iliyamo/ticket-sale-gate/internal/apperror"
	"github.com/iliyamo/ticket-sale-gate/internal/logger"
	"github.com/iliyamo/ticket-sale-gate/internal/model"
	"github.com/iliyamo/ticket-sale-gate/internal/repository"
)

var (
	holdCols    = []string{"hold_token", "event_id", "section_id", "visitor_token", "quantity", "status", "expires_at", "created_at"}
	seatCols    = []string{"section_id", "row_id", "seat_number", "price"}
	bookingCols = []string{"booking_id", "hold_token", "event_id", "visitor_token", "seat_ids", "total_amount", "payment_status", "created_at", "paid_at"}
)

type ReservationSuite struct {
	suite.Suite
	db   *sql.DB
	mock sqlmock.Sqlmock
	svc  *ReservationService
	now  time.Time
}

func TestReservationSuite(t *testing.T) {
	suite.Run(t, new(ReservationSuite))
}

func (s *ReservationSuite) SetupTest() {
	db, mock, err := sqlmock.New()
	s.Require().NoError(err)
	s.db, s.mock = db, mock
	s.now = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s.svc = NewReservationService(db, 420*time.Second, logger.Discard())
	s.svc.now = func() time.Time { return s.now }
}

func (s *ReservationSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	_ = s.db.Close()
}

func (s *ReservationSuite) expectNoActiveHold() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`status = 'ACTIVE' AND expires_at > ?`)).
		WithArgs("E1", "A", "V1", s.now).
		WillReturnRows(sqlmock.NewRows(holdCols))
}

func (s *ReservationSuite) TestHoldAdjacentSuccess() {
	expires := s.now.Add(420 * time.Second)
	s.mock.ExpectBegin()
	s.expectNoActiveHold()
	s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO holds`)).
		WithArgs(sqlmock.AnyArg(), "E1", "A", "V1", 2, model.HoldActive, expires, s.now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec(regexp.QuoteMeta(`ROWS BETWEEN CURRENT ROW AND ? FOLLOWING`)).
		WithArgs("E1", "A", 1, 2, int64(200), 2, sqlmock.AnyArg(), expires, "E1", "A").
		WillReturnResult(sqlmock.NewResult(0, 2))
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM seats WHERE hold_token = ?`)).
		WillReturnRows(sqlmock.NewRows(seatCols).AddRow("A", "R1", 7, 100).AddRow("A", "R1", 8, 100))
	s.mock.ExpectCommit()

	res, err := s.svc.Hold(context.Background(), HoldRequest{
		EventID: "E1", VisitorToken: "V1", SectionID: "A", Quantity: 2, Price: 200, Adjacent: true,
	})
	s.Require().NoError(err)
	s.False(res.Duplicate)
	s.True(len(res.HoldToken) > len(holdPrefix))
	s.Equal(holdPrefix, res.HoldToken[:len(holdPrefix)])
	s.EqualValues(200, res.TotalPrice)
	s.Equal(expires, res.ExpiresAt)
	s.Equal([]string{"A-R1-7", "A-R1-8"}, []string{res.Seats[0].SeatID, res.Seats[1].SeatID})
}

func (s *ReservationSuite) TestHoldAdjacentNoWindowRollsBack() {
	s.mock.ExpectBegin()
	s.expectNoActiveHold()
	s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO holds`)).WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec(regexp.QuoteMeta(`ROWS BETWEEN CURRENT ROW AND ? FOLLOWING`)).WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectRollback()

	_, err := s.svc.Hold(context.Background(), HoldRequest{
		EventID: "E1", VisitorToken: "V1", SectionID: "A", Quantity: 3, Price: 300, Adjacent: true,
	})
	s.ErrorIs(err, repository.ErrNoAdjacentSeats)
}

func (s *ReservationSuite) TestHoldPartialNonAdjacentRollsBack() {
	s.mock.ExpectBegin()
	s.expectNoActiveHold()
	s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO holds`)).WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec(regexp.QuoteMeta(`ORDER BY price, row_id, seat_number LIMIT ?`)).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "E1", "A", 4).
		WillReturnResult(sqlmock.NewResult(0, 3))
	s.mock.ExpectRollback()

	_, err := s.svc.Hold(context.Background(), HoldRequest{EventID: "E1", VisitorToken: "V1", SectionID: "A", Quantity: 4})
	s.Require().ErrorIs(err, repository.ErrInsufficientSeats)
	appErr := apperror.AsAppError(err)
	s.EqualValues(3, appErr.Details["available"])
}

func (s *ReservationSuite) TestHoldRetryReturnsExistingHold() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(regexp.QuoteMeta(`status = 'ACTIVE' AND expires_at > ?`)).
		WillReturnRows(sqlmock.NewRows(holdCols).
			AddRow("HOLD_1", "E1", "A", "V1", 1, model.HoldActive, s.now.Add(time.Minute), s.now.Add(-time.Minute)))
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM seats WHERE hold_token = ?`)).
		WithArgs("HOLD_1").
		WillReturnRows(sqlmock.NewRows(seatCols).AddRow("A", "R2", 1, 90))
	s.mock.ExpectCommit()

	res, err := s.svc.Hold(context.Background(), HoldRequest{EventID: "E1", VisitorToken: "V1", SectionID: "A", Quantity: 1})
	s.Require().NoError(err)
	s.True(res.Duplicate)
	s.Equal("HOLD_1", res.HoldToken)
	s.EqualValues(90, res.TotalPrice)
}

func (s *ReservationSuite) TestHoldValidation() {
	_, err := s.svc.Hold(context.Background(), HoldRequest{EventID: "E1", VisitorToken: "V1", SectionID: "A", Quantity: 0})
	s.Equal(apperror.CodeInvalidRequest, apperror.AsAppError(err).Code)

	_, err = s.svc.Hold(context.Background(), HoldRequest{EventID: "E1", VisitorToken: "V1", SectionID: "A", Quantity: 2, Adjacent: true})
	s.Equal(apperror.CodeInvalidRequest, apperror.AsAppError(err).Code)
}

func (s *ReservationSuite) TestReleaseHoldForeignVisitor() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("HOLD_1", "V2").
		WillReturnRows(sqlmock.NewRows(holdCols))
	s.mock.ExpectRollback()

	_, err := s.svc.ReleaseHold(context.Background(), "E1", "HOLD_1", "V2")
	s.ErrorIs(err, repository.ErrHoldForbidden)
}

func (s *ReservationSuite) TestReleaseHoldFreesSeats() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("HOLD_1", "V1").
		WillReturnRows(sqlmock.NewRows(holdCols).
			AddRow("HOLD_1", "E1", "A", "V1", 2, model.HoldActive, s.now.Add(time.Minute), s.now))
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE seats SET seat_status = 'FREE'`)).
		WithArgs("HOLD_1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE holds SET status = 'EXPIRED' WHERE hold_token = ?`)).
		WithArgs("HOLD_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	released, err := s.svc.ReleaseHold(context.Background(), "E1", "HOLD_1", "V1")
	s.Require().NoError(err)
	s.True(released)
}

func (s *ReservationSuite) TestReleaseHoldAlreadyConfirmedIsNoop() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WillReturnRows(sqlmock.NewRows(holdCols).
			AddRow("HOLD_1", "E1", "A", "V1", 2, model.HoldConfirmed, s.now.Add(time.Minute), s.now))
	s.mock.ExpectCommit()

	released, err := s.svc.ReleaseHold(context.Background(), "E1", "HOLD_1", "V1")
	s.Require().NoError(err)
	s.False(released)
}

func (s *ReservationSuite) TestCheckoutExpiredHold() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings WHERE hold_token = ?`)).
		WithArgs("HOLD_1").
		WillReturnRows(sqlmock.NewRows(bookingCols))
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE holds SET status = 'CONFIRMED'`)).
		WithArgs("HOLD_1", "V1", s.now).
		WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectRollback()

	_, err := s.svc.Checkout(context.Background(), "E1", "HOLD_1", "V1")
	s.ErrorIs(err, repository.ErrCheckoutNotAllowed)
}

func (s *ReservationSuite) TestCheckoutSeatCountMismatchRollsBack() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings WHERE hold_token = ?`)).WillReturnRows(sqlmock.NewRows(bookingCols))
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE holds SET status = 'CONFIRMED'`)).WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM holds WHERE hold_token = ?`)).
		WillReturnRows(sqlmock.NewRows(holdCols).
			AddRow("HOLD_1", "E1", "A", "V1", 3, model.HoldConfirmed, s.now.Add(time.Minute), s.now))
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE seats SET seat_status = 'SOLD'`)).WillReturnResult(sqlmock.NewResult(0, 2))
	s.mock.ExpectRollback()

	_, err := s.svc.Checkout(context.Background(), "E1", "HOLD_1", "V1")
	s.ErrorIs(err, repository.ErrCheckoutNotAllowed)
}

func (s *ReservationSuite) TestCheckoutCreatesPendingBooking() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings WHERE hold_token = ?`)).WillReturnRows(sqlmock.NewRows(bookingCols))
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE holds SET status = 'CONFIRMED'`)).WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM holds WHERE hold_token = ?`)).
		WillReturnRows(sqlmock.NewRows(holdCols).
			AddRow("HOLD_1", "E1", "A", "V1", 2, model.HoldConfirmed, s.now.Add(time.Minute), s.now))
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE seats SET seat_status = 'SOLD'`)).WillReturnResult(sqlmock.NewResult(0, 2))
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM seats WHERE hold_token = ?`)).
		WillReturnRows(sqlmock.NewRows(seatCols).AddRow("A", "R1", 1, 120).AddRow("A", "R3", 9, 80))
	s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO bookings`)).
		WithArgs(sqlmock.AnyArg(), "HOLD_1", "E1", "V1", []byte(`["A-R1-1","A-R3-9"]`), int64(200), model.PaymentPending, s.now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	res, err := s.svc.Checkout(context.Background(), "E1", "HOLD_1", "V1")
	s.Require().NoError(err)
	s.False(res.Duplicate)
	s.EqualValues(200, res.Booking.TotalAmount)
	s.Equal(model.PaymentPending, res.Booking.PaymentStatus)
	s.Equal(bookingPrefix, res.Booking.BookingID[:len(bookingPrefix)])
}

func (s *ReservationSuite) TestCheckoutDuplicateInsertIsRejected() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings WHERE hold_token = ?`)).WillReturnRows(sqlmock.NewRows(bookingCols))
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE holds SET status = 'CONFIRMED'`)).WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM holds WHERE hold_token = ?`)).
		WillReturnRows(sqlmock.NewRows(holdCols).
			AddRow("HOLD_1", "E1", "A", "V1", 1, model.HoldConfirmed, s.now.Add(time.Minute), s.now))
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE seats SET seat_status = 'SOLD'`)).WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM seats WHERE hold_token = ?`)).
		WillReturnRows(sqlmock.NewRows(seatCols).AddRow("A", "R1", 1, 120))
	s.mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO bookings`)).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	s.mock.ExpectRollback()

	_, err := s.svc.Checkout(context.Background(), "E1", "HOLD_1", "V1")
	s.ErrorIs(err, repository.ErrCheckoutNotAllowed)
}

func (s *ReservationSuite) TestCheckoutRetryReturnsBooking() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings WHERE hold_token = ?`)).
		WillReturnRows(sqlmock.NewRows(bookingCols).
			AddRow("BKG_1", "HOLD_1", "E1", "V1", []byte(`["A-R1-1"]`), 120, model.PaymentPending, s.now, nil))
	s.mock.ExpectCommit()

	res, err := s.svc.Checkout(context.Background(), "E1", "HOLD_1", "V1")
	s.Require().NoError(err)
	s.True(res.Duplicate)
	s.Equal("BKG_1", res.Booking.BookingID)
}

func (s *ReservationSuite) TestConfirmPaymentIssuesTickets() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE bookings SET payment_status = 'SUCCESS'`)).
		WithArgs(s.now, "BKG_1", "V1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings WHERE booking_id = ?`)).
		WithArgs("BKG_1").
		WillReturnRows(sqlmock.NewRows(bookingCols).
			AddRow("BKG_1", "HOLD_1", "E1", "V1", []byte(`["A-R1-1","A-R1-2"]`), 200, model.PaymentSuccess, s.now, s.now))
	s.mock.ExpectExec(regexp.QuoteMeta(`INSERT IGNORE INTO tickets`)).
		WithArgs(
			sqlmock.AnyArg(), "BKG_1", "E1", "A-R1-1", TicketCode("BKG_1", "A-R1-1"), model.TicketActive, s.now,
			sqlmock.AnyArg(), "BKG_1", "E1", "A-R1-2", TicketCode("BKG_1", "A-R1-2"), model.TicketActive, s.now,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))
	s.mock.ExpectCommit()

	res, err := s.svc.ConfirmPayment(context.Background(), "E1", "BKG_1", "V1")
	s.Require().NoError(err)
	s.Equal(2, res.TicketsIssued)
	s.False(res.Duplicate)
	s.Equal("E1", res.EventID)
	s.Equal([]string{"A-R1-1", "A-R1-2"}, res.SeatIDs)
	s.EqualValues(200, res.TotalAmount)
	s.Equal(s.now, res.PaidAt)
}

func (s *ReservationSuite) TestConfirmPaymentTwiceIsDuplicate() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE bookings SET payment_status = 'SUCCESS'`)).WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings WHERE booking_id = ?`)).
		WillReturnRows(sqlmock.NewRows(bookingCols).
			AddRow("BKG_1", "HOLD_1", "E1", "V1", []byte(`["A-R1-1"]`), 100, model.PaymentSuccess, s.now, s.now))
	s.mock.ExpectCommit()

	res, err := s.svc.ConfirmPayment(context.Background(), "E1", "BKG_1", "V1")
	s.Require().NoError(err)
	s.True(res.Duplicate)
	s.Zero(res.TicketsIssued)
}

func (s *ReservationSuite) TestConfirmPaymentUnknownBooking() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE bookings SET payment_status = 'SUCCESS'`)).WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings WHERE booking_id = ?`)).WillReturnRows(sqlmock.NewRows(bookingCols))
	s.mock.ExpectRollback()

	_, err := s.svc.ConfirmPayment(context.Background(), "E1", "BKG_X", "V1")
	s.ErrorIs(err, repository.ErrBookingNotFound)
}

func (s *ReservationSuite) TestConfirmPaymentForeignBookingLooksMissing() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE bookings SET payment_status = 'SUCCESS'`)).WillReturnResult(sqlmock.NewResult(0, 0))
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings WHERE booking_id = ?`)).
		WillReturnRows(sqlmock.NewRows(bookingCols).
			AddRow("BKG_1", "HOLD_1", "E1", "V1", []byte(`[]`), 0, model.PaymentPending, s.now, nil))
	s.mock.ExpectRollback()

	_, err := s.svc.ConfirmPayment(context.Background(), "E1", "BKG_1", "V2")
	s.ErrorIs(err, repository.ErrBookingNotFound)
}

func (s *ReservationSuite) TestReleaseHoldOtherEventIsForbidden() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(regexp.QuoteMeta(`FOR UPDATE`)).
		WithArgs("HOLD_1", "V1").
		WillReturnRows(sqlmock.NewRows(holdCols).
			AddRow("HOLD_1", "E2", "A", "V1", 2, model.HoldActive, s.now.Add(time.Minute), s.now))
	s.mock.ExpectRollback()

	_, err := s.svc.ReleaseHold(context.Background(), "E1", "HOLD_1", "V1")
	s.ErrorIs(err, repository.ErrHoldForbidden)
}

func (s *ReservationSuite) TestCheckoutOtherEventRollsBack() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings WHERE hold_token = ?`)).WillReturnRows(sqlmock.NewRows(bookingCols))
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE holds SET status = 'CONFIRMED'`)).WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM holds WHERE hold_token = ?`)).
		WillReturnRows(sqlmock.NewRows(holdCols).
			AddRow("HOLD_1", "E2", "A", "V1", 2, model.HoldConfirmed, s.now.Add(time.Minute), s.now))
	s.mock.ExpectRollback()

	_, err := s.svc.Checkout(context.Background(), "E1", "HOLD_1", "V1")
	s.ErrorIs(err, repository.ErrCheckoutNotAllowed)
}

func (s *ReservationSuite) TestCheckoutRetryFromOtherEventIsRejected() {
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings WHERE hold_token = ?`)).
		WillReturnRows(sqlmock.NewRows(bookingCols).
			AddRow("BKG_1", "HOLD_1", "E2", "V1", []byte(`["A-R1-1"]`), 120, model.PaymentPending, s.now, nil))
	s.mock.ExpectRollback()

	_, err := s.svc.Checkout(context.Background(), "E1", "HOLD_1", "V1")
	s.ErrorIs(err, repository.ErrCheckoutNotAllowed)
}

func (s *ReservationSuite) TestConfirmPaymentOtherEventRollsBack() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE bookings SET payment_status = 'SUCCESS'`)).WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings WHERE booking_id = ?`)).
		WillReturnRows(sqlmock.NewRows(bookingCols).
			AddRow("BKG_1", "HOLD_1", "E2", "V1", []byte(`["A-R1-1"]`), 100, model.PaymentSuccess, s.now, s.now))
	s.mock.ExpectRollback()

	_, err := s.svc.ConfirmPayment(context.Background(), "E1", "BKG_1", "V1")
	s.ErrorIs(err, repository.ErrBookingNotFound)
}

func (s *ReservationSuite) TestExpireHoldsSharesCutoff() {
	s.mock.ExpectBegin()
	s.mock.ExpectExec(regexp.QuoteMeta(`JOIN holds h ON s.hold_token = h.hold_token`)).
		WithArgs(s.now).
		WillReturnResult(sqlmock.NewResult(0, 5))
	s.mock.ExpectExec(regexp.QuoteMeta(`UPDATE holds SET status = 'EXPIRED' WHERE status = 'ACTIVE' AND expires_at <= ?`)).
		WithArgs(s.now).
		WillReturnResult(sqlmock.NewResult(0, 2))
	s.mock.ExpectCommit()

	n, err := s.svc.ExpireHolds(context.Background())
	s.Require().NoError(err)
	s.EqualValues(2, n)
}

func TestTicketCodeIsDeterministic(t *testing.T) {
	a := TicketCode("BKG_1", "A-R1-1")
	require.Len(t, a, 64)
	assert.Equal(t, a, TicketCode("BKG_1", "A-R1-1"))
	assert.NotEqual(t, a, TicketCode("BKG_1", "A-R1-2"))
}

func (s *ReservationSuite) TestListingsAdjacent() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM events WHERE event_id = ?`)).
		WithArgs("E1").
		WillReturnRows(sqlmock.NewRows([]string{"event_id", "event_name", "event_time", "venue", "location", "status", "sale_start_time", "sale_open_at", "sale_end_time"}).
			AddRow("E1", "Opening", s.now.Add(24*time.Hour), "Hall", "City", model.EventSelling, nil, nil, nil))
	s.mock.ExpectQuery(regexp.QuoteMeta(`WHERE window_len = ?`)).
		WithArgs("E1", 1, 2).
		WillReturnRows(sqlmock.NewRows([]string{"section_id", "total_price", "block_count"}).AddRow("A", 200, 4))

	got, err := s.svc.Listings(context.Background(), "E1", 2, true)
	s.Require().NoError(err)
	s.Equal([]model.SectionListing{
		{SectionID: "A", Available: true, PriceOptions: []model.PriceOption{{Price: 200, BlockCount: 4}}},
	}, got)
}

func (s *ReservationSuite) TestListingsUnknownEvent() {
	s.mock.ExpectQuery(regexp.QuoteMeta(`FROM events WHERE event_id = ?`)).
		WithArgs("NOPE").
		WillReturnError(sql.ErrNoRows)

	_, err := s.svc.Listings(context.Background(), "NOPE", 2, true)
	s.ErrorIs(err, repository.ErrEventNotFound)
}

func (s *ReservationSuite) TestListingsRejectsZeroQuantity() {
	_, err := s.svc.Listings(context.Background(), "E1", 0, false)
	s.Equal(apperror.CodeInvalidRequest, apperror.AsAppError(err).Code)
}
