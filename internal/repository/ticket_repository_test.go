package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-sale-gate/internal/model"
)

func TestTicketRepo_InsertIgnoreTxBuildsBulkInsert(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tickets := []model.Ticket{
		{TicketID: "TCK_1", BookingID: "BKG_1", EventID: "E1", SeatID: "A-R1-1", QRCode: "aa", Status: model.TicketActive, IssuedAt: at},
		{TicketID: "TCK_2", BookingID: "BKG_1", EventID: "E1", SeatID: "A-R1-2", QRCode: "bb", Status: model.TicketActive, IssuedAt: at},
	}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT IGNORE INTO tickets (ticket_id, booking_id, event_id, seat_id, qr_code, status, issued_at) VALUES (?, ?, ?, ?, ?, ?, ?), (?, ?, ?, ?, ?, ?, ?)`)).
		WithArgs("TCK_1", "BKG_1", "E1", "A-R1-1", "aa", model.TicketActive, at,
			"TCK_2", "BKG_1", "E1", "A-R1-2", "bb", model.TicketActive, at).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := NewTicketRepo(db).InsertIgnoreTx(context.Background(), tx, tickets)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestTicketRepo_InsertIgnoreTxEmpty(t *testing.T) {
	db, mock := newMock(t)
	tx := beginTx(t, db, mock)

	n, err := NewTicketRepo(db).InsertIgnoreTx(context.Background(), tx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTicketRepo_ByBookingNoneIsNotAvailable(t *testing.T) {
	db, mock := newMock(t)

	mock.ExpectQuery(regexp.QuoteMeta(`WHERE t.booking_id = ? AND b.visitor_token = ?`)).
		WithArgs("BKG_1", "V2").
		WillReturnRows(sqlmock.NewRows([]string{"ticket_id", "booking_id", "event_id", "seat_id", "qr_code", "status", "issued_at"}))

	_, err := NewTicketRepo(db).ByBooking(context.Background(), "BKG_1", "V2")
	assert.ErrorIs(t, err, ErrTicketsNotAvailable)
}
