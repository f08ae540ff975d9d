package broker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/ticket-sale-gate/internal/config"
	"github.com/iliyamo/ticket-sale-gate/internal/logger"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type fakeChannel struct {
	sent   []published
	fail   error
	closed bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, published{exchange, key, msg})
	return nil
}

func (f *fakeChannel) Close() error { f.closed = true; return nil }

func testConfig(t *testing.T) config.BrokerConfig {
	return config.BrokerConfig{
		URL:          "amqp://unused",
		PushExchange: "ticketing.push",
		AuditQueue:   "booking.paid",
		AuditLogPath: filepath.Join(t.TempDir(), "logs", "booking.log"),
	}
}

func newTestPublisher(t *testing.T, chans ...*fakeChannel) (*Publisher, *int) {
	p := NewPublisher(testConfig(t), logger.Discard())
	dials := 0
	p.open = func() (channel, func(), error) {
		if dials >= len(chans) {
			return nil, nil, errors.New("broker down")
		}
		ch := chans[dials]
		dials++
		return ch, func() { _ = ch.Close() }, nil
	}
	return p, &dials
}

func TestPushRoutesToVisitorTopic(t *testing.T) {
	ch := &fakeChannel{}
	p, dials := newTestPublisher(t, ch)

	err := p.Push(context.Background(), VisitorTopic("V1"), PushMessage{Type: PushAccessGranted, EventID: "E1", VisitorToken: "V1", AccessToken: "jwt"})
	require.NoError(t, err)
	require.NoError(t, p.Push(context.Background(), EventTopic("E1"), PushMessage{Type: PushEventStatus, EventID: "E1", Status: "SELLING"}))

	assert.Equal(t, 1, *dials, "channel is reused")
	require.Len(t, ch.sent, 2)
	assert.Equal(t, "ticketing.push", ch.sent[0].exchange)
	assert.Equal(t, "visitor.V1", ch.sent[0].key)
	assert.Equal(t, amqp.Transient, ch.sent[0].msg.DeliveryMode)
	assert.Equal(t, "event.E1", ch.sent[1].key)

	var got PushMessage
	require.NoError(t, json.Unmarshal(ch.sent[0].msg.Body, &got))
	assert.Equal(t, "jwt", got.AccessToken)
}

func TestPublishBookingPaidIsPersistent(t *testing.T) {
	ch := &fakeChannel{}
	p, _ := newTestPublisher(t, ch)

	require.NoError(t, p.PublishBookingPaid(context.Background(), BookingPaidEvent{BookingID: "BKG_1"}))
	require.Len(t, ch.sent, 1)
	assert.Equal(t, "", ch.sent[0].exchange)
	assert.Equal(t, "booking.paid", ch.sent[0].key)
	assert.Equal(t, amqp.Persistent, ch.sent[0].msg.DeliveryMode)
}

func TestPublishFailureRedialsNextTime(t *testing.T) {
	broken := &fakeChannel{fail: errors.New("channel closed")}
	healthy := &fakeChannel{}
	p, dials := newTestPublisher(t, broken, healthy)

	assert.Error(t, p.Push(context.Background(), "visitor.V1", PushMessage{}))
	assert.True(t, broken.closed)
	assert.NoError(t, p.Push(context.Background(), "visitor.V1", PushMessage{}))
	assert.Equal(t, 2, *dials)
	assert.Len(t, healthy.sent, 1)
}

func TestPublishDialFailure(t *testing.T) {
	p, _ := newTestPublisher(t)
	assert.Error(t, p.Push(context.Background(), "visitor.V1", PushMessage{}))
}

func TestAuditConsumerAppendsLines(t *testing.T) {
	cfg := testConfig(t)
	a := NewAuditConsumer(cfg, logger.Discard())

	body, _ := json.Marshal(BookingPaidEvent{
		BookingID: "BKG_1", EventID: "E1", VisitorToken: "V1",
		SeatIDs: []string{"A-R1-1", "A-R1-2"}, TotalAmount: 200, TicketsIssued: 2, PaidAt: "2026-03-01T10:00:00Z",
	})
	require.NoError(t, a.handle(body))
	require.NoError(t, a.handle(body))

	data, err := os.ReadFile(cfg.AuditLogPath)
	require.NoError(t, err)
	line := "[2026-03-01T10:00:00Z] Booking paid | booking_id=BKG_1 | event_id=E1 | visitor=V1 | total=200 | tickets=2 | seats=[A-R1-1,A-R1-2]\n"
	assert.Equal(t, line+line, string(data))
}

func TestAuditConsumerRejectsGarbage(t *testing.T) {
	a := NewAuditConsumer(testConfig(t), logger.Discard())
	assert.Error(t, a.handle([]byte("{not json")))
}

func TestSleepStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, sleep(ctx, 0xffffffff))
}
