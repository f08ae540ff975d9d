package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/ticket-sale-gate/internal/config"
	"github.com/iliyamo/ticket-sale-gate/internal/logger"
)

// AuditConsumer drains the booking.paid queue into a single-line,
// human-friendly log file.
type AuditConsumer struct {
	cfg config.BrokerConfig
	log *logger.Logger
}

func NewAuditConsumer(cfg config.BrokerConfig, log *logger.Logger) *AuditConsumer {
	if log == nil {
		log = logger.Discard()
	}
	return &AuditConsumer{cfg: cfg, log: log.With("component", "booking_audit")}
}

// Run keeps a consumer attached to the audit queue, reconnecting with
// exponential backoff, until ctx is cancelled.
func (a *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(a.cfg.URL)
		if err != nil {
			a.log.Warn("failed to dial broker", "error", err, "retry_in", backoff.String())
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = a.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.log.Warn("consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (a *AuditConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		a.log.Warn("set QoS failed", "error", err)
	}
	if _, err := ch.QueueDeclare(a.cfg.AuditQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, a.cfg.AuditQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := a.handle(d.Body); err != nil {
			a.log.Error("handle audit message failed", "error", err)
			_ = d.Nack(false, false) // no requeue, avoids a poison loop
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func (a *AuditConsumer) handle(body []byte) error {
	var ev BookingPaidEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(a.cfg.AuditLogPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(a.cfg.AuditLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(auditLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func auditLine(ev BookingPaidEvent) string {
	return fmt.Sprintf("[%s] Booking paid | booking_id=%s | event_id=%s | visitor=%s | total=%d | tickets=%d | seats=[%s]\n",
		ev.PaidAt, ev.BookingID, ev.EventID, ev.VisitorToken, ev.TotalAmount, ev.TicketsIssued, strings.Join(ev.SeatIDs, ","))
}

// sleep waits d or until ctx is done, reporting whether the wait completed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
