package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/ticket-sale-gate/internal/config"
	"github.com/iliyamo/ticket-sale-gate/internal/logger"
)

// channel is the subset of *amqp.Channel the publisher uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher keeps one channel open and redials lazily after a failure.
// Errors are logged and returned so callers can treat publishing as best
// effort without interrupting the request flow.
type Publisher struct {
	cfg  config.BrokerConfig
	log  *logger.Logger
	open func() (channel, func(), error)

	mu     sync.Mutex
	ch     channel
	closer func()
}

// NewPublisher returns a publisher that dials on first use, so the server
// starts even while RabbitMQ is down.
func NewPublisher(cfg config.BrokerConfig, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Discard()
	}
	p := &Publisher{cfg: cfg, log: log.With("component", "broker_publisher")}
	p.open = p.dial
	return p
}

// dial connects and declares the push exchange and the audit queue, both
// idempotently.
func (p *Publisher) dial() (channel, func(), error) {
	conn, err := amqp.Dial(p.cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}
	if err := ch.ExchangeDeclare(p.cfg.PushExchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("exchange declare: %w", err)
	}
	if _, err := ch.QueueDeclare(p.cfg.AuditQueue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("queue declare: %w", err)
	}
	return ch, func() { _ = ch.Close(); _ = conn.Close() }, nil
}

// Push sends a transient notification on the push exchange.
func (p *Publisher) Push(ctx context.Context, routingKey string, msg PushMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.publish(ctx, p.cfg.PushExchange, routingKey, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Transient,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

// PublishBookingPaid sends a persistent audit record to the audit queue
// through the default exchange.
func (p *Publisher) PublishBookingPaid(ctx context.Context, evt BookingPaidEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return p.publish(ctx, "", p.cfg.AuditQueue, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}

func (p *Publisher) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		ch, closer, err := p.open()
		if err != nil {
			p.log.Warn("rabbitmq connect failed", "error", err)
			return err
		}
		p.ch, p.closer = ch, closer
	}
	if err := p.ch.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
		p.log.Warn("rabbitmq publish failed", "exchange", exchange, "routing_key", key, "error", err)
		p.reset()
		return err
	}
	return nil
}

func (p *Publisher) reset() {
	if p.closer != nil {
		p.closer()
	}
	p.ch, p.closer = nil, nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
