package eventlog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/iliyamo/ticket-sale-gate/internal/model"
)

var (
	ErrProducerClosed = errors.New("event log producer is closed")
	ErrEmptyKey       = errors.New("event log record needs a visitor token")
)

// Producer writes admission and service records to their topics.  The HTTP
// path and the serve loop treat a failed publish as best effort.
type Producer struct {
	w            MessageWriter
	enqueueTopic string
	servedTopic  string

	mu     sync.RWMutex
	closed bool
}

// NewProducer takes a writer without a fixed topic.
func NewProducer(w MessageWriter, enqueueTopic, servedTopic string) *Producer {
	return &Producer{w: w, enqueueTopic: enqueueTopic, servedTopic: servedTopic}
}

// PublishEnqueued writes an enqueue record keyed by visitor.
func (p *Producer) PublishEnqueued(ctx context.Context, evt model.EnqueuedEvent) error {
	return p.publish(ctx, p.enqueueTopic, evt.VisitorToken, evt)
}

// PublishServed writes a grant record keyed by visitor.
func (p *Producer) PublishServed(ctx context.Context, evt model.ServedEvent) error {
	return p.publish(ctx, p.servedTopic, evt.VisitorToken, evt)
}

func (p *Producer) publish(ctx context.Context, topic, key string, v any) error {
	// the read lock lets publishes run concurrently while Close waits for them
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	if key == "" {
		return ErrEmptyKey // an empty key would defeat per-visitor partitioning
	}
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.w.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: body,
		Time:  time.Now(),
	})
}

// Close flushes and closes the writer.  Later publishes fail with
// ErrProducerClosed.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.w.Close()
}
