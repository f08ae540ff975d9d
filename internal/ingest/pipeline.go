// Package ingest copies the Kafka queue event log into the event_queue
// table in batches.  Records that cannot be written go to a dead-letter
// topic instead of blocking the stream.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/iliyamo/ticket-sale-gate/internal/config"
	"github.com/iliyamo/ticket-sale-gate/internal/eventlog"
	"github.com/iliyamo/ticket-sale-gate/internal/logger"
	"github.com/iliyamo/ticket-sale-gate/internal/model"
)

// Dead-letter headers.
const (
	HeaderOriginalTopic = "original-topic"
	HeaderError         = "dlq-error"
	HeaderTimestamp     = "dlq-timestamp"
	HeaderConsumerGroup = "dlq-consumer-group"
)

// MessageReader is the subset of *kafka.Reader the pipeline needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sink persists a batch.  Both writes must be idempotent per (event,
// visitor) because a failed batch may be replayed from the dead-letter
// topic.
type Sink interface {
	InsertWaiting(ctx context.Context, events []model.EnqueuedEvent) error
	MarkServed(ctx context.Context, events []model.ServedEvent) error
}

// NewReader joins the consumer group on both log topics.  Commits are
// synchronous so an offset is only stored after its batch is written.
func NewReader(cfg config.KafkaConfig, log *logger.Logger) *kafka.Reader {
	if log == nil {
		log = logger.Discard()
	}
	errLog := log.With("component", "kafka_reader")
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		GroupID:        cfg.GroupID,
		GroupTopics:    []string{cfg.EnqueueTopic, cfg.ServedTopic},
		MinBytes:       cfg.ConsumerMinBytes,
		MaxBytes:       cfg.ConsumerMaxBytes,
		MaxWait:        cfg.ConsumerMaxWait,
		CommitInterval: 0,
		SessionTimeout: cfg.ConsumerSessionTimeout,
		StartOffset:    cfg.ConsumerStartOffset,
		Logger:         kafka.LoggerFunc(func(string, ...any) {}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			errLog.Error("kafka reader", "detail", fmt.Sprintf(msg, args...))
		}),
	})
}

// Pipeline moves queue records from Kafka into MySQL.  Records are decoded
// as they arrive, buffered, and written to the Sink in batches; offsets are
// committed only after the batch they belong to is stored.  Records that do
// not decode are handed to the dead letter writer.
type Pipeline struct {
	reader MessageReader
	dlq    eventlog.MessageWriter
	sink   Sink

	enqueueTopic  string
	servedTopic   string
	groupID       string
	batchSize     int
	flushInterval time.Duration

	log *logger.Logger
	now func() time.Time
}

// NewPipeline wires a pipeline from its reader, dead letter writer and sink.
// Batch size and flush interval come from cfg.
func NewPipeline(reader MessageReader, dlq eventlog.MessageWriter, sink Sink, cfg config.KafkaConfig, log *logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Discard()
	}
	p := &Pipeline{
		reader:        reader,
		dlq:           dlq,
		sink:          sink,
		enqueueTopic:  cfg.EnqueueTopic,
		servedTopic:   cfg.ServedTopic,
		groupID:       cfg.GroupID,
		batchSize:     cfg.IngestBatchSize,
		flushInterval: cfg.IngestFlushInterval,
		log:           log.With("component", "ingest"),
		now:           time.Now,
	}
	if p.batchSize <= 0 {
		p.batchSize = config.DefaultIngestBatch
	}
	if p.flushInterval <= 0 {
		p.flushInterval = config.DefaultIngestInterval
	}
	return p
}

// batch is owned by the flush goroutine only.
type batch struct {
	waiting []model.EnqueuedEvent
	served  []model.ServedEvent
	records []record        // decoded records, dead-lettered if the write fails
	commits []kafka.Message // everything fetched, committed after a good write
}

type record struct {
	msg     kafka.Message
	visitor string
}

func (b *batch) size() int { return len(b.waiting) + len(b.served) }

// Run consumes until ctx is cancelled.  One goroutine fetches and hands
// messages over an unbuffered channel; this goroutine owns the buffers and
// does the flushing, so fetching stalls while a flush is in progress.
func (p *Pipeline) Run(ctx context.Context) error {
	msgs := make(chan kafka.Message)
	go p.fetch(ctx, msgs)

	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	var b batch
	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				p.drain(&b)
				return nil
			}
			p.add(ctx, &b, m)
			if b.size() >= p.batchSize {
				p.flush(ctx, &b)
			}
		case <-ticker.C:
			if len(b.commits) > 0 {
				p.flush(ctx, &b)
			}
		}
	}
}

// fetch feeds out until ctx is cancelled, then closes it so Run can drain.
func (p *Pipeline) fetch(ctx context.Context, out chan<- kafka.Message) {
	defer close(out)
	for {
		m, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			p.log.Error("fetch message", "error", err)
			// back off before retrying so a broker outage does not spin
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		select {
		case out <- m:
		case <-ctx.Done():
			return
		}
	}
}

// drain writes whatever is buffered at shutdown with a short deadline of
// its own, since the run context is already gone.
func (p *Pipeline) drain(b *batch) {
	if len(b.commits) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.flush(ctx, b)
}

// add decodes one message into the batch.  Every message is queued for
// commit, malformed ones included, so they never block the partition.
func (p *Pipeline) add(ctx context.Context, b *batch, m kafka.Message) {
	b.commits = append(b.commits, m)

	var (
		visitor string
		err     error
	)
	switch m.Topic {
	case p.enqueueTopic:
		var evt model.EnqueuedEvent
		if err = decode(m.Value, &evt); err == nil {
			if evt.EventID == "" || evt.VisitorToken == "" {
				err = errors.New("eventId and visitorToken are required")
			} else {
				b.waiting = append(b.waiting, evt)
				visitor = evt.VisitorToken
			}
		}
	case p.servedTopic:
		var evt model.ServedEvent
		if err = decode(m.Value, &evt); err == nil {
			if evt.EventID == "" || evt.VisitorToken == "" {
				err = errors.New("eventId and visitorToken are required")
			} else {
				b.served = append(b.served, evt)
				visitor = evt.VisitorToken
			}
		}
	default:
		err = fmt.Errorf("unexpected topic %q", m.Topic)
	}

	if err != nil {
		p.log.Warn("malformed record", "topic", m.Topic, "partition", m.Partition, "offset", m.Offset, "error", err)
		p.deadLetter(ctx, []record{{msg: m, visitor: string(m.Key)}}, err)
		return
	}
	b.records = append(b.records, record{msg: m, visitor: visitor})
}

func decode(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// flush swaps the buffers out and writes them.  Offsets are committed only
// when both writes succeed; otherwise every record goes to the DLQ and
// nothing is committed.
func (p *Pipeline) flush(ctx context.Context, b *batch) {
	cur := *b
	*b = batch{} // start a fresh batch whatever happens to this one

	if err := p.write(ctx, cur); err != nil {
		p.log.Error("batch write failed, dead-lettering", "records", len(cur.records), "error", err)
		p.deadLetter(ctx, cur.records, err)
		return
	}
	if err := p.reader.CommitMessages(ctx, cur.commits...); err != nil {
		p.log.Error("commit offsets", "messages", len(cur.commits), "error", err)
		return
	}
	if cur.size() > 0 {
		p.log.Debug("batch flushed", "waiting", len(cur.waiting), "served", len(cur.served))
	}
}

func (p *Pipeline) write(ctx context.Context, b batch) error {
	if len(b.waiting) > 0 {
		if err := p.sink.InsertWaiting(ctx, b.waiting); err != nil {
			return fmt.Errorf("insert waiting: %w", err)
		}
	}
	if len(b.served) > 0 {
		if err := p.sink.MarkServed(ctx, b.served); err != nil {
			return fmt.Errorf("mark served: %w", err)
		}
	}
	return nil
}

// deadLetter re-publishes records one by one so a single oversized or
// rejected record does not take the others down with it.
func (p *Pipeline) deadLetter(ctx context.Context, recs []record, cause error) {
	ts := p.now().UTC().Format(time.RFC3339)
	for _, r := range recs {
		headers := append([]kafka.Header{}, r.msg.Headers...)
		headers = append(headers,
			kafka.Header{Key: HeaderOriginalTopic, Value: []byte(r.msg.Topic)},
			kafka.Header{Key: HeaderError, Value: []byte(cause.Error())},
			kafka.Header{Key: HeaderTimestamp, Value: []byte(ts)},
			kafka.Header{Key: HeaderConsumerGroup, Value: []byte(p.groupID)},
		)
		dead := kafka.Message{
			Key:     []byte(r.visitor),
			Value:   r.msg.Value,
			Headers: headers,
			Time:    p.now(),
		}
		if err := p.dlq.WriteMessages(ctx, dead); err != nil {
			p.log.Error("dead-letter write failed", "topic", r.msg.Topic, "offset", r.msg.Offset, "error", err)
		}
	}
}
