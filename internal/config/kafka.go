package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultKafkaBrokers   = "localhost:9092"
	DefaultEnqueueTopic   = "queue.events"
	DefaultServedTopic    = "queue.served"
	DefaultDLQTopic       = "queue.events.dlq"
	DefaultConsumerGroup  = "queue-db-writer"
	DefaultIngestBatch    = 1000
	DefaultIngestInterval = time.Second
)

// KafkaConfig covers the event-log producer and the ingestion consumer.
type KafkaConfig struct {
	Brokers []string

	EnqueueTopic string
	ServedTopic  string
	DLQTopic     string
	GroupID      string

	ProducerMaxAttempts  int
	ProducerBatchTimeout time.Duration
	ProducerRequireAcks  int    // -1 = all, 0 = none, 1 = leader only
	ProducerCompression  string // "none", "gzip", "snappy", "lz4", "zstd"

	ConsumerMinBytes       int
	ConsumerMaxBytes       int
	ConsumerMaxWait        time.Duration
	ConsumerStartOffset    int64 // -1 = newest, -2 = oldest
	ConsumerSessionTimeout time.Duration

	IngestBatchSize     int
	IngestFlushInterval time.Duration
}

// LoadKafkaConfig reads KAFKA_* and INGEST_* variables and validates them.
func LoadKafkaConfig() (KafkaConfig, error) {
	cfg := KafkaConfig{
		Brokers: envList("KAFKA_BROKERS", DefaultKafkaBrokers),

		EnqueueTopic: envStr("KAFKA_ENQUEUE_TOPIC", DefaultEnqueueTopic),
		ServedTopic:  envStr("KAFKA_SERVED_TOPIC", DefaultServedTopic),
		DLQTopic:     envStr("KAFKA_DLQ_TOPIC", DefaultDLQTopic),
		GroupID:      envStr("KAFKA_CONSUMER_GROUP", DefaultConsumerGroup),

		ProducerMaxAttempts:  envInt("KAFKA_PRODUCER_MAX_ATTEMPTS", 3),
		ProducerBatchTimeout: envDur("KAFKA_PRODUCER_BATCH_TIMEOUT", 10*time.Millisecond),
		ProducerRequireAcks:  envInt("KAFKA_PRODUCER_REQUIRE_ACKS", -1),
		ProducerCompression:  envStr("KAFKA_PRODUCER_COMPRESSION", "snappy"),

		ConsumerMinBytes:       envInt("KAFKA_CONSUMER_MIN_BYTES", 1),
		ConsumerMaxBytes:       envInt("KAFKA_CONSUMER_MAX_BYTES", 10<<20),
		ConsumerMaxWait:        envDur("KAFKA_CONSUMER_MAX_WAIT", 500*time.Millisecond),
		ConsumerStartOffset:    int64(envInt("KAFKA_CONSUMER_START_OFFSET", -2)),
		ConsumerSessionTimeout: envDur("KAFKA_CONSUMER_SESSION_TIMEOUT", 30*time.Second),

		IngestBatchSize:     envInt("INGEST_BATCH_SIZE", DefaultIngestBatch),
		IngestFlushInterval: envDur("INGEST_FLUSH_INTERVAL", DefaultIngestInterval),
	}
	if err := cfg.Validate(); err != nil {
		return KafkaConfig{}, err
	}
	return cfg, nil
}

// Validate collects every problem instead of stopping at the first one.
func (c KafkaConfig) Validate() error {
	var problems []string
	if len(c.Brokers) == 0 {
		problems = append(problems, "at least one Kafka broker is required")
	}
	if c.EnqueueTopic == "" || c.ServedTopic == "" || c.DLQTopic == "" {
		problems = append(problems, "enqueue, served and DLQ topics must be set")
	}
	if c.GroupID == "" {
		problems = append(problems, "consumer group must be set")
	}
	if c.ProducerMaxAttempts <= 0 {
		problems = append(problems, fmt.Sprintf("producer max attempts must be positive, got %d", c.ProducerMaxAttempts))
	}
	switch c.ProducerCompression {
	case "none", "gzip", "snappy", "lz4", "zstd":
	default:
		problems = append(problems, fmt.Sprintf("unknown producer compression %q", c.ProducerCompression))
	}
	if c.IngestBatchSize <= 0 {
		problems = append(problems, fmt.Sprintf("ingest batch size must be positive, got %d", c.IngestBatchSize))
	}
	if c.IngestFlushInterval <= 0 {
		problems = append(problems, fmt.Sprintf("ingest flush interval must be positive, got %s", c.IngestFlushInterval))
	}
	if len(problems) > 0 {
		return fmt.Errorf("kafka config: %s", strings.Join(problems, "; "))
	}
	return nil
}
