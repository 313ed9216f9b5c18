package sink

import (
	"context"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"

	"github.com/intimehq/txlog-publisher/publisher"
)

const (
	DefaultKafkaBatchBytes = 1 << 20 // 1MB
)

// KafkaConfig holds configuration for the Kafka sink.
type KafkaConfig struct {
	Brokers          []string
	BatchBytes       int64
	AutoCreateTopics bool
}

// KafkaSink publishes events to a Kafka topic. Kafka offers no per-message
// stream sequence through the writer API, so Publish reports sequence 0; a
// nil error still means the brokers acknowledged the write (RequireAll).
type KafkaSink struct {
	writer *kafka.Writer

	mu     sync.Mutex
	closed bool
}

var _ publisher.Sink = (*KafkaSink)(nil)

// NewKafkaSink creates a connected Kafka sink. The kafka-go writer dials
// lazily, so there is no separate connect step.
func NewKafkaSink(config KafkaConfig) (*KafkaSink, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker address")
	}
	if config.BatchBytes == 0 {
		config.BatchBytes = DefaultKafkaBatchBytes
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchBytes:             config.BatchBytes,
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: config.AutoCreateTopics,
	}

	return &KafkaSink{writer: writer}, nil
}

// Publish sends one payload to the subject as a Kafka topic.
func (k *KafkaSink) Publish(ctx context.Context, subject string, payload []byte) (uint64, error) {
	k.mu.Lock()
	closed := k.closed
	k.mu.Unlock()
	if closed {
		return 0, publisher.ErrNotConnected
	}

	err := k.writer.WriteMessages(ctx, kafka.Message{
		Topic: subject,
		Value: payload,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return 0, nil
}

// Connected reports whether the sink is usable.
func (k *KafkaSink) Connected() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return !k.closed
}

// Close flushes buffered writes and releases the writer. Idempotent.
func (k *KafkaSink) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	k.mu.Unlock()

	return k.writer.Close()
}
