package sink

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/intimehq/txlog-publisher/publisher"
)

// Default NATS connection behavior.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultMaxReconnects  = 60
	DefaultReconnectWait  = 2 * time.Second
	DefaultDrainTimeout   = 30 * time.Second
)

// NatsConfig holds connection and stream settings for the JetStream sink.
type NatsConfig struct {
	Servers        []string
	Username       string
	Password       string
	ConnectTimeout time.Duration
	MaxReconnects  int
	ReconnectWait  time.Duration
	StreamName     string
	Subjects       []string
}

// NatsSink publishes events to NATS JetStream. Publish returns the stream
// sequence from the JetStream acknowledgment, so a nil error means the
// message is durably stored.
type NatsSink struct {
	config  NatsConfig
	nc      *nats.Conn
	js      jetstream.JetStream
	drained chan struct{}

	mu     sync.Mutex
	closed bool
}

var _ publisher.Sink = (*NatsSink)(nil)

// NewNatsSink builds an unconnected sink. Call Connect before publishing.
func NewNatsSink(config NatsConfig) (*NatsSink, error) {
	if len(config.Servers) == 0 {
		return nil, fmt.Errorf("nats sink requires at least one server URL")
	}
	if config.StreamName == "" {
		return nil, fmt.Errorf("nats sink requires a stream name")
	}
	if len(config.Subjects) == 0 {
		return nil, fmt.Errorf("nats sink requires at least one subject")
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.MaxReconnects == 0 {
		config.MaxReconnects = DefaultMaxReconnects
	}
	if config.ReconnectWait <= 0 {
		config.ReconnectWait = DefaultReconnectWait
	}
	return &NatsSink{config: config}, nil
}

// Connect establishes the connection, the JetStream context, and provisions
// the stream idempotently.
func (n *NatsSink) Connect(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return fmt.Errorf("sink already closed")
	}
	if n.nc != nil {
		return nil
	}

	drained := make(chan struct{})
	opts := []nats.Option{
		nats.Timeout(n.config.ConnectTimeout),
		nats.MaxReconnects(n.config.MaxReconnects),
		nats.ReconnectWait(n.config.ReconnectWait),
		nats.DrainTimeout(DefaultDrainTimeout),
		nats.ClosedHandler(func(*nats.Conn) { close(drained) }),
	}
	if n.config.Username != "" {
		opts = append(opts, nats.UserInfo(n.config.Username, n.config.Password))
	}

	nc, err := nats.Connect(strings.Join(n.config.Servers, ","), opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	// CreateOrUpdateStream is idempotent: an existing stream is left alone
	// apart from subject reconciliation.
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      n.config.StreamName,
		Subjects:  n.config.Subjects,
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to ensure stream %s: %w", n.config.StreamName, err)
	}

	n.nc = nc
	n.js = js
	n.drained = drained

	log.Info().
		Strs("servers", n.config.Servers).
		Str("stream", n.config.StreamName).
		Strs("subjects", n.config.Subjects).
		Msg("Connected to NATS JetStream")
	return nil
}

// Connected reports whether the sink holds a live connection.
func (n *NatsSink) Connected() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nc != nil && !n.closed && n.nc.IsConnected()
}

// Publish sends one payload and returns the JetStream stream sequence.
func (n *NatsSink) Publish(ctx context.Context, subject string, payload []byte) (uint64, error) {
	n.mu.Lock()
	js := n.js
	closed := n.closed
	n.mu.Unlock()

	if js == nil || closed {
		return 0, publisher.ErrNotConnected
	}

	ack, err := js.Publish(ctx, subject, payload)
	if err != nil {
		return 0, fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return ack.Sequence, nil
}

// Close drains in-flight sends before releasing the connection. Idempotent
// and safe under concurrent callers; only the first call releases.
func (n *NatsSink) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	nc := n.nc
	drained := n.drained
	n.nc = nil
	n.js = nil
	n.mu.Unlock()

	if nc == nil {
		return nil
	}
	if err := nc.Drain(); err != nil {
		nc.Close()
		return fmt.Errorf("failed to drain NATS connection: %w", err)
	}

	// Drain completes asynchronously; wait for the closed callback so
	// in-flight sends are flushed before the connection is released.
	select {
	case <-drained:
	case <-time.After(DefaultDrainTimeout + time.Second):
		nc.Close()
	}
	log.Info().Msg("NATS connection drained and closed")
	return nil
}
