package publisher

import (
	"context"
	"errors"

	"github.com/intimehq/txlog-publisher/txlog"
)

// ErrNotConnected is returned when a publish is attempted against a sink
// whose connection has not been established or has been released.
var ErrNotConnected = errors.New("sink not connected")

// Sink is a destination for wire events (e.g. NATS JetStream, Kafka).
type Sink interface {
	// Publish sends one payload and returns the bus acknowledgment sequence.
	// A nil error means the bus durably accepted the message.
	Publish(ctx context.Context, subject string, payload []byte) (uint64, error)
	// Connected reports whether the sink holds a usable connection.
	Connected() bool
	// Close drains in-flight sends and releases the connection. Safe to call
	// more than once and from concurrent goroutines.
	Close() error
}

// Outcome is the result of publishing one batch. Confirmed plus the failed
// list always account for every input event.
type Outcome struct {
	Confirmed int
	Failed    []txlog.Event
}
