package sink

import (
	"context"
	"sync"

	"github.com/intimehq/txlog-publisher/publisher"
)

// MockSink is an in-memory Sink for tests. Failures can be scripted per
// call or per payload.
type MockSink struct {
	mu           sync.Mutex
	messages     []MockMessage
	seq          uint64
	disconnected bool
	closeCount   int

	// PublishErr, when set, fails every publish.
	PublishErr error
	// FailFirst fails the first N publish calls, then succeeds.
	FailFirst int
	// FailPayloads permanently fails any publish whose payload matches a key.
	FailPayloads map[string]error
}

// MockMessage is one accepted publish.
type MockMessage struct {
	Subject string
	Payload []byte
}

var _ publisher.Sink = (*MockSink)(nil)

// Publish records the message unless a scripted failure applies.
func (m *MockSink) Publish(_ context.Context, subject string, payload []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disconnected {
		return 0, publisher.ErrNotConnected
	}
	if m.PublishErr != nil {
		return 0, m.PublishErr
	}
	if m.FailFirst > 0 {
		m.FailFirst--
		return 0, errMockTransient
	}
	if err, ok := m.FailPayloads[string(payload)]; ok {
		return 0, err
	}

	m.seq++
	m.messages = append(m.messages, MockMessage{Subject: subject, Payload: payload})
	return m.seq, nil
}

// Connected reports the scripted connection state.
func (m *MockSink) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.disconnected
}

// Disconnect makes subsequent publishes fail with ErrNotConnected.
func (m *MockSink) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = true
}

// Close marks the sink disconnected and counts invocations.
func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnected = true
	m.closeCount++
	return nil
}

// Messages returns a copy of the accepted publishes.
func (m *MockSink) Messages() []MockMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

// CloseCount returns how many times Close has been called.
func (m *MockSink) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

type mockError string

func (e mockError) Error() string { return string(e) }

const errMockTransient = mockError("mock transient publish failure")
