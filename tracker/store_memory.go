package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests. Semantics match the SQL
// stores; nothing survives the process.
type MemoryStore struct {
	mu      sync.Mutex
	rows    map[string]*ProgramRecord
	nowFunc func() time.Time

	// FailNext, when set, fails the next mutating operation with this error.
	FailNext error
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*ProgramRecord), nowFunc: time.Now}
}

// SetNow overrides the clock, for deterministic tests.
func (m *MemoryStore) SetNow(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFunc = now
}

func (m *MemoryStore) takeFailure() error {
	err := m.FailNext
	m.FailNext = nil
	return err
}

func (m *MemoryStore) EnsureExists(_ context.Context, program string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if _, ok := m.rows[program]; ok {
		return nil
	}
	now := m.nowFunc()
	m.rows[program] = &ProgramRecord{
		ProgramName: program,
		Status:      StatusInitialized,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return nil
}

func (m *MemoryStore) Get(_ context.Context, program string) (*ProgramRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[program]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *MemoryStore) Watermark(_ context.Context, program string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[program]
	if !ok || rec.LastSuccessfulTime == nil {
		return nil, nil
	}
	t := *rec.LastSuccessfulTime
	return &t, nil
}

func (m *MemoryStore) MarkSuccess(_ context.Context, program string, confirmedTime time.Time, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	rec, ok := m.rows[program]
	if !ok {
		return fmt.Errorf("%s: %w", program, ErrNoCheckpoint)
	}
	now := m.nowFunc()
	t := confirmedTime
	rec.LastSuccessfulTime = &t
	rec.LastRunTime = &now
	rec.Status = StatusSuccess
	rec.RecordsProcessed += delta
	rec.ErrorMessage = ""
	rec.UpdatedAt = now
	return nil
}

func (m *MemoryStore) MarkFailure(_ context.Context, program string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	rec, ok := m.rows[program]
	if !ok {
		return fmt.Errorf("%s: %w", program, ErrNoCheckpoint)
	}
	now := m.nowFunc()
	rec.LastRunTime = &now
	rec.Status = StatusFailed
	rec.ErrorMessage = truncateError(message)
	rec.UpdatedAt = now
	return nil
}

func (m *MemoryStore) Close() error { return nil }
