// Package tracker owns the per-program checkpoint row: the watermark used as
// the lower bound for the next fetch, the outcome of the last run, and the
// cumulative processed count.
package tracker

import (
	"context"
	"errors"
	"time"
)

// ErrNoCheckpoint reports a mutation against a program whose checkpoint row
// was never created. EnsureExists must run first.
var ErrNoCheckpoint = errors.New("checkpoint row does not exist")

// Run status values stored in the checkpoint row.
type Status string

const (
	StatusInitialized Status = "INITIALIZED"
	StatusSuccess     Status = "SUCCESS"
	StatusFailed      Status = "FAILED"
)

// MaxErrorMessageLen bounds the stored failure description.
const MaxErrorMessageLen = 500

// ProgramRecord is one checkpoint row, keyed by program name.
type ProgramRecord struct {
	ProgramName        string
	LastSuccessfulTime *time.Time
	LastRunTime        *time.Time
	Status             Status
	RecordsProcessed   int64
	ErrorMessage       string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Store persists checkpoint rows. Every mutation is durable before the call
// returns. Store errors propagate unchanged: retry responsibility lives with
// the caller, not here.
type Store interface {
	// EnsureExists creates the program's row if absent. Idempotent.
	EnsureExists(ctx context.Context, program string) error
	// Get returns the program's row, or nil when it does not exist.
	Get(ctx context.Context, program string) (*ProgramRecord, error)
	// Watermark returns the last successful time, or nil when the program
	// has never completed a successful run.
	Watermark(ctx context.Context, program string) (*time.Time, error)
	// MarkSuccess advances the watermark to confirmedTime, records the run,
	// adds delta to the processed count, and clears any stored error.
	MarkSuccess(ctx context.Context, program string, confirmedTime time.Time, delta int64) error
	// MarkFailure records a failed run with a truncated message. The
	// watermark is left untouched.
	MarkFailure(ctx context.Context, program string, message string) error
	Close() error
}

// truncateError bounds a failure description for storage.
func truncateError(msg string) string {
	if len(msg) > MaxErrorMessageLen {
		return msg[:MaxErrorMessageLen]
	}
	return msg
}
