// Package source reads transaction-log records from the relational store.
// Records come back as ordered field maps so arbitrary source schemas pass
// through the pipeline untouched.
package source

import (
	"context"
	"time"

	"github.com/intimehq/txlog-publisher/txlog"
)

// Store fetches transaction-log records.
type Store interface {
	// FetchSince returns up to limit records with creation time strictly
	// after since, in ascending creation order. A nil since means from the
	// beginning of time.
	FetchSince(ctx context.Context, since *time.Time, limit int) ([]txlog.Record, error)
	// FetchByCase returns every record for one case, ascending.
	FetchByCase(ctx context.Context, caseID string) ([]txlog.Record, error)
	// FetchByType returns records of one event type, optionally bounded
	// below by since, up to limit rows.
	FetchByType(ctx context.Context, eventType string, since *time.Time, limit int) ([]txlog.Record, error)
	Close() error
}
