package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/intimehq/txlog-publisher/txlog"
)

// TableConfig names the transaction-log table and its well-known columns.
// Every other column passes through untouched.
type TableConfig struct {
	Table      string // e.g. "TXLOG_EVENTS"
	TimeColumn string // creation-time column, e.g. "CREATED_AT"
	TypeColumn string // classification column, e.g. "EVENT_TYPE"
	CaseColumn string // case identifier column, e.g. "CASE_ID"
}

// DefaultTableConfig matches the TXLOG_EVENTS layout.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		Table:      "TXLOG_EVENTS",
		TimeColumn: "CREATED_AT",
		TypeColumn: "EVENT_TYPE",
		CaseColumn: "CASE_ID",
	}
}

// beginningOfTime substitutes for an absent watermark.
var beginningOfTime = time.Unix(0, 0).UTC()

// SQLStore implements Store over database/sql with a configurable table
// layout. Rows are read with SELECT * and converted column by column, so the
// store has no compiled-in schema.
type SQLStore struct {
	db  *sql.DB
	cfg TableConfig
}

var _ Store = (*SQLStore)(nil)

// NewWithDB wraps an existing handle, for tests and exotic drivers.
func NewWithDB(db *sql.DB, cfg TableConfig) (*SQLStore, error) {
	if cfg.Table == "" || cfg.TimeColumn == "" {
		return nil, fmt.Errorf("source table and time column are required")
	}
	return &SQLStore{db: db, cfg: cfg}, nil
}

func (s *SQLStore) FetchSince(ctx context.Context, since *time.Time, limit int) ([]txlog.Record, error) {
	lower := beginningOfTime
	if since != nil {
		lower = *since
	}

	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s > ? ORDER BY %s ASC LIMIT ?`,
		s.cfg.Table, s.cfg.TimeColumn, s.cfg.TimeColumn)

	records, err := s.query(ctx, query, lower, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s since %v: %w", s.cfg.Table, lower, err)
	}
	log.Debug().
		Int("records", len(records)).
		Time("since", lower).
		Msg("Fetched transaction-log records")
	return records, nil
}

func (s *SQLStore) FetchByCase(ctx context.Context, caseID string) ([]txlog.Record, error) {
	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s = ? ORDER BY %s ASC`,
		s.cfg.Table, s.cfg.CaseColumn, s.cfg.TimeColumn)

	records, err := s.query(ctx, query, caseID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch case %s: %w", caseID, err)
	}
	return records, nil
}

func (s *SQLStore) FetchByType(ctx context.Context, eventType string, since *time.Time, limit int) ([]txlog.Record, error) {
	lower := beginningOfTime
	if since != nil {
		lower = *since
	}

	query := fmt.Sprintf(`SELECT * FROM %s WHERE %s = ? AND %s > ? ORDER BY %s ASC LIMIT ?`,
		s.cfg.Table, s.cfg.TypeColumn, s.cfg.TimeColumn, s.cfg.TimeColumn)

	records, err := s.query(ctx, query, eventType, lower, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events of type %s: %w", eventType, err)
	}
	return records, nil
}

// query runs a statement and converts each row into an ordered Record.
func (s *SQLStore) query(ctx context.Context, query string, args ...any) ([]txlog.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []txlog.Record
	for rows.Next() {
		raw := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range raw {
			dest[i] = &raw[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		rec := make(txlog.Record, 0, len(columns))
		for i, name := range columns {
			v, err := txlog.ValueOf(raw[i])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", name, err)
			}
			rec = append(rec, txlog.Field{Name: name, Value: v})
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
