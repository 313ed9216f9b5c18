package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// checkpointSchema works for both MariaDB and SQLite. Bare DATETIME keeps the
// sqlite3 driver's time conversion working; second precision on the watermark
// only widens the re-fetch window, which at-least-once delivery tolerates.
const checkpointSchema = `
CREATE TABLE IF NOT EXISTS ETL_PRMREC (
	PROGRAM_NAME         VARCHAR(128) NOT NULL PRIMARY KEY,
	LAST_SUCCESSFUL_TIME DATETIME NULL,
	LAST_RUN_TIME        DATETIME NULL,
	STATUS               VARCHAR(16) NOT NULL,
	RECORDS_PROCESSED    BIGINT NOT NULL DEFAULT 0,
	ERROR_MESSAGE        VARCHAR(500) NULL,
	CREATED_AT           DATETIME NOT NULL,
	UPDATED_AT           DATETIME NOT NULL
)`

// SQLStore implements Store over database/sql. The driver is chosen by the
// constructor (MariaDB or SQLite); statements stick to the portable subset.
type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLStore)(nil)

// newSQLStore initializes the schema and wraps the handle.
func newSQLStore(db *sql.DB) (*SQLStore, error) {
	if _, err := db.Exec(checkpointSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create checkpoint schema: %w", err)
	}
	return &SQLStore{db: db, now: time.Now}, nil
}

func (s *SQLStore) EnsureExists(ctx context.Context, program string) error {
	rec, err := s.Get(ctx, program)
	if err != nil {
		return err
	}
	if rec != nil {
		log.Debug().Str("program", program).Msg("Checkpoint row exists")
		return nil
	}

	now := s.now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO ETL_PRMREC (PROGRAM_NAME, STATUS, CREATED_AT, UPDATED_AT)
		VALUES (?, ?, ?, ?)`,
		program, string(StatusInitialized), now, now)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint row for %s: %w", program, err)
	}
	log.Info().Str("program", program).Msg("Created checkpoint row")
	return nil
}

func (s *SQLStore) Get(ctx context.Context, program string) (*ProgramRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT PROGRAM_NAME, LAST_SUCCESSFUL_TIME, LAST_RUN_TIME, STATUS,
		       RECORDS_PROCESSED, ERROR_MESSAGE, CREATED_AT, UPDATED_AT
		FROM ETL_PRMREC
		WHERE PROGRAM_NAME = ?`, program)

	var (
		rec        ProgramRecord
		lastOK     sql.NullTime
		lastRun    sql.NullTime
		status     string
		errMessage sql.NullString
	)
	err := row.Scan(&rec.ProgramName, &lastOK, &lastRun, &status,
		&rec.RecordsProcessed, &errMessage, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint row for %s: %w", program, err)
	}

	rec.Status = Status(status)
	rec.ErrorMessage = errMessage.String
	if lastOK.Valid {
		t := lastOK.Time
		rec.LastSuccessfulTime = &t
	}
	if lastRun.Valid {
		t := lastRun.Time
		rec.LastRunTime = &t
	}
	return &rec, nil
}

func (s *SQLStore) Watermark(ctx context.Context, program string) (*time.Time, error) {
	rec, err := s.Get(ctx, program)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.LastSuccessfulTime == nil {
		log.Debug().Str("program", program).Msg("No watermark recorded yet")
		return nil, nil
	}
	return rec.LastSuccessfulTime, nil
}

func (s *SQLStore) MarkSuccess(ctx context.Context, program string, confirmedTime time.Time, delta int64) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE ETL_PRMREC
		SET LAST_SUCCESSFUL_TIME = ?,
		    LAST_RUN_TIME = ?,
		    STATUS = ?,
		    RECORDS_PROCESSED = RECORDS_PROCESSED + ?,
		    ERROR_MESSAGE = NULL,
		    UPDATED_AT = ?
		WHERE PROGRAM_NAME = ?`,
		confirmedTime, now, string(StatusSuccess), delta, now, program)
	if err != nil {
		return fmt.Errorf("failed to mark success for %s: %w", program, err)
	}
	if err := oneRowUpdated(res, program); err != nil {
		return err
	}
	log.Info().
		Str("program", program).
		Time("watermark", confirmedTime).
		Int64("records", delta).
		Msg("Checkpoint advanced")
	return nil
}

func (s *SQLStore) MarkFailure(ctx context.Context, program string, message string) error {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE ETL_PRMREC
		SET LAST_RUN_TIME = ?,
		    STATUS = ?,
		    ERROR_MESSAGE = ?,
		    UPDATED_AT = ?
		WHERE PROGRAM_NAME = ?`,
		now, string(StatusFailed), truncateError(message), now, program)
	if err != nil {
		return fmt.Errorf("failed to mark failure for %s: %w", program, err)
	}
	if err := oneRowUpdated(res, program); err != nil {
		return err
	}
	log.Info().Str("program", program).Msg("Checkpoint marked failed")
	return nil
}

// oneRowUpdated rejects an UPDATE that matched no checkpoint row, which
// would otherwise pass for a successful write.
func oneRowUpdated(res sql.Result, program string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for %s: %w", program, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", program, ErrNoCheckpoint)
	}
	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
