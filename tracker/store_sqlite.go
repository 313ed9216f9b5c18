package tracker

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteStore opens a SQLite-backed checkpoint store for single-binary
// deployments and tests. WAL keeps checkpoint writes durable without
// serializing them behind readers.
func NewSQLiteStore(path string) (*SQLStore, error) {
	isMemoryDB := strings.Contains(path, ":memory:")

	dsn := path
	if !isMemoryDB {
		if strings.Contains(dsn, "?") {
			dsn += "&_journal_mode=WAL&_busy_timeout=5000"
		} else {
			dsn += "?_journal_mode=WAL&_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if !isMemoryDB {
		if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
		}
	}

	return newSQLStore(db)
}
