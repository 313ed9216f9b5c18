package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/intimehq/txlog-publisher/publisher"
)

// Initial ping retry budget. Databases restarting alongside the publisher
// are the common transient here.
const connectRetries = 3

func pingWithRetry(db *sql.DB, policy publisher.BackoffPolicy) error {
	return publisher.Retry(context.Background(), policy, connectRetries, db.Ping)
}

// NewMySQLStore opens a MariaDB/MySQL-backed checkpoint store. parseTime is
// forced on so DATETIME columns scan into time.Time.
func NewMySQLStore(dsn string, poolSize int) (*SQLStore, error) {
	if !strings.Contains(dsn, "parseTime=") {
		if strings.Contains(dsn, "?") {
			dsn += "&parseTime=true"
		} else {
			dsn += "?parseTime=true"
		}
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint database: %w", err)
	}
	if poolSize < 1 {
		poolSize = 1
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)
	db.SetConnMaxLifetime(5 * time.Minute)

	policy, err := publisher.NewBackoffPolicy(time.Second, 5*time.Second, 2.0)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := pingWithRetry(db, policy); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach checkpoint database: %w", err)
	}

	return newSQLStore(db)
}
