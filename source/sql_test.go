package source

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intimehq/txlog-publisher/publisher"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE TXLOG_EVENTS (
			ID INTEGER PRIMARY KEY,
			CASE_ID VARCHAR(32),
			EVENT_TYPE VARCHAR(64),
			EVENT_DATA TEXT,
			CREATED_AT DATETIME NOT NULL
		)`)
	require.NoError(t, err)

	store, err := NewWithDB(db, DefaultTableConfig())
	require.NoError(t, err)
	return store
}

func insertEvent(t *testing.T, s *SQLStore, id int, caseID, eventType string, createdAt time.Time) {
	t.Helper()
	_, err := s.db.Exec(
		`INSERT INTO TXLOG_EVENTS (ID, CASE_ID, EVENT_TYPE, EVENT_DATA, CREATED_AT) VALUES (?, ?, ?, ?, ?)`,
		id, caseID, eventType, `{"k":"v"}`, createdAt)
	require.NoError(t, err)
}

func TestNewWithDB_Validation(t *testing.T) {
	_, err := NewWithDB(nil, TableConfig{})
	assert.Error(t, err)
}

func TestFetchSince_NilWatermarkReturnsAll(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	insertEvent(t, s, 1, "C-1", "CASE_UPDATE", base)
	insertEvent(t, s, 2, "C-2", "CASE_CLOSE", base.Add(time.Minute))
	insertEvent(t, s, 3, "C-1", "CASE_UPDATE", base.Add(2*time.Minute))

	records, err := s.FetchSince(context.Background(), nil, 100)
	require.NoError(t, err)
	require.Len(t, records, 3)

	// Ascending creation order, field order preserved from the table
	id, ok := records[0].Get("ID")
	require.True(t, ok)
	assert.Equal(t, "1", id.Text())
	assert.Equal(t, "ID", records[0][0].Name)
	assert.Equal(t, "CASE_ID", records[0][1].Name)
}

func TestFetchSince_StrictlyAfterWatermark(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	insertEvent(t, s, 1, "C-1", "CASE_UPDATE", base)
	insertEvent(t, s, 2, "C-2", "CASE_UPDATE", base.Add(time.Minute))

	// Watermark equal to the first record's time excludes it
	records, err := s.FetchSince(context.Background(), &base, 100)
	require.NoError(t, err)
	require.Len(t, records, 1)
	id, _ := records[0].Get("ID")
	assert.Equal(t, "2", id.Text())
}

func TestFetchSince_RespectsLimit(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	for i := 1; i <= 10; i++ {
		insertEvent(t, s, i, "C-1", "CASE_UPDATE", base.Add(time.Duration(i)*time.Second))
	}

	records, err := s.FetchSince(context.Background(), nil, 4)
	require.NoError(t, err)
	require.Len(t, records, 4)

	// Limit takes the oldest rows first
	id, _ := records[3].Get("ID")
	assert.Equal(t, "4", id.Text())
}

func TestFetchSince_Empty(t *testing.T) {
	s := newTestStore(t)
	records, err := s.FetchSince(context.Background(), nil, 100)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchByCase(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	insertEvent(t, s, 1, "C-1", "CASE_OPEN", base)
	insertEvent(t, s, 2, "C-2", "CASE_OPEN", base.Add(time.Second))
	insertEvent(t, s, 3, "C-1", "CASE_CLOSE", base.Add(2*time.Second))

	records, err := s.FetchByCase(context.Background(), "C-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	et, _ := records[1].Get("EVENT_TYPE")
	assert.Equal(t, "CASE_CLOSE", et.Text())
}

func TestFetchByType(t *testing.T) {
	s := newTestStore(t)
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	insertEvent(t, s, 1, "C-1", "CASE_OPEN", base)
	insertEvent(t, s, 2, "C-2", "CASE_UPDATE", base.Add(time.Second))
	insertEvent(t, s, 3, "C-3", "CASE_UPDATE", base.Add(2*time.Second))

	records, err := s.FetchByType(context.Background(), "CASE_UPDATE", &base, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	records, err = s.FetchByType(context.Background(), "CASE_UPDATE", nil, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestPingWithRetry(t *testing.T) {
	policy, err := publisher.NewBackoffPolicy(time.Millisecond, 2*time.Millisecond, 2.0)
	require.NoError(t, err)

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	assert.NoError(t, pingWithRetry(db, policy))

	require.NoError(t, db.Close())
	err = pingWithRetry(db, policy)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exhausted")
}
