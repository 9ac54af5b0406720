package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/alexanderramin/crq/internal/db"
	"github.com/stretchr/testify/require"
)

// NewTestDB returns a migrated in-memory database closed at test cleanup.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDB(db.MemoryPath)
	require.NoError(t, err, "opening in-memory test database")
	t.Cleanup(func() { database.Close() })
	return database
}

// NewFileTestDB returns a migrated WAL database under t.TempDir. Every pooled
// connection sees the same data, so concurrency tests need this one.
func NewFileTestDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.OpenDB(filepath.Join(t.TempDir(), "crq.db"))
	require.NoError(t, err, "opening file test database")
	t.Cleanup(func() { database.Close() })
	return database
}

func NewTestUoW(database *sql.DB) db.UnitOfWork {
	return db.NewSQLiteUnitOfWork(database)
}

// RetryBusy reruns fn with exponential backoff while SQLite reports lock
// contention. Any other result, including a version conflict, returns at once.
func RetryBusy(fn func() error) error {
	const maxRetries = 10
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err = fn()
		if !db.IsBusy(err) {
			return err
		}
		time.Sleep(time.Millisecond * time.Duration(1<<attempt))
	}
	return err
}
