package db_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/alexanderramin/crq/internal/db"
	"github.com/alexanderramin/crq/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFileDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.OpenDB(filepath.Join(t.TempDir(), "tx.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func userCount(t *testing.T, conn *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	return n
}

func insertUser(ctx context.Context, tx db.DBTX, name string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO users (id, username, created_at, updated_at) VALUES (?, ?, '2026-01-01T00:00:00Z', '2026-01-01T00:00:00Z')`,
		name, name)
	return err
}

func TestWithinTx_Commit(t *testing.T) {
	conn, err := db.OpenDB(db.MemoryPath)
	require.NoError(t, err)
	defer conn.Close()

	uow := db.NewSQLiteUnitOfWork(conn)
	err = uow.WithinTx(context.Background(), func(ctx context.Context, tx db.DBTX) error {
		return insertUser(ctx, tx, "alice")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, userCount(t, conn))
}

func TestWithinTx_RollbackOnError(t *testing.T) {
	conn := openFileDB(t)
	uow := db.NewSQLiteUnitOfWork(conn)
	boom := errors.New("boom")

	err := uow.WithinTx(context.Background(), func(ctx context.Context, tx db.DBTX) error {
		require.NoError(t, insertUser(ctx, tx, "alice"))
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, domain.ErrConflict))
	assert.Equal(t, 0, userCount(t, conn))
}

func TestWithinTx_RollbackOnPanic(t *testing.T) {
	conn := openFileDB(t)
	uow := db.NewSQLiteUnitOfWork(conn)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = uow.WithinTx(context.Background(), func(ctx context.Context, tx db.DBTX) error {
			require.NoError(t, insertUser(ctx, tx, "alice"))
			panic("kaboom")
		})
	})
	assert.Equal(t, 0, userCount(t, conn))

	// The pool is still usable after the panic.
	require.NoError(t, uow.WithinTx(context.Background(), func(ctx context.Context, tx db.DBTX) error {
		return insertUser(ctx, tx, "bob")
	}))
	assert.Equal(t, 1, userCount(t, conn))
}

func TestWithinTx_ForeignKeysOnEveryConnection(t *testing.T) {
	conn := openFileDB(t)
	conn.SetMaxIdleConns(4)
	ctx := context.Background()

	// Hold several connections at once so the pool has to open fresh ones.
	var held []*sql.Conn
	for i := 0; i < 3; i++ {
		c, err := conn.Conn(ctx)
		require.NoError(t, err)
		held = append(held, c)
	}
	for i, c := range held {
		var fk int
		require.NoError(t, c.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk))
		assert.Equalf(t, 1, fk, "connection %d", i)
		require.NoError(t, c.Close())
	}
}

func TestWithinTx_BusyIsConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busy.db")
	holder, err := db.OpenDB(path)
	require.NoError(t, err)
	defer holder.Close()

	contender, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(0)&_txlock=immediate")
	require.NoError(t, err)
	defer contender.Close()

	ctx := context.Background()
	lock, err := holder.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, insertUser(ctx, lock, "holder"))
	defer lock.Rollback()

	err = db.NewSQLiteUnitOfWork(contender).WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		return insertUser(ctx, tx, "contender")
	})
	require.Error(t, err)
	assert.True(t, db.IsBusy(err), "driver error still reachable: %v", err)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.True(t, domain.Retryable(err))
}

func TestIsBusy(t *testing.T) {
	assert.False(t, db.IsBusy(nil))
	assert.False(t, db.IsBusy(errors.New("database is locked")))
	assert.False(t, db.IsBusy(fmt.Errorf("wrapped: %w", domain.ErrConflict)))
}
