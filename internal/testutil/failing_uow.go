package testutil

import (
	"context"
	"database/sql"
	"sync"

	"github.com/alexanderramin/crq/internal/db"
)

// FailOnNthExecUoW runs a real SQLite transaction but makes the FailOn-th
// write (counting from 1) return Err. Reads are never counted. Statements
// that reached the database are kept in Executed for assertions.
type FailOnNthExecUoW struct {
	DB     *sql.DB
	FailOn int
	Err    error

	mu       sync.Mutex
	Executed []string
}

func (u *FailOnNthExecUoW) WithinTx(ctx context.Context, fn func(ctx context.Context, tx db.DBTX) error) error {
	return db.NewSQLiteUnitOfWork(u.DB).WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		return fn(ctx, &failOnNthExec{DBTX: tx, uow: u})
	})
}

// Writes returns how many statements were executed before the injected failure.
func (u *FailOnNthExecUoW) Writes() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.Executed)
}

type failOnNthExec struct {
	db.DBTX
	uow   *FailOnNthExecUoW
	count int
}

func (f *failOnNthExec) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	f.count++
	if f.count == f.uow.FailOn {
		return nil, f.uow.Err
	}
	f.uow.mu.Lock()
	f.uow.Executed = append(f.uow.Executed, query)
	f.uow.mu.Unlock()
	return f.DBTX.ExecContext(ctx, query, args...)
}
