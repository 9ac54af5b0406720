package repository

import (
	"context"
	"fmt"

	"github.com/alexanderramin/crq/internal/db"
)

// SQLiteRequestSequenceRepo allocates per-year request numbers atomically
// using the request_sequences table.
type SQLiteRequestSequenceRepo struct {
	db db.DBTX
}

// NewSQLiteRequestSequenceRepo creates a new SQLiteRequestSequenceRepo.
func NewSQLiteRequestSequenceRepo(conn db.DBTX) *SQLiteRequestSequenceRepo {
	return &SQLiteRequestSequenceRepo{db: conn}
}

// NextRequestSeq returns the next sequence value for year. Allocation is
// atomic and safe under concurrent writes; a rolled-back transaction
// returns its value to the pool.
func (r *SQLiteRequestSequenceRepo) NextRequestSeq(ctx context.Context, year int) (int, error) {
	seedQuery := `INSERT OR IGNORE INTO request_sequences (year, next_seq)
		SELECT ?, COALESCE(MAX(CAST(substr(number, 9) AS INTEGER)), 0) + 1
		FROM change_requests
		WHERE number GLOB ?`
	if _, err := r.db.ExecContext(ctx, seedQuery, year, fmt.Sprintf("CR-%04d-[0-9]*", year)); err != nil {
		return 0, fmt.Errorf("seeding request sequence for %d: %w", year, err)
	}

	var next int
	allocQuery := `UPDATE request_sequences
		SET next_seq = next_seq + 1
		WHERE year = ?
		RETURNING next_seq - 1`
	if err := r.db.QueryRowContext(ctx, allocQuery, year).Scan(&next); err != nil {
		return 0, fmt.Errorf("allocating next request seq for %d: %w", year, err)
	}
	return next, nil
}
