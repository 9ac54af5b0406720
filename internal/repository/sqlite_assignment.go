package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alexanderramin/crq/internal/db"
	"github.com/alexanderramin/crq/internal/domain"
)

// SQLiteAssignmentRepo implements AssignmentRepo using a SQLite database.
type SQLiteAssignmentRepo struct {
	db db.DBTX
}

// NewSQLiteAssignmentRepo creates a new SQLiteAssignmentRepo.
func NewSQLiteAssignmentRepo(conn db.DBTX) *SQLiteAssignmentRepo {
	return &SQLiteAssignmentRepo{db: conn}
}

const assignmentColumns = `id, change_request_id, assignee_id, role, notes, status, assigned_at, updated_at`

func (r *SQLiteAssignmentRepo) Create(ctx context.Context, a *domain.Assignment) error {
	query := `INSERT INTO assignments (` + assignmentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.ChangeRequestID,
		a.AssigneeID,
		a.Role,
		a.Notes,
		string(a.Status),
		formatTime(a.AssignedAt),
		formatTime(a.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting assignment: %w", err)
	}
	return nil
}

func (r *SQLiteAssignmentRepo) GetByID(ctx context.Context, id string) (*domain.Assignment, error) {
	a, err := scanAssignment(r.db.QueryRowContext(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("assignment", id)
	}
	return a, err
}

func (r *SQLiteAssignmentRepo) Update(ctx context.Context, a *domain.Assignment) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE assignments SET role = ?, notes = ?, status = ?, updated_at = ? WHERE id = ?`,
		a.Role, a.Notes, string(a.Status), formatTime(a.UpdatedAt), a.ID)
	if err != nil {
		return fmt.Errorf("updating assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("assignment", a.ID)
	}
	return nil
}

func (r *SQLiteAssignmentRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM assignments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting assignment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("assignment", id)
	}
	return nil
}

func (r *SQLiteAssignmentRepo) ListByChangeRequest(ctx context.Context, changeRequestID string) ([]*domain.Assignment, error) {
	return r.list(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE change_request_id = ? ORDER BY assigned_at, id`, changeRequestID)
}

func (r *SQLiteAssignmentRepo) ListByAssignee(ctx context.Context, assigneeID string) ([]*domain.Assignment, error) {
	return r.list(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE assignee_id = ? ORDER BY assigned_at, id`, assigneeID)
}

func (r *SQLiteAssignmentRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Assignment, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing assignments: %w", err)
	}
	defer rows.Close()

	var out []*domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating assignments: %w", err)
	}
	return out, nil
}

func scanAssignment(s rowScanner) (*domain.Assignment, error) {
	var a domain.Assignment
	var status, assignedAt, updatedAt string

	err := s.Scan(&a.ID, &a.ChangeRequestID, &a.AssigneeID, &a.Role, &a.Notes, &status, &assignedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning assignment: %w", err)
	}
	a.Status = domain.AssignmentStatus(status)
	if a.AssignedAt, err = parseTime("assigned_at", assignedAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
