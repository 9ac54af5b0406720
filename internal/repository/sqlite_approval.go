package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alexanderramin/crq/internal/db"
	"github.com/alexanderramin/crq/internal/domain"
)

// SQLiteApprovalRepo implements ApprovalRepo using a SQLite database.
type SQLiteApprovalRepo struct {
	db db.DBTX
}

// NewSQLiteApprovalRepo creates a new SQLiteApprovalRepo.
func NewSQLiteApprovalRepo(conn db.DBTX) *SQLiteApprovalRepo {
	return &SQLiteApprovalRepo{db: conn}
}

const approvalColumns = `id, change_request_id, approver_id, type, status, comments, requested_at, actioned_at`

func (r *SQLiteApprovalRepo) Create(ctx context.Context, a *domain.Approval) error {
	query := `INSERT INTO approvals (` + approvalColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		a.ID,
		a.ChangeRequestID,
		a.ApproverID,
		string(a.Type),
		string(a.Status),
		a.Comments,
		formatTime(a.RequestedAt),
		nullableTimeToString(a.ActionedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting approval: %w", err)
	}
	return nil
}

// Update records the decision on a pending approval. An approval that was
// already actioned by a concurrent writer yields domain.ErrConflict.
func (r *SQLiteApprovalRepo) Update(ctx context.Context, a *domain.Approval) error {
	query := `UPDATE approvals SET status = ?, comments = ?, actioned_at = ?
		WHERE id = ? AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query,
		string(a.Status),
		a.Comments,
		nullableTimeToString(a.ActionedAt),
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("updating approval: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("approval %s already actioned: %w", a.ID, domain.ErrConflict)
	}
	return nil
}

func (r *SQLiteApprovalRepo) ListByChangeRequest(ctx context.Context, changeRequestID string) ([]*domain.Approval, error) {
	return r.list(ctx, `SELECT `+approvalColumns+` FROM approvals WHERE change_request_id = ? ORDER BY requested_at, id`, changeRequestID)
}

func (r *SQLiteApprovalRepo) FindPending(ctx context.Context, changeRequestID, approverID string, typ domain.ApprovalType) (*domain.Approval, error) {
	query := `SELECT ` + approvalColumns + ` FROM approvals
		WHERE change_request_id = ? AND approver_id = ? AND type = ? AND status = 'pending'
		ORDER BY requested_at LIMIT 1`
	a, err := scanApproval(r.db.QueryRowContext(ctx, query, changeRequestID, approverID, string(typ)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pending %s approval for %s: %w", typ, approverID, domain.ErrNotFound)
	}
	return a, err
}

func (r *SQLiteApprovalRepo) ListPendingByApprover(ctx context.Context, approverID string) ([]*domain.Approval, error) {
	return r.list(ctx, `SELECT `+approvalColumns+` FROM approvals
		WHERE approver_id = ? AND status = 'pending' ORDER BY requested_at, id`, approverID)
}

func (r *SQLiteApprovalRepo) list(ctx context.Context, query string, args ...any) ([]*domain.Approval, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing approvals: %w", err)
	}
	defer rows.Close()

	var out []*domain.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating approvals: %w", err)
	}
	return out, nil
}

func scanApproval(s rowScanner) (*domain.Approval, error) {
	var a domain.Approval
	var typ, status, requestedAt string
	var actionedAt sql.NullString

	err := s.Scan(&a.ID, &a.ChangeRequestID, &a.ApproverID, &typ, &status, &a.Comments, &requestedAt, &actionedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning approval: %w", err)
	}
	a.Type = domain.ApprovalType(typ)
	a.Status = domain.ApprovalStatus(status)
	a.ActionedAt = parseNullableTime(actionedAt)
	if a.RequestedAt, err = parseTime("requested_at", requestedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
