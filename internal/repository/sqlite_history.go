package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alexanderramin/crq/internal/db"
	"github.com/alexanderramin/crq/internal/domain"
)

// SQLiteHistoryRepo implements HistoryRepo. Rows are never updated or deleted
// except through the cascade when a draft is removed.
type SQLiteHistoryRepo struct {
	db db.DBTX
}

// NewSQLiteHistoryRepo creates a new SQLiteHistoryRepo.
func NewSQLiteHistoryRepo(conn db.DBTX) *SQLiteHistoryRepo {
	return &SQLiteHistoryRepo{db: conn}
}

func (r *SQLiteHistoryRepo) Append(ctx context.Context, h *domain.History) error {
	changes := h.Changes
	if changes == nil {
		changes = []domain.FieldChange{}
	}
	raw, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("encoding history changes: %w", err)
	}
	query := `INSERT INTO history (id, change_request_id, user_id, action_type, description, changes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		h.ID, h.ChangeRequestID, h.UserID, string(h.ActionType), h.Description, string(raw), formatTime(h.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting history: %w", err)
	}
	return nil
}

// ListByChangeRequest returns the audit trail newest first.
func (r *SQLiteHistoryRepo) ListByChangeRequest(ctx context.Context, changeRequestID string) ([]*domain.History, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, change_request_id, user_id, action_type, description, changes, created_at
		FROM history WHERE change_request_id = ? ORDER BY created_at DESC, rowid DESC`, changeRequestID)
	if err != nil {
		return nil, fmt.Errorf("listing history: %w", err)
	}
	defer rows.Close()

	var out []*domain.History
	for rows.Next() {
		var h domain.History
		var action, raw, createdAt string
		if err := rows.Scan(&h.ID, &h.ChangeRequestID, &h.UserID, &action, &h.Description, &raw, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		h.ActionType = domain.ActionType(action)
		if err := json.Unmarshal([]byte(raw), &h.Changes); err != nil {
			return nil, fmt.Errorf("decoding history changes: %w", err)
		}
		if h.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		out = append(out, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history: %w", err)
	}
	return out, nil
}
