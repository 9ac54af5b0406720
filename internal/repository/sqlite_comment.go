package repository

import (
	"context"
	"fmt"

	"github.com/alexanderramin/crq/internal/db"
	"github.com/alexanderramin/crq/internal/domain"
)

// SQLiteCommentRepo implements CommentRepo using a SQLite database.
type SQLiteCommentRepo struct {
	db db.DBTX
}

// NewSQLiteCommentRepo creates a new SQLiteCommentRepo.
func NewSQLiteCommentRepo(conn db.DBTX) *SQLiteCommentRepo {
	return &SQLiteCommentRepo{db: conn}
}

func (r *SQLiteCommentRepo) Create(ctx context.Context, c *domain.Comment) error {
	query := `INSERT INTO comments (id, change_request_id, author_id, text, is_internal, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		c.ID, c.ChangeRequestID, c.AuthorID, c.Text, boolToInt(c.IsInternal), formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting comment: %w", err)
	}
	return nil
}

// ListByChangeRequest returns comments oldest first.
func (r *SQLiteCommentRepo) ListByChangeRequest(ctx context.Context, changeRequestID string) ([]*domain.Comment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, change_request_id, author_id, text, is_internal, created_at
		FROM comments WHERE change_request_id = ? ORDER BY created_at, rowid`, changeRequestID)
	if err != nil {
		return nil, fmt.Errorf("listing comments: %w", err)
	}
	defer rows.Close()

	var out []*domain.Comment
	for rows.Next() {
		var c domain.Comment
		var internal int
		var createdAt string
		if err := rows.Scan(&c.ID, &c.ChangeRequestID, &c.AuthorID, &c.Text, &internal, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning comment: %w", err)
		}
		c.IsInternal = intToBool(internal)
		if c.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating comments: %w", err)
	}
	return out, nil
}
