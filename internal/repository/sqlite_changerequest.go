package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexanderramin/crq/internal/db"
	"github.com/alexanderramin/crq/internal/domain"
)

// SQLiteChangeRequestRepo implements ChangeRequestRepo using a SQLite database.
type SQLiteChangeRequestRepo struct {
	db db.DBTX
}

// NewSQLiteChangeRequestRepo creates a new SQLiteChangeRequestRepo.
func NewSQLiteChangeRequestRepo(conn db.DBTX) *SQLiteChangeRequestRepo {
	return &SQLiteChangeRequestRepo{db: conn}
}

const changeRequestColumns = `cr.id, cr.number, cr.title, cr.description, cr.justification, cr.risk_assessment,
	cr.backout_plan, cr.status, cr.priority, cr.type, cr.impact, cr.risk, cr.created_by,
	cr.scheduled_start, cr.scheduled_end, cr.implemented_at, cr.cab_pending, cr.cab_approved,
	cr.version, cr.created_at, cr.updated_at`

func (r *SQLiteChangeRequestRepo) Create(ctx context.Context, cr *domain.ChangeRequest) error {
	if cr.Version == 0 {
		cr.Version = 1
	}
	query := `INSERT INTO change_requests (id, number, title, description, justification, risk_assessment,
		backout_plan, status, priority, type, impact, risk, created_by, scheduled_start, scheduled_end,
		implemented_at, cab_pending, cab_approved, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		cr.ID,
		cr.Number,
		cr.Title,
		cr.Description,
		cr.Justification,
		cr.RiskAssessment,
		cr.BackoutPlan,
		string(cr.Status),
		string(cr.Priority),
		string(cr.Type),
		string(cr.Impact),
		string(cr.Risk),
		cr.CreatedByID,
		nullableTimeToString(cr.ScheduledStart),
		nullableTimeToString(cr.ScheduledEnd),
		nullableTimeToString(cr.ImplementedAt),
		cr.CAB.Pending,
		cr.CAB.Approved,
		cr.Version,
		formatTime(cr.CreatedAt),
		formatTime(cr.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting change request: %w", err)
	}
	return nil
}

func (r *SQLiteChangeRequestRepo) GetByID(ctx context.Context, id string) (*domain.ChangeRequest, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+changeRequestColumns+` FROM change_requests cr WHERE cr.id = ?`, id)
	cr, err := scanChangeRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("change request", id)
	}
	return cr, err
}

func (r *SQLiteChangeRequestRepo) GetByNumber(ctx context.Context, number string) (*domain.ChangeRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+changeRequestColumns+` FROM change_requests cr WHERE UPPER(cr.number) = UPPER(?)`, number)
	cr, err := scanChangeRequest(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("change request", number)
	}
	return cr, err
}

// List returns requests matching f, most recently updated first.
func (r *SQLiteChangeRequestRepo) List(ctx context.Context, f ChangeRequestFilter) ([]*domain.ChangeRequest, error) {
	var where []string
	var args []any

	if f.CreatedBy != "" {
		where = append(where, `cr.created_by = ?`)
		args = append(args, f.CreatedBy)
	}
	if f.AssignedTo != "" {
		where = append(where, `EXISTS (SELECT 1 FROM assignments a WHERE a.change_request_id = cr.id AND a.assignee_id = ?)`)
		args = append(args, f.AssignedTo)
	}
	if f.PendingApprover != "" || f.PendingType != "" {
		clause := `EXISTS (SELECT 1 FROM approvals ap WHERE ap.change_request_id = cr.id AND ap.status = 'pending'`
		if f.PendingApprover != "" {
			clause += ` AND ap.approver_id = ?`
			args = append(args, f.PendingApprover)
		}
		if f.PendingType != "" {
			clause += ` AND ap.type = ?`
			args = append(args, string(f.PendingType))
		}
		where = append(where, clause+`)`)
	}
	if len(f.Statuses) > 0 {
		where = append(where, `cr.status IN (`+placeholders(len(f.Statuses))+`)`)
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if f.UpdatedSince != nil {
		where = append(where, `cr.updated_at >= ?`)
		args = append(args, formatTime(*f.UpdatedSince))
	}

	query := `SELECT ` + changeRequestColumns + ` FROM change_requests cr`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY cr.updated_at DESC, cr.number DESC`
	return r.list(ctx, query, args...)
}

// ListScheduledBetween returns requests whose scheduled window overlaps
// [from, to], ordered by start.
func (r *SQLiteChangeRequestRepo) ListScheduledBetween(ctx context.Context, from, to time.Time) ([]*domain.ChangeRequest, error) {
	query := `SELECT ` + changeRequestColumns + ` FROM change_requests cr
		WHERE cr.scheduled_start IS NOT NULL
		  AND cr.scheduled_start <= ? AND cr.scheduled_end >= ?
		ORDER BY cr.scheduled_start, cr.number`
	return r.list(ctx, query, formatTime(to), formatTime(from))
}

func (r *SQLiteChangeRequestRepo) Update(ctx context.Context, cr *domain.ChangeRequest) error {
	query := `UPDATE change_requests SET title = ?, description = ?, justification = ?, risk_assessment = ?,
		backout_plan = ?, status = ?, priority = ?, type = ?, impact = ?, risk = ?,
		scheduled_start = ?, scheduled_end = ?, implemented_at = ?, cab_pending = ?, cab_approved = ?,
		version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`
	res, err := r.db.ExecContext(ctx, query,
		cr.Title,
		cr.Description,
		cr.Justification,
		cr.RiskAssessment,
		cr.BackoutPlan,
		string(cr.Status),
		string(cr.Priority),
		string(cr.Type),
		string(cr.Impact),
		string(cr.Risk),
		nullableTimeToString(cr.ScheduledStart),
		nullableTimeToString(cr.ScheduledEnd),
		nullableTimeToString(cr.ImplementedAt),
		cr.CAB.Pending,
		cr.CAB.Approved,
		formatTime(cr.UpdatedAt),
		cr.ID,
		cr.Version,
	)
	if err != nil {
		return fmt.Errorf("updating change request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating change request: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("change request %s at version %d: %w", cr.Number, cr.Version, domain.ErrConflict)
	}
	cr.Version++
	return nil
}

func (r *SQLiteChangeRequestRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM change_requests WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting change request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("change request", id)
	}
	return nil
}

func (r *SQLiteChangeRequestRepo) list(ctx context.Context, query string, args ...any) ([]*domain.ChangeRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing change requests: %w", err)
	}
	defer rows.Close()

	var out []*domain.ChangeRequest
	for rows.Next() {
		cr, err := scanChangeRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating change requests: %w", err)
	}
	return out, nil
}

func scanChangeRequest(s rowScanner) (*domain.ChangeRequest, error) {
	var cr domain.ChangeRequest
	var status, priority, typ, impact, risk, createdAt, updatedAt string
	var start, end, implemented sql.NullString

	err := s.Scan(
		&cr.ID, &cr.Number, &cr.Title, &cr.Description, &cr.Justification, &cr.RiskAssessment,
		&cr.BackoutPlan, &status, &priority, &typ, &impact, &risk, &cr.CreatedByID,
		&start, &end, &implemented, &cr.CAB.Pending, &cr.CAB.Approved,
		&cr.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning change request: %w", err)
	}

	cr.Status = domain.Status(status)
	cr.Priority = domain.Priority(priority)
	cr.Type = domain.ChangeType(typ)
	cr.Impact = domain.Impact(impact)
	cr.Risk = domain.RiskLevel(risk)
	cr.ScheduledStart = parseNullableTime(start)
	cr.ScheduledEnd = parseNullableTime(end)
	cr.ImplementedAt = parseNullableTime(implemented)

	if cr.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if cr.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return &cr, nil
}
