package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alexanderramin/crq/internal/db"
	"github.com/alexanderramin/crq/internal/domain"
)

// SQLiteUserRepo implements UserRepo using a SQLite database.
type SQLiteUserRepo struct {
	db db.DBTX
}

// NewSQLiteUserRepo creates a new SQLiteUserRepo.
func NewSQLiteUserRepo(conn db.DBTX) *SQLiteUserRepo {
	return &SQLiteUserRepo{db: conn}
}

const userColumns = `id, username, email, first_name, last_name, department, supervisor_id,
	is_cab_member, is_support_personnel, extra_roles, created_at, updated_at`

func (r *SQLiteUserRepo) Create(ctx context.Context, u *domain.User) error {
	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		u.ID,
		u.Username,
		u.Email,
		u.FirstName,
		u.LastName,
		u.Department,
		nullableString(u.SupervisorID),
		boolToInt(u.IsCABMember),
		boolToInt(u.IsSupportPersonnel),
		joinRoles(u.ExtraRoles),
		formatTime(u.CreatedAt),
		formatTime(u.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (r *SQLiteUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", id)
	}
	return u, err
}

func (r *SQLiteUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ? COLLATE NOCASE`, username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("user", username)
	}
	return u, err
}

func (r *SQLiteUserRepo) List(ctx context.Context) ([]*domain.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
}

func (r *SQLiteUserRepo) ListCABMembers(ctx context.Context) ([]*domain.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users WHERE is_cab_member = 1 ORDER BY username`)
}

func (r *SQLiteUserRepo) ListSubordinates(ctx context.Context, supervisorID string) ([]*domain.User, error) {
	return r.list(ctx, `SELECT `+userColumns+` FROM users WHERE supervisor_id = ? ORDER BY username`, supervisorID)
}

// SupervisorOf returns the supervisor id of userID, or nil.
func (r *SQLiteUserRepo) SupervisorOf(ctx context.Context, userID string) (*string, error) {
	var sup sql.NullString
	err := r.db.QueryRowContext(ctx, `SELECT supervisor_id FROM users WHERE id = ?`, userID).Scan(&sup)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("user", userID)
		}
		return nil, fmt.Errorf("loading supervisor of %s: %w", userID, err)
	}
	if !sup.Valid {
		return nil, nil
	}
	return &sup.String, nil
}

func (r *SQLiteUserRepo) Update(ctx context.Context, u *domain.User) error {
	query := `UPDATE users SET username = ?, email = ?, first_name = ?, last_name = ?, department = ?,
		supervisor_id = ?, is_cab_member = ?, is_support_personnel = ?, extra_roles = ?, updated_at = ?
		WHERE id = ?`
	res, err := r.db.ExecContext(ctx, query,
		u.Username,
		u.Email,
		u.FirstName,
		u.LastName,
		u.Department,
		nullableString(u.SupervisorID),
		boolToInt(u.IsCABMember),
		boolToInt(u.IsSupportPersonnel),
		joinRoles(u.ExtraRoles),
		formatTime(u.UpdatedAt),
		u.ID,
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound("user", u.ID)
	}
	return nil
}

func (r *SQLiteUserRepo) list(ctx context.Context, query string, args ...any) ([]*domain.User, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

func scanUser(s rowScanner) (*domain.User, error) {
	var u domain.User
	var supervisor sql.NullString
	var cab, support int
	var roles, createdAt, updatedAt string

	err := s.Scan(
		&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.Department,
		&supervisor, &cab, &support, &roles, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	if supervisor.Valid {
		u.SupervisorID = &supervisor.String
	}
	u.IsCABMember = intToBool(cab)
	u.IsSupportPersonnel = intToBool(support)
	u.ExtraRoles = splitRoles(roles)

	if u.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime("updated_at", updatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}
