package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Migrate runs all schema migrations.
func Migrate(db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			// Tolerate "duplicate column name" errors from ALTER TABLE
			// since the migration system re-runs all statements.
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	if err := migrateBackfillCABTally(db); err != nil {
		return fmt.Errorf("backfilling CAB tallies: %w", err)
	}
	if err := migrateBackfillRequestSequences(db); err != nil {
		return fmt.Errorf("backfilling request sequence allocator state: %w", err)
	}
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                   TEXT PRIMARY KEY,
		username             TEXT NOT NULL UNIQUE,
		email                TEXT NOT NULL DEFAULT '',
		first_name           TEXT NOT NULL DEFAULT '',
		last_name            TEXT NOT NULL DEFAULT '',
		department           TEXT NOT NULL DEFAULT '',
		supervisor_id        TEXT REFERENCES users(id) ON DELETE SET NULL,
		is_cab_member        INTEGER NOT NULL DEFAULT 0,
		is_support_personnel INTEGER NOT NULL DEFAULT 0,
		extra_roles          TEXT NOT NULL DEFAULT '',
		created_at           TEXT NOT NULL,
		updated_at           TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_users_supervisor ON users(supervisor_id)`,

	`CREATE TABLE IF NOT EXISTS change_requests (
		id              TEXT PRIMARY KEY,
		number          TEXT NOT NULL UNIQUE,
		title           TEXT NOT NULL,
		description     TEXT NOT NULL DEFAULT '',
		justification   TEXT NOT NULL DEFAULT '',
		risk_assessment TEXT NOT NULL DEFAULT '',
		backout_plan    TEXT NOT NULL DEFAULT '',
		status          TEXT NOT NULL DEFAULT 'draft'
		                CHECK(status IN ('draft','submitted_for_supervisor_approval','supervisor_approved',
		                                 'supervisor_rejected','submitted_for_cab_approval','cab_approved',
		                                 'cab_rejected','scheduled','rescheduled','in_progress',
		                                 'completed','failed','cancelled')),
		priority        TEXT NOT NULL DEFAULT 'medium'
		                CHECK(priority IN ('low','medium','high','critical')),
		type            TEXT NOT NULL DEFAULT 'normal'
		                CHECK(type IN ('normal','standard','emergency')),
		impact          TEXT NOT NULL DEFAULT 'medium'
		                CHECK(impact IN ('low','medium','high')),
		risk            TEXT NOT NULL DEFAULT 'medium'
		                CHECK(risk IN ('low','medium','high','critical')),
		created_by      TEXT NOT NULL REFERENCES users(id),
		scheduled_start TEXT,
		scheduled_end   TEXT,
		implemented_at  TEXT,
		created_at      TEXT NOT NULL,
		updated_at      TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_change_requests_status ON change_requests(status)`,
	`CREATE INDEX IF NOT EXISTS idx_change_requests_created_by ON change_requests(created_by)`,
	`CREATE INDEX IF NOT EXISTS idx_change_requests_scheduled ON change_requests(scheduled_start)`,

	`CREATE TABLE IF NOT EXISTS approvals (
		id                TEXT PRIMARY KEY,
		change_request_id TEXT NOT NULL REFERENCES change_requests(id) ON DELETE CASCADE,
		approver_id       TEXT NOT NULL REFERENCES users(id),
		type              TEXT NOT NULL CHECK(type IN ('supervisor','cab')),
		status            TEXT NOT NULL DEFAULT 'pending'
		                  CHECK(status IN ('pending','approved','rejected')),
		comments          TEXT NOT NULL DEFAULT '',
		requested_at      TEXT NOT NULL,
		actioned_at       TEXT
	)`,

	`CREATE INDEX IF NOT EXISTS idx_approvals_request ON approvals(change_request_id)`,
	`CREATE INDEX IF NOT EXISTS idx_approvals_approver_status ON approvals(approver_id, status)`,

	`CREATE TABLE IF NOT EXISTS assignments (
		id                TEXT PRIMARY KEY,
		change_request_id TEXT NOT NULL REFERENCES change_requests(id) ON DELETE CASCADE,
		assignee_id       TEXT NOT NULL REFERENCES users(id),
		role              TEXT NOT NULL DEFAULT '',
		notes             TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL DEFAULT 'assigned'
		                  CHECK(status IN ('assigned','in_progress','completed','cancelled')),
		assigned_at       TEXT NOT NULL,
		updated_at        TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_assignments_request ON assignments(change_request_id)`,
	`CREATE INDEX IF NOT EXISTS idx_assignments_assignee ON assignments(assignee_id)`,

	`CREATE TABLE IF NOT EXISTS comments (
		id                TEXT PRIMARY KEY,
		change_request_id TEXT NOT NULL REFERENCES change_requests(id) ON DELETE CASCADE,
		author_id         TEXT NOT NULL REFERENCES users(id),
		text              TEXT NOT NULL,
		is_internal       INTEGER NOT NULL DEFAULT 0,
		created_at        TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_comments_request ON comments(change_request_id)`,

	`CREATE TABLE IF NOT EXISTS history (
		id                TEXT PRIMARY KEY,
		change_request_id TEXT NOT NULL REFERENCES change_requests(id) ON DELETE CASCADE,
		user_id           TEXT NOT NULL REFERENCES users(id),
		action_type       TEXT NOT NULL,
		description       TEXT NOT NULL DEFAULT '',
		changes           TEXT NOT NULL DEFAULT '[]',
		created_at        TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_history_request ON history(change_request_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS request_sequences (
		year     INTEGER PRIMARY KEY,
		next_seq INTEGER NOT NULL CHECK(next_seq > 0)
	)`,

	// CAB tally and optimistic concurrency token on change_requests
	`ALTER TABLE change_requests ADD COLUMN cab_pending INTEGER NOT NULL DEFAULT 0`,
	`ALTER TABLE change_requests ADD COLUMN cab_approved INTEGER NOT NULL DEFAULT 0`,
	`ALTER TABLE change_requests ADD COLUMN version INTEGER NOT NULL DEFAULT 1`,
}

// migrateBackfillCABTally derives the pending count for requests that were
// submitted to the CAB before the tally columns existed. Idempotent: only
// rows with an empty tally and outstanding CAB approvals are touched.
func migrateBackfillCABTally(db *sql.DB) error {
	ctx := context.Background()

	query := `UPDATE change_requests
		SET cab_pending = (
			SELECT COUNT(*) FROM approvals a
			WHERE a.change_request_id = change_requests.id
			  AND a.type = 'cab' AND a.status = 'pending'
		)
		WHERE status = 'submitted_for_cab_approval'
		  AND cab_pending = 0 AND cab_approved = 0
		  AND EXISTS (
			SELECT 1 FROM approvals a
			WHERE a.change_request_id = change_requests.id
			  AND a.type = 'cab' AND a.status = 'pending'
		  )`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("updating cab_pending: %w", err)
	}
	return nil
}

// migrateBackfillRequestSequences populates (or raises) next_seq for every
// year that already has numbered requests, so the allocator never reissues
// a number.
func migrateBackfillRequestSequences(db *sql.DB) error {
	ctx := context.Background()

	query := `INSERT INTO request_sequences (year, next_seq)
		SELECT CAST(substr(number, 4, 4) AS INTEGER), MAX(CAST(substr(number, 9) AS INTEGER)) + 1
		FROM change_requests
		WHERE number GLOB 'CR-[0-9][0-9][0-9][0-9]-[0-9]*'
		GROUP BY CAST(substr(number, 4, 4) AS INTEGER)
		ON CONFLICT(year) DO UPDATE
		SET next_seq = MAX(request_sequences.next_seq, excluded.next_seq)`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("upserting request sequence rows: %w", err)
	}
	return nil
}
