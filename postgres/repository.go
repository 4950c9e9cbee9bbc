package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/deepnoodle-ai/thread"
)

// Repository is a thread.Repository backed by PostgreSQL. The Version field
// is enforced as an optimistic concurrency token: a save whose version is not
// strictly greater than the stored row's version is rejected.
type Repository struct {
	db *sql.DB
}

var _ thread.Repository = (*Repository)(nil)

// NewRepository initializes the threads table and returns a repository.
func NewRepository(db *sql.DB) (*Repository, error) {
	r := &Repository{db: db}
	if err := r.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize threads schema: %w", err)
	}
	return r, nil
}

func (r *Repository) initSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS threads (
			id          TEXT PRIMARY KEY,
			session_id  TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			status      TEXT NOT NULL,
			priority    INTEGER NOT NULL DEFAULT 0,
			title       TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			metadata    JSONB,
			execution   JSONB NOT NULL,
			version     BIGINT NOT NULL,
			deleted     BOOLEAN NOT NULL DEFAULT FALSE,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS threads_session_idx ON threads (session_id);
	`)
	return err
}

func (r *Repository) Save(ctx context.Context, t thread.Thread) (thread.Thread, error) {
	metadata, err := json.Marshal(t.Metadata)
	if err != nil {
		return thread.Thread{}, fmt.Errorf("failed to marshal thread metadata: %w", err)
	}
	execution, err := json.Marshal(t.Execution)
	if err != nil {
		return thread.Thread{}, fmt.Errorf("failed to marshal execution state: %w", err)
	}
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO threads (id, session_id, workflow_id, status, priority, title, description, metadata, execution, version, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			session_id  = EXCLUDED.session_id,
			workflow_id = EXCLUDED.workflow_id,
			status      = EXCLUDED.status,
			priority    = EXCLUDED.priority,
			title       = EXCLUDED.title,
			description = EXCLUDED.description,
			metadata    = EXCLUDED.metadata,
			execution   = EXCLUDED.execution,
			version     = EXCLUDED.version,
			deleted     = EXCLUDED.deleted,
			created_at  = EXCLUDED.created_at,
			updated_at  = EXCLUDED.updated_at
		WHERE threads.version < EXCLUDED.version
	`,
		t.ID,
		t.SessionID,
		t.WorkflowID,
		string(t.Status),
		t.Priority,
		t.Title,
		t.Description,
		metadata,
		execution,
		t.Version,
		t.Deleted,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return thread.Thread{}, fmt.Errorf("failed to save thread %q: %w", t.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return thread.Thread{}, err
	}
	if affected == 0 {
		// A stored row with an equal or newer version rejected the write.
		return thread.Thread{}, thread.ErrVersionConflict
	}
	return t, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (thread.Thread, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, workflow_id, status, priority, title, description, metadata, execution, version, deleted, created_at, updated_at
		FROM threads WHERE id = $1
	`, id)
	t, err := scanThread(row)
	if errors.Is(err, sql.ErrNoRows) {
		return thread.Thread{}, thread.ErrNotFound
	}
	return t, err
}

func (r *Repository) HasRunningThreads(ctx context.Context, sessionID string) (bool, error) {
	var running bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM threads
			WHERE session_id = $1 AND status = $2 AND NOT deleted
		)
	`, sessionID, string(thread.StatusRunning)).Scan(&running)
	if err != nil {
		return false, fmt.Errorf("failed to query running threads: %w", err)
	}
	return running, nil
}

func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]thread.Thread, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, workflow_id, status, priority, title, description, metadata, execution, version, deleted, created_at, updated_at
		FROM threads WHERE session_id = $1
		ORDER BY created_at
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads for session %q: %w", sessionID, err)
	}
	defer rows.Close()
	var threads []thread.Thread
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanThread(row scanner) (thread.Thread, error) {
	var t thread.Thread
	var status string
	var metadata, execution []byte
	err := row.Scan(
		&t.ID,
		&t.SessionID,
		&t.WorkflowID,
		&status,
		&t.Priority,
		&t.Title,
		&t.Description,
		&metadata,
		&execution,
		&t.Version,
		&t.Deleted,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return thread.Thread{}, err
	}
	parsed, err := thread.ParseStatus(status)
	if err != nil {
		return thread.Thread{}, err
	}
	t.Status = parsed
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &t.Metadata); err != nil {
			return thread.Thread{}, fmt.Errorf("failed to unmarshal thread metadata: %w", err)
		}
	}
	if err := json.Unmarshal(execution, &t.Execution); err != nil {
		return thread.Thread{}, fmt.Errorf("failed to unmarshal execution state: %w", err)
	}
	return t, nil
}
