package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/deepnoodle-ai/thread"
)

// Checkpointer stores the latest checkpoint per thread as a JSONB blob.
type Checkpointer struct {
	db *sql.DB
}

var _ thread.Checkpointer = (*Checkpointer)(nil)

// NewCheckpointer initializes the checkpoints table and returns a
// checkpointer.
func NewCheckpointer(db *sql.DB) (*Checkpointer, error) {
	c := &Checkpointer{db: db}
	if err := c.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize checkpoints schema: %w", err)
	}
	return c, nil
}

func (c *Checkpointer) initSchema() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id     TEXT PRIMARY KEY,
			data          JSONB NOT NULL,
			checkpoint_at TIMESTAMPTZ NOT NULL
		);
	`)
	return err
}

func (c *Checkpointer) SaveCheckpoint(ctx context.Context, checkpoint *thread.Checkpoint) error {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	at := checkpoint.CheckpointAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO checkpoints (thread_id, data, checkpoint_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (thread_id) DO UPDATE SET
			data          = EXCLUDED.data,
			checkpoint_at = EXCLUDED.checkpoint_at
	`, checkpoint.ThreadID, data, at)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint for thread %q: %w", checkpoint.ThreadID, err)
	}
	return nil
}

func (c *Checkpointer) LoadCheckpoint(ctx context.Context, threadID string) (*thread.Checkpoint, error) {
	var data []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT data FROM checkpoints WHERE thread_id = $1`, threadID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for thread %q: %w", threadID, err)
	}
	var checkpoint thread.Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

func (c *Checkpointer) DeleteCheckpoint(ctx context.Context, threadID string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM checkpoints WHERE thread_id = $1`, threadID)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint for thread %q: %w", threadID, err)
	}
	return nil
}
