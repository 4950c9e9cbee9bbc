package thread

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FileCheckpointer persists checkpoints to disk, one directory per thread
// with the newest snapshot tracked in latest.json.
type FileCheckpointer struct {
	dataDir string
}

// NewFileCheckpointer creates a new file-based checkpointer rooted at
// dataDir.
func NewFileCheckpointer(dataDir string) (*FileCheckpointer, error) {
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".deepnoodle", "threads", "checkpoints")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}
	return &FileCheckpointer{dataDir: dataDir}, nil
}

// SaveCheckpoint writes the checkpoint as JSON and updates latest.json.
func (c *FileCheckpointer) SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error {
	threadDir := filepath.Join(c.dataDir, checkpoint.ThreadID)
	if err := os.MkdirAll(threadDir, 0755); err != nil {
		return fmt.Errorf("failed to create thread directory: %w", err)
	}
	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	checkpointPath := filepath.Join(threadDir, fmt.Sprintf("checkpoint-%s.json", checkpoint.ID))
	if err := os.WriteFile(checkpointPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	latestPath := filepath.Join(threadDir, "latest.json")
	if err := os.WriteFile(latestPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write latest checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint loads the latest checkpoint for a thread.
func (c *FileCheckpointer) LoadCheckpoint(ctx context.Context, threadID string) (*Checkpoint, error) {
	latestPath := filepath.Join(c.dataDir, threadID, "latest.json")
	data, err := os.ReadFile(latestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}
	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &checkpoint, nil
}

// DeleteCheckpoint removes all checkpoint data for a thread.
func (c *FileCheckpointer) DeleteCheckpoint(ctx context.Context, threadID string) error {
	threadDir := filepath.Join(c.dataDir, threadID)
	if err := os.RemoveAll(threadDir); err != nil {
		return fmt.Errorf("failed to delete thread directory: %w", err)
	}
	return nil
}

// ThreadSummary is a summary view of a checkpointed thread.
type ThreadSummary struct {
	ThreadID     string        `json:"thread_id"`
	WorkflowID   string        `json:"workflow_id"`
	Status       string        `json:"status"`
	StartedAt    time.Time     `json:"started_at"`
	CompletedAt  time.Time     `json:"completed_at,omitzero"`
	Duration     time.Duration `json:"duration"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// ListThreads returns summaries of all checkpointed threads, newest first.
func (c *FileCheckpointer) ListThreads(ctx context.Context) ([]*ThreadSummary, error) {
	entries, err := os.ReadDir(c.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*ThreadSummary{}, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}
	var summaries []*ThreadSummary
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		checkpoint, err := c.LoadCheckpoint(ctx, entry.Name())
		if err != nil || checkpoint == nil {
			continue
		}
		summaries = append(summaries, &ThreadSummary{
			ThreadID:     checkpoint.ThreadID,
			WorkflowID:   checkpoint.WorkflowID,
			Status:       checkpoint.Status,
			StartedAt:    checkpoint.StartedAt,
			CompletedAt:  checkpoint.CompletedAt,
			Duration:     checkpointDuration(checkpoint),
			ErrorMessage: checkpoint.ErrorMessage,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].StartedAt.After(summaries[j].StartedAt)
	})
	return summaries, nil
}

func checkpointDuration(checkpoint *Checkpoint) time.Duration {
	if !checkpoint.CompletedAt.IsZero() {
		return checkpoint.CompletedAt.Sub(checkpoint.StartedAt)
	}
	return checkpoint.CheckpointAt.Sub(checkpoint.StartedAt)
}
