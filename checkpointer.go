package thread

import (
	"context"
)

// Checkpointer stores checkpoint blobs keyed by thread ID.
type Checkpointer interface {

	// SaveCheckpoint saves a snapshot of a thread's state.
	SaveCheckpoint(ctx context.Context, checkpoint *Checkpoint) error

	// LoadCheckpoint loads the latest checkpoint for a thread. A missing
	// checkpoint returns (nil, nil).
	LoadCheckpoint(ctx context.Context, threadID string) (*Checkpoint, error)

	// DeleteCheckpoint removes checkpoint data for a thread.
	DeleteCheckpoint(ctx context.Context, threadID string) error
}
