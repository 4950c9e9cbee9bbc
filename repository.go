package thread

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a thread is not found.
	ErrNotFound = errors.New("thread not found")

	// ErrVersionConflict is returned when a save carries a version that is
	// not newer than the stored one. The caller holds a stale copy.
	ErrVersionConflict = errors.New("thread version conflict")
)

// Repository persists threads. Writes are per-thread and use the Version
// field as an optimistic concurrency token: a save whose version is not
// strictly greater than the stored version is rejected with
// ErrVersionConflict.
type Repository interface {

	// Save persists a thread and returns the stored value.
	Save(ctx context.Context, t Thread) (Thread, error)

	// FindByID returns a thread by ID, or ErrNotFound.
	FindByID(ctx context.Context, id string) (Thread, error)

	// HasRunningThreads reports whether any thread in the session is
	// currently running. The execution service uses this to enforce the
	// single-active-thread-per-session policy on start and resume.
	HasRunningThreads(ctx context.Context, sessionID string) (bool, error)

	// ListBySession returns all threads belonging to a session.
	ListBySession(ctx context.Context, sessionID string) ([]Thread, error)
}
