package thread

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository is an in-memory Repository for tests and embedding. It
// enforces the same optimistic concurrency rules as durable implementations.
type MemoryRepository struct {
	mutex   sync.RWMutex
	threads map[string]Thread
}

// NewMemoryRepository creates a new in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{threads: map[string]Thread{}}
}

// Save persists a thread, rejecting stale versions.
func (r *MemoryRepository) Save(ctx context.Context, t Thread) (Thread, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if stored, exists := r.threads[t.ID]; exists && t.Version <= stored.Version {
		return Thread{}, ErrVersionConflict
	}
	r.threads[t.ID] = t
	return t, nil
}

// FindByID returns a thread by ID.
func (r *MemoryRepository) FindByID(ctx context.Context, id string) (Thread, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	t, exists := r.threads[id]
	if !exists {
		return Thread{}, ErrNotFound
	}
	return t, nil
}

// HasRunningThreads reports whether any thread in the session is running.
func (r *MemoryRepository) HasRunningThreads(ctx context.Context, sessionID string) (bool, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, t := range r.threads {
		if t.SessionID == sessionID && t.Status == StatusRunning && !t.Deleted {
			return true, nil
		}
	}
	return false, nil
}

// ListBySession returns all threads in a session ordered by creation time.
func (r *MemoryRepository) ListBySession(ctx context.Context, sessionID string) ([]Thread, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var threads []Thread
	for _, t := range r.threads {
		if t.SessionID == sessionID {
			threads = append(threads, t)
		}
	}
	sort.Slice(threads, func(i, j int) bool {
		return threads[i].CreatedAt.Before(threads[j].CreatedAt)
	})
	return threads, nil
}
