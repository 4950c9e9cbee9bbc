package thread

import (
	"fmt"
	"time"
)

// Status represents the lifecycle state of a thread.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// ParseStatus converts a serialized status value back to a Status. An
// unrecognized value is an error, never a default.
func ParseStatus(value string) (Status, error) {
	switch Status(value) {
	case StatusPending, StatusRunning, StatusPaused,
		StatusCompleted, StatusFailed, StatusCancelled:
		return Status(value), nil
	}
	return "", fmt.Errorf("unrecognized thread status %q", value)
}

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether the thread is running or paused.
func (s Status) IsActive() bool {
	return s == StatusRunning || s == StatusPaused
}

// ExecutionState holds the execution bookkeeping for one thread lineage. All
// fields are JSON serializable for checkpointing.
type ExecutionState struct {
	Progress       int       `json:"progress"`
	CurrentStep    string    `json:"current_step,omitempty"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	CompletedAt    time.Time `json:"completed_at,omitzero"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	RetryCount     int       `json:"retry_count"`
	LastActivityAt time.Time `json:"last_activity_at,omitzero"`
}

// Thread is one serial execution lineage through a workflow graph. It is a
// value type: every transition returns a new Thread with Version incremented,
// and the receiver is never mutated. Callers rebind rather than mutate in
// place, so a stale copy can be detected by the repository using Version as
// an optimistic concurrency token.
type Thread struct {
	ID          string         `json:"id"`
	SessionID   string         `json:"session_id"`
	WorkflowID  string         `json:"workflow_id"`
	Status      Status         `json:"status"`
	Priority    int            `json:"priority"`
	Title       string         `json:"title,omitempty"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Execution   ExecutionState `json:"execution"`
	Version     int64          `json:"version"`
	Deleted     bool           `json:"deleted,omitempty"`
	CreatedAt   time.Time      `json:"created_at,omitzero"`
	UpdatedAt   time.Time      `json:"updated_at,omitzero"`
}

// ThreadOptions configures a new Thread.
type ThreadOptions struct {
	ID          string
	SessionID   string
	WorkflowID  string
	Priority    int
	Title       string
	Description string
	Metadata    map[string]any
}

// NewThread returns a pending Thread configured with the given options.
func NewThread(opts ThreadOptions) (Thread, error) {
	if opts.SessionID == "" {
		return Thread{}, fmt.Errorf("session id is required")
	}
	if opts.WorkflowID == "" {
		return Thread{}, fmt.Errorf("workflow id is required")
	}
	if opts.ID == "" {
		opts.ID = NewThreadID()
	}
	now := time.Now()
	return Thread{
		ID:          opts.ID,
		SessionID:   opts.SessionID,
		WorkflowID:  opts.WorkflowID,
		Status:      StatusPending,
		Priority:    opts.Priority,
		Title:       opts.Title,
		Description: opts.Description,
		Metadata:    copyMap(opts.Metadata),
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// next returns a copy of the thread with the version bumped. Transition
// methods build on this so version increments are a pure function of
// old-state to new-state.
func (t Thread) next() Thread {
	n := t
	n.Metadata = copyMap(t.Metadata)
	n.Version = t.Version + 1
	n.UpdatedAt = time.Now()
	return n
}

func (t Thread) guard(action string) error {
	if t.Deleted {
		return &DomainError{
			Code:   ErrCodeInvalidTransition,
			Action: action,
			Status: t.Status,
			Cause:  fmt.Sprintf("cannot %s a deleted thread", action),
		}
	}
	return nil
}

// Start transitions a pending thread to running and records the start time.
func (t Thread) Start() (Thread, error) {
	if err := t.guard("start"); err != nil {
		return t, err
	}
	if t.Status != StatusPending {
		return t, NewTransitionError("start", t.Status)
	}
	n := t.next()
	n.Status = StatusRunning
	n.Execution.StartedAt = time.Now()
	n.Execution.LastActivityAt = n.Execution.StartedAt
	return n, nil
}

// Pause transitions a running thread to paused.
func (t Thread) Pause() (Thread, error) {
	if err := t.guard("pause"); err != nil {
		return t, err
	}
	if t.Status != StatusRunning {
		return t, NewTransitionError("pause", t.Status)
	}
	n := t.next()
	n.Status = StatusPaused
	return n, nil
}

// Resume transitions a paused thread back to running. The
// single-active-thread-per-session policy is enforced by the caller using a
// session-scoped repository query, not by the state machine itself.
func (t Thread) Resume() (Thread, error) {
	if err := t.guard("resume"); err != nil {
		return t, err
	}
	if t.Status != StatusPaused {
		return t, NewTransitionError("resume", t.Status)
	}
	n := t.next()
	n.Status = StatusRunning
	return n, nil
}

// Complete transitions an active thread to completed, sets progress to 100,
// and records the completion time exactly once.
func (t Thread) Complete() (Thread, error) {
	if err := t.guard("complete"); err != nil {
		return t, err
	}
	if !t.Status.IsActive() {
		return t, NewTransitionError("complete", t.Status)
	}
	n := t.next()
	n.Status = StatusCompleted
	n.Execution.Progress = 100
	n.Execution.CompletedAt = time.Now()
	return n, nil
}

// Fail transitions an active thread to failed and stores the error message.
func (t Thread) Fail(message string) (Thread, error) {
	if err := t.guard("fail"); err != nil {
		return t, err
	}
	if !t.Status.IsActive() {
		return t, NewTransitionError("fail", t.Status)
	}
	n := t.next()
	n.Status = StatusFailed
	n.Execution.ErrorMessage = message
	return n, nil
}

// Cancel transitions a non-terminal thread to cancelled and stores the reason
// in the error message field.
func (t Thread) Cancel(reason string) (Thread, error) {
	if err := t.guard("cancel"); err != nil {
		return t, err
	}
	if t.Status.IsTerminal() {
		return t, NewTransitionError("cancel", t.Status)
	}
	n := t.next()
	n.Status = StatusCancelled
	n.Execution.ErrorMessage = reason
	return n, nil
}

// UpdateProgress records progress and the current step. Progress must be in
// [0,100] and the thread must be active.
func (t Thread) UpdateProgress(progress int, currentStep string) (Thread, error) {
	if err := t.guard("update progress"); err != nil {
		return t, err
	}
	if !t.Status.IsActive() {
		return t, NewTransitionError("update progress", t.Status)
	}
	if progress < 0 || progress > 100 {
		return t, NewInvalidArgumentError(fmt.Sprintf("progress %d is outside [0,100]", progress))
	}
	n := t.next()
	n.Execution.Progress = progress
	n.Execution.CurrentStep = currentStep
	n.Execution.LastActivityAt = time.Now()
	return n, nil
}

// IncrementRetries bumps the retry counter. Retry policy itself is an
// external concern; only the count is tracked here.
func (t Thread) IncrementRetries() (Thread, error) {
	if err := t.guard("increment retries"); err != nil {
		return t, err
	}
	n := t.next()
	n.Execution.RetryCount++
	return n, nil
}

// Touch records activity on the thread without changing status.
func (t Thread) Touch(at time.Time) (Thread, error) {
	if err := t.guard("touch"); err != nil {
		return t, err
	}
	n := t.next()
	n.Execution.LastActivityAt = at
	return n, nil
}

// MarkDeleted marks the thread deleted. A deleted thread accepts no further
// mutation.
func (t Thread) MarkDeleted() (Thread, error) {
	if err := t.guard("delete"); err != nil {
		return t, err
	}
	n := t.next()
	n.Deleted = true
	return n, nil
}

// copyMap creates a shallow copy of a map.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
