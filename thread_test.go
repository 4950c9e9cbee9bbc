package thread

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestThread(t *testing.T) Thread {
	t.Helper()
	created, err := NewThread(ThreadOptions{
		SessionID:  "session-1",
		WorkflowID: "wf-1",
	})
	require.NoError(t, err)
	return created
}

func TestNewThread(t *testing.T) {
	created, err := NewThread(ThreadOptions{
		SessionID:  "session-1",
		WorkflowID: "wf-1",
		Title:      "research",
		Metadata:   map[string]any{"origin": "api"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, StatusPending, created.Status)
	require.Equal(t, int64(1), created.Version)
	require.Equal(t, "research", created.Title)

	_, err = NewThread(ThreadOptions{WorkflowID: "wf-1"})
	require.Error(t, err)

	_, err = NewThread(ThreadOptions{SessionID: "session-1"})
	require.Error(t, err)
}

func TestThreadLifecycle(t *testing.T) {
	created := newTestThread(t)

	started, err := created.Start()
	require.NoError(t, err)
	require.Equal(t, StatusRunning, started.Status)
	require.Equal(t, created.Version+1, started.Version)
	require.False(t, started.Execution.StartedAt.IsZero())

	// The receiver is never mutated.
	require.Equal(t, StatusPending, created.Status)
	require.Equal(t, int64(1), created.Version)

	paused, err := started.Pause()
	require.NoError(t, err)
	require.Equal(t, StatusPaused, paused.Status)

	resumed, err := paused.Resume()
	require.NoError(t, err)
	require.Equal(t, StatusRunning, resumed.Status)

	completed, err := resumed.Complete()
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)
	require.Equal(t, 100, completed.Execution.Progress)
	require.False(t, completed.Execution.CompletedAt.IsZero())
}

func TestThreadInvalidTransitions(t *testing.T) {
	created := newTestThread(t)
	started, err := created.Start()
	require.NoError(t, err)
	completed, err := started.Complete()
	require.NoError(t, err)

	tests := []struct {
		name string
		run  func() (Thread, error)
		from Thread
	}{
		{"start a running thread", func() (Thread, error) { return started.Start() }, started},
		{"pause a pending thread", func() (Thread, error) { return created.Pause() }, created},
		{"resume a running thread", func() (Thread, error) { return started.Resume() }, started},
		{"complete a pending thread", func() (Thread, error) { return created.Complete() }, created},
		{"complete a completed thread", func() (Thread, error) { return completed.Complete() }, completed},
		{"fail a completed thread", func() (Thread, error) { return completed.Fail("x") }, completed},
		{"cancel a completed thread", func() (Thread, error) { return completed.Cancel("x") }, completed},
		{"resume a completed thread", func() (Thread, error) { return completed.Resume() }, completed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.run()
			require.Error(t, err)
			require.True(t, IsDomainError(err, ErrCodeInvalidTransition))

			// A rejected transition leaves status and version untouched.
			require.Equal(t, tc.from.Status, got.Status)
			require.Equal(t, tc.from.Version, got.Version)
		})
	}
}

func TestThreadFail(t *testing.T) {
	started, err := newTestThread(t).Start()
	require.NoError(t, err)

	failed, err := started.Fail("llm call timed out")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, failed.Status)
	require.Equal(t, "llm call timed out", failed.Execution.ErrorMessage)
}

func TestThreadCancel(t *testing.T) {
	created := newTestThread(t)

	// Cancellation is valid from any non-terminal status.
	cancelled, err := created.Cancel("user request")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
	require.Equal(t, "user request", cancelled.Execution.ErrorMessage)

	started, err := newTestThread(t).Start()
	require.NoError(t, err)
	paused, err := started.Pause()
	require.NoError(t, err)
	cancelled, err = paused.Cancel("abandoned")
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
}

func TestThreadUpdateProgress(t *testing.T) {
	started, err := newTestThread(t).Start()
	require.NoError(t, err)

	updated, err := started.UpdateProgress(40, "summarize")
	require.NoError(t, err)
	require.Equal(t, 40, updated.Execution.Progress)
	require.Equal(t, "summarize", updated.Execution.CurrentStep)

	_, err = started.UpdateProgress(-1, "summarize")
	require.True(t, IsDomainError(err, ErrCodeInvalidArgument))

	_, err = started.UpdateProgress(101, "summarize")
	require.True(t, IsDomainError(err, ErrCodeInvalidArgument))

	_, err = newTestThread(t).UpdateProgress(10, "summarize")
	require.True(t, IsDomainError(err, ErrCodeInvalidTransition))
}

func TestThreadRetryBookkeeping(t *testing.T) {
	created := newTestThread(t)
	require.Equal(t, 0, created.Execution.RetryCount)

	once, err := created.IncrementRetries()
	require.NoError(t, err)
	require.Equal(t, 1, once.Execution.RetryCount)
	require.Equal(t, created.Version+1, once.Version)

	// The receiver is never mutated.
	require.Equal(t, 0, created.Execution.RetryCount)

	twice, err := once.IncrementRetries()
	require.NoError(t, err)
	require.Equal(t, 2, twice.Execution.RetryCount)

	deleted, err := twice.MarkDeleted()
	require.NoError(t, err)
	_, err = deleted.IncrementRetries()
	require.True(t, IsDomainError(err, ErrCodeInvalidTransition))
}

func TestThreadVersionIncrements(t *testing.T) {
	current := newTestThread(t)
	var err error
	transitions := []func(Thread) (Thread, error){
		func(x Thread) (Thread, error) { return x.Start() },
		func(x Thread) (Thread, error) { return x.UpdateProgress(10, "a") },
		func(x Thread) (Thread, error) { return x.Pause() },
		func(x Thread) (Thread, error) { return x.Resume() },
		func(x Thread) (Thread, error) { return x.Complete() },
	}
	for i, transition := range transitions {
		current, err = transition(current)
		require.NoError(t, err)
		require.Equal(t, int64(i+2), current.Version)
	}
}

func TestThreadDeletedGuard(t *testing.T) {
	deleted, err := newTestThread(t).MarkDeleted()
	require.NoError(t, err)
	require.True(t, deleted.Deleted)

	_, err = deleted.Start()
	require.True(t, IsDomainError(err, ErrCodeInvalidTransition))

	_, err = deleted.Cancel("x")
	require.True(t, IsDomainError(err, ErrCodeInvalidTransition))

	_, err = deleted.Touch(time.Now())
	require.True(t, IsDomainError(err, ErrCodeInvalidTransition))
}

func TestParseStatus(t *testing.T) {
	for _, valid := range []Status{StatusPending, StatusRunning, StatusPaused, StatusCompleted, StatusFailed, StatusCancelled} {
		parsed, err := ParseStatus(string(valid))
		require.NoError(t, err)
		require.Equal(t, valid, parsed)
	}
	_, err := ParseStatus("archived")
	require.Error(t, err)
	_, err = ParseStatus("")
	require.Error(t, err)
}

func TestStatusPredicates(t *testing.T) {
	require.True(t, StatusCompleted.IsTerminal())
	require.True(t, StatusFailed.IsTerminal())
	require.True(t, StatusCancelled.IsTerminal())
	require.False(t, StatusPaused.IsTerminal())
	require.False(t, StatusPending.IsTerminal())

	require.True(t, StatusRunning.IsActive())
	require.True(t, StatusPaused.IsActive())
	require.False(t, StatusPending.IsActive())
	require.False(t, StatusCompleted.IsActive())
}
