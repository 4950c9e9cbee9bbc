package thread

import (
	"fmt"
	"time"
)

// Checkpoint is a persisted snapshot of one thread lineage: status, execution
// bookkeeping, variables, node-execution snapshots, and the prompt
// sub-context. It is written at controlled points between steps and read only
// to reconstruct a thread that was previously paused or crashed.
type Checkpoint struct {
	ID             string                            `json:"id"`
	ThreadID       string                            `json:"thread_id"`
	SessionID      string                            `json:"session_id"`
	WorkflowID     string                            `json:"workflow_id"`
	Status         string                            `json:"status"`
	Progress       int                               `json:"progress"`
	CurrentStep    string                            `json:"current_step,omitempty"`
	StartedAt      time.Time                         `json:"started_at,omitzero"`
	CompletedAt    time.Time                         `json:"completed_at,omitzero"`
	ErrorMessage   string                            `json:"error_message,omitempty"`
	RetryCount     int                               `json:"retry_count"`
	LastActivityAt time.Time                         `json:"last_activity_at,omitzero"`
	Variables      map[string]any                    `json:"variables,omitempty"`
	NodeExecutions map[string]*NodeExecutionSnapshot `json:"node_executions,omitempty"`
	Prompt         *PromptContext                    `json:"prompt,omitempty"`
	Version        int64                             `json:"version"`
	CheckpointAt   time.Time                         `json:"checkpoint_at"`
}

// Snapshot produces a checkpoint from a thread and its execution context.
func Snapshot(t Thread, ec *ExecutionContext) *Checkpoint {
	cp := &Checkpoint{
		ID:             newID("ckpt"),
		ThreadID:       t.ID,
		SessionID:      t.SessionID,
		WorkflowID:     t.WorkflowID,
		Status:         string(t.Status),
		Progress:       t.Execution.Progress,
		CurrentStep:    t.Execution.CurrentStep,
		StartedAt:      t.Execution.StartedAt,
		CompletedAt:    t.Execution.CompletedAt,
		ErrorMessage:   t.Execution.ErrorMessage,
		RetryCount:     t.Execution.RetryCount,
		LastActivityAt: t.Execution.LastActivityAt,
		Version:        t.Version,
		CheckpointAt:   time.Now(),
	}
	if ec != nil {
		cp.Variables = ec.Variables()
		cp.NodeExecutions = ec.NodeExecutions()
		cp.Prompt = ec.Prompt().Copy()
	}
	return cp
}

// Restore reapplies a checkpoint to a thread and rebuilds its execution
// context. Restoring a checkpoint whose thread ID does not match the target
// thread is a fatal validation error, and an unrecognized serialized status
// is a fatal decode error; neither ever defaults.
func Restore(t Thread, cp *Checkpoint) (Thread, *ExecutionContext, error) {
	if cp == nil {
		return t, nil, NewCheckpointError("no checkpoint data")
	}
	if cp.ThreadID != t.ID {
		return t, nil, NewCheckpointError(fmt.Sprintf(
			"checkpoint belongs to thread %q, not %q", cp.ThreadID, t.ID))
	}
	status, err := ParseStatus(cp.Status)
	if err != nil {
		return t, nil, NewCheckpointError(err.Error())
	}

	restored := t
	restored.Status = status
	restored.Execution = ExecutionState{
		Progress:       cp.Progress,
		CurrentStep:    cp.CurrentStep,
		StartedAt:      cp.StartedAt,
		CompletedAt:    cp.CompletedAt,
		ErrorMessage:   cp.ErrorMessage,
		RetryCount:     cp.RetryCount,
		LastActivityAt: cp.LastActivityAt,
	}
	if cp.Version > restored.Version {
		restored.Version = cp.Version
	}

	ec := NewExecutionContext(t.ID, cp.Variables)
	for id, snapshot := range cp.NodeExecutions {
		ec.RecordNodeExecution(id, snapshot.Copy())
	}
	ec.SetPrompt(cp.Prompt.Copy())
	return restored, ec, nil
}
