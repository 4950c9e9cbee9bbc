package thread

import "time"

// StepRecord is one entry in the execution history of a lineage.
type StepRecord struct {
	NodeID    string              `json:"node_id"`
	Timestamp time.Time           `json:"timestamp"`
	Status    NodeExecutionStatus `json:"status"`
	Output    any                 `json:"output,omitempty"`
	Error     string              `json:"error,omitempty"`
	Duration  time.Duration       `json:"duration"`
	Signal    Signal              `json:"signal,omitempty"`
}

// ExecutionStats aggregates per-step timing and outcome counts.
type ExecutionStats struct {
	TotalSteps     int                      `json:"total_steps"`
	SucceededSteps int                      `json:"succeeded_steps"`
	FailedSteps    int                      `json:"failed_steps"`
	SkippedSteps   int                      `json:"skipped_steps"`
	TotalTime      time.Duration            `json:"total_time"`
	StepTimes      map[string]time.Duration `json:"step_times,omitempty"`
}

// ExecutionResult summarizes one run of the execution loop. Step-level
// failures are recovered into the result rather than propagated as errors:
// callers inspect Status and ErrorMessage.
type ExecutionResult struct {
	ThreadID     string         `json:"thread_id"`
	Status       Status         `json:"status"`
	Variables    map[string]any `json:"variables,omitempty"`
	History      []StepRecord   `json:"history"`
	Stats        ExecutionStats `json:"stats"`
	ErrorMessage string         `json:"error_message,omitempty"`
}

func newExecutionResult(t Thread, ec *ExecutionContext, history []StepRecord) *ExecutionResult {
	stats := ExecutionStats{
		TotalSteps: len(history),
		TotalTime:  ec.Elapsed(),
		StepTimes:  make(map[string]time.Duration, len(history)),
	}
	for _, record := range history {
		switch record.Status {
		case NodeStatusCompleted:
			stats.SucceededSteps++
		case NodeStatusFailed:
			stats.FailedSteps++
		case NodeStatusSkipped:
			stats.SkippedSteps++
		}
		stats.StepTimes[record.NodeID] = record.Duration
	}
	return &ExecutionResult{
		ThreadID:     t.ID,
		Status:       t.Status,
		Variables:    ec.Variables(),
		History:      history,
		Stats:        stats,
		ErrorMessage: t.Execution.ErrorMessage,
	}
}
