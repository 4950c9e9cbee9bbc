package thread

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// ContextRetention controls which parent variables and node snapshots are
// carried into each new branch context.
type ContextRetention string

const (
	// RetentionFull copies every variable and every node-execution snapshot.
	RetentionFull ContextRetention = "full"

	// RetentionPartial copies variables produced before the fork point and
	// only snapshots whose step completed or was skipped.
	RetentionPartial ContextRetention = "partial"

	// RetentionMinimal copies only the session and workflow identifiers and
	// no node snapshots.
	RetentionMinimal ContextRetention = "minimal"
)

// NodeStateHandling controls how node-execution snapshots selected by the
// retention policy are propagated into branches.
type NodeStateHandling string

const (
	// NodeStateCopy propagates all selected snapshots unchanged.
	NodeStateCopy NodeStateHandling = "copy"

	// NodeStateReset propagates no snapshots.
	NodeStateReset NodeStateHandling = "reset"

	// NodeStateInherit propagates only snapshots already completed or
	// skipped.
	NodeStateInherit NodeStateHandling = "inherit"
)

// ForkStrategy configures how a fork builds its branch contexts.
type ForkStrategy struct {
	Retention ContextRetention  `json:"retention"`
	NodeState NodeStateHandling `json:"node_state"`
	Parallel  bool              `json:"parallel"`
}

// DefaultForkStrategy returns full retention with copied node state, run in
// parallel.
func DefaultForkStrategy() ForkStrategy {
	return ForkStrategy{Retention: RetentionFull, NodeState: NodeStateCopy, Parallel: true}
}

// Validate checks the strategy values. Full retention combined with reset
// node state is accepted but logged as inconsistent.
func (s ForkStrategy) Validate(logger *slog.Logger) error {
	switch s.Retention {
	case RetentionFull, RetentionPartial, RetentionMinimal:
	default:
		return NewInvalidArgumentError(fmt.Sprintf("unknown context retention %q", s.Retention))
	}
	switch s.NodeState {
	case NodeStateCopy, NodeStateReset, NodeStateInherit:
	default:
		return NewInvalidArgumentError(fmt.Sprintf("unknown node state handling %q", s.NodeState))
	}
	if s.Retention == RetentionFull && s.NodeState == NodeStateReset && logger != nil {
		logger.Warn("fork strategy retains full context but resets node state",
			"retention", s.Retention,
			"node_state", s.NodeState)
	}
	return nil
}

// ForkContext carries everything one branch needs to start as an independent
// lineage. Each branch receives its own deep copy; no mutable state is shared
// between branches or with the parent.
type ForkContext struct {
	ForkID         string                            `json:"fork_id"`
	BranchID       string                            `json:"branch_id"`
	ParentThreadID string                            `json:"parent_thread_id"`
	SessionID      string                            `json:"session_id"`
	WorkflowID     string                            `json:"workflow_id"`
	ForkPoint      string                            `json:"fork_point"`
	Variables      map[string]any                    `json:"variables"`
	NodeExecutions map[string]*NodeExecutionSnapshot `json:"node_executions,omitempty"`
	Prompt         *PromptContext                    `json:"prompt,omitempty"`
	Strategy       ForkStrategy                      `json:"strategy"`
	CreatedAt      time.Time                         `json:"created_at"`
}

// NewBranchContext builds the ExecutionContext for this branch lineage.
func (f *ForkContext) NewBranchContext() *ExecutionContext {
	ec := NewExecutionContext(f.BranchID, f.Variables)
	for id, snapshot := range f.NodeExecutions {
		ec.RecordNodeExecution(id, snapshot.Copy())
	}
	ec.SetPrompt(f.Prompt.Copy())
	return ec
}

// Fork describes one fork point: N branch contexts awaiting execution. It is
// created at fork time, consumed by branch construction, and discarded once
// the join has resolved all branches.
type Fork struct {
	ID             string         `json:"id"`
	ParentThreadID string         `json:"parent_thread_id"`
	Point          string         `json:"point"`
	Strategy       ForkStrategy   `json:"strategy"`
	Branches       []*ForkContext `json:"branches"`
}

// BranchIDs returns the IDs of all branches in the fork.
func (f *Fork) BranchIDs() []string {
	ids := make([]string, len(f.Branches))
	for i, branch := range f.Branches {
		ids[i] = branch.BranchID
	}
	return ids
}

// ForkCoordinatorOptions configures a ForkCoordinator.
type ForkCoordinatorOptions struct {
	Logger *slog.Logger
}

// ForkCoordinator computes branch contexts from a fork point and a retention
// policy.
type ForkCoordinator struct {
	logger *slog.Logger
}

// NewForkCoordinator creates a new fork coordinator.
func NewForkCoordinator(opts ForkCoordinatorOptions) *ForkCoordinator {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &ForkCoordinator{logger: opts.Logger}
}

// Fork splits the parent lineage at forkPoint into branchCount independent
// branch contexts. Bookkeeping for the fork is recorded in the parent context
// and cleared again by the join after merging.
func (c *ForkCoordinator) Fork(parent Thread, ec *ExecutionContext, forkPoint string, strategy ForkStrategy, branchCount int) (*Fork, error) {
	if err := strategy.Validate(c.logger); err != nil {
		return nil, err
	}
	if branchCount < 1 {
		return nil, NewInvalidArgumentError(fmt.Sprintf("branch count must be >= 1, got %d", branchCount))
	}

	variables, snapshots := c.calculateContextRetention(parent, ec, strategy.Retention)
	snapshots = applyNodeStateHandling(snapshots, strategy.NodeState)
	prompt := ec.Prompt()
	if strategy.Retention == RetentionMinimal {
		prompt = nil
	}

	fork := &Fork{
		ID:             NewForkID(),
		ParentThreadID: parent.ID,
		Point:          forkPoint,
		Strategy:       strategy,
	}
	for i := 0; i < branchCount; i++ {
		branch := &ForkContext{
			ForkID:         fork.ID,
			BranchID:       NewBranchID(),
			ParentThreadID: parent.ID,
			SessionID:      parent.SessionID,
			WorkflowID:     parent.WorkflowID,
			ForkPoint:      forkPoint,
			Variables:      make(map[string]any, len(variables)),
			NodeExecutions: make(map[string]*NodeExecutionSnapshot, len(snapshots)),
			Prompt:         prompt.Copy(),
			Strategy:       strategy,
			CreatedAt:      time.Now(),
		}
		for k, v := range variables {
			branch.Variables[k] = deepCopyValue(v)
		}
		for k, v := range snapshots {
			branch.NodeExecutions[k] = v.Copy()
		}
		fork.Branches = append(fork.Branches, branch)
	}

	// Record fork bookkeeping in the parent context; the join clears it.
	ec.Set(forkVariable(fork.ID, "point"), forkPoint)
	branchIDs := make([]any, len(fork.Branches))
	for i, id := range fork.BranchIDs() {
		branchIDs[i] = id
	}
	ec.Set(forkVariable(fork.ID, "branches"), branchIDs)

	c.logger.Info("fork created",
		"fork_id", fork.ID,
		"parent_thread_id", parent.ID,
		"fork_point", forkPoint,
		"branches", branchCount,
		"retention", strategy.Retention,
		"node_state", strategy.NodeState,
		"parallel", strategy.Parallel)

	return fork, nil
}

// calculateContextRetention selects the variables and snapshots carried into
// branches, before node-state handling is applied.
func (c *ForkCoordinator) calculateContextRetention(parent Thread, ec *ExecutionContext, retention ContextRetention) (map[string]any, map[string]*NodeExecutionSnapshot) {
	switch retention {
	case RetentionFull:
		return ec.Variables(), ec.NodeExecutions()

	case RetentionPartial:
		variables := map[string]any{}
		for name := range ec.Variables() {
			origin := ec.origin(name)
			if origin == "" {
				// Seeded input variable, always visible.
				variables[name], _ = ec.Get(name)
				continue
			}
			if snapshot, ok := ec.NodeExecution(origin); ok &&
				(snapshot.Status == NodeStatusCompleted || snapshot.Status == NodeStatusSkipped) {
				variables[name], _ = ec.Get(name)
			}
		}
		snapshots := map[string]*NodeExecutionSnapshot{}
		for id, snapshot := range ec.NodeExecutions() {
			if snapshot.Status == NodeStatusCompleted || snapshot.Status == NodeStatusSkipped {
				snapshots[id] = snapshot
			}
		}
		return variables, snapshots

	case RetentionMinimal:
		return map[string]any{
			"session_id":  parent.SessionID,
			"workflow_id": parent.WorkflowID,
		}, map[string]*NodeExecutionSnapshot{}
	}
	return map[string]any{}, map[string]*NodeExecutionSnapshot{}
}

// applyNodeStateHandling filters the retained snapshots per the handling
// policy.
func applyNodeStateHandling(snapshots map[string]*NodeExecutionSnapshot, handling NodeStateHandling) map[string]*NodeExecutionSnapshot {
	switch handling {
	case NodeStateCopy:
		return snapshots
	case NodeStateReset:
		return map[string]*NodeExecutionSnapshot{}
	case NodeStateInherit:
		out := map[string]*NodeExecutionSnapshot{}
		for id, snapshot := range snapshots {
			if snapshot.Status == NodeStatusCompleted || snapshot.Status == NodeStatusSkipped {
				out[id] = snapshot
			}
		}
		return out
	}
	return snapshots
}

// forkVariable names a fork bookkeeping variable in the parent context.
func forkVariable(forkID, suffix string) string {
	return fmt.Sprintf("fork:%s:%s", forkID, suffix)
}

// ClearForkVariables removes all bookkeeping variables for a fork from the
// given context.
func ClearForkVariables(ec *ExecutionContext, forkID string) {
	prefix := forkVariable(forkID, "")
	for _, name := range ec.VariableNames() {
		if strings.HasPrefix(name, prefix) {
			ec.Delete(name)
		}
	}
}
