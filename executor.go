package thread

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
)

// ExecutionServiceOptions configures a new ExecutionService.
type ExecutionServiceOptions struct {
	Repository     Repository
	Factory        NodeFactory
	Checkpointer   Checkpointer
	Observer       ExecutionObserver
	Formatter      Formatter
	Logger         *slog.Logger
	BranchPoolSize int
}

// ExecutionService drives one thread lineage through its steps, strictly
// sequentially. Parallelism exists only across lineages: a fork produces
// branch lineages that run concurrently on a bounded pool, each owning an
// isolated ExecutionContext.
type ExecutionService struct {
	repository     Repository
	factory        NodeFactory
	checkpointer   Checkpointer
	observer       ExecutionObserver
	formatter      Formatter
	logger         *slog.Logger
	branchPoolSize int

	mutex   sync.Mutex
	signals map[string]*controlSignals
}

// controlSignals carries cooperative pause/cancel requests toward an
// in-flight execution loop. The loop observes them between steps, never
// during one.
type controlSignals struct {
	mutex           sync.Mutex
	pauseRequested  bool
	cancelRequested bool
	cancelReason    string
}

// NewExecutionService creates a new execution service.
func NewExecutionService(opts ExecutionServiceOptions) (*ExecutionService, error) {
	if opts.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if opts.Factory == nil {
		return nil, fmt.Errorf("node factory is required")
	}
	if opts.Checkpointer == nil {
		opts.Checkpointer = NewNullCheckpointer()
	}
	if opts.Observer == nil {
		opts.Observer = &BaseObserver{}
	}
	if opts.Formatter == nil {
		opts.Formatter = &nullFormatter{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.BranchPoolSize <= 0 {
		opts.BranchPoolSize = 8
	}
	return &ExecutionService{
		repository:     opts.Repository,
		factory:        opts.Factory,
		checkpointer:   opts.Checkpointer,
		observer:       opts.Observer,
		formatter:      opts.Formatter,
		logger:         opts.Logger,
		branchPoolSize: opts.BranchPoolSize,
		signals:        map[string]*controlSignals{},
	}, nil
}

// ExecuteSequentially validates preconditions, starts the thread, and runs
// its steps one at a time until completion, pause, cancellation, or failure.
// Step-level failures are recovered into the ExecutionResult, never
// propagated as errors; the error return is reserved for precondition
// violations and infrastructure failures.
func (s *ExecutionService) ExecuteSequentially(ctx context.Context, t Thread, g Graph, input map[string]any) (Thread, *ExecutionResult, error) {
	if t.Status != StatusPending {
		return t, nil, NewPreconditionError(fmt.Sprintf(
			"thread %s has status %q, expected %q", t.ID, t.Status, StatusPending))
	}
	if err := g.Executable(); err != nil {
		return t, nil, err
	}
	running, err := s.repository.HasRunningThreads(ctx, t.SessionID)
	if err != nil {
		return t, nil, fmt.Errorf("failed to query session threads: %w", err)
	}
	if running {
		return t, nil, NewConcurrencyError(t.SessionID)
	}
	nodes, err := s.resolveNodes(g.NodeConfigs())
	if err != nil {
		return t, nil, err
	}

	t, err = t.Start()
	if err != nil {
		return t, nil, err
	}
	if t, err = s.repository.Save(ctx, t); err != nil {
		return t, nil, fmt.Errorf("failed to persist thread start: %w", err)
	}
	s.observer.ThreadStarted(ctx, s.threadEvent(t))

	ec := NewExecutionContext(t.ID, input)
	return s.run(ctx, t, nodes, 0, ec, true)
}

// ResumeExecution restores a paused thread from its latest checkpoint and
// continues from the recorded current step. Resuming a thread that is
// already executing in this process is an idempotent no-op; a running thread
// with no in-process execution was orphaned by a crash and is recovered from
// its latest checkpoint instead.
func (s *ExecutionService) ResumeExecution(ctx context.Context, threadID string, g Graph) (Thread, *ExecutionResult, error) {
	t, err := s.repository.FindByID(ctx, threadID)
	if err != nil {
		return Thread{}, nil, err
	}
	recovering := false
	if t.Status == StatusRunning {
		if s.activeSignals(threadID) != nil {
			return t, nil, nil
		}
		recovering = true
	}
	if !recovering {
		running, err := s.repository.HasRunningThreads(ctx, t.SessionID)
		if err != nil {
			return t, nil, fmt.Errorf("failed to query session threads: %w", err)
		}
		if running {
			return t, nil, NewConcurrencyError(t.SessionID)
		}
	}

	checkpoint, err := s.checkpointer.LoadCheckpoint(ctx, t.ID)
	if err != nil {
		return t, nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if checkpoint == nil {
		return t, nil, NewCheckpointError(fmt.Sprintf("no checkpoint found for thread %s", t.ID))
	}
	restored, ec, err := Restore(t, checkpoint)
	if err != nil {
		return t, nil, err
	}

	nodes, err := s.resolveNodes(g.NodeConfigs())
	if err != nil {
		return t, nil, err
	}
	start := 0
	switch restored.Execution.CurrentStep {
	case "":
	case stepFinished:
		start = len(nodes)
	default:
		start = -1
		for i, node := range nodes {
			if node.ID() == restored.Execution.CurrentStep {
				start = i
				break
			}
		}
		if start < 0 {
			return t, nil, NewPreconditionError(fmt.Sprintf(
				"step %q from checkpoint not found in workflow %s", restored.Execution.CurrentStep, g.ID()))
		}
	}

	if restored.Status == StatusRunning {
		// Crash recovery: the thread never left running, so there is no
		// transition to make, only state to reestablish from the checkpoint.
		s.logger.Warn("recovering orphaned running thread from checkpoint",
			"thread_id", restored.ID,
			"current_step", restored.Execution.CurrentStep)
		restored, err = restored.Touch(time.Now())
		if err != nil {
			return t, nil, err
		}
	} else {
		restored, err = restored.Resume()
		if err != nil {
			return t, nil, err
		}
	}
	if restored, err = s.repository.Save(ctx, restored); err != nil {
		return t, nil, fmt.Errorf("failed to persist thread resume: %w", err)
	}
	s.observer.ThreadTransitioned(ctx, s.threadEvent(restored))
	s.logger.Info("resuming thread from checkpoint",
		"thread_id", restored.ID,
		"current_step", restored.Execution.CurrentStep)

	return s.run(ctx, restored, nodes, start, ec, true)
}

// PauseExecution requests a pause. For a thread executing in this process the
// request is observed between steps; pausing an already paused thread is a
// no-op.
func (s *ExecutionService) PauseExecution(ctx context.Context, threadID string) (Thread, error) {
	t, err := s.repository.FindByID(ctx, threadID)
	if err != nil {
		return Thread{}, err
	}
	if t.Status == StatusPaused {
		return t, nil
	}
	if sig := s.activeSignals(threadID); sig != nil {
		sig.mutex.Lock()
		sig.pauseRequested = true
		sig.mutex.Unlock()
		return t, nil
	}
	t, err = t.Pause()
	if err != nil {
		return t, err
	}
	if t, err = s.repository.Save(ctx, t); err != nil {
		return t, fmt.Errorf("failed to persist thread pause: %w", err)
	}
	s.observer.ThreadTransitioned(ctx, s.threadEvent(t))
	return t, nil
}

// CancelExecution requests cancellation. Cancellation is cooperative: an
// in-flight step is not preempted; the loop observes the mark between steps.
// Cancelling an already cancelled thread is a no-op.
func (s *ExecutionService) CancelExecution(ctx context.Context, threadID, reason string) (Thread, error) {
	t, err := s.repository.FindByID(ctx, threadID)
	if err != nil {
		return Thread{}, err
	}
	if t.Status == StatusCancelled {
		return t, nil
	}
	if sig := s.activeSignals(threadID); sig != nil {
		sig.mutex.Lock()
		sig.cancelRequested = true
		sig.cancelReason = reason
		sig.mutex.Unlock()
		return t, nil
	}
	t, err = t.Cancel(reason)
	if err != nil {
		return t, err
	}
	if t, err = s.repository.Save(ctx, t); err != nil {
		return t, fmt.Errorf("failed to persist thread cancel: %w", err)
	}
	s.observer.ThreadFinished(ctx, s.threadEvent(t))
	return t, nil
}

// stepFinished is recorded as the current step once the final node has
// completed. A checkpoint carrying it resumes straight to completion instead
// of replaying the workflow from the start.
const stepFinished = "__finished__"

// run executes nodes[start:] against the given context. Branch lineages run
// with persist=false: their state lives in the BranchResult consumed by the
// join, not in the repository.
func (s *ExecutionService) run(ctx context.Context, t Thread, nodes []Node, start int, ec *ExecutionContext, persist bool) (Thread, *ExecutionResult, error) {
	sig := s.registerSignals(t.ID)
	defer s.unregisterSignals(t.ID)

	var history []StepRecord
	total := len(nodes)

	for i := start; i < total; i++ {
		node := nodes[i]

		progress := 0
		if total > 0 {
			progress = i * 100 / total
		}
		var err error
		t, err = t.UpdateProgress(progress, node.ID())
		if err != nil {
			return t, nil, err
		}

		// Observe control requests between steps.
		if reason, cancelled := sig.takeCancel(); cancelled {
			return s.finishCancelled(ctx, t, ec, history, reason, persist)
		}
		if ctx.Err() != nil {
			return s.finishCancelled(ctx, t, ec, history, ctx.Err().Error(), persist)
		}
		if sig.takePause() {
			return s.finishPaused(ctx, t, ec, history, persist)
		}

		t, history, err = s.executeStep(ctx, t, node, ec, history)
		if err != nil {
			return t, nil, err
		}
		if t.Status == StatusFailed {
			return s.finish(ctx, t, ec, history, persist)
		}

		// Advance past the completed step so neither resumption after a
		// pause nor recovery after a crash executes it twice.
		nextStep := stepFinished
		if i+1 < total {
			nextStep = nodes[i+1].ID()
		}
		if t, err = t.UpdateProgress(progress, nextStep); err != nil {
			return t, nil, err
		}

		last := history[len(history)-1]
		switch last.Signal {
		case SignalPause:
			return s.finishPaused(ctx, t, ec, history, persist)
		case SignalCancel:
			return s.finishCancelled(ctx, t, ec, history, "cancelled by step "+node.ID(), persist)
		}

		if persist {
			if err := s.checkpointer.SaveCheckpoint(ctx, Snapshot(t, ec)); err != nil {
				return t, nil, fmt.Errorf("failed to save checkpoint: %w", err)
			}
		}
	}

	var err error
	t, err = t.Complete()
	if err != nil {
		return t, nil, err
	}
	return s.finish(ctx, t, ec, history, persist)
}

// executeStep runs one node, records its snapshot and history entry, and
// converts a step failure into a failed thread. No error is ever dropped
// silently.
func (s *ExecutionService) executeStep(ctx context.Context, t Thread, node Node, ec *ExecutionContext, history []StepRecord) (Thread, []StepRecord, error) {
	startTime := time.Now()
	ec.BeginNode(node.ID())
	ec.RecordNodeExecution(node.ID(), &NodeExecutionSnapshot{
		NodeID:    node.ID(),
		Status:    NodeStatusRunning,
		StartTime: startTime,
	})
	s.formatter.PrintStepStart(node.ID(), node.Type())
	s.observer.StepStarted(ctx, &StepEvent{
		ThreadID:  t.ID,
		NodeID:    node.ID(),
		NodeType:  node.Type(),
		Status:    NodeStatusRunning,
		StartTime: startTime,
	})

	result, execErr := node.Execute(ctx, ec)
	endTime := time.Now()
	duration := endTime.Sub(startTime)

	if execErr != nil || result == nil || !result.Success {
		message := "step failed"
		if execErr != nil {
			message = execErr.Error()
		} else if result != nil && result.Error != "" {
			message = result.Error
		}
		snapshot := &NodeExecutionSnapshot{
			NodeID:    node.ID(),
			Status:    NodeStatusFailed,
			Error:     message,
			StartTime: startTime,
			EndTime:   endTime,
		}
		ec.RecordNodeExecution(node.ID(), snapshot)
		history = append(history, StepRecord{
			NodeID:    node.ID(),
			Timestamp: endTime,
			Status:    NodeStatusFailed,
			Error:     message,
			Duration:  duration,
		})
		s.formatter.PrintStepError(node.ID(), fmt.Errorf("%s", message))
		s.observer.StepFinished(ctx, &StepEvent{
			ThreadID:  t.ID,
			NodeID:    node.ID(),
			NodeType:  node.Type(),
			Status:    NodeStatusFailed,
			Error:     message,
			StartTime: startTime,
			EndTime:   endTime,
			Duration:  duration,
		})
		failed, err := t.Fail(message)
		if err != nil {
			return t, history, err
		}
		return failed, history, nil
	}

	snapshot := &NodeExecutionSnapshot{
		NodeID:    node.ID(),
		Status:    NodeStatusCompleted,
		Output:    result.Output,
		StartTime: startTime,
		EndTime:   endTime,
	}
	ec.RecordNodeExecution(node.ID(), snapshot)
	history = append(history, StepRecord{
		NodeID:    node.ID(),
		Timestamp: endTime,
		Status:    NodeStatusCompleted,
		Output:    result.Output,
		Duration:  duration,
		Signal:    result.Signal,
	})
	s.formatter.PrintStepOutput(node.ID(), result.Output)
	s.observer.StepFinished(ctx, &StepEvent{
		ThreadID:  t.ID,
		NodeID:    node.ID(),
		NodeType:  node.Type(),
		Status:    NodeStatusCompleted,
		Output:    result.Output,
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  duration,
	})
	return t, history, nil
}

func (s *ExecutionService) finishPaused(ctx context.Context, t Thread, ec *ExecutionContext, history []StepRecord, persist bool) (Thread, *ExecutionResult, error) {
	paused, err := t.Pause()
	if err != nil {
		return t, nil, err
	}
	return s.finish(ctx, paused, ec, history, persist)
}

func (s *ExecutionService) finishCancelled(ctx context.Context, t Thread, ec *ExecutionContext, history []StepRecord, reason string, persist bool) (Thread, *ExecutionResult, error) {
	cancelled, err := t.Cancel(reason)
	if err != nil {
		return t, nil, err
	}
	return s.finish(ctx, cancelled, ec, history, persist)
}

// finish persists the terminal (or paused) thread, checkpoints it, and
// notifies observers.
func (s *ExecutionService) finish(ctx context.Context, t Thread, ec *ExecutionContext, history []StepRecord, persist bool) (Thread, *ExecutionResult, error) {
	if persist {
		var err error
		if t, err = s.repository.Save(ctx, t); err != nil {
			return t, nil, fmt.Errorf("failed to persist thread %s: %w", t.Status, err)
		}
		if err := s.checkpointer.SaveCheckpoint(ctx, Snapshot(t, ec)); err != nil {
			s.logger.Error("failed to save final checkpoint", "thread_id", t.ID, "error", err)
		}
	}
	event := s.threadEvent(t)
	if t.Status.IsTerminal() {
		s.observer.ThreadFinished(ctx, event)
	} else {
		s.observer.ThreadTransitioned(ctx, event)
	}
	s.logger.Info("thread execution finished",
		"thread_id", t.ID,
		"status", t.Status,
		"steps", len(history))
	return t, newExecutionResult(t, ec, history), nil
}

// resolveNodes constructs and validates nodes from their configurations.
func (s *ExecutionService) resolveNodes(configs []NodeConfig) ([]Node, error) {
	nodes := make([]Node, 0, len(configs))
	for _, cfg := range configs {
		node, err := s.factory.New(cfg)
		if err != nil {
			return nil, NewPreconditionError(fmt.Sprintf("node %q: %s", cfg.ID, err))
		}
		if err := node.Validate(); err != nil {
			return nil, NewPreconditionError(fmt.Sprintf("node %q: %s", cfg.ID, err))
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (s *ExecutionService) threadEvent(t Thread) *ThreadEvent {
	return &ThreadEvent{
		ThreadID:   t.ID,
		SessionID:  t.SessionID,
		WorkflowID: t.WorkflowID,
		Status:     t.Status,
		Progress:   t.Execution.Progress,
		Error:      t.Execution.ErrorMessage,
		Timestamp:  time.Now(),
	}
}

func (s *ExecutionService) registerSignals(threadID string) *controlSignals {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	sig := &controlSignals{}
	s.signals[threadID] = sig
	return sig
}

func (s *ExecutionService) unregisterSignals(threadID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.signals, threadID)
}

func (s *ExecutionService) activeSignals(threadID string) *controlSignals {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.signals[threadID]
}

func (c *controlSignals) takePause() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	requested := c.pauseRequested
	c.pauseRequested = false
	return requested
}

func (c *controlSignals) takeCancel() (string, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if !c.cancelRequested {
		return "", false
	}
	return c.cancelReason, true
}

// ExecuteBranches runs each branch of a fork as an independent lineage and
// resolves them through the join. Branch steps are supplied per branch,
// aligned with fork.Branches. When the join condition is satisfied with
// branches still outstanding, the remaining branches receive a best-effort
// cooperative cancellation; their late results are ignored.
func (s *ExecutionService) ExecuteBranches(ctx context.Context, fork *Fork, steps [][]NodeConfig, strategy JoinStrategy, parent *ExecutionContext) (*JoinResult, error) {
	if len(steps) != len(fork.Branches) {
		return nil, NewInvalidArgumentError(fmt.Sprintf(
			"fork %s has %d branches but %d step lists were supplied", fork.ID, len(fork.Branches), len(steps)))
	}
	join, err := NewJoinCoordinator(fork.ID, fork.BranchIDs(), strategy)
	if err != nil {
		return nil, err
	}

	branchCtx, cancelBranches := context.WithCancel(ctx)
	defer cancelBranches()

	if fork.Strategy.Parallel {
		err = s.runBranchesParallel(ctx, branchCtx, cancelBranches, fork, steps, join)
	} else {
		err = s.runBranchesSequential(branchCtx, fork, steps, join)
	}
	if err != nil {
		return nil, err
	}

	merged, err := join.MergeBranchResults()
	if err != nil {
		return nil, err
	}
	if !strategy.Merge {
		merged.Results = nil
	}
	join.Clear()
	if parent != nil {
		ClearForkVariables(parent, fork.ID)
	}
	return merged, nil
}

func (s *ExecutionService) runBranchesParallel(ctx, branchCtx context.Context, cancelBranches context.CancelFunc, fork *Fork, steps [][]NodeConfig, join *JoinCoordinator) error {
	pool, err := ants.NewPool(s.branchPoolSize)
	if err != nil {
		return fmt.Errorf("failed to create branch pool: %w", err)
	}
	defer pool.Release()

	results := make(chan *BranchResult, len(fork.Branches))
	for i := range fork.Branches {
		branch := fork.Branches[i]
		configs := steps[i]
		task := func() {
			results <- s.runBranch(branchCtx, branch, configs)
		}
		if err := pool.Submit(task); err != nil {
			return fmt.Errorf("failed to submit branch %s: %w", branch.BranchID, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case result := <-results:
			if err := join.AddResult(result); err != nil {
				s.logger.Warn("discarding branch result", "branch_id", result.BranchID, "error", err)
				continue
			}
			if decision := join.CheckJoinCondition(); decision.Satisfied {
				if pending := join.PendingBranchIDs(); len(pending) > 0 {
					s.logger.Info("join satisfied, abandoning outstanding branches",
						"fork_id", fork.ID, "pending", pending)
					cancelBranches()
				}
				return nil
			}
		}
	}
}

func (s *ExecutionService) runBranchesSequential(ctx context.Context, fork *Fork, steps [][]NodeConfig, join *JoinCoordinator) error {
	for i := range fork.Branches {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		result := s.runBranch(ctx, fork.Branches[i], steps[i])
		if err := join.AddResult(result); err != nil {
			s.logger.Warn("discarding branch result", "branch_id", result.BranchID, "error", err)
			continue
		}
		if decision := join.CheckJoinCondition(); decision.Satisfied {
			return nil
		}
	}
	return nil
}

// runBranch executes one branch lineage to completion. Branch state is not
// persisted: the branch's outcome lives entirely in the returned
// BranchResult.
func (s *ExecutionService) runBranch(ctx context.Context, fc *ForkContext, configs []NodeConfig) *BranchResult {
	startTime := time.Now()
	s.observer.BranchStarted(ctx, &BranchEvent{
		ForkID:    fc.ForkID,
		BranchID:  fc.BranchID,
		ParentID:  fc.ParentThreadID,
		StartTime: startTime,
	})

	result := s.executeBranch(ctx, fc, configs)
	result.ExecutionTime = time.Since(startTime)

	endTime := time.Now()
	s.observer.BranchFinished(ctx, &BranchEvent{
		ForkID:    fc.ForkID,
		BranchID:  fc.BranchID,
		ParentID:  fc.ParentThreadID,
		Success:   result.Success,
		Error:     result.Error,
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  endTime.Sub(startTime),
	})
	return result
}

func (s *ExecutionService) executeBranch(ctx context.Context, fc *ForkContext, configs []NodeConfig) *BranchResult {
	nodes, err := s.resolveNodes(configs)
	if err != nil {
		return &BranchResult{BranchID: fc.BranchID, Success: false, Error: err.Error()}
	}

	now := time.Now()
	branch := Thread{
		ID:         fc.BranchID,
		SessionID:  fc.SessionID,
		WorkflowID: fc.WorkflowID,
		Status:     StatusPending,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	branch, err = branch.Start()
	if err != nil {
		return &BranchResult{BranchID: fc.BranchID, Success: false, Error: err.Error()}
	}

	ec := fc.NewBranchContext()
	branch, res, err := s.run(ctx, branch, nodes, 0, ec, false)
	if err != nil {
		return &BranchResult{BranchID: fc.BranchID, Success: false, Error: err.Error()}
	}

	out := &BranchResult{
		BranchID: fc.BranchID,
		Success:  branch.Status == StatusCompleted,
		Error:    res.ErrorMessage,
	}
	if n := len(res.History); n > 0 {
		out.TargetNodeID = res.History[n-1].NodeID
		out.Output = res.History[n-1].Output
	}
	return out
}
