package thread

import (
	"context"
	"time"
)

// ExecutionObserver receives notifications after each committed transition
// and around step and branch execution. Observers replace implicit domain
// events: the orchestration loop publishes to an explicit observer list once
// a transition has been persisted.
type ExecutionObserver interface {

	// Thread-level notifications
	ThreadStarted(ctx context.Context, event *ThreadEvent)
	ThreadTransitioned(ctx context.Context, event *ThreadEvent)
	ThreadFinished(ctx context.Context, event *ThreadEvent)

	// Step-level notifications
	StepStarted(ctx context.Context, event *StepEvent)
	StepFinished(ctx context.Context, event *StepEvent)

	// Branch-level notifications
	BranchStarted(ctx context.Context, event *BranchEvent)
	BranchFinished(ctx context.Context, event *BranchEvent)
}

// ThreadEvent provides context for thread-level notifications.
type ThreadEvent struct {
	ThreadID   string
	SessionID  string
	WorkflowID string
	Status     Status
	Progress   int
	Error      string
	Timestamp  time.Time
}

// StepEvent provides context for step-level notifications.
type StepEvent struct {
	ThreadID  string
	NodeID    string
	NodeType  string
	Status    NodeExecutionStatus
	Output    any
	Error     string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// BranchEvent provides context for branch-level notifications.
type BranchEvent struct {
	ForkID    string
	BranchID  string
	ParentID  string
	Success   bool
	Error     string
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// BaseObserver provides a default implementation that does nothing. Embed it
// to implement only the notifications you care about.
type BaseObserver struct{}

func (o *BaseObserver) ThreadStarted(ctx context.Context, event *ThreadEvent)      {}
func (o *BaseObserver) ThreadTransitioned(ctx context.Context, event *ThreadEvent) {}
func (o *BaseObserver) ThreadFinished(ctx context.Context, event *ThreadEvent)     {}
func (o *BaseObserver) StepStarted(ctx context.Context, event *StepEvent)          {}
func (o *BaseObserver) StepFinished(ctx context.Context, event *StepEvent)         {}
func (o *BaseObserver) BranchStarted(ctx context.Context, event *BranchEvent)      {}
func (o *BaseObserver) BranchFinished(ctx context.Context, event *BranchEvent)     {}

// ObserverChain fans notifications out to multiple observers in order.
type ObserverChain struct {
	observers []ExecutionObserver
}

// NewObserverChain creates a new observer chain.
func NewObserverChain(observers ...ExecutionObserver) *ObserverChain {
	return &ObserverChain{observers: observers}
}

// Add appends an observer to the chain.
func (c *ObserverChain) Add(observer ExecutionObserver) {
	c.observers = append(c.observers, observer)
}

func (c *ObserverChain) ThreadStarted(ctx context.Context, event *ThreadEvent) {
	for _, o := range c.observers {
		o.ThreadStarted(ctx, event)
	}
}

func (c *ObserverChain) ThreadTransitioned(ctx context.Context, event *ThreadEvent) {
	for _, o := range c.observers {
		o.ThreadTransitioned(ctx, event)
	}
}

func (c *ObserverChain) ThreadFinished(ctx context.Context, event *ThreadEvent) {
	for _, o := range c.observers {
		o.ThreadFinished(ctx, event)
	}
}

func (c *ObserverChain) StepStarted(ctx context.Context, event *StepEvent) {
	for _, o := range c.observers {
		o.StepStarted(ctx, event)
	}
}

func (c *ObserverChain) StepFinished(ctx context.Context, event *StepEvent) {
	for _, o := range c.observers {
		o.StepFinished(ctx, event)
	}
}

func (c *ObserverChain) BranchStarted(ctx context.Context, event *BranchEvent) {
	for _, o := range c.observers {
		o.BranchStarted(ctx, event)
	}
}

func (c *ObserverChain) BranchFinished(ctx context.Context, event *BranchEvent) {
	for _, o := range c.observers {
		o.BranchFinished(ctx, event)
	}
}
