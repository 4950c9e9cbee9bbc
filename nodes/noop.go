package nodes

import (
	"context"

	"github.com/deepnoodle-ai/thread"
)

// NoopNode does nothing and always succeeds.
type NoopNode struct {
	config thread.NodeConfig
}

func NewNoopNode(cfg thread.NodeConfig) *NoopNode {
	return &NoopNode{config: cfg}
}

func (n *NoopNode) ID() string { return n.config.ID }

func (n *NoopNode) Type() string { return "noop" }

func (n *NoopNode) Validate() error { return nil }

func (n *NoopNode) Execute(ctx context.Context, ec *thread.ExecutionContext) (*thread.NodeResult, error) {
	return &thread.NodeResult{Success: true}, nil
}
