package nodes

import (
	"context"

	"github.com/deepnoodle-ai/thread"
)

// StartNode marks the entry point of a workflow. It may seed initial
// variables from its "variables" parameter.
type StartNode struct {
	config thread.NodeConfig
}

func NewStartNode(cfg thread.NodeConfig) *StartNode {
	return &StartNode{config: cfg}
}

func (n *StartNode) ID() string { return n.config.ID }

func (n *StartNode) Type() string { return "start" }

func (n *StartNode) Validate() error { return nil }

func (n *StartNode) Execute(ctx context.Context, ec *thread.ExecutionContext) (*thread.NodeResult, error) {
	if seed, ok := n.config.Parameters["variables"].(map[string]any); ok {
		for name, value := range seed {
			ec.Set(name, value)
		}
	}
	return &thread.NodeResult{Success: true, Output: "started"}, nil
}
