package nodes

import (
	"context"

	"github.com/deepnoodle-ai/thread"
)

// EndNode marks the exit point of a workflow. When a "variable" parameter is
// set, the node surfaces that variable's value as its output.
type EndNode struct {
	config thread.NodeConfig
}

func NewEndNode(cfg thread.NodeConfig) *EndNode {
	return &EndNode{config: cfg}
}

func (n *EndNode) ID() string { return n.config.ID }

func (n *EndNode) Type() string { return "end" }

func (n *EndNode) Validate() error { return nil }

func (n *EndNode) Execute(ctx context.Context, ec *thread.ExecutionContext) (*thread.NodeResult, error) {
	var output any = "done"
	if name := stringParam(n.config, "variable"); name != "" {
		if value, ok := ec.Get(name); ok {
			output = value
		}
	}
	return &thread.NodeResult{Success: true, Output: output}, nil
}
