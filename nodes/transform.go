package nodes

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/thread"
	"github.com/deepnoodle-ai/thread/script"
)

// TransformNode evaluates a script expression against the current variables
// and stores the result under the "store" variable name.
type TransformNode struct {
	config thread.NodeConfig
}

func NewTransformNode(cfg thread.NodeConfig) *TransformNode {
	return &TransformNode{config: cfg}
}

func (n *TransformNode) ID() string { return n.config.ID }

func (n *TransformNode) Type() string { return "transform" }

func (n *TransformNode) Validate() error {
	if stringParam(n.config, "expression") == "" {
		return fmt.Errorf("transform node %q requires an expression", n.config.ID)
	}
	if stringParam(n.config, "store") == "" {
		return fmt.Errorf("transform node %q requires a store variable", n.config.ID)
	}
	return nil
}

func (n *TransformNode) Execute(ctx context.Context, ec *thread.ExecutionContext) (*thread.NodeResult, error) {
	expression := stringParam(n.config, "expression")
	value, err := script.Eval(ctx, expression, ec.Variables())
	if err != nil {
		return nil, fmt.Errorf("transform node %q: %w", n.config.ID, err)
	}
	result := value.Value()
	ec.Set(stringParam(n.config, "store"), result)
	return &thread.NodeResult{Success: true, Output: result}, nil
}
