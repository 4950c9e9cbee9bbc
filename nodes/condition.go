package nodes

import (
	"context"
	"fmt"

	"github.com/deepnoodle-ai/thread"
	"github.com/deepnoodle-ai/thread/script"
)

// ConditionNode evaluates a script predicate against the current variables.
// The truthiness of the result becomes the node output, and is also stored
// when a "store" parameter names a variable.
type ConditionNode struct {
	config thread.NodeConfig
}

func NewConditionNode(cfg thread.NodeConfig) *ConditionNode {
	return &ConditionNode{config: cfg}
}

func (n *ConditionNode) ID() string { return n.config.ID }

func (n *ConditionNode) Type() string { return "condition" }

func (n *ConditionNode) Validate() error {
	if stringParam(n.config, "expression") == "" {
		return fmt.Errorf("condition node %q requires an expression", n.config.ID)
	}
	return nil
}

func (n *ConditionNode) Execute(ctx context.Context, ec *thread.ExecutionContext) (*thread.NodeResult, error) {
	expression := stringParam(n.config, "expression")
	value, err := script.Eval(ctx, expression, ec.Variables())
	if err != nil {
		return nil, fmt.Errorf("condition node %q: %w", n.config.ID, err)
	}
	outcome := value.IsTruthy()
	if store := stringParam(n.config, "store"); store != "" {
		ec.Set(store, outcome)
	}
	return &thread.NodeResult{Success: true, Output: outcome}, nil
}
