// Package nodes provides the builtin node kinds and the factory that
// constructs them from configuration. Heavier kinds (llm, tool,
// sub-workflow) are supplied by the embedding application through the same
// factory contract.
package nodes

import (
	"fmt"

	"github.com/deepnoodle-ai/thread"
)

// Factory constructs builtin nodes from configuration.
type Factory struct{}

// NewFactory creates a factory for the builtin node kinds.
func NewFactory() *Factory {
	return &Factory{}
}

// New constructs a node from its configuration. An unknown type is an error.
func (f *Factory) New(cfg thread.NodeConfig) (thread.Node, error) {
	switch cfg.Type {
	case "start":
		return NewStartNode(cfg), nil
	case "end":
		return NewEndNode(cfg), nil
	case "noop":
		return NewNoopNode(cfg), nil
	case "transform":
		return NewTransformNode(cfg), nil
	case "condition":
		return NewConditionNode(cfg), nil
	case "wait":
		return NewWaitNode(cfg), nil
	case "interaction":
		return NewInteractionNode(cfg), nil
	}
	return nil, fmt.Errorf("unknown node type %q", cfg.Type)
}

// stringParam returns a string parameter from a node configuration.
func stringParam(cfg thread.NodeConfig, key string) string {
	if value, ok := cfg.Parameters[key].(string); ok {
		return value
	}
	return ""
}
