package thread

import (
	"context"
)

// Signal is a control request a node can raise toward the orchestration loop.
// The loop observes signals between steps; an in-flight node is never
// preempted.
type Signal string

const (
	SignalNone   Signal = ""
	SignalPause  Signal = "pause"
	SignalCancel Signal = "cancel"
)

// NodeResult is the outcome of one node execution.
type NodeResult struct {
	Success  bool           `json:"success"`
	Output   any            `json:"output,omitempty"`
	Error    string         `json:"error,omitempty"`
	Signal   Signal         `json:"signal,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Node is a typed unit of work within a workflow graph. Concrete kinds (llm,
// tool, condition, transform, fork, join, sub-workflow, wait, interaction)
// are constructed by a NodeFactory from configuration; the execution core
// only requires this contract.
type Node interface {

	// ID returns the node's unique identifier within its graph.
	ID() string

	// Type returns the node kind.
	Type() string

	// Execute runs the node against the lineage's execution context.
	Execute(ctx context.Context, ec *ExecutionContext) (*NodeResult, error)

	// Validate checks the node's configuration.
	Validate() error
}

// NodeConfig describes a node in a workflow graph definition.
type NodeConfig struct {
	ID         string         `json:"id" yaml:"id"`
	Type       string         `json:"type" yaml:"type"`
	Name       string         `json:"name,omitempty" yaml:"name,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// NodeFactory constructs nodes from configuration. Concrete node kinds live
// outside the execution core.
type NodeFactory interface {
	New(cfg NodeConfig) (Node, error)
}

// NodeFunc adapts a plain function to the Node interface.
type NodeFunc struct {
	id       string
	nodeType string
	fn       func(ctx context.Context, ec *ExecutionContext) (*NodeResult, error)
}

// NewNodeFunc creates a Node backed by a function.
func NewNodeFunc(id, nodeType string, fn func(ctx context.Context, ec *ExecutionContext) (*NodeResult, error)) *NodeFunc {
	return &NodeFunc{id: id, nodeType: nodeType, fn: fn}
}

func (n *NodeFunc) ID() string {
	return n.id
}

func (n *NodeFunc) Type() string {
	return n.nodeType
}

func (n *NodeFunc) Execute(ctx context.Context, ec *ExecutionContext) (*NodeResult, error) {
	return n.fn(ctx, ec)
}

func (n *NodeFunc) Validate() error {
	return nil
}
