package thread

import (
	"sort"
	"time"
)

// NodeExecutionStatus represents the state of one node execution within a
// lineage.
type NodeExecutionStatus string

const (
	NodeStatusPending   NodeExecutionStatus = "pending"
	NodeStatusRunning   NodeExecutionStatus = "running"
	NodeStatusCompleted NodeExecutionStatus = "completed"
	NodeStatusFailed    NodeExecutionStatus = "failed"
	NodeStatusSkipped   NodeExecutionStatus = "skipped"
)

// IsTerminal reports whether the node execution reached a final state.
func (s NodeExecutionStatus) IsTerminal() bool {
	return s == NodeStatusCompleted || s == NodeStatusFailed || s == NodeStatusSkipped
}

// NodeExecutionSnapshot captures the result of one node execution. Snapshots
// are used both for checkpointing and for fork retention: the copy and
// inherit policies only propagate snapshots whose status is completed or
// skipped.
type NodeExecutionSnapshot struct {
	NodeID    string              `json:"node_id"`
	Status    NodeExecutionStatus `json:"status"`
	Output    any                 `json:"output,omitempty"`
	Error     string              `json:"error,omitempty"`
	StartTime time.Time           `json:"start_time,omitzero"`
	EndTime   time.Time           `json:"end_time,omitzero"`
}

// Copy returns a copy of the snapshot.
func (s *NodeExecutionSnapshot) Copy() *NodeExecutionSnapshot {
	c := *s
	c.Output = deepCopyValue(s.Output)
	return &c
}

// PromptMessage is one turn of a conversational prompt context.
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// PromptContext is the conversational sub-state of a lineage. Its content is
// opaque to the execution core; it is carried through checkpoints and fork
// retention unchanged.
type PromptContext struct {
	System   string          `json:"system,omitempty"`
	Messages []PromptMessage `json:"messages,omitempty"`
}

// Copy returns a copy of the prompt context.
func (p *PromptContext) Copy() *PromptContext {
	if p == nil {
		return nil
	}
	c := &PromptContext{System: p.System}
	if p.Messages != nil {
		c.Messages = make([]PromptMessage, len(p.Messages))
		copy(c.Messages, p.Messages)
	}
	return c
}

// Append adds a message to the prompt context.
func (p *PromptContext) Append(role, content string) {
	p.Messages = append(p.Messages, PromptMessage{Role: role, Content: content})
}

// ExecutionContext holds the mutable variable store, per-node execution
// snapshots, and the prompt sub-context for a single execution lineage. It is
// created once per lineage and exclusively owned by it: only the node
// currently executing (or the orchestration loop on its behalf) mutates it,
// and it is never shared by reference across lineages. It is therefore not
// safe for concurrent use.
type ExecutionContext struct {
	threadID       string
	variables      map[string]any
	variableOrigin map[string]string
	nodeExecutions map[string]*NodeExecutionSnapshot
	prompt         *PromptContext
	currentNode    string
	startTime      time.Time
	lastActivity   time.Time
}

// NewExecutionContext creates the context for a new lineage, seeded with the
// given input variables.
func NewExecutionContext(threadID string, input map[string]any) *ExecutionContext {
	now := time.Now()
	ec := &ExecutionContext{
		threadID:       threadID,
		variables:      make(map[string]any, len(input)),
		variableOrigin: make(map[string]string, len(input)),
		nodeExecutions: map[string]*NodeExecutionSnapshot{},
		prompt:         &PromptContext{},
		startTime:      now,
		lastActivity:   now,
	}
	for k, v := range input {
		ec.variables[k] = deepCopyValue(v)
		ec.variableOrigin[k] = ""
	}
	return ec
}

// ThreadID returns the owning lineage's thread ID.
func (c *ExecutionContext) ThreadID() string {
	return c.threadID
}

// Get returns the value of a variable.
func (c *ExecutionContext) Get(name string) (any, bool) {
	value, exists := c.variables[name]
	return value, exists
}

// Set stores a variable, recording the currently executing node as its
// origin.
func (c *ExecutionContext) Set(name string, value any) {
	c.variables[name] = value
	c.variableOrigin[name] = c.currentNode
	c.lastActivity = time.Now()
}

// Delete removes a variable.
func (c *ExecutionContext) Delete(name string) {
	delete(c.variables, name)
	delete(c.variableOrigin, name)
	c.lastActivity = time.Now()
}

// Variables returns a copy of the variable map.
func (c *ExecutionContext) Variables() map[string]any {
	out := make(map[string]any, len(c.variables))
	for k, v := range c.variables {
		out[k] = v
	}
	return out
}

// VariableNames returns the sorted names of all variables.
func (c *ExecutionContext) VariableNames() []string {
	names := make([]string, 0, len(c.variables))
	for name := range c.variables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BeginNode marks the node whose execution is starting. Subsequent variable
// writes are attributed to it.
func (c *ExecutionContext) BeginNode(nodeID string) {
	c.currentNode = nodeID
	c.lastActivity = time.Now()
}

// RecordNodeExecution stores the snapshot for a node execution.
func (c *ExecutionContext) RecordNodeExecution(nodeID string, snapshot *NodeExecutionSnapshot) {
	c.nodeExecutions[nodeID] = snapshot
	c.lastActivity = time.Now()
}

// NodeExecution returns the snapshot for a node, if recorded.
func (c *ExecutionContext) NodeExecution(nodeID string) (*NodeExecutionSnapshot, bool) {
	snapshot, ok := c.nodeExecutions[nodeID]
	return snapshot, ok
}

// NodeExecutions returns a copy of all recorded snapshots.
func (c *ExecutionContext) NodeExecutions() map[string]*NodeExecutionSnapshot {
	out := make(map[string]*NodeExecutionSnapshot, len(c.nodeExecutions))
	for k, v := range c.nodeExecutions {
		out[k] = v.Copy()
	}
	return out
}

// ExecutedNodeIDs returns the sorted IDs of nodes with a terminal snapshot.
func (c *ExecutionContext) ExecutedNodeIDs() []string {
	var ids []string
	for id, snapshot := range c.nodeExecutions {
		if snapshot.Status.IsTerminal() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Prompt returns the lineage's prompt sub-context.
func (c *ExecutionContext) Prompt() *PromptContext {
	return c.prompt
}

// SetPrompt replaces the prompt sub-context. Used during checkpoint restore.
func (c *ExecutionContext) SetPrompt(p *PromptContext) {
	if p == nil {
		p = &PromptContext{}
	}
	c.prompt = p
}

// Elapsed returns the time since the lineage started.
func (c *ExecutionContext) Elapsed() time.Duration {
	return time.Since(c.startTime)
}

// LastActivity returns the time of the most recent mutation.
func (c *ExecutionContext) LastActivity() time.Time {
	return c.lastActivity
}

// origin returns the node ID attributed with writing a variable. Input
// variables have an empty origin.
func (c *ExecutionContext) origin(name string) string {
	return c.variableOrigin[name]
}

// Clone returns an independent deep copy of the context for a new lineage.
func (c *ExecutionContext) Clone(threadID string) *ExecutionContext {
	clone := NewExecutionContext(threadID, nil)
	for k, v := range c.variables {
		clone.variables[k] = deepCopyValue(v)
		clone.variableOrigin[k] = c.variableOrigin[k]
	}
	for k, v := range c.nodeExecutions {
		clone.nodeExecutions[k] = v.Copy()
	}
	clone.prompt = c.prompt.Copy()
	return clone
}

// deepCopyValue copies nested maps and slices so no mutable state is shared
// across lineages. Scalar values are returned as-is.
func deepCopyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = deepCopyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return value
	}
}
