package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/deepnoodle-ai/thread"
)

// WaitNode sleeps for the configured duration. The sleep is interrupted by
// context cancellation.
type WaitNode struct {
	config thread.NodeConfig
}

func NewWaitNode(cfg thread.NodeConfig) *WaitNode {
	return &WaitNode{config: cfg}
}

func (n *WaitNode) ID() string { return n.config.ID }

func (n *WaitNode) Type() string { return "wait" }

func (n *WaitNode) Validate() error {
	if _, err := n.duration(); err != nil {
		return err
	}
	return nil
}

func (n *WaitNode) duration() (time.Duration, error) {
	raw := n.config.Parameters["duration"]
	switch value := raw.(type) {
	case string:
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("wait node %q: invalid duration %q", n.config.ID, value)
		}
		return d, nil
	case int:
		return time.Duration(value) * time.Second, nil
	case float64:
		return time.Duration(value * float64(time.Second)), nil
	case nil:
		return 0, fmt.Errorf("wait node %q requires a duration", n.config.ID)
	}
	return 0, fmt.Errorf("wait node %q: unsupported duration type %T", n.config.ID, raw)
}

func (n *WaitNode) Execute(ctx context.Context, ec *thread.ExecutionContext) (*thread.NodeResult, error) {
	d, err := n.duration()
	if err != nil {
		return nil, err
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}
	return &thread.NodeResult{Success: true, Output: fmt.Sprintf("waited %s", d)}, nil
}
