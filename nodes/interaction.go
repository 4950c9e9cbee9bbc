package nodes

import (
	"context"

	"github.com/deepnoodle-ai/thread"
)

// InteractionNode pauses the thread to wait for external input. The optional
// "prompt" parameter is appended to the thread's prompt context so the
// question survives a checkpoint and restore.
type InteractionNode struct {
	config thread.NodeConfig
}

func NewInteractionNode(cfg thread.NodeConfig) *InteractionNode {
	return &InteractionNode{config: cfg}
}

func (n *InteractionNode) ID() string { return n.config.ID }

func (n *InteractionNode) Type() string { return "interaction" }

func (n *InteractionNode) Validate() error { return nil }

func (n *InteractionNode) Execute(ctx context.Context, ec *thread.ExecutionContext) (*thread.NodeResult, error) {
	prompt := stringParam(n.config, "prompt")
	if prompt != "" {
		pc := ec.Prompt()
		if pc == nil {
			pc = &thread.PromptContext{}
		}
		pc.Append("assistant", prompt)
		ec.SetPrompt(pc)
	}
	return &thread.NodeResult{
		Success: true,
		Output:  prompt,
		Signal:  thread.SignalPause,
	}, nil
}
