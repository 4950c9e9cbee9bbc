package thread

import (
	"github.com/fatih/color"
)

// Formatter provides pretty output for step progress.
type Formatter interface {
	PrintStepStart(nodeID string, nodeType string)
	PrintStepOutput(nodeID string, content any)
	PrintStepError(nodeID string, err error)
}

// ConsoleFormatter writes colorized step progress to stdout.
type ConsoleFormatter struct{}

// NewConsoleFormatter creates a new console formatter.
func NewConsoleFormatter() *ConsoleFormatter {
	return &ConsoleFormatter{}
}

func (f *ConsoleFormatter) PrintStepStart(nodeID string, nodeType string) {
	color.Cyan("▶ %s (%s)", nodeID, nodeType)
}

func (f *ConsoleFormatter) PrintStepOutput(nodeID string, content any) {
	color.White("  %s: %v", nodeID, content)
}

func (f *ConsoleFormatter) PrintStepError(nodeID string, err error) {
	color.Red("✗ %s: %v", nodeID, err)
}

// nullFormatter discards all output.
type nullFormatter struct{}

func (f *nullFormatter) PrintStepStart(nodeID string, nodeType string) {}
func (f *nullFormatter) PrintStepOutput(nodeID string, content any)    {}
func (f *nullFormatter) PrintStepError(nodeID string, err error)       {}
