package thread

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDefinition(t *testing.T) {
	definition, err := NewDefinition(DefinitionOptions{
		ID:   "research-flow",
		Name: "Research Flow",
		Nodes: []NodeConfig{
			{ID: "a", Type: "noop"},
			{ID: "b", Type: "transform", Parameters: map[string]any{"expression": "1 + 1", "store": "sum"}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "research-flow", definition.ID())
	require.Equal(t, "Research Flow", definition.Name())
	require.Len(t, definition.NodeConfigs(), 2)
	require.NoError(t, definition.Executable())

	cfg, ok := definition.Node("b")
	require.True(t, ok)
	require.Equal(t, "transform", cfg.Type)
	_, ok = definition.Node("missing")
	require.False(t, ok)
}

func TestNewDefinitionValidation(t *testing.T) {
	tests := []struct {
		name string
		opts DefinitionOptions
	}{
		{"missing id", DefinitionOptions{Nodes: []NodeConfig{{ID: "a", Type: "noop"}}}},
		{"no nodes", DefinitionOptions{ID: "wf"}},
		{"node missing id", DefinitionOptions{ID: "wf", Nodes: []NodeConfig{{Type: "noop"}}}},
		{"node missing type", DefinitionOptions{ID: "wf", Nodes: []NodeConfig{{ID: "a"}}}},
		{"duplicate node ids", DefinitionOptions{ID: "wf", Nodes: []NodeConfig{
			{ID: "a", Type: "noop"},
			{ID: "a", Type: "noop"},
		}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewDefinition(tc.opts)
			require.Error(t, err)
		})
	}
}

func TestDefinitionDisabled(t *testing.T) {
	definition, err := NewDefinition(DefinitionOptions{
		ID:       "wf",
		Disabled: true,
		Nodes:    []NodeConfig{{ID: "a", Type: "noop"}},
	})
	require.NoError(t, err)
	err = definition.Executable()
	require.True(t, IsDomainError(err, ErrCodePrecondition))
}

func TestLoadString(t *testing.T) {
	definition, err := LoadString(`
id: greeting-flow
name: Greeting Flow
nodes:
  - id: start
    type: start
  - id: greet
    type: transform
    parameters:
      expression: '"hello " + name'
      store: greeting
  - id: end
    type: end
    parameters:
      variable: greeting
`)
	require.NoError(t, err)
	require.Equal(t, "greeting-flow", definition.ID())
	require.Len(t, definition.NodeConfigs(), 3)

	cfg, ok := definition.Node("greet")
	require.True(t, ok)
	require.Equal(t, "greeting", cfg.Parameters["store"])
}

func TestLoadStringInvalidYAML(t *testing.T) {
	_, err := LoadString("nodes: [unclosed")
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wf.yaml")
	require.NoError(t, os.WriteFile(path, []byte("id: file-flow\nnodes:\n  - id: a\n    type: noop\n"), 0644))

	definition, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "file-flow", definition.ID())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
