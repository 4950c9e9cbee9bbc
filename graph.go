package thread

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Graph exposes the ordered list of node configurations for a workflow. The
// execution core treats it as read-only: the graph definition is the only
// object ever shared across concurrent lineages.
type Graph interface {

	// ID returns the workflow identifier.
	ID() string

	// NodeConfigs returns the node configurations in execution order.
	NodeConfigs() []NodeConfig

	// Executable reports whether the workflow permits execution.
	Executable() error
}

// DefinitionOptions configures a graph definition.
type DefinitionOptions struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	Nodes       []NodeConfig `json:"nodes" yaml:"nodes"`
	Disabled    bool         `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

// Definition is a concrete, YAML-loadable Graph implementation.
type Definition struct {
	id          string
	name        string
	description string
	nodes       []NodeConfig
	nodesByID   map[string]NodeConfig
	disabled    bool
}

// NewDefinition returns a new graph Definition configured with the given
// options.
func NewDefinition(opts DefinitionOptions) (*Definition, error) {
	if opts.ID == "" {
		return nil, fmt.Errorf("workflow id required")
	}
	if len(opts.Nodes) == 0 {
		return nil, fmt.Errorf("workflow nodes required")
	}
	nodesByID := make(map[string]NodeConfig, len(opts.Nodes))
	for _, cfg := range opts.Nodes {
		if cfg.ID == "" {
			return nil, fmt.Errorf("node id required")
		}
		if cfg.Type == "" {
			return nil, fmt.Errorf("node %q: type required", cfg.ID)
		}
		if _, exists := nodesByID[cfg.ID]; exists {
			return nil, fmt.Errorf("duplicate node id %q", cfg.ID)
		}
		nodesByID[cfg.ID] = cfg
	}
	return &Definition{
		id:          opts.ID,
		name:        opts.Name,
		description: opts.Description,
		nodes:       opts.Nodes,
		nodesByID:   nodesByID,
		disabled:    opts.Disabled,
	}, nil
}

// ID returns the workflow identifier.
func (d *Definition) ID() string {
	return d.id
}

// Name returns the workflow name.
func (d *Definition) Name() string {
	return d.name
}

// Description returns the workflow description.
func (d *Definition) Description() string {
	return d.description
}

// NodeConfigs returns the node configurations in execution order.
func (d *Definition) NodeConfigs() []NodeConfig {
	nodes := make([]NodeConfig, len(d.nodes))
	copy(nodes, d.nodes)
	return nodes
}

// Node returns a node configuration by ID.
func (d *Definition) Node(id string) (NodeConfig, bool) {
	cfg, ok := d.nodesByID[id]
	return cfg, ok
}

// Executable reports whether the workflow permits execution.
func (d *Definition) Executable() error {
	if d.disabled {
		return NewPreconditionError(fmt.Sprintf("workflow %q is disabled", d.id))
	}
	return nil
}

// LoadFile loads a graph definition from a YAML file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	return LoadString(string(data))
}

// LoadString loads a graph definition from a YAML string.
func LoadString(data string) (*Definition, error) {
	var opts DefinitionOptions
	if err := yaml.Unmarshal([]byte(data), &opts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow definition: %w", err)
	}
	return NewDefinition(opts)
}
