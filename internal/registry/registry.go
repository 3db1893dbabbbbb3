// Package registry holds the table of agent descriptors known to the
// dispatcher. The registry is an explicit value constructed at process
// start and passed by reference; registration is a configuration-time
// operation and must complete before dispatch begins.
package registry

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ray-manaloto/guilde-lite-tdd-sprint-sub000/internal/domain"
)

// SdkResult is the raw outcome of an SDK client invocation.
type SdkResult struct {
	Content    string
	TokenUsage domain.TokenUsage
	ToolCalls  []domain.ToolCall
}

// SdkClient is the run-shaped client an SDK factory may produce.
type SdkClient interface {
	Run(ctx context.Context, prompt string) (SdkResult, error)
}

// SdkFunc adapts a plain callable to SdkClient.
type SdkFunc func(ctx context.Context, prompt string) (string, error)

// Run implements SdkClient.
func (f SdkFunc) Run(ctx context.Context, prompt string) (SdkResult, error) {
	content, err := f(ctx, prompt)
	return SdkResult{Content: content}, err
}

// ClientFactory produces the SDK client for an sdk-kind agent.
type ClientFactory func() SdkClient

// AgentDescriptor describes one registered agent.
type AgentDescriptor struct {
	Name     string           `yaml:"name"`
	Kind     domain.AgentKind `yaml:"kind"`
	Provider string           `yaml:"provider"`
	Model    string           `yaml:"model"`
	Timeout  time.Duration    `yaml:"-"`
	Enabled  bool             `yaml:"enabled"`

	// Transport config; exactly the field matching Kind must be set.
	Command  []string      `yaml:"command,omitempty"`
	Endpoint string        `yaml:"endpoint,omitempty"`
	Factory  ClientFactory `yaml:"-"`
}

// Validate checks the kind-specific transport config invariants.
func (d AgentDescriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("agent name is required")
	}
	switch d.Kind {
	case domain.AgentKindCLI:
		if len(d.Command) == 0 {
			return fmt.Errorf("agent %s: cli kind requires a command template", d.Name)
		}
	case domain.AgentKindHTTP:
		if d.Endpoint == "" {
			return fmt.Errorf("agent %s: http kind requires an endpoint", d.Name)
		}
	case domain.AgentKindSDK:
		if d.Factory == nil {
			return fmt.Errorf("agent %s: sdk kind requires a client factory", d.Name)
		}
	default:
		return fmt.Errorf("agent %s: unknown kind %q", d.Name, d.Kind)
	}
	return nil
}

// Registry is the process-wide agent table.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]AgentDescriptor
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{agents: make(map[string]AgentDescriptor)}
}

// Register adds or replaces a descriptor after validating it.
func (r *Registry) Register(desc AgentDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[desc.Name] = desc
	return nil
}

// Unregister removes a descriptor by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, name)
}

// Get returns the descriptor for name, if registered.
func (r *Registry) Get(name string) (AgentDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.agents[name]
	return desc, ok
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AgentDescriptor, 0, len(r.agents))
	for _, desc := range r.agents {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// EnabledNames returns the names of all enabled agents sorted by name.
func (r *Registry) EnabledNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name, desc := range r.agents {
		if desc.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// fileDescriptor is the YAML shape of one agent entry.
type fileDescriptor struct {
	Name      string   `yaml:"name"`
	Kind      string   `yaml:"kind"`
	Provider  string   `yaml:"provider"`
	Model     string   `yaml:"model"`
	TimeoutMs int      `yaml:"timeout_ms"`
	Enabled   *bool    `yaml:"enabled"`
	Command   []string `yaml:"command"`
	Endpoint  string   `yaml:"endpoint"`
}

type agentsFile struct {
	Agents []fileDescriptor `yaml:"agents"`
}

// LoadFile registers all agents declared in a YAML file. SDK agents cannot
// be declared in the file because factories are code; they are registered
// programmatically.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read agents file: %w", err)
	}
	var f agentsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse agents file: %w", err)
	}
	for _, entry := range f.Agents {
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		desc := AgentDescriptor{
			Name:     entry.Name,
			Kind:     domain.AgentKind(entry.Kind),
			Provider: entry.Provider,
			Model:    entry.Model,
			Timeout:  time.Duration(entry.TimeoutMs) * time.Millisecond,
			Enabled:  enabled,
			Command:  entry.Command,
			Endpoint: entry.Endpoint,
		}
		if err := r.Register(desc); err != nil {
			return fmt.Errorf("failed to register agent from file: %w", err)
		}
	}
	return nil
}
