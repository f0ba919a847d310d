package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/opencoder/agentruntime/internal/providers"
)

// Tool is the interface every built-in and MCP-bridged tool implements.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// Registry maps tool names to their executable implementation and the
// schema exposed verbatim to the model. MCP-bridged tools are registered
// under "mcp_{server}_{tool}".
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool under its own Name().
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// RegisterMCPTool registers a remote MCP tool under the
// "mcp_{server}_{tool}" naming convention.
func (r *Registry) RegisterMCPTool(server string, t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[fmt.Sprintf("mcp_%s_%s", server, t.Name())] = t
}

// Unregister removes a tool by name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns every registered tool name, sorted for deterministic
// iteration (schema listings, logs).
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// List is an alias for Names, matching the policy engine's naming.
func (r *Registry) List() []string { return r.Names() }

// ToProviderDef builds the provider-facing ToolDefinition for a single tool.
func ToProviderDef(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// Definitions builds the provider-facing ToolDefinition list for the given
// tool names, skipping any that aren't registered.
func (r *Registry) Definitions(names []string) []providers.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]providers.ToolDefinition, 0, len(names))
	for _, n := range names {
		t, ok := r.tools[n]
		if !ok {
			continue
		}
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

// AllDefinitions returns ToolDefinitions for every registered tool.
func (r *Registry) AllDefinitions() []providers.ToolDefinition {
	return r.Definitions(r.Names())
}

// Execute runs a single tool call by name, returning a not-found Result if
// the tool isn't registered.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) *Result {
	t, ok := r.Get(name)
	if !ok {
		return ErrorResult(fmt.Sprintf("unknown tool: %s", name))
	}
	return t.Execute(ctx, args)
}
