package tools

import (
	"context"
	"fmt"

	"github.com/coreclaw/agentcore/internal/providers"
)

// Tool is the closed interface every registered tool implements: a name, a
// description, a JSON-Schema parameter declaration, and an execute body.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// UnknownToolError is returned by Registry.Execute when name has no
// registered tool.
type UnknownToolError struct{ Name string }

func (e *UnknownToolError) Error() string { return fmt.Sprintf("unknown tool: %s", e.Name) }

// Registry is the mapping name -> Tool (spec §4.4).
type Registry struct {
	tools map[string]Tool
	order []string
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool.
func (r *Registry) Register(t Tool) {
	name := t.Name()
	if _, exists := r.tools[name]; !exists {
		r.order = append(r.order, name)
	}
	r.tools[name] = t
}

// Get returns the tool registered under the canonical name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool name in registration order.
func (r *Registry) List() []string {
	return append([]string(nil), r.order...)
}

// Unregister removes a tool, used by the Subagent Manager to strip
// spawn-recursion and session-management tools from a child's registry
// (SPEC_FULL §12 depth guard) without maintaining a second registry type.
func (r *Registry) Unregister(name string) {
	if _, ok := r.tools[name]; !ok {
		return
	}
	delete(r.tools, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// ProviderDefs is Definitions() under the name the Subagent Manager expects;
// subagents see every tool left in their (already deny-list-trimmed)
// registry, bypassing the parent's PolicyEngine entirely.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	return r.Definitions()
}

// Definitions returns get_definitions(): the full tool list in the LLM's
// expected tool-declaration shape, unfiltered by policy.
func (r *Registry) Definitions() []providers.ToolDefinition {
	defs := make([]providers.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, ToProviderDef(r.tools[name]))
	}
	return defs
}

// ToProviderDef converts a Tool into the LLM tool-declaration wire shape.
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

// Execute runs the named tool, failing with UnknownToolError if missing;
// otherwise returns the tool's Result (its string result, or its error's
// string, is found at Result.ForLLM per spec §4.4).
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) *Result {
	t, ok := r.tools[name]
	if !ok {
		err := &UnknownToolError{Name: name}
		return ErrorResult(err.Error()).WithError(err)
	}
	return t.Execute(ctx, args)
}
