package conduit

import (
	"context"
	"encoding/json"
)

// ToolDefinition is the function contract exposed to the provider.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters,omitempty"` // JSON Schema
}

// Tool is a pluggable capability with one or more functions. The loop never
// inspects tool semantics; it correlates calls to handlers by function name.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args string) (string, error)
}

// ToolHandler executes one function. args is the raw argument string from
// the tool call ("{}" when the call carried none); the returned string is
// the result payload, typically JSON-encoded.
type ToolHandler func(ctx context.Context, args string) (string, error)

// ToolRegistry holds registered tools and derives the two components the
// loop consumes: a function-name → handler map for dispatch and the
// tool-contract middleware that exposes definitions to the provider.
type ToolRegistry struct {
	tools []Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{}
}

// Add registers a tool.
func (r *ToolRegistry) Add(t Tool) {
	r.tools = append(r.tools, t)
}

// AllDefinitions returns tool definitions from all registered tools.
func (r *ToolRegistry) AllDefinitions() []ToolDefinition {
	var defs []ToolDefinition
	for _, t := range r.tools {
		defs = append(defs, t.Definitions()...)
	}
	return defs
}

// Handlers returns the dispatch table: every function name mapped to a
// handler bound to its tool. Built fresh so later Add calls are picked up by
// loops constructed afterwards.
func (r *ToolRegistry) Handlers() map[string]ToolHandler {
	handlers := make(map[string]ToolHandler)
	for _, t := range r.tools {
		t := t
		for _, d := range t.Definitions() {
			name := d.Name
			handlers[name] = func(ctx context.Context, args string) (string, error) {
				return t.Execute(ctx, name, args)
			}
		}
	}
	return handlers
}

// Contracts returns the request-side pipeline stage that fills
// TurnOptions.Tools with the registry's definitions before each call.
func (r *ToolRegistry) Contracts() Middleware {
	return func(next StreamFunc) StreamFunc {
		return func(ctx context.Context, history []Message, opts TurnOptions, out chan<- Message) error {
			opts.Tools = r.AllDefinitions()
			return next(ctx, history, opts, out)
		}
	}
}
