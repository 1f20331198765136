package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/draftworks/agentsmith/internal/provider"
)

// Handler executes a tool call with raw JSON arguments and returns the
// result text.
type Handler func(ctx context.Context, args string) (string, error)

// ToolRegistry holds the callable actions declared to the model for one
// agent, pairing each declaration with its handler.
type ToolRegistry struct {
	defs     []provider.Tool
	handlers map[string]Handler
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{handlers: make(map[string]Handler)}
}

// Register adds a tool. Registering the same name again replaces the
// previous definition and handler.
func (r *ToolRegistry) Register(def provider.Tool, handler Handler) {
	name := def.Function.Name
	if _, exists := r.handlers[name]; exists {
		for i, d := range r.defs {
			if d.Function.Name == name {
				r.defs[i] = def
				break
			}
		}
	} else {
		r.defs = append(r.defs, def)
	}
	r.handlers[name] = handler
}

// Definitions returns all declarations for inclusion in a chat request.
func (r *ToolRegistry) Definitions() []provider.Tool {
	return r.defs
}

// Has reports whether a tool name is registered.
func (r *ToolRegistry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Len returns the number of registered tools.
func (r *ToolRegistry) Len() int { return len(r.defs) }

// Execute runs a tool by name with the given JSON arguments.
func (r *ToolRegistry) Execute(ctx context.Context, name, args string) (string, error) {
	h, ok := r.handlers[name]
	if !ok {
		return "", fmt.Errorf("unknown tool: %s", name)
	}
	return h(ctx, args)
}

// QueryArg extracts the "query" field from JSON tool arguments. Models
// occasionally pass bare strings instead of objects, so that shape is
// accepted too.
func QueryArg(args string) string {
	var payload struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(args), &payload); err == nil && payload.Query != "" {
		return payload.Query
	}
	var s string
	if err := json.Unmarshal([]byte(args), &s); err == nil {
		return s
	}
	return strings.TrimSpace(args)
}
