// Package tools holds the catalog of locally executed functions the model may call.
package tools

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownTool is returned by Resolve for names that are not in the catalog.
var ErrUnknownTool = errors.New("unknown tool")

// Handler executes one tool with already-parsed arguments.
// Failures are reported in the Result, never as a Go error or panic.
type Handler interface {
	Invoke(ctx context.Context, args map[string]any) Result
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, args map[string]any) Result

// Invoke calls f.
func (f HandlerFunc) Invoke(ctx context.Context, args map[string]any) Result {
	return f(ctx, args)
}

// Tool pairs the schema shown to the model with its local implementation.
type Tool struct {
	Schema  Schema
	Handler Handler
}

// Registry maps tool names to schemas and handlers.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	order    []string
	schemas  map[string]Schema
	handlers map[string]Handler
}

// NewRegistry builds a registry from tools, keeping their order for Schemas.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		order:    make([]string, 0, len(tools)),
		schemas:  make(map[string]Schema, len(tools)),
		handlers: make(map[string]Handler, len(tools)),
	}
	for _, t := range tools {
		name := t.Schema.Name
		if name == "" {
			return nil, fmt.Errorf("tool name is required")
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("handler is required for %s", name)
		}
		if _, exists := r.handlers[name]; exists {
			return nil, fmt.Errorf("handler already registered for %s", name)
		}
		r.order = append(r.order, name)
		r.schemas[name] = t.Schema
		r.handlers[name] = t.Handler
	}
	return r, nil
}

// MustNewRegistry is NewRegistry that panics on error, for static catalogs.
func MustNewRegistry(tools ...Tool) *Registry {
	r, err := NewRegistry(tools...)
	if err != nil {
		panic(err)
	}
	return r
}

// Schemas returns the catalog in registration order.
func (r *Registry) Schemas() []Schema {
	out := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.schemas[name])
	}
	return out
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Resolve returns the handler for name, or ErrUnknownTool.
func (r *Registry) Resolve(name string) (Handler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return h, nil
}
