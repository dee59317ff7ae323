// Package registry holds the set of tools the bridge exposes, keyed by
// name. Tools are added once at startup; lookups are concurrency safe.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Handler executes one tool call. Input is the raw JSON argument document;
// the returned value is the raw JSON result posted back to the caller.
type Handler func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)

// Tool describes one capability exposed through the bridge.
type Tool struct {
	Name        string
	Description string
	Readme      string
	Parameters  json.RawMessage
	Handler     Handler
}

// Registry maps tool names to their descriptors.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Add registers a tool. Adding a name that already exists replaces the
// earlier descriptor while keeping its position.
func (r *Registry) Add(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %s has no handler", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name]; !ok {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
