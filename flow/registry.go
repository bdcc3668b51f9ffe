// Package flow defines the request sequences of a smoke run and the registry that orders them.
package flow

import (
	"context"
	"fmt"
	"sync"

	"github.com/st-keller/galacash-smoke/types"
)

// Flow runs one request sequence with the session's token.
type Flow func(ctx context.Context, s *Session) error

type entry struct {
	role types.Role
	flow Flow
}

// Registry keeps flows in registration order.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]entry),
	}
}

// Register adds a flow that runs with the token of role.
func (r *Registry) Register(name string, role types.Role, f Flow) error {
	if name == "" {
		return fmt.Errorf("flow name required")
	}
	if f == nil {
		return fmt.Errorf("flow %s: func required", name)
	}
	if role != types.RoleUser && role != types.RoleBendahara {
		return fmt.Errorf("flow %s: unknown role %q", name, role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("flow %s already registered", name)
	}
	r.entries[name] = entry{role: role, flow: f}
	r.order = append(r.order, name)
	return nil
}

// Get returns the flow and its role.
func (r *Registry) Get(name string) (Flow, types.Role, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	return e.flow, e.role, ok
}

// Names returns flow names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}

// Default returns the standard flows: user, then bendahara, then the
// extended read-only routes when extended is set.
func Default(extended bool) *Registry {
	r := NewRegistry()
	// Registration of fixed, distinct names cannot fail.
	_ = r.Register("user", types.RoleUser, User)
	_ = r.Register("bendahara", types.RoleBendahara, Bendahara)
	if extended {
		_ = r.Register("extended", types.RoleUser, Extended)
	}
	return r
}
