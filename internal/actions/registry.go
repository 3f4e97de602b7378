// Package actions maintains the mapping from concrete scenario names to the
// runners that execute them.
package actions

import (
	"fmt"
	"sort"
	"sync"

	"github.com/proofrun/proofrun/internal/collab"
	"github.com/proofrun/proofrun/internal/plan"
)

// Factory constructs the runner for one scenario.
type Factory func() (collab.ActionRunner, error)

// Registry maintains known runner factories keyed by action.
type Registry struct {
	mu        sync.RWMutex
	factories map[plan.Action]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: map[plan.Action]Factory{}}
}

// Register installs a runner factory. Aggregates are rejected: only concrete
// scenarios execute.
func (r *Registry) Register(action plan.Action, factory Factory) error {
	if action == "" {
		return fmt.Errorf("actions: action is required")
	}
	if action.IsAggregate() {
		return fmt.Errorf("actions: %s is an aggregate, not a runnable scenario", action)
	}
	if factory == nil {
		return fmt.Errorf("actions: factory is required for %s", action)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[action]; exists {
		return fmt.Errorf("actions: %s already registered", action)
	}
	r.factories[action] = factory
	return nil
}

// MustRegister panics if registration fails.
func (r *Registry) MustRegister(action plan.Action, factory Factory) {
	if err := r.Register(action, factory); err != nil {
		panic(err)
	}
}

// Resolve constructs the runner for an action.
func (r *Registry) Resolve(action plan.Action) (collab.ActionRunner, error) {
	r.mu.RLock()
	factory, ok := r.factories[action]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("actions: no runner for %s", action)
	}
	return factory()
}

// IDs returns the registered action names in sorted order.
func (r *Registry) IDs() []plan.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]plan.Action, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
