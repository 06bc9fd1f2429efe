// internal/healer/checks.go
package healer

import (
	"context"
	"fmt"
	"sync"

	"github.com/glaciousm/intent-healer-sub001/api/schemas"
)

// OutcomeCheckFunc verifies that an applied heal achieved what the intent
// promised, given the page states around the action.
type OutcomeCheckFunc func(ctx context.Context, before, after *schemas.UiSnapshot) schemas.OutcomeResult

// InvariantCheckFunc verifies that an applied heal did not break a property
// that must hold regardless of the step's goal.
type InvariantCheckFunc func(ctx context.Context, before, after *schemas.UiSnapshot) schemas.InvariantResult

// Registry maps check names to functions. Intent contracts reference checks
// by name only; resolution happens here, at configuration time, so a typo in
// a contract fails loudly instead of silently skipping the check.
type Registry struct {
	mu         sync.RWMutex
	outcomes   map[string]OutcomeCheckFunc
	invariants map[string]InvariantCheckFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		outcomes:   make(map[string]OutcomeCheckFunc),
		invariants: make(map[string]InvariantCheckFunc),
	}
}

// RegisterOutcome adds a named outcome check. Re-registering a name replaces
// the previous function.
func (r *Registry) RegisterOutcome(name string, fn OutcomeCheckFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("outcome check requires a name and a function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[name] = fn
	return nil
}

// RegisterInvariant adds a named invariant check.
func (r *Registry) RegisterInvariant(name string, fn InvariantCheckFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("invariant check requires a name and a function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invariants[name] = fn
	return nil
}

// ResolveOutcomes returns the functions for the named checks, failing on the
// first unknown name.
func (r *Registry) ResolveOutcomes(names []string) ([]OutcomeCheckFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fns := make([]OutcomeCheckFunc, 0, len(names))
	for _, name := range names {
		fn, ok := r.outcomes[name]
		if !ok {
			return nil, fmt.Errorf("unknown outcome check %q", name)
		}
		fns = append(fns, fn)
	}
	return fns, nil
}

// ResolveInvariants returns the functions for the named checks, failing on
// the first unknown name.
func (r *Registry) ResolveInvariants(names []string) ([]InvariantCheckFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fns := make([]InvariantCheckFunc, 0, len(names))
	for _, name := range names {
		fn, ok := r.invariants[name]
		if !ok {
			return nil, fmt.Errorf("unknown invariant check %q", name)
		}
		fns = append(fns, fn)
	}
	return fns, nil
}
