// Package cache defines the invalidation contract cached derived quantities
// must expose so that structural changes such as parameter redirection and
// operating-mode switches propagate through an evaluator tree. The evaluation
// engine forwards events into this contract; it never implements hook bodies
// itself.
package cache

import (
	"errors"

	"github.com/probfit/probfit/param"
)

// Action identifies which structural pass is asking a cache element for its
// contained parameters.
type Action int

const (
	OperModeChange Action = iota
	OptimizeCaching
	FindConstantNodes
)

// OperMode is the operating mode of a cached node: automatic dirty-state
// tracking, always-clean (constant) or always-dirty.
type OperMode int

const (
	Auto OperMode = iota
	AClean
	ADirty
)

// Element is the hook surface of one cached derived quantity.
type Element interface {
	// RedirectHook is called when parameter identities change. The element
	// must rebind or drop anything derived from replaced parameters.
	RedirectHook(newServers *param.Set, mustReplaceAll, nameChange, recursive bool) error

	// OperModeHook is called when the owner's operating mode changes.
	OperModeHook(mode OperMode)

	// ContainedParams returns the parameters the element's cached state
	// depends on, for the given structural pass.
	ContainedParams(a Action) *param.Set

	// FindConstantNodes adds the element's dependencies that are constant
	// with respect to the given observables to constNodes. The processed
	// map guards against revisiting shared elements.
	FindConstantNodes(observables *param.Set, constNodes *param.Set, processed map[Element]bool)

	// OptimizeCacheMode lets the element adjust its caching strategy for
	// the given observables, recording nodes it switched in optNodes.
	OptimizeCacheMode(observables *param.Set, optNodes *param.Set, processed map[Element]bool)
}

// Registry is the owner-side fan-out over a fixed group of cache elements.
// Per-element hook failures do not stop the fan-out; all errors are joined.
type Registry struct {
	elems []Element
}

// Register adds an element to the registry. Nil elements are ignored.
func (r *Registry) Register(e Element) {
	if e == nil {
		return
	}
	r.elems = append(r.elems, e)
}

// Len returns the number of registered elements.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.elems)
}

// RedirectAll forwards a redirect notice to every element.
func (r *Registry) RedirectAll(newServers *param.Set, mustReplaceAll, nameChange, recursive bool) error {
	if r == nil {
		return nil
	}
	var errs []error
	for _, e := range r.elems {
		if err := e.RedirectHook(newServers, mustReplaceAll, nameChange, recursive); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetOperMode forwards an operating-mode change to every element.
func (r *Registry) SetOperMode(mode OperMode) {
	if r == nil {
		return
	}
	for _, e := range r.elems {
		e.OperModeHook(mode)
	}
}

// FindConstantNodes runs the constant-node detection pass over every element.
func (r *Registry) FindConstantNodes(observables *param.Set, constNodes *param.Set) {
	if r == nil {
		return
	}
	processed := make(map[Element]bool)
	for _, e := range r.elems {
		e.FindConstantNodes(observables, constNodes, processed)
	}
}

// OptimizeCacheMode runs the cache-mode optimization pass over every element.
func (r *Registry) OptimizeCacheMode(observables *param.Set, optNodes *param.Set) {
	if r == nil {
		return
	}
	processed := make(map[Element]bool)
	for _, e := range r.elems {
		e.OptimizeCacheMode(observables, optNodes, processed)
	}
}
