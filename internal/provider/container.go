package provider

import (
	"sync"
)

// Container is one scope's provider registry. Containers form a chain via
// parent; resolution walks child then parent, first binding wins (spec 4.1).
type Container struct {
	mu       sync.RWMutex
	parent   *Container
	records  map[any]*Record
	started  bool
}

// NewContainer creates a root container with no parent.
func NewContainer() *Container {
	return &Container{records: make(map[any]*Record)}
}

// Fork creates a child Container that inherits and shadows c (spec 4.1
// "fork creates a child scope that inherits and shadows the parent").
func (c *Container) Fork() *Container {
	return &Container{parent: c, records: make(map[any]*Record)}
}

// MarkStarted freezes ordinary registration; only HotReload records may be
// registered afterward (spec 4.2 "Registry contents are frozen after the
// server starts unless the plugin API explicitly permits late
// registration").
func (c *Container) MarkStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
}

// Register adds or replaces a Record, detecting dependency cycles before
// accepting it (spec 4.1 "Cycles are detected at registration time").
func (c *Container) Register(r *Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started && !r.HotReload {
		return &ResolveError{Token: r.Token} // late registration without hotReload is rejected
	}

	if path, cyclic := c.detectCycle(r.Token, r.DependsOn, map[any]bool{}); cyclic {
		return &DependencyCycleError{Path: path}
	}

	c.records[r.Token.key()] = r
	return nil
}

func (c *Container) detectCycle(start Token, deps []Token, visiting map[any]bool) ([]Token, bool) {
	key := start.key()
	if visiting[key] {
		return []Token{start}, true
	}
	visiting[key] = true
	for _, dep := range deps {
		rec := c.lookup(dep.key())
		if rec == nil {
			continue // unresolved deps fail at Resolve time, not registration time
		}
		if path, cyclic := c.detectCycle(dep, rec.DependsOn, visiting); cyclic {
			return append([]Token{start}, path...), true
		}
	}
	delete(visiting, key)
	return nil, false
}

func (c *Container) lookup(key any) *Record {
	if r, ok := c.records[key]; ok {
		return r
	}
	if c.parent != nil {
		return c.parent.lookup(key)
	}
	return nil
}

// Resolve walks this container then its parents (first-wins). Only tokens
// with a registered Record resolve: a token without one, class-shaped or
// symbolic, yields ResolveError. Factory and class records get their
// DependsOn tokens resolved recursively. A Record's Scope is not checked.
func (c *Container) Resolve(t Token) (any, error) {
	c.mu.RLock()
	rec := c.lookup(t.key())
	c.mu.RUnlock()

	if rec == nil {
		return nil, &ResolveError{Token: t}
	}
	if rec.Activation != nil && !rec.Activation() {
		return nil, &ResolveError{Token: t}
	}

	switch rec.Kind {
	case KindValue, KindInjected:
		return rec.Value, nil
	case KindFactory, KindClass, KindClassToken:
		deps := make([]any, 0, len(rec.DependsOn))
		for _, d := range rec.DependsOn {
			v, err := c.Resolve(d)
			if err != nil {
				return nil, err
			}
			deps = append(deps, v)
		}
		if rec.Kind == KindFactory {
			return rec.Factory(deps)
		}
		return rec.Constructor(deps)
	default:
		return nil, &ResolveError{Token: t}
	}
}
