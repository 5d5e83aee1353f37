package scope

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Entry is one normalized registry record (spec 4.2: "normalization folds
// decorated classes and function-shaped definitions into one record
// type").
type Entry[T any] struct {
	Name          string
	QualifiedName string
	DependsOn     []string
	Value         T
	Ready         func(ctx context.Context) error // instance's "ready" promise
}

// ChangeHandler is invoked on registry mutation (spec 4.2 "subscribe").
type ChangeHandler[T any] func(entry *Entry[T], removed bool)

// Registry is the uniform protocol every tool/resource/prompt registry
// implements: list/normalize, dependency-graph build, topological
// initialize, subscribe, findByName/findByQualifiedName (spec 4.2).
type Registry[T any] struct {
	mu          sync.RWMutex
	byName      map[string]*Entry[T]
	byQualified map[string]*Entry[T]
	order       []string // insertion order, for deterministic iteration
	subscribers []ChangeHandler[T]
}

// NewRegistry constructs an empty Registry.
func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{
		byName:      make(map[string]*Entry[T]),
		byQualified: make(map[string]*Entry[T]),
	}
}

// Upsert normalizes and stores entry, notifying subscribers.
func (r *Registry[T]) Upsert(entry *Entry[T]) {
	r.mu.Lock()
	if _, exists := r.byName[entry.Name]; !exists {
		r.order = append(r.order, entry.Name)
	}
	r.byName[entry.Name] = entry
	r.byQualified[entry.QualifiedName] = entry
	subs := append([]ChangeHandler[T]{}, r.subscribers...)
	r.mu.Unlock()

	for _, fn := range subs {
		fn(entry, false)
	}
}

// Remove deletes an entry by name, notifying subscribers.
func (r *Registry[T]) Remove(name string) {
	r.mu.Lock()
	entry, ok := r.byName[name]
	if ok {
		delete(r.byName, name)
		delete(r.byQualified, entry.QualifiedName)
		for i, n := range r.order {
			if n == name {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	subs := append([]ChangeHandler[T]{}, r.subscribers...)
	r.mu.Unlock()

	if ok {
		for _, fn := range subs {
			fn(entry, true)
		}
	}
}

// List returns all entries in registration order.
func (r *Registry[T]) List() []*Entry[T] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry[T], 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}

// FindByName looks up an entry by its short name.
func (r *Registry[T]) FindByName(name string) (*Entry[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byName[name]
	return e, ok
}

// FindByQualifiedName looks up an entry by its dot-separated lineage id.
func (r *Registry[T]) FindByQualifiedName(qname string) (*Entry[T], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byQualified[qname]
	return e, ok
}

// Subscribe registers a change notification callback (spec 4.2).
func (r *Registry[T]) Subscribe(cb ChangeHandler[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribers = append(r.subscribers, cb)
}

// TopoInit builds the dependency graph from each entry's DependsOn names
// and awaits each instance's Ready function in topological order (spec
// 4.2 "build dependency graph... topologically initialize instances,
// awaiting each instance's ready promise").
func (r *Registry[T]) TopoInit(ctx context.Context) error {
	entries := r.List()
	byName := make(map[string]*Entry[T], len(entries))
	for _, e := range entries {
		byName[e.Name] = e
	}

	visited := make(map[string]int) // 0=unvisited 1=visiting 2=done
	order := make([]*Entry[T], 0, len(entries))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch visited[name] {
		case 2:
			return nil
		case 1:
			return fmt.Errorf("scope: dependency cycle: %v", append(path, name))
		}
		visited[name] = 1
		e, ok := byName[name]
		if !ok {
			return nil // external dependency outside this registry
		}
		deps := append([]string{}, e.DependsOn...)
		sort.Strings(deps) // deterministic traversal order
		for _, dep := range deps {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		visited[name] = 2
		order = append(order, e)
		return nil
	}

	for _, e := range entries {
		if err := visit(e.Name, nil); err != nil {
			return err
		}
	}

	for _, e := range order {
		if e.Ready == nil {
			continue
		}
		if err := e.Ready(ctx); err != nil {
			return fmt.Errorf("scope: init %q: %w", e.Name, err)
		}
	}
	return nil
}
