package provider

import "fmt"

// RecordKind enumerates the five Provider Record shapes of spec 3.
type RecordKind string

const (
	KindClassToken RecordKind = "CLASS_TOKEN" // instantiate a class by its own token
	KindClass      RecordKind = "CLASS"       // bind token -> implementation class
	KindValue      RecordKind = "VALUE"       // bind token -> literal
	KindFactory    RecordKind = "FACTORY"     // bind token -> factory + declared deps
	KindInjected   RecordKind = "INJECTED"    // pre-instantiated
)

// ActivationPredicate optionally gates whether a Record applies for a given
// request; nil means always active.
type ActivationPredicate func() bool

// Factory builds a value given its declared dependency values, in the same
// order as Record.DependsOn.
type Factory func(deps []any) (any, error)

// Record is one Provider Record (spec 3): a binding plus its metadata.
type Record struct {
	Token      Token
	Kind       RecordKind
	Scope      Scope
	Value      any     // KindValue / KindInjected
	Factory    Factory // KindFactory
	DependsOn  []Token // constructor-equivalent dependency list (design note: statically declared, never introspected)
	Constructor Factory // KindClass / KindClassToken
	Activation ActivationPredicate
	HotReload  bool // permits registration after initialize (spec 4.2)
}

// ResolveError is returned when a token has no reachable binding.
type ResolveError struct{ Token Token }

func (e *ResolveError) Error() string { return fmt.Sprintf("provider: unresolved token %v", e.Token.key()) }

// DependencyCycleError is returned when registering a Record whose
// dependency graph contains a cycle (spec 4.1 "Cycles are detected at
// registration time and rejected").
type DependencyCycleError struct{ Path []Token }

func (e *DependencyCycleError) Error() string {
	return fmt.Sprintf("provider: dependency cycle detected: %v", e.Path)
}

// ScopeViolationError describes a request-scoped token resolved from a
// context that only has a global view available (spec 4.1). Container.Resolve
// does not check a Record's Scope, so no path in this package returns it.
type ScopeViolationError struct {
	Token     Token
	Requested Scope
	Available Scope
}

func (e *ScopeViolationError) Error() string {
	return fmt.Sprintf("provider: scope violation for %v: needs %s, have %s", e.Token.key(), e.Requested, e.Available)
}
