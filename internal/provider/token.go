// Package provider implements the three-tier (global/session/request)
// dependency-injection container described in spec section 4.1, used as
// the resolution substrate for flows, hooks, and tool invocation.
package provider

import "reflect"

// Scope names a binding's lifetime tier (spec 3 "Provider Record").
type Scope string

const (
	ScopeGlobal  Scope = "GLOBAL"
	ScopeSession Scope = "SESSION"
	ScopeRequest Scope = "REQUEST"
)

// Token is the opaque identity of a bindable dependency. It is
// value-equal: two Tokens with the same Name and Type are interchangeable,
// which is what makes "duplicate registration at the same scope replaces
// the prior binding" (spec 3) well defined.
type Token struct {
	// Name identifies a symbolic token (a named handle for a value or
	// factory). Class-shaped tokens instead carry Type.
	Name string
	// Type identifies a class-shaped token (a constructor-equivalent that
	// carries its own metadata) via its reflect.Type.
	Type reflect.Type
}

// Symbol builds a symbolic Token.
func Symbol(name string) Token { return Token{Name: name} }

// ClassToken builds a class-shaped Token from a zero value of T.
func ClassToken[T any]() Token {
	var zero T
	return Token{Type: reflect.TypeOf(zero)}
}

// key returns the comparable map key of a Token: its Type when
// class-shaped, otherwise its Name.
func (t Token) key() any {
	if t.Type != nil {
		return t.Type
	}
	return t.Name
}
