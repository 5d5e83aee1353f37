package provider

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Views is the {global, session, request} triple returned by BuildViews
// (spec 4.1). Resolution order within a single request walks
// request -> session -> global, applied per scope from innermost to
// outermost (invariant 4).
type Views struct {
	Global  *Container
	Session *Container
	Request *Container
}

// Resolve walks request, then session, then global, honoring first-wins
// (invariant 4).
func (v *Views) Resolve(t Token) (any, error) {
	for _, c := range []*Container{v.Request, v.Session, v.Global} {
		if c == nil {
			continue
		}
		if val, err := c.Resolve(t); err == nil {
			return val, nil
		}
	}
	return nil, &ResolveError{Token: t}
}

// ViewBuilder materializes the three-tier Views per session, memoizing the
// GLOBAL view once per process and the SESSION view once per sessionId
// (spec 4.1). Concurrent first access for the same sessionId produces
// exactly one instance via singleflight, implementing the future-map of
// spec section 5 ("Provider view construction for a given session is
// memoized via a future-map").
type ViewBuilder struct {
	global *Container

	mu       sync.Mutex
	sessions map[string]*Container
	group    singleflight.Group
}

// NewViewBuilder constructs a builder rooted at the given global container.
func NewViewBuilder(global *Container) *ViewBuilder {
	return &ViewBuilder{global: global, sessions: make(map[string]*Container)}
}

// BuildViews returns the Views for sessionID, creating and memoizing the
// session container on first access and a fresh request container every
// call (spec 4.1: "request (freshly constructed)").
func (b *ViewBuilder) BuildViews(sessionID string) *Views {
	session := b.sessionContainer(sessionID)
	return &Views{
		Global:  b.global,
		Session: session,
		Request: session.Fork(),
	}
}

func (b *ViewBuilder) sessionContainer(sessionID string) *Container {
	b.mu.Lock()
	if c, ok := b.sessions[sessionID]; ok {
		b.mu.Unlock()
		return c
	}
	b.mu.Unlock()

	v, _, _ := b.group.Do(sessionID, func() (any, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.sessions[sessionID]; ok {
			return c, nil
		}
		c := b.global.Fork()
		b.sessions[sessionID] = c
		return c, nil
	})
	return v.(*Container)
}

// DropSession removes a session's memoized container, used on adapter
// destroy / session expiry.
func (b *ViewBuilder) DropSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, sessionID)
}
