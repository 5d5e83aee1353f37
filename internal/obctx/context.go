// Package obctx carries the ambient request context described in spec
// section 4.10 through the call graph without explicit parameter passing,
// and provides the zap fields (Fields) that log lines tag it with. No
// metrics are emitted.
package obctx

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const requestCtxKey ctxKey = "obctx.request"

// Principal is the authenticated identity attached to a request. Auth
// itself is consumed, never performed, by this package.
type Principal struct {
	ID     string
	Scopes []string
}

// RequestContext is the ambient {sessionId, scopeId, requestId, principal,
// traceId} bundle threaded through flows, hooks, and tool executors.
type RequestContext struct {
	SessionID string
	ScopeID   string
	RequestID string
	TraceID   string
	Principal Principal
	AuthHash  string
}

// New builds a RequestContext, always generating a fresh request id and
// trace id.
func New(sessionID, scopeID, authHash string, principal Principal) *RequestContext {
	return &RequestContext{
		SessionID: sessionID,
		ScopeID:   scopeID,
		RequestID: uuid.NewString(),
		TraceID:   uuid.NewString(),
		Principal: principal,
		AuthHash:  authHash,
	}
}

// WithContext binds rc into ctx for downstream propagation.
func WithContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestCtxKey, rc)
}

// From retrieves the ambient RequestContext, if any.
func From(ctx context.Context) (*RequestContext, bool) {
	rc, ok := ctx.Value(requestCtxKey).(*RequestContext)
	return rc, ok
}

// SessionID is a convenience accessor returning "" when no context is bound.
func SessionID(ctx context.Context) string {
	if rc, ok := From(ctx); ok {
		return rc.SessionID
	}
	return ""
}

// RequestID is a convenience accessor returning "" when no context is bound.
func RequestID(ctx context.Context) string {
	if rc, ok := From(ctx); ok {
		return rc.RequestID
	}
	return ""
}
