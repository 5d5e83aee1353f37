// Package flow implements the declarative, dependency-ordered pipeline
// executor described in spec section 4.3. Every inbound MCP method is
// dispatched through a Flow; plugins attach Hooks to named stages with a
// priority and an optional around-wrapper, the same shape the teacher uses
// for mark3labs/mcp-go's server.Hooks (AddBeforeXxx/AddAfterXxx), generalized
// from a fixed set of hook points to arbitrary named stages.
package flow

import (
	"context"
	"sort"

	"mcpgateway/internal/obctx"
	"mcpgateway/internal/provider"

	"go.uber.org/zap"
)

// Stage is one named step of a flow's RunPlan (e.g. "validate", "bind",
// "pre", "aroundExecute", "post", "finalize").
type Stage string

// StageFunc is the executor function bound to a stage.
type StageFunc func(ctx context.Context, fc *Ctx) error

// Record is a flow's metadata: name, dependency tokens, ordered stages and
// their executors (spec 4.3 "Flow Record").
type Record struct {
	Name       string
	DependsOn  []provider.Token
	RunPlan    []Stage
	Executors  map[Stage]StageFunc
	InputType  string
	OutputType string
}

// HookKind enumerates the variant dispatch of spec 4.3 / 9 in place of an
// open inheritance chain.
type HookKind string

const (
	KindWill    HookKind = "will"
	KindDid     HookKind = "did"
	KindAround  HookKind = "around"
	KindOnError HookKind = "on-error"
	KindFilter  HookKind = "filter"
)

// AroundFunc wraps a stage; next executes the stage (or the next
// around-hook further in).
type AroundFunc func(ctx context.Context, fc *Ctx, next StageFunc) error

// FilterFunc decides whether a hook applies to a given invocation.
type FilterFunc func(ctx context.Context, fc *Ctx) bool

// Hook is a plugin contribution bound to (flow, stage, priority, kind) per
// spec 4.3.
type Hook struct {
	Flow     string
	Stage    Stage
	Priority int
	Kind     HookKind
	Will     StageFunc
	Did      StageFunc
	Around   AroundFunc
	OnError  func(ctx context.Context, fc *Ctx, err error) error
	Filter   FilterFunc

	// seq is assigned at registration time and used as the stable
	// tie-break for equal-priority hooks (spec 4.3 step 1).
	seq int
}

// Ctx is the typed context every hook and stage executor receives (spec
// 4.3 step 3): parsed input, mutable scratch state, provider views,
// session/request identity, and the principal.
type Ctx struct {
	Context   context.Context
	Flow      string
	Input     any
	Output    any
	Err       error
	State     map[string]any
	Providers *provider.Views
	SessionID string
	RequestID string
	Principal obctx.Principal
}

func newCtx(ctx context.Context, flowName string, input any, views *provider.Views) *Ctx {
	rc, _ := obctx.From(ctx)
	fc := &Ctx{
		Context:   ctx,
		Flow:      flowName,
		Input:     input,
		State:     make(map[string]any),
		Providers: views,
	}
	if rc != nil {
		fc.SessionID = rc.SessionID
		fc.RequestID = rc.RequestID
		fc.Principal = rc.Principal
	}
	return fc
}

func applicable(h *Hook, ctx context.Context, fc *Ctx) bool {
	if h.Filter == nil {
		return true
	}
	return h.Filter(ctx, fc)
}

// sortHooks implements spec 4.3 step 1's ordering: will*/around* sort by
// priority descending (higher first, outermost); did* sort ascending
// (lower first, innermost); stable tie-break by declaration order.
func sortHooks(hooks []*Hook) {
	// A single descending key (negated for did*) keeps the order
	// consistent when one slice mixes hook kinds.
	rank := func(h *Hook) int {
		if h.Kind == KindDid {
			return -h.Priority
		}
		return h.Priority
	}
	sort.SliceStable(hooks, func(i, j int) bool {
		a, b := hooks[i], hooks[j]
		if ra, rb := rank(a), rank(b); ra != rb {
			return ra > rb
		}
		return a.seq < b.seq
	})
}

// composeAround builds the inner-to-outer around-wrapper chain: highest
// priority wraps outermost (spec 4.3).
func composeAround(hooks []*Hook, ctx context.Context, fc *Ctx, inner StageFunc) StageFunc {
	fn := inner
	// hooks is already priority-descending; to wrap outermost-first we
	// fold from the end (lowest priority) inward.
	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		if h.Kind != KindAround || !applicable(h, ctx, fc) {
			continue
		}
		next := fn
		around := h.Around
		fn = func(ctx context.Context, fc *Ctx) error {
			return around(ctx, fc, next)
		}
	}
	return fn
}

// Logger abstracts the zap logger used for flow tracing, keeping this
// package free of a hard zap.Logger field name collision with Ctx.
type Logger = *zap.Logger
