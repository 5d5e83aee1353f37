package toolinvoke

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"mcpgateway/internal/flow"
	"mcpgateway/internal/provider"
	"mcpgateway/internal/resultshape"
	"mcpgateway/internal/scope"
)

type memCache struct {
	entries map[string]*CachedResponse
}

func newMemCache() *memCache { return &memCache{entries: make(map[string]*CachedResponse)} }

func (c *memCache) Get(key string) (*CachedResponse, bool) {
	v, ok := c.entries[key]
	return v, ok
}

func (c *memCache) Set(key string, resp *CachedResponse) { c.entries[key] = resp }

func newTestScopeWithEchoTool(cacheTTL *time.Duration, calls *int) *scope.Scope {
	s := scope.New("server", scope.KindServer, zap.NewNop())

	var cacheCfg *scope.CacheConfig
	if cacheTTL != nil {
		cacheCfg = &scope.CacheConfig{TTL: *cacheTTL}
	}

	rec := &scope.ToolRecord{
		Name:         "echo",
		ID:           "echo",
		OutputSchema: resultshape.Descriptor{Kind: resultshape.KindString},
		Cache:        cacheCfg,
		GetExecutor: func(resolve func(provider.Token) (any, error)) (scope.Executor, error) {
			return func(ctx context.Context, input any) (any, error) {
				if calls != nil {
					*calls++
				}
				args, _ := input.(map[string]any)
				msg, _ := args["message"].(string)
				return msg, nil
			}, nil
		},
	}
	s.Tools.Upsert(&scope.Entry[*scope.ToolRecord]{Name: "echo", QualifiedName: "echo", Value: rec})
	return s
}

func runFlow(t *testing.T, s *scope.Scope, cache ResponseCache, input any) (any, error) {
	t.Helper()
	e := flow.NewEngine(zap.NewNop())
	e.Register(NewRecord(s, cache, zap.NewNop()))

	global := provider.NewContainer()
	views := &provider.Views{Global: global, Session: global.Fork(), Request: global.Fork()}
	return e.Run(context.Background(), FlowName, input, views)
}

func TestToolInvokeExecutesAndShapesOutput(t *testing.T) {
	s := newTestScopeWithEchoTool(nil, nil)
	out, err := runFlow(t, s, nil, map[string]any{"name": "echo", "arguments": map[string]any{"message": "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	shaped, ok := out.(resultshape.Output)
	if !ok {
		t.Fatalf("expected resultshape.Output, got %T", out)
	}
	if len(shaped.Content) != 1 || shaped.Content[0].Text != "hi" {
		t.Fatalf("unexpected content: %+v", shaped.Content)
	}
}

func TestToolInvokeUnknownToolReturnsPublicError(t *testing.T) {
	s := scope.New("server", scope.KindServer, zap.NewNop())
	_, err := runFlow(t, s, nil, map[string]any{"name": "missing"})
	if err == nil {
		t.Fatal("expected an error for an unregistered tool")
	}
	pubErr, ok := err.(*flow.PublicMcpError)
	if !ok {
		t.Fatalf("expected *flow.PublicMcpError, got %T", err)
	}
	if pubErr.Kind != flow.KindToolNotActivated {
		t.Fatalf("unexpected error kind: %v", pubErr.Kind)
	}
}

func TestToolInvokeCacheHitShortCircuitsExecutor(t *testing.T) {
	ttl := time.Minute
	calls := 0
	s := newTestScopeWithEchoTool(&ttl, &calls)
	cache := newMemCache()

	input := map[string]any{"name": "echo", "arguments": map[string]any{"message": "hi"}}

	out1, err := runFlow(t, s, cache, input)
	if err != nil {
		t.Fatalf("unexpected error on first call: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected the executor to run once on a cold cache, got %d calls", calls)
	}

	out2, err := runFlow(t, s, cache, input)
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a cache hit to short-circuit the executor, got %d calls", calls)
	}

	shaped1 := out1.(resultshape.Output)
	shaped2 := out2.(resultshape.Output)
	if shaped1.Content[0].Text != shaped2.Content[0].Text {
		t.Fatalf("expected cached output to match the original: %+v vs %+v", shaped1, shaped2)
	}
}

func TestToolInvokeExpiredCacheEntryReexecutes(t *testing.T) {
	ttl := time.Millisecond
	calls := 0
	s := newTestScopeWithEchoTool(&ttl, &calls)
	cache := newMemCache()

	input := map[string]any{"name": "echo", "arguments": map[string]any{"message": "hi"}}

	if _, err := runFlow(t, s, cache, input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, err := runFlow(t, s, cache, input); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected an expired cache entry to re-execute the tool, got %d calls", calls)
	}
}

func TestToolInvokeApprovalRequiredAborts(t *testing.T) {
	s := scope.New("server", scope.KindServer, zap.NewNop())
	rec := &scope.ToolRecord{
		Name:     "danger",
		ID:       "danger",
		Approval: &scope.ApprovalConfig{Required: true, URLHint: "https://approve.example/x"},
		GetExecutor: func(resolve func(provider.Token) (any, error)) (scope.Executor, error) {
			return func(ctx context.Context, input any) (any, error) { return nil, nil }, nil
		},
	}
	s.Tools.Upsert(&scope.Entry[*scope.ToolRecord]{Name: "danger", QualifiedName: "danger", Value: rec})

	_, err := runFlow(t, s, nil, map[string]any{"name": "danger"})
	if err == nil {
		t.Fatal("expected an approval-required abort")
	}
	abort, ok := err.(*flow.ControlAbort)
	if !ok {
		t.Fatalf("expected *flow.ControlAbort, got %T", err)
	}
	if abort.Code != "approval_required" {
		t.Fatalf("unexpected abort code: %v", abort.Code)
	}
}
