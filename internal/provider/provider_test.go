package provider

import "testing"

func TestResolveValueToken(t *testing.T) {
	c := NewContainer()
	tok := Symbol("greeting")
	if err := c.Register(&Record{Token: tok, Kind: KindValue, Scope: ScopeGlobal, Value: "hello"}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	v, err := c.Resolve(tok)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if v != "hello" {
		t.Fatalf("unexpected value: %v", v)
	}
}

func TestResolveUnboundTokenErrors(t *testing.T) {
	c := NewContainer()
	if _, err := c.Resolve(Symbol("missing")); err == nil {
		t.Fatal("expected ResolveError for unbound token")
	}
}

func TestForkShadowsParentBinding(t *testing.T) {
	parent := NewContainer()
	tok := Symbol("level")
	_ = parent.Register(&Record{Token: tok, Kind: KindValue, Scope: ScopeGlobal, Value: "parent"})

	child := parent.Fork()
	_ = child.Register(&Record{Token: tok, Kind: KindValue, Scope: ScopeSession, Value: "child"})

	v, err := child.Resolve(tok)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if v != "child" {
		t.Fatalf("expected child binding to shadow parent, got %v", v)
	}

	pv, err := parent.Resolve(tok)
	if err != nil {
		t.Fatalf("parent resolve failed: %v", err)
	}
	if pv != "parent" {
		t.Fatalf("parent binding must be unaffected by child registration, got %v", pv)
	}
}

func TestForkFallsBackToParentForUnshadowedToken(t *testing.T) {
	parent := NewContainer()
	tok := Symbol("only-on-parent")
	_ = parent.Register(&Record{Token: tok, Kind: KindValue, Scope: ScopeGlobal, Value: 42})

	child := parent.Fork()
	v, err := child.Resolve(tok)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if v != 42 {
		t.Fatalf("unexpected value: %v", v)
	}
}

func TestRegisterDetectsCycleThroughExistingChain(t *testing.T) {
	// Cycle detection walks already-committed records (spec: "cycles are
	// detected at registration time"), so a cycle only becomes visible once
	// every edge in the loop is committed. Build A -> (no deps), B -> A,
	// C -> B, then re-register A -> C to close the loop.
	c := NewContainer()
	a := Symbol("a")
	b := Symbol("b")
	cc := Symbol("c")

	if err := c.Register(&Record{Token: a, Kind: KindValue, Value: 1}); err != nil {
		t.Fatalf("register a failed: %v", err)
	}
	if err := c.Register(&Record{Token: b, Kind: KindFactory, DependsOn: []Token{a}}); err != nil {
		t.Fatalf("register b failed: %v", err)
	}
	if err := c.Register(&Record{Token: cc, Kind: KindFactory, DependsOn: []Token{b}}); err != nil {
		t.Fatalf("register c failed: %v", err)
	}

	err := c.Register(&Record{Token: a, Kind: KindFactory, DependsOn: []Token{cc}})
	if err == nil {
		t.Fatal("expected a DependencyCycleError when closing the loop")
	}
	if _, ok := err.(*DependencyCycleError); !ok {
		t.Fatalf("expected *DependencyCycleError, got %T", err)
	}
}

func TestFactoryResolvesDeclaredDependencies(t *testing.T) {
	c := NewContainer()
	base := Symbol("base")
	_ = c.Register(&Record{Token: base, Kind: KindValue, Scope: ScopeGlobal, Value: 10})

	derived := Symbol("derived")
	err := c.Register(&Record{
		Token:     derived,
		Kind:      KindFactory,
		DependsOn: []Token{base},
		Factory: func(deps []any) (any, error) {
			return deps[0].(int) * 2, nil
		},
	})
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}

	v, err := c.Resolve(derived)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if v != 20 {
		t.Fatalf("expected factory to receive resolved dependency, got %v", v)
	}
}

func TestMarkStartedRejectsLateRegistrationWithoutHotReload(t *testing.T) {
	c := NewContainer()
	c.MarkStarted()

	err := c.Register(&Record{Token: Symbol("late"), Kind: KindValue, Value: 1})
	if err == nil {
		t.Fatal("expected late registration without HotReload to be rejected")
	}

	if err := c.Register(&Record{Token: Symbol("late-hot"), Kind: KindValue, Value: 1, HotReload: true}); err != nil {
		t.Fatalf("HotReload registration should be permitted after start: %v", err)
	}
}

func TestViewsResolveOrderRequestThenSessionThenGlobal(t *testing.T) {
	global := NewContainer()
	tok := Symbol("scoped")
	_ = global.Register(&Record{Token: tok, Kind: KindValue, Scope: ScopeGlobal, Value: "global"})

	session := global.Fork()
	_ = session.Register(&Record{Token: tok, Kind: KindValue, Scope: ScopeSession, Value: "session"})

	request := session.Fork()

	views := &Views{Global: global, Session: session, Request: request}
	v, err := views.Resolve(tok)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if v != "session" {
		t.Fatalf("expected session binding to win over global, got %v", v)
	}

	_ = request.Register(&Record{Token: tok, Kind: KindValue, Scope: ScopeRequest, Value: "request"})
	v, err = views.Resolve(tok)
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if v != "request" {
		t.Fatalf("expected request binding to win over session and global, got %v", v)
	}
}

func TestViewBuilderMemoizesSessionContainer(t *testing.T) {
	global := NewContainer()
	vb := NewViewBuilder(global)

	v1 := vb.BuildViews("session-1")
	v2 := vb.BuildViews("session-1")
	if v1.Session != v2.Session {
		t.Fatal("expected the same session container to be reused across calls")
	}
	if v1.Request == v2.Request {
		t.Fatal("expected a fresh request container on every call")
	}
}

func TestViewBuilderDropSessionForgetsContainer(t *testing.T) {
	global := NewContainer()
	vb := NewViewBuilder(global)

	v1 := vb.BuildViews("session-2")
	vb.DropSession("session-2")
	v2 := vb.BuildViews("session-2")
	if v1.Session == v2.Session {
		t.Fatal("expected a new session container after DropSession")
	}
}

func TestViewBuilderConcurrentBuildViewsReturnsSameSessionContainer(t *testing.T) {
	global := NewContainer()
	vb := NewViewBuilder(global)

	const n = 20
	results := make(chan *Views, n)
	for i := 0; i < n; i++ {
		go func() { results <- vb.BuildViews("concurrent-session") }()
	}

	first := <-results
	for i := 1; i < n; i++ {
		v := <-results
		if v.Session != first.Session {
			t.Fatal("concurrent first access for the same session must produce exactly one session container")
		}
	}
}
