package scope

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestRegistryUpsertAndFindByName(t *testing.T) {
	r := NewRegistry[string]()
	r.Upsert(&Entry[string]{Name: "alpha", QualifiedName: "app.alpha", Value: "a"})

	e, ok := r.FindByName("alpha")
	if !ok || e.Value != "a" {
		t.Fatalf("expected to find alpha, got %+v ok=%v", e, ok)
	}

	qe, ok := r.FindByQualifiedName("app.alpha")
	if !ok || qe.Value != "a" {
		t.Fatalf("expected to find by qualified name, got %+v ok=%v", qe, ok)
	}
}

func TestRegistryFindByNameMissing(t *testing.T) {
	r := NewRegistry[string]()
	if _, ok := r.FindByName("missing"); ok {
		t.Fatal("expected not found for an unregistered name")
	}
}

func TestRegistryListPreservesInsertionOrder(t *testing.T) {
	r := NewRegistry[int]()
	r.Upsert(&Entry[int]{Name: "c", QualifiedName: "c", Value: 3})
	r.Upsert(&Entry[int]{Name: "a", QualifiedName: "a", Value: 1})
	r.Upsert(&Entry[int]{Name: "b", QualifiedName: "b", Value: 2})

	names := make([]string, 0, 3)
	for _, e := range r.List() {
		names = append(names, e.Name)
	}
	want := []string{"c", "a", "b"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("unexpected order: %v", names)
		}
	}
}

func TestRegistryRemoveDropsFromFindAndList(t *testing.T) {
	r := NewRegistry[int]()
	r.Upsert(&Entry[int]{Name: "x", QualifiedName: "x", Value: 1})
	r.Remove("x")

	if _, ok := r.FindByName("x"); ok {
		t.Fatal("expected entry to be gone after Remove")
	}
	if len(r.List()) != 0 {
		t.Fatal("expected empty list after removing the only entry")
	}
}

func TestRegistrySubscribeNotifiesOnUpsertAndRemove(t *testing.T) {
	r := NewRegistry[int]()
	var events []bool
	r.Subscribe(func(_ *Entry[int], removed bool) { events = append(events, removed) })

	r.Upsert(&Entry[int]{Name: "y", QualifiedName: "y", Value: 1})
	r.Remove("y")

	if len(events) != 2 || events[0] != false || events[1] != true {
		t.Fatalf("unexpected subscriber events: %v", events)
	}
}

func TestTopoInitRunsReadyInDependencyOrder(t *testing.T) {
	r := NewRegistry[int]()
	var order []string

	r.Upsert(&Entry[int]{Name: "b", QualifiedName: "b", DependsOn: []string{"a"}, Ready: func(context.Context) error {
		order = append(order, "b")
		return nil
	}})
	r.Upsert(&Entry[int]{Name: "a", QualifiedName: "a", Ready: func(context.Context) error {
		order = append(order, "a")
		return nil
	}})

	if err := r.TopoInit(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected a before b, got %v", order)
	}
}

func TestTopoInitDetectsCycle(t *testing.T) {
	r := NewRegistry[int]()
	r.Upsert(&Entry[int]{Name: "a", QualifiedName: "a", DependsOn: []string{"b"}})
	r.Upsert(&Entry[int]{Name: "b", QualifiedName: "b", DependsOn: []string{"a"}})

	if err := r.TopoInit(context.Background()); err == nil {
		t.Fatal("expected a dependency cycle error")
	}
}

func TestQualifiedNameJoinsParentAndChild(t *testing.T) {
	got := QualifiedName("app", "tool1")
	if got != "app.tool1" {
		t.Fatalf("unexpected qualified name: %q", got)
	}
}

func TestQualifiedNameTruncatesLongSegments(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	got := QualifiedName(string(long), "child")
	parent := got[:len(got)-len(".child")]
	if len(parent) != maxQualifiedSegment {
		t.Fatalf("expected truncated parent segment of length %d, got %d", maxQualifiedSegment, len(parent))
	}
}

func TestNewChildForksProviderContainer(t *testing.T) {
	root := New("server", KindServer, zap.NewNop())
	app := root.NewChild("app1", KindApp)

	if app.Parent != root {
		t.Fatal("expected child's parent to be root")
	}
	if app.Providers == root.Providers {
		t.Fatal("expected child to fork its own provider container")
	}
}

func TestAdoptRewritesQualifiedNamesFromChildTools(t *testing.T) {
	root := New("server", KindServer, zap.NewNop())
	app := root.NewChild("app1", KindApp)

	app.Tools.Upsert(&Entry[*ToolRecord]{
		Name:          "echo",
		QualifiedName: "echo",
		Value:         &ToolRecord{Name: "echo", ID: "echo"},
	})

	root.Adopt(app)

	e, ok := root.Tools.FindByQualifiedName("app1.echo")
	if !ok {
		t.Fatal("expected adopted tool to be reachable by its rewritten qualified name")
	}
	if e.Value.ID != "app1.echo" {
		t.Fatalf("expected adopted tool record's ID to be rewritten, got %q", e.Value.ID)
	}
}
