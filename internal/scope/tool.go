package scope

import (
	"context"
	"time"

	"mcpgateway/internal/provider"
)

// Annotations are the optional tool behavior hints of spec 3.
type Annotations struct {
	ReadOnly    bool
	Destructive bool
	Idempotent  bool
	Title       string
}

// CacheConfig declares a tool's cache-hit behavior (spec 4.6 cache stages).
type CacheConfig struct {
	TTL time.Duration
}

// ApprovalConfig declares a tool's human-approval gate (spec 7
// ApprovalRequired).
type ApprovalConfig struct {
	Required bool
	URLHint  string
}

// SkillGating restricts a tool to sessions with a loaded, compatible skill
// (spec 3 "optional skill gating").
type SkillGating struct {
	RequiredSkillID string
}

// Executor is the actual tool implementation, resolved lazily from the
// request's provider views (spec 3 "getExecutor(resolve) function that
// yields the actual implementation").
type Executor func(ctx context.Context, input any) (any, error)

// ToolRecord is the spec 3 "Tool Record".
type ToolRecord struct {
	Name           string
	ID             string // fully-qualified, dot-separated lineage
	InputSchema    map[string]any
	OutputSchema   any // resultshape.Descriptor, []resultshape.Descriptor, or a JSON Schema map
	Annotations    Annotations
	Cache          *CacheConfig
	Approval       *ApprovalConfig
	Skill          *SkillGating
	RateLimitPerMin int

	GetExecutor func(resolve func(provider.Token) (any, error)) (Executor, error)
}

// ToolRegistry is the spec 3/4.2 tool registry.
type ToolRegistry struct {
	*Registry[*ToolRecord]
}

// NewToolRegistry constructs an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{Registry: NewRegistry[*ToolRecord]()}
}

func (t *ToolRegistry) adoptFrom(child *ToolRegistry, parentID string) {
	for _, e := range child.List() {
		qname := QualifiedName(parentID, e.QualifiedName)
		rec := *e.Value
		rec.ID = qname
		adopted := &Entry[*ToolRecord]{
			Name:          e.Name,
			QualifiedName: qname,
			DependsOn:     e.DependsOn,
			Value:         &rec,
			Ready:         e.Ready,
		}
		t.Upsert(adopted)
	}
}
