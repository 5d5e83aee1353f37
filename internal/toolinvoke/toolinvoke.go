// Package toolinvoke implements the "tools:call-tool" flow of spec section
// 4.6: the staged tool invocation pipeline (guard, bind, pre, cache,
// aroundExecute, post, willWriteCache, finalize) that every tools/call
// request runs through.
//
// Grounded on the teacher's handleCallTool / handleCallToolVariant family
// in internal/server/mcp.go (name parsing, argument extraction, proxy-tool
// short-circuiting generalized into the guard/bind stages) and
// internal/cache/manager.go (GenerateKey + Store/Get, generalized from
// tool-response caching at the HTTP layer to an in-flow cache stage).
package toolinvoke

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mcpgateway/internal/flow"
	"mcpgateway/internal/provider"
	"mcpgateway/internal/resultshape"
	"mcpgateway/internal/scope"
)

// Stage names of the spec 4.6 RunPlan.
const (
	StageGuard          flow.Stage = "guard"
	StageBind           flow.Stage = "bind"
	StagePre            flow.Stage = "pre"
	StageCache          flow.Stage = "cache"
	StageAroundExecute  flow.Stage = "aroundExecute"
	StagePost           flow.Stage = "post"
	StageWillWriteCache flow.Stage = "willWriteCache"
	StageFinalize       flow.Stage = "finalize"
)

// FlowName is the fixed flow name bound to "tools/call" (dispatch.MethodFlowMap).
const FlowName = "tools:call-tool"

// CachedResponse is one stored tool response, keyed by (tool, args).
type CachedResponse struct {
	Output    resultshape.Output
	StoredAt  time.Time
	ExpiresAt time.Time
}

// ResponseCache is the spec 4.6 cache collaborator: a tool-response store
// keyed by GenerateKey, generalized from the teacher's cache.Manager
// (bbolt-backed Store/Get) to an interface so tests can substitute an
// in-memory double.
type ResponseCache interface {
	Get(key string) (*CachedResponse, bool)
	Set(key string, resp *CachedResponse)
}

// GenerateKey derives a deterministic cache key, grounded directly on
// cache.Manager.GenerateKey.
func GenerateKey(toolID string, args map[string]any) string {
	return fmt.Sprintf("%s:%v", toolID, args)
}

// Input is the parsed spec 4.6 "tools/call" request body:
// {"name": "server.tool", "arguments": {...}}.
type Input struct {
	Name      string
	Arguments map[string]any
}

func parseInput(raw any) (Input, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Input{}, flow.NewPublicError(flow.KindInvalidInput, "invalid_params", "tools/call params must be an object", 400)
	}
	name, _ := m["name"].(string)
	if name == "" {
		return Input{}, flow.NewPublicError(flow.KindInvalidInput, "missing_name", "tools/call requires a non-empty \"name\"", 400)
	}
	args, _ := m["arguments"].(map[string]any)
	return Input{Name: name, Arguments: args}, nil
}

// stateKey is the flow.Ctx.State key used to pass the resolved tool record
// and executor between stages.
const (
	stateTool     = "toolinvoke.tool"
	stateExecutor = "toolinvoke.executor"
	stateCacheKey = "toolinvoke.cacheKey"
	stateResult   = "toolinvoke.result"
)

// NewRecord builds the "tools:call-tool" flow.Record bound to s's tool
// registry, per spec 4.6's eight-stage RunPlan.
func NewRecord(s *scope.Scope, cache ResponseCache, logger *zap.Logger) *flow.Record {
	return &flow.Record{
		Name:       FlowName,
		RunPlan:    []flow.Stage{StageGuard, StageBind, StagePre, StageCache, StageAroundExecute, StagePost, StageWillWriteCache, StageFinalize},
		InputType:  "toolinvoke.Input",
		OutputType: "resultshape.Output",
		Executors: map[flow.Stage]flow.StageFunc{
			StageGuard:          guardStage(s),
			StageBind:           bindStage(s),
			StagePre:            preStage(),
			StageCache:          cacheStage(cache),
			StageAroundExecute:  executeStage(),
			StagePost:           postStage(),
			StageWillWriteCache: willWriteCacheStage(cache),
			StageFinalize:       finalizeStage(logger),
		},
	}
}

// guardStage resolves the tool record and enforces approval/activation
// gating before any binding happens (spec 4.6 step "guard").
func guardStage(s *scope.Scope) flow.StageFunc {
	return func(ctx context.Context, fc *flow.Ctx) error {
		in, err := parseInput(fc.Input)
		if err != nil {
			return err
		}
		fc.State["toolinvoke.input"] = in

		entry, ok := s.Tools.FindByQualifiedName(in.Name)
		if !ok {
			entry, ok = s.Tools.FindByName(in.Name)
		}
		if !ok {
			return flow.NewPublicError(flow.KindToolNotActivated, "tool_not_activated", fmt.Sprintf("tool %q is not activated in this scope", in.Name), 404)
		}
		tool := entry.Value

		if tool.Approval != nil && tool.Approval.Required {
			return flow.AbortWithData("approval_required", fmt.Sprintf("tool %q requires human approval", in.Name), 403,
				map[string]any{"approval_url_hint": tool.Approval.URLHint})
		}

		fc.State[stateTool] = tool
		return nil
	}
}

// bindStage resolves the tool's executor lazily from the request's
// provider views (spec 3 "getExecutor(resolve)").
func bindStage(s *scope.Scope) flow.StageFunc {
	return func(ctx context.Context, fc *flow.Ctx) error {
		tool := fc.State[stateTool].(*scope.ToolRecord)
		resolve := func(t provider.Token) (any, error) { return fc.Providers.Resolve(t) }
		executor, err := tool.GetExecutor(resolve)
		if err != nil {
			return flow.NewPublicError(flow.KindInternalError, "bind_failed", fmt.Sprintf("binding tool %q: %v", tool.Name, err), 500)
		}
		fc.State[stateExecutor] = executor
		return nil
	}
}

// preStage is a placeholder extension point for input-schema validation;
// the stage always runs so plugins can attach will/did hooks to it.
func preStage() flow.StageFunc {
	return func(ctx context.Context, fc *flow.Ctx) error { return nil }
}

// cacheStage short-circuits the remaining stages with ControlRespond on a
// live cache hit (spec 4.6 "cache" step + invariant "cache hit short
// circuits the pipeline").
func cacheStage(cache ResponseCache) flow.StageFunc {
	return func(ctx context.Context, fc *flow.Ctx) error {
		tool := fc.State[stateTool].(*scope.ToolRecord)
		in := fc.State["toolinvoke.input"].(Input)

		if tool.Cache == nil || cache == nil {
			return nil
		}
		key := GenerateKey(tool.ID, in.Arguments)
		fc.State[stateCacheKey] = key

		cached, ok := cache.Get(key)
		if !ok {
			return nil
		}
		if time.Now().After(cached.ExpiresAt) {
			return nil
		}
		return flow.Respond(cached.Output)
	}
}

// executeStage invokes the bound executor. Around-hooks registered on this
// stage wrap this call (spec 4.3).
func executeStage() flow.StageFunc {
	return func(ctx context.Context, fc *flow.Ctx) error {
		tool := fc.State[stateTool].(*scope.ToolRecord)
		executor := fc.State[stateExecutor].(scope.Executor)
		in := fc.State["toolinvoke.input"].(Input)

		result, err := executor(ctx, in.Arguments)
		if err != nil {
			return flow.NewPublicError(flow.KindInternalError, "execution_failed", fmt.Sprintf("tool %q failed: %v", tool.Name, err), 500)
		}
		fc.State[stateResult] = result
		return nil
	}
}

// postStage shapes the raw executor result into MCP content blocks +
// structuredContent per the tool's declared OutputSchema (spec 4.8).
func postStage() flow.StageFunc {
	return func(ctx context.Context, fc *flow.Ctx) error {
		tool := fc.State[stateTool].(*scope.ToolRecord)
		raw, ok := fc.State[stateResult]
		if !ok {
			return nil // answered from the cache; keep the cached output
		}

		descriptors := outputDescriptors(tool.OutputSchema)
		out := resultshape.Shape(descriptors, raw)
		fc.Output = out
		return nil
	}
}

func outputDescriptors(schema any) []resultshape.Descriptor {
	switch v := schema.(type) {
	case resultshape.Descriptor:
		return []resultshape.Descriptor{v}
	case []resultshape.Descriptor:
		return v
	case map[string]any:
		return []resultshape.Descriptor{{Kind: resultshape.KindSchema, Schema: v}}
	default:
		return []resultshape.Descriptor{{Kind: resultshape.KindSchema}}
	}
}

// willWriteCacheStage persists the shaped output when the tool declares a
// CacheConfig (spec 4.6 "willWriteCache").
func willWriteCacheStage(cache ResponseCache) flow.StageFunc {
	return func(ctx context.Context, fc *flow.Ctx) error {
		tool := fc.State[stateTool].(*scope.ToolRecord)
		if tool.Cache == nil || cache == nil {
			return nil
		}
		key, _ := fc.State[stateCacheKey].(string)
		if key == "" {
			return nil
		}
		out, ok := fc.Output.(resultshape.Output)
		if !ok {
			return nil
		}
		now := time.Now()
		cache.Set(key, &CachedResponse{
			Output:    out,
			StoredAt:  now,
			ExpiresAt: now.Add(tool.Cache.TTL),
		})
		return nil
	}
}

// finalizeStage always runs regardless of outcome (invariant 8); here it
// only logs, mirroring the teacher's activity-event emission after every
// tool call.
func finalizeStage(logger *zap.Logger) flow.StageFunc {
	return func(ctx context.Context, fc *flow.Ctx) error {
		tool, _ := fc.State[stateTool].(*scope.ToolRecord)
		name := "unknown"
		if tool != nil {
			name = tool.Name
		}
		logger.Debug("toolinvoke: finalize",
			zap.String("tool", name),
			zap.String("session_id", fc.SessionID),
			zap.String("request_id", fc.RequestID),
			zap.Bool("errored", fc.Err != nil))
		return nil
	}
}
