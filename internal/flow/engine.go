package flow

import (
	"context"
	"fmt"
	"sync"

	"mcpgateway/internal/provider"

	"go.uber.org/zap"
)

// Engine collects Records and Hooks and executes flows per spec 4.3.
// A run uses the hooks registered on this Engine through AddHook, for the
// flow's name or for "*"; hooks held in a scope's PluginRegistry are not
// read. The engine itself never parallelizes hooks within a stage (spec
// 4.3 "Concurrency").
type Engine struct {
	mu      sync.RWMutex
	records map[string]*Record
	hooks   map[string][]*Hook // keyed by flow name; "*" applies to every flow
	nextSeq int
	logger  *zap.Logger
}

// NewEngine constructs an empty Engine.
func NewEngine(logger *zap.Logger) *Engine {
	return &Engine{
		records: make(map[string]*Record),
		hooks:   make(map[string][]*Hook),
		logger:  logger,
	}
}

// Register adds or replaces a Flow Record.
func (e *Engine) Register(r *Record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records[r.Name] = r
}

// AddHook registers a Hook against h.Flow ("*" to apply to all flows).
func (e *Engine) AddHook(h *Hook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h.seq = e.nextSeq
	e.nextSeq++
	key := h.Flow
	if key == "" {
		key = "*"
	}
	e.hooks[key] = append(e.hooks[key], h)
}

func (e *Engine) hooksFor(flowName string, stage Stage) []*Hook {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []*Hook
	for _, key := range []string{flowName, "*"} {
		for _, h := range e.hooks[key] {
			if h.Stage == stage {
				out = append(out, h)
			}
		}
	}
	sortHooks(out)
	return out
}

// Lookup returns the registered Record, if any.
func (e *Engine) Lookup(name string) (*Record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.records[name]
	return r, ok
}

// Run executes the named flow to completion, implementing the stage loop
// and control-flow semantics of spec 4.3. It returns the final output
// value and an error that is nil on success (including ControlRespond),
// a *ControlAbort/*ControlRetryAfter on deliberate failure, or an ordinary
// error for anything unhandled.
func (e *Engine) Run(ctx context.Context, name string, input any, views *provider.Views) (any, error) {
	rec, ok := e.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("flow: unknown flow %q", name)
	}
	fc := newCtx(ctx, name, input, views)

	var responded bool
	var abortErr error
	var runErr error

	finalizeStage := Stage("finalize")
	postStage := Stage("post")

	for _, stage := range rec.RunPlan {
		if stage == finalizeStage {
			continue // finalize always runs last, handled after the loop
		}
		if responded && stage != postStage {
			continue // ControlRespond skips remaining stages except post/finalize
		}

		err := e.runStage(ctx, fc, rec, stage)
		if err == nil {
			continue
		}

		switch v := err.(type) {
		case *ControlRespond:
			fc.Output = v.Value
			responded = true
			continue
		case *ControlAbort:
			fc.Err = err
			abortErr = err
			e.runOnError(ctx, fc, rec, stage, err)
		case *ControlRetryAfter:
			fc.Err = err
			runErr = err
			e.runOnError(ctx, fc, rec, stage, err)
		default:
			fc.Err = err
			runErr = err
			e.runOnError(ctx, fc, rec, stage, err)
		}

		// ControlAbort skips post; any other failure also stops the
		// remaining pipeline. Only finalize still runs (spec 4.3).
		break
	}

	// finalize runs exactly once regardless of outcome (spec invariant 8).
	if ferr := e.runStage(ctx, fc, rec, finalizeStage); ferr != nil && !IsControlFlow(ferr) {
		e.logger.Warn("flow: finalize stage error", zap.String("flow", name), zap.Error(ferr))
	}

	if abortErr != nil {
		return fc.Output, abortErr
	}
	if runErr != nil {
		return fc.Output, runErr
	}
	return fc.Output, nil
}

func (e *Engine) runStage(ctx context.Context, fc *Ctx, rec *Record, stage Stage) error {
	for _, h := range e.hooksFor(rec.Name, stage) {
		if h.Kind != KindWill || !applicable(h, ctx, fc) {
			continue
		}
		if err := h.Will(ctx, fc); err != nil {
			return err
		}
	}

	executor, ok := rec.Executors[stage]
	if ok {
		if err := e.runWrapped(ctx, fc, rec, stage, executor); err != nil {
			return err
		}
	}

	for _, h := range e.hooksFor(rec.Name, stage) {
		if h.Kind != KindDid || !applicable(h, ctx, fc) {
			continue
		}
		if err := h.Did(ctx, fc); err != nil {
			return err
		}
	}
	return nil
}

// runWrapped composes around-hooks inner-to-outer around the stage
// executor, highest priority outermost (spec 4.3 step 2).
func (e *Engine) runWrapped(ctx context.Context, fc *Ctx, rec *Record, stage Stage, fn StageFunc) error {
	arounds := e.hooksFor(rec.Name, stage)
	wrapped := composeAround(arounds, ctx, fc, fn)
	return wrapped(ctx, fc)
}

func (e *Engine) runOnError(ctx context.Context, fc *Ctx, rec *Record, stage Stage, err error) {
	if IsControlFlow(err) {
		if _, isAbort := err.(*ControlAbort); !isAbort {
			if _, isRetry := err.(*ControlRetryAfter); !isRetry {
				return
			}
		}
	}
	for _, h := range e.hooksFor(rec.Name, stage) {
		if h.Kind != KindOnError || !applicable(h, ctx, fc) {
			continue
		}
		if handled := h.OnError(ctx, fc, err); handled == nil {
			e.logger.Debug("flow: on-error hook handled exception",
				zap.String("flow", rec.Name), zap.String("stage", string(stage)))
		}
	}
}
