package obctx

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelRegistry tracks the per-session logging/setLevel override described
// in spec 4.10, so every adapter's logger can be adjusted independently
// without restarting the process.
type LevelRegistry struct {
	mu     sync.RWMutex
	levels map[string]zapcore.Level
	base   *zap.Logger
}

// NewLevelRegistry creates a registry rooted at base; sessions without an
// override log at base's configured level.
func NewLevelRegistry(base *zap.Logger) *LevelRegistry {
	return &LevelRegistry{
		levels: make(map[string]zapcore.Level),
		base:   base,
	}
}

// SetLevel implements the logging/setLevel MCP method for a session.
func (r *LevelRegistry) SetLevel(sessionID string, level LogLevel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels[sessionID] = level.ToZapLevel().Level()
}

// Logger returns base with sessionID's override applied via
// zap.IncreaseLevel. An override can only raise the threshold: one below
// base's configured level has no effect, and base's level applies.
func (r *LevelRegistry) Logger(sessionID string) *zap.Logger {
	r.mu.RLock()
	lvl, ok := r.levels[sessionID]
	r.mu.RUnlock()
	if !ok {
		return r.base
	}
	return r.base.WithOptions(zap.IncreaseLevel(lvl))
}

// Clear removes any override for sessionID, used on adapter destroy.
func (r *LevelRegistry) Clear(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.levels, sessionID)
}
