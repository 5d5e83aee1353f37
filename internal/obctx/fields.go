package obctx

import (
	"context"

	"go.uber.org/zap"
)

// Fields returns the zap.Field set a log line should carry for the ambient
// context bound to ctx, so callers never hand-roll sessionId/requestId
// tagging the way the teacher's internal/reqcontext pairs do for
// correlation ids.
func Fields(ctx context.Context) []zap.Field {
	rc, ok := From(ctx)
	if !ok {
		return nil
	}
	return []zap.Field{
		zap.String("session_id", rc.SessionID),
		zap.String("scope_id", rc.ScopeID),
		zap.String("request_id", rc.RequestID),
		zap.String("trace_id", rc.TraceID),
		zap.String("principal_id", rc.Principal.ID),
	}
}

// LogLevel enumerates the levels exposed by logging/setLevel (spec 4.10).
type LogLevel string

const (
	LevelDebug     LogLevel = "debug"
	LevelVerbose   LogLevel = "verbose"
	LevelInfo      LogLevel = "info"
	LevelNotice    LogLevel = "notice"
	LevelWarning   LogLevel = "warning"
	LevelError     LogLevel = "error"
	LevelCritical  LogLevel = "critical"
	LevelAlert     LogLevel = "alert"
	LevelEmergency LogLevel = "emergency"
)

// ToZapLevel maps the MCP logging levels onto zap's coarser level set, the
// same downward mapping internal/logs/logger.go uses for its "trace" alias.
func (l LogLevel) ToZapLevel() zap.AtomicLevel {
	lvl := zap.NewAtomicLevel()
	switch l {
	case LevelDebug, LevelVerbose:
		lvl.SetLevel(zap.DebugLevel)
	case LevelInfo, LevelNotice:
		lvl.SetLevel(zap.InfoLevel)
	case LevelWarning:
		lvl.SetLevel(zap.WarnLevel)
	case LevelError, LevelCritical, LevelAlert, LevelEmergency:
		lvl.SetLevel(zap.ErrorLevel)
	default:
		lvl.SetLevel(zap.InfoLevel)
	}
	return lvl
}
