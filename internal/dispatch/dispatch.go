// Package dispatch implements spec section 4.5: parse and validate an
// inbound JSON-RPC envelope, look up the flow bound to its method, open
// the ambient request context, run the flow, and translate the result
// back into a JSON-RPC response.
//
// Grounded on the teacher's internal/server/mcp.go method-handler table
// and github.com/mark3labs/mcp-go's JSON-RPC types.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"mcpgateway/internal/flow"
	"mcpgateway/internal/obctx"
	"mcpgateway/internal/provider"
	"mcpgateway/internal/scope"

	"go.uber.org/zap"
)

// Envelope is a parsed JSON-RPC 2.0 request (spec 4.5 step 1).
type Envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *ResponseError  `json:"error,omitempty"`
}

// ResponseError is a JSON-RPC 2.0 error object.
type ResponseError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// MethodFlowMap is the fixed mapping of spec 4.5 step 2 / spec 6.
var MethodFlowMap = map[string]string{
	"initialize":                 "system:initialize",
	"ping":                       "system:ping",
	"tools/list":                 "tools:list-tools",
	"tools/call":                 "tools:call-tool",
	"resources/list":             "resources:list-resources",
	"resources/templates/list":   "resources:list-templates",
	"resources/read":             "resources:read-resource",
	"resources/subscribe":        "resources:subscribe",
	"resources/unsubscribe":      "resources:unsubscribe",
	"prompts/list":               "prompts:list-prompts",
	"prompts/get":                "prompts:get-prompt",
	"completion/complete":        "completion:complete",
	"logging/setLevel":           "logging:set-level",
	"elicitation/create":         "elicitation:request",
	"skills/list":                "skills:list",
	"skills/search":              "skills:search",
	"skills/load":                "skills:load",
}

// Dispatcher routes envelopes to flows within a Scope.
type Dispatcher struct {
	scope  *scope.Scope
	views  *provider.ViewBuilder
	logger *zap.Logger
}

// New constructs a Dispatcher bound to s.
func New(s *scope.Scope, views *provider.ViewBuilder, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{scope: s, views: views, logger: logger}
}

// Validate checks the envelope per spec 4.5 step 1.
func Validate(env *Envelope) error {
	if env.JSONRPC != "2.0" {
		return fmt.Errorf("dispatch: invalid jsonrpc version %q", env.JSONRPC)
	}
	if env.Method == "" {
		return fmt.Errorf("dispatch: missing method")
	}
	return nil
}

// Dispatch implements spec 4.5 steps 2-4: look up the flow, open the
// ambient request context, run it, and translate the outcome to a
// Response.
func (d *Dispatcher) Dispatch(ctx context.Context, sessionID, authHash string, principal obctx.Principal, env *Envelope) *Response {
	if err := Validate(env); err != nil {
		return errorResponse(env.ID, flow.KindInvalidRequest.JSONRPCCode(), err.Error(), nil)
	}

	flowName, ok := MethodFlowMap[env.Method]
	if !ok {
		return errorResponse(env.ID, flow.KindMethodNotFound.JSONRPCCode(),
			fmt.Sprintf("method not found: %s", env.Method), nil)
	}

	rc := obctx.New(sessionID, d.scope.ID, authHash, principal)
	ctx = obctx.WithContext(ctx, rc)

	var input any
	if len(env.Params) > 0 {
		var params any
		if err := json.Unmarshal(env.Params, &params); err != nil {
			return errorResponse(env.ID, flow.KindInvalidRequest.JSONRPCCode(), "invalid params", nil)
		}
		input = params
	}

	views := d.views.BuildViews(sessionID)
	output, err := d.scope.Flows.Run(ctx, flowName, input, views)
	if err == nil {
		return &Response{JSONRPC: "2.0", ID: env.ID, Result: output}
	}

	return toResponse(env.ID, output, err, d.logger)
}

func toResponse(id json.RawMessage, output any, err error, logger *zap.Logger) *Response {
	switch v := err.(type) {
	case *flow.ControlAbort:
		return errorResponse(id, 0, v.Message, v.Data)
	case *flow.ControlRetryAfter:
		return errorResponse(id, 0, fmt.Sprintf("retry after %s", v.Backoff), map[string]any{
			"retry_after_ms": v.Backoff.Milliseconds(),
		})
	case *flow.PublicMcpError:
		return errorResponse(id, v.Kind.JSONRPCCode(), v.Message, v.Data)
	default:
		logger.Error("dispatch: unhandled flow error", zap.Error(err))
		return errorResponse(id, flow.KindInternalError.JSONRPCCode(), "internal error", nil)
	}
}

func errorResponse(id json.RawMessage, code int, message string, data map[string]any) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &ResponseError{Code: code, Message: message, Data: data},
	}
}
