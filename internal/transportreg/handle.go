package transportreg

import (
	"context"
	"encoding/json"

	"mcpgateway/internal/dispatch"
	"mcpgateway/internal/elicit"
	"mcpgateway/internal/obctx"
)

// elicitResultParams is the spec 6 "Elicitation envelope (client ->
// server)" params shape.
type elicitResultParams struct {
	ElicitID string         `json:"elicitId"`
	Action   string         `json:"action"`
	Content  map[string]any `json:"content,omitempty"`
}

// HandleRequest implements spec 4.4's per-request branching: GET
// opens/continues the event stream; POST either resolves this session's
// pending elicit (Open Question 1, decided in DESIGN.md: discriminated by
// method == "elicitation/result") or is dispatched as an ordinary MCP
// request.
func (a *Adapter) HandleRequest(ctx context.Context, httpMethod string, body []byte, d *dispatch.Dispatcher, principal obctx.Principal) (*dispatch.Response, error) {
	if httpMethod == "GET" {
		return nil, nil // event stream continuation; no RPC response to encode
	}

	var env dispatch.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}

	if env.Method == "elicitation/result" && a.elicitBroker != nil {
		var params elicitResultParams
		if err := json.Unmarshal(env.Params, &params); err != nil {
			return nil, err
		}
		if err := a.elicitBroker.Deliver(a.Key.SessionID, elicit.Action(params.Action), params.Content); err != nil {
			return nil, err
		}
		return &dispatch.Response{JSONRPC: "2.0", ID: env.ID, Result: map[string]any{"acknowledged": true}}, nil
	}

	return d.Dispatch(ctx, a.Key.SessionID, a.Key.AuthHash, principal, &env), nil
}
