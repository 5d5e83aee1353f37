package transportreg

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"mcpgateway/internal/elicit"

	"go.uber.org/zap"
)

// AdapterState is the adapter state machine of spec 3/4.4:
// Created -> Ready -> Initialized -> Closing -> Destroyed.
type AdapterState string

const (
	StateCreated     AdapterState = "Created"
	StateReady       AdapterState = "Ready"
	StateInitialized AdapterState = "Initialized"
	StateClosing     AdapterState = "Closing"
	StateDestroyed   AdapterState = "Destroyed"
)

// ResponseWriter abstracts the per-protocol outbound sink (an HTTP
// ResponseWriter + Flusher for streamable-http/SSE, a channel for local).
type ResponseWriter interface {
	// Send writes one outbound JSON-RPC message; implementations must
	// preserve send order (spec 5 "Outbound messages on a given adapter
	// preserve send order").
	Send(ctx context.Context, payload []byte) error
	Close() error
}

// GracefulShutdownBudget bounds an adapter's graceful-close window before
// a force-close (spec 5).
const GracefulShutdownBudget = 5 * time.Second

// Adapter is the per-session protocol endpoint of spec 3: owns the
// protocol encoder/decoder, the outbound-send channel, at most one pending
// elicit, a logger, and a (weak, by id only) reference to its scope.
type Adapter struct {
	Key     Key
	ScopeID string

	mu     sync.Mutex
	state  AdapterState
	writer ResponseWriter
	logger *zap.Logger

	elicitBroker *elicit.Broker

	// sendMu serializes the single-producer send loop described in spec 5.
	sendMu sync.Mutex
}

// NewAdapter constructs an adapter in the Created state.
func NewAdapter(key Key, scopeID string, writer ResponseWriter, broker *elicit.Broker, logger *zap.Logger) *Adapter {
	return &Adapter{
		Key:          key,
		ScopeID:      scopeID,
		state:        StateCreated,
		writer:       writer,
		elicitBroker: broker,
		logger:       logger.With(zap.String("session_id", key.SessionID), zap.String("protocol", string(key.Protocol))),
	}
}

// Ready runs the protocol handshake and transitions Created -> Ready.
func (a *Adapter) Ready(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateCreated {
		return fmt.Errorf("transportreg: adapter %s not in Created state (got %s)", a.Key, a.state)
	}
	a.state = StateReady
	return nil
}

// MarkAsInitialized transitions Ready -> Initialized without running the
// handshake, used during recreation because the original initialize
// happened on another node (spec 4.4).
func (a *Adapter) MarkAsInitialized() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state == StateReady {
		a.state = StateInitialized
	}
}

// Initialize transitions Ready -> Initialized via the normal handshake
// path (first request on this node for this triple).
func (a *Adapter) Initialize() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateReady {
		return fmt.Errorf("transportreg: adapter %s not Ready (got %s)", a.Key, a.state)
	}
	a.state = StateInitialized
	return nil
}

// State returns the adapter's current state.
func (a *Adapter) State() AdapterState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Send writes one outbound message, serialized per adapter (spec 5
// ordering guarantee).
func (a *Adapter) Send(ctx context.Context, payload []byte) error {
	a.sendMu.Lock()
	defer a.sendMu.Unlock()
	return a.writer.Send(ctx, payload)
}

// Destroy signals graceful shutdown within GracefulShutdownBudget, then
// force-closes (spec 4.4 destroyTransporter).
func (a *Adapter) Destroy(ctx context.Context) error {
	a.mu.Lock()
	if a.state == StateDestroyed {
		a.mu.Unlock()
		return nil
	}
	a.state = StateClosing
	a.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- a.writer.Close() }()

	select {
	case err := <-done:
		a.finishDestroy()
		return err
	case <-time.After(GracefulShutdownBudget):
		a.logger.Warn("transportreg: graceful shutdown budget exceeded, force-closing")
		a.finishDestroy()
		return nil
	case <-ctx.Done():
		a.finishDestroy()
		return ctx.Err()
	}
}

func (a *Adapter) finishDestroy() {
	a.mu.Lock()
	a.state = StateDestroyed
	a.mu.Unlock()
	if a.elicitBroker != nil {
		a.elicitBroker.CancelSession(a.Key.SessionID, "adapter_destroyed")
	}
}

// ElicitBroker exposes the adapter's elicitation broker for the elicit
// out-path (spec 4.4 "Elicit out-path").
func (a *Adapter) ElicitBroker() *elicit.Broker { return a.elicitBroker }

// elicitCreateParams is the outbound "elicitation/create" payload sent to
// the client (spec 4.4 step 3).
type elicitCreateParams struct {
	RelatedRequestID string         `json:"relatedRequestId"`
	Message          string         `json:"message"`
	RequestedSchema  map[string]any `json:"requestedSchema,omitempty"`
	Mode             elicit.Mode    `json:"mode"`
}

// SendElicitRequest implements spec 4.4's full "Elicit out-path": cancel
// any prior pending elicit, run the elicitation:request flow bookkeeping
// via the broker (allocate elicitId, persist, TTL), send
// "elicitation/create" over this adapter's ordered outbound channel, and
// block until settlement.
func (a *Adapter) SendElicitRequest(ctx context.Context, relatedRequestID, message string, schema map[string]any, mode elicit.Mode, ttl time.Duration) (*elicit.Result, error) {
	if a.elicitBroker == nil {
		return nil, fmt.Errorf("transportreg: adapter %s has no elicit broker configured", a.Key)
	}

	sendCh := make(chan error, 1)
	go func() {
		notification := struct {
			JSONRPC string              `json:"jsonrpc"`
			Method  string              `json:"method"`
			Params  elicitCreateParams `json:"params"`
		}{
			JSONRPC: "2.0",
			Method:  "elicitation/create",
			Params: elicitCreateParams{
				RelatedRequestID: relatedRequestID,
				Message:          message,
				RequestedSchema:  schema,
				Mode:             mode,
			},
		}
		payload, err := json.Marshal(notification)
		if err != nil {
			sendCh <- err
			return
		}
		sendCh <- a.Send(ctx, payload)
	}()

	result, err := a.elicitBroker.Send(ctx, a.Key.SessionID, relatedRequestID, message, schema, mode, ttl)
	if sendErr := <-sendCh; sendErr != nil && err == nil {
		return nil, sendErr
	}
	return result, err
}
