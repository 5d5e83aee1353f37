// HTTP transport wiring for the streamable-http protocol (spec 4.4/6):
// POST carries request/response JSON-RPC traffic, GET opens the adapter's
// server-initiated event stream (elicitation/create, resource
// subscriptions).
//
// Grounded on the teacher's internal/httpapi/server.go chi.Mux usage and
// internal/server/server.go's http.Server construction (timeouts,
// ReadHeaderTimeout/IdleTimeout), generalized from the teacher's REST API
// surface to the single /mcp JSON-RPC endpoint.
package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mcpgateway/internal/dispatch"
	"mcpgateway/internal/obctx"
	"mcpgateway/internal/transportreg"
)

const sessionHeader = "Mcp-Session-Id"

// sseWriter is a per-session mailbox for server-initiated messages,
// implementing transportreg.ResponseWriter. The long-lived GET connection
// drains it; POST responses bypass it entirely and are written directly
// by gatewayServer.handlePost (spec 4.4: GET is the event-stream
// continuation, POST is request/response).
type sseWriter struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

func newSSEWriter() *sseWriter {
	return &sseWriter{ch: make(chan []byte, 64)}
}

func (w *sseWriter) Send(ctx context.Context, payload []byte) error {
	select {
	case w.ch <- payload:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *sseWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		close(w.ch)
		w.closed = true
	}
	return nil
}

// gatewayServer wires transportreg + dispatch onto a chi router.
type gatewayServer struct {
	registry   *transportreg.Registry
	dispatcher *dispatch.Dispatcher
	logger     *zap.Logger

	mu      sync.Mutex
	writers map[string]*sseWriter
}

func newGatewayServer(registry *transportreg.Registry, dispatcher *dispatch.Dispatcher, logger *zap.Logger) *gatewayServer {
	return &gatewayServer{
		registry:   registry,
		dispatcher: dispatcher,
		logger:     logger,
		writers:    make(map[string]*sseWriter),
	}
}

func (s *gatewayServer) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/mcp", http.HandlerFunc(s.handleMCP))
	r.Handle("/mcp/", http.HandlerFunc(s.handleMCP))
	return r
}

func (s *gatewayServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *gatewayServer) writerFor(sessionID string) *sseWriter {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.writers[sessionID]
	if !ok {
		w = newSSEWriter()
		s.writers[sessionID] = w
	}
	return w
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	return strings.TrimPrefix(auth, "Bearer ")
}

func (s *gatewayServer) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodGet:
		s.handleGet(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *gatewayServer) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	var env dispatch.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "invalid JSON-RPC envelope", http.StatusBadRequest)
		return
	}

	sessionID := r.Header.Get(sessionHeader)
	isInit := env.Method == "initialize"
	if sessionID == "" {
		if !isInit {
			http.Error(w, "missing "+sessionHeader, http.StatusBadRequest)
			return
		}
		sessionID = transportreg.NewSessionID()
	}

	authHash := transportreg.AuthHash(bearerToken(r))
	key := transportreg.Key{Protocol: transportreg.ProtocolStreamableHTTP, AuthHash: authHash, SessionID: sessionID}

	adapter, err := s.resolveAdapter(r.Context(), key)
	if err != nil {
		s.logger.Warn("httpserver: failed to resolve adapter", zap.Error(err))
		http.Error(w, "failed to open session", http.StatusInternalServerError)
		return
	}

	principal := obctx.Principal{}
	resp, err := adapter.HandleRequest(r.Context(), http.MethodPost, body, s.dispatcher, principal)
	if err != nil {
		s.logger.Warn("httpserver: request handling failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set(sessionHeader, sessionID)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("httpserver: failed to encode response", zap.Error(err))
	}
}

// resolveAdapter creates the adapter on first contact for this key (or
// returns the resident one, invariant 1), using the writer map as the
// adapter's ResponseWriter (spec 4.4).
func (s *gatewayServer) resolveAdapter(ctx context.Context, key transportreg.Key) (*transportreg.Adapter, error) {
	if adapter, ok := s.registry.GetTransporter(key); ok {
		return adapter, nil
	}

	if stored, err := s.registry.GetStoredSession(key); err == nil && stored != nil {
		return s.registry.RecreateTransporter(ctx, key, stored, s.writerFor(key.SessionID))
	}

	return s.registry.CreateTransporter(ctx, key, s.writerFor(key.SessionID))
}

// handleGet serves the adapter's outbound event stream as SSE (spec 4.4
// "GET opens/continues the event stream"). The client must have already
// created the session via a POST "initialize" carrying the same session
// header.
func (s *gatewayServer) handleGet(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(sessionHeader)
	if sessionID == "" {
		http.Error(w, "missing "+sessionHeader, http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	authHash := transportreg.AuthHash(bearerToken(r))
	key := transportreg.Key{Protocol: transportreg.ProtocolStreamableHTTP, AuthHash: authHash, SessionID: sessionID}
	if _, ok := s.registry.GetTransporter(key); !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	writer := s.writerFor(sessionID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case payload, ok := <-writer.ch:
			if !ok {
				return
			}
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		case <-heartbeat.C:
			_, _ = w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
