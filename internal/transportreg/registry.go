package transportreg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mcpgateway/internal/elicit"
	"mcpgateway/internal/provider"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AdapterFactory constructs a new Adapter for key, bound to scopeID, using
// writer as its outbound sink.
type AdapterFactory func(key Key, scopeID string, writer ResponseWriter, broker *elicit.Broker) *Adapter

// Registry is the spec 4.4 transport registry: liveAdapters, a key-scoped
// creationMutex, createdHistory, and an optional sessionStore.
type Registry struct {
	logger  *zap.Logger
	nodeID  string
	store   SessionStore // nil degrades to local-only (spec 5 failure model)
	factory AdapterFactory
	views   *provider.ViewBuilder
	elicits func(sessionID string) *elicit.Broker

	mu           sync.RWMutex
	liveAdapters map[string]*Adapter
	history      map[string]bool

	keyMu sync.Map // map[string]*sync.Mutex, per-key creation/recreation mutex
}

// NewRegistry constructs a Registry. store may be nil.
func NewRegistry(nodeID string, store SessionStore, factory AdapterFactory, views *provider.ViewBuilder, elicitFor func(sessionID string) *elicit.Broker, logger *zap.Logger) *Registry {
	return &Registry{
		logger:       logger,
		nodeID:       nodeID,
		store:        store,
		factory:      factory,
		views:        views,
		elicits:      elicitFor,
		liveAdapters: make(map[string]*Adapter),
		history:      make(map[string]bool),
	}
}

func (r *Registry) lockFor(keyStr string) *sync.Mutex {
	m, _ := r.keyMu.LoadOrStore(keyStr, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// CreateTransporter implements spec 4.4 createTransporter: acquire the
// per-key mutex, return the resident adapter if one already exists
// (idempotent — invariant 1 / testable property "two concurrent
// createTransporter(K) calls return the same reference"), otherwise
// construct one, await its Ready handshake, persist a session record for
// streamable-http, and record the key in createdHistory.
func (r *Registry) CreateTransporter(ctx context.Context, key Key, writer ResponseWriter) (*Adapter, error) {
	keyStr := key.String()
	lock := r.lockFor(keyStr)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	existing, ok := r.liveAdapters[keyStr]
	r.mu.RUnlock()
	if ok {
		return existing, nil
	}

	var broker *elicit.Broker
	if r.elicits != nil {
		broker = r.elicits(key.SessionID)
	}
	adapter := r.factory(key, "", writer, broker)
	if adapter.state == "" {
		adapter.state = StateCreated
	}
	if err := adapter.Ready(ctx); err != nil {
		return nil, err
	}

	if key.Protocol.Persisted() && r.store != nil {
		now := time.Now()
		rec := &SessionRecord{
			SessionID:       key.SessionID,
			Protocol:        key.Protocol,
			AuthorizationID: key.AuthHash,
			CreatedAt:       now,
			NodeID:          r.nodeID,
			LastAccessedAt:  now,
		}
		if err := r.putWithTimeout(rec); err != nil {
			r.logger.Warn("transportreg: failed to persist session", zap.String("session_id", key.SessionID), zap.Error(err))
		}
	}

	r.mu.Lock()
	r.liveAdapters[keyStr] = adapter
	r.history[keyStr] = true
	r.mu.Unlock()

	return adapter, nil
}

func (r *Registry) putWithTimeout(rec *SessionRecord) error {
	done := make(chan error, 1)
	go func() { done <- r.store.Put(rec) }()
	select {
	case err := <-done:
		return err
	case <-time.After(StoreTimeout):
		return fmt.Errorf("transportreg: session store put timed out")
	}
}

// GetTransporter is an in-memory-only lookup (spec 4.4 "does not fetch
// from the store").
func (r *Registry) GetTransporter(key Key) (*Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.liveAdapters[key.String()]
	return a, ok
}

// GetStoredSession reads the shared store, honoring invariant 2: only
// returns a record when its AuthorizationID equals authHash; otherwise
// treats as absent and logs a mismatch warning. Non-streamable protocols
// never consult the store.
func (r *Registry) GetStoredSession(key Key) (*SessionRecord, error) {
	if !key.Protocol.Persisted() || r.store == nil {
		return nil, nil
	}
	rec, err := r.store.Get(key.SessionID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	if rec.AuthorizationID != key.AuthHash {
		r.logger.Warn("transportreg: session authorization mismatch",
			zap.String("session_id", key.SessionID))
		return nil, nil
	}
	return rec, nil
}

// RecreateTransporter implements spec 4.4 recreateTransporter: acquires
// the mutex, returns the resident adapter if present, otherwise constructs
// a fresh one, short-circuits the handshake via MarkAsInitialized (the
// original initialize happened on another node), persists the record
// (refreshing lastAccessedAt), and returns it.
func (r *Registry) RecreateTransporter(ctx context.Context, key Key, stored *SessionRecord, writer ResponseWriter) (*Adapter, error) {
	keyStr := key.String()
	lock := r.lockFor(keyStr)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	existing, ok := r.liveAdapters[keyStr]
	r.mu.RUnlock()
	if ok {
		return existing, nil
	}

	var broker *elicit.Broker
	if r.elicits != nil {
		broker = r.elicits(key.SessionID)
	}
	adapter := r.factory(key, "", writer, broker)
	if err := adapter.Ready(ctx); err != nil {
		return nil, err
	}
	adapter.MarkAsInitialized()

	if r.store != nil && stored != nil {
		stored.LastAccessedAt = time.Now()
		stored.NodeID = r.nodeID
		if err := r.putWithTimeout(stored); err != nil {
			r.logger.Warn("transportreg: failed to refresh recreated session", zap.Error(err))
		}
	}

	r.mu.Lock()
	r.liveAdapters[keyStr] = adapter
	r.history[keyStr] = true
	r.mu.Unlock()

	return adapter, nil
}

// DestroyTransporter implements spec 4.4 destroyTransporter: requires the
// adapter to be resident, signals graceful shutdown, force-closes, and
// removes it from liveAdapters and the store.
func (r *Registry) DestroyTransporter(ctx context.Context, key Key) error {
	keyStr := key.String()
	r.mu.Lock()
	adapter, ok := r.liveAdapters[keyStr]
	if ok {
		delete(r.liveAdapters, keyStr)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("transportreg: invalid session: %s not resident", keyStr)
	}

	err := adapter.Destroy(ctx)
	if r.views != nil {
		r.views.DropSession(key.SessionID)
	}
	if r.store != nil && key.Protocol.Persisted() {
		_ = r.store.Delete(key.SessionID)
	}
	return err
}

// WasSessionCreated is the sync createdHistory lookup (spec 4.4).
func (r *Registry) WasSessionCreated(key Key) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.history[key.String()]
}

// WasSessionCreatedAsync checks local history first, then the store with
// authHash verification; non-streamable protocols never consult the store
// (spec 4.4).
func (r *Registry) WasSessionCreatedAsync(ctx context.Context, key Key) (bool, error) {
	if r.WasSessionCreated(key) {
		return true, nil
	}
	if !key.Protocol.Persisted() {
		return false, nil
	}
	rec, err := r.GetStoredSession(key)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// NewSessionID generates a fresh session id, used whenever the stateless
// generator is not disabled (invariant 3).
func NewSessionID() string { return uuid.NewString() }

// Shutdown broadcasts graceful-close to every live adapter, respecting the
// per-adapter GracefulShutdownBudget (SPEC_FULL.md ambient-stack addition:
// "Graceful drain on shutdown").
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.RLock()
	adapters := make([]*Adapter, 0, len(r.liveAdapters))
	for _, a := range r.liveAdapters {
		adapters = append(adapters, a)
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, a := range adapters {
		wg.Add(1)
		go func(a *Adapter) {
			defer wg.Done()
			if err := a.Destroy(ctx); err != nil {
				r.logger.Warn("transportreg: shutdown destroy error", zap.String("key", a.Key.String()), zap.Error(err))
			}
		}(a)
	}
	wg.Wait()
}
