// Package credcache implements the CredentialCache contract of spec
// section 4.2: (providerId -> resolvedCredential, ttl, scope, expiresAt,
// acquiredAt, isValid), LRU-evictable and scope-evictable, every miss
// (TTL-expired, expiresAt-past, or isValid=false) incrementing evictions.
//
// Grounded directly on the teacher's internal/cache/manager.go: the same
// bbolt bucket + stats + background-cleanup shape, generalized from
// tool-response caching to resolved-credential caching.
package credcache

import (
	"container/list"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"mcpgateway/internal/scope"
)

const (
	bucketName      = "credentials"
	cleanupInterval = 10 * time.Minute
	// DefaultTTL applies when Set is called without an explicit ttlMs.
	DefaultTTL = 15 * time.Minute
)

// entry is the spec 3 "Credential Cache Entry".
type entry struct {
	ResolvedCredential scope.ResolvedCredential
	TTL                time.Duration
	AcquiredAt         time.Time
	ExpiresAt          time.Time
	IsValid            bool

	elem *list.Element // position in the LRU list
}

func (e *entry) expired(now time.Time) bool {
	return !e.IsValid || now.After(e.ExpiresAt)
}

// Manager is a bbolt-backed, LRU + TTL CredentialCache implementing
// scope.CredentialCache.
type Manager struct {
	db     *bbolt.DB
	logger *zap.Logger
	maxLen int

	mu      sync.Mutex
	entries map[string]*entry
	lru     *list.List // front = most recently used

	stats  scope.CacheStats
	stopCh chan struct{}
}

// NewManager constructs a Manager bounded at maxLen entries, persisted to
// db (may be nil for a pure in-memory cache).
func NewManager(db *bbolt.DB, maxLen int, logger *zap.Logger) (*Manager, error) {
	if maxLen <= 0 {
		maxLen = 10000
	}
	m := &Manager{
		db:      db,
		logger:  logger,
		maxLen:  maxLen,
		entries: make(map[string]*entry),
		lru:     list.New(),
		stopCh:  make(chan struct{}),
	}

	if db != nil {
		err := db.Update(func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	go m.startCleanup()
	return m, nil
}

// Get implements scope.CredentialCache: a miss on TTL-expired,
// expiresAt-past, or isValid=false entries, each incrementing evictions
// (spec 4.2).
func (m *Manager) Get(key string) (*scope.ResolvedCredential, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		m.stats.Misses++
		return nil, false
	}
	if e.expired(time.Now()) {
		m.evictLocked(key)
		m.stats.Misses++
		m.stats.Evictions++
		return nil, false
	}

	m.lru.MoveToFront(e.elem)
	m.stats.Hits++
	cred := e.ResolvedCredential
	return &cred, true
}

// Set implements scope.CredentialCache, evicting the LRU entry when full.
func (m *Manager) Set(key string, resolved *scope.ResolvedCredential, ttlMs ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ttl := DefaultTTL
	if len(ttlMs) > 0 && ttlMs[0] > 0 {
		ttl = time.Duration(ttlMs[0]) * time.Millisecond
	}

	if old, ok := m.entries[key]; ok {
		m.lru.Remove(old.elem)
		delete(m.entries, key)
	}

	now := time.Now()
	e := &entry{
		ResolvedCredential: *resolved,
		TTL:                ttl,
		AcquiredAt:         now,
		ExpiresAt:          now.Add(ttl),
		IsValid:            true,
	}
	e.elem = m.lru.PushFront(key)
	m.entries[key] = e

	for len(m.entries) > m.maxLen {
		back := m.lru.Back()
		if back == nil {
			break
		}
		m.evictLocked(back.Value.(string))
		m.stats.Evictions++
	}

	m.persist(key, e)
}

// Has reports whether key has a live entry, without updating LRU order.
func (m *Manager) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	return ok && !e.expired(time.Now())
}

// Invalidate removes key's entry immediately.
func (m *Manager) Invalidate(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked(key)
}

// InvalidateByScope removes every entry whose ResolvedCredential.Scope
// matches (spec 4.2).
func (m *Manager) InvalidateByScope(s scope.CredentialScope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.entries {
		if e.ResolvedCredential.Scope == s {
			m.evictLocked(key)
		}
	}
}

// Cleanup removes every TTL-expired entry, grounded on the teacher's
// Manager.cleanup background sweep.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for key, e := range m.entries {
		if e.expired(now) {
			m.evictLocked(key)
			m.stats.Evictions++
		}
	}
}

// GetStats returns a snapshot of cache counters.
func (m *Manager) GetStats() scope.CacheStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.stats
	stats.Size = len(m.entries)
	return stats
}

func (m *Manager) evictLocked(key string) {
	e, ok := m.entries[key]
	if !ok {
		return
	}
	m.lru.Remove(e.elem)
	delete(m.entries, key)
	if m.db != nil {
		_ = m.db.Update(func(tx *bbolt.Tx) error {
			return tx.Bucket([]byte(bucketName)).Delete([]byte(key))
		})
	}
}

func (m *Manager) persist(key string, e *entry) {
	if m.db == nil {
		return
	}
	_ = m.db.Update(func(tx *bbolt.Tx) error {
		// Credential material itself is never persisted in cleartext here;
		// only the presence + expiry bookkeeping survives a restart, same
		// as the teacher's cache stats persistence. Callers needing
		// durable secret storage should layer encryption at the provider
		// resolution level.
		return tx.Bucket([]byte(bucketName)).Put([]byte(key), []byte(e.ExpiresAt.Format(time.RFC3339Nano)))
	})
}

func (m *Manager) startCleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Cleanup()
		case <-m.stopCh:
			return
		}
	}
}

// Close stops the background cleanup goroutine.
func (m *Manager) Close() {
	close(m.stopCh)
}
