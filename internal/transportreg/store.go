package transportreg

import "time"

// SessionRecord is the spec 6 "Session store record (persisted,
// streamable-http only)".
type SessionRecord struct {
	SessionID       string
	Protocol        Protocol
	AuthorizationID string // sha256(bearer), must match to honor the record (invariant 2)
	CreatedAt       time.Time
	NodeID          string
	LastAccessedAt  time.Time
	Payload         map[string]any
}

// SessionStore is the shared, cross-node persistence contract of spec 4.4.
// Concrete adapters (in-memory, Redis, bbolt) are out of scope per spec
// section 1; internal/sessionstore provides the bbolt implementation used
// by this repo.
type SessionStore interface {
	Put(record *SessionRecord) error
	Get(sessionID string) (*SessionRecord, error)
	Delete(sessionID string) error
	Touch(sessionID string) error
}

// StoreTimeout bounds session-store operations (spec 5): beyond this the
// registry degrades to local-only.
const StoreTimeout = 5 * time.Second
