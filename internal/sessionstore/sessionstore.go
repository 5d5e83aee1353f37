// Package sessionstore provides the bbolt-backed implementations of
// transportreg.SessionStore and elicit.Store, grounded on the teacher's
// internal/storage/bbolt.go bucket lifecycle (NewBoltDB/initBuckets) and
// internal/storage/manager.go's mutex-guarded manager-over-BoltDB shape.
//
// The pending-elicit pub/sub here is single-node: SubscribeResult registers
// an in-process handler invoked by PublishResult on the same node. True
// cross-node elicit delivery needs a shared broker (e.g. Redis pub/sub);
// wiring one is left to deployment, matching the spec's stance that
// concrete SessionStore/Store backends beyond the default are out of scope.
package sessionstore

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"go.etcd.io/bbolt"
	"go.uber.org/zap"

	"mcpgateway/internal/elicit"
	"mcpgateway/internal/transportreg"
)

const (
	sessionsBucket = "sessions"
	pendingBucket  = "pending_elicits"
)

// Store is a bbolt-backed implementation of transportreg.SessionStore and
// elicit.Store, sharing one database file the way the teacher's
// storage.Manager shares one BoltDB across unrelated record kinds.
type Store struct {
	db     *bbolt.DB
	logger *zap.Logger

	mu          sync.Mutex
	subscribers map[string][]subscription // elicitID -> handlers
}

type subscription struct {
	sessionID string
	handler   func(*elicit.Result)
}

// New opens (or creates) the session/elicit store at dataDir/sessions.db.
func New(dataDir string, logger *zap.Logger) (*Store, error) {
	path := filepath.Join(dataDir, "sessions.db")
	db, err := bbolt.Open(path, 0644, &bbolt.Options{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range []string{sessionsBucket, pendingBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("sessionstore: create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:          db,
		logger:      logger,
		subscribers: make(map[string][]subscription),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the shared bbolt handle so collaborating packages (the tool
// response cache, the credential cache) can open their own buckets in the
// same file instead of each managing a separate bbolt.Open, mirroring the
// teacher's storage.Manager single-database convention.
func (s *Store) DB() *bbolt.DB { return s.db }

// --- transportreg.SessionStore ---

// Put implements transportreg.SessionStore.
func (s *Store) Put(record *transportreg.SessionRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("sessionstore: marshal session record: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionsBucket)).Put([]byte(record.SessionID), data)
	})
}

// Get implements transportreg.SessionStore.
func (s *Store) Get(sessionID string) (*transportreg.SessionRecord, error) {
	var record *transportreg.SessionRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(sessionsBucket)).Get([]byte(sessionID))
		if data == nil {
			return nil
		}
		var rec transportreg.SessionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return fmt.Errorf("sessionstore: unmarshal session record: %w", err)
		}
		record = &rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("sessionstore: session %q not found", sessionID)
	}
	return record, nil
}

// Delete implements transportreg.SessionStore.
func (s *Store) Delete(sessionID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionsBucket)).Delete([]byte(sessionID))
	})
}

// Touch implements transportreg.SessionStore, bumping LastAccessedAt.
func (s *Store) Touch(sessionID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionsBucket))
		data := bucket.Get([]byte(sessionID))
		if data == nil {
			return fmt.Errorf("sessionstore: session %q not found", sessionID)
		}
		var rec transportreg.SessionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return err
		}
		rec.LastAccessedAt = time.Now()
		out, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(sessionID), out)
	})
}

// --- elicit.Store ---

// PutPending implements elicit.Store, returning any previously-stored
// pending record for the session so the broker can supersede it.
func (s *Store) PutPending(sessionID string, record *elicit.Pending) (*elicit.Pending, error) {
	var evicted *elicit.Pending
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(pendingBucket))
		if existing := bucket.Get([]byte(sessionID)); existing != nil {
			var prev elicit.Pending
			if err := json.Unmarshal(existing, &prev); err == nil {
				evicted = &prev
			}
		}
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(sessionID), data)
	})
	if err != nil {
		return nil, fmt.Errorf("sessionstore: put pending: %w", err)
	}
	return evicted, nil
}

// GetPending implements elicit.Store.
func (s *Store) GetPending(sessionID string) (*elicit.Pending, error) {
	var pending *elicit.Pending
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(pendingBucket)).Get([]byte(sessionID))
		if data == nil {
			return nil
		}
		var p elicit.Pending
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		pending = &p
		return nil
	})
	if err != nil {
		return nil, err
	}
	if pending == nil {
		return nil, fmt.Errorf("sessionstore: no pending elicit for session %q", sessionID)
	}
	return pending, nil
}

// DeletePending implements elicit.Store.
func (s *Store) DeletePending(sessionID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(pendingBucket)).Delete([]byte(sessionID))
	})
}

// PublishResult implements elicit.Store, fanning the result out to every
// in-process subscriber registered for elicitID.
func (s *Store) PublishResult(elicitID string, result *elicit.Result, sessionID string) error {
	s.mu.Lock()
	subs := append([]subscription(nil), s.subscribers[elicitID]...)
	s.mu.Unlock()

	for _, sub := range subs {
		if sub.sessionID == sessionID {
			sub.handler(result)
		}
	}
	return nil
}

// SubscribeResult implements elicit.Store.
func (s *Store) SubscribeResult(elicitID string, sessionID string, handler func(*elicit.Result)) (func(), error) {
	s.mu.Lock()
	s.subscribers[elicitID] = append(s.subscribers[elicitID], subscription{sessionID: sessionID, handler: handler})
	s.mu.Unlock()

	unsubscribe := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		subs := s.subscribers[elicitID]
		for i, sub := range subs {
			if sub.sessionID == sessionID {
				s.subscribers[elicitID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(s.subscribers[elicitID]) == 0 {
			delete(s.subscribers, elicitID)
		}
	}
	return unsubscribe, nil
}
