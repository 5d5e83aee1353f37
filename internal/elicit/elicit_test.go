package elicit

import (
	"context"
	"sync"
	"testing"
	"time"
)

// memStore is a minimal in-process Store double, enough to exercise
// Broker without a bbolt file (mirrors the teacher's pattern of testing
// cache.Manager behavior against an in-memory bbolt DB, but here the
// store itself is the thing under substitution -- see
// internal/sessionstore for the real bbolt-backed implementation).
type memStore struct {
	mu          sync.Mutex
	pending     map[string]*Pending
	subscribers map[string][]func(*Result)
}

func newMemStore() *memStore {
	return &memStore{
		pending:     make(map[string]*Pending),
		subscribers: make(map[string][]func(*Result)),
	}
}

func (s *memStore) PutPending(sessionID string, record *Pending) (*Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.pending[sessionID]
	s.pending[sessionID] = record
	return prev, nil
}

func (s *memStore) GetPending(sessionID string) (*Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending[sessionID], nil
}

func (s *memStore) DeletePending(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, sessionID)
	return nil
}

func (s *memStore) PublishResult(elicitID string, result *Result, sessionID string) error {
	s.mu.Lock()
	handlers := append([]func(*Result){}, s.subscribers[elicitID]...)
	s.mu.Unlock()
	for _, h := range handlers {
		h(result)
	}
	return nil
}

func (s *memStore) SubscribeResult(elicitID, _ string, handler func(*Result)) (func(), error) {
	s.mu.Lock()
	s.subscribers[elicitID] = append(s.subscribers[elicitID], handler)
	s.mu.Unlock()
	return func() {}, nil
}

func TestBrokerDeliverSettlesOnce(t *testing.T) {
	store := newMemStore()
	b := NewBroker(store)

	var result *Result
	var err error
	done := make(chan struct{})
	go func() {
		result, err = b.Send(context.Background(), "session-1", "req-1", "need input", nil, ModeForm, time.Minute)
		close(done)
	}()

	// Give Send time to register the pending elicit before delivering.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p, _ := store.GetPending("session-1"); p != nil {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if delivErr := b.Deliver("session-1", ActionAccept, map[string]any{"ok": true}); delivErr != nil {
		t.Fatalf("Deliver failed: %v", delivErr)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send did not return after Deliver")
	}

	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if result.Action != ActionAccept {
		t.Fatalf("expected accept, got %v", result.Action)
	}

	if p, _ := store.GetPending("session-1"); p != nil {
		t.Fatal("pending record should be cleared after settlement")
	}
}

func TestBrokerSendUnblocksOnContextCancel(t *testing.T) {
	store := newMemStore()
	b := NewBroker(store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := b.Send(ctx, "session-2", "req-2", "need input", nil, ModeForm, time.Minute)
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p, _ := store.GetPending("session-2"); p != nil {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send did not unblock after context cancellation")
	}
}

func TestBrokerSupersedesPriorPending(t *testing.T) {
	store := newMemStore()
	b := NewBroker(store)

	firstDone := make(chan error, 1)
	go func() {
		_, err := b.Send(context.Background(), "session-3", "req-a", "first", nil, ModeForm, time.Minute)
		firstDone <- err
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if p, _ := store.GetPending("session-3"); p != nil && p.RelatedRequestID == "req-a" {
			break
		}
		time.Sleep(time.Millisecond)
	}

	secondDone := make(chan *Result, 1)
	go func() {
		r, _ := b.Send(context.Background(), "session-3", "req-b", "second", nil, ModeForm, time.Minute)
		secondDone <- r
	}()

	select {
	case err := <-firstDone:
		if _, ok := err.(*ErrCancelled); !ok {
			t.Fatalf("expected first Send to be cancelled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("first Send did not settle after being superseded")
	}

	if delivErr := b.Deliver("session-3", ActionAccept, map[string]any{"x": 1}); delivErr != nil {
		t.Fatalf("Deliver failed: %v", delivErr)
	}

	select {
	case r := <-secondDone:
		if r == nil || r.Action != ActionAccept {
			t.Fatalf("expected second Send to accept, got %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("second Send did not settle")
	}
}

func TestClampTTL(t *testing.T) {
	if got := ClampTTL(0); got != DefaultTTL {
		t.Fatalf("ClampTTL(0) = %v, want %v", got, DefaultTTL)
	}
	if got := ClampTTL(time.Second); got != MinTTL {
		t.Fatalf("ClampTTL(1s) = %v, want %v", got, MinTTL)
	}
	if got := ClampTTL(48 * time.Hour); got != MaxTTL {
		t.Fatalf("ClampTTL(48h) = %v, want %v", got, MaxTTL)
	}
}
