// Package memory implements an in-process api.Store. Its contents are lost on exit.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ArionMiles/txnotify/pkg/api"
	"github.com/ArionMiles/txnotify/pkg/store"
)

// Store keeps transactions in memory.
type Store struct {
	mu   sync.Mutex
	txns *store.Collection
}

// New creates an empty memory store with the given dedupe window.
func New(window time.Duration) *Store {
	return &Store{txns: store.NewCollection(window, nil)}
}

// Add implements api.Store.
func (s *Store) Add(_ context.Context, rec api.TransactionRecord, source string) (*api.StoredTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txns.Add(rec, source)
}

// Get implements api.Store.
func (s *Store) Get(_ context.Context, id string) (*api.StoredTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txns.Get(id)
}

// List implements api.Store.
func (s *Store) List(_ context.Context, limit int) ([]*api.StoredTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txns.List(limit), nil
}

// Pending implements api.Store.
func (s *Store) Pending(_ context.Context, limit int) ([]*api.StoredTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txns.Pending(limit), nil
}

// MarkSynced implements api.Store.
func (s *Store) MarkSynced(_ context.Context, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txns.MarkSynced(time.Now().UTC(), ids...)
	return nil
}

// Close implements api.Store.
func (s *Store) Close() error {
	return nil
}
