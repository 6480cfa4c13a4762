// Package jsonfile implements an api.Store persisted to a single JSON file.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ArionMiles/txnotify/pkg/api"
	"github.com/ArionMiles/txnotify/pkg/store"
)

// Store keeps transactions in memory and rewrites the JSON file on every change.
type Store struct {
	filePath string
	mu       sync.Mutex
	txns     *store.Collection
	logger   *slog.Logger
}

// Config holds configuration for the JSON store.
type Config struct {
	// FilePath is the path to the JSON file.
	FilePath string
	// DedupeWindow rejects repeated texts captured within the window.
	DedupeWindow time.Duration
}

// New opens the JSON store, loading existing transactions if the file exists.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FilePath == "" {
		return nil, fmt.Errorf("json store: file path is required")
	}

	existing, err := loadExisting(cfg.FilePath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", cfg.FilePath, err)
	}

	s := &Store{
		filePath: cfg.FilePath,
		txns:     store.NewCollection(cfg.DedupeWindow, existing),
		logger:   logger,
	}

	logger.Info("json store initialized", "file", cfg.FilePath, "existing_count", len(existing))
	return s, nil
}

// loadExisting loads stored transactions from the JSON file if it exists.
func loadExisting(path string) ([]*api.StoredTransaction, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	if len(data) == 0 {
		return nil, nil
	}

	var txns []*api.StoredTransaction
	if err := json.Unmarshal(data, &txns); err != nil {
		return nil, err
	}
	return txns, nil
}

// Add implements api.Store.
func (s *Store) Add(_ context.Context, rec api.TransactionRecord, source string) (*api.StoredTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, err := s.txns.Add(rec, source)
	if err != nil {
		return nil, err
	}
	if err := s.save(); err != nil {
		// Not on disk, so not stored: a retry must not be rejected as a duplicate.
		s.txns.Remove(txn.ID)
		return nil, err
	}
	return txn, nil
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

	changed := s.txns.MarkSynced(time.Now().UTC(), ids...)
	if len(changed) == 0 {
		return nil
	}
	if err := s.save(); err != nil {
		s.txns.Unmark(changed...)
		return err
	}
	return nil
}

// Close implements api.Store.
func (s *Store) Close() error {
	return nil
}

// save writes the entire array to the file (JSON doesn't support appending).
// Callers must hold s.mu.
func (s *Store) save() error {
	data, err := json.MarshalIndent(s.txns.Items(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling json: %w", err)
	}

	if dir := filepath.Dir(s.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing json file: %w", err)
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		return fmt.Errorf("replacing json file: %w", err)
	}

	s.logger.Debug("wrote transactions to json", "total_count", s.txns.Len())
	return nil
}
