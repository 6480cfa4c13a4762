// Package store holds the helpers shared by the api.Store implementations:
// identity assignment, fingerprints and the dedupe window.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/ArionMiles/txnotify/pkg/api"
)

// DefaultDedupeWindow is the window used when a store is configured without one.
const DefaultDedupeWindow = 5 * time.Minute

// Fingerprint returns the hex SHA-256 of a notification text.
func Fingerprint(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// NewStored wraps rec with a fresh ID and its fingerprint. The result is unsynced.
func NewStored(rec api.TransactionRecord, source string) *api.StoredTransaction {
	return &api.StoredTransaction{
		TransactionRecord: rec,
		ID:                uuid.NewString(),
		Fingerprint:       Fingerprint(rec.OriginalText),
		Source:            source,
	}
}

// WithinWindow reports whether two capture instants are less than window apart.
// A window <= 0 disables deduplication.
func WithinWindow(a, b time.Time, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d < window
}

// Clone returns a shallow copy of txn so callers cannot mutate store state.
func Clone(txn *api.StoredTransaction) *api.StoredTransaction {
	c := *txn
	if txn.SyncedAt != nil {
		at := *txn.SyncedAt
		c.SyncedAt = &at
	}
	return &c
}
