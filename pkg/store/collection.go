package store

import (
	"sort"
	"time"

	"github.com/ArionMiles/txnotify/pkg/api"
)

// Collection is an in-memory, insertion-ordered set of stored transactions
// implementing the Store semantics. It is not safe for concurrent use; the
// memory and json stores guard it with a mutex.
type Collection struct {
	items  []*api.StoredTransaction
	byID   map[string]int
	window time.Duration
}

// NewCollection returns a Collection seeded with items in insertion order.
func NewCollection(window time.Duration, items []*api.StoredTransaction) *Collection {
	c := &Collection{
		items:  make([]*api.StoredTransaction, 0, len(items)),
		byID:   make(map[string]int, len(items)),
		window: window,
	}
	for _, txn := range items {
		c.byID[txn.ID] = len(c.items)
		c.items = append(c.items, txn)
	}
	return c
}

// Add stores rec unless a record with the same fingerprint was captured within the window.
func (c *Collection) Add(rec api.TransactionRecord, source string) (*api.StoredTransaction, error) {
	txn := NewStored(rec, source)
	for _, existing := range c.items {
		if existing.Fingerprint == txn.Fingerprint && WithinWindow(existing.Timestamp, txn.Timestamp, c.window) {
			return nil, api.ErrDuplicate
		}
	}

	c.byID[txn.ID] = len(c.items)
	c.items = append(c.items, txn)
	return Clone(txn), nil
}

// Get returns the transaction with id or api.ErrNotFound.
func (c *Collection) Get(id string) (*api.StoredTransaction, error) {
	i, ok := c.byID[id]
	if !ok {
		return nil, api.ErrNotFound
	}
	return Clone(c.items[i]), nil
}

// List returns transactions newest first; ties keep the latest insertion first.
func (c *Collection) List(limit int) []*api.StoredTransaction {
	out := make([]*api.StoredTransaction, 0, len(c.items))
	for i := len(c.items) - 1; i >= 0; i-- {
		out = append(out, Clone(c.items[i]))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return truncate(out, limit)
}

// Pending returns unsynced transactions oldest first.
func (c *Collection) Pending(limit int) []*api.StoredTransaction {
	out := make([]*api.StoredTransaction, 0)
	for _, txn := range c.items {
		if !txn.Synced {
			out = append(out, Clone(txn))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return truncate(out, limit)
}

// Remove deletes the transaction with id. It reports whether it was present.
func (c *Collection) Remove(id string) bool {
	i, ok := c.byID[id]
	if !ok {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.byID, id)
	for j := i; j < len(c.items); j++ {
		c.byID[c.items[j].ID] = j
	}
	return true
}

// MarkSynced flags ids as synced at the given instant and returns the IDs that changed.
func (c *Collection) MarkSynced(at time.Time, ids ...string) []string {
	var changed []string
	for _, id := range ids {
		i, ok := c.byID[id]
		if !ok || c.items[i].Synced {
			continue
		}
		syncedAt := at
		c.items[i].Synced = true
		c.items[i].SyncedAt = &syncedAt
		changed = append(changed, id)
	}
	return changed
}

// Unmark clears the synced flag of ids, undoing MarkSynced.
func (c *Collection) Unmark(ids ...string) {
	for _, id := range ids {
		if i, ok := c.byID[id]; ok {
			c.items[i].Synced = false
			c.items[i].SyncedAt = nil
		}
	}
}

// Items returns the stored transactions in insertion order. The slice is shared.
func (c *Collection) Items() []*api.StoredTransaction {
	return c.items
}

// Len returns the number of stored transactions.
func (c *Collection) Len() int {
	return len(c.items)
}

func truncate(txns []*api.StoredTransaction, limit int) []*api.StoredTransaction {
	if limit > 0 && len(txns) > limit {
		return txns[:limit]
	}
	return txns
}
