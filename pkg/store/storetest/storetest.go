// Package storetest provides a conformance suite for api.Store implementations.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/txnotify/pkg/api"
	"github.com/ArionMiles/txnotify/pkg/store"
)

// Opener returns an empty store configured with the given dedupe window.
// The suite closes the store when the subtest ends.
type Opener func(t *testing.T, window time.Duration) api.Store

var base = time.Date(2026, 2, 25, 9, 0, 0, 0, time.UTC)

// Record builds a transaction record captured offset after a fixed base time.
func Record(text, amount string, offset time.Duration) api.TransactionRecord {
	receiver := "Zomato"
	sender := "Self (Default Account)"
	rec := api.TransactionRecord{
		Sender:       &sender,
		Receiver:     &receiver,
		Category:     "Food & Dining",
		OriginalText: text,
		Timestamp:    base.Add(offset),
	}
	if amount != "" {
		a := decimal.RequireFromString(amount)
		rec.Amount = &a
	}
	return rec
}

// Run runs the conformance suite against stores produced by open.
func Run(t *testing.T, open Opener) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, open Opener)
	}{
		{"AddAndGet", testAddAndGet},
		{"GetNotFound", testGetNotFound},
		{"NilFields", testNilFields},
		{"DedupeWithinWindow", testDedupeWithinWindow},
		{"DedupeDisabled", testDedupeDisabled},
		{"ListNewestFirst", testListNewestFirst},
		{"PendingAndMarkSynced", testPendingAndMarkSynced},
		{"MarkSyncedUnknownID", testMarkSyncedUnknownID},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open)
		})
	}
}

func openStore(t *testing.T, open Opener, window time.Duration) api.Store {
	t.Helper()
	s := open(t, window)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testAddAndGet(t *testing.T, open Opener) {
	ctx := context.Background()
	s := openStore(t, open, store.DefaultDedupeWindow)

	rec := Record("Paid ₹ 1,250 to Zomato via HDFC Bank on 25 Feb.", "1250", 0)
	added, err := s.Add(ctx, rec, "webhook")
	require.NoError(t, err)
	require.NotEmpty(t, added.ID)
	assert.Equal(t, store.Fingerprint(rec.OriginalText), added.Fingerprint)
	assert.Equal(t, "webhook", added.Source)
	assert.False(t, added.Synced)
	assert.Nil(t, added.SyncedAt)

	got, err := s.Get(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, added.ID, got.ID)
	require.NotNil(t, got.Amount)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("1250")), "amount: got %s", got.Amount)
	require.NotNil(t, got.Receiver)
	assert.Equal(t, "Zomato", *got.Receiver)
	require.NotNil(t, got.Sender)
	assert.Equal(t, "Self (Default Account)", *got.Sender)
	assert.Equal(t, "Food & Dining", got.Category)
	assert.Equal(t, rec.OriginalText, got.OriginalText)
	assert.True(t, got.Timestamp.Equal(rec.Timestamp), "timestamp: got %v, want %v", got.Timestamp, rec.Timestamp)
	assert.Equal(t, "webhook", got.Source)
}

func testGetNotFound(t *testing.T, open Opener) {
	s := openStore(t, open, store.DefaultDedupeWindow)

	_, err := s.Get(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, api.ErrNotFound)
}

func testNilFields(t *testing.T, open Opener) {
	ctx := context.Background()
	s := openStore(t, open, store.DefaultDedupeWindow)

	rec := Record("Debited Rs 400 from A/C *1234. Info: Uber Rides.", "400.50", 0)
	rec.Receiver = nil
	added, err := s.Add(ctx, rec, "")
	require.NoError(t, err)

	got, err := s.Get(ctx, added.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Receiver)
	require.NotNil(t, got.Amount)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("400.5")), "amount: got %s", got.Amount)
}

func testDedupeWithinWindow(t *testing.T, open Opener) {
	ctx := context.Background()
	s := openStore(t, open, 5*time.Minute)
	text := "Sent ₹ 5,000 to John Doe from A/c XX4567."

	_, err := s.Add(ctx, Record(text, "5000", 0), "stdin")
	require.NoError(t, err)

	_, err = s.Add(ctx, Record(text, "5000", time.Minute), "stdin")
	assert.ErrorIs(t, err, api.ErrDuplicate)

	// A different text inside the window is not a duplicate.
	_, err = s.Add(ctx, Record(text+" Ref 2", "5000", time.Minute), "stdin")
	assert.NoError(t, err)

	// The same text outside the window is stored again.
	_, err = s.Add(ctx, Record(text, "5000", 10*time.Minute), "stdin")
	assert.NoError(t, err)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func testDedupeDisabled(t *testing.T, open Opener) {
	ctx := context.Background()
	s := openStore(t, open, 0)
	text := "Paid ₹ 99 to Chai Point"

	_, err := s.Add(ctx, Record(text, "99", 0), "")
	require.NoError(t, err)
	_, err = s.Add(ctx, Record(text, "99", time.Second), "")
	require.NoError(t, err)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func testListNewestFirst(t *testing.T, open Opener) {
	ctx := context.Background()
	s := openStore(t, open, store.DefaultDedupeWindow)

	// Inserted out of capture order.
	for _, tc := range []struct {
		text   string
		offset time.Duration
	}{
		{"second", 2 * time.Minute},
		{"first", time.Minute},
		{"third", 3 * time.Minute},
	} {
		_, err := s.Add(ctx, Record(tc.text, "10", tc.offset), "")
		require.NoError(t, err)
	}

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"third", "second", "first"}, texts(all))

	limited, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second"}, texts(limited))
}

func testPendingAndMarkSynced(t *testing.T, open Opener) {
	ctx := context.Background()
	s := openStore(t, open, store.DefaultDedupeWindow)

	ids := make(map[string]string)
	for i, text := range []string{"a", "b", "c"} {
		added, err := s.Add(ctx, Record(text, "1", time.Duration(i)*time.Minute), "")
		require.NoError(t, err)
		ids[text] = added.ID
	}

	pending, err := s.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, texts(pending))

	require.NoError(t, s.MarkSynced(ctx, ids["a"], ids["c"]))

	pending, err = s.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, texts(pending))

	got, err := s.Get(ctx, ids["a"])
	require.NoError(t, err)
	assert.True(t, got.Synced)
	assert.NotNil(t, got.SyncedAt)

	// Synced records stay in the history.
	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// Marking again is a no-op.
	require.NoError(t, s.MarkSynced(ctx, ids["a"]))

	limited, err := s.Pending(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, texts(limited))
}

func testMarkSyncedUnknownID(t *testing.T, open Opener) {
	ctx := context.Background()
	s := openStore(t, open, store.DefaultDedupeWindow)

	added, err := s.Add(ctx, Record("x", "1", 0), "")
	require.NoError(t, err)

	require.NoError(t, s.MarkSynced(ctx, "00000000-0000-0000-0000-000000000000", added.ID))
	require.NoError(t, s.MarkSynced(ctx))

	pending, err := s.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func texts(txns []*api.StoredTransaction) []string {
	out := make([]string, 0, len(txns))
	for _, txn := range txns {
		out = append(out, txn.OriginalText)
	}
	return out
}

// RunFailedWrites checks that a store whose backing writes fail leaves no
// trace of the failed change. breakWrites makes every following write fail
// and restore undoes it.
func RunFailedWrites(t *testing.T, s api.Store, breakWrites, restore func()) {
	t.Helper()
	ctx := context.Background()
	text := "Paid ₹ 1,250 to Zomato via HDFC Bank on 25 Feb."

	breakWrites()
	_, err := s.Add(ctx, Record(text, "1250", 0), "stdin")
	require.Error(t, err)

	all, err := s.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all, "failed add must not be kept")

	restore()
	txn, err := s.Add(ctx, Record(text, "1250", 0), "stdin")
	require.NoError(t, err, "redelivery after a failed add must not be a duplicate")

	breakWrites()
	require.Error(t, s.MarkSynced(ctx, txn.ID))

	pending, err := s.Pending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, txn.ID, pending[0].ID)

	got, err := s.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.False(t, got.Synced)
	assert.Nil(t, got.SyncedAt)

	restore()
	require.NoError(t, s.MarkSynced(ctx, txn.ID))
	pending, err = s.Pending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
