package store

import (
	"testing"
	"time"

	"github.com/ArionMiles/txnotify/pkg/api"
)

func TestFingerprint(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := Fingerprint("abc"); got != want {
		t.Errorf("fingerprint: got %s, want %s", got, want)
	}
	if Fingerprint("a") == Fingerprint("A") {
		t.Error("fingerprint must be case sensitive")
	}
}

func TestWithinWindow(t *testing.T) {
	base := time.Date(2026, 2, 25, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		other  time.Time
		window time.Duration
		want   bool
	}{
		{"same instant", base, time.Minute, true},
		{"inside after", base.Add(59 * time.Second), time.Minute, true},
		{"inside before", base.Add(-59 * time.Second), time.Minute, true},
		{"on the edge", base.Add(time.Minute), time.Minute, false},
		{"outside", base.Add(2 * time.Minute), time.Minute, false},
		{"disabled", base, 0, false},
		{"negative disables", base, -time.Minute, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := WithinWindow(base, tc.other, tc.window); got != tc.want {
				t.Errorf("WithinWindow: got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNewStored(t *testing.T) {
	rec := api.TransactionRecord{OriginalText: "Paid ₹ 850 to Zomato via UPI on 25 Feb."}
	a := NewStored(rec, "stdin")
	b := NewStored(rec, "stdin")

	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids must be unique and non-empty: %q, %q", a.ID, b.ID)
	}
	if a.Fingerprint != Fingerprint(rec.OriginalText) {
		t.Errorf("fingerprint: got %s", a.Fingerprint)
	}
	if a.Synced || a.SyncedAt != nil {
		t.Error("new transaction must be unsynced")
	}
}

func TestCollection_SeededOrder(t *testing.T) {
	base := time.Date(2026, 2, 25, 9, 0, 0, 0, time.UTC)
	seed := []*api.StoredTransaction{
		{ID: "1", TransactionRecord: api.TransactionRecord{OriginalText: "x", Timestamp: base}},
		{ID: "2", TransactionRecord: api.TransactionRecord{OriginalText: "y", Timestamp: base}, Synced: true},
		{ID: "3", TransactionRecord: api.TransactionRecord{OriginalText: "z", Timestamp: base}},
	}
	c := NewCollection(time.Minute, seed)

	// Equal timestamps: List falls back to latest insertion first.
	list := c.List(0)
	if len(list) != 3 || list[0].ID != "3" || list[2].ID != "1" {
		t.Errorf("list order: got %v", ids(list))
	}

	pending := c.Pending(0)
	if len(pending) != 2 || pending[0].ID != "1" || pending[1].ID != "3" {
		t.Errorf("pending order: got %v", ids(pending))
	}

	changed := c.MarkSynced(base, "1", "2", "missing")
	if len(changed) != 1 || changed[0] != "1" {
		t.Errorf("MarkSynced: got %v changed, want [1]", changed)
	}

	c.Unmark(changed...)
	if pending := c.Pending(0); len(pending) != 2 {
		t.Errorf("pending after Unmark: got %v", ids(pending))
	}

	if !c.Remove("1") || c.Remove("1") {
		t.Error("Remove: want true then false")
	}
	if got, err := c.Get("3"); err != nil || got.ID != "3" {
		t.Errorf("Get after Remove: got %v, %v", got, err)
	}
	if c.Len() != 2 {
		t.Errorf("Len after Remove: got %d, want 2", c.Len())
	}

	if _, err := c.Get("missing"); err != api.ErrNotFound {
		t.Errorf("Get: got %v, want %v", err, api.ErrNotFound)
	}
}

func TestClone_Independent(t *testing.T) {
	at := time.Now()
	orig := &api.StoredTransaction{ID: "1", SyncedAt: &at}
	c := Clone(orig)
	c.ID = "2"
	*c.SyncedAt = at.Add(time.Hour)

	if orig.ID != "1" || !orig.SyncedAt.Equal(at) {
		t.Error("clone shares state with the original")
	}
}

func ids(txns []*api.StoredTransaction) []string {
	out := make([]string, len(txns))
	for i, txn := range txns {
		out[i] = txn.ID
	}
	return out
}
