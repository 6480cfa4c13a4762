package buffered

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ArionMiles/txnotify/pkg/api"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]string
	// accept limits how many records each call accepts; <0 accepts all.
	accept int
	err    error
}

func (r *recorder) flush(_ context.Context, txns []*api.StoredTransaction) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(txns)
	if r.accept >= 0 && r.accept < n {
		n = r.accept
	}
	ids := make([]string, 0, n)
	for _, txn := range txns[:n] {
		ids = append(ids, txn.ID)
	}
	r.batches = append(r.batches, ids)
	if n < len(txns) {
		return n, r.err
	}
	return n, nil
}

func (r *recorder) flushed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func txn(id string) *api.StoredTransaction {
	return &api.StoredTransaction{ID: id}
}

func TestWrite_FlushesOnBatchSizeAndClose(t *testing.T) {
	rec := &recorder{accept: -1}
	w := New(rec.flush, Config{BatchSize: 2, FlushInterval: time.Hour}, nil)

	in := make(chan *api.StoredTransaction, 5)
	for i := 1; i <= 5; i++ {
		in <- txn(fmt.Sprint(i))
	}
	close(in)

	if err := w.Write(context.Background(), in); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := rec.flushed()
	if fmt.Sprint(got) != "[1 2 3 4 5]" {
		t.Errorf("flushed: got %v, want [1 2 3 4 5]", got)
	}
	if len(rec.batches) != 3 {
		t.Errorf("batches: got %d, want 3", len(rec.batches))
	}
	if w.BufferLen() != 0 {
		t.Errorf("buffer: got %d, want 0", w.BufferLen())
	}
}

func TestWrite_FlushesOnInterval(t *testing.T) {
	rec := &recorder{accept: -1}
	w := New(rec.flush, Config{BatchSize: 100, FlushInterval: 20 * time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	in := make(chan *api.StoredTransaction)
	done := make(chan error, 1)
	go func() { done <- w.Write(ctx, in) }()

	in <- txn("a")

	deadline := time.After(2 * time.Second)
	for len(rec.flushed()) == 0 {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for interval flush")
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(in)
	if err := <-done; err != nil {
		t.Errorf("Write: %v", err)
	}
}

func TestWrite_RetainsUnflushed(t *testing.T) {
	rec := &recorder{accept: 1, err: errors.New("ledger unavailable")}
	w := New(rec.flush, Config{BatchSize: 3, FlushInterval: time.Hour}, nil)

	in := make(chan *api.StoredTransaction, 3)
	in <- txn("a")
	in <- txn("b")
	in <- txn("c")
	close(in)

	err := w.Write(context.Background(), in)
	if err == nil {
		t.Fatal("expected flush error on close, got nil")
	}

	// "a" was accepted by the batch-size flush; "b" by the close flush.
	if got := fmt.Sprint(rec.flushed()); got != "[a b]" {
		t.Errorf("flushed: got %v, want [a b]", got)
	}
	if w.BufferLen() != 1 {
		t.Errorf("buffer: got %d, want 1", w.BufferLen())
	}
}

func TestWrite_ShutdownFlushUsesLiveContext(t *testing.T) {
	var flushCtxErr error
	flusher := func(ctx context.Context, txns []*api.StoredTransaction) (int, error) {
		flushCtxErr = ctx.Err()
		return len(txns), nil
	}
	w := New(flusher, Config{BatchSize: 10, FlushInterval: time.Hour}, nil)
	w.Seed(txn("a"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Write(ctx, make(chan *api.StoredTransaction))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Write: got %v, want %v", err, context.Canceled)
	}
	if flushCtxErr != nil {
		t.Errorf("shutdown flush ran with a cancelled context: %v", flushCtxErr)
	}
	if w.BufferLen() != 0 {
		t.Errorf("buffer: got %d, want 0", w.BufferLen())
	}
}

func TestSeed_FlushesAtStart(t *testing.T) {
	rec := &recorder{accept: -1}
	w := New(rec.flush, Config{BatchSize: 2, FlushInterval: time.Hour}, nil)
	w.Seed(txn("old1"), txn("old2"))

	in := make(chan *api.StoredTransaction, 1)
	in <- txn("new")
	close(in)

	if err := w.Write(context.Background(), in); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := fmt.Sprint(rec.flushed()); got != "[old1 old2 new]" {
		t.Errorf("flushed: got %v, want [old1 old2 new]", got)
	}
}

func TestMaxBuffer_DropsOldest(t *testing.T) {
	w := New(nil, Config{BatchSize: 2, MaxBuffer: 3}, nil)
	w.Seed(txn("1"), txn("2"), txn("3"), txn("4"), txn("5"))

	if w.BufferLen() != 3 {
		t.Fatalf("buffer: got %d, want 3", w.BufferLen())
	}
	if w.buffer[0].ID != "3" {
		t.Errorf("oldest kept: got %s, want 3", w.buffer[0].ID)
	}
}

func TestNew_Defaults(t *testing.T) {
	w := New(nil, Config{}, nil)

	if w.config.BatchSize != DefaultBatchSize {
		t.Errorf("batch size: got %d, want %d", w.config.BatchSize, DefaultBatchSize)
	}
	if w.config.FlushInterval != DefaultFlushInterval {
		t.Errorf("flush interval: got %v, want %v", w.config.FlushInterval, DefaultFlushInterval)
	}
	if w.config.MaxBuffer != DefaultMaxBuffer {
		t.Errorf("max buffer: got %d, want %d", w.config.MaxBuffer, DefaultMaxBuffer)
	}
	if w.config.ShutdownTimeout != DefaultShutdownTimeout {
		t.Errorf("shutdown timeout: got %v, want %v", w.config.ShutdownTimeout, DefaultShutdownTimeout)
	}
}
