package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ArionMiles/txnotify/pkg/api"
)

// DefaultBatchSize is the number of records sent per transport call.
const DefaultBatchSize = 10

// SyncResult summarizes a manual sync.
type SyncResult struct {
	Attempted int
	Synced    int
	Failed    int
}

// Syncer delivers stored transactions to the remote ledger and marks them synced.
type Syncer struct {
	store     api.Store
	transport api.Transport
	batchSize int
	logger    *slog.Logger
}

// NewSyncer creates a new syncer.
func NewSyncer(store api.Store, transport api.Transport, batchSize int, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Syncer{
		store:     store,
		transport: transport,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Configured reports whether the transport can deliver anything. Transports
// without a Configured method are assumed ready.
func (s *Syncer) Configured() bool {
	if c, ok := s.transport.(interface{ Configured() bool }); ok {
		return c.Configured()
	}
	return true
}

// Flush sends txns in batches, in order, stopping at the first failure. Delivered
// records are marked synced. It returns how many leading records were delivered.
// It has the signature of buffered.Flusher.
func (s *Syncer) Flush(ctx context.Context, txns []*api.StoredTransaction) (int, error) {
	delivered := 0
	for start := 0; start < len(txns); start += s.batchSize {
		batch := txns[start:min(start+s.batchSize, len(txns))]

		n, sendErr := s.transport.Send(ctx, batch)
		n = min(max(n, 0), len(batch))

		if n > 0 {
			ids := make([]string, 0, n)
			for _, txn := range batch[:n] {
				ids = append(ids, txn.ID)
			}
			if err := s.store.MarkSynced(ctx, ids...); err != nil {
				// Delivered records stay pending and are resent on the next sync.
				s.logger.Error("failed to mark transactions synced", "count", n, "error", err)
			}
			delivered += n
		}

		if sendErr != nil {
			return delivered, fmt.Errorf("sending batch: %w", sendErr)
		}
		if n < len(batch) {
			return delivered, fmt.Errorf("transport accepted %d of %d transactions", n, len(batch))
		}
	}
	return delivered, nil
}

// SyncPending sends every unsynced transaction.
func (s *Syncer) SyncPending(ctx context.Context) (SyncResult, error) {
	pending, err := s.store.Pending(ctx, 0)
	if err != nil {
		return SyncResult{}, fmt.Errorf("listing pending transactions: %w", err)
	}

	result := SyncResult{Attempted: len(pending)}
	if len(pending) == 0 {
		return result, nil
	}

	n, err := s.Flush(ctx, pending)
	result.Synced = n
	result.Failed = len(pending) - n

	s.logger.Info("sync complete",
		"attempted", result.Attempted,
		"synced", result.Synced,
		"failed", result.Failed,
	)
	return result, err
}
