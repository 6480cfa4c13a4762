// Package pipeline connects sources, the extraction engine, the store and the ledger.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ArionMiles/txnotify/pkg/api"
)

// ErrNotTransaction is returned by Ingest when no amount was found in the text.
var ErrNotTransaction = errors.New("no transaction amount found")

// Extractor turns notification text into a transaction record. *extract.Engine implements it.
type Extractor interface {
	Extract(text string) api.TransactionRecord
}

// Runner extracts notifications and persists the actionable ones.
type Runner struct {
	extractor Extractor
	store     api.Store
	logger    *slog.Logger
}

// NewRunner creates a new runner.
func NewRunner(extractor Extractor, store api.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		extractor: extractor,
		store:     store,
		logger:    logger,
	}
}

// Ingest extracts n and stores the record. It returns ErrNotTransaction when the
// text carries no amount and api.ErrDuplicate when the store rejected it.
func (r *Runner) Ingest(ctx context.Context, n *api.Notification) (*api.StoredTransaction, error) {
	rec := r.extractor.Extract(n.Text)
	if !rec.IsTransaction() {
		return nil, ErrNotTransaction
	}

	txn, err := r.store.Add(ctx, rec, n.Source)
	if err != nil {
		if errors.Is(err, api.ErrDuplicate) {
			return nil, err
		}
		return nil, fmt.Errorf("storing transaction: %w", err)
	}
	return txn, nil
}

// Run reads notifications from source until it finishes or ctx is cancelled.
// Stored transactions are forwarded to stored, which Run closes on return;
// stored may be nil. A notification is acknowledged once it is persisted,
// discarded as a non-transaction, or rejected as a duplicate.
func (r *Runner) Run(ctx context.Context, source api.Source, stored chan<- *api.StoredTransaction) error {
	if stored != nil {
		defer close(stored)
	}

	notifications := make(chan *api.Notification, 100)
	acks := make(chan string, 100)
	defer close(acks)

	readerDone := make(chan error, 1)
	go func() {
		readerDone <- source.Read(ctx, notifications, acks)
	}()

	var (
		persisted, discarded, duplicates, failed int
	)
	for n := range notifications {
		logger := r.logger.With("notification_id", n.ID, "source", n.Source)

		txn, err := r.Ingest(ctx, n)
		switch {
		case errors.Is(err, ErrNotTransaction):
			logger.Debug("discarding notification without amount")
			discarded++
		case errors.Is(err, api.ErrDuplicate):
			logger.Info("skipping duplicate notification")
			duplicates++
		case err != nil:
			logger.Error("failed to store transaction", "error", err)
			failed++
			continue
		default:
			persisted++
			logger.Info("stored transaction",
				"id", txn.ID,
				"amount", txn.Amount,
				"receiver", deref(txn.Receiver),
				"category", txn.Category,
			)
			if stored != nil {
				select {
				case stored <- txn:
				case <-ctx.Done():
				}
			}
		}

		select {
		case acks <- n.ID:
		case <-ctx.Done():
		}
	}

	r.logger.Info("source finished",
		"stored", persisted,
		"discarded", discarded,
		"duplicates", duplicates,
		"failed", failed,
	)

	if err := <-readerDone; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("reading notifications: %w", err)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
