package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ArionMiles/txnotify/pkg/api"
	"github.com/ArionMiles/txnotify/pkg/writer/buffered"
)

// Daemon runs a source through the runner and syncs stored transactions in the
// background. The buffered writer is the only caller of the transport while it runs.
type Daemon struct {
	runner *Runner
	syncer *Syncer
	store  api.Store
	config buffered.Config
	logger *slog.Logger
}

// NewDaemon creates a daemon. syncer may be nil to keep everything local.
func NewDaemon(runner *Runner, syncer *Syncer, store api.Store, cfg buffered.Config, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	return &Daemon{
		runner: runner,
		syncer: syncer,
		store:  store,
		config: cfg,
		logger: logger,
	}
}

// Run blocks until the source finishes or ctx is cancelled. Records left
// unsynced by earlier runs are queued for delivery first.
func (d *Daemon) Run(ctx context.Context, source api.Source) error {
	if d.syncer == nil || !d.syncer.Configured() {
		d.logger.Warn("remote ledger not configured, transactions stay local")
		return d.runner.Run(ctx, source, nil)
	}

	writer := buffered.New(d.syncer.Flush, d.config, d.logger.With("component", "sync"))

	pending, err := d.store.Pending(ctx, 0)
	if err != nil {
		return fmt.Errorf("loading pending transactions: %w", err)
	}
	if len(pending) > 0 {
		d.logger.Info("queued unsynced transactions", "count", len(pending))
		writer.Seed(pending...)
	}

	stored := make(chan *api.StoredTransaction, 100)
	writerDone := make(chan error, 1)
	go func() {
		writerDone <- writer.Write(ctx, stored)
	}()

	d.logger.Info("daemon started")
	runErr := d.runner.Run(ctx, source, stored)

	if err := <-writerDone; err != nil && !errors.Is(err, context.Canceled) {
		d.logger.Error("sync writer error", "error", err, "unsynced", writer.BufferLen())
	}

	d.logger.Info("daemon stopped")
	return runErr
}
