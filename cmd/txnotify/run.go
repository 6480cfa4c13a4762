package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ArionMiles/txnotify/internal/pipeline"
	"github.com/ArionMiles/txnotify/pkg/writer/buffered"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Capture notifications from the configured source",
		Long: `Run reads notifications from TXNOTIFY_SOURCE until the source is exhausted or
the process receives SIGINT/SIGTERM. Each transaction is stored locally and synced
to TXNOTIFY_LEDGER in batches. Records left unsynced by earlier runs are sent first.`,
		Example: `  # Read alerts line by line from stdin
  cat alerts.txt | txnotify run

  # Serve the webhook source
  TXNOTIFY_SOURCE=webhook txnotify run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context())
		},
	}
}

// run starts the capture daemon.
func (a *app) run(parent context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	engine, err := a.engine(cfg)
	if err != nil {
		return err
	}

	a.logger.Info("configuration loaded",
		"source", cfg.Source,
		"store", cfg.Store,
		"ledger", cfg.Ledger,
	)

	// Setup context with cancellation on SIGINT/SIGTERM
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received shutdown signal", "signal", sig)
			// A second signal gets the default behaviour and terminates.
			signal.Stop(sigChan)
			cancel()
		case <-ctx.Done():
		}
	}()

	httpClient, err := a.httpClient(ctx, cfg)
	if err != nil {
		return fmt.Errorf("creating http client: %w", err)
	}

	st, err := a.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.closeStore(st)

	syncer, closeLedger, err := a.openSyncer(ctx, cfg, st, httpClient)
	if err != nil {
		return err
	}
	defer closeLedger()

	source, err := a.pluginRegistry().CreateSource(ctx, cfg.Source, a.deps(cfg, httpClient))
	if err != nil {
		return fmt.Errorf("creating %s source: %w", cfg.Source, err)
	}

	runner := pipeline.NewRunner(engine, st, a.logger.With("component", "runner"))
	daemon := pipeline.NewDaemon(runner, syncer, st, buffered.Config{
		BatchSize:     cfg.SyncBatchSize,
		FlushInterval: cfg.SyncInterval,
	}, a.logger.With("component", "daemon"))

	return daemon.Run(ctx, source)
}
