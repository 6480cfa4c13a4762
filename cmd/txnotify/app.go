package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/ArionMiles/txnotify/internal/pipeline"
	"github.com/ArionMiles/txnotify/internal/plugins"
	"github.com/ArionMiles/txnotify/internal/plugins/builtin"
	"github.com/ArionMiles/txnotify/pkg/api"
	"github.com/ArionMiles/txnotify/pkg/category"
	"github.com/ArionMiles/txnotify/pkg/client"
	"github.com/ArionMiles/txnotify/pkg/config"
	"github.com/ArionMiles/txnotify/pkg/extract"
	"github.com/ArionMiles/txnotify/pkg/logging"
)

// app carries what every command needs: the flags, the logger and the plugins.
type app struct {
	configPath string
	logger     *slog.Logger
	logConfig  logging.Config
	registry   *plugins.Registry
}

func (a *app) pluginRegistry() *plugins.Registry {
	if a.registry == nil {
		a.registry = builtin.NewRegistry()
	}
	return a.registry
}

// loadConfig loads and validates the configuration.
func (a *app) loadConfig() (config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// engine builds the extraction engine, with the category table from
// TXNOTIFY_CATEGORY_TABLE when set.
func (a *app) engine(cfg config.Config) (*extract.Engine, error) {
	if cfg.CategoryTable == "" {
		return extract.Default(), nil
	}
	table, err := category.LoadTableFile(cfg.CategoryTable)
	if err != nil {
		return nil, err
	}
	a.logger.Info("loaded category table", "path", cfg.CategoryTable, "categories", len(table))
	return extract.New(extract.DefaultPatterns(), extract.WithCategorizer(category.New(table)))
}

// httpClient returns an OAuth client when the configured source or ledger needs
// one, and nil otherwise.
func (a *app) httpClient(ctx context.Context, cfg config.Config) (*http.Client, error) {
	scopes, err := a.pluginRegistry().GetAllScopes(cfg.Source, cfg.Ledger)
	if err != nil {
		return nil, err
	}
	if len(scopes) == 0 {
		return nil, nil
	}
	return client.New(ctx, client.Config{
		SecretFile: cfg.ClientSecretFile,
		TokenFile:  cfg.TokenFile,
		Scopes:     scopes,
		Logger:     logging.Component(a.logger, "oauth", "google"),
	})
}

func (a *app) deps(cfg config.Config, httpClient *http.Client) plugins.Deps {
	return plugins.Deps{Config: cfg, HTTPClient: httpClient, Logger: a.logger}
}

func (a *app) openStore(ctx context.Context, cfg config.Config) (api.Store, error) {
	st, err := a.pluginRegistry().CreateStore(ctx, cfg.Store, a.deps(cfg, nil))
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store, err)
	}
	return st, nil
}

// openSyncer creates the configured transport. It returns a nil syncer and a
// no-op close func when the ledger keeps records local.
func (a *app) openSyncer(ctx context.Context, cfg config.Config, st api.Store, httpClient *http.Client) (*pipeline.Syncer, func(), error) {
	transport, err := a.pluginRegistry().CreateTransport(ctx, cfg.Ledger, a.deps(cfg, httpClient))
	if err != nil {
		return nil, nil, fmt.Errorf("creating %s ledger: %w", cfg.Ledger, err)
	}
	if transport == nil {
		return nil, func() {}, nil
	}

	closeFn := func() {
		if c, ok := transport.(io.Closer); ok {
			if err := c.Close(); err != nil {
				a.logger.Warn("failed to close ledger", "error", err)
			}
		}
	}
	logger := a.logger.With("component", "syncer")
	return pipeline.NewSyncer(st, transport, cfg.SyncBatchSize, logger), closeFn, nil
}

func (a *app) closeStore(st api.Store) {
	if err := st.Close(); err != nil {
		a.logger.Warn("failed to close store", "error", err)
	}
}
