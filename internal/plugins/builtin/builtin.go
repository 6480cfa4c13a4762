// Package builtin registers the plugins shipped with txnotify.
package builtin

import (
	"errors"
	"log/slog"

	"github.com/ArionMiles/txnotify/internal/plugins"
	"github.com/ArionMiles/txnotify/pkg/logging"
)

var errNoHTTPClient = errors.New("oauth client required; run txnotify setup")

// Register adds every built-in plugin to registry.
func Register(registry *plugins.Registry) error {
	var errs []error
	for _, p := range []plugins.SourcePlugin{
		&StdinSource{}, &FileSource{}, &WebhookSource{}, &GmailSource{}, &MboxSource{},
	} {
		errs = append(errs, registry.RegisterSource(p))
	}
	for _, p := range []plugins.StorePlugin{
		&MemoryStore{}, &JSONStore{}, &SQLiteStore{}, &PostgresStore{}, &RedisStore{},
	} {
		errs = append(errs, registry.RegisterStore(p))
	}
	for _, p := range []plugins.LedgerPlugin{
		&NoLedger{}, &WebhookLedger{}, &SheetsLedger{}, &ElasticLedger{}, &CSVLedger{}, &JSONLedger{},
	} {
		errs = append(errs, registry.RegisterLedger(p))
	}
	return errors.Join(errs...)
}

// NewRegistry returns a registry with every built-in plugin.
func NewRegistry() *plugins.Registry {
	registry := plugins.NewRegistry()
	if err := Register(registry); err != nil {
		// Built-in names are unique; a clash is a programming error.
		panic(err)
	}
	return registry
}

func logger(deps plugins.Deps, kind, name string) *slog.Logger {
	return logging.Component(deps.Logger, kind, name)
}
