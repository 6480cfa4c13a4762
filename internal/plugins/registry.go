// Package plugins provides a plugin registry for sources, stores and ledgers.
package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/ArionMiles/txnotify/pkg/api"
	"github.com/ArionMiles/txnotify/pkg/config"
)

// Deps carries what plugin constructors need.
type Deps struct {
	Config config.Config
	// HTTPClient is the OAuth client. It is nil unless a selected plugin requires scopes.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// SourcePlugin defines the interface for notification source plugins.
type SourcePlugin interface {
	// Name returns the plugin name (e.g., "gmail", "webhook").
	Name() string
	// Description returns a human-readable description.
	Description() string
	// RequiredScopes returns the OAuth scopes needed by this plugin.
	RequiredScopes() []string
	// NewSource creates a new source instance.
	NewSource(ctx context.Context, deps Deps) (api.Source, error)
}

// StorePlugin defines the interface for local store plugins.
type StorePlugin interface {
	Name() string
	Description() string
	NewStore(ctx context.Context, deps Deps) (api.Store, error)
}

// LedgerPlugin defines the interface for remote ledger plugins.
type LedgerPlugin interface {
	Name() string
	Description() string
	RequiredScopes() []string
	// NewTransport creates a transport. A nil transport keeps records local.
	NewTransport(ctx context.Context, deps Deps) (api.Transport, error)
}

// Registry manages available plugins.
type Registry struct {
	sources map[string]SourcePlugin
	stores  map[string]StorePlugin
	ledgers map[string]LedgerPlugin
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		sources: make(map[string]SourcePlugin),
		stores:  make(map[string]StorePlugin),
		ledgers: make(map[string]LedgerPlugin),
	}
}

// RegisterSource registers a source plugin.
func (r *Registry) RegisterSource(plugin SourcePlugin) error {
	return register(r.sources, "source", plugin)
}

// RegisterStore registers a store plugin.
func (r *Registry) RegisterStore(plugin StorePlugin) error {
	return register(r.stores, "store", plugin)
}

// RegisterLedger registers a ledger plugin.
func (r *Registry) RegisterLedger(plugin LedgerPlugin) error {
	return register(r.ledgers, "ledger", plugin)
}

type named interface {
	Name() string
}

func register[P named](plugins map[string]P, kind string, plugin P) error {
	name := plugin.Name()
	if _, exists := plugins[name]; exists {
		return fmt.Errorf("%s plugin %q already registered", kind, name)
	}
	plugins[name] = plugin
	return nil
}

func lookup[P any](plugins map[string]P, kind, name string) (P, error) {
	plugin, exists := plugins[name]
	if !exists {
		var zero P
		return zero, fmt.Errorf("%s plugin %q not found", kind, name)
	}
	return plugin, nil
}

// GetSource returns a source plugin by name.
func (r *Registry) GetSource(name string) (SourcePlugin, error) {
	return lookup(r.sources, "source", name)
}

// GetStore returns a store plugin by name.
func (r *Registry) GetStore(name string) (StorePlugin, error) {
	return lookup(r.stores, "store", name)
}

// GetLedger returns a ledger plugin by name.
func (r *Registry) GetLedger(name string) (LedgerPlugin, error) {
	return lookup(r.ledgers, "ledger", name)
}

func sorted[P named](plugins map[string]P) []P {
	out := make([]P, 0, len(plugins))
	for _, plugin := range plugins {
		out = append(out, plugin)
	}
	slices.SortFunc(out, func(a, b P) int { return strings.Compare(a.Name(), b.Name()) })
	return out
}

// ListSources returns all registered source plugins, by name.
func (r *Registry) ListSources() []SourcePlugin {
	return sorted(r.sources)
}

// ListStores returns all registered store plugins, by name.
func (r *Registry) ListStores() []StorePlugin {
	return sorted(r.stores)
}

// ListLedgers returns all registered ledger plugins, by name.
func (r *Registry) ListLedgers() []LedgerPlugin {
	return sorted(r.ledgers)
}

// GetAllScopes returns the OAuth scopes required by the given source and ledger.
// An empty source or ledger name is skipped.
func (r *Registry) GetAllScopes(sourceName, ledgerName string) ([]string, error) {
	var scopes []string

	if sourceName != "" {
		source, err := r.GetSource(sourceName)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, source.RequiredScopes()...)
	}
	if ledgerName != "" {
		ledger, err := r.GetLedger(ledgerName)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, ledger.RequiredScopes()...)
	}

	// Combine and deduplicate scopes
	slices.Sort(scopes)
	return slices.Compact(scopes), nil
}

// CreateSource creates a source instance from a plugin.
func (r *Registry) CreateSource(ctx context.Context, name string, deps Deps) (api.Source, error) {
	plugin, err := r.GetSource(name)
	if err != nil {
		return nil, err
	}
	return plugin.NewSource(ctx, deps)
}

// CreateStore creates a store instance from a plugin.
func (r *Registry) CreateStore(ctx context.Context, name string, deps Deps) (api.Store, error) {
	plugin, err := r.GetStore(name)
	if err != nil {
		return nil, err
	}
	return plugin.NewStore(ctx, deps)
}

// CreateTransport creates a transport instance from a plugin.
func (r *Registry) CreateTransport(ctx context.Context, name string, deps Deps) (api.Transport, error) {
	plugin, err := r.GetLedger(name)
	if err != nil {
		return nil, err
	}
	return plugin.NewTransport(ctx, deps)
}
