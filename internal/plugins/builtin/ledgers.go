package builtin

import (
	"context"

	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/ArionMiles/txnotify/internal/plugins"
	"github.com/ArionMiles/txnotify/pkg/api"
	"github.com/ArionMiles/txnotify/pkg/writer/csv"
	"github.com/ArionMiles/txnotify/pkg/writer/elastic"
	jsonwriter "github.com/ArionMiles/txnotify/pkg/writer/json"
	"github.com/ArionMiles/txnotify/pkg/writer/sheets"
	"github.com/ArionMiles/txnotify/pkg/writer/webhook"
)

// NoLedger keeps every transaction local.
type NoLedger struct{}

func (p *NoLedger) Name() string             { return "none" }
func (p *NoLedger) Description() string      { return "Keep transactions local only" }
func (p *NoLedger) RequiredScopes() []string { return nil }

func (p *NoLedger) NewTransport(context.Context, plugins.Deps) (api.Transport, error) {
	return nil, nil
}

// WebhookLedger posts transactions to a spreadsheet web-app endpoint.
type WebhookLedger struct{}

func (p *WebhookLedger) Name() string { return "webhook" }
func (p *WebhookLedger) Description() string {
	return "Post transactions to a spreadsheet web-app endpoint"
}
func (p *WebhookLedger) RequiredScopes() []string { return nil }

func (p *WebhookLedger) NewTransport(_ context.Context, deps plugins.Deps) (api.Transport, error) {
	cfg := webhook.Config{Endpoint: deps.Config.SheetsEndpoint}
	return webhook.New(cfg, nil, logger(deps, "ledger", p.Name())), nil
}

// SheetsLedger appends transactions with the Google Sheets API.
type SheetsLedger struct{}

func (p *SheetsLedger) Name() string        { return "sheets" }
func (p *SheetsLedger) Description() string { return "Append transactions to Google Sheets" }

// RequiredScopes returns the OAuth scopes needed by this plugin.
func (p *SheetsLedger) RequiredScopes() []string {
	return []string{
		sheetsapi.SpreadsheetsScope,
	}
}

func (p *SheetsLedger) NewTransport(ctx context.Context, deps plugins.Deps) (api.Transport, error) {
	if deps.HTTPClient == nil {
		return nil, errNoHTTPClient
	}
	cfg := sheets.Config{
		SheetTitle: deps.Config.GSheetsTitle,
		SheetID:    deps.Config.GSheetsID,
		SheetName:  deps.Config.GSheetsName,
	}
	return sheets.New(ctx, deps.HTTPClient, cfg, logger(deps, "ledger", p.Name()))
}

// ElasticLedger indexes transactions into Elasticsearch.
type ElasticLedger struct{}

func (p *ElasticLedger) Name() string             { return "elasticsearch" }
func (p *ElasticLedger) Description() string      { return "Index transactions into Elasticsearch" }
func (p *ElasticLedger) RequiredScopes() []string { return nil }

func (p *ElasticLedger) NewTransport(ctx context.Context, deps plugins.Deps) (api.Transport, error) {
	cfg := elastic.Config{
		Addresses: deps.Config.ElasticAddresses(),
		Index:     deps.Config.ElasticIndex,
	}
	return elastic.New(ctx, cfg, logger(deps, "ledger", p.Name()))
}

// CSVLedger appends transactions to a local CSV file.
type CSVLedger struct{}

func (p *CSVLedger) Name() string             { return "csv" }
func (p *CSVLedger) Description() string      { return "Append transactions to a CSV file" }
func (p *CSVLedger) RequiredScopes() []string { return nil }

func (p *CSVLedger) NewTransport(_ context.Context, deps plugins.Deps) (api.Transport, error) {
	return csv.New(csv.Config{FilePath: deps.Config.LedgerPath}, logger(deps, "ledger", p.Name()))
}

// JSONLedger appends transactions to a local JSON Lines file.
type JSONLedger struct{}

func (p *JSONLedger) Name() string             { return "jsonl" }
func (p *JSONLedger) Description() string      { return "Append transactions to a JSON Lines file" }
func (p *JSONLedger) RequiredScopes() []string { return nil }

func (p *JSONLedger) NewTransport(_ context.Context, deps plugins.Deps) (api.Transport, error) {
	return jsonwriter.New(jsonwriter.Config{FilePath: deps.Config.LedgerPath}, logger(deps, "ledger", p.Name()))
}
