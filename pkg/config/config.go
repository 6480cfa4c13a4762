// Package config loads txnotify settings from an optional file and the environment.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"
)

// Default file locations.
const (
	ClientSecretFile = "data/client_secret.json"
	TokenFile        = "data/token.json"
	StorePath        = "data/transactions.json"
)

// Known plugin names.
var (
	Sources = []string{"stdin", "file", "webhook", "gmail", "mbox"}
	Stores  = []string{"memory", "json", "sqlite", "postgres", "redis"}
	Ledgers = []string{"none", "webhook", "sheets", "elasticsearch", "csv", "jsonl"}
)

// Config holds the application configuration. Every field is keyed by its
// environment variable name, in the config file as well.
type Config struct {
	// Source selects where notifications come from.
	// Environment variable: TXNOTIFY_SOURCE
	Source string `koanf:"TXNOTIFY_SOURCE"`
	// SourcePath is the file read by the file and mbox sources.
	SourcePath string `koanf:"TXNOTIFY_SOURCE_PATH"`

	WebhookAddr  string `koanf:"TXNOTIFY_WEBHOOK_ADDR"`
	WebhookToken string `koanf:"TXNOTIFY_WEBHOOK_TOKEN"`

	GmailQuery    string        `koanf:"TXNOTIFY_GMAIL_QUERY"`
	GmailInterval time.Duration `koanf:"TXNOTIFY_GMAIL_INTERVAL"`

	// GmailClaimTimeout is how long an emitted mail waits for its ack before a
	// later poll emits it again.
	GmailClaimTimeout time.Duration `koanf:"TXNOTIFY_GMAIL_CLAIM_TIMEOUT"`

	// Store selects the local transaction store.
	// Environment variable: TXNOTIFY_STORE
	Store string `koanf:"TXNOTIFY_STORE"`
	// StorePath is the json or sqlite file.
	StorePath string `koanf:"TXNOTIFY_STORE_PATH"`
	// DedupeWindow rejects a repeated text captured within the window. 0 disables it.
	DedupeWindow time.Duration `koanf:"TXNOTIFY_DEDUPE_WINDOW"`

	Postgres PostgresConfig `koanf:",squash"`
	Redis    RedisConfig    `koanf:",squash"`

	// Ledger selects the remote ledger transactions are synced to.
	// Environment variable: TXNOTIFY_LEDGER
	Ledger string `koanf:"TXNOTIFY_LEDGER"`
	// SheetsEndpoint is the spreadsheet web-app URL used by the webhook ledger.
	SheetsEndpoint string `koanf:"TXNOTIFY_SHEETS_ENDPOINT"`

	// LedgerPath is the file appended to by the csv and jsonl ledgers.
	LedgerPath string `koanf:"TXNOTIFY_LEDGER_PATH"`

	// GSheetsTitle is the title for a new Google Sheet (used when creating).
	GSheetsTitle string `koanf:"GSHEETS_TITLE"`
	// GSheetsID is the ID of an existing Google Sheet to use.
	GSheetsID string `koanf:"GSHEETS_ID"`
	// GSheetsName is the name of the sheet/tab within the spreadsheet.
	GSheetsName string `koanf:"GSHEETS_NAME"`

	// ElasticURLs is a comma separated list of cluster addresses.
	ElasticURLs  string `koanf:"TXNOTIFY_ELASTIC_URLS"`
	ElasticIndex string `koanf:"TXNOTIFY_ELASTIC_INDEX"`

	SyncBatchSize int           `koanf:"TXNOTIFY_SYNC_BATCH_SIZE"`
	SyncInterval  time.Duration `koanf:"TXNOTIFY_SYNC_INTERVAL"`

	// CategoryTable is a YAML file replacing the built-in category table.
	CategoryTable string `koanf:"TXNOTIFY_CATEGORY_TABLE"`
	// BudgetLimit is the monthly budget, as a decimal string.
	BudgetLimit string `koanf:"TXNOTIFY_BUDGET_LIMIT"`

	ClientSecretFile string `koanf:"TXNOTIFY_CLIENT_SECRET"`
	TokenFile        string `koanf:"TXNOTIFY_TOKEN_FILE"`
}

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	DSN      string `koanf:"POSTGRES_DSN"`
	Host     string `koanf:"POSTGRES_HOST"`
	Port     int    `koanf:"POSTGRES_PORT"`
	Database string `koanf:"POSTGRES_DB"`
	User     string `koanf:"POSTGRES_USER"`
	Password string `koanf:"POSTGRES_PASSWORD"`
	SSLMode  string `koanf:"POSTGRES_SSLMODE"`
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string `koanf:"TXNOTIFY_REDIS_ADDR"`
	Password string `koanf:"TXNOTIFY_REDIS_PASSWORD"`
	DB       int    `koanf:"TXNOTIFY_REDIS_DB"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Source:            "stdin",
		WebhookAddr:       ":8090",
		GmailQuery:        "is:unread label:bank-alerts",
		GmailInterval:     time.Minute,
		GmailClaimTimeout: 10 * time.Minute,
		Store:             "json",
		StorePath:         StorePath,
		DedupeWindow:      5 * time.Minute,
		Postgres: PostgresConfig{
			Port:    5432,
			SSLMode: "disable",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Ledger:           "webhook",
		GSheetsName:      "Transactions",
		ElasticURLs:      "http://localhost:9200",
		ElasticIndex:     "txnotify",
		SyncBatchSize:    10,
		SyncInterval:     30 * time.Second,
		BudgetLimit:      "50000",
		ClientSecretFile: ClientSecretFile,
		TokenFile:        TokenFile,
	}
}

// Load reads the config file at path, if any, then lets environment variables
// override it. Missing keys keep their Default value.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", nil), nil); err != nil {
		return Config{}, fmt.Errorf("loading environment: %w", err)
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf", FlatPaths: true}); err != nil {
		return Config{}, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return json.Parser(), nil
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	}
	return nil, fmt.Errorf("unsupported config file type %q", filepath.Ext(path))
}

// Validate checks plugin names and the settings each plugin requires.
func (c Config) Validate() error {
	var errs []error

	if !slices.Contains(Sources, c.Source) {
		errs = append(errs, fmt.Errorf("unknown source %q (want one of %s)", c.Source, strings.Join(Sources, ", ")))
	}
	if (c.Source == "file" || c.Source == "mbox") && c.SourcePath == "" {
		errs = append(errs, fmt.Errorf("TXNOTIFY_SOURCE_PATH is required for the %s source", c.Source))
	}

	if !slices.Contains(Stores, c.Store) {
		errs = append(errs, fmt.Errorf("unknown store %q (want one of %s)", c.Store, strings.Join(Stores, ", ")))
	}
	if (c.Store == "json" || c.Store == "sqlite") && c.StorePath == "" {
		errs = append(errs, fmt.Errorf("TXNOTIFY_STORE_PATH is required for the %s store", c.Store))
	}
	if c.Store == "postgres" && c.Postgres.DSN == "" && c.Postgres.Host == "" {
		errs = append(errs, errors.New("POSTGRES_DSN or POSTGRES_HOST is required for the postgres store"))
	}
	if c.DedupeWindow < 0 {
		errs = append(errs, errors.New("TXNOTIFY_DEDUPE_WINDOW must not be negative"))
	}

	if !slices.Contains(Ledgers, c.Ledger) {
		errs = append(errs, fmt.Errorf("unknown ledger %q (want one of %s)", c.Ledger, strings.Join(Ledgers, ", ")))
	}
	if c.Ledger == "sheets" && c.GSheetsID == "" && c.GSheetsTitle == "" {
		errs = append(errs, errors.New("GSHEETS_ID or GSHEETS_TITLE is required for the sheets ledger"))
	}
	if (c.Ledger == "csv" || c.Ledger == "jsonl") && c.LedgerPath == "" {
		errs = append(errs, fmt.Errorf("TXNOTIFY_LEDGER_PATH is required for the %s ledger", c.Ledger))
	}
	if c.SyncBatchSize <= 0 {
		errs = append(errs, errors.New("TXNOTIFY_SYNC_BATCH_SIZE must be positive"))
	}

	if _, err := c.Budget(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Budget parses BudgetLimit.
func (c Config) Budget() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.BudgetLimit)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid TXNOTIFY_BUDGET_LIMIT %q: %w", c.BudgetLimit, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("TXNOTIFY_BUDGET_LIMIT must not be negative")
	}
	return d, nil
}

// ElasticAddresses splits ElasticURLs.
func (c Config) ElasticAddresses() []string {
	var out []string
	for _, u := range strings.Split(c.ElasticURLs, ",") {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
