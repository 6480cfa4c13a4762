// Package sqlite implements an api.Store backed by a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/txnotify/pkg/api"
	"github.com/ArionMiles/txnotify/pkg/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const columns = `id, fingerprint, amount, sender, receiver, category, original_text, captured_at, source, synced, synced_at`

// Config holds the SQLite store configuration.
type Config struct {
	// Path is the database file. ":memory:" is not supported because every
	// pooled connection would see its own database.
	Path string
	// DedupeWindow rejects repeated texts captured within the window.
	DedupeWindow time.Duration
}

// Store persists transactions in SQLite.
type Store struct {
	db     *sql.DB
	window time.Duration
	logger *slog.Logger
}

// New opens (creating if needed) the database at cfg.Path and applies migrations.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite store: path is required")
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := runMigrations(db, migrationsFS); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	logger.Info("sqlite store initialized", "path", cfg.Path)
	return &Store{db: db, window: cfg.DedupeWindow, logger: logger}, nil
}

func runMigrations(db *sql.DB, migrations fs.FS) error {
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("setting up migrate driver: %w", err)
	}

	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("creating iofs source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("setting up migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migration (up): %w", err)
	}
	return nil
}

// Add implements api.Store.
func (s *Store) Add(ctx context.Context, rec api.TransactionRecord, source string) (*api.StoredTransaction, error) {
	txn := store.NewStored(rec, source)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if s.window > 0 {
		captured := txn.Timestamp.UnixNano()
		var dup bool
		err := tx.QueryRowContext(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM transactions
				WHERE fingerprint = ? AND captured_at > ? AND captured_at < ?
			)`,
			txn.Fingerprint, captured-s.window.Nanoseconds(), captured+s.window.Nanoseconds(),
		).Scan(&dup)
		if err != nil {
			return nil, fmt.Errorf("checking duplicates: %w", err)
		}
		if dup {
			return nil, api.ErrDuplicate
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (`+columns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, NULL)`,
		txn.ID, txn.Fingerprint, amountValue(txn.Amount), txn.Sender, txn.Receiver,
		txn.Category, txn.OriginalText, txn.Timestamp.UnixNano(), txn.Source,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("transaction %s already exists: %w", txn.ID, err)
		}
		return nil, fmt.Errorf("inserting transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return txn, nil
}

// Get implements api.Store.
func (s *Store) Get(ctx context.Context, id string) (*api.StoredTransaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM transactions WHERE id = ?`, id)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.ErrNotFound
		}
		return nil, fmt.Errorf("querying transaction %s: %w", id, err)
	}
	return txn, nil
}

// List implements api.Store.
func (s *Store) List(ctx context.Context, limit int) ([]*api.StoredTransaction, error) {
	return s.query(ctx, `
		SELECT `+columns+` FROM transactions
		ORDER BY captured_at DESC, seq DESC
		LIMIT ?`, sqlLimit(limit))
}

// Pending implements api.Store.
func (s *Store) Pending(ctx context.Context, limit int) ([]*api.StoredTransaction, error) {
	return s.query(ctx, `
		SELECT `+columns+` FROM transactions
		WHERE synced = 0
		ORDER BY captured_at, seq
		LIMIT ?`, sqlLimit(limit))
}

// MarkSynced implements api.Store.
func (s *Store) MarkSynced(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE transactions SET synced = 1, synced_at = ? WHERE id = ? AND synced = 0`)
	if err != nil {
		return fmt.Errorf("preparing update: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().UnixNano()
	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, now, id); err != nil {
			return fmt.Errorf("marking %s synced: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	s.logger.Debug("marked transactions synced", "count", len(ids))
	return nil
}

// Close implements api.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*api.StoredTransaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying transactions: %w", err)
	}
	defer rows.Close()

	var txns []*api.StoredTransaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (*api.StoredTransaction, error) {
	var (
		txn      api.StoredTransaction
		amount   sql.NullString
		captured int64
		syncedAt sql.NullInt64
	)
	err := row.Scan(
		&txn.ID, &txn.Fingerprint, &amount, &txn.Sender, &txn.Receiver,
		&txn.Category, &txn.OriginalText, &captured, &txn.Source, &txn.Synced, &syncedAt,
	)
	if err != nil {
		return nil, err
	}

	if amount.Valid {
		a, err := decimal.NewFromString(strings.TrimSpace(amount.String))
		if err != nil {
			return nil, fmt.Errorf("parsing amount %q: %w", amount.String, err)
		}
		txn.Amount = &a
	}
	txn.Timestamp = time.Unix(0, captured).UTC()
	if syncedAt.Valid {
		at := time.Unix(0, syncedAt.Int64).UTC()
		txn.SyncedAt = &at
	}
	return &txn, nil
}

func amountValue(amount *decimal.Decimal) any {
	if amount == nil {
		return nil
	}
	return amount.String()
}

// sqlLimit maps "no limit" to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
