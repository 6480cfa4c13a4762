// Package postgres provides a PostgreSQL api.Store.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ArionMiles/txnotify/pkg/api"
	"github.com/ArionMiles/txnotify/pkg/store"
)

//go:embed 001_create_transactions.sql
var migrationSQL string

const columns = `id, fingerprint, amount::text, sender, receiver, category, original_text, captured_at, source, synced, synced_at`

// uniqueViolation is the SQLSTATE of a unique constraint failure.
const uniqueViolation = "23505"

// Config holds the PostgreSQL store configuration.
type Config struct {
	// DSN, when set, is used instead of the individual connection fields.
	DSN string

	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// DedupeWindow rejects repeated texts captured within the window.
	DedupeWindow time.Duration

	// MaxPoolSize is the maximum number of connections in the pool.
	MaxPoolSize int
}

// Store persists transactions in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	window time.Duration
	logger *slog.Logger
}

// New connects to PostgreSQL and runs the schema migration.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Set defaults
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxPoolSize == 0 {
		cfg.MaxPoolSize = 10
	}

	connStr := cfg.DSN
	if connStr == "" {
		connStr = fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
		)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxPoolSize)
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 1 * time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", poolConfig.ConnConfig.Host,
		"port", poolConfig.ConnConfig.Port,
		"database", poolConfig.ConnConfig.Database,
	)

	s := &Store{
		pool:   pool,
		window: cfg.DedupeWindow,
		logger: logger,
	}

	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// runMigrations runs the database migrations.
func (s *Store) runMigrations(ctx context.Context) error {
	s.logger.Info("running database migrations")

	if _, err := s.pool.Exec(ctx, migrationSQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}

	s.logger.Info("migrations completed successfully")
	return nil
}

// Add implements api.Store. Concurrent adds of the same text are serialized
// with a transaction-scoped advisory lock on the fingerprint.
func (s *Store) Add(ctx context.Context, rec api.TransactionRecord, source string) (*api.StoredTransaction, error) {
	txn := store.NewStored(rec, source)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if s.window > 0 {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, txn.Fingerprint); err != nil {
			return nil, fmt.Errorf("locking fingerprint: %w", err)
		}

		var dup bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM transactions
				WHERE fingerprint = $1 AND captured_at > $2 AND captured_at < $3
			)`,
			txn.Fingerprint, txn.Timestamp.Add(-s.window), txn.Timestamp.Add(s.window),
		).Scan(&dup)
		if err != nil {
			return nil, fmt.Errorf("checking duplicates: %w", err)
		}
		if dup {
			return nil, api.ErrDuplicate
		}
	}

	var amount *string
	if txn.Amount != nil {
		a := txn.Amount.String()
		amount = &a
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (
			id, fingerprint, amount, sender, receiver, category, original_text, captured_at, source
		) VALUES ($1, $2, $3::text::numeric, $4, $5, $6, $7, $8, $9)`,
		txn.ID, txn.Fingerprint, amount, txn.Sender, txn.Receiver,
		txn.Category, txn.OriginalText, txn.Timestamp, txn.Source,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("transaction %s already exists: %w", txn.ID, err)
		}
		return nil, fmt.Errorf("inserting transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return txn, nil
}

// Get implements api.Store.
func (s *Store) Get(ctx context.Context, id string) (*api.StoredTransaction, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+columns+` FROM transactions WHERE id = $1`, id)
	txn, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
		LIMIT $1`, sqlLimit(limit))
}

// Pending implements api.Store.
func (s *Store) Pending(ctx context.Context, limit int) ([]*api.StoredTransaction, error) {
	return s.query(ctx, `
		SELECT `+columns+` FROM transactions
		WHERE NOT synced
		ORDER BY captured_at, seq
		LIMIT $1`, sqlLimit(limit))
}

// MarkSynced implements api.Store.
func (s *Store) MarkSynced(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE transactions SET synced = TRUE, synced_at = NOW()
		WHERE id = ANY($1) AND NOT synced`, ids)
	if err != nil {
		return fmt.Errorf("marking transactions synced: %w", err)
	}

	s.logger.Debug("marked transactions synced", "requested", len(ids), "updated", tag.RowsAffected())
	return nil
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
		s.logger.Info("closed PostgreSQL connection pool")
	}
	return nil
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]*api.StoredTransaction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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

func scanTransaction(row pgx.Row) (*api.StoredTransaction, error) {
	var (
		txn    api.StoredTransaction
		amount *string
	)
	err := row.Scan(
		&txn.ID, &txn.Fingerprint, &amount, &txn.Sender, &txn.Receiver,
		&txn.Category, &txn.OriginalText, &txn.Timestamp, &txn.Source, &txn.Synced, &txn.SyncedAt,
	)
	if err != nil {
		return nil, err
	}

	if amount != nil {
		a, err := decimal.NewFromString(*amount)
		if err != nil {
			return nil, fmt.Errorf("parsing amount %q: %w", *amount, err)
		}
		txn.Amount = &a
	}
	txn.Timestamp = txn.Timestamp.UTC()
	return &txn, nil
}

// sqlLimit maps "no limit" to NULL, which PostgreSQL treats as LIMIT ALL.
func sqlLimit(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}
