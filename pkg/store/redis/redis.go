// Package redis implements an api.Store on Redis.
//
// Layout, for the default "txnotify" prefix:
//
//	txnotify:txn:<id>          JSON of the stored transaction
//	txnotify:timeline          sorted set of all ids, scored by capture time
//	txnotify:pending           sorted set of unsynced ids, scored by capture time
//	txnotify:fp:<fingerprint>  sorted set of ids sharing a text, scored by capture time
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis"

	"github.com/ArionMiles/txnotify/pkg/api"
	"github.com/ArionMiles/txnotify/pkg/store"
)

// DefaultPrefix namespaces all keys written by the store.
const DefaultPrefix = "txnotify"

const maxTxRetries = 5

// Config holds the Redis store configuration.
type Config struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces the keys; DefaultPrefix when empty.
	Prefix string
	// DedupeWindow rejects repeated texts captured within the window.
	DedupeWindow time.Duration
}

// Store persists transactions in Redis.
type Store struct {
	client *goredis.Client
	prefix string
	window time.Duration
	logger *slog.Logger
}

// New connects to Redis.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping().Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr, err)
	}

	logger.Info("connected to Redis", "addr", cfg.Addr, "db", cfg.DB, "prefix", cfg.Prefix)
	return &Store{
		client: client,
		prefix: cfg.Prefix,
		window: cfg.DedupeWindow,
		logger: logger,
	}, nil
}

func (s *Store) keyTxn(id string) string {
	return fmt.Sprintf("%s:txn:%s", s.prefix, id)
}

func (s *Store) keyTimeline() string {
	return s.prefix + ":timeline"
}

func (s *Store) keyPending() string {
	return s.prefix + ":pending"
}

func (s *Store) keyFingerprint(fp string) string {
	return fmt.Sprintf("%s:fp:%s", s.prefix, fp)
}

// score orders members by capture time in microseconds, which float64 holds exactly.
func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

// Add implements api.Store. The fingerprint key is watched so that two
// concurrent adds of the same text cannot both pass the window check.
func (s *Store) Add(ctx context.Context, rec api.TransactionRecord, source string) (*api.StoredTransaction, error) {
	txn := store.NewStored(rec, source)
	data, err := json.Marshal(txn)
	if err != nil {
		return nil, fmt.Errorf("marshaling transaction: %w", err)
	}

	client := s.client.WithContext(ctx)
	fpKey := s.keyFingerprint(txn.Fingerprint)
	member := goredis.Z{Score: score(txn.Timestamp), Member: txn.ID}

	add := func(tx *goredis.Tx) error {
		if s.window > 0 {
			lo := strconv.FormatInt(txn.Timestamp.Add(-s.window).UnixMicro(), 10)
			hi := strconv.FormatInt(txn.Timestamp.Add(s.window).UnixMicro(), 10)
			n, err := tx.ZCount(fpKey, "("+lo, "("+hi).Result()
			if err != nil {
				return err
			}
			if n > 0 {
				return api.ErrDuplicate
			}
		}

		_, err := tx.Pipelined(func(pipe goredis.Pipeliner) error {
			pipe.Set(s.keyTxn(txn.ID), data, 0)
			pipe.ZAdd(s.keyTimeline(), member)
			pipe.ZAdd(s.keyPending(), member)
			pipe.ZAdd(fpKey, member)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err = client.Watch(add, fpKey)
		if err != goredis.TxFailedErr {
			break
		}
	}
	if err != nil {
		if errors.Is(err, api.ErrDuplicate) {
			return nil, err
		}
		return nil, fmt.Errorf("adding transaction: %w", err)
	}
	return txn, nil
}

// Get implements api.Store.
func (s *Store) Get(ctx context.Context, id string) (*api.StoredTransaction, error) {
	data, err := s.client.WithContext(ctx).Get(s.keyTxn(id)).Bytes()
	if err != nil {
		if err == goredis.Nil {
			return nil, api.ErrNotFound
		}
		return nil, fmt.Errorf("getting transaction %s: %w", id, err)
	}
	return decode(data)
}

// List implements api.Store.
func (s *Store) List(ctx context.Context, limit int) ([]*api.StoredTransaction, error) {
	client := s.client.WithContext(ctx)
	ids, err := client.ZRevRange(s.keyTimeline(), 0, stop(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	return s.load(client, ids)
}

// Pending implements api.Store.
func (s *Store) Pending(ctx context.Context, limit int) ([]*api.StoredTransaction, error) {
	client := s.client.WithContext(ctx)
	ids, err := client.ZRange(s.keyPending(), 0, stop(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("listing pending transactions: %w", err)
	}
	return s.load(client, ids)
}

// MarkSynced implements api.Store.
func (s *Store) MarkSynced(ctx context.Context, ids ...string) error {
	client := s.client.WithContext(ctx)
	now := time.Now().UTC()

	for _, id := range ids {
		txn, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, api.ErrNotFound) {
				continue
			}
			return err
		}
		if txn.Synced {
			continue
		}

		txn.Synced = true
		txn.SyncedAt = &now
		data, err := json.Marshal(txn)
		if err != nil {
			return fmt.Errorf("marshaling transaction: %w", err)
		}

		_, err = client.TxPipelined(func(pipe goredis.Pipeliner) error {
			pipe.Set(s.keyTxn(id), data, 0)
			pipe.ZRem(s.keyPending(), id)
			return nil
		})
		if err != nil {
			return fmt.Errorf("marking %s synced: %w", id, err)
		}
	}
	return nil
}

// Close implements api.Store.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) load(client *goredis.Client, ids []string) ([]*api.StoredTransaction, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, s.keyTxn(id))
	}

	values, err := client.MGet(keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("loading transactions: %w", err)
	}

	txns := make([]*api.StoredTransaction, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			s.logger.Warn("indexed transaction is missing", "id", ids[i])
			continue
		}
		txn, err := decode([]byte(raw))
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func decode(data []byte) (*api.StoredTransaction, error) {
	var txn api.StoredTransaction
	if err := json.Unmarshal(data, &txn); err != nil {
		return nil, fmt.Errorf("decoding transaction: %w", err)
	}
	return &txn, nil
}

// stop converts a limit into the inclusive stop index of a range query.
func stop(limit int) int64 {
	if limit <= 0 {
		return -1
	}
	return int64(limit - 1)
}
