package builtin

import (
	"context"

	"github.com/ArionMiles/txnotify/internal/plugins"
	"github.com/ArionMiles/txnotify/pkg/api"
	"github.com/ArionMiles/txnotify/pkg/store/jsonfile"
	"github.com/ArionMiles/txnotify/pkg/store/memory"
	"github.com/ArionMiles/txnotify/pkg/store/postgres"
	"github.com/ArionMiles/txnotify/pkg/store/redis"
	"github.com/ArionMiles/txnotify/pkg/store/sqlite"
)

// MemoryStore keeps transactions for the lifetime of the process.
type MemoryStore struct{}

func (p *MemoryStore) Name() string        { return "memory" }
func (p *MemoryStore) Description() string { return "Keep transactions in memory (lost on exit)" }

func (p *MemoryStore) NewStore(_ context.Context, deps plugins.Deps) (api.Store, error) {
	return memory.New(deps.Config.DedupeWindow), nil
}

// JSONStore keeps transactions in a JSON file.
type JSONStore struct{}

func (p *JSONStore) Name() string        { return "json" }
func (p *JSONStore) Description() string { return "Keep transactions in a JSON file" }

func (p *JSONStore) NewStore(_ context.Context, deps plugins.Deps) (api.Store, error) {
	return jsonfile.New(jsonfile.Config{
		FilePath:     deps.Config.StorePath,
		DedupeWindow: deps.Config.DedupeWindow,
	}, logger(deps, "store", p.Name()))
}

// SQLiteStore keeps transactions in a SQLite database.
type SQLiteStore struct{}

func (p *SQLiteStore) Name() string        { return "sqlite" }
func (p *SQLiteStore) Description() string { return "Keep transactions in a SQLite database" }

func (p *SQLiteStore) NewStore(_ context.Context, deps plugins.Deps) (api.Store, error) {
	return sqlite.New(sqlite.Config{
		Path:         deps.Config.StorePath,
		DedupeWindow: deps.Config.DedupeWindow,
	}, logger(deps, "store", p.Name()))
}

// PostgresStore keeps transactions in PostgreSQL.
type PostgresStore struct{}

func (p *PostgresStore) Name() string        { return "postgres" }
func (p *PostgresStore) Description() string { return "Keep transactions in PostgreSQL" }

func (p *PostgresStore) NewStore(ctx context.Context, deps plugins.Deps) (api.Store, error) {
	pg := deps.Config.Postgres
	return postgres.New(ctx, postgres.Config{
		DSN:          pg.DSN,
		Host:         pg.Host,
		Port:         pg.Port,
		Database:     pg.Database,
		User:         pg.User,
		Password:     pg.Password,
		SSLMode:      pg.SSLMode,
		DedupeWindow: deps.Config.DedupeWindow,
	}, logger(deps, "store", p.Name()))
}

// RedisStore keeps transactions in Redis.
type RedisStore struct{}

func (p *RedisStore) Name() string        { return "redis" }
func (p *RedisStore) Description() string { return "Keep transactions in Redis" }

func (p *RedisStore) NewStore(_ context.Context, deps plugins.Deps) (api.Store, error) {
	rc := deps.Config.Redis
	return redis.New(redis.Config{
		Addr:         rc.Addr,
		Password:     rc.Password,
		DB:           rc.DB,
		DedupeWindow: deps.Config.DedupeWindow,
	}, logger(deps, "store", p.Name()))
}
