package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

// RedisClient is the slice of redis used by the registry cache.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetEx(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Config carries the connection settings for the registry database and
// the admin endpoint used to create clinic databases.
type Config struct {
	Host      string
	Port      int
	User      string
	Password  string
	Database  string // registry database name
	AdminDB   string // maintenance database for CREATE DATABASE, usually "postgres"
	RedisAddr string
}

// DSN renders the settings as a pgx keyword DSN for the given database.
func (c Config) DSN(database string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, database)
}

// Registry is the handle to the central registry database plus its cache.
// Per-clinic databases are reached through Router, never through this
// handle.
type Registry struct {
	db    *sql.DB
	cache RedisClient
	cfg   Config
}

// Open connects to the registry database and, when configured, its cache.
func Open(cfg Config) (*Registry, error) {
	pgcfg, err := pgx.ParseConfig(cfg.DSN(cfg.Database))
	if err != nil {
		return nil, err
	}

	db := stdlib.OpenDB(*pgcfg)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, classifyConnErr(err)
	}

	var cache RedisClient
	if cfg.RedisAddr != "" {
		cache = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	return &Registry{db: db, cache: cache, cfg: cfg}, nil
}

// NewRegistry wraps an existing handle; used by tests with sqlmock.
func NewRegistry(db *sql.DB, cache RedisClient, cfg Config) *Registry {
	return &Registry{db: db, cache: cache, cfg: cfg}
}

// DB exposes the underlying registry handle for transaction control.
func (r *Registry) DB() *sql.DB {
	return r.db
}

// Close releases the registry handle and the cache connection.
func (r *Registry) Close() error {
	if r.cache != nil {
		r.cache.Close()
	}
	return r.db.Close()
}

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Store methods that must run inside a caller-owned transaction take a
// Querier instead of reaching for r.db.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
