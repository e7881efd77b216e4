// Package postgres provides an optional relational backend for the
// broadcast/writer DB trait (pkg/storage.BroadcastStore), grounded on the
// teacher's pkg/database.Client connection-pool/functional-options pattern
// and pkg/database.ProofRepository's query shape. Every other storage trait
// in this repository is satisfied by pkg/storage's generic KV interface;
// this package exists because an append-only, monotonically-keyed log of L1
// broadcast transactions is a natural fit for a relational table with an
// auto-incrementing primary key, and the teacher already demonstrates that
// exact pattern for its own append-only proof records.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Config configures a BroadcastStore's underlying connection pool.
type Config struct {
	DatabaseURL  string
	MaxOpenConns int
	MaxIdleConns int
	ConnMaxIdle  time.Duration
	ConnMaxLife  time.Duration
}

// ClientOption is a functional option for configuring a BroadcastStore,
// mirroring pkg/database.ClientOption.
type ClientOption func(*BroadcastStore)

// WithLogger sets a custom logger.
func WithLogger(logger *log.Logger) ClientOption {
	return func(s *BroadcastStore) { s.logger = logger }
}

// BroadcastStore is a Postgres-backed implementation of the broadcast/writer
// DB trait: L1 tx entries keyed by monotonic u64, plus a last-key accessor.
type BroadcastStore struct {
	db     *sql.DB
	logger *log.Logger
}

// NewBroadcastStore opens a connection pool against cfg.DatabaseURL and
// verifies connectivity, the way pkg/database.NewClient does.
func NewBroadcastStore(cfg Config, opts ...ClientOption) (*BroadcastStore, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("postgres: database URL cannot be empty")
	}

	store := &BroadcastStore{
		logger: log.New(log.Writer(), "[BroadcastStore] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(store)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxIdle > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdle)
	}
	if cfg.ConnMaxLife > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLife)
	}

	store.db = db

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: failed to ping database: %w", err)
	}

	return store, nil
}

// Close closes the underlying connection pool.
func (s *BroadcastStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// broadcastEntriesSchema is applied by EnsureSchema;
// it is documented here since this package owns the table's shape.
//
//	CREATE TABLE IF NOT EXISTS broadcast_entries (
//		entry_key BIGSERIAL PRIMARY KEY,
//		payload   BYTEA NOT NULL,
//		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
const broadcastEntriesSchema = `
CREATE TABLE IF NOT EXISTS broadcast_entries (
	entry_key BIGSERIAL PRIMARY KEY,
	payload   BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// EnsureSchema creates the broadcast_entries table if it does not exist.
func (s *BroadcastStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, broadcastEntriesSchema); err != nil {
		return fmt.Errorf("postgres: failed to ensure schema: %w", err)
	}
	return nil
}

// Append inserts entry and returns its assigned monotonic key.
func (s *BroadcastStore) Append(ctx context.Context, entry []byte) (uint64, error) {
	var key int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO broadcast_entries (payload) VALUES ($1) RETURNING entry_key`,
		entry,
	).Scan(&key)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to append broadcast entry: %w", err)
	}
	return uint64(key), nil
}

// Entry loads the payload stored at key.
func (s *BroadcastStore) Entry(ctx context.Context, key uint64) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM broadcast_entries WHERE entry_key = $1`,
		int64(key),
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("postgres: no broadcast entry at key %d", key)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load broadcast entry: %w", err)
	}
	return payload, nil
}

// LastKey returns the most recently assigned entry key.
func (s *BroadcastStore) LastKey(ctx context.Context) (uint64, error) {
	var key sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT max(entry_key) FROM broadcast_entries`).Scan(&key)
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to load last broadcast key: %w", err)
	}
	if !key.Valid {
		return 0, fmt.Errorf("postgres: no broadcast entries yet")
	}
	return uint64(key.Int64), nil
}
