// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crawjud/pje-pipeline/internal/pje"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ProcessStoreConfig controls the Postgres connection pool.
type ProcessStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// ConnectTimeout bounds the retried connection attempts at boot
	// (default 1 minute).
	ConnectTimeout time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// ProcessStore persists resolved process documents in Postgres, keyed
// uniquely by process number. Re-saving overwrites the previous row.
type ProcessStore struct {
	pool  pgxPool
	table string
}

// NewProcessStore connects to Postgres, retrying with exponential backoff
// so a briefly unavailable database does not fail the whole boot.
func NewProcessStore(ctx context.Context, cfg ProcessStoreConfig) (*ProcessStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "processos"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = cfg.ConnectTimeout
	if expBackoff.MaxElapsedTime <= 0 {
		expBackoff.MaxElapsedTime = time.Minute
	}

	var pool *pgxpool.Pool
	connect := func() error {
		var err error
		pool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return err
		}
		return nil
	}
	if err := backoff.Retry(connect, backoff.WithContext(expBackoff, ctx)); err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ProcessStore{pool: pool, table: table}, nil
}

// NewProcessStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewProcessStoreWithPool(pool pgxPool, table string) (*ProcessStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "processos"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ProcessStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ProcessStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveProcess upserts the entry's process document.
func (s *ProcessStore) SaveProcess(ctx context.Context, entry pje.CachedEntry) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("process store is not configured")
	}
	if entry.ProcessNumber == "" {
		return fmt.Errorf("process number is required")
	}
	dataJSON, err := json.Marshal(entry.ProcessData)
	if err != nil {
		return fmt.Errorf("marshal process data: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (process_number, execution_id, process_data, saved_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (process_number) DO UPDATE
SET execution_id = EXCLUDED.execution_id,
    process_data = EXCLUDED.process_data,
    saved_at = EXCLUDED.saved_at`, s.table)

	if _, err := s.pool.Exec(ctx, query, entry.ProcessNumber, entry.ExecutionID, dataJSON, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert process: %w", err)
	}
	return nil
}

// GetProcess loads the cached entry for a process number.
func (s *ProcessStore) GetProcess(ctx context.Context, processNumber string) (pje.CachedEntry, error) {
	if s == nil || s.pool == nil {
		return pje.CachedEntry{}, fmt.Errorf("process store is not configured")
	}
	query := fmt.Sprintf(
		`SELECT execution_id, process_data FROM %s WHERE process_number = $1`, s.table)

	var executionID string
	var dataJSON []byte
	err := s.pool.QueryRow(ctx, query, processNumber).Scan(&executionID, &dataJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pje.CachedEntry{}, pje.ErrEntryNotCached
		}
		return pje.CachedEntry{}, fmt.Errorf("select process: %w", err)
	}
	var data map[string]any
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &data); err != nil {
			return pje.CachedEntry{}, fmt.Errorf("unmarshal process data: %w", err)
		}
	}
	return pje.CachedEntry{
		ProcessNumber: processNumber,
		ExecutionID:   executionID,
		ProcessData:   data,
	}, nil
}
