// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/probekit/recipecrawl/internal/discovery"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// StoreConfig controls the Postgres connection pool used for permalink rows.
type StoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type poolIface interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// PermalinkStore writes discovered permalink rows into Postgres.
type PermalinkStore struct {
	pool  poolIface
	table string
}

// NewPermalinkStore creates a Postgres-backed PermalinkStore using the provided config.
func NewPermalinkStore(ctx context.Context, cfg StoreConfig) (*PermalinkStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "permalinks"
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PermalinkStore{pool: pool, table: table}, nil
}

// NewPermalinkStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPermalinkStoreWithPool(pool poolIface, table string) (*PermalinkStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "permalinks"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PermalinkStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *PermalinkStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SavePermalink inserts a permalink row. Re-discovering the same resource
// within a run is treated as a no-op.
func (s *PermalinkStore) SavePermalink(ctx context.Context, rec discovery.PermalinkRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("permalink store is not configured")
	}
	if rec.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	site,
	resource_id,
	url,
	status_code,
	discovered_at
) VALUES (
	$1,$2,$3,$4,$5,$6
)
ON CONFLICT (run_id, resource_id) DO NOTHING`, s.table)

	args := []any{
		rec.RunID,
		rec.Site,
		rec.ResourceID,
		rec.URL,
		rec.StatusCode,
		rec.DiscoveredAt,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert permalink: %w", err)
	}
	return nil
}

// ListPermalinks returns all permalink rows recorded for a run, in resource
// ID order.
func (s *PermalinkStore) ListPermalinks(ctx context.Context, runID string) ([]discovery.PermalinkRecord, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("permalink store is not configured")
	}
	query := fmt.Sprintf(`
SELECT run_id, site, resource_id, url, status_code, discovered_at
FROM %s
WHERE run_id = $1
ORDER BY resource_id`, s.table)

	rows, err := s.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query permalinks: %w", err)
	}
	defer rows.Close()

	var out []discovery.PermalinkRecord
	for rows.Next() {
		var rec discovery.PermalinkRecord
		if err := rows.Scan(&rec.RunID, &rec.Site, &rec.ResourceID, &rec.URL, &rec.StatusCode, &rec.DiscoveredAt); err != nil {
			return nil, fmt.Errorf("scan permalink: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read permalinks: %w", err)
	}
	return out, nil
}
