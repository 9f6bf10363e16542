// Package snapshot persists periodic analytics stats snapshots to
// PostgreSQL so the aggregate view survives restarts.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/postgres"
)

// schemaName keys this store's rows in schema_migrations.
const schemaName = "analytics_snapshots"

// Schema is the numbered migrations for the snapshot table. Append only.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS analytics_snapshots (
		id          BIGSERIAL PRIMARY KEY,
		data        JSONB NOT NULL,
		captured_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analytics_snapshots_captured_at ON analytics_snapshots (captured_at DESC)`,
}

// Store keeps analytics snapshots in Postgres, trimming the table to the
// newest retain rows on every save.
type Store struct {
	db     *postgres.Client
	retain int
	logger *slog.Logger
}

// NewStore returns a store keeping at most retain snapshots. A retain of
// zero or less keeps everything.
func NewStore(db *postgres.Client, retain int) *Store {
	return &Store{
		db:     db,
		retain: retain,
		logger: slog.Default().With("component", "analytics-snapshots"),
	}
}

// Migrate creates the schema if missing.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.Migrate(ctx, schemaName, Schema...)
}

// SaveSnapshot inserts stats and prunes rows beyond the retention limit in
// the same transaction.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	capturedAt := stats.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	var pruned int64
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO analytics_snapshots (data, captured_at) VALUES ($1, $2)`,
			data, capturedAt,
		); err != nil {
			return fmt.Errorf("inserting snapshot: %w", err)
		}
		if s.retain <= 0 {
			return nil
		}
		res, err := tx.ExecContext(ctx, pruneQuery, s.retain)
		if err != nil {
			return fmt.Errorf("pruning snapshots: %w", err)
		}
		pruned, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}
	s.logger.Debug("analytics snapshot saved",
		"total_documents", stats.TotalDocuments,
		"pruned", pruned,
	)
	return nil
}

// pruneQuery deletes every row older than the $1-th newest.
const pruneQuery = `DELETE FROM analytics_snapshots WHERE id IN (
	SELECT id FROM analytics_snapshots ORDER BY captured_at DESC, id DESC OFFSET $1
)`

// LatestSnapshot returns nil, nil when nothing has been saved yet.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.AggregatedStats, error) {
	var data []byte
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	stats, err := decode(data)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListSnapshots returns up to limit snapshots, newest first. Rows that no
// longer decode are skipped.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.AggregatedStats, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY captured_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]analytics.AggregatedStats, 0, limit)
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		stats, err := decode(data)
		if err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		snapshots = append(snapshots, stats)
	}
	return snapshots, rows.Err()
}

func decode(data []byte) (analytics.AggregatedStats, error) {
	var stats analytics.AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return stats, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return stats, nil
}
