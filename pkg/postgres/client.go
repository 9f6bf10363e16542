// Package postgres opens the lib/pq connection pool used by the report and
// snapshot stores and applies their schemas as numbered migrations.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/resilience"
	_ "github.com/lib/pq"
)

const migrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
	component  TEXT        NOT NULL,
	version    INTEGER     NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (component, version)
)`

type Client struct {
	DB     *sql.DB
	logger *slog.Logger
}

// New opens the pool described by cfg and waits for the server to accept
// connections, retrying while a freshly started database comes up.
func New(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	policy := resilience.Policy{Attempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 4 * time.Second}
	if err := resilience.Retry(ctx, "postgres ping", policy, db.PingContext); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return NewFromDB(db), nil
}

// NewFromDB wraps an already opened handle.
func NewFromDB(db *sql.DB) *Client {
	return &Client{DB: db, logger: slog.Default().With("component", "postgres")}
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Migrate applies the statements of component that have not run yet.
// Statement i is version i+1; applied versions are recorded in
// schema_migrations, so new statements must only ever be appended. An
// advisory lock serialises replicas migrating the same component.
func (c *Client) Migrate(ctx context.Context, component string, statements ...string) error {
	if _, err := c.DB.ExecContext(ctx, migrationsTable); err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}
	return c.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(component)); err != nil {
			return fmt.Errorf("locking %s migrations: %w", component, err)
		}
		var current int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM schema_migrations WHERE component = $1`,
			component,
		).Scan(&current); err != nil {
			return fmt.Errorf("reading %s schema version: %w", component, err)
		}
		pending := pendingStatements(statements, current)
		for i, stmt := range pending {
			version := current + i + 1
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("%s migration %d: %w", component, version, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (component, version) VALUES ($1, $2)`,
				component, version,
			); err != nil {
				return fmt.Errorf("recording %s migration %d: %w", component, version, err)
			}
		}
		if len(pending) > 0 {
			c.logger.Info("schema migrated", "schema", component, "from", current, "to", current+len(pending))
		}
		return nil
	})
}

// InTx runs fn in a transaction, committing when it returns nil and rolling
// back on error or panic.
func (c *Client) InTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// pendingStatements returns the statements after the first applied ones.
func pendingStatements(statements []string, applied int) []string {
	if applied >= len(statements) {
		return nil
	}
	if applied < 0 {
		applied = 0
	}
	return statements[applied:]
}

func lockKey(component string) int64 {
	h := fnv.New64a()
	h.Write([]byte("schema:" + component))
	return int64(h.Sum64())
}
