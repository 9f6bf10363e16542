// Package store persists analysis reports in PostgreSQL.
//
// Reports live in the document_analyses table. The full report is kept as
// JSONB next to a few indexed columns used for listing.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analysis"
	apperrors "github.com/Adithya-Monish-Kumar-K/sentinel/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/resilience"
	"github.com/lib/pq"
)

// schemaName keys this store's rows in schema_migrations.
const schemaName = "analysis_reports"

// Schema is the numbered migrations for the reports table. Append only.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS document_analyses (
		document_id  TEXT PRIMARY KEY,
		title        TEXT NOT NULL DEFAULT '',
		content_type TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		language     TEXT NOT NULL,
		doc_date     DATE,
		report       JSONB NOT NULL,
		analyzed_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_document_analyses_hash ON document_analyses (content_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_document_analyses_analyzed_at ON document_analyses (analyzed_at DESC)`,
}

const upsertReport = `
INSERT INTO document_analyses (document_id, title, content_type, content_hash, language, doc_date, report, analyzed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (document_id) DO UPDATE SET
	title = EXCLUDED.title,
	content_type = EXCLUDED.content_type,
	content_hash = EXCLUDED.content_hash,
	language = EXCLUDED.language,
	doc_date = EXCLUDED.doc_date,
	report = EXCLUDED.report,
	analyzed_at = EXCLUDED.analyzed_at`

// Store reads and writes reports.
type Store struct {
	db      *postgres.Client
	timeout time.Duration
	retry   resilience.Policy
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a Store. Every operation is bounded by timeout. m may be nil.
func New(db *postgres.Client, timeout time.Duration, m *metrics.Metrics) *Store {
	s := &Store{
		db:      db,
		timeout: timeout,
		metrics: m,
		logger:  slog.Default().With("component", "report-store"),
	}
	s.retry = resilience.Policy{
		Attempts:  3,
		BaseDelay: 50 * time.Millisecond,
		MaxDelay:  time.Second,
		Retryable: isTransient,
		OnRetry: func(int, error) {
			if s.metrics != nil {
				s.metrics.StoreOpsTotal.WithLabelValues("save", "retry").Inc()
			}
		},
	}
	return s
}

// Migrate creates the schema if missing.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.Migrate(ctx, schemaName, Schema...)
}

// Save upserts report, retrying transient failures.
func (s *Store) Save(ctx context.Context, report *analysis.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	err = resilience.WithTimeout(ctx, s.timeout, "store.save", func(ctx context.Context) error {
		return resilience.Retry(ctx, "store.save", s.retry, func(ctx context.Context) error {
			return s.db.InTx(ctx, func(tx *sql.Tx) error {
				_, err := tx.ExecContext(ctx, upsertReport,
					report.DocumentID,
					report.Title,
					report.ContentType,
					report.ContentHash,
					string(report.Language),
					nullableDate(report.Date),
					data,
					report.AnalyzedAt,
				)
				return err
			})
		})
	})
	s.observe("save", err)
	if err != nil {
		return fmt.Errorf("saving report %s: %w", report.DocumentID, err)
	}
	s.logger.Debug("report saved", "doc_id", report.DocumentID)
	return nil
}

// Get loads the report for id.
func (s *Store) Get(ctx context.Context, id string) (*analysis.Report, error) {
	data, err := resilience.Call(ctx, s.timeout, "store.get", func(ctx context.Context) ([]byte, error) {
		var data []byte
		err := s.db.DB.QueryRowContext(ctx,
			`SELECT report FROM document_analyses WHERE document_id = $1`, id,
		).Scan(&data)
		return data, err
	})
	if errors.Is(err, sql.ErrNoRows) {
		s.observe("get", nil)
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, "no analysis for document %s", id)
	}
	s.observe("get", err)
	if err != nil {
		return nil, fmt.Errorf("loading report %s: %w", id, err)
	}
	return decodeReport(data)
}

// List returns reports for ids in the order given, skipping unknown ids.
// With no ids it returns the most recent reports. limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, ids []string, limit int) ([]*analysis.Report, error) {
	reports, err := resilience.Call(ctx, s.timeout, "store.list", func(ctx context.Context) ([]*analysis.Report, error) {
		var (
			rows *sql.Rows
			err  error
		)
		if len(ids) > 0 {
			rows, err = s.db.DB.QueryContext(ctx,
				`SELECT report FROM document_analyses WHERE document_id = ANY($1)`, pq.Array(ids))
		} else {
			query := `SELECT report FROM document_analyses ORDER BY analyzed_at DESC`
			args := []any{}
			if limit > 0 {
				query += ` LIMIT $1`
				args = append(args, limit)
			}
			rows, err = s.db.DB.QueryContext(ctx, query, args...)
		}
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		var reports []*analysis.Report
		for rows.Next() {
			var data []byte
			if err := rows.Scan(&data); err != nil {
				return nil, err
			}
			r, err := decodeReport(data)
			if err != nil {
				return nil, err
			}
			reports = append(reports, r)
		}
		return reports, rows.Err()
	})
	s.observe("list", err)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	if len(ids) > 0 {
		reports = orderByIDs(reports, ids)
		if limit > 0 && len(reports) > limit {
			reports = reports[:limit]
		}
	}
	if reports == nil {
		reports = []*analysis.Report{}
	}
	return reports, nil
}

func (s *Store) observe(op string, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.StoreOpsTotal.WithLabelValues(op, status).Inc()
}

func decodeReport(data []byte) (*analysis.Report, error) {
	var r analysis.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding stored report: %w", err)
	}
	return &r, nil
}

// orderByIDs arranges reports to follow ids, dropping duplicates.
func orderByIDs(reports []*analysis.Report, ids []string) []*analysis.Report {
	byID := make(map[string]*analysis.Report, len(reports))
	for _, r := range reports {
		byID[r.DocumentID] = r
	}
	ordered := make([]*analysis.Report, 0, len(reports))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if r, ok := byID[id]; ok && !seen[id] {
			ordered = append(ordered, r)
			seen[id] = true
		}
	}
	return ordered
}

func nullableDate(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// isTransient reports whether a failed write is worth retrying. Context
// errors, missing rows and constraint violations are final.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrNoRows) {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "40", "53", "57":
			return true
		default:
			return false
		}
	}
	return true
}
