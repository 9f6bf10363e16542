// Package analysis runs the text analytics toolkit over whole documents,
// producing reports and ranking related documents by similarity.
package analysis

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/textanalytics"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/tracing"
	"golang.org/x/sync/errgroup"
)

// Sources label where an analysed document came from.
const (
	SourceAPI    = "api"
	SourceUpload = "upload"
	SourceURL    = "url"
	SourceKafka  = "kafka"
	SourceCLI    = "cli"
)

// Document is the input to Analyze.
type Document struct {
	ID          string
	Title       string
	Content     string
	ContentType string
	Source      string
}

// Report is the full analysis result for a document.
type Report struct {
	DocumentID   string                     `json:"document_id"`
	Title        string                     `json:"title"`
	ContentType  string                     `json:"content_type"`
	ContentHash  string                     `json:"content_hash"`
	Language     textanalytics.Language     `json:"language"`
	LanguageName string                     `json:"language_name"`
	Date         *time.Time                 `json:"date,omitempty"`
	Entities     textanalytics.EntityBundle `json:"entities"`
	Keywords     []string                   `json:"keywords"`
	Summary      string                     `json:"summary"`
	WordCount    int                        `json:"word_count"`
	AnalyzedAt   time.Time                  `json:"analyzed_at"`
}

// Options sizes the summary and keyword list.
type Options struct {
	SummaryLength int
	KeywordCount  int
	Workers       int
}

// Candidate is a document considered by Related.
type Candidate struct {
	ID      string `json:"id"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
}

// Match is a scored candidate returned by Related.
type Match struct {
	ID    string  `json:"id"`
	Title string  `json:"title,omitempty"`
	Score float64 `json:"score"`
}

// Analyzer runs the toolkit and records metrics for every report.
type Analyzer struct {
	opts    Options
	metrics *metrics.Metrics
	now     func() time.Time
	logger  *slog.Logger
}

// New creates an Analyzer. m may be nil.
func New(opts Options, m *metrics.Metrics) *Analyzer {
	if opts.SummaryLength <= 0 {
		opts.SummaryLength = textanalytics.DefaultSummaryLength
	}
	if opts.KeywordCount <= 0 {
		opts.KeywordCount = textanalytics.DefaultKeywordCount
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Analyzer{
		opts:    opts,
		metrics: m,
		now:     time.Now,
		logger:  slog.Default().With("component", "analyzer"),
	}
}

// Options returns the effective options.
func (a *Analyzer) Options() Options {
	return a.opts
}

// Analyze builds a report for doc. Each toolkit call runs in its own child
// span when ctx carries one.
func (a *Analyzer) Analyze(ctx context.Context, doc Document) *Report {
	start := time.Now()
	report := &Report{
		DocumentID:  doc.ID,
		Title:       doc.Title,
		ContentType: doc.ContentType,
		ContentHash: ingestion.ContentHash(doc.Content),
		WordCount:   ingestion.WordCount(doc.Content),
	}
	if report.ContentType == "" {
		report.ContentType = ingestion.ContentTypeText
	}

	tracing.Step(ctx, "language", func() {
		report.Language = textanalytics.DetectLanguage(doc.Content)
		report.LanguageName = report.Language.Name()
	})
	tracing.Step(ctx, "date", func() {
		if d, ok := textanalytics.ExtractDate(doc.Content); ok {
			report.Date = &d
		}
	})
	tracing.Step(ctx, "entities", func() {
		report.Entities = textanalytics.ExtractEntities(doc.Content)
	})
	tracing.Step(ctx, "keywords", func() {
		report.Keywords = textanalytics.FindKeywords(doc.Content, a.opts.KeywordCount)
	})
	tracing.Step(ctx, "summary", func() {
		report.Summary = textanalytics.Summarize(doc.Content, a.opts.SummaryLength)
	})
	report.AnalyzedAt = a.now().UTC()

	a.record(doc.Source, report, time.Since(start))
	return report
}

func (a *Analyzer) record(source string, report *Report, elapsed time.Duration) {
	if source == "" {
		source = SourceAPI
	}
	a.logger.Debug("document analysed",
		"doc_id", report.DocumentID,
		"source", source,
		"language", report.Language,
		"keywords", len(report.Keywords),
		"elapsed_us", elapsed.Microseconds(),
	)
	if a.metrics == nil {
		return
	}
	a.metrics.DocsAnalyzedTotal.WithLabelValues(source).Inc()
	a.metrics.AnalysisDuration.WithLabelValues(source).Observe(elapsed.Seconds())
	a.metrics.LanguagesDetected.WithLabelValues(string(report.Language)).Inc()
	e := report.Entities
	a.metrics.EntitiesExtracted.WithLabelValues(string(textanalytics.KindPerson)).Add(float64(len(e.People)))
	a.metrics.EntitiesExtracted.WithLabelValues(string(textanalytics.KindOrganization)).Add(float64(len(e.Organizations)))
	a.metrics.EntitiesExtracted.WithLabelValues(string(textanalytics.KindLocation)).Add(float64(len(e.Locations)))
}

// Related scores every candidate against target and returns those scoring at
// least minScore, highest first. Ties keep input order. limit <= 0 returns
// all matches.
func (a *Analyzer) Related(ctx context.Context, target string, candidates []Candidate, minScore float64, limit int) ([]Match, error) {
	scores := make([]float64, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Workers)
	for i := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scores[i] = textanalytics.Similarity(target, candidates[i].Content)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(candidates))
	for i, c := range candidates {
		if scores[i] < minScore {
			continue
		}
		matches = append(matches, Match{ID: c.ID, Title: c.Title, Score: scores[i]})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}
