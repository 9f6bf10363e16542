package analysis

import (
	"context"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/textanalytics"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnalyzer(t *testing.T) (*Analyzer, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	a := New(Options{SummaryLength: 40, KeywordCount: 3, Workers: 2}, m)
	a.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	return a, m
}

func TestAnalyzeBuildsReport(t *testing.T) {
	a, m := newTestAnalyzer(t)
	content := "John Smith joined Acme Corp on 2024-03-15. The meeting covered budget budget planning and budget review."

	r := a.Analyze(context.Background(), Document{ID: "doc-1", Title: "Memo", Content: content, Source: SourceAPI})

	assert.Equal(t, "doc-1", r.DocumentID)
	assert.Equal(t, "text", r.ContentType)
	assert.Equal(t, textanalytics.English, r.Language)
	assert.Equal(t, "English", r.LanguageName)
	require.NotNil(t, r.Date)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), *r.Date)
	assert.Contains(t, r.Entities.People, "John Smith")
	assert.Contains(t, r.Entities.Organizations, "Acme Corp")
	assert.Equal(t, "budget", r.Keywords[0])
	assert.Len(t, r.Keywords, 3)
	assert.True(t, len([]rune(r.Summary)) <= 43)
	assert.Equal(t, 16, r.WordCount)
	assert.Len(t, r.ContentHash, 64)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), r.AnalyzedAt)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DocsAnalyzedTotal.WithLabelValues(SourceAPI)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LanguagesDetected.WithLabelValues("en")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EntitiesExtracted.WithLabelValues("organization")))
}

func TestAnalyzeWithoutDate(t *testing.T) {
	a, _ := newTestAnalyzer(t)
	r := a.Analyze(context.Background(), Document{ID: "x", Content: "nothing dated here"})
	assert.Nil(t, r.Date)
	assert.NotNil(t, r.Entities.People)
}

func TestAnalyzeRecordsSpans(t *testing.T) {
	a, _ := newTestAnalyzer(t)
	ctx, root := tracing.Start(context.Background(), "analyze", "trace-1")
	a.Analyze(ctx, Document{ID: "x", Content: "hello world"})
	root.End()

	var names []string
	for _, c := range root.Children() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"language", "date", "entities", "keywords", "summary"}, names)
}

func TestNewAppliesDefaults(t *testing.T) {
	a := New(Options{}, nil)
	assert.Equal(t, textanalytics.DefaultSummaryLength, a.Options().SummaryLength)
	assert.Equal(t, textanalytics.DefaultKeywordCount, a.Options().KeywordCount)
	assert.Positive(t, a.Options().Workers)
	// nil metrics must not panic
	a.Analyze(context.Background(), Document{Content: "plain text"})
}

func TestRelatedRanksAndFilters(t *testing.T) {
	a, _ := newTestAnalyzer(t)
	candidates := []Candidate{
		{ID: "a", Content: "the quick brown fox"},
		{ID: "b", Content: "completely unrelated words"},
		{ID: "c", Content: "quick brown fox"},
		{ID: "d", Content: "the quick brown fox"},
	}
	got, err := a.Related(context.Background(), "the quick brown fox", candidates, 0.1, 0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "d", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
	assert.Equal(t, 1.0, got[0].Score)
	assert.InDelta(t, 0.75, got[2].Score, 1e-9)
}

func TestRelatedLimit(t *testing.T) {
	a, _ := newTestAnalyzer(t)
	candidates := []Candidate{
		{ID: "a", Content: "alpha beta"},
		{ID: "b", Content: "alpha beta"},
		{ID: "c", Content: "alpha"},
	}
	got, err := a.Related(context.Background(), "alpha beta", candidates, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, []string{got[0].ID, got[1].ID})
}

func TestRelatedEmpty(t *testing.T) {
	a, _ := newTestAnalyzer(t)
	got, err := a.Related(context.Background(), "anything", nil, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestRelatedCancelled(t *testing.T) {
	a, _ := newTestAnalyzer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Related(ctx, "x", []Candidate{{ID: "a", Content: "x"}}, 0, 0)
	assert.ErrorIs(t, err, context.Canceled)
}
