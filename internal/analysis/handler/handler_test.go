package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/ingestion/webpage"
	apperrors "github.com/Adithya-Monish-Kumar-K/sentinel/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	reports map[string]*analysis.Report
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{reports: make(map[string]*analysis.Report)}
}

func (s *memStore) Save(_ context.Context, r *analysis.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	cp := *r
	s.reports[r.DocumentID] = &cp
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*analysis.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotFound, "no analysis for document %s", id)
	}
	return r, nil
}

func (s *memStore) List(_ context.Context, ids []string, _ int) ([]*analysis.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*analysis.Report{}
	for _, id := range ids {
		if r, ok := s.reports[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

type memCache struct {
	reports map[string]*analysis.Report
	hits    int64
	misses  int64
}

func (c *memCache) GetOrCompute(_ context.Context, key string, compute func() (*analysis.Report, error)) (*analysis.Report, bool, error) {
	if r, ok := c.reports[key]; ok {
		c.hits++
		return r, true, nil
	}
	c.misses++
	r, err := compute()
	if err != nil {
		return nil, false, err
	}
	c.reports[key] = r
	return r, false, nil
}

func (c *memCache) Stats() (int64, int64) { return c.hits, c.misses }

func (c *memCache) Invalidate(context.Context) error {
	c.reports = map[string]*analysis.Report{}
	return nil
}

type fakeQueue struct {
	reqs []*ingestion.IngestRequest
	err  error
}

func (q *fakeQueue) Ingest(_ context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.reqs = append(q.reqs, req)
	return &ingestion.IngestResponse{DocumentID: "queued-1", Status: "QUEUED"}, nil
}

type recordingTracker struct {
	mu     sync.Mutex
	events []any
}

func (t *recordingTracker) Track(e any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}

type fixture struct {
	mux     *http.ServeMux
	store   *memStore
	cache   *memCache
	queue   *fakeQueue
	tracker *recordingTracker
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		mux:     http.NewServeMux(),
		store:   newMemStore(),
		cache:   &memCache{reports: map[string]*analysis.Report{}},
		queue:   &fakeQueue{},
		tracker: &recordingTracker{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	h := New(analysis.New(analysis.Options{SummaryLength: 50, KeywordCount: 5}, f.metrics), Deps{
		Store:   f.store,
		Cache:   f.cache,
		Queue:   f.queue,
		Tracker: f.tracker,
		Fetcher: webpage.NewFetcher(time.Second, 1<<20),
		Metrics: f.metrics,
	}, Limits{
		MaxContentLength: 1000,
		MaxUploadSize:    4096,
		RelatedMinScore:  0.1,
		RelatedLimit:     10,
	})
	h.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	h.Routes(f.mux)
	return f
}

func (f *fixture) postJSON(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decodeAnalyze(t *testing.T, rec *httptest.ResponseRecorder) AnalyzeResponse {
	t.Helper()
	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

const memo = "Jane Doe met Globex Corporation in Paris on March 3, 2024. Budget talks covered budget cuts."

func TestAnalyzeStoresAndTracks(t *testing.T) {
	f := newFixture(t)
	rec := f.postJSON(t, "/api/v1/analyze", ingestion.IngestRequest{DocumentID: "doc-1", Title: " Memo ", Content: memo})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeAnalyze(t, rec)
	assert.False(t, resp.CacheHit)
	assert.True(t, resp.Stored)
	assert.Equal(t, "doc-1", resp.Report.DocumentID)
	assert.Equal(t, "Memo", resp.Report.Title)
	assert.Equal(t, "budget", resp.Report.Keywords[0])
	assert.Contains(t, resp.Report.Entities.Organizations, "Globex Corporation")
	require.NotNil(t, resp.Report.Date)
	assert.Equal(t, "2024-03-03", resp.Report.Date.Format(time.DateOnly))

	stored, err := f.store.Get(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, resp.Report.ContentHash, stored.ContentHash)

	require.Len(t, f.tracker.events, 1)
	ev := f.tracker.events[0].(analytics.AnalysisEvent)
	assert.Equal(t, analysis.SourceAPI, ev.Source)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DocsAnalyzedTotal.WithLabelValues(analysis.SourceAPI)))
}

func TestAnalyzeCacheHitKeepsCallerIdentity(t *testing.T) {
	f := newFixture(t)
	f.postJSON(t, "/api/v1/analyze", ingestion.IngestRequest{DocumentID: "a", Title: "First", Content: memo})
	rec := f.postJSON(t, "/api/v1/analyze", ingestion.IngestRequest{DocumentID: "b", Title: "Second", Content: memo})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeAnalyze(t, rec)
	assert.True(t, resp.CacheHit)
	assert.Equal(t, "b", resp.Report.DocumentID)
	assert.Equal(t, "Second", resp.Report.Title)

	first, err := f.store.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "First", first.Title)
}

func TestAnalyzeGeneratesDocumentID(t *testing.T) {
	f := newFixture(t)
	rec := f.postJSON(t, "/api/v1/analyze", ingestion.IngestRequest{Title: "t", Content: "hello world"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeAnalyze(t, rec).Report.DocumentID, 36)
}

func TestAnalyzeValidation(t *testing.T) {
	f := newFixture(t)
	rec := f.postJSON(t, "/api/v1/analyze", ingestion.IngestRequest{Title: "", Content: "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"title"`)
	assert.Contains(t, rec.Body.String(), `"content"`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyze", strings.NewReader("{"))
	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeBodyTooLarge(t *testing.T) {
	f := newFixture(t)
	rec := f.postJSON(t, "/api/v1/analyze", ingestion.IngestRequest{Title: "big", Content: strings.Repeat("a", 5000)})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestAnalyzeStoreFailureStillAnswers(t *testing.T) {
	f := newFixture(t)
	f.store.saveErr = errors.New("db down")
	rec := f.postJSON(t, "/api/v1/analyze", ingestion.IngestRequest{Title: "t", Content: "hello world"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeAnalyze(t, rec).Stored)
}

func TestQueue(t *testing.T) {
	f := newFixture(t)
	rec := f.postJSON(t, "/api/v1/documents", ingestion.IngestRequest{Title: "t", Content: "queued text"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "queued-1")
	require.Len(t, f.queue.reqs, 1)
	assert.Equal(t, ingestion.ContentTypeText, f.queue.reqs[0].ContentType)

	f.queue.err = errors.New("broker down")
	rec = f.postJSON(t, "/api/v1/documents", ingestion.IngestRequest{Title: "t", Content: "queued text"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func uploadRequest(t *testing.T, filename, content, title string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	if title != "" {
		require.NoError(t, mw.WriteField("title", title))
	}
	require.NoError(t, mw.WriteField("tags", "alpha, beta,,"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestUpload(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, uploadRequest(t, "My Notes (Final).md", memo, ""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeAnalyze(t, rec)
	require.NotNil(t, resp.Upload)
	assert.Equal(t, "my_notes_final_.md", resp.Upload.StorageKey)
	assert.Equal(t, ingestion.ContentTypeText, resp.Upload.ContentType)
	assert.Equal(t, "My Notes (Final).md", resp.Report.Title)
	assert.Equal(t, ingestion.ContentTypeText, resp.Report.ContentType)
	assert.True(t, resp.Stored)
}

func TestUploadRejectsOversizedAndMissingFile(t *testing.T) {
	f := newFixture(t)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, uploadRequest(t, "big.txt", strings.Repeat("x", 5000), "big"))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents/upload", strings.NewReader(""))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func pageServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/news/budget", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "<html><head><title>Budget Memo</title><script>var x = 1;</script></head><body><p>%s</p></body></html>", memo)
	})
	mux.HandleFunc("/long", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<p>"+strings.Repeat("word ", 500)+"</p>")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestIngestURL(t *testing.T) {
	f := newFixture(t)
	srv := pageServer(t)

	rec := f.postJSON(t, "/api/v1/documents/url", map[string]any{"url": srv.URL + "/news/budget", "tags": []string{"finance"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeAnalyze(t, rec)
	assert.True(t, resp.Stored)
	assert.Equal(t, "Budget Memo", resp.Report.Title)
	assert.Equal(t, ingestion.ContentTypeArticle, resp.Report.ContentType)
	assert.Contains(t, resp.Report.Entities.Organizations, "Globex Corporation")
	require.NotNil(t, resp.Page)
	assert.Equal(t, "127.0.0.1", resp.Page.Domain)
	assert.Equal(t, srv.URL+"/news/budget", resp.Page.URL)
	assert.NotContains(t, rec.Body.String(), "var x")

	stored, err := f.store.Get(context.Background(), resp.Report.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, "Budget Memo", stored.Title)

	require.Len(t, f.tracker.events, 1)
	assert.Equal(t, analysis.SourceURL, f.tracker.events[0].(analytics.AnalysisEvent).Source)
}

func TestIngestURLTitleOverrideAndTruncation(t *testing.T) {
	f := newFixture(t)
	srv := pageServer(t)

	rec := f.postJSON(t, "/api/v1/documents/url", map[string]any{"url": srv.URL + "/long", "title": "Repeated"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeAnalyze(t, rec)
	assert.Equal(t, "Repeated", resp.Report.Title)
	// The fixture caps content at 1000 characters: 200 copies of "word ".
	assert.Equal(t, 200, resp.Report.WordCount)
	assert.Equal(t, 2499, resp.Page.Length)
}

func TestIngestURLFailures(t *testing.T) {
	f := newFixture(t)
	srv := pageServer(t)

	rec := f.postJSON(t, "/api/v1/documents/url", map[string]any{"url": srv.URL + "/missing"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to fetch URL")

	rec = f.postJSON(t, "/api/v1/documents/url", map[string]any{"url": "ftp://example.com/file"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.postJSON(t, "/api/v1/documents/url", map[string]any{"title": "no url"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "url is required")

	assert.Empty(t, f.tracker.events)
}

func TestGetAnalysis(t *testing.T) {
	f := newFixture(t)
	f.postJSON(t, "/api/v1/analyze", ingestion.IngestRequest{DocumentID: "doc-9", Title: "t", Content: "hello"})

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/documents/doc-9/analysis", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"document_id":"doc-9"`)

	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/documents/missing/analysis", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no analysis for document missing")
}

func TestSimilarity(t *testing.T) {
	f := newFixture(t)
	rec := f.postJSON(t, "/api/v1/similarity", map[string]string{"text_a": "the quick brown fox", "text_b": "quick brown fox"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"score":0.75}`, rec.Body.String())
}

func TestRelated(t *testing.T) {
	f := newFixture(t)
	rec := f.postJSON(t, "/api/v1/related", map[string]any{
		"target": "alpha beta gamma",
		"candidates": []analysis.Candidate{
			{ID: "x", Content: "delta"},
			{ID: "y", Content: "alpha beta"},
			{ID: "z", Content: "alpha beta gamma"},
		},
		"limit": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Matches []analysis.Match `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Matches, 1)
	assert.Equal(t, "z", body.Matches[0].ID)

	rec = f.postJSON(t, "/api/v1/related", map[string]any{"target": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	f.postJSON(t, "/api/v1/analyze", ingestion.IngestRequest{DocumentID: "d1", Title: "One", Content: memo})

	rec := f.postJSON(t, "/api/v1/export", map[string]any{"format": "csv", "document_ids": []string{"d1"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="sentinel-export-1748779200000.csv"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "ID,Title,Content Type,Language,Date,Keywords,Summary\n\"d1\",\"One\""))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ExportsTotal.WithLabelValues("csv")))

	rec = f.postJSON(t, "/api/v1/export", map[string]any{"format": "xml"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown export format")
}

func TestCacheEndpoints(t *testing.T) {
	f := newFixture(t)
	f.postJSON(t, "/api/v1/analyze", ingestion.IngestRequest{Title: "t", Content: "hello"})
	f.postJSON(t, "/api/v1/analyze", ingestion.IngestRequest{Title: "t", Content: "hello"})

	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	assert.JSONEq(t, `{"hits":1,"misses":1,"total":2,"hit_rate":"50.0%"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	f.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.cache.reports)
}

func TestDisabledDependencies(t *testing.T) {
	mux := http.NewServeMux()
	New(analysis.New(analysis.Options{}, nil), Deps{}, Limits{MaxContentLength: 100, MaxUploadSize: 1024}).Routes(mux)

	for _, tc := range []struct {
		method, path, body string
		want               int
	}{
		{http.MethodPost, "/api/v1/documents", `{"title":"t","content":"c"}`, http.StatusServiceUnavailable},
		{http.MethodPost, "/api/v1/documents/url", `{"url":"https://example.com"}`, http.StatusServiceUnavailable},
		{http.MethodGet, "/api/v1/documents/x/analysis", "", http.StatusServiceUnavailable},
		{http.MethodPost, "/api/v1/export", `{"format":"json"}`, http.StatusServiceUnavailable},
		{http.MethodPost, "/api/v1/cache/invalidate", "", http.StatusServiceUnavailable},
		{http.MethodPost, "/api/v1/analyze", `{"title":"t","content":"c"}`, http.StatusOK},
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, strings.NewReader(tc.body)))
		assert.Equal(t, tc.want, rec.Code, tc.path)
	}
}
