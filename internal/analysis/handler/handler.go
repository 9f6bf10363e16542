// Package handler exposes the analysis pipeline over HTTP: synchronous
// analysis, file uploads, web page ingestion, queued ingestion, similarity,
// related-document ranking, stored report lookup and export.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analysis"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analysis/cache"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/export"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/ingestion/webpage"
	"github.com/Adithya-Monish-Kumar-K/sentinel/internal/textanalytics"
	apperrors "github.com/Adithya-Monish-Kumar-K/sentinel/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/tracing"
	"github.com/google/uuid"
)

// maxExportDocuments caps a single export.
const maxExportDocuments = 1000

// ReportStore persists and loads reports.
type ReportStore interface {
	Save(ctx context.Context, report *analysis.Report) error
	Get(ctx context.Context, id string) (*analysis.Report, error)
	List(ctx context.Context, ids []string, limit int) ([]*analysis.Report, error)
}

// ReportCache memoises reports by content.
type ReportCache interface {
	GetOrCompute(ctx context.Context, key string, compute func() (*analysis.Report, error)) (*analysis.Report, bool, error)
	Stats() (hits, misses int64)
	Invalidate(ctx context.Context) error
}

// Queue hands documents to the asynchronous pipeline.
type Queue interface {
	Ingest(ctx context.Context, req *ingestion.IngestRequest) (*ingestion.IngestResponse, error)
}

// Tracker receives analytics events.
type Tracker interface {
	Track(event any)
}

// Fetcher downloads a web page and reduces it to text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*webpage.Page, error)
}

// Deps are the optional collaborators. Nil members disable the features
// that need them.
type Deps struct {
	Store   ReportStore
	Cache   ReportCache
	Queue   Queue
	Tracker Tracker
	Fetcher Fetcher
	Metrics *metrics.Metrics
}

// Limits bounds request sizes and related-document defaults.
type Limits struct {
	MaxContentLength int
	MaxUploadSize    int64
	RelatedMinScore  float64
	RelatedLimit     int
}

type Handler struct {
	analyzer *analysis.Analyzer
	deps     Deps
	limits   Limits
	now      func() time.Time
	logger   *slog.Logger
}

func New(analyzer *analysis.Analyzer, deps Deps, limits Limits) *Handler {
	return &Handler{
		analyzer: analyzer,
		deps:     deps,
		limits:   limits,
		now:      time.Now,
		logger:   slog.Default().With("component", "analysis-handler"),
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/analyze", h.Analyze)
	mux.HandleFunc("POST /api/v1/documents", h.Queue)
	mux.HandleFunc("POST /api/v1/documents/upload", h.Upload)
	mux.HandleFunc("POST /api/v1/documents/url", h.IngestURL)
	mux.HandleFunc("GET /api/v1/documents/{id}/analysis", h.GetAnalysis)
	mux.HandleFunc("POST /api/v1/similarity", h.Similarity)
	mux.HandleFunc("POST /api/v1/related", h.Related)
	mux.HandleFunc("POST /api/v1/export", h.Export)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
}

// AnalyzeResponse wraps a report with pipeline metadata.
type AnalyzeResponse struct {
	Report   *analysis.Report          `json:"report"`
	CacheHit bool                      `json:"cache_hit"`
	Stored   bool                      `json:"stored"`
	Upload   *ingestion.UploadMetadata `json:"upload,omitempty"`
	Page     *webpage.Page             `json:"page,omitempty"`
}

func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req ingestion.IngestRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.validate(w, &req) {
		return
	}
	resp, err := h.analyze(r.Context(), &req, analysis.SourceAPI)
	if err != nil {
		h.fail(w, r, "analysis failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// Queue publishes the document for asynchronous analysis.
func (h *Handler) Queue(w http.ResponseWriter, r *http.Request) {
	if h.deps.Queue == nil {
		h.writeError(w, http.StatusServiceUnavailable, "asynchronous ingestion is disabled")
		return
	}
	var req ingestion.IngestRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !h.validate(w, &req) {
		return
	}
	resp, err := h.deps.Queue.Ingest(r.Context(), &req)
	if err != nil {
		h.fail(w, r, "queueing failed", apperrors.Wrap(apperrors.ErrUnavailable, err, "document queue unavailable"))
		return
	}
	logger.FromContext(r.Context()).Info("document queued", "doc_id", resp.DocumentID)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// Upload accepts a multipart "file" with optional "title" and
// comma-separated "tags" fields.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxUploadSize+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		if isTooLarge(err) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		h.writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()
	if header.Size > h.limits.MaxUploadSize {
		h.writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("upload exceeds %s", textanalytics.FormatFileSize(h.limits.MaxUploadSize)))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "failed to read upload")
		return
	}

	meta := ingestion.DescribeUpload(header.Filename, header.Size)
	req := ingestion.IngestRequest{
		Title:       r.FormValue("title"),
		Content:     strings.ToValidUTF8(string(data), ""),
		ContentType: meta.ContentType,
		Tags:        splitTags(r.FormValue("tags")),
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = header.Filename
	}
	if !h.validate(w, &req) {
		return
	}
	resp, err := h.analyze(r.Context(), &req, analysis.SourceUpload)
	if err != nil {
		h.fail(w, r, "analysis failed", err)
		return
	}
	resp.Upload = &meta
	h.writeJSON(w, http.StatusOK, resp)
}

type urlRequest struct {
	URL   string   `json:"url"`
	Title string   `json:"title,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// IngestURL fetches a web page and analyses its text. The page title is
// used unless the caller supplies one.
func (h *Handler) IngestURL(w http.ResponseWriter, r *http.Request) {
	if h.deps.Fetcher == nil {
		h.writeError(w, http.StatusServiceUnavailable, "URL ingestion is disabled")
		return
	}
	var body urlRequest
	if !h.decode(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.URL) == "" {
		h.writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	page, err := h.deps.Fetcher.Fetch(r.Context(), body.URL)
	if err != nil {
		h.fail(w, r, "fetching page failed", err)
		return
	}

	req := ingestion.IngestRequest{
		Title:       body.Title,
		Content:     page.Content,
		ContentType: page.ContentType,
		SourceURL:   page.URL,
		Tags:        body.Tags,
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = page.Title
	}
	if !h.validate(w, &req) {
		return
	}
	resp, err := h.analyze(r.Context(), &req, analysis.SourceURL)
	if err != nil {
		h.fail(w, r, "analysis failed", err)
		return
	}
	resp.Page = page
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	if h.deps.Store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "report storage is disabled")
		return
	}
	report, err := h.deps.Store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "loading report failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

type similarityRequest struct {
	TextA string `json:"text_a"`
	TextB string `json:"text_b"`
}

func (h *Handler) Similarity(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req similarityRequest
	if !h.decode(w, r, &req) {
		return
	}
	score := textanalytics.Similarity(req.TextA, req.TextB)
	h.track(analytics.SimilarityEvent{
		Type:       analytics.EventSimilarity,
		Candidates: 1,
		Matches:    1,
		LatencyMs:  time.Since(start).Milliseconds(),
		Timestamp:  h.now().UTC(),
		RequestID:  logger.RequestID(r.Context()),
	})
	h.writeJSON(w, http.StatusOK, map[string]float64{"score": score})
}

type relatedRequest struct {
	Target     string               `json:"target"`
	Candidates []analysis.Candidate `json:"candidates"`
	MinScore   *float64             `json:"min_score,omitempty"`
	Limit      int                  `json:"limit,omitempty"`
}

func (h *Handler) Related(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req relatedRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Target) == "" {
		h.writeError(w, http.StatusBadRequest, "target is required")
		return
	}
	minScore := h.limits.RelatedMinScore
	if req.MinScore != nil {
		minScore = *req.MinScore
	}
	limit := h.limits.RelatedLimit
	if req.Limit > 0 && (limit <= 0 || req.Limit < limit) {
		limit = req.Limit
	}
	matches, err := h.analyzer.Related(r.Context(), req.Target, req.Candidates, minScore, limit)
	if err != nil {
		h.fail(w, r, "scoring failed", apperrors.Wrap(apperrors.ErrTimeout, err, "scoring did not finish in time"))
		return
	}
	h.track(analytics.SimilarityEvent{
		Type:       analytics.EventSimilarity,
		Candidates: len(req.Candidates),
		Matches:    len(matches),
		LatencyMs:  time.Since(start).Milliseconds(),
		Timestamp:  h.now().UTC(),
		RequestID:  logger.RequestID(r.Context()),
	})
	h.writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

type exportRequest struct {
	Format      string   `json:"format"`
	DocumentIDs []string `json:"document_ids"`
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !h.decode(w, r, &req) {
		return
	}
	format, err := export.ParseFormat(req.Format)
	if err != nil {
		h.fail(w, r, "export failed", err)
		return
	}
	if h.deps.Store == nil {
		h.writeError(w, http.StatusServiceUnavailable, "report storage is disabled")
		return
	}
	reports, err := h.deps.Store.List(r.Context(), req.DocumentIDs, maxExportDocuments)
	if err != nil {
		h.fail(w, r, "export failed", err)
		return
	}
	res, err := export.Render(format, reports, h.now())
	if err != nil {
		h.fail(w, r, "export failed", err)
		return
	}
	if h.deps.Metrics != nil {
		h.deps.Metrics.ExportsTotal.WithLabelValues(string(format)).Inc()
	}
	h.track(analytics.ExportEvent{
		Type:      analytics.EventExport,
		Format:    string(format),
		Documents: len(reports),
		Bytes:     len(res.Body),
		Timestamp: h.now().UTC(),
		RequestID: logger.RequestID(r.Context()),
	})

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.Filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Body); err != nil {
		h.logger.Error("failed to write export", "error", err)
	}
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	hits, misses := h.deps.Cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.deps.Cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	if err := h.deps.Cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// analyze runs the cached analysis, stores the report and emits the
// analytics event. Storage failures are logged and reported through
// Stored rather than failing the request.
func (h *Handler) analyze(ctx context.Context, req *ingestion.IngestRequest, source string) (*AnalyzeResponse, error) {
	start := time.Now()
	log := logger.FromContext(ctx)
	ctx, span := tracing.Start(ctx, "analyze", logger.RequestID(ctx))
	defer func() {
		span.End()
		span.Log(ctx, h.logger)
	}()

	docID := req.DocumentID
	if docID == "" {
		docID = uuid.NewString()
	}
	doc := analysis.Document{
		ID:          docID,
		Title:       req.Title,
		Content:     req.Content,
		ContentType: req.ContentType,
		Source:      source,
	}
	compute := func() (*analysis.Report, error) {
		return h.analyzer.Analyze(ctx, doc), nil
	}

	var (
		shared   *analysis.Report
		cacheHit bool
		err      error
	)
	if h.deps.Cache != nil {
		shared, cacheHit, err = h.deps.Cache.GetOrCompute(ctx, cache.Key(req.Content, h.analyzer.Options()), compute)
	} else {
		shared, err = compute()
	}
	if err != nil {
		return nil, err
	}
	// Cached reports are shared between callers; stamp identity on a copy.
	report := *shared
	report.DocumentID = doc.ID
	report.Title = doc.Title
	report.ContentType = doc.ContentType
	if report.ContentType == "" {
		report.ContentType = ingestion.ContentTypeText
	}
	span.SetAttr("cache_hit", cacheHit)

	stored := false
	if h.deps.Store != nil {
		if err := h.deps.Store.Save(ctx, &report); err != nil {
			log.Error("failed to store report", "doc_id", report.DocumentID, "error", err)
		} else {
			stored = true
		}
	}

	latency := time.Since(start)
	h.track(analytics.AnalysisEvent{
		Type:        analytics.EventAnalysis,
		DocumentID:  report.DocumentID,
		Source:      source,
		Language:    string(report.Language),
		Keywords:    report.Keywords,
		EntityCount: len(report.Entities.People) + len(report.Entities.Organizations) + len(report.Entities.Locations),
		WordCount:   report.WordCount,
		CacheHit:    cacheHit,
		LatencyMs:   latency.Milliseconds(),
		Timestamp:   h.now().UTC(),
		RequestID:   logger.RequestID(ctx),
	})
	log.Info("document analysed",
		"doc_id", report.DocumentID,
		"source", source,
		"language", report.Language,
		"cache_hit", cacheHit,
		"stored", stored,
		"latency_ms", latency.Milliseconds(),
	)
	return &AnalyzeResponse{Report: &report, CacheHit: cacheHit, Stored: stored}, nil
}

func (h *Handler) track(event any) {
	if h.deps.Tracker != nil {
		h.deps.Tracker.Track(event)
	}
}

// decode reads a JSON body bounded by the upload limit, writing the error
// response itself when it fails.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, h.limits.MaxUploadSize)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if isTooLarge(err) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func (h *Handler) validate(w http.ResponseWriter, req *ingestion.IngestRequest) bool {
	err := validator.ValidateIngestRequest(req, h.limits.MaxContentLength)
	if err == nil {
		return true
	}
	var validationErr *validator.ValidationError
	if errors.As(err, &validationErr) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "validation failed",
			"fields": validationErr.Fields,
		})
		return false
	}
	h.writeError(w, http.StatusBadRequest, err.Error())
	return false
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error(message, "error", err, "status_code", status)
	} else {
		log.Info(message, "error", err, "status_code", status)
	}
	if public, ok := apperrors.PublicMessage(err); ok && status < http.StatusInternalServerError {
		message = public
	}
	h.writeError(w, status, message)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
