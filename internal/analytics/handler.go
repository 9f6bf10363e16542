package analytics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/Adithya-Monish-Kumar-K/sentinel/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/logger"
)

const (
	defaultHistory = 10
	maxHistory     = 100
)

// SnapshotLister reads persisted stats snapshots, newest first.
type SnapshotLister interface {
	ListSnapshots(ctx context.Context, limit int) ([]AggregatedStats, error)
}

// Handler exposes the aggregator and, when Postgres is enabled, the saved
// snapshot history.
type Handler struct {
	aggregator *Aggregator
	snapshots  SnapshotLister
	logger     *slog.Logger
}

// NewHandler serves live stats. snapshots may be nil, in which case the
// history endpoint reports 503.
func NewHandler(aggregator *Aggregator, snapshots SnapshotLister) *Handler {
	return &Handler{
		aggregator: aggregator,
		snapshots:  snapshots,
		logger:     slog.Default().With("component", "analytics-handler"),
	}
}

// Register mounts the analytics routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analytics", h.Stats)
	mux.HandleFunc("GET /api/v1/analytics/history", h.History)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.respond(w, http.StatusOK, h.aggregator.Stats())
}

type historyResponse struct {
	Count     int               `json:"count"`
	Snapshots []AggregatedStats `json:"snapshots"`
}

// History returns up to ?limit= stored snapshots, newest first. The limit
// defaults to 10 and is capped at 100.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.snapshots == nil {
		h.fail(w, r, apperrors.New(apperrors.ErrUnavailable, "snapshot history is disabled"))
		return
	}
	limit, err := historyLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	snapshots, err := h.snapshots.ListSnapshots(r.Context(), limit)
	if err != nil {
		h.fail(w, r, apperrors.Wrap(apperrors.ErrInternal, err, "failed to load history"))
		return
	}
	if snapshots == nil {
		snapshots = []AggregatedStats{}
	}
	h.respond(w, http.StatusOK, historyResponse{Count: len(snapshots), Snapshots: snapshots})
}

func historyLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistory, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.New(apperrors.ErrInvalidInput, "limit must be a positive integer")
	}
	return min(n, maxHistory), nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	message := http.StatusText(status)
	if public, ok := apperrors.PublicMessage(err); ok {
		message = public
	}
	log := logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		log.Error("analytics request failed", "error", err, "status_code", status)
	} else {
		log.Debug("analytics request rejected", "error", err, "status_code", status)
	}
	h.respond(w, status, map[string]string{"error": message})
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to write analytics response", "error", err)
	}
}
