// Package middleware holds the HTTP middleware wrapped around the analyzer
// API: request IDs, CORS, rate limiting, Prometheus instrumentation and
// per-request timeouts.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sentinel/pkg/metrics"
)

// Metrics instruments every request with a count, a latency observation and
// the number of response bytes, labelled by route rather than raw path.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			rec := &responseRecorder{ResponseWriter: w}
			began := time.Now()
			next.ServeHTTP(rec, r)
			elapsed := time.Since(began)

			route := routeLabel(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.Status())).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
			m.HTTPResponseBytes.WithLabelValues(route).Observe(float64(rec.bytes))
		})
	}
}

// responseRecorder remembers the status code and body size sent downstream.
type responseRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

// Status returns the code sent, defaulting to 200 when the handler wrote a
// body without an explicit header or wrote nothing at all.
func (rr *responseRecorder) Status() int {
	if rr.status == 0 {
		return http.StatusOK
	}
	return rr.status
}

func (rr *responseRecorder) WriteHeader(code int) {
	if rr.status == 0 {
		rr.status = code
	}
	rr.ResponseWriter.WriteHeader(code)
}

func (rr *responseRecorder) Write(b []byte) (int, error) {
	if rr.status == 0 {
		rr.status = http.StatusOK
	}
	n, err := rr.ResponseWriter.Write(b)
	rr.bytes += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rr *responseRecorder) Unwrap() http.ResponseWriter {
	return rr.ResponseWriter
}

// routeLabel replaces the document ID segment of document routes with
// ":id" so metric cardinality does not grow with the number of documents.
func routeLabel(path string) string {
	const documents = "/api/v1/documents/"
	rest, ok := strings.CutPrefix(path, documents)
	if !ok || rest == "" {
		return path
	}
	id, tail, _ := strings.Cut(rest, "/")
	if id == "upload" && tail == "" {
		return path
	}
	if tail == "" {
		return documents + ":id"
	}
	return documents + ":id/" + tail
}
