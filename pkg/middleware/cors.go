package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSConfig lists what browsers may send to the API. Origins may be exact
// ("https://app.example"), a subdomain wildcard ("https://*.example") or
// "*".
type CORSConfig struct {
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
	MaxAge       time.Duration
}

// DefaultCORSConfig allows origins (every origin when empty) to call the
// analyzer's GET and POST routes and read the export filename header.
func DefaultCORSConfig(origins ...string) CORSConfig {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", RequestIDHeader},
		MaxAge:       24 * time.Hour,
	}
}

// CORS reflects allowed origins and short-circuits preflight requests.
// Requests from other origins pass through without CORS headers, leaving
// the browser to block them.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	methods := strings.Join(cfg.AllowMethods, ", ")
	headers := strings.Join(cfg.AllowHeaders, ", ")
	maxAge := strconv.Itoa(int(cfg.MaxAge.Seconds()))
	match := originMatcher(cfg.AllowOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")
			origin := r.Header.Get("Origin")
			if origin == "" || !match(origin) {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Expose-Headers", "Content-Disposition, "+RequestIDHeader)

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			h.Set("Access-Control-Max-Age", maxAge)
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func originMatcher(allowed []string) func(string) bool {
	exact := make(map[string]bool, len(allowed))
	var suffixes [][2]string // scheme prefix, domain suffix
	for _, o := range allowed {
		if o == "*" {
			return func(string) bool { return true }
		}
		if scheme, rest, ok := strings.Cut(o, "://*."); ok {
			suffixes = append(suffixes, [2]string{scheme + "://", "." + rest})
			continue
		}
		exact[o] = true
	}
	return func(origin string) bool {
		if exact[origin] {
			return true
		}
		for _, s := range suffixes {
			if strings.HasPrefix(origin, s[0]) && strings.HasSuffix(origin, s[1]) {
				return true
			}
		}
		return false
	}
}
