// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/tunedrift/tunedrift/internal/logging"
	"github.com/tunedrift/tunedrift/internal/metrics"
)

// RequestID attaches a request ID to the context and response headers.
// Incoming X-Request-ID headers are honored so upstream proxies can
// correlate traces; otherwise a new ID is generated.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if id == "" || len(id) > 64 {
				id = logging.GenerateRequestID()
			}

			ctx := logging.ContextWithRequestID(r.Context(), id)
			logger := logging.With().Str("request_id", id).Logger()
			ctx = logging.ContextWithLogger(ctx, logger)

			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// statusRecorder captures the response status for metrics and logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Instrument records request metrics and an access log line per request.
// The endpoint label is the route pattern, not the raw path, to keep
// metric cardinality bounded.
func Instrument(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			metrics.TrackActiveRequest(true)
			defer metrics.TrackActiveRequest(false)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			duration := time.Since(started)
			metrics.RecordAPIRequest(r.Method, endpoint, strconv.Itoa(rec.status), duration)

			logging.Ctx(r.Context()).Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", duration).
				Msg("request completed")
		})
	}
}

// SecurityHeaders adds baseline security headers for API responses.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Cache-Control", "no-store")
			next.ServeHTTP(w, r)
		})
	}
}
