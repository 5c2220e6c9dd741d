// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig holds HTTP-layer settings.
type RouterConfig struct {
	// CORSOrigins is the allowed origin list. Empty disables CORS.
	CORSOrigins []string

	// IPRequestsPerMinute is the coarse per-IP limit in front of the
	// per-user limiter inside the engine. 0 uses the default.
	IPRequestsPerMinute int
}

const defaultIPRequestsPerMinute = 600

// NewRouter assembles the chi router with the full middleware stack.
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	ipLimit := cfg.IPRequestsPerMinute
	if ipLimit <= 0 {
		ipLimit = defaultIPRequestsPerMinute
	}

	// Health endpoints get a permissive limit so monitoring probes are
	// never throttled with real traffic.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(1000, time.Minute))
		r.Use(SecurityHeaders())
		r.Get("/", h.Health)
		r.Get("/live", h.HealthLive)
		r.Get("/ready", h.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(ipLimit, time.Minute))
		r.Use(SecurityHeaders())

		r.With(Instrument("recommendations")).
			Get("/recommendations/user/{userID}", h.GetRecommendations)
		r.With(Instrument("feedback")).
			Post("/feedback", h.SubmitFeedback)
		r.With(Instrument("insights")).
			Get("/insights/user/{userID}", h.GetInsights)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
