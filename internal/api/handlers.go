// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/metrics"
	"github.com/tunedrift/tunedrift/internal/recommend"
)

// feedbackBodyLimit bounds feedback payloads. Events are small; anything
// larger is malformed or abusive.
const feedbackBodyLimit = 16 << 10

// Recommender is the engine surface the HTTP handlers depend on.
type Recommender interface {
	GetRecommendations(ctx context.Context, req recommend.Request) (*recommend.RecommendationSet, error)
	SubmitFeedback(ctx context.Context, event recommend.InteractionEvent) (*recommend.FeedbackResult, error)
	GetInsights(ctx context.Context, userID string) (*recommend.Insights, error)
}

// Handler holds the dependencies for all HTTP endpoints.
type Handler struct {
	engine   Recommender
	validate *validator.Validate
	logger   zerolog.Logger

	// pingStore and breakerState feed the health endpoint. Either may
	// be nil when the corresponding subsystem is not wired.
	pingStore    func(ctx context.Context) error
	breakerState func() string

	version   string
	startTime time.Time
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	Engine       Recommender
	PingStore    func(ctx context.Context) error
	BreakerState func() string
	Version      string
	Logger       zerolog.Logger
}

// NewHandler creates the endpoint handler set.
func NewHandler(opts HandlerOptions) *Handler {
	return &Handler{
		engine:       opts.Engine,
		validate:     validator.New(),
		logger:       opts.Logger.With().Str("component", "api").Logger(),
		pingStore:    opts.PingStore,
		breakerState: opts.BreakerState,
		version:      opts.Version,
		startTime:    time.Now(),
	}
}

// GetRecommendations handles GET /api/v1/recommendations/user/{userID}.
// Query parameters: max_results (int), force_refresh (bool).
func (h *Handler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		rw.BadRequest("user ID is required")
		return
	}

	req := recommend.Request{UserID: userID}
	if raw := r.URL.Query().Get("max_results"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			rw.BadRequest("max_results must be a positive integer")
			return
		}
		req.MaxResults = n
	}
	if raw := r.URL.Query().Get("force_refresh"); raw != "" {
		force, err := strconv.ParseBool(raw)
		if err != nil {
			rw.BadRequest("force_refresh must be a boolean")
			return
		}
		req.ForceRefresh = force
	}

	set, err := h.engine.GetRecommendations(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, recommend.ErrRateLimited):
			rw.TooManyRequests("recommendation request limit exceeded", 5*time.Second)
		case errors.Is(err, recommend.ErrProviderUnavailable):
			rw.ServiceUnavailable("content catalog unavailable, try again later")
		default:
			h.logger.Error().Err(err).Str("user_id", userID).Msg("recommendation generation failed")
			rw.InternalError("failed to generate recommendations")
		}
		return
	}

	rw.Success(set)
}

// feedbackRequest is the POST /feedback payload. Durations are in
// milliseconds on the wire.
type feedbackRequest struct {
	UserID           string    `json:"user_id" validate:"required,max=128"`
	TrackID          string    `json:"track_id" validate:"required,max=128"`
	Kind             string    `json:"kind" validate:"required,max=32"`
	Timestamp        time.Time `json:"timestamp"`
	ListenDurationMs int64     `json:"listen_duration_ms" validate:"gte=0"`
	TrackDurationMs  int64     `json:"track_duration_ms" validate:"gte=0"`
	TimeToActionMs   int64     `json:"time_to_action_ms" validate:"gte=0"`
	Context          string    `json:"context" validate:"omitempty,max=64"`
	Repeated         bool      `json:"repeated"`
}

// SubmitFeedback handles POST /api/v1/feedback.
func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	var payload feedbackRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, feedbackBodyLimit))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&payload); err != nil {
		metrics.RecordFeedbackRejection("invalid_payload")
		rw.BadRequest("invalid JSON payload: " + err.Error())
		return
	}

	if err := h.validate.Struct(payload); err != nil {
		metrics.RecordFeedbackRejection("invalid_payload")
		rw.ValidationError("feedback validation failed", validationDetails(err))
		return
	}

	kind, err := recommend.ParseFeedbackKind(payload.Kind)
	if err != nil {
		metrics.RecordFeedbackRejection("invalid_payload")
		rw.BadRequest(err.Error())
		return
	}

	event := recommend.InteractionEvent{
		UserID:         payload.UserID,
		TrackID:        payload.TrackID,
		Kind:           kind,
		Timestamp:      payload.Timestamp,
		ListenDuration: time.Duration(payload.ListenDurationMs) * time.Millisecond,
		TrackDuration:  time.Duration(payload.TrackDurationMs) * time.Millisecond,
		TimeToAction:   time.Duration(payload.TimeToActionMs) * time.Millisecond,
		Context:        payload.Context,
		Repeated:       payload.Repeated,
	}

	result, err := h.engine.SubmitFeedback(r.Context(), event)
	if err != nil {
		switch {
		case errors.Is(err, recommend.ErrUnknownTrack):
			rw.Error(http.StatusNotFound, ErrCodeUnknownTrack,
				"track was never served to this user and is not in their history")
		default:
			h.logger.Error().Err(err).Str("user_id", payload.UserID).Msg("feedback processing failed")
			rw.InternalError("failed to process feedback")
		}
		return
	}

	rw.Success(result)
}

// GetInsights handles GET /api/v1/insights/user/{userID}.
func (h *Handler) GetInsights(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	userID := chi.URLParam(r, "userID")
	if userID == "" {
		rw.BadRequest("user ID is required")
		return
	}

	insights, err := h.engine.GetInsights(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("insights lookup failed")
		rw.InternalError("failed to load insights")
		return
	}

	rw.Success(insights)
}

// healthStatus is the /health response body.
type healthStatus struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Uptime  string            `json:"uptime"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Health handles GET /api/v1/health. Reports degraded rather than
// failing when a dependency check fails, so load balancers keep routing
// while operators investigate.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	status := healthStatus{
		Status:  "healthy",
		Version: h.version,
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
		Checks:  map[string]string{},
	}

	if h.pingStore != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.pingStore(ctx); err != nil {
			status.Status = "degraded"
			status.Checks["database"] = "unreachable"
			h.logger.Warn().Err(err).Msg("health check: database unreachable")
		} else {
			status.Checks["database"] = "ok"
		}
	}

	if h.breakerState != nil {
		state := h.breakerState()
		status.Checks["provider_breaker"] = state
		if state == "open" {
			status.Status = "degraded"
		}
	}

	rw.Success(status)
}

// HealthLive handles GET /api/v1/health/live. Always succeeds while the
// process is serving.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	NewResponseWriter(w, r).Success(map[string]string{"status": "alive"})
}

// HealthReady handles GET /api/v1/health/ready. Fails when the store is
// unreachable so orchestrators hold traffic until startup completes.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	if h.pingStore != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.pingStore(ctx); err != nil {
			rw.ServiceUnavailable("database not ready")
			return
		}
	}
	rw.Success(map[string]string{"status": "ready"})
}

// validationDetails flattens validator errors into a field->rule map.
func validationDetails(err error) map[string]string {
	details := map[string]string{}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			details[fe.Field()] = fe.Tag()
		}
	}
	return details
}
