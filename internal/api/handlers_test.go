// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/recommend"
)

type fakeEngine struct {
	recommendations func(ctx context.Context, req recommend.Request) (*recommend.RecommendationSet, error)
	feedback        func(ctx context.Context, event recommend.InteractionEvent) (*recommend.FeedbackResult, error)
	insights        func(ctx context.Context, userID string) (*recommend.Insights, error)

	lastRequest recommend.Request
	lastEvent   recommend.InteractionEvent
}

func (f *fakeEngine) GetRecommendations(ctx context.Context, req recommend.Request) (*recommend.RecommendationSet, error) {
	f.lastRequest = req
	if f.recommendations != nil {
		return f.recommendations(ctx, req)
	}
	return &recommend.RecommendationSet{
		UserID: req.UserID,
		Tracks: []recommend.ScoredTrack{
			{Track: recommend.Track{ID: "t1", Title: "First"}, Score: 0.9},
		},
		GeneratedAt: time.Now(),
	}, nil
}

func (f *fakeEngine) SubmitFeedback(ctx context.Context, event recommend.InteractionEvent) (*recommend.FeedbackResult, error) {
	f.lastEvent = event
	if f.feedback != nil {
		return f.feedback(ctx, event)
	}
	return &recommend.FeedbackResult{Accepted: true, Reward: 1.0}, nil
}

func (f *fakeEngine) GetInsights(ctx context.Context, userID string) (*recommend.Insights, error) {
	if f.insights != nil {
		return f.insights(ctx, userID)
	}
	return &recommend.Insights{UserID: userID}, nil
}

func testRouter(engine *fakeEngine, opts HandlerOptions) http.Handler {
	opts.Engine = engine
	opts.Logger = zerolog.Nop()
	return NewRouter(NewHandler(opts), RouterConfig{})
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response envelope: %v\nbody: %s", err, rec.Body.String())
	}
	return resp
}

func TestGetRecommendations(t *testing.T) {
	engine := &fakeEngine{}
	router := testRouter(engine, HandlerOptions{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/recommendations/user/u1?max_results=7", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}

	resp := decodeEnvelope(t, rec)
	if !resp.Success {
		t.Error("expected success envelope")
	}
	if resp.Meta == nil || resp.Meta.RequestID == "" {
		t.Error("expected request ID in meta")
	}
	if engine.lastRequest.UserID != "u1" || engine.lastRequest.MaxResults != 7 {
		t.Errorf("request not forwarded: %+v", engine.lastRequest)
	}
}

func TestGetRecommendationsForceRefresh(t *testing.T) {
	engine := &fakeEngine{}
	router := testRouter(engine, HandlerOptions{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/recommendations/user/u1?force_refresh=true", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !engine.lastRequest.ForceRefresh {
		t.Error("force_refresh not forwarded")
	}
}

func TestGetRecommendationsBadQuery(t *testing.T) {
	router := testRouter(&fakeEngine{}, HandlerOptions{})

	for _, path := range []string{
		"/api/v1/recommendations/user/u1?max_results=abc",
		"/api/v1/recommendations/user/u1?max_results=0",
		"/api/v1/recommendations/user/u1?force_refresh=maybe",
	} {
		rec := doRequest(t, router, http.MethodGet, path, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", path, rec.Code)
		}
	}
}

func TestGetRecommendationsRateLimited(t *testing.T) {
	engine := &fakeEngine{
		recommendations: func(context.Context, recommend.Request) (*recommend.RecommendationSet, error) {
			return nil, fmt.Errorf("%w: retry after 5s", recommend.ErrRateLimited)
		},
	}
	router := testRouter(engine, HandlerOptions{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/recommendations/user/u1", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != ErrCodeTooManyRequests {
		t.Errorf("error code = %+v, want TOO_MANY_REQUESTS", resp.Error)
	}
}

func TestGetRecommendationsProviderDown(t *testing.T) {
	engine := &fakeEngine{
		recommendations: func(context.Context, recommend.Request) (*recommend.RecommendationSet, error) {
			return nil, recommend.ErrProviderUnavailable
		},
	}
	router := testRouter(engine, HandlerOptions{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/recommendations/user/u1", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestSubmitFeedback(t *testing.T) {
	engine := &fakeEngine{}
	router := testRouter(engine, HandlerOptions{})

	body, _ := json.Marshal(map[string]interface{}{
		"user_id":            "u1",
		"track_id":           "t1",
		"kind":               "like",
		"listen_duration_ms": 180000,
		"track_duration_ms":  200000,
		"context":            "workout",
	})
	rec := doRequest(t, router, http.MethodPost, "/api/v1/feedback", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\nbody: %s", rec.Code, rec.Body.String())
	}

	if engine.lastEvent.Kind != recommend.FeedbackLike {
		t.Errorf("kind = %v, want like", engine.lastEvent.Kind)
	}
	if engine.lastEvent.ListenDuration != 180*time.Second {
		t.Errorf("listen duration = %v, want 3m", engine.lastEvent.ListenDuration)
	}
	if engine.lastEvent.Context != "workout" {
		t.Errorf("context = %q, want workout", engine.lastEvent.Context)
	}
}

func TestSubmitFeedbackInvalidJSON(t *testing.T) {
	router := testRouter(&fakeEngine{}, HandlerOptions{})

	rec := doRequest(t, router, http.MethodPost, "/api/v1/feedback", []byte("{not json"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitFeedbackMissingFields(t *testing.T) {
	router := testRouter(&fakeEngine{}, HandlerOptions{})

	body, _ := json.Marshal(map[string]interface{}{"kind": "like"})
	rec := doRequest(t, router, http.MethodPost, "/api/v1/feedback", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != ErrCodeValidationFailed {
		t.Errorf("error code = %+v, want VALIDATION_FAILED", resp.Error)
	}
	if resp.Error.Details == nil {
		t.Error("expected per-field validation details")
	}
}

func TestSubmitFeedbackUnknownKind(t *testing.T) {
	router := testRouter(&fakeEngine{}, HandlerOptions{})

	body, _ := json.Marshal(map[string]interface{}{
		"user_id": "u1", "track_id": "t1", "kind": "applaud",
	})
	rec := doRequest(t, router, http.MethodPost, "/api/v1/feedback", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitFeedbackUnknownTrack(t *testing.T) {
	engine := &fakeEngine{
		feedback: func(context.Context, recommend.InteractionEvent) (*recommend.FeedbackResult, error) {
			return nil, recommend.ErrUnknownTrack
		},
	}
	router := testRouter(engine, HandlerOptions{})

	body, _ := json.Marshal(map[string]interface{}{
		"user_id": "u1", "track_id": "ghost", "kind": "like",
	})
	rec := doRequest(t, router, http.MethodPost, "/api/v1/feedback", body)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	resp := decodeEnvelope(t, rec)
	if resp.Error == nil || resp.Error.Code != ErrCodeUnknownTrack {
		t.Errorf("error code = %+v, want UNKNOWN_TRACK", resp.Error)
	}
}

func TestSubmitFeedbackRejectsUnknownFields(t *testing.T) {
	router := testRouter(&fakeEngine{}, HandlerOptions{})

	body, _ := json.Marshal(map[string]interface{}{
		"user_id": "u1", "track_id": "t1", "kind": "like", "surprise": true,
	})
	rec := doRequest(t, router, http.MethodPost, "/api/v1/feedback", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetInsights(t *testing.T) {
	engine := &fakeEngine{
		insights: func(_ context.Context, userID string) (*recommend.Insights, error) {
			return &recommend.Insights{
				UserID: userID,
				Stats:  recommend.LearnerStats{Episodes: 12},
				TopGenres: []recommend.GenreInsight{
					{Genre: "jazz", AverageReward: 1.2, Interactions: 8},
				},
			}, nil
		},
	}
	router := testRouter(engine, HandlerOptions{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/insights/user/u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Success bool               `json:"success"`
		Data    recommend.Insights `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Stats.Episodes != 12 || len(resp.Data.TopGenres) != 1 {
		t.Errorf("insights not forwarded: %+v", resp.Data)
	}
}

func TestHealthDegradedOnStoreFailure(t *testing.T) {
	router := testRouter(&fakeEngine{}, HandlerOptions{
		PingStore: func(context.Context) error {
			return errors.New("connection refused")
		},
		BreakerState: func() string { return "closed" },
	})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Data healthStatus `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Data.Status)
	}
	if resp.Data.Checks["database"] != "unreachable" {
		t.Errorf("database check = %q, want unreachable", resp.Data.Checks["database"])
	}
	if resp.Data.Checks["provider_breaker"] != "closed" {
		t.Errorf("breaker check = %q, want closed", resp.Data.Checks["provider_breaker"])
	}
}

func TestHealthReadyFailsWithoutStore(t *testing.T) {
	router := testRouter(&fakeEngine{}, HandlerOptions{
		PingStore: func(context.Context) error {
			return errors.New("not ready")
		},
	})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/health/ready", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHealthLiveAlwaysOK(t *testing.T) {
	router := testRouter(&fakeEngine{}, HandlerOptions{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/health/live", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequestIDGeneratedAndEchoed(t *testing.T) {
	router := testRouter(&fakeEngine{}, HandlerOptions{})

	rec := doRequest(t, router, http.MethodGet, "/api/v1/health/live", nil)
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected generated X-Request-ID header")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil)
	req.Header.Set("X-Request-ID", "trace-123")
	echo := httptest.NewRecorder()
	router.ServeHTTP(echo, req)
	if got := echo.Header().Get("X-Request-ID"); got != "trace-123" {
		t.Errorf("X-Request-ID = %q, want trace-123", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := testRouter(&fakeEngine{}, HandlerOptions{})

	rec := doRequest(t, router, http.MethodGet, "/metrics", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("expected Prometheus exposition output")
	}
}
