// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

// Package provider implements the music catalog client: an HTTP client
// with an outbound call budget and retries, wrapped in a circuit breaker
// that implements recommend.ContentSource.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tunedrift/tunedrift/internal/metrics"
	"github.com/tunedrift/tunedrift/internal/recommend"
)

// Config holds catalog client settings.
type Config struct {
	// BaseURL is the catalog API root, e.g. "https://catalog.example.com".
	BaseURL string

	// APIKey authenticates outbound requests.
	APIKey string

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// CallsPerSecond and Burst define the outbound call budget.
	CallsPerSecond float64
	Burst          int

	// RetryAttempts is how many times a failed call is retried.
	// RetryBaseDelay seeds the exponential backoff.
	RetryAttempts  int
	RetryBaseDelay time.Duration

	// BatchSize bounds audio-feature lookups per request.
	BatchSize int
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:        10 * time.Second,
		CallsPerSecond: 10,
		Burst:          20,
		RetryAttempts:  3,
		RetryBaseDelay: 500 * time.Millisecond,
		BatchSize:      100,
	}
}

// Client is the raw catalog HTTP client. Most callers want the
// circuit-breaker wrapped Source instead.
type Client struct {
	cfg    Config
	http   *http.Client
	budget *rate.Limiter
	logger zerolog.Logger
}

// NewClient creates a catalog client.
//
//nolint:gocritic // hugeParam: zerolog.Logger passed by value per convention
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.CallsPerSecond <= 0 {
		cfg.CallsPerSecond = DefaultConfig().CallsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultConfig().Burst
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
		},
		budget: rate.NewLimiter(rate.Limit(cfg.CallsPerSecond), cfg.Burst),
		logger: logger.With().Str("component", "provider").Logger(),
	}, nil
}

// wireTrack is the catalog API track representation.
type wireTrack struct {
	ID         string             `json:"id"`
	Title      string             `json:"title"`
	Artists    []string           `json:"artists"`
	Genres     []string           `json:"genres"`
	Popularity int                `json:"popularity"`
	Features   *wireAudioFeatures `json:"audio_features,omitempty"`
}

type wireAudioFeatures struct {
	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	Valence          float64 `json:"valence"`
	Tempo            float64 `json:"tempo"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
	Speechiness      float64 `json:"speechiness"`
}

type trackListResponse struct {
	Tracks []wireTrack `json:"tracks"`
}

type audioFeaturesResponse struct {
	Features map[string]wireAudioFeatures `json:"features"`
}

func (w wireTrack) toTrack() recommend.Track {
	t := recommend.Track{
		ID:         w.ID,
		Title:      w.Title,
		Artists:    w.Artists,
		Genres:     w.Genres,
		Popularity: w.Popularity,
	}
	if w.Features != nil {
		t.Features = w.Features.toFeatures()
	}
	return t
}

func (w wireAudioFeatures) toFeatures() recommend.AudioFeatures {
	return recommend.AudioFeatures{
		Danceability:     w.Danceability,
		Energy:           w.Energy,
		Valence:          w.Valence,
		Tempo:            w.Tempo,
		Acousticness:     w.Acousticness,
		Instrumentalness: w.Instrumentalness,
		Speechiness:      w.Speechiness,
	}
}

// statusError reports a non-2xx response. Retryable for 5xx and 429.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.code, e.body)
}

func (e *statusError) retryable() bool {
	return e.code >= 500 || e.code == http.StatusTooManyRequests
}

// getJSON performs a budgeted, retried GET and decodes the response.
func (c *Client) getJSON(ctx context.Context, operation, path string, query url.Values, out interface{}) error {
	if c.budget.Tokens() < 1 {
		metrics.ProviderBudgetWaits.Inc()
	}
	if err := c.budget.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for call budget: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryBaseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		started := time.Now()
		err := c.doOnce(ctx, endpoint, out)
		metrics.RecordProviderCall(operation, time.Since(started), err)
		if err == nil {
			return nil
		}
		lastErr = err

		if serr, ok := err.(*statusError); ok && !serr.retryable() {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Debug().Err(err).Str("operation", operation).
			Int("attempt", attempt+1).Msg("provider call failed, retrying")
	}

	return fmt.Errorf("%w: %s after %d attempts: %v",
		recommend.ErrProviderUnavailable, operation, c.cfg.RetryAttempts+1, lastErr)
}

func (c *Client) doOnce(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Recommendations returns tracks related to the given seed tracks.
func (c *Client) Recommendations(ctx context.Context, seedTrackIDs []string, limit int) ([]recommend.Track, error) {
	query := url.Values{
		"seeds": {strings.Join(seedTrackIDs, ",")},
		"limit": {strconv.Itoa(limit)},
	}

	var resp trackListResponse
	if err := c.getJSON(ctx, "recommendations", "/v1/recommendations", query, &resp); err != nil {
		return nil, err
	}
	return toTracks(resp.Tracks), nil
}

// BrowseGenre returns tracks for a genre label.
func (c *Client) BrowseGenre(ctx context.Context, genre string, limit int) ([]recommend.Track, error) {
	query := url.Values{"limit": {strconv.Itoa(limit)}}

	var resp trackListResponse
	path := "/v1/genres/" + url.PathEscape(genre) + "/tracks"
	if err := c.getJSON(ctx, "browse_genre", path, query, &resp); err != nil {
		return nil, err
	}
	return toTracks(resp.Tracks), nil
}

// NewReleases returns recently released tracks.
func (c *Client) NewReleases(ctx context.Context, limit int) ([]recommend.Track, error) {
	query := url.Values{"limit": {strconv.Itoa(limit)}}

	var resp trackListResponse
	if err := c.getJSON(ctx, "new_releases", "/v1/new-releases", query, &resp); err != nil {
		return nil, err
	}
	return toTracks(resp.Tracks), nil
}

// Popular returns globally popular tracks, most popular first.
func (c *Client) Popular(ctx context.Context, limit int) ([]recommend.Track, error) {
	query := url.Values{"limit": {strconv.Itoa(limit)}}

	var resp trackListResponse
	if err := c.getJSON(ctx, "popular", "/v1/popular", query, &resp); err != nil {
		return nil, err
	}
	return toTracks(resp.Tracks), nil
}

// AudioFeatures returns audio descriptors for up to BatchSize track IDs
// per call; larger inputs are split into sequential batches.
func (c *Client) AudioFeatures(ctx context.Context, trackIDs []string) (map[string]recommend.AudioFeatures, error) {
	out := make(map[string]recommend.AudioFeatures, len(trackIDs))

	for start := 0; start < len(trackIDs); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(trackIDs) {
			end = len(trackIDs)
		}
		query := url.Values{"ids": {strings.Join(trackIDs[start:end], ",")}}

		var resp audioFeaturesResponse
		if err := c.getJSON(ctx, "audio_features", "/v1/audio-features", query, &resp); err != nil {
			return nil, err
		}
		for id, f := range resp.Features {
			out[id] = f.toFeatures()
		}
	}
	return out, nil
}

func toTracks(wire []wireTrack) []recommend.Track {
	tracks := make([]recommend.Track, 0, len(wire))
	for _, w := range wire {
		tracks = append(tracks, w.toTrack())
	}
	return tracks
}
