// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package recommend

import (
	"fmt"
	"time"
)

// AudioFeatures holds the bounded audio descriptors used for scoring.
// All fields except Tempo are in [0, 1]. Tempo is beats per minute.
type AudioFeatures struct {
	Danceability     float64 `json:"danceability"`
	Energy           float64 `json:"energy"`
	Valence          float64 `json:"valence"`
	Tempo            float64 `json:"tempo"`
	Acousticness     float64 `json:"acousticness"`
	Instrumentalness float64 `json:"instrumentalness"`
	Speechiness      float64 `json:"speechiness"`
}

// NeutralFeatures returns the feature vector assumed when a track's audio
// analysis is unavailable: every descriptor at its midpoint.
func NeutralFeatures() AudioFeatures {
	return AudioFeatures{
		Danceability:     0.5,
		Energy:           0.5,
		Valence:          0.5,
		Tempo:            120,
		Acousticness:     0.5,
		Instrumentalness: 0.5,
		Speechiness:      0.5,
	}
}

// NormalizedTempo maps BPM into [0, 1]: (tempo - 40) / 160, clamped.
// 40 BPM and below map to 0, 200 BPM and above map to 1.
func (f AudioFeatures) NormalizedTempo() float64 {
	return clamp01((f.Tempo - 40) / 160)
}

// Vector returns the feature values as a fixed-order slice with tempo
// normalized, suitable for cosine similarity.
func (f AudioFeatures) Vector() []float64 {
	return []float64{
		f.Danceability,
		f.Energy,
		f.Valence,
		f.NormalizedTempo(),
		f.Acousticness,
		f.Instrumentalness,
		f.Speechiness,
	}
}

// CandidateSource identifies which retrieval path produced a candidate.
type CandidateSource int

const (
	// SourceSeeded indicates provider recommendations seeded by history.
	SourceSeeded CandidateSource = iota
	// SourceGenre indicates a genre browse query.
	SourceGenre
	// SourceNewRelease indicates the new-releases feed.
	SourceNewRelease
	// SourcePopularity indicates the popularity fallback list.
	SourcePopularity
)

// String returns a human-readable source name.
func (s CandidateSource) String() string {
	switch s {
	case SourceSeeded:
		return "seeded"
	case SourceGenre:
		return "genre"
	case SourceNewRelease:
		return "new_release"
	case SourcePopularity:
		return "popularity"
	default:
		return "unknown"
	}
}

// Track is a candidate item. Candidate metadata is immutable for the
// duration of a scoring pass.
type Track struct {
	// ID is the provider's unique track identifier.
	ID string `json:"id"`

	// Title is the track title.
	Title string `json:"title"`

	// Artists lists the performing artists, primary first.
	Artists []string `json:"artists"`

	// Genres lists genre labels, primary first.
	Genres []string `json:"genres"`

	// Popularity is the provider popularity score (0-100).
	Popularity int `json:"popularity"`

	// Features are the audio descriptors. Tracks whose analysis lookup
	// failed carry NeutralFeatures.
	Features AudioFeatures `json:"features"`

	// Source records which retrieval path produced this candidate.
	Source CandidateSource `json:"source"`
}

// PrimaryArtist returns the first artist, or empty string.
func (t Track) PrimaryArtist() string {
	if len(t.Artists) == 0 {
		return ""
	}
	return t.Artists[0]
}

// PrimaryGenre returns the first genre label, or empty string.
func (t Track) PrimaryGenre() string {
	if len(t.Genres) == 0 {
		return ""
	}
	return t.Genres[0]
}

// HistoryTrack is a listening-history entry with engagement metadata.
type HistoryTrack struct {
	Track     Track     `json:"track"`
	PlayedAt  time.Time `json:"played_at"`
	PlayCount int       `json:"play_count"`
}

// UserProfile holds the Big Five personality traits and account facts
// used for cold-start staging. Traits are in [0, 1].
type UserProfile struct {
	UserID            string  `json:"user_id"`
	Openness          float64 `json:"openness"`
	Conscientiousness float64 `json:"conscientiousness"`
	Extraversion      float64 `json:"extraversion"`
	Agreeableness     float64 `json:"agreeableness"`
	Neuroticism       float64 `json:"neuroticism"`

	// AccountAgeDays is the age of the account in whole days.
	AccountAgeDays int `json:"account_age_days"`

	// Interactions is the lifetime count of feedback events.
	Interactions int64 `json:"interactions"`
}

// BalancedProfile returns a profile with every trait at 0.5, used when no
// personality assessment exists for the user.
func BalancedProfile(userID string) UserProfile {
	return UserProfile{
		UserID:            userID,
		Openness:          0.5,
		Conscientiousness: 0.5,
		Extraversion:      0.5,
		Agreeableness:     0.5,
		Neuroticism:       0.5,
	}
}

// FeedbackKind classifies explicit and implicit feedback events.
type FeedbackKind int

const (
	// FeedbackLike is an explicit positive rating.
	FeedbackLike FeedbackKind = iota
	// FeedbackDislike is an explicit negative rating.
	FeedbackDislike
	// FeedbackPlay indicates the track was played.
	FeedbackPlay
	// FeedbackSkip indicates the track was skipped.
	FeedbackSkip
	// FeedbackSave indicates the track was saved to the library.
	FeedbackSave
	// FeedbackAddToPlaylist indicates the track was added to a playlist.
	FeedbackAddToPlaylist
	// FeedbackRepeat indicates a repeat play.
	FeedbackRepeat
	// FeedbackShare indicates the track was shared.
	FeedbackShare
)

// String returns the wire name for the feedback kind.
func (k FeedbackKind) String() string {
	switch k {
	case FeedbackLike:
		return "like"
	case FeedbackDislike:
		return "dislike"
	case FeedbackPlay:
		return "play"
	case FeedbackSkip:
		return "skip"
	case FeedbackSave:
		return "save"
	case FeedbackAddToPlaylist:
		return "add_to_playlist"
	case FeedbackRepeat:
		return "repeat"
	case FeedbackShare:
		return "share"
	default:
		return "unknown"
	}
}

// BaseReward returns the base reinforcement reward for the feedback kind.
func (k FeedbackKind) BaseReward() float64 {
	switch k {
	case FeedbackLike:
		return 1.0
	case FeedbackDislike:
		return -1.0
	case FeedbackPlay:
		return 0.8
	case FeedbackSkip:
		return -0.4
	case FeedbackSave:
		return 1.5
	case FeedbackAddToPlaylist:
		return 1.8
	case FeedbackRepeat:
		return 1.2
	case FeedbackShare:
		return 1.3
	default:
		return 0.0
	}
}

// Positive reports whether the kind is a positive signal.
func (k FeedbackKind) Positive() bool {
	return k.BaseReward() > 0
}

// ParseFeedbackKind converts a wire name to a FeedbackKind.
func ParseFeedbackKind(s string) (FeedbackKind, error) {
	switch s {
	case "like":
		return FeedbackLike, nil
	case "dislike":
		return FeedbackDislike, nil
	case "play":
		return FeedbackPlay, nil
	case "skip":
		return FeedbackSkip, nil
	case "save":
		return FeedbackSave, nil
	case "add_to_playlist":
		return FeedbackAddToPlaylist, nil
	case "repeat":
		return FeedbackRepeat, nil
	case "share":
		return FeedbackShare, nil
	default:
		return 0, fmt.Errorf("unknown feedback kind %q", s)
	}
}

// InteractionEvent is a single feedback event as accepted by the API.
type InteractionEvent struct {
	// UserID identifies the user giving feedback.
	UserID string `json:"user_id"`

	// TrackID references a track previously served or known to the system.
	TrackID string `json:"track_id"`

	// Kind classifies the feedback.
	Kind FeedbackKind `json:"kind"`

	// Timestamp is when the interaction occurred.
	Timestamp time.Time `json:"timestamp"`

	// ListenDuration and TrackDuration derive the completion ratio.
	ListenDuration time.Duration `json:"listen_duration,omitempty"`
	TrackDuration  time.Duration `json:"track_duration,omitempty"`

	// TimeToAction is how quickly the user reacted after the track started.
	TimeToAction time.Duration `json:"time_to_action,omitempty"`

	// Context is an optional situational tag (workout, party, study, ...).
	Context string `json:"context,omitempty"`

	// Repeated marks a repeat interaction with the same track.
	Repeated bool `json:"repeated,omitempty"`
}

// CompletionRatio returns ListenDuration / TrackDuration in [0, 1],
// or -1 when durations are unknown.
func (e InteractionEvent) CompletionRatio() float64 {
	if e.TrackDuration <= 0 || e.ListenDuration < 0 {
		return -1
	}
	return clamp01(float64(e.ListenDuration) / float64(e.TrackDuration))
}

// ScoredTrack pairs a track with its final score and component breakdown.
type ScoredTrack struct {
	// Track is the candidate metadata.
	Track Track `json:"track"`

	// Score is the combined recommendation score in [0, 1].
	Score float64 `json:"score"`

	// Components breaks the score down by signal:
	// history, personality, diversity, novelty, popularity, rl_adjustment.
	Components map[string]float64 `json:"components,omitempty"`

	// Explore marks tracks injected by epsilon-greedy exploration.
	Explore bool `json:"explore,omitempty"`
}

// RecommendationSet is an ordered recommendation response.
type RecommendationSet struct {
	// UserID is the user the set was generated for.
	UserID string `json:"user_id"`

	// Tracks is the ranked recommendation list, best first.
	Tracks []ScoredTrack `json:"tracks"`

	// GeneratedAt and ExpiresAt bound the set's validity window.
	GeneratedAt time.Time `json:"generated_at"`
	ExpiresAt   time.Time `json:"expires_at"`

	// Stage is the cold-start stage the set was generated under.
	Stage ColdStartStage `json:"stage"`

	// StageEmphasis records the stage's blend by component name.
	// Metadata for clients; not a scoring input.
	StageEmphasis map[string]float64 `json:"stage_emphasis,omitempty"`

	// CandidateCount is the size of the scored candidate pool.
	CandidateCount int `json:"candidate_count"`

	// Degraded marks sets produced under provider failure or served stale.
	Degraded bool `json:"degraded,omitempty"`

	// DegradedReason explains the degradation when Degraded is set.
	DegradedReason string `json:"degraded_reason,omitempty"`

	// FromCache marks sets served from the recommendation cache.
	FromCache bool `json:"from_cache,omitempty"`
}

// Request is a recommendation request.
type Request struct {
	// UserID is the user to generate recommendations for.
	UserID string `json:"user_id"`

	// MaxResults is the number of tracks to return.
	// Defaults to Config.DefaultResults if zero.
	MaxResults int `json:"max_results,omitempty"`

	// ForceRefresh bypasses the cache and regenerates.
	ForceRefresh bool `json:"force_refresh,omitempty"`
}

// LearnerStats summarizes a user's reinforcement learner state.
type LearnerStats struct {
	Episodes      int     `json:"episodes"`
	TotalReward   float64 `json:"total_reward"`
	AverageReward float64 `json:"average_reward"`
	Epsilon       float64 `json:"epsilon"`
	States        int     `json:"states"`
}

// FeedbackResult reports the outcome of a processed feedback event.
type FeedbackResult struct {
	// Accepted is true when the event passed validation and was applied.
	Accepted bool `json:"accepted"`

	// Reward is the shaped reward applied to the learner.
	Reward float64 `json:"reward"`

	// QValue is the updated state value after the event.
	QValue float64 `json:"q_value"`

	// State is the discretized state key the event updated.
	State string `json:"state"`

	// Stats is the learner state summary after the update.
	Stats LearnerStats `json:"stats"`
}

// GenreInsight is a per-genre aggregate of feedback performance.
type GenreInsight struct {
	Genre         string  `json:"genre"`
	AverageReward float64 `json:"average_reward"`
	Interactions  int64   `json:"interactions"`
}

// Insights is the analytics view returned by GetInsights.
type Insights struct {
	UserID       string         `json:"user_id"`
	Stats        LearnerStats   `json:"stats"`
	TopGenres    []GenreInsight `json:"top_genres"`
	BottomGenres []GenreInsight `json:"bottom_genres"`
	Stage        ColdStartStage `json:"stage"`
}

// clamp01 bounds v to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
