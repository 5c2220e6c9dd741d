// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package recommend

import (
	"fmt"
	"math"
	"time"
)

// Weights is a cold-start emphasis blend over the scoring signals. It
// steers candidate sourcing and is reported as set metadata; the ranking
// formula itself uses the fixed scorer weights. A blend is valid when
// its components sum to 1.0.
type Weights struct {
	History     float64 `json:"history"`
	Personality float64 `json:"personality"`
	Diversity   float64 `json:"diversity"`
	Novelty     float64 `json:"novelty"`
	Popularity  float64 `json:"popularity"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.History + w.Personality + w.Diversity + w.Novelty + w.Popularity
}

// Normalize scales the weights so they sum to 1.0.
// A zero weight set is returned unchanged.
func (w Weights) Normalize() Weights {
	sum := w.Sum()
	if sum == 0 {
		return w
	}
	return Weights{
		History:     w.History / sum,
		Personality: w.Personality / sum,
		Diversity:   w.Diversity / sum,
		Novelty:     w.Novelty / sum,
		Popularity:  w.Popularity / sum,
	}
}

// ToMap returns the weights keyed by component name.
func (w Weights) ToMap() map[string]float64 {
	return map[string]float64{
		"history":     w.History,
		"personality": w.Personality,
		"diversity":   w.Diversity,
		"novelty":     w.Novelty,
		"popularity":  w.Popularity,
	}
}

// Config holds recommendation engine settings.
type Config struct {
	// DefaultResults is the track count returned when a request leaves
	// MaxResults unset.
	DefaultResults int `json:"default_results"`

	// MaxResults caps the per-request track count.
	MaxResults int `json:"max_results"`

	// CandidateTarget is the desired candidate pool size.
	// CandidateMin and CandidateMax bound it.
	CandidateTarget int `json:"candidate_target"`
	CandidateMin    int `json:"candidate_min"`
	CandidateMax    int `json:"candidate_max"`

	// HistoryDepth is how many recent history tracks feed similarity.
	HistoryDepth int `json:"history_depth"`

	// CacheTTL is how long a generated set stays fresh.
	CacheTTL time.Duration `json:"cache_ttl"`

	// StageWeights maps each cold-start stage to its emphasis blend.
	// Each entry must sum to 1.0.
	StageWeights map[ColdStartStage]Weights `json:"stage_weights"`

	// RLAdjustmentScale bounds the reinforcement adjustment: the learner
	// signal in [0,1] maps to [-scale/2, +scale/2].
	RLAdjustmentScale float64 `json:"rl_adjustment_scale"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		DefaultResults:  50,
		MaxResults:      100,
		CandidateTarget: 300,
		CandidateMin:    200,
		CandidateMax:    500,
		HistoryDepth:    50,
		CacheTTL:        24 * time.Hour,
		StageWeights: map[ColdStartStage]Weights{
			StageNew:         {Personality: 0.8, Popularity: 0.2},
			StageRamping:     {Personality: 0.6, History: 0.4},
			StageEstablished: {History: 0.4, Personality: 0.4, Diversity: 0.1, Novelty: 0.1},
		},
		RLAdjustmentScale: 0.1,
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.DefaultResults <= 0 {
		return fmt.Errorf("default_results must be positive, got %d", c.DefaultResults)
	}
	if c.MaxResults < c.DefaultResults {
		return fmt.Errorf("max_results %d must be >= default_results %d", c.MaxResults, c.DefaultResults)
	}
	if c.CandidateMin > c.CandidateTarget || c.CandidateTarget > c.CandidateMax {
		return fmt.Errorf("candidate bounds must satisfy min <= target <= max, got %d/%d/%d",
			c.CandidateMin, c.CandidateTarget, c.CandidateMax)
	}
	if c.HistoryDepth <= 0 {
		return fmt.Errorf("history_depth must be positive, got %d", c.HistoryDepth)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("cache_ttl must be positive, got %v", c.CacheTTL)
	}
	if c.RLAdjustmentScale < 0 || c.RLAdjustmentScale > 0.5 {
		return fmt.Errorf("rl_adjustment_scale must be in [0, 0.5], got %f", c.RLAdjustmentScale)
	}
	for _, stage := range []ColdStartStage{StageNew, StageRamping, StageEstablished} {
		w, ok := c.StageWeights[stage]
		if !ok {
			return fmt.Errorf("missing stage weights for %s", stage)
		}
		if math.Abs(w.Sum()-1.0) > 1e-9 {
			return fmt.Errorf("stage %s weights sum to %f, want 1.0", stage, w.Sum())
		}
	}
	return nil
}

// Clone returns a deep copy of the configuration.
func (c Config) Clone() Config {
	out := c
	out.StageWeights = make(map[ColdStartStage]Weights, len(c.StageWeights))
	for stage, w := range c.StageWeights {
		out.StageWeights[stage] = w
	}
	return out
}
