// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package recommend

// ColdStartStage classifies a user's account maturity. The stage steers
// candidate sourcing so new accounts lean on personality and popularity
// until enough listening history accumulates; the scoring formula stays
// fixed across stages.
type ColdStartStage int

const (
	// StageNew covers accounts up to 7 days old.
	StageNew ColdStartStage = iota
	// StageRamping covers accounts 8 to 28 days old.
	StageRamping
	// StageEstablished covers accounts 29 days and older.
	StageEstablished
)

// Stage age boundaries in days.
const (
	newStageMaxAgeDays     = 7
	rampingStageMaxAgeDays = 28
)

// String returns a human-readable stage name.
func (s ColdStartStage) String() string {
	switch s {
	case StageNew:
		return "new"
	case StageRamping:
		return "ramping"
	case StageEstablished:
		return "established"
	default:
		return "unknown"
	}
}

// StageFor returns the cold-start stage for a profile. A user with no
// listening history is held at StageNew regardless of account age, since
// the history component has nothing to work with.
func StageFor(profile UserProfile, historySize int) ColdStartStage {
	if historySize == 0 {
		return StageNew
	}
	switch {
	case profile.AccountAgeDays <= newStageMaxAgeDays:
		return StageNew
	case profile.AccountAgeDays <= rampingStageMaxAgeDays:
		return StageRamping
	default:
		return StageEstablished
	}
}

// WeightsFor returns the emphasis blend for the given stage, reported as
// RecommendationSet metadata.
func (c Config) WeightsFor(stage ColdStartStage) Weights {
	if w, ok := c.StageWeights[stage]; ok {
		return w
	}
	return c.StageWeights[StageEstablished]
}
