// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package recommend

import "testing"

func TestStageFor(t *testing.T) {
	tests := []struct {
		name        string
		accountAge  int
		historySize int
		want        ColdStartStage
	}{
		{"brand new account", 0, 0, StageNew},
		{"day seven", 7, 10, StageNew},
		{"day eight", 8, 10, StageRamping},
		{"day twenty-eight", 28, 10, StageRamping},
		{"day twenty-nine", 29, 10, StageEstablished},
		{"old account", 365, 500, StageEstablished},
		{"old account no history", 365, 0, StageNew},
		{"ramping-age account no history", 14, 0, StageNew},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := BalancedProfile("u1")
			profile.AccountAgeDays = tt.accountAge

			if got := StageFor(profile, tt.historySize); got != tt.want {
				t.Errorf("StageFor(age=%d, history=%d) = %s, want %s",
					tt.accountAge, tt.historySize, got, tt.want)
			}
		})
	}
}

func TestStageString(t *testing.T) {
	tests := []struct {
		stage ColdStartStage
		want  string
	}{
		{StageNew, "new"},
		{StageRamping, "ramping"},
		{StageEstablished, "established"},
		{ColdStartStage(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.stage.String(); got != tt.want {
			t.Errorf("ColdStartStage(%d).String() = %q, want %q", tt.stage, got, tt.want)
		}
	}
}

func TestWeightsForEachStageSumsToOne(t *testing.T) {
	cfg := DefaultConfig()

	for _, stage := range []ColdStartStage{StageNew, StageRamping, StageEstablished} {
		w := cfg.WeightsFor(stage)
		if !almostEqual(w.Sum(), 1.0) {
			t.Errorf("stage %s weights sum to %f, want 1.0", stage, w.Sum())
		}
	}
}

func TestWeightsForUnknownStageFallsBack(t *testing.T) {
	cfg := DefaultConfig()

	got := cfg.WeightsFor(ColdStartStage(99))
	want := cfg.StageWeights[StageEstablished]
	if got != want {
		t.Errorf("unknown stage weights = %+v, want established %+v", got, want)
	}
}

func TestNewStageIgnoresHistorySignal(t *testing.T) {
	cfg := DefaultConfig()

	w := cfg.WeightsFor(StageNew)
	if w.History != 0 || w.Diversity != 0 || w.Novelty != 0 {
		t.Errorf("new stage should blend only personality and popularity, got %+v", w)
	}
	if w.Personality == 0 || w.Popularity == 0 {
		t.Errorf("new stage should weight personality and popularity, got %+v", w)
	}
}
