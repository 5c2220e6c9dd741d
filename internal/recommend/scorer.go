// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package recommend

import (
	"math"
	"sort"
	"strings"
)

// traitAffinity maps one Big Five trait to its preferred audio targets
// and genre affinities. Feature targets are on the normalized [0,1]
// scale; tempo targets are BPM and normalized at comparison time.
type traitAffinity struct {
	weight  float64
	targets []featureTarget
	// preferred genres add trait*0.5 to the trait score on match.
	preferred []string
	// avoided genres subtract trait*0.3 on match.
	avoided []string
}

type featureTarget struct {
	feature string
	value   float64
}

// traitAffinities is the fixed trait-to-audio mapping. Trait weights sum
// to 1.0.
var traitAffinities = map[string]traitAffinity{
	"openness": {
		weight: 0.25,
		targets: []featureTarget{
			{"valence", 0.5},
			{"acousticness", 0.6},
		},
		preferred: []string{"classical", "folk", "world", "jazz", "experimental"},
		avoided:   []string{"mainstream pop"},
	},
	"conscientiousness": {
		weight: 0.15,
		targets: []featureTarget{
			{"energy", 0.4},
			{"tempo", 100},
		},
		avoided: []string{"rock", "metal", "punk"},
	},
	"extraversion": {
		weight: 0.25,
		targets: []featureTarget{
			{"energy", 0.75},
			{"danceability", 0.7},
			{"valence", 0.8},
		},
		preferred: []string{"pop", "dance", "hip-hop", "electronic"},
	},
	"agreeableness": {
		weight:    0.15,
		preferred: []string{"jazz", "country", "soul", "r&b"},
		avoided:   []string{"death-metal", "hardcore"},
	},
	"neuroticism": {
		weight: 0.20,
		targets: []featureTarget{
			{"valence", 0.7},
		},
		preferred: []string{"soul", "pop", "indie"},
		avoided:   []string{"metal", "hard rock"},
	},
}

// Fixed component weights for the final ranking formula. The cold-start
// stage steers candidate sourcing and is reported as set metadata; it
// never alters these weights.
const (
	weightHistory     = 0.4
	weightPersonality = 0.4
	weightDiversity   = 0.1
	weightNovelty     = 0.1
)

// Scorer computes component and composite scores for candidate tracks.
type Scorer struct {
	cfg Config
}

// NewScorer creates a scorer with the given configuration.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// HistorySimilarity computes the cosine similarity between a candidate's
// feature vector and the user's listening history, weighted so recent
// plays count more (linear decay 1.0 down to 0.5). Returns the neutral
// 0.5 for an empty history. History must be ordered most recent first.
func (s *Scorer) HistorySimilarity(t Track, history []HistoryTrack) float64 {
	if len(history) == 0 {
		return 0.5
	}

	candidate := t.Features.Vector()
	var weightedSum, weightTotal float64
	for i, h := range history {
		sim := cosineSimilarity(candidate, h.Track.Features.Vector())
		w := recencyWeight(i, len(history))
		weightedSum += sim * w
		weightTotal += w
	}

	return clamp01(weightedSum / weightTotal)
}

// recencyWeight returns the linear decay weight for position i of n,
// from 1.0 at the most recent down to 0.5 at the oldest.
func recencyWeight(i, n int) float64 {
	if n <= 1 {
		return 1.0
	}
	return 1.0 - 0.5*float64(i)/float64(n-1)
}

// PersonalityMatch scores how well a track fits the user's Big Five
// profile using the fixed trait-to-audio mapping. Each trait contributes
// feature-distance components weighted by the trait value, plus genre
// bonuses and penalties, averaged and combined by trait weight.
func (s *Scorer) PersonalityMatch(t Track, profile UserProfile) float64 {
	genreBlob := strings.ToLower(strings.Join(t.Genres, " "))

	traits := map[string]float64{
		"openness":          profile.Openness,
		"conscientiousness": profile.Conscientiousness,
		"extraversion":      profile.Extraversion,
		"agreeableness":     profile.Agreeableness,
		"neuroticism":       profile.Neuroticism,
	}

	var totalScore, totalWeight float64
	for name, traitValue := range traits {
		mapping := traitAffinities[name]

		var traitScore float64
		components := 0

		for _, target := range mapping.targets {
			actual := featureValue(t.Features, target.feature)
			targetValue := target.value
			if target.feature == "tempo" {
				targetValue = clamp01((targetValue - 40) / 160)
			}
			traitScore += (1.0 - math.Abs(actual-targetValue)) * traitValue
			components++
		}

		if len(mapping.preferred) > 0 && genreMatches(genreBlob, mapping.preferred) {
			traitScore += traitValue * 0.5
			components++
		}
		if len(mapping.avoided) > 0 && genreMatches(genreBlob, mapping.avoided) {
			traitScore -= traitValue * 0.3
		}

		if components > 0 {
			traitScore /= float64(components)
		}

		totalScore += traitScore * mapping.weight
		totalWeight += mapping.weight
	}

	if totalWeight == 0 {
		return 0.5
	}
	return clamp01(totalScore / totalWeight)
}

// featureValue returns the named normalized feature from f.
func featureValue(f AudioFeatures, name string) float64 {
	switch name {
	case "danceability":
		return f.Danceability
	case "energy":
		return f.Energy
	case "valence":
		return f.Valence
	case "tempo":
		return f.NormalizedTempo()
	case "acousticness":
		return f.Acousticness
	case "instrumentalness":
		return f.Instrumentalness
	case "speechiness":
		return f.Speechiness
	default:
		return 0.5
	}
}

// genreMatches reports whether any keyword occurs in the joined,
// lowercased genre string.
func genreMatches(genreBlob string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(genreBlob, kw) {
			return true
		}
	}
	return false
}

// DiversityBonus scores how much variety a candidate adds relative to
// tracks already selected in this pass: the inverse of its average
// similarity to them, with a +0.2 bonus for an unseen artist. The first
// selection always scores 1.0.
func (s *Scorer) DiversityBonus(t Track, selected []Track) float64 {
	if len(selected) == 0 {
		return 1.0
	}

	candidate := t.Features.Vector()
	var simSum float64
	artistSeen := false
	artist := strings.ToLower(t.PrimaryArtist())
	for _, sel := range selected {
		simSum += cosineSimilarity(candidate, sel.Features.Vector())
		if strings.ToLower(sel.PrimaryArtist()) == artist {
			artistSeen = true
		}
	}

	diversity := 1.0 - simSum/float64(len(selected))
	if !artistSeen {
		diversity += 0.2
	}
	return clamp01(diversity)
}

// NoveltyFactor scores how much discovery a candidate represents.
// Tracks already in history score 0.2. Otherwise new artists score 0.9
// and known artists 0.6, scaled down by up to 30% for popular tracks.
// With no history at all the factor is a flat 0.8.
func (s *Scorer) NoveltyFactor(t Track, history []HistoryTrack) float64 {
	if len(history) == 0 {
		return 0.8
	}

	artist := strings.ToLower(t.PrimaryArtist())
	knownArtist := false
	for _, h := range history {
		if h.Track.ID == t.ID {
			return 0.2
		}
		if strings.ToLower(h.Track.PrimaryArtist()) == artist {
			knownArtist = true
		}
	}

	novelty := 0.9
	if knownArtist {
		novelty = 0.6
	}

	novelty *= 1.0 - float64(t.Popularity)/100.0*0.3
	return clamp01(novelty)
}

// PopularityScore maps provider popularity (0-100) into [0, 1].
func (s *Scorer) PopularityScore(t Track) float64 {
	return clamp01(float64(t.Popularity) / 100.0)
}

// Composite computes all components for one candidate and combines them
// with the fixed weights: 0.4 history, 0.4 personality, 0.1 diversity,
// 0.1 novelty. rlAdjustment is the bounded reinforcement signal and is
// added after the weighted blend; the result is clamped to [0, 1].
// Popularity is reported in the breakdown but only breaks ties.
func (s *Scorer) Composite(t Track, history []HistoryTrack, profile UserProfile, selected []Track, rlAdjustment float64) ScoredTrack {
	historySim := s.HistorySimilarity(t, history)
	personality := s.PersonalityMatch(t, profile)
	diversity := s.DiversityBonus(t, selected)
	novelty := s.NoveltyFactor(t, history)

	score := weightHistory*historySim +
		weightPersonality*personality +
		weightDiversity*diversity +
		weightNovelty*novelty

	score = clamp01(score + rlAdjustment)

	return ScoredTrack{
		Track: t,
		Score: score,
		Components: map[string]float64{
			"history":       historySim,
			"personality":   personality,
			"diversity":     diversity,
			"novelty":       novelty,
			"popularity":    s.PopularityScore(t),
			"rl_adjustment": rlAdjustment,
		},
	}
}

// AdjustmentFunc supplies the bounded reinforcement adjustment for a
// candidate. Implementations must return values in
// [-RLAdjustmentScale/2, +RLAdjustmentScale/2].
type AdjustmentFunc func(t Track) float64

// Rank scores the candidate pool and returns the top maxResults tracks,
// best first. Diversity is computed against candidates already admitted
// to the running selection in iteration order, so it reflects only the
// current pass. Ties break by popularity descending, then track ID.
func (s *Scorer) Rank(candidates []Track, history []HistoryTrack, profile UserProfile, adjust AdjustmentFunc, maxResults int) []ScoredTrack {
	if maxResults <= 0 {
		maxResults = s.cfg.DefaultResults
	}

	scored := make([]ScoredTrack, 0, len(candidates))
	selected := make([]Track, 0, maxResults)

	for _, candidate := range candidates {
		var rlAdj float64
		if adjust != nil {
			rlAdj = adjust(candidate)
		}

		st := s.Composite(candidate, history, profile, selected, rlAdj)
		scored = append(scored, st)

		if len(selected) < maxResults {
			selected = append(selected, candidate)
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Track.Popularity != scored[j].Track.Popularity {
			return scored[i].Track.Popularity > scored[j].Track.Popularity
		}
		return scored[i].Track.ID < scored[j].Track.ID
	})

	if len(scored) > maxResults {
		scored = scored[:maxResults]
	}
	return scored
}

// cosineSimilarity computes the cosine similarity between two vectors
// of equal length. Returns 0 for zero vectors.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
