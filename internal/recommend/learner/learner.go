// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package learner

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/metrics"
	"github.com/tunedrift/tunedrift/internal/recommend"
)

// Epsilon decay parameters: exploration starts at epsilonStart and
// decays multiplicatively every epsilonDecayStep episodes down to
// epsilonFloor.
const (
	epsilonStart     = 0.1
	epsilonFloor     = 0.01
	epsilonDecay     = 0.995
	epsilonDecayStep = 10
)

// Reward shaping modifiers layered on FeedbackKind.BaseReward.
const (
	completionHighBonus   = 0.4
	completionMidBonus    = 0.2
	completionLowPenalty  = -0.3
	quickReactionBonus    = 0.15
	contextMatchBonus     = 0.1
	repeatedBonus         = 0.3
	quickReactionWindow   = 3 * time.Second
)

// Config holds Q-learning parameters.
type Config struct {
	// LearningRate is the Q-update step size in (0, 1].
	LearningRate float64

	// ReplayBufferSize bounds the per-user experience ring.
	ReplayBufferSize int

	// ReplayBatchSize is how many experiences replay per batch.
	ReplayBatchSize int

	// ReplayEvery triggers a replay batch every N processed events.
	ReplayEvery int

	// AdjustmentScale maps Q-values to the bounded score adjustment:
	// output lies in [-AdjustmentScale/2, +AdjustmentScale/2].
	AdjustmentScale float64
}

// DefaultConfig returns the default learner configuration.
func DefaultConfig() Config {
	return Config{
		LearningRate:     0.1,
		ReplayBufferSize: 10000,
		ReplayBatchSize:  32,
		ReplayEvery:      10,
		AdjustmentScale:  0.1,
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.LearningRate <= 0 || c.LearningRate > 1 {
		return fmt.Errorf("learning rate must be in (0, 1], got %f", c.LearningRate)
	}
	if c.ReplayBufferSize <= 0 {
		return fmt.Errorf("replay buffer size must be positive, got %d", c.ReplayBufferSize)
	}
	if c.ReplayBatchSize <= 0 || c.ReplayBatchSize > c.ReplayBufferSize {
		return fmt.Errorf("replay batch size must be in [1, %d], got %d", c.ReplayBufferSize, c.ReplayBatchSize)
	}
	if c.ReplayEvery <= 0 {
		return fmt.Errorf("replay interval must be positive, got %d", c.ReplayEvery)
	}
	if c.AdjustmentScale < 0 || c.AdjustmentScale > 0.5 {
		return fmt.Errorf("adjustment scale must be in [0, 0.5], got %f", c.AdjustmentScale)
	}
	return nil
}

// experience is one replayable Q-update.
type experience struct {
	State  string  `json:"state"`
	Reward float64 `json:"reward"`
}

// userState is the mutable learner state for one user. All access goes
// through its mutex so concurrent feedback for the same user serializes.
type userState struct {
	mu          sync.Mutex
	q           map[string]float64
	visits      map[string]int
	episodes    int
	totalReward float64
	buffer      []experience
	bufferNext  int
	bufferFull  bool
}

func newUserState(bufferSize int) *userState {
	return &userState{
		q:      make(map[string]float64),
		visits: make(map[string]int),
		buffer: make([]experience, 0, bufferSize),
	}
}

// Registry manages per-user learners and implements recommend.Learner.
type Registry struct {
	cfg    Config
	logger zerolog.Logger

	mu    sync.RWMutex
	users map[string]*userState

	rngMu sync.Mutex
	rng   *rand.Rand
}

var _ recommend.Learner = (*Registry)(nil)

// NewRegistry creates a learner registry.
//
//nolint:gocritic // hugeParam: zerolog.Logger passed by value per convention
func NewRegistry(cfg Config, logger zerolog.Logger) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid learner config: %w", err)
	}
	return &Registry{
		cfg:    cfg,
		logger: logger.With().Str("component", "learner").Logger(),
		users:  make(map[string]*userState),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // exploration sampling, not crypto
	}, nil
}

// user returns the state for userID, creating it on first use.
func (r *Registry) user(userID string) *userState {
	r.mu.RLock()
	u, ok := r.users[userID]
	r.mu.RUnlock()
	if ok {
		return u
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok = r.users[userID]; ok {
		return u
	}
	u = newUserState(r.cfg.ReplayBufferSize)
	r.users[userID] = u
	return u
}

// epsilonAt computes the exploration rate after n episodes. Pure so the
// rate survives restarts without separate bookkeeping.
func epsilonAt(n int) float64 {
	eps := epsilonStart * math.Pow(epsilonDecay, float64(n)/float64(epsilonDecayStep))
	return math.Max(epsilonFloor, eps)
}

// Epsilon returns the user's current exploration rate.
func (r *Registry) Epsilon(userID string) float64 {
	u := r.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	return epsilonAt(u.episodes)
}

// Adjustment returns the bounded score adjustment for a candidate: the
// state's Q-value clamped to [-1, 1] and scaled into
// [-AdjustmentScale/2, +AdjustmentScale/2]. Unvisited states adjust by
// zero.
func (r *Registry) Adjustment(userID string, t recommend.Track, profile recommend.UserProfile) float64 {
	u := r.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()

	q, ok := u.q[StateKey(t, profile)]
	if !ok {
		return 0
	}
	if q > 1 {
		q = 1
	} else if q < -1 {
		q = -1
	}
	return q / 2 * r.cfg.AdjustmentScale
}

// ShapeReward computes the shaped reward for an event: the kind's base
// reward plus completion, reaction-speed, context and repeat modifiers.
func ShapeReward(event recommend.InteractionEvent) float64 {
	reward := event.Kind.BaseReward()

	if ratio := event.CompletionRatio(); ratio >= 0 {
		switch {
		case ratio > 0.9:
			reward += completionHighBonus
		case ratio > 0.5:
			reward += completionMidBonus
		case ratio < 0.2:
			reward += completionLowPenalty
		}
	}

	if event.TimeToAction > 0 && event.TimeToAction < quickReactionWindow &&
		(event.Kind == recommend.FeedbackLike || event.Kind == recommend.FeedbackPlay) {
		reward += quickReactionBonus
	}

	ctxTag := strings.ToLower(event.Context)
	if (ctxTag == "workout" || ctxTag == "party") && event.Kind == recommend.FeedbackLike {
		reward += contextMatchBonus
	}

	if event.Repeated {
		reward += repeatedBonus
	}

	return reward
}

// Process applies one feedback event: shapes the reward, updates the
// state's Q-value, records the experience and periodically replays a
// sampled batch.
func (r *Registry) Process(event recommend.InteractionEvent, t recommend.Track, profile recommend.UserProfile) (recommend.FeedbackResult, error) {
	state := StateKey(t, profile)
	reward := ShapeReward(event)

	u := r.user(event.UserID)
	u.mu.Lock()
	defer u.mu.Unlock()

	qValue := u.applyUpdate(state, reward, r.cfg.LearningRate)
	u.episodes++
	u.totalReward += reward
	u.record(experience{State: state, Reward: reward}, r.cfg.ReplayBufferSize)

	if u.episodes%r.cfg.ReplayEvery == 0 {
		r.replayLocked(u)
	}

	metrics.LearnerQTableSize.WithLabelValues(userBucket(event.UserID)).Set(float64(len(u.q)))

	return recommend.FeedbackResult{
		Accepted: true,
		Reward:   reward,
		QValue:   qValue,
		State:    state,
		Stats:    u.statsLocked(),
	}, nil
}

// applyUpdate performs the incremental Q-update for one state and
// returns the new value. Caller holds u.mu.
func (u *userState) applyUpdate(state string, reward, learningRate float64) float64 {
	q := u.q[state]
	q += learningRate * (reward - q)
	u.q[state] = q
	u.visits[state]++
	return q
}

// record appends an experience to the ring buffer. Caller holds u.mu.
func (u *userState) record(exp experience, capacity int) {
	if len(u.buffer) < capacity {
		u.buffer = append(u.buffer, exp)
		return
	}
	u.buffer[u.bufferNext] = exp
	u.bufferNext = (u.bufferNext + 1) % capacity
	u.bufferFull = true
}

// replayLocked re-applies a random sample of past experiences so rare
// states keep converging between fresh events. Caller holds u.mu.
func (r *Registry) replayLocked(u *userState) {
	if len(u.buffer) == 0 {
		return
	}

	batch := r.cfg.ReplayBatchSize
	if batch > len(u.buffer) {
		batch = len(u.buffer)
	}

	r.rngMu.Lock()
	for i := 0; i < batch; i++ {
		exp := u.buffer[r.rng.Intn(len(u.buffer))]
		u.applyUpdate(exp.State, exp.Reward, r.cfg.LearningRate)
	}
	r.rngMu.Unlock()

	metrics.LearnerReplayBatches.Inc()
}

// statsLocked summarizes the user's learner state. Caller holds u.mu.
func (u *userState) statsLocked() recommend.LearnerStats {
	avg := 0.0
	if u.episodes > 0 {
		avg = u.totalReward / float64(u.episodes)
	}
	return recommend.LearnerStats{
		Episodes:      u.episodes,
		TotalReward:   u.totalReward,
		AverageReward: avg,
		Epsilon:       epsilonAt(u.episodes),
		States:        len(u.q),
	}
}

// Stats returns the user's learner summary.
func (r *Registry) Stats(userID string) recommend.LearnerStats {
	u := r.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.statsLocked()
}

// QValue returns the current value and visit count for one state.
func (r *Registry) QValue(userID, state string) (float64, int) {
	u := r.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.q[state], u.visits[state]
}

// Snapshot persists every user's learner state to the store.
func (r *Registry) Snapshot(ctx context.Context, store SnapshotStore) error {
	started := time.Now()

	r.mu.RLock()
	userIDs := make([]string, 0, len(r.users))
	for id := range r.users {
		userIDs = append(userIDs, id)
	}
	r.mu.RUnlock()

	for _, id := range userIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		u := r.user(id)
		u.mu.Lock()
		snap := UserSnapshot{
			Q:           cloneFloatMap(u.q),
			Visits:      cloneIntMap(u.visits),
			Episodes:    u.episodes,
			TotalReward: u.totalReward,
		}
		u.mu.Unlock()

		if err := store.Save(id, snap); err != nil {
			metrics.LearnerSnapshotErrors.Inc()
			return fmt.Errorf("saving learner snapshot for user %q: %w", id, err)
		}
	}

	metrics.LearnerSnapshotDuration.Observe(time.Since(started).Seconds())
	r.logger.Debug().Int("users", len(userIDs)).Msg("learner snapshot persisted")
	return nil
}

// Restore loads all persisted learner state from the store. Corrupt
// per-user entries reset that user and surface ErrSnapshotCorrupt after
// the rest have loaded.
func (r *Registry) Restore(store SnapshotStore) error {
	var corrupt bool

	err := store.Walk(func(userID string, snap UserSnapshot, loadErr error) {
		if loadErr != nil {
			corrupt = true
			metrics.LearnerStateResets.Inc()
			r.logger.Error().Err(loadErr).Str("user_id", userID).
				Msg("corrupt learner snapshot, resetting user state")
			return
		}

		u := r.user(userID)
		u.mu.Lock()
		u.q = cloneFloatMap(snap.Q)
		u.visits = cloneIntMap(snap.Visits)
		u.episodes = snap.Episodes
		u.totalReward = snap.TotalReward
		u.mu.Unlock()
	})
	if err != nil {
		return fmt.Errorf("walking learner snapshots: %w", err)
	}

	if corrupt {
		return recommend.ErrSnapshotCorrupt
	}
	return nil
}

// UserCount returns how many users have learner state.
func (r *Registry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// userBucket hashes a user ID into one of 16 buckets to keep metric
// cardinality bounded.
func userBucket(userID string) string {
	h := fnv.New32a()
	h.Write([]byte(userID)) //nolint:errcheck // fnv never errors
	return fmt.Sprintf("%d", h.Sum32()%16)
}

func cloneFloatMap(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneIntMap(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
