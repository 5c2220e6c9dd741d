// Tunedrift - Personality-Aware Music Recommendation Service
// Copyright 2026 Tunedrift Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tunedrift/tunedrift

package recommend

import "errors"

var (
	// ErrProviderUnavailable indicates the content provider could not be
	// reached. Callers recover by serving the popularity fallback; this
	// error never surfaces as a hard failure for recommendation requests.
	ErrProviderUnavailable = errors.New("content provider unavailable")

	// ErrRateLimited indicates the per-user request limit was exceeded.
	// Retryable after the window passes.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUnknownTrack indicates feedback referenced a track never served
	// to or known for the user. The event is rejected and learner state
	// is left untouched.
	ErrUnknownTrack = errors.New("unknown track reference")

	// ErrSnapshotCorrupt indicates a persisted learner snapshot failed to
	// decode. The learner resets to an empty table and continues.
	ErrSnapshotCorrupt = errors.New("learner snapshot corrupt")
)
