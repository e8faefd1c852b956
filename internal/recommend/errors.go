// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package recommend

import "errors"

// Sentinel errors for the recommendation pipeline. Callers match with
// errors.Is; the API layer maps them to response codes.
var (
	// ErrInvalidAnalysis indicates the photo analysis carried
	// non-finite numeric fields that no default can repair.
	ErrInvalidAnalysis = errors.New("recommend: invalid analysis result")

	// ErrSourcingExhausted indicates every sourcing strategy, including
	// the curated fallback, produced zero candidates.
	ErrSourcingExhausted = errors.New("recommend: all candidate sources exhausted")

	// ErrUnknownSession indicates a session id that does not exist or
	// has expired.
	ErrUnknownSession = errors.New("recommend: unknown or expired session")

	// ErrRerankUnavailable indicates the verification pass failed or
	// timed out; the existing order stands.
	ErrRerankUnavailable = errors.New("recommend: rerank unavailable")

	// ErrFeedbackWrite indicates feedback persistence failed; the
	// in-session effect of the feedback is unaffected.
	ErrFeedbackWrite = errors.New("recommend: feedback write failed")
)

// SourcingDegraded reports a partial sourcing failure. At least one
// strategy failed but the pool was still assembled; it wraps the first
// underlying fetch error and is informational, not fatal.
type SourcingDegraded struct {
	// Failed is the number of fetch operations that errored.
	Failed int
	// Attempted is the total number of fetch operations.
	Attempted int
	// Err is the first underlying error.
	Err error
}

func (e *SourcingDegraded) Error() string {
	return "recommend: sourcing degraded: " + e.Err.Error()
}

func (e *SourcingDegraded) Unwrap() error { return e.Err }
