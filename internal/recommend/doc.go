// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

// Package recommend implements the photo-to-music recommendation
// pipeline: audio target resolution, candidate sourcing, scoring,
// diversity-constrained page selection, feedback capture, and
// optional rerank verification.
//
// The pipeline is organized as a set of pure stages coordinated by
// Engine:
//
//   - resolver (targets.go): analysis -> TargetVector, preferring
//     learned per-mood preferences over static mood defaults
//   - source (source.go): TargetVector + analysis -> candidate pool,
//     via weighted context searches with a curated-artist fallback
//   - scorer (scoring.go): candidates -> scored candidates with a
//     deterministic breakdown and feedback multipliers
//   - selector (diversity.go): scored pool -> one page honoring the
//     language mix and artist cap with graceful relaxation
//
// Persistence and catalog access are behind small interfaces
// (SessionStore, FeedbackStore, CandidateFetcher, Verifier) declared
// in types.go so the pipeline stays testable without live backends.
package recommend
