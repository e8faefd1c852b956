// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package recommend

import "context"

// Resolver maps a photo analysis to a concrete audio-feature target
// vector. It prefers learned per-mood preferences over the static
// category defaults when enough feedback history exists.
type Resolver struct {
	cfg      Config
	feedback FeedbackStore
}

// NewResolver builds a Resolver. feedback may be nil, in which case
// only static defaults are used.
func NewResolver(cfg Config, feedback FeedbackStore) *Resolver {
	return &Resolver{cfg: cfg, feedback: feedback}
}

// Resolve produces the target vector for an analysis. It is
// deterministic and total: every analysis resolves to exactly one
// vector, and resolving the same analysis twice against the same
// feedback state yields identical vectors.
func (r *Resolver) Resolve(ctx context.Context, analysis AnalysisResult) TargetVector {
	mood := NormalizeMood(analysis.Mood)

	if r.feedback != nil {
		if pref, err := r.feedback.Preference(ctx, mood); err == nil &&
			pref != nil && pref.SampleSize >= r.cfg.MinPreferenceSamples {
			return r.fromPreference(mood, pref)
		}
	}

	target := MoodTarget(mood)

	// Blend the analysis's own energy/valence reading with the category
	// default so two photos with the same mood but different intensity
	// still get distinct targets.
	target.Energy = (target.Energy + analysis.Energy) / 2
	target.Valence = (target.Valence + analysis.Valence) / 2
	target.Tempo = ClampTempoForMood(target.Tempo, mood, target.Energy)
	target.Clamp()

	return TargetVector{
		Features:       target,
		Tolerance:      r.cfg.Tolerance,
		TempoTolerance: r.cfg.TempoTolerance,
		Mood:           mood,
	}
}

// fromPreference converts learned statistics into a target vector. The
// learned band widths replace the configured defaults when wider.
func (r *Resolver) fromPreference(mood string, pref *LearnedPreference) TargetVector {
	features := MoodTarget(mood)
	tolerance := r.cfg.Tolerance
	tempoTol := r.cfg.TempoTolerance

	if s, ok := pref.Features["energy"]; ok {
		features.Energy = s.Target
		tolerance = maxFloat(tolerance, (s.Max-s.Min)/2)
	}
	if s, ok := pref.Features["valence"]; ok {
		features.Valence = s.Target
	}
	if s, ok := pref.Features["danceability"]; ok {
		features.Danceability = s.Target
	}
	if s, ok := pref.Features["acousticness"]; ok {
		features.Acousticness = s.Target
	}
	if s, ok := pref.Features["tempo"]; ok {
		features.Tempo = s.Target
		tempoTol = maxFloat(tempoTol, (s.Max-s.Min)/2)
	}
	features.Clamp()

	return TargetVector{
		Features:       features,
		Tolerance:      tolerance,
		TempoTolerance: tempoTol,
		Mood:           mood,
		Learned:        true,
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
