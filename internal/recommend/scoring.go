// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package recommend

import (
	"context"
	"math"
	"sort"
	"time"
)

// Scorer computes the deterministic score breakdown for a candidate
// pool. Scoring never mutates candidates and is safe for concurrent
// use.
type Scorer struct {
	cfg Config
}

// NewScorer builds a Scorer.
func NewScorer(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// feedbackContext carries the aggregates the scorer consults. All maps
// may be nil when no feedback history exists.
type feedbackContext struct {
	likedArtists    map[string]int
	dislikedArtists map[string]int
	preference      *LearnedPreference
}

// LoadFeedbackContext fetches the aggregates for a mood. Aggregate
// errors degrade to neutral scoring rather than failing the request.
func (s *Scorer) LoadFeedbackContext(ctx context.Context, store FeedbackStore, mood string) feedbackContext {
	var fc feedbackContext
	if store == nil {
		return fc
	}
	if liked, err := store.ArtistAffinity(ctx, mood, true, s.cfg.MinAffinityCount); err == nil {
		fc.likedArtists = liked
	}
	if disliked, err := store.ArtistAffinity(ctx, mood, false, s.cfg.MinAffinityCount); err == nil {
		fc.dislikedArtists = disliked
	}
	if pref, err := store.Preference(ctx, mood); err == nil &&
		pref != nil && pref.SampleSize >= s.cfg.MinPreferenceSamples {
		fc.preference = pref
	}
	return fc
}

// Score computes the full breakdown for every candidate, sorted by
// final score descending with ties broken by provenance weight then
// insertion order. The returned slice is a new allocation.
func (s *Scorer) Score(candidates []Candidate, target TargetVector, fc feedbackContext, now time.Time) []ScoredCandidate {
	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		sc := ScoredCandidate{Candidate: c}
		sc.VibeScore = s.VibeScore(c.Features, target.Features)
		sc.ContextScore = clamp01(c.Provenance.Weight)
		sc.RecencyScore = recencyScore(c.ReleaseDate, now)

		w := s.cfg.Weights
		sc.BaseScore = sc.VibeScore*w.Vibe +
			sc.ContextScore*w.Context +
			sc.RecencyScore*w.Recency +
			float64(c.Popularity)/100*w.Popularity

		mult, reason := s.feedbackMultiplier(c, fc)
		sc.FinalScore = sc.BaseScore * mult
		if sc.FinalScore < 0 {
			sc.FinalScore = 0
		}
		sc.FeedbackReason = reason
		scored = append(scored, sc)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].FinalScore != scored[j].FinalScore {
			return scored[i].FinalScore > scored[j].FinalScore
		}
		return scored[i].Provenance.Weight > scored[j].Provenance.Weight
	})
	return scored
}

// VibeScore measures similarity between candidate features and the
// target, in [0,1]. Tempo distance is normalized over a 50 BPM span.
func (s *Scorer) VibeScore(f, target AudioFeatures) float64 {
	w := s.cfg.Vibe
	tempoPenalty := math.Min(1, math.Abs(f.Tempo-target.Tempo)/50)
	score := 1 -
		math.Abs(f.Energy-target.Energy)*w.Energy -
		math.Abs(f.Valence-target.Valence)*w.Valence -
		math.Abs(f.Danceability-target.Danceability)*w.Danceability -
		math.Abs(f.Acousticness-target.Acousticness)*w.Acousticness -
		tempoPenalty*w.Tempo
	return clamp01(score)
}

// Passes reports whether a scored candidate clears the selection
// filters: the vibe threshold (relaxed for estimated features) and the
// popularity band. Filtering gates selection only; the breakdown is
// computed for every candidate regardless.
func (s *Scorer) Passes(sc *ScoredCandidate) bool {
	threshold := s.cfg.VibeThreshold
	if sc.FeaturesEstimated {
		threshold = s.cfg.EstimatedVibeThreshold
	}
	if sc.VibeScore < threshold {
		return false
	}
	return sc.Popularity >= s.cfg.PopularityFloor && sc.Popularity <= s.cfg.PopularityCeiling
}

// recencySteps reward freshness without excluding classics.
const (
	recencyFresh    = 180 * 24 * time.Hour
	recencyYear     = 365 * 24 * time.Hour
	recencyYearHalf = 540 * 24 * time.Hour
)

func recencyScore(release time.Time, now time.Time) float64 {
	if release.IsZero() {
		// Unknown release date scores neutrally.
		return 0.5
	}
	switch age := now.Sub(release); {
	case age <= recencyFresh:
		return 1.0
	case age <= recencyYear:
		return 0.8
	case age <= recencyYearHalf:
		return 0.6
	default:
		return 0.3
	}
}

// feedbackMultiplier composes the artist-affinity and audio-preference
// multipliers. Artist affinity wins when both artist signals somehow
// apply; audio closeness composes multiplicatively on top.
func (s *Scorer) feedbackMultiplier(c Candidate, fc feedbackContext) (float64, string) {
	mult := 1.0
	reason := ""
	m := s.cfg.Multipliers

	if _, ok := fc.dislikedArtists[c.Artist]; ok {
		mult *= m.DislikedArtist
		reason = "disliked_artist"
	} else if _, ok := fc.likedArtists[c.Artist]; ok {
		mult *= m.LikedArtist
		reason = "liked_artist"
	}

	if fc.preference != nil {
		matched, total := preferenceCloseness(c.Features, fc.preference)
		if total > 0 {
			switch ratio := float64(matched) / float64(total); {
			case ratio >= 0.8:
				mult *= m.AudioStrong
				reason = joinReason(reason, "audio_strong_match")
			case ratio >= 0.6:
				mult *= m.AudioGood
				reason = joinReason(reason, "audio_good_match")
			case ratio < 0.4:
				mult *= m.AudioPoor
				reason = joinReason(reason, "audio_poor_match")
			}
		}
	}
	return mult, reason
}

// preferenceCloseness counts how many learned feature bands the
// candidate falls inside.
func preferenceCloseness(f AudioFeatures, pref *LearnedPreference) (matched, total int) {
	check := func(name string, v float64) {
		s, ok := pref.Features[name]
		if !ok {
			return
		}
		total++
		if v >= s.Min && v <= s.Max {
			matched++
		}
	}
	check("energy", f.Energy)
	check("valence", f.Valence)
	check("danceability", f.Danceability)
	check("acousticness", f.Acousticness)
	check("tempo", f.Tempo)
	return matched, total
}

func joinReason(a, b string) string {
	if a == "" {
		return b
	}
	return a + "," + b
}
