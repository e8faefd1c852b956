// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package recommend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)

func testTarget() TargetVector {
	return TargetVector{
		Features:       AudioFeatures{Energy: 0.4, Valence: 0.6, Danceability: 0.5, Acousticness: 0.6, Tempo: 95},
		Tolerance:      0.15,
		TempoTolerance: 20,
		Mood:           MoodRomantic,
	}
}

func TestVibeScorePerfectMatch(t *testing.T) {
	s := NewScorer(DefaultConfig())
	target := testTarget()
	assert.InDelta(t, 1.0, s.VibeScore(target.Features, target.Features), 1e-9)
}

func TestVibeScoreDecreasesWithDistance(t *testing.T) {
	s := NewScorer(DefaultConfig())
	target := testTarget()

	near := target.Features
	near.Energy += 0.1
	far := target.Features
	far.Energy += 0.5
	far.Valence -= 0.5

	nearScore := s.VibeScore(near, target.Features)
	farScore := s.VibeScore(far, target.Features)
	assert.Greater(t, nearScore, farScore)
	assert.GreaterOrEqual(t, farScore, 0.0)
	assert.LessOrEqual(t, nearScore, 1.0)
}

func TestVibeScoreTempoPenaltyCapped(t *testing.T) {
	s := NewScorer(DefaultConfig())
	target := testTarget()
	f := target.Features
	f.Tempo = target.Features.Tempo + 500
	// A huge tempo gap costs at most the full tempo weight.
	assert.InDelta(t, 1.0-s.cfg.Vibe.Tempo, s.VibeScore(f, target.Features), 1e-9)
}

func TestRecencyScoreSteps(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want float64
	}{
		{"one month", 30 * 24 * time.Hour, 1.0},
		{"six months boundary", 180 * 24 * time.Hour, 1.0},
		{"nine months", 270 * 24 * time.Hour, 0.8},
		{"fourteen months", 420 * 24 * time.Hour, 0.6},
		{"two years", 730 * 24 * time.Hour, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, recencyScore(testNow.Add(-tt.age), testNow))
		})
	}
}

func TestRecencyScoreUnknownReleaseDate(t *testing.T) {
	assert.Equal(t, 0.5, recencyScore(time.Time{}, testNow))
}

func TestScoreSortedAndNonNegative(t *testing.T) {
	s := NewScorer(DefaultConfig())
	target := testTarget()
	candidates := []Candidate{
		{TrackID: "t1", Artist: "A", Popularity: 60, Features: target.Features,
			ReleaseDate: testNow.AddDate(0, -2, 0), Provenance: Provenance{Weight: 1.0}},
		{TrackID: "t2", Artist: "B", Popularity: 50,
			Features:    AudioFeatures{Energy: 0.95, Valence: 0.1, Danceability: 0.9, Acousticness: 0.05, Tempo: 170},
			ReleaseDate: testNow.AddDate(-3, 0, 0), Provenance: Provenance{Weight: 0.5}},
		{TrackID: "t3", Artist: "C", Popularity: 70, Features: target.Features,
			ReleaseDate: testNow.AddDate(0, -8, 0), Provenance: Provenance{Weight: 0.8}},
	}

	scored := s.Score(candidates, target, feedbackContext{}, testNow)
	require.Len(t, scored, 3)
	for i := range scored {
		assert.GreaterOrEqual(t, scored[i].FinalScore, 0.0, "final score must never be negative")
		if i > 0 {
			assert.GreaterOrEqual(t, scored[i-1].FinalScore, scored[i].FinalScore, "must be sorted descending")
		}
	}
	assert.Equal(t, "t1", scored[0].TrackID)
	assert.Equal(t, "t2", scored[2].TrackID)
}

func TestScoreTiesBrokenByProvenanceWeight(t *testing.T) {
	s := NewScorer(DefaultConfig())
	target := testTarget()
	// Identical features, popularity and release date; only provenance
	// context differs, and context feeds base score, so give them the
	// same weight-blind inputs by zeroing the context weight path via
	// equal everything except insertion order.
	candidates := []Candidate{
		{TrackID: "low", Artist: "A", Popularity: 60, Features: target.Features,
			ReleaseDate: testNow.AddDate(0, -1, 0), Provenance: Provenance{Weight: 0.7}},
		{TrackID: "high", Artist: "B", Popularity: 60, Features: target.Features,
			ReleaseDate: testNow.AddDate(0, -1, 0), Provenance: Provenance{Weight: 0.7}},
	}
	scored := s.Score(candidates, target, feedbackContext{}, testNow)
	// Stable sort keeps insertion order on full ties.
	assert.Equal(t, "low", scored[0].TrackID)
}

func TestFeedbackMultipliers(t *testing.T) {
	cfg := DefaultConfig()
	s := NewScorer(cfg)
	target := testTarget()
	base := Candidate{TrackID: "t", Popularity: 60, Features: target.Features,
		ReleaseDate: testNow.AddDate(0, -1, 0), Provenance: Provenance{Weight: 1.0}}

	neutral := s.Score([]Candidate{base}, target, feedbackContext{}, testNow)[0]

	liked := base
	liked.Artist = "Lauv"
	fc := feedbackContext{likedArtists: map[string]int{"Lauv": 3}}
	boosted := s.Score([]Candidate{liked}, target, fc, testNow)[0]
	assert.InDelta(t, neutral.BaseScore*cfg.Multipliers.LikedArtist, boosted.FinalScore, 1e-9)
	assert.Equal(t, "liked_artist", boosted.FeedbackReason)

	fc = feedbackContext{dislikedArtists: map[string]int{"Lauv": 2}}
	penalized := s.Score([]Candidate{liked}, target, fc, testNow)[0]
	assert.InDelta(t, neutral.BaseScore*cfg.Multipliers.DislikedArtist, penalized.FinalScore, 1e-9)
	assert.Equal(t, "disliked_artist", penalized.FeedbackReason)
}

func TestAudioPreferenceMultiplier(t *testing.T) {
	cfg := DefaultConfig()
	s := NewScorer(cfg)
	target := testTarget()
	pref := &LearnedPreference{
		Mood:       MoodRomantic,
		SampleSize: 5,
		Features: map[string]FeatureStat{
			"energy":       {Target: 0.4, Min: 0.25, Max: 0.55},
			"valence":      {Target: 0.6, Min: 0.45, Max: 0.75},
			"danceability": {Target: 0.5, Min: 0.35, Max: 0.65},
			"acousticness": {Target: 0.6, Min: 0.45, Max: 0.75},
			"tempo":        {Target: 95, Min: 75, Max: 115},
		},
	}

	inside := Candidate{TrackID: "in", Artist: "X", Popularity: 60, Features: target.Features,
		ReleaseDate: testNow.AddDate(0, -1, 0), Provenance: Provenance{Weight: 1.0}}
	outside := inside
	outside.TrackID = "out"
	outside.Features = AudioFeatures{Energy: 0.95, Valence: 0.05, Danceability: 0.95, Acousticness: 0.05, Tempo: 170}

	fc := feedbackContext{preference: pref}
	scored := s.Score([]Candidate{inside, outside}, target, fc, testNow)

	var in, out ScoredCandidate
	for _, sc := range scored {
		if sc.TrackID == "in" {
			in = sc
		} else {
			out = sc
		}
	}
	assert.Equal(t, "audio_strong_match", in.FeedbackReason)
	assert.InDelta(t, in.BaseScore*cfg.Multipliers.AudioStrong, in.FinalScore, 1e-9)
	assert.Equal(t, "audio_poor_match", out.FeedbackReason)
	assert.InDelta(t, out.BaseScore*cfg.Multipliers.AudioPoor, out.FinalScore, 1e-9)
}

func TestPassesFilters(t *testing.T) {
	cfg := DefaultConfig()
	s := NewScorer(cfg)

	tests := []struct {
		name string
		sc   ScoredCandidate
		want bool
	}{
		{"clears both", ScoredCandidate{Candidate: Candidate{Popularity: 60}, VibeScore: 0.8}, true},
		{"vibe too low", ScoredCandidate{Candidate: Candidate{Popularity: 60}, VibeScore: 0.6}, false},
		{"estimated relaxes threshold", ScoredCandidate{Candidate: Candidate{Popularity: 60, FeaturesEstimated: true}, VibeScore: 0.6}, true},
		{"too obscure", ScoredCandidate{Candidate: Candidate{Popularity: 30}, VibeScore: 0.9}, false},
		{"too mainstream", ScoredCandidate{Candidate: Candidate{Popularity: 95}, VibeScore: 0.9}, false},
		{"band floor inclusive", ScoredCandidate{Candidate: Candidate{Popularity: 47}, VibeScore: 0.8}, true},
		{"band ceiling inclusive", ScoredCandidate{Candidate: Candidate{Popularity: 85}, VibeScore: 0.8}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Passes(&tt.sc))
		})
	}
}
