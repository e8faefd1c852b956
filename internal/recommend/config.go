// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package recommend

import "fmt"

// ScoreWeights blends the component scores into the base score.
// Weights must sum to 1.0.
type ScoreWeights struct {
	// Vibe weights the audio-feature similarity to the target vector.
	Vibe float64 `koanf:"vibe" json:"vibe"`
	// Context weights the sourcing provenance confidence.
	Context float64 `koanf:"context" json:"context"`
	// Recency weights release freshness.
	Recency float64 `koanf:"recency" json:"recency"`
	// Popularity weights the popularity band bonus.
	Popularity float64 `koanf:"popularity" json:"popularity"`
}

// VibeWeights distributes the vibe score across the audio features.
// Weights must sum to 1.0.
type VibeWeights struct {
	Energy       float64 `koanf:"energy" json:"energy"`
	Valence      float64 `koanf:"valence" json:"valence"`
	Danceability float64 `koanf:"danceability" json:"danceability"`
	Acousticness float64 `koanf:"acousticness" json:"acousticness"`
	Tempo        float64 `koanf:"tempo" json:"tempo"`
}

// Multipliers are the feedback score multipliers applied after the
// base score. They never drive a score negative.
type Multipliers struct {
	// LikedArtist boosts tracks by artists with enough explicit likes.
	LikedArtist float64 `koanf:"liked_artist" json:"liked_artist"`
	// DislikedArtist penalizes tracks by artists with enough explicit
	// dislikes.
	DislikedArtist float64 `koanf:"disliked_artist" json:"disliked_artist"`
	// AudioStrong boosts tracks matching the learned preference band
	// on most features.
	AudioStrong float64 `koanf:"audio_strong" json:"audio_strong"`
	// AudioGood boosts tracks matching on a majority of features.
	AudioGood float64 `koanf:"audio_good" json:"audio_good"`
	// AudioPoor penalizes tracks matching few features.
	AudioPoor float64 `koanf:"audio_poor" json:"audio_poor"`
}

// Config holds every tunable of the recommendation pipeline. Zero
// configuration is invalid; start from DefaultConfig.
type Config struct {
	// PageSize is the number of tracks returned per page.
	PageSize int `koanf:"page_size" json:"page_size"`

	// PoolSize is the target scored pool size per session.
	PoolSize int `koanf:"pool_size" json:"pool_size"`

	// ArtistCap is the maximum tracks per primary artist in one page.
	ArtistCap int `koanf:"artist_cap" json:"artist_cap"`

	// MaxQueries bounds the context search queries issued per pool
	// build.
	MaxQueries int `koanf:"max_queries" json:"max_queries"`

	// MinSeedCount is the contextual-search yield below which the
	// curated roster is promoted from fallback to primary source.
	MinSeedCount int `koanf:"min_seed_count" json:"min_seed_count"`

	// MaxSeeds bounds the seed tracks passed to the similar-tracks
	// expansion.
	MaxSeeds int `koanf:"max_seeds" json:"max_seeds"`

	// FetchWorkers bounds concurrent catalog fetches per pool build.
	FetchWorkers int `koanf:"fetch_workers" json:"fetch_workers"`

	// VibeThreshold is the minimum vibe score for a candidate to enter
	// the pool when its features are catalog-sourced.
	VibeThreshold float64 `koanf:"vibe_threshold" json:"vibe_threshold"`

	// EstimatedVibeThreshold is the relaxed threshold applied when the
	// candidate's features were estimated rather than fetched.
	EstimatedVibeThreshold float64 `koanf:"estimated_vibe_threshold" json:"estimated_vibe_threshold"`

	// PopularityFloor and PopularityCeiling bound the popularity band
	// that earns the full popularity bonus.
	PopularityFloor   int `koanf:"popularity_floor" json:"popularity_floor"`
	PopularityCeiling int `koanf:"popularity_ceiling" json:"popularity_ceiling"`

	// Tolerance is the default symmetric band around [0,1] target
	// features; TempoTolerance the band around tempo in BPM.
	Tolerance      float64 `koanf:"tolerance" json:"tolerance"`
	TempoTolerance float64 `koanf:"tempo_tolerance" json:"tempo_tolerance"`

	// MinPreferenceSamples is the liked-track count below which learned
	// preferences are ignored in favor of static mood defaults.
	MinPreferenceSamples int `koanf:"min_preference_samples" json:"min_preference_samples"`

	// MinAffinityCount is the explicit like/dislike count an artist
	// needs before the affinity multipliers apply.
	MinAffinityCount int `koanf:"min_affinity_count" json:"min_affinity_count"`

	// RecentRatio is the fraction of curated-artist fetches that target
	// recent releases rather than all-time top tracks.
	RecentRatio float64 `koanf:"recent_ratio" json:"recent_ratio"`

	// Weights blends the component scores.
	Weights ScoreWeights `koanf:"weights" json:"weights"`

	// Vibe distributes the vibe score across audio features.
	Vibe VibeWeights `koanf:"vibe" json:"vibe"`

	// Multipliers are the feedback multipliers.
	Multipliers Multipliers `koanf:"multipliers" json:"multipliers"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:               5,
		PoolSize:               30,
		ArtistCap:              2,
		MaxQueries:             10,
		MinSeedCount:           5,
		MaxSeeds:               20,
		FetchWorkers:           6,
		VibeThreshold:          0.75,
		EstimatedVibeThreshold: 0.5,
		PopularityFloor:        47,
		PopularityCeiling:      85,
		Tolerance:              0.15,
		TempoTolerance:         20,
		MinPreferenceSamples:   3,
		MinAffinityCount:       2,
		RecentRatio:            0.6,
		Weights: ScoreWeights{
			Vibe:       0.4,
			Context:    0.3,
			Recency:    0.2,
			Popularity: 0.1,
		},
		Vibe: VibeWeights{
			Energy:       0.30,
			Valence:      0.30,
			Danceability: 0.20,
			Acousticness: 0.10,
			Tempo:        0.10,
		},
		Multipliers: Multipliers{
			LikedArtist:    1.3,
			DislikedArtist: 0.7,
			AudioStrong:    1.25,
			AudioGood:      1.15,
			AudioPoor:      0.85,
		},
	}
}

const weightSumEpsilon = 1e-6

// Validate checks internal consistency. It returns the first problem
// found.
func (c *Config) Validate() error {
	if c.PageSize < 1 {
		return fmt.Errorf("page_size must be >= 1, got %d", c.PageSize)
	}
	if c.PoolSize < c.PageSize {
		return fmt.Errorf("pool_size (%d) must be >= page_size (%d)", c.PoolSize, c.PageSize)
	}
	if c.ArtistCap < 1 {
		return fmt.Errorf("artist_cap must be >= 1, got %d", c.ArtistCap)
	}
	if c.MaxQueries < 1 {
		return fmt.Errorf("max_queries must be >= 1, got %d", c.MaxQueries)
	}
	if c.FetchWorkers < 1 {
		return fmt.Errorf("fetch_workers must be >= 1, got %d", c.FetchWorkers)
	}
	if c.MinSeedCount < 0 {
		return fmt.Errorf("min_seed_count must be >= 0, got %d", c.MinSeedCount)
	}
	if c.VibeThreshold < 0 || c.VibeThreshold > 1 {
		return fmt.Errorf("vibe_threshold must be in [0,1], got %g", c.VibeThreshold)
	}
	if c.EstimatedVibeThreshold < 0 || c.EstimatedVibeThreshold > c.VibeThreshold {
		return fmt.Errorf("estimated_vibe_threshold must be in [0, vibe_threshold], got %g", c.EstimatedVibeThreshold)
	}
	if c.PopularityFloor < 0 || c.PopularityCeiling > 100 || c.PopularityFloor > c.PopularityCeiling {
		return fmt.Errorf("popularity band [%d,%d] must satisfy 0 <= floor <= ceiling <= 100",
			c.PopularityFloor, c.PopularityCeiling)
	}
	if c.Tolerance <= 0 || c.Tolerance > 0.5 {
		return fmt.Errorf("tolerance must be in (0, 0.5], got %g", c.Tolerance)
	}
	if c.TempoTolerance <= 0 {
		return fmt.Errorf("tempo_tolerance must be > 0, got %g", c.TempoTolerance)
	}
	if c.MinPreferenceSamples < 1 {
		return fmt.Errorf("min_preference_samples must be >= 1, got %d", c.MinPreferenceSamples)
	}
	if c.RecentRatio < 0 || c.RecentRatio > 1 {
		return fmt.Errorf("recent_ratio must be in [0,1], got %g", c.RecentRatio)
	}
	if sum := c.Weights.Vibe + c.Weights.Context + c.Weights.Recency + c.Weights.Popularity; !nearOne(sum) {
		return fmt.Errorf("score weights must sum to 1.0, got %g", sum)
	}
	if sum := c.Vibe.Energy + c.Vibe.Valence + c.Vibe.Danceability + c.Vibe.Acousticness + c.Vibe.Tempo; !nearOne(sum) {
		return fmt.Errorf("vibe weights must sum to 1.0, got %g", sum)
	}
	if c.Multipliers.LikedArtist < 1 {
		return fmt.Errorf("liked_artist multiplier must be >= 1, got %g", c.Multipliers.LikedArtist)
	}
	if c.Multipliers.DislikedArtist <= 0 || c.Multipliers.DislikedArtist > 1 {
		return fmt.Errorf("disliked_artist multiplier must be in (0,1], got %g", c.Multipliers.DislikedArtist)
	}
	return nil
}

func nearOne(sum float64) bool {
	diff := sum - 1.0
	if diff < 0 {
		diff = -diff
	}
	return diff < weightSumEpsilon
}
