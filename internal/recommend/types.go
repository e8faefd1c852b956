// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package recommend

import (
	"context"
	"math"
	"time"
)

// Note: the CandidateFetcher, SessionStore and FeedbackStore
// interfaces allow integration with the catalog and persistence
// layers without creating circular imports.

// CulturalVibe classifies the cultural leaning of an analyzed photo.
// It drives the language mix of a recommendation page.
type CulturalVibe string

const (
	// VibeIndian biases the page toward regional (Hindi) tracks.
	VibeIndian CulturalVibe = "indian"
	// VibeWestern biases the page toward English tracks.
	VibeWestern CulturalVibe = "western"
	// VibeGlobal requests a balanced mix.
	VibeGlobal CulturalVibe = "global"
	// VibeFusion requests a balanced mix with bilingual search queries.
	VibeFusion CulturalVibe = "fusion"
)

// Language tags the catalog language bucket a candidate belongs to.
type Language string

const (
	// LangEnglish covers the international/English catalog.
	LangEnglish Language = "english"
	// LangHindi covers the Hindi/Bollywood/Punjabi catalog.
	LangHindi Language = "hindi"
)

// AnalysisResult is the structured output of the vision analysis of a
// photo. It is produced externally, validated at the boundary, and
// immutable once attached to a session.
type AnalysisResult struct {
	// Mood is the primary emotional mood, free-form (e.g. "romantic",
	// "very dreamy"). Resolved to a canonical category by the resolver.
	Mood string `json:"mood"`

	// Themes are high-level visual themes (e.g. "nature", "nightlife").
	Themes []string `json:"themes,omitempty"`

	// Keywords are specific terms extracted from the photo.
	Keywords []string `json:"keywords,omitempty"`

	// Description is the free-form description of the photo's vibe.
	Description string `json:"description,omitempty"`

	// Energy is the perceived energy level (0-1).
	Energy float64 `json:"energy"`

	// Valence is the perceived positivity (0-1).
	Valence float64 `json:"valence"`

	// MusicStyle is the suggested musical style (e.g. "dream pop").
	MusicStyle string `json:"music_style,omitempty"`

	// Genres are suggested genres, most relevant first.
	Genres []string `json:"genres,omitempty"`

	// CulturalVibe classifies the photo's cultural leaning.
	CulturalVibe CulturalVibe `json:"cultural_vibe"`
}

// Usable reports whether the numeric fields are finite. ApplyDefaults
// repairs missing and out-of-range values, but a NaN or infinite
// reading means the payload itself is corrupt and would poison every
// downstream score.
func (a *AnalysisResult) Usable() bool {
	for _, v := range [...]float64{a.Energy, a.Valence} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// ApplyDefaults substitutes documented defaults for missing or
// malformed fields so a degraded analysis never breaks the
// recommendation path.
func (a *AnalysisResult) ApplyDefaults() {
	if a.Mood == "" {
		a.Mood = "neutral"
	}
	if a.Energy < 0 || a.Energy > 1 {
		a.Energy = 0.5
	}
	if a.Valence < 0 || a.Valence > 1 {
		a.Valence = 0.5
	}
	switch a.CulturalVibe {
	case VibeIndian, VibeWestern, VibeGlobal, VibeFusion:
	default:
		a.CulturalVibe = VibeGlobal
	}
}

// AudioFeatures is the numeric audio profile of a track. All fields
// except Tempo are in [0,1]; Tempo is in BPM.
type AudioFeatures struct {
	Energy       float64 `json:"energy"`
	Valence      float64 `json:"valence"`
	Danceability float64 `json:"danceability"`
	Acousticness float64 `json:"acousticness"`
	Tempo        float64 `json:"tempo"`
}

// Clamp bounds every feature to its valid range.
func (f *AudioFeatures) Clamp() {
	f.Energy = clamp01(f.Energy)
	f.Valence = clamp01(f.Valence)
	f.Danceability = clamp01(f.Danceability)
	f.Acousticness = clamp01(f.Acousticness)
	if f.Tempo < 60 {
		f.Tempo = 60
	}
	if f.Tempo > 180 {
		f.Tempo = 180
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// TargetVector is the audio-feature target a page of recommendations
// should match, with a symmetric tolerance band.
type TargetVector struct {
	// Features are the target feature values.
	Features AudioFeatures `json:"features"`

	// Tolerance is the symmetric band around each [0,1] feature.
	Tolerance float64 `json:"tolerance"`

	// TempoTolerance is the symmetric band around Tempo, in BPM.
	TempoTolerance float64 `json:"tempo_tolerance"`

	// Mood is the canonical mood category the vector was resolved for.
	Mood string `json:"mood"`

	// Learned indicates the vector came from feedback-learned
	// preferences rather than the static per-mood defaults.
	Learned bool `json:"learned"`
}

// SourceKind identifies the sourcing strategy that produced a candidate.
type SourceKind string

const (
	// SourceContextSearch is a weighted free-text catalog search built
	// from the analysis context.
	SourceContextSearch SourceKind = "context_search"
	// SourceCuratedTop is a curated artist's all-time top tracks.
	SourceCuratedTop SourceKind = "curated_top"
	// SourceCuratedRecent is a curated artist's recent releases.
	SourceCuratedRecent SourceKind = "curated_recent"
	// SourceSeedRecommend is a catalog-native similar-tracks expansion
	// seeded by the highest-weighted candidates.
	SourceSeedRecommend SourceKind = "seed_recommend"
)

// Provenance records how a candidate was sourced and at what confidence.
type Provenance struct {
	// Kind is the sourcing strategy.
	Kind SourceKind `json:"kind"`

	// Query is the search query or seed artist that produced the
	// candidate.
	Query string `json:"query,omitempty"`

	// Weight is the source confidence in [0,1]; context search queries
	// carry the query weight, curated fallbacks a fixed lower weight.
	Weight float64 `json:"weight"`
}

// Candidate is a track fetched from the catalog before scoring. It is
// a value object, deduplicated by TrackID within one pool build.
type Candidate struct {
	// TrackID is the catalog-unique track identifier.
	TrackID string `json:"track_id"`

	// Title is the track title.
	Title string `json:"title"`

	// Artist is the primary artist name.
	Artist string `json:"artist"`

	// Album is the album title.
	Album string `json:"album,omitempty"`

	// ReleaseDate is the release date; zero when the catalog omitted it.
	ReleaseDate time.Time `json:"release_date,omitempty"`

	// Popularity is the catalog popularity score (0-100).
	Popularity int `json:"popularity"`

	// Features are the track's audio features.
	Features AudioFeatures `json:"features"`

	// FeaturesEstimated is true when Features came from the estimation
	// fallback rather than the catalog feature endpoint.
	FeaturesEstimated bool `json:"features_estimated,omitempty"`

	// Language is the catalog language bucket.
	Language Language `json:"language"`

	// PreviewURL is the 30-second preview link, when available.
	PreviewURL string `json:"preview_url,omitempty"`

	// ExternalURL is the public catalog link for the track.
	ExternalURL string `json:"external_url,omitempty"`

	// AlbumArtURL is the album cover image, when available.
	AlbumArtURL string `json:"album_art_url,omitempty"`

	// DurationMS is the track duration in milliseconds.
	DurationMS int `json:"duration_ms,omitempty"`

	// Provenance records how the candidate was sourced.
	Provenance Provenance `json:"provenance"`
}

// ScoredCandidate is a candidate with its score breakdown.
//
// Invariant: FinalScore is BaseScore scaled only by the feedback
// multipliers and is never negative.
type ScoredCandidate struct {
	Candidate

	// VibeScore is the similarity to the target vector (0-1).
	VibeScore float64 `json:"vibe_score"`

	// ContextScore is the normalized provenance weight (0-1).
	ContextScore float64 `json:"context_score"`

	// RecencyScore rewards fresh releases (0.3-1.0).
	RecencyScore float64 `json:"recency_score"`

	// BaseScore is the weighted blend of the component scores.
	BaseScore float64 `json:"base_score"`

	// FinalScore is BaseScore times the feedback multipliers, floored
	// at zero.
	FinalScore float64 `json:"final_score"`

	// FeedbackReason names the multiplier that applied, for diagnostics
	// (e.g. "liked_artist", "audio_good_match"). Empty when neutral.
	FeedbackReason string `json:"feedback_reason,omitempty"`

	// Confidence is the rerank verification confidence, set only after
	// a successful rerank pass.
	Confidence float64 `json:"confidence,omitempty"`
}

// Session is the durable per-analysis record used to serve successive
// pages from one scored pool.
type Session struct {
	// ID is the opaque session identifier.
	ID string `json:"id"`

	// Analysis is the originating photo analysis, immutable.
	Analysis AnalysisResult `json:"analysis"`

	// Pool is the full scored candidate pool in rank order. Only a
	// rerank pass may replace the unserved suffix.
	Pool []ScoredCandidate `json:"pool"`

	// ServedCount is how many pool entries have been returned so far.
	// Monotonically increasing.
	ServedCount int `json:"served_count"`

	// ExcludedIDs is the set of track ids already shown in the session.
	ExcludedIDs map[string]struct{} `json:"excluded_ids"`

	// Reranked is true once a verification pass replaced the unserved
	// suffix ordering.
	Reranked bool `json:"reranked"`

	// CreatedAt is the session creation time.
	CreatedAt time.Time `json:"created_at"`
}

// Excluded reports whether a track id was already served.
func (s *Session) Excluded(trackID string) bool {
	_, ok := s.ExcludedIDs[trackID]
	return ok
}

// FeedbackKind classifies a feedback event.
type FeedbackKind string

const (
	// FeedbackLike is an explicit thumbs-up.
	FeedbackLike FeedbackKind = "explicit_like"
	// FeedbackDislike is an explicit thumbs-down.
	FeedbackDislike FeedbackKind = "explicit_dislike"
	// FeedbackImplicit is a weighted non-explicit signal.
	FeedbackImplicit FeedbackKind = "implicit"
)

// Implicit signal types. A "load_more" click is a session-level signal
// and carries no track id.
const (
	SignalPreviewPlay     = "preview_play"
	SignalPreviewComplete = "preview_complete"
	SignalSpotifyClick    = "spotify_click"
	SignalLoadMore        = "load_more"
)

// DefaultSignalWeight returns the default weight for an implicit
// signal type. Unknown types get a conservative weight.
func DefaultSignalWeight(signalType string) float64 {
	switch signalType {
	case SignalPreviewPlay:
		return 1.0
	case SignalPreviewComplete:
		return 1.5
	case SignalSpotifyClick:
		return 2.0
	case SignalLoadMore:
		return 0.5
	default:
		return 0.5
	}
}

// FeedbackEvent is one explicit or implicit feedback record. Events
// are append-only; the engine never mutates or deletes them.
type FeedbackEvent struct {
	// SessionID is the originating session.
	SessionID string `json:"session_id"`

	// TrackID identifies the track; empty for session-level signals.
	TrackID string `json:"track_id,omitempty"`

	// Title is the track title at the time of feedback.
	Title string `json:"title,omitempty"`

	// Artist is the primary artist at the time of feedback.
	Artist string `json:"artist,omitempty"`

	// Mood is the session's raw analysis mood, denormalized so
	// aggregates can filter by mood without a session join.
	Mood string `json:"mood,omitempty"`

	// Kind classifies the event.
	Kind FeedbackKind `json:"kind"`

	// SignalType names the implicit signal; empty for explicit events.
	SignalType string `json:"signal_type,omitempty"`

	// Weight is the signal weight (1.0 for explicit events).
	Weight float64 `json:"weight"`

	// Features are the track's audio features at feedback time, used
	// for per-mood preference learning.
	Features *AudioFeatures `json:"features,omitempty"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
}

// Positive reports whether the event counts as a positive preference
// signal for aggregation. Only explicit dislikes are negative.
func (e *FeedbackEvent) Positive() bool {
	switch e.Kind {
	case FeedbackLike:
		return true
	case FeedbackImplicit:
		return e.TrackID != ""
	default:
		return false
	}
}

// FeatureStat is the mean and spread of one learned audio feature.
type FeatureStat struct {
	// Target is the weighted mean of the feature over liked tracks.
	Target float64 `json:"target"`

	// Min and Max bound the preferred band (mean plus/minus the larger
	// of the stddev and the configured floor).
	Min float64 `json:"min"`
	Max float64 `json:"max"`

	// SampleCount is how many liked tracks contributed.
	SampleCount int `json:"sample_count"`
}

// LearnedPreference is the per-mood audio-feature preference derived
// from feedback history. It is only trusted once SampleSize reaches
// the configured minimum; below that the static defaults apply.
type LearnedPreference struct {
	// Mood is the canonical mood category.
	Mood string `json:"mood"`

	// Features maps feature name (energy, valence, danceability,
	// acousticness, tempo) to its learned statistics.
	Features map[string]FeatureStat `json:"features"`

	// SampleSize is the number of liked tracks behind the statistics.
	SampleSize int `json:"sample_size"`
}

// Page is one page of recommendations returned to the caller.
type Page struct {
	// SessionID identifies the session for follow-up calls.
	SessionID string `json:"session_id"`

	// Tracks is the ordered page; may be shorter than the page size or
	// empty when the pool is exhausted.
	Tracks []ScoredCandidate `json:"tracks"`

	// PoolSize is the total pool size backing the session.
	PoolSize int `json:"pool_size"`

	// Exhausted is true when no unserved candidates remain.
	Exhausted bool `json:"exhausted"`
}

// CandidateFetcher is the catalog collaborator boundary. Empty results
// are valid outcomes, never errors; implementations map transport
// failures to errors which the source treats as a degraded fetch.
type CandidateFetcher interface {
	// SearchTracks runs a free-text track search in a market.
	SearchTracks(ctx context.Context, query string, market string, limit int) ([]Candidate, error)

	// ArtistTopTracks returns an artist's all-time top tracks.
	ArtistTopTracks(ctx context.Context, artist string, market string) ([]Candidate, error)

	// ArtistRecentTracks returns tracks from an artist's releases
	// within the recency window.
	ArtistRecentTracks(ctx context.Context, artist string, market string) ([]Candidate, error)

	// SimilarTracks expands seed tracks into similar candidates
	// constrained by the target vector. Optional: implementations may
	// return an empty slice.
	SimilarTracks(ctx context.Context, seedIDs []string, target TargetVector, market string, limit int) ([]Candidate, error)
}

// SessionStore is the durable session persistence boundary. All
// mutations are atomic per session.
type SessionStore interface {
	// Create persists a new session.
	Create(ctx context.Context, s *Session) error

	// Get retrieves a session by id, or ErrUnknownSession.
	Get(ctx context.Context, id string) (*Session, error)

	// MarkServed records a served page in one atomic update: the
	// identified tracks move to the front of the unserved pool region
	// in the given order, the served cursor advances past them, and
	// the excluded set is extended. This keeps ServedCount a true
	// prefix boundary for suffix replacement.
	MarkServed(ctx context.Context, id string, servedIDs []string) error

	// ReplaceUnserved atomically replaces the pool suffix at indices
	// at or beyond servedCount and marks the session reranked. The
	// served prefix is never touched.
	ReplaceUnserved(ctx context.Context, id string, servedCount int, suffix []ScoredCandidate) error
}

// FeedbackStore is the durable feedback persistence and aggregation
// boundary. Writes are append-only.
type FeedbackStore interface {
	// Append records one feedback event.
	Append(ctx context.Context, ev *FeedbackEvent) error

	// ArtistAffinity returns artists with at least minCount explicit
	// likes (positive=true) or dislikes (positive=false) for a mood.
	// An empty mood matches all moods.
	ArtistAffinity(ctx context.Context, mood string, positive bool, minCount int) (map[string]int, error)

	// Preference returns the learned per-mood audio-feature preference,
	// or nil when there is not enough data.
	Preference(ctx context.Context, mood string) (*LearnedPreference, error)
}

// Verifier is the rerank collaborator boundary. It scores each track's
// fit against the original photo; ids missing from the result keep a
// conservative default confidence.
type Verifier interface {
	Verify(ctx context.Context, imageRef string, analysis AnalysisResult, tracks []ScoredCandidate) (map[string]float64, error)
}
