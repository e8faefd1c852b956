// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

// Package database persists feedback events in DuckDB and serves the
// aggregate queries the scorer personalizes with: per-mood artist
// affinity and learned audio-feature preferences.
//
// The event table is append-only. Aggregates are recomputed at read
// time with plain SQL, which keeps them idempotent and side-effect
// free on the events themselves.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/rs/zerolog"

	"github.com/storybeats/storybeats/internal/recommend"
)

const schema = `
CREATE TABLE IF NOT EXISTS feedback_events (
    session_id   VARCHAR NOT NULL,
    track_id     VARCHAR NOT NULL DEFAULT '',
    title        VARCHAR NOT NULL DEFAULT '',
    artist       VARCHAR NOT NULL DEFAULT '',
    mood         VARCHAR NOT NULL DEFAULT '',
    kind         VARCHAR NOT NULL,
    signal_type  VARCHAR NOT NULL DEFAULT '',
    weight       DOUBLE  NOT NULL,
    energy       DOUBLE,
    valence      DOUBLE,
    danceability DOUBLE,
    acousticness DOUBLE,
    tempo        DOUBLE,
    created_at   TIMESTAMP NOT NULL
);
`

// Band floors keep a learned preference band from collapsing to a
// point when the liked tracks are near-identical.
const (
	featureBandFloor = 0.15
	tempoBandFloor   = 20.0
)

// strongSignalWeight is the implicit weight from which a signal counts
// toward preference learning alongside explicit likes.
const strongSignalWeight = 1.5

// FeedbackDB implements recommend.FeedbackStore on DuckDB.
type FeedbackDB struct {
	conn *sql.DB
	log  zerolog.Logger
}

// Open opens (or creates) the feedback database. Use ":memory:" for
// an ephemeral store in tests.
func Open(ctx context.Context, path string, log zerolog.Logger) (*FeedbackDB, error) {
	conn, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open feedback db: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping feedback db: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create feedback schema: %w", err)
	}
	return &FeedbackDB{
		conn: conn,
		log:  log.With().Str("component", "feedback_db").Logger(),
	}, nil
}

// Close closes the database.
func (db *FeedbackDB) Close() error {
	return db.conn.Close()
}

// Append inserts one feedback event. Events are never updated or
// deleted here; retention is an operational concern.
func (db *FeedbackDB) Append(ctx context.Context, ev *recommend.FeedbackEvent) error {
	var energy, valence, danceability, acousticness, tempo sql.NullFloat64
	if ev.Features != nil {
		energy = sql.NullFloat64{Float64: ev.Features.Energy, Valid: true}
		valence = sql.NullFloat64{Float64: ev.Features.Valence, Valid: true}
		danceability = sql.NullFloat64{Float64: ev.Features.Danceability, Valid: true}
		acousticness = sql.NullFloat64{Float64: ev.Features.Acousticness, Valid: true}
		tempo = sql.NullFloat64{Float64: ev.Features.Tempo, Valid: true}
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO feedback_events
			(session_id, track_id, title, artist, mood, kind, signal_type, weight,
			 energy, valence, danceability, acousticness, tempo, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.SessionID, ev.TrackID, ev.Title, ev.Artist, ev.Mood,
		string(ev.Kind), ev.SignalType, ev.Weight,
		energy, valence, danceability, acousticness, tempo, ts,
	)
	if err != nil {
		return fmt.Errorf("append feedback: %w", err)
	}
	return nil
}

// ArtistAffinity counts explicit likes or dislikes per artist for a
// mood. An empty mood aggregates across all moods.
func (db *FeedbackDB) ArtistAffinity(ctx context.Context, mood string, positive bool, minCount int) (map[string]int, error) {
	kind := recommend.FeedbackDislike
	if positive {
		kind = recommend.FeedbackLike
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT artist, COUNT(*) AS n
		FROM feedback_events
		WHERE kind = ?
		  AND artist <> ''
		  AND (? = '' OR mood = ?)
		GROUP BY artist
		HAVING COUNT(*) >= ?
		ORDER BY n DESC`,
		string(kind), mood, mood, minCount,
	)
	if err != nil {
		return nil, fmt.Errorf("artist affinity query: %w", err)
	}
	defer rows.Close()

	affinity := make(map[string]int)
	for rows.Next() {
		var artist string
		var n int
		if err := rows.Scan(&artist, &n); err != nil {
			return nil, fmt.Errorf("scan affinity row: %w", err)
		}
		affinity[artist] = n
	}
	return affinity, rows.Err()
}

// Preference derives the per-mood learned audio-feature preference
// from liked tracks: explicit likes plus implicit signals at or above
// the strong-signal weight. Returns nil when no liked track for the
// mood carried audio features.
func (db *FeedbackDB) Preference(ctx context.Context, mood string) (*recommend.LearnedPreference, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(weight), 0),
			COALESCE(SUM(energy * weight), 0),       COALESCE(SUM(energy * energy * weight), 0),
			COALESCE(SUM(valence * weight), 0),      COALESCE(SUM(valence * valence * weight), 0),
			COALESCE(SUM(danceability * weight), 0), COALESCE(SUM(danceability * danceability * weight), 0),
			COALESCE(SUM(acousticness * weight), 0), COALESCE(SUM(acousticness * acousticness * weight), 0),
			COALESCE(SUM(tempo * weight), 0),        COALESCE(SUM(tempo * tempo * weight), 0)
		FROM feedback_events
		WHERE mood = ?
		  AND track_id <> ''
		  AND energy IS NOT NULL
		  AND (kind = ? OR (kind = ? AND weight >= ?))`,
		mood, string(recommend.FeedbackLike), string(recommend.FeedbackImplicit), strongSignalWeight,
	)

	var n int
	var w float64
	sums := make([]float64, 10)
	dest := []any{&n, &w}
	for i := range sums {
		dest = append(dest, &sums[i])
	}
	if err := row.Scan(dest...); err != nil {
		return nil, fmt.Errorf("preference query: %w", err)
	}
	if n == 0 || w <= 0 {
		return nil, nil
	}

	pref := &recommend.LearnedPreference{
		Mood:       mood,
		SampleSize: n,
		Features:   make(map[string]recommend.FeatureStat, 5),
	}
	names := []string{"energy", "valence", "danceability", "acousticness", "tempo"}
	for i, name := range names {
		mean := sums[2*i] / w
		variance := sums[2*i+1]/w - mean*mean
		if variance < 0 {
			variance = 0
		}
		band := math.Sqrt(variance)
		floor := featureBandFloor
		if name == "tempo" {
			floor = tempoBandFloor
		}
		if band < floor {
			band = floor
		}
		pref.Features[name] = recommend.FeatureStat{
			Target:      mean,
			Min:         mean - band,
			Max:         mean + band,
			SampleCount: n,
		}
	}
	return pref, nil
}

// SignalSummary aggregates implicit engagement per signal type for a
// session, used by the activity endpoint.
func (db *FeedbackDB) SignalSummary(ctx context.Context, sessionID string) (map[string]float64, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT signal_type, SUM(weight)
		FROM feedback_events
		WHERE session_id = ? AND kind = ?
		GROUP BY signal_type`,
		sessionID, string(recommend.FeedbackImplicit),
	)
	if err != nil {
		return nil, fmt.Errorf("signal summary query: %w", err)
	}
	defer rows.Close()

	summary := make(map[string]float64)
	for rows.Next() {
		var signal string
		var total float64
		if err := rows.Scan(&signal, &total); err != nil {
			return nil, fmt.Errorf("scan signal row: %w", err)
		}
		summary[signal] = total
	}
	return summary, rows.Err()
}
