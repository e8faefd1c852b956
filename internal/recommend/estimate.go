// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package recommend

import "strings"

// EstimateFeatures derives approximate audio features for a candidate
// when the catalog's feature endpoint is unavailable. Estimation is a
// documented fallback, never an error: it starts from the mood
// category baseline and nudges features using artist, title, album and
// release-year heuristics. Callers must set FeaturesEstimated so the
// scorer can relax its vibe threshold.
func EstimateFeatures(c *Candidate, mood string) AudioFeatures {
	f := MoodTarget(mood)

	artist := strings.ToLower(c.Artist)
	title := strings.ToLower(c.Title)
	album := strings.ToLower(c.Album)

	if c.Language == LangHindi {
		adjustHindiArtist(&f, artist)
	} else {
		adjustEnglishArtist(&f, artist)
	}

	switch {
	case containsAny(title, album, "remix", "mix", "edit", "version"):
		f.Energy = minFloat(0.95, f.Energy+0.15)
		f.Danceability = minFloat(0.95, f.Danceability+0.15)
		f.Tempo = minFloat(145, f.Tempo+10)
	case containsAny(title, album, "acoustic", "unplugged", "stripped", "piano"):
		f.Acousticness = minFloat(0.95, f.Acousticness+0.3)
		f.Energy = maxFloat(0.2, f.Energy-0.25)
	case containsAny(title, album, "live", "session"):
		f.Acousticness = minFloat(0.8, f.Acousticness+0.15)
	}

	if !c.ReleaseDate.IsZero() {
		switch year := c.ReleaseDate.Year(); {
		case year >= 2023:
			f.Energy = minFloat(0.95, f.Energy+0.05)
		case year >= 2020:
			f.Energy = minFloat(0.9, f.Energy+0.03)
		case year < 2010:
			f.Acousticness = minFloat(0.85, f.Acousticness+0.1)
		}
	}

	f.Clamp()
	return f
}

func adjustEnglishArtist(f *AudioFeatures, artist string) {
	switch {
	case matchAny(artist, "bon iver", "novo amor", "phoebe", "cigarettes after sex"):
		f.Acousticness = minFloat(0.9, f.Acousticness+0.3)
		f.Energy = maxFloat(0.2, f.Energy-0.2)
		f.Danceability = maxFloat(0.2, f.Danceability-0.2)
	case matchAny(artist, "m83", "odesza", "beach house", "tame impala", "mgmt"):
		f.Energy = minFloat(0.9, f.Energy+0.1)
		f.Acousticness = maxFloat(0.1, f.Acousticness-0.3)
		f.Tempo = minFloat(140, f.Tempo+10)
	case matchAny(artist, "frank ocean", "don toliver", "travis scott", "sza", "weeknd", "bryson"):
		f.Energy = boundFloat(f.Energy, 0.4, 0.7)
		f.Danceability = minFloat(0.8, f.Danceability+0.1)
		f.Tempo = boundFloat(f.Tempo, 85, 115)
	case matchAny(artist, "arctic monkeys", "the strokes", "phoenix", "two door"):
		f.Energy = minFloat(0.85, f.Energy+0.15)
		f.Acousticness = maxFloat(0.15, f.Acousticness-0.2)
		f.Tempo = minFloat(130, f.Tempo+5)
	}
}

func adjustHindiArtist(f *AudioFeatures, artist string) {
	switch {
	case matchAny(artist, "arijit", "atif", "shreya", "armaan", "jubin"):
		f.Valence = minFloat(0.8, f.Valence+0.1)
		f.Acousticness = minFloat(0.7, f.Acousticness+0.2)
		f.Energy = boundFloat(f.Energy, 0.3, 0.6)
		f.Tempo = boundFloat(f.Tempo, 80, 110)
	case matchAny(artist, "badshah", "divine", "raftaar", "diljit", "guru randhawa", "seedhe maut"):
		f.Energy = minFloat(0.95, f.Energy+0.2)
		f.Danceability = minFloat(0.95, f.Danceability+0.2)
		f.Tempo = minFloat(145, f.Tempo+15)
		f.Acousticness = maxFloat(0.05, f.Acousticness-0.3)
	case matchAny(artist, "prateek", "anuv", "raghav", "when chai met toast", "local train", "lifafa"):
		f.Acousticness = minFloat(0.85, f.Acousticness+0.25)
		f.Energy = maxFloat(0.25, f.Energy-0.15)
		f.Valence = boundFloat(f.Valence, 0.4, 0.7)
		f.Tempo = boundFloat(f.Tempo, 75, 105)
	case matchAny(artist, "nucleya", "sez on the beat", "dropped out"):
		f.Energy = minFloat(0.95, f.Energy+0.25)
		f.Danceability = minFloat(0.95, f.Danceability+0.25)
		f.Acousticness = maxFloat(0.05, f.Acousticness-0.4)
		f.Tempo = minFloat(150, f.Tempo+20)
	case matchAny(artist, "a.r. rahman", "hariharan", "shaan"):
		f.Acousticness = minFloat(0.8, f.Acousticness+0.2)
		f.Energy = maxFloat(0.3, f.Energy-0.1)
		f.Tempo = boundFloat(f.Tempo, 70, 100)
	}
}

func matchAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func containsAny(a, b string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(a, sub) || strings.Contains(b, sub) {
			return true
		}
	}
	return false
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func boundFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
