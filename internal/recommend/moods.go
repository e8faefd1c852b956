// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package recommend

import "strings"

// Canonical mood categories. Every raw mood string resolves to exactly
// one of these; unrecognized moods fall back to MoodNeutral.
const (
	MoodRomantic    = "romantic"
	MoodEnergetic   = "energetic"
	MoodPeaceful    = "peaceful"
	MoodMelancholic = "melancholic"
	MoodHappy       = "happy"
	MoodConfident   = "confident"
	MoodNostalgic   = "nostalgic"
	MoodDreamy      = "dreamy"
	MoodMoody       = "moody"
	MoodNeutral     = "happy"
)

// CanonicalMoods lists the distinct mood categories in stable order.
var CanonicalMoods = []string{
	MoodRomantic, MoodEnergetic, MoodPeaceful, MoodMelancholic,
	MoodHappy, MoodConfident, MoodNostalgic, MoodDreamy, MoodMoody,
}

// moodAliases maps common raw moods to their canonical category.
// Checked before the substring pass.
var moodAliases = map[string]string{
	"calm":        MoodPeaceful,
	"relaxed":     MoodPeaceful,
	"serene":      MoodPeaceful,
	"cozy":        MoodPeaceful,
	"chill":       MoodMoody,
	"dark":        MoodMoody,
	"atmospheric": MoodMoody,
	"sad":         MoodMelancholic,
	"reflective":  MoodMelancholic,
	"thoughtful":  MoodMelancholic,
	"joyful":      MoodHappy,
	"upbeat":      MoodEnergetic,
	"adventurous": MoodEnergetic,
	"vibrant":     MoodEnergetic,
	"love":        MoodRomantic,
}

// NormalizeMood resolves a raw mood string to a canonical category.
// Resolution is total and deterministic: exact match, then alias
// lookup, then substring match over canonical names and aliases, then
// the neutral default. Idempotent for any canonical category.
func NormalizeMood(raw string) string {
	mood := strings.ToLower(strings.TrimSpace(raw))
	if mood == "" {
		return MoodNeutral
	}
	for _, c := range CanonicalMoods {
		if mood == c {
			return c
		}
	}
	if c, ok := moodAliases[mood]; ok {
		return c
	}
	// Substring pass handles compound moods like "very romantic" or
	// "melancholic evening".
	for _, c := range CanonicalMoods {
		if strings.Contains(mood, c) {
			return c
		}
	}
	for alias, c := range moodAliases {
		if strings.Contains(mood, alias) {
			return c
		}
	}
	return MoodNeutral
}

// moodTargets are the static per-category audio-feature targets used
// when no learned preference is available.
var moodTargets = map[string]AudioFeatures{
	MoodRomantic:    {Energy: 0.4, Valence: 0.6, Danceability: 0.5, Acousticness: 0.6, Tempo: 95},
	MoodEnergetic:   {Energy: 0.9, Valence: 0.8, Danceability: 0.85, Acousticness: 0.1, Tempo: 140},
	MoodPeaceful:    {Energy: 0.3, Valence: 0.5, Danceability: 0.3, Acousticness: 0.7, Tempo: 85},
	MoodMelancholic: {Energy: 0.3, Valence: 0.2, Danceability: 0.3, Acousticness: 0.6, Tempo: 80},
	MoodHappy:       {Energy: 0.7, Valence: 0.8, Danceability: 0.7, Acousticness: 0.3, Tempo: 120},
	MoodConfident:   {Energy: 0.8, Valence: 0.7, Danceability: 0.75, Acousticness: 0.2, Tempo: 125},
	MoodNostalgic:   {Energy: 0.5, Valence: 0.5, Danceability: 0.5, Acousticness: 0.5, Tempo: 105},
	MoodDreamy:      {Energy: 0.4, Valence: 0.6, Danceability: 0.4, Acousticness: 0.5, Tempo: 100},
	MoodMoody:       {Energy: 0.5, Valence: 0.4, Danceability: 0.55, Acousticness: 0.3, Tempo: 110},
}

// MoodTarget returns the static audio-feature target for a canonical
// mood category.
func MoodTarget(mood string) AudioFeatures {
	if t, ok := moodTargets[mood]; ok {
		return t
	}
	return moodTargets[MoodNeutral]
}

// moodTempoRange bounds sensible tempi per category. Used to sanity
// check analysis-derived tempo before it enters a target vector.
type tempoRange struct {
	min, max float64
}

var moodTempoRanges = map[string]tempoRange{
	MoodEnergetic:   {120, 140},
	MoodHappy:       {100, 125},
	MoodPeaceful:    {65, 90},
	MoodMelancholic: {70, 95},
	MoodRomantic:    {60, 90},
	MoodDreamy:      {75, 100},
	MoodNostalgic:   {80, 105},
	MoodConfident:   {100, 120},
	MoodMoody:       {80, 110},
}

// ClampTempoForMood bounds a tempo to the category's sensible range.
// Falls back to an energy-derived range for unknown categories.
func ClampTempoForMood(tempo float64, mood string, energy float64) float64 {
	r, ok := moodTempoRanges[mood]
	if !ok {
		switch {
		case energy >= 0.7:
			r = tempoRange{110, 135}
		case energy >= 0.4:
			r = tempoRange{90, 115}
		default:
			r = tempoRange{70, 95}
		}
	}
	if tempo < r.min {
		return r.min
	}
	if tempo > r.max {
		return r.max
	}
	return tempo
}

// Curated artist rosters per mood, used as the fallback sourcing
// strategy when contextual search underdelivers.
var englishArtists = map[string][]string{
	MoodRomantic: {
		"Cigarettes After Sex", "The Neighbourhood", "Lauv", "Gracie Abrams",
		"Conan Gray", "Jeremy Zucker", "mxmtoon", "girl in red",
	},
	MoodEnergetic: {
		"Tame Impala", "Glass Animals", "MGMT", "Foster The People",
		"Two Door Cinema Club", "The Strokes", "Arctic Monkeys", "Phoenix",
	},
	MoodPeaceful: {
		"Bon Iver", "Novo Amor", "Phoebe Bridgers", "Iron & Wine",
		"Sufjan Stevens", "Fleet Foxes", "Jose Gonzalez", "Ben Howard",
	},
	MoodMelancholic: {
		"Radiohead", "Mazzy Star", "The National", "Daughter",
		"Sleeping At Last", "Mitski", "Phoebe Bridgers", "Elliott Smith",
	},
	MoodHappy: {
		"Two Door Cinema Club", "Passion Pit", "Phoenix", "COIN",
		"MGMT", "Young The Giant", "Grouplove", "Smallpools",
	},
	MoodConfident: {
		"The Weeknd", "Travis Scott", "Dua Lipa", "Billie Eilish",
		"Khalid", "Post Malone", "Doja Cat", "SZA",
	},
	MoodNostalgic: {
		"The 1975", "Arctic Monkeys", "Mac DeMarco", "MGMT",
		"Tame Impala", "Vampire Weekend", "The Strokes", "Kings of Leon",
	},
	MoodDreamy: {
		"Beach House", "M83", "ODESZA", "Clairo",
		"Men I Trust", "Still Woozy", "Rex Orange County", "Kali Uchis",
	},
	MoodMoody: {
		"Frank Ocean", "Don Toliver", "Travis Scott", "SZA",
		"The Weeknd", "Bryson Tiller", "PartyNextDoor", "6LACK",
	},
}

var hindiArtists = map[string][]string{
	MoodRomantic: {
		"Arijit Singh", "Atif Aslam", "Shreya Ghoshal", "Armaan Malik",
		"Jubin Nautiyal", "Prateek Kuhad", "Raghav Chaitanya",
	},
	MoodEnergetic: {
		"Badshah", "Diljit Dosanjh", "Divine", "Raftaar",
		"Nucleya", "Karan Aujla", "Seedhe Maut", "The Local Train",
	},
	MoodPeaceful: {
		"A.R. Rahman", "Shaan", "Lucky Ali", "Prateek Kuhad",
		"Mohit Chauhan", "Sonu Nigam", "Papon", "When Chai Met Toast",
	},
	MoodMelancholic: {
		"Mohit Chauhan", "KK", "Sonu Nigam", "Jubin Nautiyal",
		"Arijit Singh", "Atif Aslam", "Prateek Kuhad",
	},
	MoodHappy: {
		"Guru Randhawa", "Darshan Raval", "Diljit Dosanjh",
		"Harrdy Sandhu", "Asees Kaur", "When Chai Met Toast", "Sunidhi Chauhan",
	},
	MoodConfident: {
		"Badshah", "Divine", "Raftaar", "Ikka",
		"Seedhe Maut", "Prabh Deep", "Naezy", "MC Stan",
	},
	MoodNostalgic: {
		"Kishore Kumar", "R.D. Burman", "Mohammed Rafi", "Kumar Sanu",
		"Alka Yagnik", "Udit Narayan", "Sonu Nigam", "Lucky Ali",
	},
	MoodDreamy: {
		"Prateek Kuhad", "When Chai Met Toast", "The Local Train",
		"Zaeden", "Lifafa", "Kamakshi Khanna", "Shankar Mahadevan",
	},
	MoodMoody: {
		"Prateek Kuhad", "The Local Train", "Lifafa",
		"Seedhe Maut", "Prabh Deep", "Dropped Out", "Sez on the Beat",
	},
}

// CuratedArtists returns the roster for a mood and language bucket.
func CuratedArtists(mood string, lang Language) []string {
	var roster map[string][]string
	if lang == LangHindi {
		roster = hindiArtists
	} else {
		roster = englishArtists
	}
	if artists, ok := roster[mood]; ok {
		return artists
	}
	return roster[MoodNeutral]
}

// Per-mood search vocabulary for the contextual search strategy.
var englishMoodTerms = map[string][]string{
	MoodPeaceful:    {"ambient pop", "dream pop", "soft indie"},
	MoodHappy:       {"indie pop", "alt-pop upbeat", "indie dance"},
	MoodEnergetic:   {"indie rock", "alt-rock", "electronic pop"},
	MoodConfident:   {"upbeat pop", "indie anthem", "empowering"},
	MoodMelancholic: {"sad indie", "indie folk emotional", "alternative"},
	MoodNostalgic:   {"retro indie", "throwback", "nostalgic vibes"},
	MoodRomantic:    {"indie love songs", "dreamy pop", "soft rock"},
	MoodDreamy:      {"dream pop", "ethereal indie", "atmospheric pop"},
	MoodMoody:       {"alternative r&b", "dark pop", "late night vibes"},
}

var hindiMoodTerms = map[string][]string{
	MoodPeaceful:    {"sufi", "peaceful bollywood", "soothing hindi"},
	MoodHappy:       {"feel good bollywood", "upbeat hindi", "happy indie hindi"},
	MoodEnergetic:   {"punjabi bhangra", "high energy hindi", "dance hindi"},
	MoodConfident:   {"desi hip-hop", "rap hindi", "urban desi"},
	MoodMelancholic: {"sad hindi songs", "emotional bollywood", "heartbreak hindi"},
	MoodNostalgic:   {"90s bollywood", "retro hindi", "classic hindi songs"},
	MoodRomantic:    {"romantic hindi", "love songs bollywood", "sufi romantic"},
	MoodDreamy:      {"sufi romantic", "ethereal hindi", "soothing hindi vocals"},
	MoodMoody:       {"indie hindi", "lo-fi hindi", "mellow bollywood"},
}

// MoodSearchTerms returns the mood vocabulary for a language bucket.
func MoodSearchTerms(mood string, lang Language) []string {
	var table map[string][]string
	if lang == LangHindi {
		table = hindiMoodTerms
	} else {
		table = englishMoodTerms
	}
	if terms, ok := table[mood]; ok {
		return terms
	}
	return table[MoodNeutral]
}

// genericKeywords are analysis keywords too vague to search on.
var genericKeywords = map[string]struct{}{
	"vibes": {}, "chill": {}, "lifestyle": {}, "moments": {},
	"mood": {}, "general": {},
}

// UsableKeyword reports whether an analysis keyword is specific enough
// to build a search query from.
func UsableKeyword(kw string) bool {
	_, generic := genericKeywords[strings.ToLower(strings.TrimSpace(kw))]
	return !generic && strings.TrimSpace(kw) != ""
}
