// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package recommend

// LanguageMix is the per-page language bucket target derived from the
// photo's cultural vibe.
type LanguageMix struct {
	// Hindi and English are the bucket targets; they sum to the page
	// size.
	Hindi   int
	English int
}

// MixFor derives the language mix for a cultural vibe and page size.
// The regional share scales with the page size, anchored to the
// canonical 3+2 split for the default size of 5.
func MixFor(vibe CulturalVibe, pageSize int) LanguageMix {
	var hindiShare float64
	switch vibe {
	case VibeIndian:
		hindiShare = 3.0 / 5.0
	case VibeWestern:
		hindiShare = 1.0 / 5.0
	default: // global, fusion
		hindiShare = 2.0 / 5.0
	}
	hindi := int(hindiShare*float64(pageSize) + 0.5)
	if hindi > pageSize {
		hindi = pageSize
	}
	return LanguageMix{Hindi: hindi, English: pageSize - hindi}
}

// Selector assembles one page from a scored pool under diversity
// constraints: a per-artist cap and a language mix, both relaxed in a
// fixed order when the pool cannot satisfy them.
type Selector struct {
	cfg Config
}

// NewSelector builds a Selector.
func NewSelector(cfg Config) *Selector {
	return &Selector{cfg: cfg}
}

// SelectPage picks up to count tracks from pool in order, skipping
// excluded ids. Constraint relaxation order: artist cap first, then
// the language mix, so the page is filled whenever enough candidates
// exist. A short page is a valid outcome when the pool runs dry.
//
// The input pool must already be sorted by final score descending;
// the output preserves that relative order.
func (sel *Selector) SelectPage(pool []ScoredCandidate, count int, excluded map[string]struct{}, mix LanguageMix) []ScoredCandidate {
	if count <= 0 {
		return nil
	}

	page := make([]ScoredCandidate, 0, count)
	taken := make(map[string]struct{}, count)
	artistCount := make(map[string]int)
	var hindi, english int

	// Pass 1: honor both the artist cap and the language buckets.
	pass := func(capArtists, capLanguages bool) {
		for i := range pool {
			if len(page) >= count {
				return
			}
			c := &pool[i]
			if _, dup := taken[c.TrackID]; dup {
				continue
			}
			if _, ex := excluded[c.TrackID]; ex {
				continue
			}
			if capArtists && artistCount[c.Artist] >= sel.cfg.ArtistCap {
				continue
			}
			if capLanguages {
				if c.Language == LangHindi && hindi >= mix.Hindi {
					continue
				}
				if c.Language != LangHindi && english >= mix.English {
					continue
				}
			}
			taken[c.TrackID] = struct{}{}
			artistCount[c.Artist]++
			if c.Language == LangHindi {
				hindi++
			} else {
				english++
			}
			page = append(page, *c)
		}
	}

	pass(true, true)
	// Pass 2: relax the artist cap before touching the language mix.
	pass(false, true)
	// Pass 3: language mix is relaxed only as a last resort.
	pass(false, false)

	return page
}

// ArtistCapSatisfied reports whether no artist exceeds the cap in a
// page. Used to detect when relaxation had to kick in.
func (sel *Selector) ArtistCapSatisfied(page []ScoredCandidate) bool {
	counts := make(map[string]int, len(page))
	for i := range page {
		counts[page[i].Artist]++
		if counts[page[i].Artist] > sel.cfg.ArtistCap {
			return false
		}
	}
	return true
}
