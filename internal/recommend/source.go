// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package recommend

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Source weights by strategy. Contextual search queries range from
// weightGeneric up to weightStyle depending on specificity; the
// curated fallback sits below all of them.
const (
	weightStyle     = 1.0
	weightTheme     = 0.9
	weightKeyword   = 0.8
	weightGeneric   = 0.6
	weightSecondary = 0.8 // multiplier for secondary-language duplicates
	weightCurated   = 0.5
	weightSeed      = 0.55

	// weightCuratedPrimary applies when contextual search underdelivers
	// and the curated roster is promoted to the primary source.
	weightCuratedPrimary = 1.0
)

// markets per language bucket.
const (
	marketEnglish = "US"
	marketHindi   = "IN"
)

// searchQuery is one weighted contextual search.
type searchQuery struct {
	text   string
	lang   Language
	weight float64
}

// Source assembles the deduplicated candidate pool for an analysis.
// Fetches run on a bounded worker pool; individual fetch failures
// degrade the pool instead of failing the build.
type Source struct {
	cfg     Config
	fetcher CandidateFetcher
	log     zerolog.Logger
}

// NewSource builds a Source.
func NewSource(cfg Config, fetcher CandidateFetcher, log zerolog.Logger) *Source {
	return &Source{cfg: cfg, fetcher: fetcher, log: log.With().Str("component", "source").Logger()}
}

// BuildPool runs both sourcing strategies and merges their results
// into one deduplicated pool.
//
// Contextual search is always attempted first; when it yields fewer
// than MinSeedCount candidates the curated fallback becomes the
// primary source rather than a supplement. The returned error is nil
// on a full build, a *SourcingDegraded on partial fetch failures, and
// ErrSourcingExhausted when every strategy produced nothing.
func (s *Source) BuildPool(ctx context.Context, analysis AnalysisResult, target TargetVector) ([]Candidate, error) {
	mood := target.Mood
	queries := s.buildQueries(analysis, mood)

	contextual, ctxFailures, ctxAttempts := s.runSearches(ctx, queries)
	s.log.Debug().
		Int("queries", len(queries)).
		Int("candidates", len(contextual)).
		Int("failures", ctxFailures.count).
		Msg("contextual search complete")

	pool := dedupe(contextual, nil)
	if len(pool) > s.cfg.MaxSeeds {
		pool = pool[:s.cfg.MaxSeeds]
	}

	// Curated fallback. Always attempted so the pool carries both
	// catalog breadth and editorial floor. When contextual search
	// yields fewer than MinSeedCount candidates the roster is promoted
	// to the primary source: full provenance weight, and its version of
	// a duplicate track wins.
	curatedWeight := weightCurated
	curatedPrimary := len(pool) < s.cfg.MinSeedCount
	if curatedPrimary {
		s.log.Info().
			Int("contextual", len(pool)).
			Int("min_seed_count", s.cfg.MinSeedCount).
			Msg("contextual search underdelivered, promoting curated roster")
		curatedWeight = weightCuratedPrimary
	}
	curated, curFailures, curAttempts := s.runCurated(ctx, analysis.CulturalVibe, mood, curatedWeight)
	if curatedPrimary {
		pool = dedupe(pool, curated)
	} else {
		pool = dedupe(curated, pool)
	}

	// Seed expansion when the catalog offers similar-track lookups.
	if len(pool) > 0 && len(pool) < s.cfg.PoolSize {
		pool = s.expandSeeds(ctx, pool, target)
	}

	attempts := ctxAttempts + curAttempts
	failures := ctxFailures.count + curFailures.count

	if len(pool) == 0 {
		if failures > 0 {
			s.log.Error().Int("failures", failures).Msg("all sourcing strategies exhausted")
		}
		return nil, ErrSourcingExhausted
	}
	if failures > 0 {
		firstErr := ctxFailures.first
		if firstErr == nil {
			firstErr = curFailures.first
		}
		return pool, &SourcingDegraded{Failed: failures, Attempted: attempts, Err: firstErr}
	}
	return pool, nil
}

// buildQueries derives the ordered weighted query list from the
// analysis context. Specific pairs come first; weight decreases with
// generality. When the cultural vibe wants a bilingual mix the top
// queries are duplicated into the secondary language at reduced
// weight.
func (s *Source) buildQueries(analysis AnalysisResult, mood string) []searchQuery {
	primary, secondary := languagesFor(analysis.CulturalVibe)
	var queries []searchQuery

	add := func(text string, lang Language, weight float64) {
		text = strings.TrimSpace(text)
		if text == "" || len(queries) >= s.cfg.MaxQueries {
			return
		}
		queries = append(queries, searchQuery{text: text, lang: lang, weight: weight})
	}

	if analysis.MusicStyle != "" {
		add(analysis.MusicStyle+" "+mood, primary, weightStyle)
	}
	for _, theme := range firstN(analysis.Themes, 2) {
		if UsableKeyword(theme) {
			add(theme+" "+mood, primary, weightTheme)
		}
	}
	for _, kw := range firstN(analysis.Keywords, 3) {
		if UsableKeyword(kw) {
			add(kw+" "+mood, primary, weightKeyword)
		}
	}
	for _, term := range MoodSearchTerms(mood, primary) {
		add(term, primary, weightGeneric)
	}
	for _, genre := range firstN(analysis.Genres, 2) {
		add(genre+" "+mood, primary, weightGeneric)
	}

	if secondary != "" {
		// Duplicate the strongest queries in the secondary language,
		// swapping in its mood vocabulary.
		limit := len(queries)
		if limit > 3 {
			limit = 3
		}
		for _, term := range firstN(MoodSearchTerms(mood, secondary), limit) {
			add(term, secondary, weightGeneric*weightSecondary)
		}
	}
	return queries
}

// languagesFor maps a cultural vibe to a primary search language and
// an optional secondary one for bilingual mixes.
func languagesFor(vibe CulturalVibe) (primary Language, secondary Language) {
	switch vibe {
	case VibeIndian:
		return LangHindi, LangEnglish
	case VibeWestern:
		return LangEnglish, ""
	default:
		return LangEnglish, LangHindi
	}
}

// fetchFailures accumulates fetch errors across a worker pool run.
type fetchFailures struct {
	mu    sync.Mutex
	count int
	first error
}

func (f *fetchFailures) record(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	if f.first == nil {
		f.first = err
	}
}

// runSearches executes the contextual queries on the bounded worker
// pool and tags results with provenance.
func (s *Source) runSearches(ctx context.Context, queries []searchQuery) ([]Candidate, *fetchFailures, int) {
	failures := &fetchFailures{}
	results := make([][]Candidate, len(queries))

	s.forEach(ctx, len(queries), func(i int) {
		q := queries[i]
		tracks, err := s.fetcher.SearchTracks(ctx, q.text, marketFor(q.lang), s.cfg.PageSize*2)
		if err != nil {
			failures.record(err)
			s.log.Warn().Err(err).Str("query", q.text).Msg("search failed")
			return
		}
		out := tracks[:0:0]
		for _, t := range tracks {
			if t.Popularity < s.cfg.PopularityFloor {
				continue
			}
			t.Language = q.lang
			t.Provenance = Provenance{Kind: SourceContextSearch, Query: q.text, Weight: q.weight}
			out = append(out, t)
		}
		results[i] = out
	})

	var merged []Candidate
	for _, r := range results {
		merged = append(merged, r...)
	}
	// Keep higher-weighted provenance first so dedupe prefers it.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Provenance.Weight > merged[j].Provenance.Weight
	})
	return merged, failures, len(queries)
}

// curatedTask is one artist fetch in the fallback strategy.
type curatedTask struct {
	artist string
	lang   Language
	recent bool
}

// runCurated fetches curated artists for the mood at the given
// provenance weight. RecentRatio of the fetches target recent
// releases, the rest all-time top tracks.
func (s *Source) runCurated(ctx context.Context, vibe CulturalVibe, mood string, weight float64) ([]Candidate, *fetchFailures, int) {
	mix := MixFor(vibe, s.cfg.PageSize)
	var tasks []curatedTask

	addArtists := func(lang Language, n int) {
		artists := CuratedArtists(mood, lang)
		if len(artists) > n {
			artists = artists[:n]
		}
		recentCut := int(float64(len(artists)) * s.cfg.RecentRatio)
		for i, a := range artists {
			tasks = append(tasks, curatedTask{artist: a, lang: lang, recent: i < recentCut})
		}
	}
	// Roster size scales with the bucket's share of the page.
	addArtists(LangHindi, 2+mix.Hindi)
	addArtists(LangEnglish, 2+mix.English)

	failures := &fetchFailures{}
	results := make([][]Candidate, len(tasks))

	s.forEach(ctx, len(tasks), func(i int) {
		t := tasks[i]
		var tracks []Candidate
		var err error
		kind := SourceCuratedTop
		if t.recent {
			kind = SourceCuratedRecent
			tracks, err = s.fetcher.ArtistRecentTracks(ctx, t.artist, marketFor(t.lang))
		} else {
			tracks, err = s.fetcher.ArtistTopTracks(ctx, t.artist, marketFor(t.lang))
		}
		if err != nil {
			failures.record(err)
			s.log.Warn().Err(err).Str("artist", t.artist).Msg("curated fetch failed")
			return
		}
		out := tracks[:0:0]
		for _, tr := range tracks {
			tr.Language = t.lang
			tr.Provenance = Provenance{Kind: kind, Query: t.artist, Weight: weight}
			out = append(out, tr)
		}
		results[i] = out
	})

	var merged []Candidate
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged, failures, len(tasks)
}

// expandSeeds feeds the highest-weighted pool entries into the
// catalog's similar-tracks call. Expansion failures are silent; the
// seeds themselves are already in the pool.
func (s *Source) expandSeeds(ctx context.Context, pool []Candidate, target TargetVector) []Candidate {
	seedCount := 5
	if len(pool) < seedCount {
		seedCount = len(pool)
	}
	seedIDs := make([]string, 0, seedCount)
	for _, c := range pool[:seedCount] {
		seedIDs = append(seedIDs, c.TrackID)
	}

	similar, err := s.fetcher.SimilarTracks(ctx, seedIDs, target, marketEnglish, s.cfg.PoolSize-len(pool))
	if err != nil {
		s.log.Debug().Err(err).Msg("seed expansion unavailable")
		return pool
	}
	for i := range similar {
		similar[i].Provenance = Provenance{Kind: SourceSeedRecommend, Query: strings.Join(seedIDs, ","), Weight: weightSeed}
		if similar[i].Language == "" {
			similar[i].Language = LangEnglish
		}
	}
	return dedupe(similar, pool)
}

// forEach runs fn(0..n-1) on at most FetchWorkers goroutines and
// waits for completion. Merge order is handled by the caller, so
// completion order never affects the pool.
func (s *Source) forEach(ctx context.Context, n int, fn func(i int)) {
	if n == 0 {
		return
	}
	workers := s.cfg.FetchWorkers
	if workers > n {
		workers = n
	}
	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}
	for i := 0; i < n; i++ {
		select {
		case jobs <- i:
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		}
	}
	close(jobs)
	wg.Wait()
}

// dedupe appends incoming candidates to base, dropping track ids
// already present. base may be nil.
func dedupe(incoming, base []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(base)+len(incoming))
	out := make([]Candidate, 0, len(base)+len(incoming))
	for _, c := range base {
		if _, dup := seen[c.TrackID]; dup {
			continue
		}
		seen[c.TrackID] = struct{}{}
		out = append(out, c)
	}
	for _, c := range incoming {
		if c.TrackID == "" {
			continue
		}
		if _, dup := seen[c.TrackID]; dup {
			continue
		}
		seen[c.TrackID] = struct{}{}
		out = append(out, c)
	}
	return out
}

func marketFor(lang Language) string {
	if lang == LangHindi {
		return marketHindi
	}
	return marketEnglish
}

func firstN[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
