// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package recommend

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/storybeats/storybeats/internal/metrics"
)

// defaultRerankTimeout bounds the background verification call
// independently of the request that spawned it.
const defaultRerankTimeout = 30 * time.Second

// unverifiedConfidence applies to tracks the verifier did not score.
const unverifiedConfidence = 0.3

// Engine coordinates the recommendation pipeline: target resolution,
// sourcing, scoring, page selection, session persistence, feedback
// capture, and the background rerank pass.
//
// All session mutations are serialized per session id; the rerank
// goroutine and "get more" calls contend on the same keyed lock so a
// reader observes either the pre- or post-rerank ordering, never a
// partial splice.
type Engine struct {
	cfg      Config
	resolver *Resolver
	source   *Source
	scorer   *Scorer
	selector *Selector
	sessions SessionStore
	feedback FeedbackStore
	verifier Verifier
	log      zerolog.Logger

	rerankTimeout time.Duration
	locks         keyedMutex
	reranks       sync.WaitGroup

	// now is swapped in tests.
	now func() time.Time
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithRerankTimeout overrides the background verification timeout.
func WithRerankTimeout(d time.Duration) EngineOption {
	return func(e *Engine) { e.rerankTimeout = d }
}

// WithClock overrides the engine clock.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// NewEngine wires the pipeline. verifier may be nil, which disables
// the rerank pass; feedback may be nil, which disables personalization.
func NewEngine(cfg Config, fetcher CandidateFetcher, sessions SessionStore, feedback FeedbackStore, verifier Verifier, log zerolog.Logger, opts ...EngineOption) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:           cfg,
		resolver:      NewResolver(cfg, feedback),
		source:        NewSource(cfg, fetcher, log),
		scorer:        NewScorer(cfg),
		selector:      NewSelector(cfg),
		sessions:      sessions,
		feedback:      feedback,
		verifier:      verifier,
		log:           log.With().Str("component", "engine").Logger(),
		rerankTimeout: defaultRerankTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// BeginSession builds a scored pool for a photo analysis, persists the
// session, returns page one, and spawns the background rerank pass.
// imageRef is an opaque reference the verifier can use to re-inspect
// the photo; empty disables reranking for this session.
func (e *Engine) BeginSession(ctx context.Context, analysis AnalysisResult, imageRef string) (*Page, error) {
	start := time.Now()
	if !analysis.Usable() {
		return nil, ErrInvalidAnalysis
	}
	analysis.ApplyDefaults()
	target := e.resolver.Resolve(ctx, analysis)

	pool, srcErr := e.source.BuildPool(ctx, analysis, target)
	if srcErr != nil {
		var degraded *SourcingDegraded
		if !errors.As(srcErr, &degraded) {
			return nil, srcErr
		}
		e.log.Warn().Err(degraded).Int("pool", len(pool)).Msg("pool built degraded")
	}

	for i := range pool {
		if (pool[i].Features == AudioFeatures{}) {
			pool[i].Features = EstimateFeatures(&pool[i], target.Mood)
			pool[i].FeaturesEstimated = true
		}
	}

	fc := e.scorer.LoadFeedbackContext(ctx, e.feedback, target.Mood)
	scored := e.scorer.Score(pool, target, fc, e.now())
	ranked := e.applyFilters(scored)
	if len(ranked) > e.cfg.PoolSize {
		ranked = ranked[:e.cfg.PoolSize]
	}

	mix := MixFor(analysis.CulturalVibe, e.cfg.PageSize)
	page := e.selector.SelectPage(ranked, e.cfg.PageSize, nil, mix)

	sess := &Session{
		ID:          uuid.NewString(),
		Analysis:    analysis,
		Pool:        ranked,
		CreatedAt:   e.now(),
		ExcludedIDs: make(map[string]struct{}, len(page)),
	}
	orderServed(sess, page)

	if err := e.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	if e.verifier != nil && imageRef != "" {
		e.spawnRerank(sess.ID, imageRef, analysis)
	}
	metrics.RecordSessionStart(analysis.Mood, len(ranked), time.Since(start))

	return &Page{
		SessionID: sess.ID,
		Tracks:    page,
		PoolSize:  len(ranked),
		Exhausted: len(page) == len(ranked),
	}, nil
}

// GetMore serves the next page of an existing session. An exhausted
// pool yields an empty page with Exhausted set, not an error.
func (e *Engine) GetMore(ctx context.Context, sessionID string) (*Page, error) {
	unlock := e.locks.lock(sessionID)
	defer unlock()

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	mix := MixFor(sess.Analysis.CulturalVibe, e.cfg.PageSize)
	page := e.selector.SelectPage(sess.Pool, e.cfg.PageSize, sess.ExcludedIDs, mix)
	if len(page) > 0 {
		ids := make([]string, len(page))
		for i := range page {
			ids[i] = page[i].TrackID
		}
		if err := e.sessions.MarkServed(ctx, sessionID, ids); err != nil {
			return nil, err
		}
	}

	// Best-effort: "load more" is itself a weak positive signal.
	e.recordImplicit(ctx, sess, "", SignalLoadMore)

	return &Page{
		SessionID: sessionID,
		Tracks:    page,
		PoolSize:  len(sess.Pool),
		Exhausted: sess.ServedCount+len(page) >= len(sess.Pool),
	}, nil
}

// RecordFeedback appends one explicit or implicit feedback event.
// Session lookup failures surface as ErrUnknownSession; persistence
// failures as ErrFeedbackWrite so the caller can acknowledge softly.
func (e *Engine) RecordFeedback(ctx context.Context, sessionID, trackID string, kind FeedbackKind, signalType string, weight float64) error {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	ev := &FeedbackEvent{
		SessionID: sessionID,
		TrackID:   trackID,
		Mood:      NormalizeMood(sess.Analysis.Mood),
		Kind:      kind,
		Timestamp: e.now(),
	}
	switch kind {
	case FeedbackImplicit:
		ev.SignalType = signalType
		if weight > 0 {
			ev.Weight = weight
		} else {
			ev.Weight = DefaultSignalWeight(signalType)
		}
	default:
		ev.Weight = 1.0
	}
	if c := findTrack(sess.Pool, trackID); c != nil {
		ev.Title = c.Title
		ev.Artist = c.Artist
		f := c.Features
		ev.Features = &f
	}

	if err := e.feedback.Append(ctx, ev); err != nil {
		e.log.Error().Err(err).Str("session", sessionID).Msg("feedback append failed")
		return errors.Join(ErrFeedbackWrite, err)
	}
	return nil
}

// Shutdown waits for in-flight rerank passes to finish or the context
// to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.reranks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// applyFilters keeps candidates that clear the vibe threshold and
// popularity band. Rejected candidates are dropped outright; a thin
// pool yields short pages, never padded ones.
func (e *Engine) applyFilters(scored []ScoredCandidate) []ScoredCandidate {
	passing := make([]ScoredCandidate, 0, len(scored))
	for i := range scored {
		if e.scorer.Passes(&scored[i]) {
			passing = append(passing, scored[i])
		}
	}
	return passing
}

// Rerank outcome labels.
const (
	rerankApplied = "applied"
	rerankStale   = "stale"
	rerankFailed  = "failed"
)

// spawnRerank starts the fire-and-forget verification pass. It runs on
// a context detached from the originating request.
func (e *Engine) spawnRerank(sessionID, imageRef string, analysis AnalysisResult) {
	e.reranks.Add(1)
	go func() {
		defer e.reranks.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.rerankTimeout)
		defer cancel()
		start := time.Now()
		outcome, err := e.rerank(ctx, sessionID, imageRef, analysis)
		if err != nil {
			e.log.Warn().Err(err).Str("session", sessionID).Msg("rerank pass skipped")
		}
		metrics.RecordRerank(outcome, time.Since(start))
	}()
}

// rerank verifies the unserved pool suffix against the photo and
// reorders it by confidence. The verifier call runs outside the
// session lock; the suffix replacement re-reads the session under the
// lock so a concurrent "get more" is never spliced.
func (e *Engine) rerank(ctx context.Context, sessionID, imageRef string, analysis AnalysisResult) (string, error) {
	unlock := e.locks.lock(sessionID)
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		unlock()
		if errors.Is(err, ErrUnknownSession) {
			return rerankStale, nil
		}
		return rerankFailed, err
	}
	suffix := make([]ScoredCandidate, len(sess.Pool)-sess.ServedCount)
	copy(suffix, sess.Pool[sess.ServedCount:])
	unlock()

	if len(suffix) == 0 {
		return rerankStale, nil
	}

	confidence, err := e.verifier.Verify(ctx, imageRef, analysis, suffix)
	if err != nil {
		return rerankFailed, errors.Join(ErrRerankUnavailable, err)
	}

	unlock = e.locks.lock(sessionID)
	defer unlock()

	sess, err = e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrUnknownSession) {
			return rerankStale, nil
		}
		return rerankFailed, err
	}
	unserved := make([]ScoredCandidate, len(sess.Pool)-sess.ServedCount)
	copy(unserved, sess.Pool[sess.ServedCount:])
	for i := range unserved {
		if conf, ok := confidence[unserved[i].TrackID]; ok {
			unserved[i].Confidence = conf
		} else {
			unserved[i].Confidence = unverifiedConfidence
		}
	}
	sort.SliceStable(unserved, func(i, j int) bool {
		return unserved[i].Confidence > unserved[j].Confidence
	})

	if err := e.sessions.ReplaceUnserved(ctx, sessionID, sess.ServedCount, unserved); err != nil {
		return rerankFailed, err
	}
	e.log.Debug().Str("session", sessionID).Int("reordered", len(unserved)).Msg("rerank applied")
	return rerankApplied, nil
}

// recordImplicit appends a session-level implicit signal, swallowing
// persistence failures.
func (e *Engine) recordImplicit(ctx context.Context, sess *Session, trackID, signalType string) {
	if e.feedback == nil {
		return
	}
	ev := &FeedbackEvent{
		SessionID:  sess.ID,
		TrackID:    trackID,
		Mood:       NormalizeMood(sess.Analysis.Mood),
		Kind:       FeedbackImplicit,
		SignalType: signalType,
		Weight:     DefaultSignalWeight(signalType),
		Timestamp:  e.now(),
	}
	if err := e.feedback.Append(ctx, ev); err != nil {
		e.log.Debug().Err(err).Msg("implicit signal dropped")
	}
}

// orderServed records page one as the served prefix of a fresh
// session: the page entries move to the front of the pool in page
// order so ServedCount is always a true prefix boundary.
func orderServed(sess *Session, page []ScoredCandidate) {
	served := make(map[string]struct{}, len(page))
	for i := range page {
		served[page[i].TrackID] = struct{}{}
		sess.ExcludedIDs[page[i].TrackID] = struct{}{}
	}
	reordered := make([]ScoredCandidate, 0, len(sess.Pool))
	reordered = append(reordered, page...)
	for i := range sess.Pool {
		if _, ok := served[sess.Pool[i].TrackID]; !ok {
			reordered = append(reordered, sess.Pool[i])
		}
	}
	sess.Pool = reordered
	sess.ServedCount = len(page)
}

func findTrack(pool []ScoredCandidate, trackID string) *ScoredCandidate {
	if trackID == "" {
		return nil
	}
	for i := range pool {
		if pool[i].TrackID == trackID {
			return &pool[i]
		}
	}
	return nil
}

// keyedMutex serializes work per session id. Entries are reference
// counted and removed once the last holder releases.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
