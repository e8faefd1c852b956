// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package recommend

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memSessions is an in-memory SessionStore mirroring the durable
// store's per-session atomicity.
type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: make(map[string]*Session)}
}

func (m *memSessions) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessions) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	cp := *s
	cp.Pool = append([]ScoredCandidate(nil), s.Pool...)
	cp.ExcludedIDs = make(map[string]struct{}, len(s.ExcludedIDs))
	for id := range s.ExcludedIDs {
		cp.ExcludedIDs[id] = struct{}{}
	}
	return &cp, nil
}

func (m *memSessions) MarkServed(_ context.Context, id string, servedIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrUnknownSession
	}
	served := make(map[string]struct{}, len(servedIDs))
	for _, tid := range servedIDs {
		served[tid] = struct{}{}
		s.ExcludedIDs[tid] = struct{}{}
	}
	reordered := s.Pool[:s.ServedCount:s.ServedCount]
	for _, tid := range servedIDs {
		for i := s.ServedCount; i < len(s.Pool); i++ {
			if s.Pool[i].TrackID == tid {
				reordered = append(reordered, s.Pool[i])
				break
			}
		}
	}
	for i := s.ServedCount; i < len(s.Pool); i++ {
		if _, ok := served[s.Pool[i].TrackID]; !ok {
			reordered = append(reordered, s.Pool[i])
		}
	}
	s.Pool = reordered
	s.ServedCount += len(servedIDs)
	return nil
}

func (m *memSessions) ReplaceUnserved(_ context.Context, id string, servedCount int, suffix []ScoredCandidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return ErrUnknownSession
	}
	if servedCount != s.ServedCount {
		return fmt.Errorf("stale served count %d, have %d", servedCount, s.ServedCount)
	}
	s.Pool = append(s.Pool[:servedCount:servedCount], suffix...)
	s.Reranked = true
	return nil
}

// memFeedback is an in-memory append-only FeedbackStore.
type memFeedback struct {
	mu     sync.Mutex
	events []FeedbackEvent
	err    error
}

func (m *memFeedback) Append(_ context.Context, ev *FeedbackEvent) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *ev)
	return nil
}

func (m *memFeedback) ArtistAffinity(_ context.Context, mood string, positive bool, minCount int) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, ev := range m.events {
		if mood != "" && ev.Mood != mood {
			continue
		}
		if positive && ev.Kind == FeedbackLike || !positive && ev.Kind == FeedbackDislike {
			counts[ev.Artist]++
		}
	}
	for a, n := range counts {
		if n < minCount {
			delete(counts, a)
		}
	}
	return counts, nil
}

func (m *memFeedback) Preference(_ context.Context, _ string) (*LearnedPreference, error) {
	return nil, nil
}

// fixedVerifier returns a canned confidence map.
type fixedVerifier struct {
	confidence map[string]float64
	err        error
	called     chan struct{}
}

func (v *fixedVerifier) Verify(_ context.Context, _ string, _ AnalysisResult, _ []ScoredCandidate) (map[string]float64, error) {
	if v.called != nil {
		defer close(v.called)
	}
	return v.confidence, v.err
}

func richFetcher() *fakeFetcher {
	results := map[string][]Candidate{}
	queries := []string{"dream pop romantic", "sunset romantic", "beach romantic", "golden hour romantic"}
	for qi, q := range queries {
		var tracks []Candidate
		for i := 0; i < 8; i++ {
			id := fmt.Sprintf("%s-%d", q[:4], i)
			artist := fmt.Sprintf("Artist %d-%d", qi, i)
			c := track(id, artist, 60)
			c.Features = AudioFeatures{Energy: 0.4, Valence: 0.6, Danceability: 0.5, Acousticness: 0.6, Tempo: 95}
			c.ReleaseDate = testNow.AddDate(0, -2, 0)
			tracks = append(tracks, c)
		}
		results[q] = tracks
	}
	return &fakeFetcher{searchResults: results}
}

func newTestEngine(t *testing.T, f CandidateFetcher, sessions SessionStore, feedback FeedbackStore, verifier Verifier) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig(), f, sessions, feedback, verifier, zerolog.Nop(),
		WithClock(func() time.Time { return testNow }))
	require.NoError(t, err)
	return e
}

func TestBeginSessionReturnsFirstPage(t *testing.T) {
	sessions := newMemSessions()
	e := newTestEngine(t, richFetcher(), sessions, &memFeedback{}, nil)

	page, err := e.BeginSession(context.Background(), testAnalysis(), "")
	require.NoError(t, err)
	require.NotEmpty(t, page.SessionID)
	assert.Len(t, page.Tracks, 5)
	assert.LessOrEqual(t, page.PoolSize, DefaultConfig().PoolSize)

	sess, err := sessions.Get(context.Background(), page.SessionID)
	require.NoError(t, err)
	assert.Equal(t, len(page.Tracks), sess.ServedCount)
	for _, tr := range page.Tracks {
		assert.True(t, sess.Excluded(tr.TrackID))
	}
}

func TestBeginSessionAppliesAnalysisDefaults(t *testing.T) {
	e := newTestEngine(t, richFetcher(), newMemSessions(), &memFeedback{}, nil)

	// Malformed analysis fields degrade to defaults, never to an error.
	_, err := e.BeginSession(context.Background(), AnalysisResult{
		Mood: "romantic", Energy: 7.5, Valence: -2, CulturalVibe: "martian",
	}, "")
	require.NoError(t, err)
}

func TestBeginSessionRejectsNonFiniteAnalysis(t *testing.T) {
	e := newTestEngine(t, richFetcher(), newMemSessions(), &memFeedback{}, nil)

	_, err := e.BeginSession(context.Background(), AnalysisResult{
		Mood: "romantic", Energy: math.NaN(), Valence: 0.7,
	}, "")
	assert.ErrorIs(t, err, ErrInvalidAnalysis)

	_, err = e.BeginSession(context.Background(), AnalysisResult{
		Mood: "romantic", Energy: 0.4, Valence: math.Inf(1),
	}, "")
	assert.ErrorIs(t, err, ErrInvalidAnalysis)
}

func TestBeginSessionShortPageWhenFiltersThinThePool(t *testing.T) {
	// Three tracks sit inside the popularity band; the rest are far too
	// popular. The page must carry exactly the three survivors, never
	// padding from the rejected remainder.
	f := &fakeFetcher{searchResults: map[string][]Candidate{}}
	var tracks []Candidate
	for i := 0; i < 3; i++ {
		c := track(fmt.Sprintf("band-%d", i), fmt.Sprintf("Artist %d", i), 60)
		c.Features = AudioFeatures{Energy: 0.4, Valence: 0.6, Danceability: 0.5, Acousticness: 0.6, Tempo: 95}
		c.ReleaseDate = testNow.AddDate(0, -2, 0)
		tracks = append(tracks, c)
	}
	for i := 0; i < 7; i++ {
		c := track(fmt.Sprintf("hot-%d", i), fmt.Sprintf("Hot %d", i), 97)
		c.Features = AudioFeatures{Energy: 0.4, Valence: 0.6, Danceability: 0.5, Acousticness: 0.6, Tempo: 95}
		c.ReleaseDate = testNow.AddDate(0, -2, 0)
		tracks = append(tracks, c)
	}
	f.searchResults["dream pop romantic"] = tracks

	e := newTestEngine(t, f, newMemSessions(), &memFeedback{}, nil)

	page, err := e.BeginSession(context.Background(), testAnalysis(), "")
	require.NoError(t, err)
	assert.Len(t, page.Tracks, 3)
	assert.Equal(t, 3, page.PoolSize)
	assert.True(t, page.Exhausted)
	for _, tr := range page.Tracks {
		assert.LessOrEqual(t, tr.Popularity, DefaultConfig().PopularityCeiling,
			"rejected candidates must never be served")
	}
}

func TestBeginSessionSourcingExhausted(t *testing.T) {
	f := &fakeFetcher{searchErr: errors.New("down"), artistErr: errors.New("down")}
	e := newTestEngine(t, f, newMemSessions(), &memFeedback{}, nil)

	_, err := e.BeginSession(context.Background(), testAnalysis(), "")
	assert.ErrorIs(t, err, ErrSourcingExhausted)
}

func TestGetMorePaginatesWithoutRepeats(t *testing.T) {
	e := newTestEngine(t, richFetcher(), newMemSessions(), &memFeedback{}, nil)

	page1, err := e.BeginSession(context.Background(), testAnalysis(), "")
	require.NoError(t, err)

	seen := map[string]struct{}{}
	for _, tr := range page1.Tracks {
		seen[tr.TrackID] = struct{}{}
	}

	for i := 0; i < 10; i++ {
		page, err := e.GetMore(context.Background(), page1.SessionID)
		require.NoError(t, err)
		for _, tr := range page.Tracks {
			_, dup := seen[tr.TrackID]
			require.False(t, dup, "track %s repeated across pages", tr.TrackID)
			seen[tr.TrackID] = struct{}{}
		}
		if page.Exhausted {
			break
		}
	}
}

func TestGetMoreExhaustedPoolIsEmptyPageNotError(t *testing.T) {
	e := newTestEngine(t, richFetcher(), newMemSessions(), &memFeedback{}, nil)

	page, err := e.BeginSession(context.Background(), testAnalysis(), "")
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		more, err := e.GetMore(context.Background(), page.SessionID)
		require.NoError(t, err)
		if len(more.Tracks) == 0 {
			assert.True(t, more.Exhausted)
			return
		}
	}
	t.Fatal("pool never exhausted")
}

func TestGetMoreUnknownSession(t *testing.T) {
	e := newTestEngine(t, richFetcher(), newMemSessions(), &memFeedback{}, nil)
	_, err := e.GetMore(context.Background(), "no-such-session")
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestRecordFeedbackRoundTrip(t *testing.T) {
	fb := &memFeedback{}
	e := newTestEngine(t, richFetcher(), newMemSessions(), fb, nil)

	page, err := e.BeginSession(context.Background(), testAnalysis(), "")
	require.NoError(t, err)
	trackID := page.Tracks[0].TrackID

	require.NoError(t, e.RecordFeedback(context.Background(), page.SessionID, trackID, FeedbackLike, "", 0))

	fb.mu.Lock()
	defer fb.mu.Unlock()
	var found *FeedbackEvent
	for i := range fb.events {
		if fb.events[i].Kind == FeedbackLike {
			found = &fb.events[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, page.SessionID, found.SessionID)
	assert.Equal(t, trackID, found.TrackID)
	assert.Equal(t, MoodRomantic, found.Mood)
	assert.Equal(t, 1.0, found.Weight)
	assert.Equal(t, page.Tracks[0].Artist, found.Artist)
	require.NotNil(t, found.Features)
}

func TestRecordFeedbackImplicitWeights(t *testing.T) {
	fb := &memFeedback{}
	e := newTestEngine(t, richFetcher(), newMemSessions(), fb, nil)

	page, err := e.BeginSession(context.Background(), testAnalysis(), "")
	require.NoError(t, err)

	require.NoError(t, e.RecordFeedback(context.Background(), page.SessionID,
		page.Tracks[0].TrackID, FeedbackImplicit, SignalSpotifyClick, 0))

	fb.mu.Lock()
	defer fb.mu.Unlock()
	last := fb.events[len(fb.events)-1]
	assert.Equal(t, 2.0, last.Weight)
	assert.Equal(t, SignalSpotifyClick, last.SignalType)
}

func TestRecordFeedbackUnknownSession(t *testing.T) {
	e := newTestEngine(t, richFetcher(), newMemSessions(), &memFeedback{}, nil)
	err := e.RecordFeedback(context.Background(), "ghost", "t", FeedbackLike, "", 0)
	assert.ErrorIs(t, err, ErrUnknownSession)
}

func TestRecordFeedbackWriteFailure(t *testing.T) {
	fb := &memFeedback{err: errors.New("disk full")}
	e := newTestEngine(t, richFetcher(), newMemSessions(), fb, nil)

	page, err := e.BeginSession(context.Background(), testAnalysis(), "")
	require.NoError(t, err)

	err = e.RecordFeedback(context.Background(), page.SessionID, page.Tracks[0].TrackID, FeedbackLike, "", 0)
	assert.ErrorIs(t, err, ErrFeedbackWrite)
}

func TestRerankReordersOnlyUnservedSuffix(t *testing.T) {
	sessions := newMemSessions()
	verifier := &fixedVerifier{confidence: map[string]float64{}, called: make(chan struct{})}
	e := newTestEngine(t, richFetcher(), sessions, &memFeedback{}, verifier)

	page, err := e.BeginSession(context.Background(), testAnalysis(), "photo-ref")
	require.NoError(t, err)

	select {
	case <-verifier.called:
	case <-time.After(5 * time.Second):
		t.Fatal("verifier never invoked")
	}
	require.NoError(t, e.Shutdown(context.Background()))

	sess, err := sessions.Get(context.Background(), page.SessionID)
	require.NoError(t, err)
	assert.True(t, sess.Reranked)

	// Served prefix is untouched by the rerank pass.
	for i, tr := range page.Tracks {
		assert.Equal(t, tr.TrackID, sess.Pool[i].TrackID, "served prefix must survive rerank")
	}
	// Unverified tracks carry the default confidence.
	for i := sess.ServedCount; i < len(sess.Pool); i++ {
		assert.Equal(t, unverifiedConfidence, sess.Pool[i].Confidence)
	}
}

func TestRerankConfidenceOrdersSuffix(t *testing.T) {
	sessions := newMemSessions()
	verifier := &fixedVerifier{confidence: map[string]float64{}, called: make(chan struct{})}
	e := newTestEngine(t, richFetcher(), sessions, &memFeedback{}, verifier)

	page, err := e.BeginSession(context.Background(), testAnalysis(), "photo-ref")
	require.NoError(t, err)
	<-verifier.called
	require.NoError(t, e.Shutdown(context.Background()))

	sess, err := sessions.Get(context.Background(), page.SessionID)
	require.NoError(t, err)
	for i := sess.ServedCount + 1; i < len(sess.Pool); i++ {
		assert.GreaterOrEqual(t, sess.Pool[i-1].Confidence, sess.Pool[i].Confidence)
	}
}

func TestRerankFailureLeavesOrderUntouched(t *testing.T) {
	sessions := newMemSessions()
	verifier := &fixedVerifier{err: errors.New("llm timeout"), called: make(chan struct{})}
	e := newTestEngine(t, richFetcher(), sessions, &memFeedback{}, verifier)

	page, err := e.BeginSession(context.Background(), testAnalysis(), "photo-ref")
	require.NoError(t, err)

	before, err := sessions.Get(context.Background(), page.SessionID)
	require.NoError(t, err)

	<-verifier.called
	require.NoError(t, e.Shutdown(context.Background()))

	after, err := sessions.Get(context.Background(), page.SessionID)
	require.NoError(t, err)
	assert.False(t, after.Reranked)
	require.Equal(t, len(before.Pool), len(after.Pool))
	for i := range before.Pool {
		assert.Equal(t, before.Pool[i].TrackID, after.Pool[i].TrackID)
	}
}

func TestGetMoreRaceWithRerankIsAtomic(t *testing.T) {
	sessions := newMemSessions()
	verifier := &fixedVerifier{confidence: map[string]float64{}}
	e := newTestEngine(t, richFetcher(), sessions, &memFeedback{}, verifier)

	page, err := e.BeginSession(context.Background(), testAnalysis(), "photo-ref")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.GetMore(context.Background(), page.SessionID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	require.NoError(t, e.Shutdown(context.Background()))

	// No track may ever be served twice, regardless of interleaving.
	sess, err := sessions.Get(context.Background(), page.SessionID)
	require.NoError(t, err)
	seen := map[string]struct{}{}
	for _, c := range sess.Pool[:sess.ServedCount] {
		_, dup := seen[c.TrackID]
		require.False(t, dup)
		seen[c.TrackID] = struct{}{}
	}
}

func TestFeedbackInfluencesNextSession(t *testing.T) {
	fb := &memFeedback{}
	fetcher := richFetcher()
	e := newTestEngine(t, fetcher, newMemSessions(), fb, nil)

	// Two explicit likes for one artist cross the affinity threshold.
	page, err := e.BeginSession(context.Background(), testAnalysis(), "")
	require.NoError(t, err)
	liked := page.Tracks[0]
	require.NoError(t, e.RecordFeedback(context.Background(), page.SessionID, liked.TrackID, FeedbackLike, "", 0))
	require.NoError(t, e.RecordFeedback(context.Background(), page.SessionID, liked.TrackID, FeedbackLike, "", 0))

	next, err := e.BeginSession(context.Background(), testAnalysis(), "")
	require.NoError(t, err)
	var found bool
	for _, tr := range next.Tracks {
		if tr.Artist == liked.Artist {
			found = true
			assert.Equal(t, "liked_artist", tr.FeedbackReason)
		}
	}
	assert.True(t, found, "liked artist should surface in the next session")
}
