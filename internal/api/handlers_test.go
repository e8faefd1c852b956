// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storybeats/storybeats/internal/config"
	"github.com/storybeats/storybeats/internal/recommend"
)

type fakeEngine struct {
	page        *recommend.Page
	beginErr    error
	moreErr     error
	feedbackErr error

	lastAnalysis recommend.AnalysisResult
	lastSession  string
	lastTrack    string
	lastKind     recommend.FeedbackKind
	lastSignal   string
}

func (f *fakeEngine) BeginSession(_ context.Context, analysis recommend.AnalysisResult, _ string) (*recommend.Page, error) {
	f.lastAnalysis = analysis
	return f.page, f.beginErr
}

func (f *fakeEngine) GetMore(_ context.Context, sessionID string) (*recommend.Page, error) {
	f.lastSession = sessionID
	return f.page, f.moreErr
}

func (f *fakeEngine) RecordFeedback(_ context.Context, sessionID, trackID string, kind recommend.FeedbackKind, signalType string, _ float64) error {
	f.lastSession = sessionID
	f.lastTrack = trackID
	f.lastKind = kind
	f.lastSignal = signalType
	return f.feedbackErr
}

type fakeAnalyzer struct {
	result recommend.AnalysisResult
	err    error
}

func (f *fakeAnalyzer) Analyze(context.Context, string) (recommend.AnalysisResult, error) {
	return f.result, f.err
}

type fakeActivity struct {
	signals map[string]float64
	err     error

	lastSession string
}

func (f *fakeActivity) SignalSummary(_ context.Context, sessionID string) (map[string]float64, error) {
	f.lastSession = sessionID
	return f.signals, f.err
}

func testPage() *recommend.Page {
	return &recommend.Page{
		SessionID: "sess-1",
		Tracks: []recommend.ScoredCandidate{
			{Candidate: recommend.Candidate{TrackID: "t1", Title: "Track One", Artist: "Artist"}},
		},
		PoolSize: 25,
	}
}

func serverFor(t *testing.T, eng Engine, an Analyzer) *httptest.Server {
	t.Helper()
	cfg := config.ServerConfig{
		CORSOrigins:      []string{"*"},
		AnalyzePerMinute: 100,
		MorePerMinute:    100,
	}
	rt := NewRouter(NewHandler(eng, an, &fakeActivity{}, 8<<20), cfg)
	srv := httptest.NewServer(rt.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestAnalyzeReturnsFirstPage(t *testing.T) {
	eng := &fakeEngine{page: testPage()}
	an := &fakeAnalyzer{result: recommend.AnalysisResult{Mood: "dreamy", Energy: 0.4, Valence: 0.7, CulturalVibe: recommend.VibeGlobal}}
	srv := serverFor(t, eng, an)

	resp := postJSON(t, srv.URL+"/api/v1/analyze", `{"image":"data:image/jpeg;base64,aGk="}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out analyzeResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, "sess-1", out.SessionID)
	assert.Equal(t, "dreamy", out.Analysis.Mood)
	assert.Len(t, out.Tracks, 1)
	assert.Equal(t, "dreamy", eng.lastAnalysis.Mood)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestAnalyzeRequiresImage(t *testing.T) {
	srv := serverFor(t, &fakeEngine{page: testPage()}, &fakeAnalyzer{})

	resp := postJSON(t, srv.URL+"/api/v1/analyze", `{}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out errorResponse
	decodeBody(t, resp, &out)
	assert.Contains(t, out.Error, "image is required")
}

func TestAnalyzeVisionFailureIs502(t *testing.T) {
	srv := serverFor(t, &fakeEngine{page: testPage()}, &fakeAnalyzer{err: errors.New("quota")})

	resp := postJSON(t, srv.URL+"/api/v1/analyze", `{"image":"https://img.example/p.jpg"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestAnalyzeSourcingExhaustedIs503(t *testing.T) {
	eng := &fakeEngine{beginErr: recommend.ErrSourcingExhausted}
	srv := serverFor(t, eng, &fakeAnalyzer{})

	resp := postJSON(t, srv.URL+"/api/v1/analyze", `{"image":"https://img.example/p.jpg"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMoreUnknownSessionIs404(t *testing.T) {
	eng := &fakeEngine{moreErr: recommend.ErrUnknownSession}
	srv := serverFor(t, eng, &fakeAnalyzer{})

	resp := postJSON(t, srv.URL+"/api/v1/sessions/ghost/more", `{}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "ghost", eng.lastSession)
}

func TestMoreReturnsNextPage(t *testing.T) {
	eng := &fakeEngine{page: testPage()}
	srv := serverFor(t, eng, &fakeAnalyzer{})

	resp := postJSON(t, srv.URL+"/api/v1/sessions/sess-1/more", ``)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out recommend.Page
	decodeBody(t, resp, &out)
	assert.Equal(t, 25, out.PoolSize)
}

func TestFeedbackRecorded(t *testing.T) {
	eng := &fakeEngine{}
	srv := serverFor(t, eng, &fakeAnalyzer{})

	resp := postJSON(t, srv.URL+"/api/v1/sessions/sess-1/feedback",
		`{"track_id":"t1","kind":"explicit_like"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "t1", eng.lastTrack)
	assert.Equal(t, recommend.FeedbackLike, eng.lastKind)
}

func TestFeedbackRejectsUnknownKind(t *testing.T) {
	srv := serverFor(t, &fakeEngine{}, &fakeAnalyzer{})

	resp := postJSON(t, srv.URL+"/api/v1/sessions/sess-1/feedback",
		`{"track_id":"t1","kind":"meh"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out errorResponse
	decodeBody(t, resp, &out)
	assert.Contains(t, out.Error, "kind must be one of")
}

func TestFeedbackWriteFailureIsSoft202(t *testing.T) {
	eng := &fakeEngine{feedbackErr: errors.Join(recommend.ErrFeedbackWrite, errors.New("disk full"))}
	srv := serverFor(t, eng, &fakeAnalyzer{})

	resp := postJSON(t, srv.URL+"/api/v1/sessions/sess-1/feedback",
		`{"track_id":"t1","kind":"implicit","signal_type":"preview_play"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "preview_play", eng.lastSignal)
}

func TestAnalyzeInvalidAnalysisIs400(t *testing.T) {
	eng := &fakeEngine{beginErr: recommend.ErrInvalidAnalysis}
	srv := serverFor(t, eng, &fakeAnalyzer{})

	resp := postJSON(t, srv.URL+"/api/v1/analyze", `{"image":"https://img.example/p.jpg"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFeedbackSessionLevelImplicitNeedsNoTrack(t *testing.T) {
	eng := &fakeEngine{}
	srv := serverFor(t, eng, &fakeAnalyzer{})

	resp := postJSON(t, srv.URL+"/api/v1/sessions/sess-1/feedback",
		`{"kind":"implicit","signal_type":"load_more"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, eng.lastTrack)
	assert.Equal(t, "load_more", eng.lastSignal)
}

func TestFeedbackExplicitStillRequiresTrack(t *testing.T) {
	srv := serverFor(t, &fakeEngine{}, &fakeAnalyzer{})

	resp := postJSON(t, srv.URL+"/api/v1/sessions/sess-1/feedback",
		`{"kind":"explicit_like"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out errorResponse
	decodeBody(t, resp, &out)
	assert.Contains(t, out.Error, "track_id is required")
}

func TestFeedbackImplicitWithoutTrackRequiresSignal(t *testing.T) {
	srv := serverFor(t, &fakeEngine{}, &fakeAnalyzer{})

	resp := postJSON(t, srv.URL+"/api/v1/sessions/sess-1/feedback",
		`{"kind":"implicit"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestActivityReturnsSignalSummary(t *testing.T) {
	activity := &fakeActivity{signals: map[string]float64{"preview_play": 2, "load_more": 0.5}}
	cfg := config.ServerConfig{CORSOrigins: []string{"*"}, AnalyzePerMinute: 100, MorePerMinute: 100}
	rt := NewRouter(NewHandler(&fakeEngine{}, &fakeAnalyzer{}, activity, 8<<20), cfg)
	srv := httptest.NewServer(rt.Routes())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/v1/sessions/sess-9/activity")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out activityResponse
	decodeBody(t, resp, &out)
	assert.Equal(t, "sess-9", out.SessionID)
	assert.Equal(t, "sess-9", activity.lastSession)
	assert.Equal(t, 2.0, out.Signals["preview_play"])
}

func TestActivityEmptySessionIsEmptyMap(t *testing.T) {
	srv := serverFor(t, &fakeEngine{}, &fakeAnalyzer{})

	resp, err := http.Get(srv.URL + "/api/v1/sessions/quiet/activity")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out activityResponse
	decodeBody(t, resp, &out)
	assert.NotNil(t, out.Signals)
	assert.Empty(t, out.Signals)
}

func TestHealth(t *testing.T) {
	srv := serverFor(t, &fakeEngine{}, &fakeAnalyzer{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpointExposed(t *testing.T) {
	srv := serverFor(t, &fakeEngine{}, &fakeAnalyzer{})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAnalyzeRejectsOversizedBody(t *testing.T) {
	cfg := config.ServerConfig{CORSOrigins: []string{"*"}, AnalyzePerMinute: 100, MorePerMinute: 100}
	rt := NewRouter(NewHandler(&fakeEngine{page: testPage()}, &fakeAnalyzer{}, &fakeActivity{}, 64), cfg)
	srv := httptest.NewServer(rt.Routes())
	t.Cleanup(srv.Close)

	big := `{"image":"data:image/jpeg;base64,` + strings.Repeat("A", 1024) + `"}`
	resp := postJSON(t, srv.URL+"/api/v1/analyze", big)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
