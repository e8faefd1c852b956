// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package api

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/storybeats/storybeats/internal/logging"
	"github.com/storybeats/storybeats/internal/metrics"
	"github.com/storybeats/storybeats/internal/recommend"
	"github.com/storybeats/storybeats/internal/vision"
)

// Engine is the recommendation engine surface the handlers call.
type Engine interface {
	BeginSession(ctx context.Context, analysis recommend.AnalysisResult, imageRef string) (*recommend.Page, error)
	GetMore(ctx context.Context, sessionID string) (*recommend.Page, error)
	RecordFeedback(ctx context.Context, sessionID, trackID string, kind recommend.FeedbackKind, signalType string, weight float64) error
}

// Analyzer is the vision collaborator surface the handlers call.
type Analyzer interface {
	Analyze(ctx context.Context, imageRef string) (recommend.AnalysisResult, error)
}

// ActivityStore aggregates recorded engagement per session.
type ActivityStore interface {
	SignalSummary(ctx context.Context, sessionID string) (map[string]float64, error)
}

// Handler serves the recommendation endpoints.
type Handler struct {
	engine         Engine
	analyzer       Analyzer
	activity       ActivityStore
	validate       *validator.Validate
	maxUploadBytes int64
}

// NewHandler builds a handler.
func NewHandler(engine Engine, analyzer Analyzer, activity ActivityStore, maxUploadBytes int64) *Handler {
	validate := validator.New()
	// Report json field names, not Go struct fields, in messages.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		engine:         engine,
		analyzer:       analyzer,
		activity:       activity,
		validate:       validate,
		maxUploadBytes: maxUploadBytes,
	}
}

type analyzeRequest struct {
	// Image is a data URL (data:image/jpeg;base64,...) or a fetchable
	// https URL for the photo.
	Image string `json:"image" validate:"required"`
}

type analyzeResponse struct {
	Analysis recommend.AnalysisResult `json:"analysis"`
	*recommend.Page
}

// Analyze runs the vision analysis on the uploaded photo and returns
// the first page of recommendations.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	var req analyzeRequest
	if !h.decode(w, r, &req) {
		return
	}

	analysis, err := h.analyzer.Analyze(r.Context(), req.Image)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Msg("photo analysis failed")
		respondError(w, http.StatusBadGateway, "photo analysis failed")
		return
	}

	page, err := h.engine.BeginSession(r.Context(), analysis, req.Image)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}

	metrics.PagesServed.WithLabelValues("first").Inc()
	respondJSON(w, http.StatusOK, analyzeResponse{Analysis: analysis, Page: page})
}

// More serves the next page of an existing session.
func (h *Handler) More(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	page, err := h.engine.GetMore(r.Context(), sessionID)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}

	metrics.PagesServed.WithLabelValues("more").Inc()
	respondJSON(w, http.StatusOK, page)
}

type feedbackRequest struct {
	// TrackID may be empty only for implicit session-level signals
	// such as load_more.
	TrackID    string  `json:"track_id" validate:"required_unless=Kind implicit"`
	Kind       string  `json:"kind" validate:"required,oneof=explicit_like explicit_dislike implicit"`
	SignalType string  `json:"signal_type" validate:"required_without=TrackID,max=64"`
	Weight     float64 `json:"weight" validate:"omitempty,gte=0,lte=10"`
}

// Feedback records an explicit or implicit feedback event.
func (h *Handler) Feedback(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var req feedbackRequest
	if !h.decode(w, r, &req) {
		return
	}

	err := h.engine.RecordFeedback(r.Context(), sessionID, req.TrackID,
		recommend.FeedbackKind(req.Kind), req.SignalType, req.Weight)
	switch {
	case err == nil:
		metrics.FeedbackEvents.WithLabelValues(req.Kind).Inc()
		respondJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
	case errors.Is(err, recommend.ErrFeedbackWrite):
		// Feedback is advisory; a storage hiccup must not surface as a
		// user-facing failure.
		logging.Ctx(r.Context()).Warn().Err(err).Str("session_id", sessionID).Msg("feedback write failed")
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "deferred"})
	default:
		h.respondEngineError(w, r, err)
	}
}

type activityResponse struct {
	SessionID string             `json:"session_id"`
	Signals   map[string]float64 `json:"signals"`
}

// Activity reports the implicit engagement recorded for a session,
// summed per signal type. A session with no recorded signals yields an
// empty map.
func (h *Handler) Activity(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	summary, err := h.activity.SignalSummary(r.Context(), sessionID)
	if err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("session_id", sessionID).Msg("signal summary failed")
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if summary == nil {
		summary = map[string]float64{}
	}
	respondJSON(w, http.StatusOK, activityResponse{SessionID: sessionID, Signals: summary})
}

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode parses and validates a JSON request body. It writes the error
// response itself and reports whether decoding succeeded.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		respondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func (h *Handler) respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.Ctx(r.Context())
	switch {
	case errors.Is(err, recommend.ErrUnknownSession):
		respondError(w, http.StatusNotFound, "session not found or expired")
	case errors.Is(err, recommend.ErrSourcingExhausted):
		metrics.SourcingDegraded.Inc()
		log.Warn().Err(err).Msg("catalog sourcing exhausted")
		respondError(w, http.StatusServiceUnavailable, "track catalog unavailable, try again shortly")
	case errors.Is(err, recommend.ErrInvalidAnalysis):
		respondError(w, http.StatusBadRequest, "analysis payload invalid")
	case errors.Is(err, vision.ErrAnalysisFailed):
		respondError(w, http.StatusBadGateway, "photo analysis failed")
	default:
		log.Error().Err(err).Msg("request failed")
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}
