// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

// Package api provides the HTTP surface of the service: photo analysis,
// session pagination and feedback endpoints, plus health and metrics.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/storybeats/storybeats/internal/config"
	"github.com/storybeats/storybeats/internal/logging"
)

// Router wires handlers, middleware and routes.
type Router struct {
	handler *Handler
	cfg     config.ServerConfig
	log     zerolog.Logger
}

// NewRouter builds the router.
func NewRouter(handler *Handler, cfg config.ServerConfig) *Router {
	return &Router{
		handler: handler,
		cfg:     cfg,
		log:     logging.WithComponent("api"),
	}
}

// Routes assembles the chi routing tree.
func (rt *Router) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(recordMetrics)

	r.Get("/health", rt.handler.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			// Analysis runs two LLM-budgeted calls per request.
			r.Use(httprate.LimitByIP(rt.cfg.AnalyzePerMinute, time.Minute))
			r.Post("/analyze", rt.handler.Analyze)
		})
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(httprate.LimitByIP(rt.cfg.MorePerMinute, time.Minute))
				r.Post("/more", rt.handler.More)
			})
			r.Post("/feedback", rt.handler.Feedback)
			r.Get("/activity", rt.handler.Activity)
		})
	})

	return r
}
