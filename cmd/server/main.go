// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

// Package main is the entry point for the StoryBeats server.
//
// StoryBeats analyzes an uploaded photo with a vision-capable LLM and
// recommends matching songs from the Spotify catalog, with pagination,
// like/dislike feedback and a background verification rerank.
//
// Startup order:
//
//  1. Configuration: Koanf v2 layering of defaults, config.yaml, .env
//     and environment variables
//  2. Storage: Badger session store and DuckDB feedback store
//  3. Catalog: Spotify client (client-credentials OAuth)
//  4. Vision: analyzer and verifier collaborators
//  5. Engine: the recommendation pipeline
//  6. HTTP server under a suture supervision tree
//
// Required environment:
//
//	export SPOTIFY_CLIENT_ID=...
//	export SPOTIFY_CLIENT_SECRET=...
//	export OPENAI_API_KEY=...
//	./storybeats
//
// The server shuts down gracefully on SIGINT and SIGTERM, draining
// in-flight requests and pending rerank passes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/storybeats/storybeats/internal/api"
	"github.com/storybeats/storybeats/internal/catalog"
	"github.com/storybeats/storybeats/internal/config"
	"github.com/storybeats/storybeats/internal/database"
	"github.com/storybeats/storybeats/internal/logging"
	"github.com/storybeats/storybeats/internal/recommend"
	"github.com/storybeats/storybeats/internal/session"
	"github.com/storybeats/storybeats/internal/supervisor"
	"github.com/storybeats/storybeats/internal/vision"
)

func main() {
	if err := run(); err != nil {
		logging.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	log := logging.WithComponent("main")
	log.Info().Int("port", cfg.Server.Port).Msg("starting storybeats")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage.
	sessions, err := session.Open(session.Options{
		Path: cfg.Storage.SessionPath,
		TTL:  cfg.Storage.SessionTTL,
	}, logging.WithComponent("session"))
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	defer sessions.Close()

	feedback, err := database.Open(ctx, cfg.Storage.FeedbackPath, logging.WithComponent("feedback"))
	if err != nil {
		return fmt.Errorf("open feedback store: %w", err)
	}
	defer feedback.Close()

	// Catalog.
	fetcher, err := catalog.New(ctx, cfg.Catalog)
	if err != nil {
		return fmt.Errorf("build catalog client: %w", err)
	}
	defer fetcher.Close()

	// Vision collaborators.
	analyzer, err := vision.NewAnalyzer(cfg.Vision)
	if err != nil {
		return fmt.Errorf("build analyzer: %w", err)
	}
	verifier, err := vision.NewVerifier(cfg.Vision)
	if err != nil {
		return fmt.Errorf("build verifier: %w", err)
	}

	// Engine.
	engine, err := recommend.NewEngine(cfg.Engine, fetcher, sessions, feedback,
		verifier, logging.WithComponent("engine"))
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	// HTTP.
	handler := api.NewHandler(engine, analyzer, feedback, cfg.Server.MaxUploadBytes)
	router := api.NewRouter(handler, cfg.Server)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	tree := supervisor.New(logging.NewSlogLogger(), supervisor.Config{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.Add(supervisor.NewHTTPService(server, cfg.Server.ShutdownTimeout))

	err = tree.Serve(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	// Drain pending rerank passes before closing the stores.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := engine.Shutdown(drainCtx); err != nil {
		log.Warn().Err(err).Msg("rerank drain incomplete")
	}

	log.Info().Msg("shutdown complete")
	return nil
}
