// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

// Package supervisor provides process supervision using suture v4.
// Services are restarted on failure with exponential backoff; supervisor
// events are logged through the zerolog-backed slog adapter.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// Config holds supervisor failure handling settings. Zero values select
// suture's defaults.
type Config struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

// Tree supervises the service processes.
type Tree struct {
	root *suture.Supervisor
}

// New creates a supervisor tree logging through the given slog logger.
func New(logger *slog.Logger, cfg Config) *Tree {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5.0
	}
	if cfg.FailureDecay == 0 {
		cfg.FailureDecay = 30.0
	}
	if cfg.FailureBackoff == 0 {
		cfg.FailureBackoff = 15 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	handler := &sutureslog.Handler{Logger: logger}
	root := suture.New("storybeats", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: cfg.FailureThreshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		Timeout:          cfg.ShutdownTimeout,
	})
	return &Tree{root: root}
}

// Add registers a service with the tree.
func (t *Tree) Add(svc suture.Service) suture.ServiceToken {
	return t.root.Add(svc)
}

// Serve runs the tree until ctx is canceled. It blocks.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}
