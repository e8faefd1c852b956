// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

// Package config loads and validates service configuration. Values are
// layered: struct defaults first, then an optional YAML file, then
// environment variables, highest priority last.
package config

import (
	"fmt"
	"time"

	"github.com/storybeats/storybeats/internal/catalog"
	"github.com/storybeats/storybeats/internal/recommend"
	"github.com/storybeats/storybeats/internal/vision"
)

// Config is the root configuration for the service.
type Config struct {
	Server  ServerConfig     `koanf:"server"`
	Storage StorageConfig    `koanf:"storage"`
	Logging LoggingConfig    `koanf:"logging"`
	Engine  recommend.Config `koanf:"engine"`
	Catalog catalog.Config   `koanf:"catalog"`
	Vision  vision.Config    `koanf:"vision"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// MaxUploadBytes caps the analyze request body. Photos are sent
	// inline as data URLs.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	CORSOrigins []string `koanf:"cors_origins"`

	// AnalyzePerMinute and MorePerMinute are per-IP rate limits on the
	// expensive endpoints.
	AnalyzePerMinute int `koanf:"analyze_per_minute"`
	MorePerMinute    int `koanf:"more_per_minute"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// SessionPath is the Badger directory for sessions. Empty selects
	// an in-memory store.
	SessionPath string        `koanf:"session_path"`
	SessionTTL  time.Duration `koanf:"session_ttl"`

	// FeedbackPath is the DuckDB file for feedback events. Empty
	// selects an in-memory database.
	FeedbackPath string `koanf:"feedback_path"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     60 * time.Second,
			ShutdownTimeout:  15 * time.Second,
			MaxUploadBytes:   8 << 20,
			CORSOrigins:      []string{"*"},
			AnalyzePerMinute: 5,
			MorePerMinute:    10,
		},
		Storage: StorageConfig{
			SessionPath:  "/data/storybeats/sessions",
			SessionTTL:   2 * time.Hour,
			FeedbackPath: "/data/storybeats/feedback.duckdb",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: recommend.DefaultConfig(),
	}
}

// Validate checks the configuration for fatal mistakes. Catalog and
// vision credentials are validated where the collaborators are
// constructed so test setups can skip them.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	if c.Server.AnalyzePerMinute < 1 {
		return fmt.Errorf("server.analyze_per_minute must be at least 1")
	}
	if c.Server.MorePerMinute < 1 {
		return fmt.Errorf("server.more_per_minute must be at least 1")
	}
	if c.Storage.SessionTTL <= 0 {
		return fmt.Errorf("storage.session_ttl must be positive")
	}
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	return nil
}
