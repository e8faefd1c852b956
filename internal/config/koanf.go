// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/storybeats/config.yaml",
	"/etc/storybeats/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration from defaults, an optional config
// file, an optional .env file and environment variables.
func Load() (*Config, error) {
	// A missing .env file is the normal production case.
	_ = godotenv.Load()

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// wellKnownEnvVars maps provider-conventional variable names onto
// config paths so operators can reuse existing secrets unchanged.
var wellKnownEnvVars = map[string]string{
	"SPOTIFY_CLIENT_ID":     "catalog.client_id",
	"SPOTIFY_CLIENT_SECRET": "catalog.client_secret",
	"OPENAI_API_KEY":        "vision.api_key",
	"LOG_LEVEL":             "logging.level",
	"LOG_FORMAT":            "logging.format",
	"HTTP_PORT":             "server.port",
}

// envTransformFunc maps environment variable names to koanf paths.
//
// Examples:
//   - STORYBEATS_SERVER_PORT -> server.port
//   - STORYBEATS_STORAGE_SESSION_TTL -> storage.session_ttl
//   - SPOTIFY_CLIENT_ID -> catalog.client_id
func envTransformFunc(key string) string {
	if path, ok := wellKnownEnvVars[key]; ok {
		return path
	}
	if !strings.HasPrefix(key, "STORYBEATS_") {
		return ""
	}
	key = strings.ToLower(strings.TrimPrefix(key, "STORYBEATS_"))
	// The first token names the section; the rest is the field with
	// underscores intact.
	section, field, ok := strings.Cut(key, "_")
	if !ok {
		return section
	}
	return section + "." + field
}

// sliceConfigPaths lists paths parsed as comma-separated slices when
// they arrive as env var strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		s, ok := val.(string)
		if !ok {
			continue
		}
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		if err := k.Set(path, out); err != nil {
			return fmt.Errorf("set %s: %w", path, err)
		}
	}
	return nil
}
