// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	prev := Logger()
	prevLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		SetLogger(prev)
		zerolog.SetGlobalLevel(prevLevel)
	})
	var buf bytes.Buffer
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	SetLogger(NewTestLogger(&buf))
	return &buf
}

func TestWithComponentAddsField(t *testing.T) {
	buf := captureOutput(t)

	logger := WithComponent("engine")
	logger.Info().Msg("pool built")

	out := buf.String()
	assert.Contains(t, out, `"component":"engine"`)
	assert.Contains(t, out, `"message":"pool built"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel("WARNING"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("bogus"))
	assert.Equal(t, zerolog.Disabled, parseLevel("disabled"))
}

func TestCtxAttachesRequestID(t *testing.T) {
	buf := captureOutput(t)

	ctx := ContextWithRequestID(context.Background(), "req-123")
	Ctx(ctx).Info().Msg("handled")
	Ctx(context.Background()).Info().Msg("bare")

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-123"`)
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.NotContains(t, string(lines[1]), "request_id")
}

func TestSlogAdapterRoutesThroughZerolog(t *testing.T) {
	buf := captureOutput(t)

	slogger := slog.New(NewSlogHandler())
	slogger.Warn("supervisor restart", slog.String("service", "http"), slog.Int("attempt", 2))

	out := buf.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"service":"http"`)
	assert.Contains(t, out, `"attempt":2`)
	assert.Contains(t, out, "supervisor restart")
}

func TestSlogHandlerGroups(t *testing.T) {
	buf := captureOutput(t)

	slogger := slog.New(NewSlogHandler()).WithGroup("sup").With("tree", "root")
	slogger.Info("started")

	assert.Contains(t, buf.String(), `"sup.tree":"root"`)
}
