// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package supervisor

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockServer struct {
	serveErr   error
	shutdownCh chan struct{}
	shutdown   bool
}

func newMockServer(serveErr error) *mockServer {
	return &mockServer{serveErr: serveErr, shutdownCh: make(chan struct{})}
}

func (m *mockServer) ListenAndServe() error {
	if m.serveErr != nil {
		return m.serveErr
	}
	<-m.shutdownCh
	return http.ErrServerClosed
}

func (m *mockServer) Shutdown(context.Context) error {
	m.shutdown = true
	close(m.shutdownCh)
	return nil
}

func TestHTTPServiceGracefulShutdown(t *testing.T) {
	srv := newMockServer(nil)
	svc := NewHTTPService(srv, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
		assert.True(t, srv.shutdown)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
}

func TestHTTPServiceStartupFailure(t *testing.T) {
	srv := newMockServer(errors.New("port in use"))
	svc := NewHTTPService(srv, time.Second)

	err := svc.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port in use")
}
