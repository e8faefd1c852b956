// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// HTTPServer matches the *http.Server lifecycle methods so tests can
// substitute a mock.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPService adapts an HTTP server's blocking ListenAndServe to
// suture's context-aware Serve.
type HTTPService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewHTTPService wraps an HTTP server as a supervised service.
func NewHTTPService(server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service. http.ErrServerClosed maps to nil
// since it is the expected shutdown signal.
func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		// The serve context is canceled; shutdown needs its own.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *HTTPService) String() string {
	return "http-server"
}
