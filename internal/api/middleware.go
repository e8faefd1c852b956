// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/storybeats/storybeats/internal/logging"
	"github.com/storybeats/storybeats/internal/metrics"
)

// requestID attaches an X-Request-ID to the request context and the
// response, honoring an incoming header when the client set one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logging.GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// recordMetrics tracks request duration and in-flight counts.
func recordMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.TrackActiveRequest(true)
		defer metrics.TrackActiveRequest(false)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		metrics.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(rec.status), time.Since(start))
	})
}
