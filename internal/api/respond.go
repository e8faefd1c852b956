// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/storybeats/storybeats/internal/logging"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("encoding response")
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

// validationMessage flattens validator errors into a client-readable
// message without leaking struct internals.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "required_unless", "required_without":
			parts = append(parts, fmt.Sprintf("%s is required", fe.Field()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", fe.Field()))
		}
	}
	return strings.Join(parts, "; ")
}
