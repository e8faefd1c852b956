// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package vision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"

	"github.com/storybeats/storybeats/internal/logging"
	"github.com/storybeats/storybeats/internal/recommend"
)

// maxVerifyTracks bounds how many tracks are submitted per call so the
// prompt stays inside the model's context.
const maxVerifyTracks = 30

// Verifier scores recommended tracks against the original photo. It
// implements recommend.Verifier; any error it returns simply leaves the
// algorithmic ordering in place.
type Verifier struct {
	chat    completer
	model   openai.ChatModel
	timeout time.Duration
	log     zerolog.Logger
}

// NewVerifier builds a verifier from config.
func NewVerifier(cfg Config) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return newVerifier(&client.Chat.Completions, cfg), nil
}

func newVerifier(chat completer, cfg Config) *Verifier {
	model := defaultModel
	if cfg.Model != "" {
		model = openai.ChatModel(cfg.Model)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Verifier{
		chat:    chat,
		model:   model,
		timeout: timeout,
		log:     logging.WithComponent("verifier"),
	}
}

// Verify scores each track's fit against the photo. The returned map
// is keyed by track id; ids the model omitted are absent and keep their
// prior treatment downstream.
func (v *Verifier) Verify(ctx context.Context, imageRef string, analysis recommend.AnalysisResult, tracks []recommend.ScoredCandidate) (map[string]float64, error) {
	if len(tracks) == 0 {
		return map[string]float64{}, nil
	}
	if len(tracks) > maxVerifyTracks {
		tracks = tracks[:maxVerifyTracks]
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	resp, err := v.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:     v.model,
		MaxTokens: openai.Int(verificationMaxTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: imageRef}),
				openai.TextContentPart(verifyPrompt(analysis, tracks)),
			}),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "track_verification",
					Schema: verificationSchema,
					Strict: openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vision: verification call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("vision: verification returned no choices")
	}

	var out verificationResult
	if err := decodeModelJSON(resp.Choices[0].Message.Content, &out); err != nil {
		return nil, fmt.Errorf("vision: verification output: %w", err)
	}

	submitted := make(map[string]struct{}, len(tracks))
	for _, t := range tracks {
		submitted[t.TrackID] = struct{}{}
	}
	scores := make(map[string]float64, len(out.Scores))
	for _, s := range out.Scores {
		if _, ok := submitted[s.TrackID]; !ok {
			continue
		}
		if s.Confidence < 0 || s.Confidence > 1 {
			continue
		}
		scores[s.TrackID] = s.Confidence
	}

	v.log.Info().
		Int("submitted", len(tracks)).
		Int("scored", len(scores)).
		Dur("elapsed", time.Since(start)).
		Msg("verification pass complete")
	return scores, nil
}

func verifyPrompt(analysis recommend.AnalysisResult, tracks []recommend.ScoredCandidate) string {
	var b strings.Builder
	b.WriteString("You are a music recommendation expert. Look at this photo and evaluate how well each recommended song matches its vibe.\n\n")
	b.WriteString("Original analysis:\n")
	fmt.Fprintf(&b, "- Mood: %s\n", analysis.Mood)
	fmt.Fprintf(&b, "- Energy: %.2f\n", analysis.Energy)
	fmt.Fprintf(&b, "- Valence: %.2f\n", analysis.Valence)
	fmt.Fprintf(&b, "- Cultural vibe: %s\n\n", analysis.CulturalVibe)
	b.WriteString("Recommended songs:\n")
	for _, t := range tracks {
		fmt.Fprintf(&b, "- [%s] %q by %s", t.TrackID, t.Title, t.Artist)
		if t.Album != "" {
			fmt.Fprintf(&b, " (Album: %s)", t.Album)
		}
		b.WriteString("\n")
	}
	b.WriteString("\nConsider the mood, energy, colors and atmosphere of the photo. Score EVERY song by how well it matches, using the track id in brackets.")
	return b.String()
}
