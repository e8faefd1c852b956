// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

// Package vision holds the two LLM collaborators of the recommendation
// pipeline: the photo analyzer that turns an uploaded image into a
// structured mood profile, and the verifier that scores candidate
// tracks against the photo during the background rerank.
//
// Both speak to a vision-capable model through the OpenAI API with
// strict structured output, so malformed responses surface as decode
// errors instead of silently skewed recommendations.
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

const (
	defaultModel   = openai.ChatModelGPT4o
	defaultTimeout = 30 * time.Second

	analysisMaxTokens     = 1024
	verificationMaxTokens = 2048
)

// ErrAnalysisFailed wraps total failure of the analysis call. Partial
// or malformed fields are repaired with defaults instead.
var ErrAnalysisFailed = errors.New("vision: analysis failed")

// completer is the slice of the OpenAI client the package uses.
type completer interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Config holds vision collaborator settings.
type Config struct {
	APIKey  string        `koanf:"api_key" json:"-"`
	Model   string        `koanf:"model" json:"model"`
	Timeout time.Duration `koanf:"timeout" json:"timeout"`
}

// Validate checks required credentials.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("vision: api_key is required")
	}
	return nil
}

// Analyzer produces a structured mood analysis from a photo.
type Analyzer struct {
	chat    completer
	model   openai.ChatModel
	timeout time.Duration
	log     zerolog.Logger
}

// NewAnalyzer builds an analyzer from config.
func NewAnalyzer(cfg Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	a := newAnalyzer(&client.Chat.Completions, cfg)
	return a, nil
}

func newAnalyzer(chat completer, cfg Config) *Analyzer {
	model := defaultModel
	if cfg.Model != "" {
		model = openai.ChatModel(cfg.Model)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Analyzer{
		chat:    chat,
		model:   model,
		timeout: timeout,
		log:     logging.WithComponent("vision"),
	}
}

const analysisPrompt = `Analyze this photo that will be used as a story background.
Suggest music that would match its vibe. Be specific and nuanced.

Guidelines:
- Be very specific with mood (prefer "joyful", "euphoric" or "content" over generic "happy")
- Genres should include both international and Indian styles when appropriate:
  International: indie, pop, rock, hip-hop, electronic, jazz, r-n-b, soul, alternative, folk, ambient, house
  Indian: bollywood, desi-pop, indie-hindi, punjabi, sufi, carnatic, hindustani-classical, indi-pop
- Consider the setting, colors, activities, expressions and overall aesthetic
- Energy: 0.0 = very calm, 0.5 = moderate, 1.0 = very energetic
- Valence: 0.0 = melancholic, 0.5 = neutral, 1.0 = euphoric
- Tempo: 60-80 = slow ballad, 100-120 = moderate, 140-180 = fast
- Keywords should capture the essence, setting and feeling (e.g. "sunset", "friends", "urban")
- Cultural vibe drives the language mix of recommended songs
  (indian = more Hindi/regional, western = more English, global = mixed)`

// Analyze runs the vision analysis on an image reference (a data URL
// or a fetchable https URL). Malformed fields in the response are
// repaired with documented defaults; only total call failure is an
// error.
func (a *Analyzer) Analyze(ctx context.Context, imageRef string) (recommend.AnalysisResult, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	resp, err := a.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:     a.model,
		MaxTokens: openai.Int(analysisMaxTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: imageRef}),
				openai.TextContentPart(analysisPrompt),
			}),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "photo_analysis",
					Schema: photoAnalysisSchema,
					Strict: openai.Bool(true),
				},
			},
		},
	})
	if err != nil {
		return recommend.AnalysisResult{}, errors.Join(ErrAnalysisFailed, err)
	}
	if len(resp.Choices) == 0 {
		return recommend.AnalysisResult{}, fmt.Errorf("%w: empty response", ErrAnalysisFailed)
	}

	var out photoAnalysis
	if err := decodeModelJSON(resp.Choices[0].Message.Content, &out); err != nil {
		return recommend.AnalysisResult{}, errors.Join(ErrAnalysisFailed, err)
	}

	result := recommend.AnalysisResult{
		Mood:         strings.TrimSpace(out.Mood),
		Themes:       out.Themes,
		Keywords:     out.Keywords,
		Description:  strings.TrimSpace(out.Description),
		Energy:       out.Energy,
		Valence:      out.Valence,
		MusicStyle:   strings.TrimSpace(out.MusicStyle),
		Genres:       out.Genres,
		CulturalVibe: recommend.CulturalVibe(strings.ToLower(strings.TrimSpace(out.CulturalVibe))),
	}
	result.ApplyDefaults()

	a.log.Info().
		Str("mood", result.Mood).
		Float64("energy", result.Energy).
		Float64("valence", result.Valence).
		Str("cultural_vibe", string(result.CulturalVibe)).
		Dur("elapsed", time.Since(start)).
		Msg("photo analyzed")
	return result, nil
}

// decodeModelJSON unmarshals model output, tolerating code fences and
// stray text around the JSON object.
func decodeModelJSON(text string, v any) error {
	s := strings.TrimSpace(text)
	if s == "" {
		return errors.New("empty model output")
	}
	if i := strings.Index(s, "{"); i > 0 {
		s = s[i:]
	}
	if i := strings.LastIndex(s, "}"); i >= 0 && i < len(s)-1 {
		s = s[:i+1]
	}
	return jsonUnmarshal(s, v)
}
