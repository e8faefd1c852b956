// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package vision

import (
	json "github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
)

func jsonUnmarshal(s string, v any) error {
	return json.Unmarshal([]byte(s), v)
}

// photoAnalysis is the structured output contract for the analysis
// call. Field names line up with recommend.AnalysisResult so the
// payload converts without a mapping table.
type photoAnalysis struct {
	Mood         string   `json:"mood" jsonschema_description:"primary emotional mood, specific not generic"`
	Themes       []string `json:"themes" jsonschema_description:"high-level visual themes"`
	Description  string   `json:"description" jsonschema_description:"atmosphere, setting, colors and overall vibe"`
	Genres       []string `json:"genres" jsonschema_description:"suggested genres, most relevant first"`
	Energy       float64  `json:"energy" jsonschema_description:"perceived energy level, 0 to 1"`
	Valence      float64  `json:"valence" jsonschema_description:"perceived positivity, 0 to 1"`
	Danceability float64  `json:"danceability" jsonschema_description:"suitability for dancing, 0 to 1"`
	Acousticness float64  `json:"acousticness" jsonschema_description:"acoustic versus electronic, 0 to 1"`
	Tempo        float64  `json:"tempo" jsonschema_description:"suggested tempo in BPM, 60 to 180"`
	Keywords     []string `json:"keywords" jsonschema_description:"terms capturing essence, setting and feeling"`
	MusicStyle   string   `json:"music_style" jsonschema_description:"what kind of music would fit"`
	CulturalVibe string   `json:"cultural_vibe" jsonschema_description:"one of indian, western, global, fusion"`
}

// verificationResult is the structured output contract for the rerank
// verification call.
type verificationResult struct {
	Scores []trackScore `json:"scores" jsonschema_description:"one entry per submitted track"`
}

type trackScore struct {
	TrackID    string  `json:"track_id" jsonschema_description:"the track id exactly as submitted"`
	Confidence float64 `json:"confidence" jsonschema_description:"confidence the track matches the photo, 0 to 1"`
}

var (
	photoAnalysisSchema = generateSchema[photoAnalysis]()
	verificationSchema  = generateSchema[verificationResult]()
)

// generateSchema reflects a Go struct into the draft the structured
// output API accepts: no references, no additional properties, every
// property required.
func generateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	requireAll(m)
	return m
}

func requireAll(schema map[string]any) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]any); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]any); ok {
				requireAll(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		requireAll(items)
	}
}
