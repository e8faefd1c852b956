// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

package catalog

import (
	"fmt"
	"strings"
	"time"

	"github.com/zmb3/spotify/v2"

	"github.com/storybeats/storybeats/internal/recommend"
)

// fromFullTrack converts a catalog track into a sourcing candidate.
// Audio features are left zero; the scoring pipeline estimates them
// when the feature endpoint has no data.
func fromFullTrack(ft spotify.FullTrack) recommend.Candidate {
	c := recommend.Candidate{
		TrackID:     string(ft.ID),
		Title:       ft.Name,
		Artist:      primaryArtist(ft.Artists),
		Album:       ft.Album.Name,
		ReleaseDate: parseReleaseDate(ft.Album.ReleaseDate),
		Popularity:  int(ft.Popularity),
		PreviewURL:  ft.PreviewURL,
		ExternalURL: externalTrackURL(string(ft.ID)),
		DurationMS:  int(ft.Duration),
	}
	if len(ft.Album.Images) > 0 {
		c.AlbumArtURL = ft.Album.Images[0].URL
	}
	if u, ok := ft.ExternalURLs["spotify"]; ok && u != "" {
		c.ExternalURL = u
	}
	return c
}

func primaryArtist(artists []spotify.SimpleArtist) string {
	if len(artists) == 0 {
		return ""
	}
	return artists[0].Name
}

func externalTrackURL(id string) string {
	return fmt.Sprintf("https://open.spotify.com/track/%s", id)
}

// parseReleaseDate handles the day, month and year precisions the
// catalog emits. Unknown formats map to the zero time.
func parseReleaseDate(s string) time.Time {
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
