// StoryBeats - Photo Mood Music Recommendation Service
// Copyright 2026 StoryBeats Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/storybeats/storybeats

// Package catalog implements the track catalog boundary on top of the
// Spotify Web API. The client satisfies recommend.CandidateFetcher and
// layers rate limiting, a circuit breaker and response caching over the
// raw API so that the sourcing pipeline can hammer it from concurrent
// workers without tripping upstream quotas.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/storybeats/storybeats/internal/cache"
	"github.com/storybeats/storybeats/internal/logging"
	"github.com/storybeats/storybeats/internal/recommend"
)

const (
	defaultRequestTimeout = 10 * time.Second

	// Spotify's documented budget is roughly 180 requests per minute
	// per client. Stay well under it.
	defaultRateLimit = rate.Limit(20)
	defaultBurst     = 10

	artistIDTTL     = 24 * time.Hour
	topTracksTTL    = time.Hour
	recentTracksTTL = 30 * time.Minute

	// recentWindow bounds what counts as a recent release when walking
	// an artist's discography.
	recentWindow = 540 * 24 * time.Hour

	recentAlbumLimit  = 10
	recentTrackLimit  = 10
	searchArtistLimit = 3

	// audioFeatureBatch is the API's maximum ids per audio-features
	// request.
	audioFeatureBatch = 100
)

// ErrArtistNotFound is returned when an artist name resolves to no
// catalog entry in the requested market.
var ErrArtistNotFound = errors.New("catalog: artist not found")

// spotifyAPI is the slice of the Spotify client the catalog uses.
// Narrowing it here keeps tests free of HTTP fixtures.
type spotifyAPI interface {
	Search(ctx context.Context, query string, t spotify.SearchType, opts ...spotify.RequestOption) (*spotify.SearchResult, error)
	GetArtistsTopTracks(ctx context.Context, artistID spotify.ID, country string) ([]spotify.FullTrack, error)
	GetArtistAlbums(ctx context.Context, artistID spotify.ID, ts []spotify.AlbumType, opts ...spotify.RequestOption) (*spotify.SimpleAlbumPage, error)
	GetAlbumTracks(ctx context.Context, id spotify.ID, opts ...spotify.RequestOption) (*spotify.SimpleTrackPage, error)
	GetTracks(ctx context.Context, ids []spotify.ID, opts ...spotify.RequestOption) ([]*spotify.FullTrack, error)
	GetAudioFeatures(ctx context.Context, ids ...spotify.ID) ([]*spotify.AudioFeatures, error)
	GetRecommendations(ctx context.Context, seeds spotify.Seeds, trackAttributes *spotify.TrackAttributes, opts ...spotify.RequestOption) (*spotify.Recommendations, error)
}

// Config holds catalog client settings.
type Config struct {
	ClientID     string        `koanf:"client_id" json:"client_id"`
	ClientSecret string        `koanf:"client_secret" json:"-"`
	Timeout      time.Duration `koanf:"timeout" json:"timeout"`

	// RequestsPerSecond caps outbound API calls. Zero selects the
	// default budget.
	RequestsPerSecond float64 `koanf:"requests_per_second" json:"requests_per_second"`
	Burst             int     `koanf:"burst" json:"burst"`
}

// Validate checks required credentials.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("catalog: client_id is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("catalog: client_secret is required")
	}
	return nil
}

// Client is a resilient Spotify-backed catalog. It implements
// recommend.CandidateFetcher.
type Client struct {
	api     spotifyAPI
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[any]
	timeout time.Duration
	log     zerolog.Logger

	artistIDs    *cache.Cache[spotify.ID]
	topTracks    *cache.Cache[[]recommend.Candidate]
	recentTracks *cache.Cache[[]recommend.Candidate]

	now func() time.Time
}

// New builds a catalog client using the client-credentials OAuth flow.
// The returned client owns background cache janitors; call Close when
// done.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	auth := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	httpClient := auth.Client(ctx)

	return newWithAPI(spotify.New(httpClient), cfg), nil
}

func newWithAPI(api spotifyAPI, cfg Config) *Client {
	limit := defaultRateLimit
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := defaultBurst
	if cfg.Burst > 0 {
		burst = cfg.Burst
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	log := logging.WithComponent("catalog")

	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "spotify-api",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	return &Client{
		api:          api,
		limiter:      rate.NewLimiter(limit, burst),
		breaker:      breaker,
		timeout:      timeout,
		log:          log,
		artistIDs:    cache.New[spotify.ID](artistIDTTL, cache.WithName("artist_ids")),
		topTracks:    cache.New[[]recommend.Candidate](topTracksTTL, cache.WithName("top_tracks")),
		recentTracks: cache.New[[]recommend.Candidate](recentTracksTTL, cache.WithName("recent_tracks")),
		now:          time.Now,
	}
}

// Close stops the cache janitors.
func (c *Client) Close() {
	c.artistIDs.Close()
	c.topTracks.Close()
	c.recentTracks.Close()
}

// call applies the rate limiter, per-call timeout and circuit breaker
// around one API request.
func (c *Client) call(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.breaker.Execute(func() (any, error) {
		return fn(callCtx)
	})
}

// attachFeatures hydrates catalog audio features onto candidates that
// lack them. Best effort: on failure the candidates keep zero features
// and the scoring layer falls back to heuristic estimation.
func (c *Client) attachFeatures(ctx context.Context, cands []recommend.Candidate) []recommend.Candidate {
	ids := make([]spotify.ID, 0, len(cands))
	for i := range cands {
		if (cands[i].Features == recommend.AudioFeatures{}) {
			ids = append(ids, spotify.ID(cands[i].TrackID))
		}
	}
	if len(ids) == 0 {
		return cands
	}
	if len(ids) > audioFeatureBatch {
		ids = ids[:audioFeatureBatch]
	}

	res, err := c.call(ctx, func(ctx context.Context) (any, error) {
		return c.api.GetAudioFeatures(ctx, ids...)
	})
	if err != nil {
		c.log.Debug().Err(err).Int("tracks", len(ids)).Msg("audio features unavailable")
		return cands
	}

	byID := make(map[string]recommend.AudioFeatures, len(ids))
	for _, af := range res.([]*spotify.AudioFeatures) {
		if af == nil {
			continue
		}
		byID[string(af.ID)] = recommend.AudioFeatures{
			Energy:       float64(af.Energy),
			Valence:      float64(af.Valence),
			Danceability: float64(af.Danceability),
			Acousticness: float64(af.Acousticness),
			Tempo:        float64(af.Tempo),
		}
	}
	for i := range cands {
		if f, ok := byID[cands[i].TrackID]; ok {
			cands[i].Features = f
		}
	}
	return cands
}

// SearchTracks runs a free-text track search in a market.
func (c *Client) SearchTracks(ctx context.Context, query string, market string, limit int) ([]recommend.Candidate, error) {
	if limit <= 0 {
		limit = 20
	}
	res, err := c.call(ctx, func(ctx context.Context) (any, error) {
		return c.api.Search(ctx, query, spotify.SearchTypeTrack,
			spotify.Market(market), spotify.Limit(limit))
	})
	if err != nil {
		return nil, fmt.Errorf("search tracks %q: %w", query, err)
	}

	sr := res.(*spotify.SearchResult)
	if sr.Tracks == nil {
		return nil, nil
	}
	out := make([]recommend.Candidate, 0, len(sr.Tracks.Tracks))
	for _, ft := range sr.Tracks.Tracks {
		out = append(out, fromFullTrack(ft))
	}
	return c.attachFeatures(ctx, out), nil
}

// ArtistTopTracks returns an artist's all-time top tracks. Results are
// cached per artist and market. An unresolvable artist yields an empty
// slice, not an error.
func (c *Client) ArtistTopTracks(ctx context.Context, artist string, market string) ([]recommend.Candidate, error) {
	key := cache.GenerateKey("top_tracks", map[string]string{"artist": artist, "market": market})
	return c.topTracks.GetOrFetch(ctx, key, func(ctx context.Context) ([]recommend.Candidate, error) {
		id, err := c.resolveArtistID(ctx, artist, market)
		if errors.Is(err, ErrArtistNotFound) {
			c.log.Debug().Str("artist", artist).Msg("artist not in catalog")
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		res, err := c.call(ctx, func(ctx context.Context) (any, error) {
			return c.api.GetArtistsTopTracks(ctx, id, market)
		})
		if err != nil {
			return nil, fmt.Errorf("top tracks for %q: %w", artist, err)
		}

		tracks := res.([]spotify.FullTrack)
		out := make([]recommend.Candidate, 0, len(tracks))
		for _, ft := range tracks {
			out = append(out, fromFullTrack(ft))
		}
		return c.attachFeatures(ctx, out), nil
	})
}

// ArtistRecentTracks returns tracks from an artist's releases inside
// the recency window, newest first. Results are cached per artist and
// market.
func (c *Client) ArtistRecentTracks(ctx context.Context, artist string, market string) ([]recommend.Candidate, error) {
	key := cache.GenerateKey("recent_tracks", map[string]string{"artist": artist, "market": market})
	return c.recentTracks.GetOrFetch(ctx, key, func(ctx context.Context) ([]recommend.Candidate, error) {
		id, err := c.resolveArtistID(ctx, artist, market)
		if errors.Is(err, ErrArtistNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		res, err := c.call(ctx, func(ctx context.Context) (any, error) {
			return c.api.GetArtistAlbums(ctx, id,
				[]spotify.AlbumType{spotify.AlbumTypeAlbum, spotify.AlbumTypeSingle},
				spotify.Market(market), spotify.Limit(recentAlbumLimit))
		})
		if err != nil {
			return nil, fmt.Errorf("albums for %q: %w", artist, err)
		}

		page := res.(*spotify.SimpleAlbumPage)
		cutoff := c.now().Add(-recentWindow)
		var trackIDs []spotify.ID
		for _, album := range page.Albums {
			released := parseReleaseDate(album.ReleaseDate)
			if released.IsZero() || released.Before(cutoff) {
				continue
			}
			res, err := c.call(ctx, func(ctx context.Context) (any, error) {
				return c.api.GetAlbumTracks(ctx, album.ID, spotify.Market(market))
			})
			if err != nil {
				return nil, fmt.Errorf("album tracks for %q: %w", artist, err)
			}
			for _, t := range res.(*spotify.SimpleTrackPage).Tracks {
				trackIDs = append(trackIDs, t.ID)
			}
			if len(trackIDs) >= recentTrackLimit {
				break
			}
		}
		if len(trackIDs) == 0 {
			return nil, nil
		}
		if len(trackIDs) > recentTrackLimit {
			trackIDs = trackIDs[:recentTrackLimit]
		}

		res, err = c.call(ctx, func(ctx context.Context) (any, error) {
			return c.api.GetTracks(ctx, trackIDs, spotify.Market(market))
		})
		if err != nil {
			return nil, fmt.Errorf("recent tracks for %q: %w", artist, err)
		}

		full := res.([]*spotify.FullTrack)
		out := make([]recommend.Candidate, 0, len(full))
		for _, ft := range full {
			if ft == nil {
				continue
			}
			out = append(out, fromFullTrack(*ft))
		}
		return c.attachFeatures(ctx, out), nil
	})
}

// SimilarTracks expands seed tracks into similar candidates constrained
// by the target vector. Seeds beyond the API's limit of five are
// dropped. Failures degrade to an empty result because seed expansion
// is a best-effort pool topper.
func (c *Client) SimilarTracks(ctx context.Context, seedIDs []string, target recommend.TargetVector, market string, limit int) ([]recommend.Candidate, error) {
	if len(seedIDs) == 0 {
		return nil, nil
	}
	if len(seedIDs) > 5 {
		seedIDs = seedIDs[:5]
	}
	if limit <= 0 {
		limit = 20
	}

	seeds := spotify.Seeds{Tracks: make([]spotify.ID, len(seedIDs))}
	for i, id := range seedIDs {
		seeds.Tracks[i] = spotify.ID(id)
	}

	attrs := spotify.NewTrackAttributes().
		TargetEnergy(target.Features.Energy).
		TargetValence(target.Features.Valence).
		TargetDanceability(target.Features.Danceability).
		TargetAcousticness(target.Features.Acousticness).
		TargetTempo(target.Features.Tempo)

	res, err := c.call(ctx, func(ctx context.Context) (any, error) {
		return c.api.GetRecommendations(ctx, seeds, attrs,
			spotify.Market(market), spotify.Limit(limit))
	})
	if err != nil {
		c.log.Debug().Err(err).Int("seeds", len(seedIDs)).Msg("seed expansion unavailable")
		return nil, nil
	}

	recs := res.(*spotify.Recommendations)
	if len(recs.Tracks) == 0 {
		return nil, nil
	}

	// The recommendations payload carries simplified tracks without
	// popularity. Hydrate them so downstream filtering has real scores.
	ids := make([]spotify.ID, 0, len(recs.Tracks))
	for _, t := range recs.Tracks {
		ids = append(ids, t.ID)
	}
	res, err = c.call(ctx, func(ctx context.Context) (any, error) {
		return c.api.GetTracks(ctx, ids, spotify.Market(market))
	})
	if err != nil {
		c.log.Debug().Err(err).Msg("hydrating recommended tracks failed")
		return nil, nil
	}

	full := res.([]*spotify.FullTrack)
	out := make([]recommend.Candidate, 0, len(full))
	for _, ft := range full {
		if ft == nil {
			continue
		}
		out = append(out, fromFullTrack(*ft))
	}
	return c.attachFeatures(ctx, out), nil
}

// resolveArtistID maps an artist name to a catalog ID via a cached
// artist search. The first result whose name matches case-insensitively
// wins; otherwise the top result is taken.
func (c *Client) resolveArtistID(ctx context.Context, artist string, market string) (spotify.ID, error) {
	key := cache.GenerateKey("artist_id", map[string]string{"artist": artist, "market": market})
	return c.artistIDs.GetOrFetch(ctx, key, func(ctx context.Context) (spotify.ID, error) {
		res, err := c.call(ctx, func(ctx context.Context) (any, error) {
			return c.api.Search(ctx, artist, spotify.SearchTypeArtist,
				spotify.Market(market), spotify.Limit(searchArtistLimit))
		})
		if err != nil {
			return "", fmt.Errorf("resolve artist %q: %w", artist, err)
		}

		sr := res.(*spotify.SearchResult)
		if sr.Artists == nil || len(sr.Artists.Artists) == 0 {
			return "", ErrArtistNotFound
		}
		for _, a := range sr.Artists.Artists {
			if equalFold(a.Name, artist) {
				return a.ID, nil
			}
		}
		return sr.Artists.Artists[0].ID, nil
	})
}
