// Package spotify is a matcher.Source backed by the Spotify catalogue. Albums
// play the part of releases.
package spotify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/grrywlsn/retag/config"
	"github.com/grrywlsn/retag/logging"
	"github.com/grrywlsn/retag/matcher"
)

const searchLimit = 20

// Client wraps the Spotify API client
type Client struct {
	client *spotify.Client
	logger *slog.Logger
}

// NewClient creates a Spotify client using the client credentials flow,
// which needs no user interaction. Token and API requests go through
// httpClient when it is not nil.
func NewClient(ctx context.Context, cfg config.SpotifyConfig, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("spotify client id and secret are required")
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	if httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	}

	// Fetch a token up front so bad credentials fail before any matching
	if _, err := creds.Token(ctx); err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	return newClient(spotify.New(creds.Client(ctx)), logger), nil
}

func newClient(api *spotify.Client, logger *slog.Logger) *Client {
	return &Client{
		client: api,
		logger: logging.NewComponentLogger(logger, "spotify"),
	}
}

// Search looks up albums. Spotify has no master releases, so MasterID stays
// empty.
func (c *Client) Search(ctx context.Context, query string) ([]matcher.BriefRelease, error) {
	if query == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	result, err := c.client.Search(ctx, query, spotify.SearchTypeAlbum, spotify.Limit(searchLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to search albums: %w", err)
	}
	if result.Albums == nil {
		return nil, nil
	}

	results := make([]matcher.BriefRelease, 0, len(result.Albums.Albums))
	for _, album := range result.Albums.Albums {
		results = append(results, matcher.BriefRelease{
			ID:    string(album.ID),
			Title: album.Name,
		})
	}
	c.logger.Debug("search complete", logging.String(logging.FieldQuery, query), logging.Int("results", len(results)))
	return results, nil
}

// GetRelease fetches an album with its full tracklist. Multi-disc albums are
// numbered as one run of tracks.
func (c *Client) GetRelease(ctx context.Context, id string) (matcher.Release, error) {
	if id == "" {
		return matcher.Release{}, fmt.Errorf("album ID cannot be empty")
	}

	album, err := c.client.GetAlbum(ctx, spotify.ID(id))
	if err != nil {
		var apiErr spotify.Error
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusNotFound || apiErr.Status == http.StatusBadRequest) {
			return matcher.Release{}, fmt.Errorf("spotify album %s: %w", id, matcher.ErrReleaseNotFound)
		}
		return matcher.Release{}, fmt.Errorf("failed to get album: %w", err)
	}

	release := matcher.Release{
		ID:        string(album.ID),
		Title:     album.Name,
		Tracklist: []matcher.Track{},
		Have:      int(album.Popularity),
	}
	for _, artist := range album.Artists {
		release.Artists = append(release.Artists, artist.Name)
	}

	tracks := &album.Tracks
	for {
		for _, track := range tracks.Tracks {
			release.Tracklist = append(release.Tracklist, matcher.Track{
				Position: strconv.Itoa(len(release.Tracklist) + 1),
				Title:    track.Name,
			})
		}
		err := c.client.NextPage(ctx, tracks)
		if errors.Is(err, spotify.ErrNoMorePages) {
			break
		}
		if err != nil {
			return matcher.Release{}, fmt.Errorf("failed to get album tracks: %w", err)
		}
	}

	return release, nil
}
