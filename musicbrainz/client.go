// Package musicbrainz is a matcher.Source backed by the MusicBrainz web
// service.
package musicbrainz

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/grrywlsn/retag/config"
	"github.com/grrywlsn/retag/logging"
	"github.com/grrywlsn/retag/matcher"
)

const searchLimit = 25

// Client wraps the MusicBrainz API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     *slog.Logger
}

// ReleaseGroup groups the editions of one album
type ReleaseGroup struct {
	ID string `xml:"id,attr"`
}

// Recording represents a MusicBrainz recording
type Recording struct {
	ID    string `xml:"id,attr"`
	Title string `xml:"title"`
}

// Track is one track of a medium. Its title is only present when it differs
// from the recording title.
type Track struct {
	Number    string    `xml:"number"`
	Title     string    `xml:"title"`
	Recording Recording `xml:"recording"`
}

// Medium is one disc of a release
type Medium struct {
	Position int     `xml:"position"`
	Tracks   []Track `xml:"track-list>track"`
}

// NameCredit credits one artist
type NameCredit struct {
	Name   string `xml:"name"`
	Artist struct {
		Name string `xml:"name"`
	} `xml:"artist"`
}

// Release represents a MusicBrainz release
type Release struct {
	ID           string       `xml:"id,attr"`
	Title        string       `xml:"title"`
	ReleaseGroup ReleaseGroup `xml:"release-group"`
	Credits      []NameCredit `xml:"artist-credit>name-credit"`
	Media        []Medium     `xml:"medium-list>medium"`
}

// SearchResponse represents the response from MusicBrainz search API
type SearchResponse struct {
	Releases []Release `xml:"release-list>release"`
}

// LookupResponse represents the response from MusicBrainz release lookup
type LookupResponse struct {
	Release *Release `xml:"release"`
}

// NewClient creates a new MusicBrainz client. A nil httpClient gets a plain
// client with a 10 second timeout.
func NewClient(cfg config.MusicBrainzConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 10 * time.Second,
		}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		logger:     logging.NewComponentLogger(logger, "musicbrainz"),
	}
}

// Search runs a release search. The release group stands in for the master,
// so no hit is ever a master itself.
func (c *Client) Search(ctx context.Context, query string) ([]matcher.BriefRelease, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	params := url.Values{}
	params.Add("query", query)
	params.Add("limit", strconv.Itoa(searchLimit))
	params.Add("fmt", "xml")

	var searchResp SearchResponse
	if err := c.getXML(ctx, "/release/?"+params.Encode(), &searchResp); err != nil {
		return nil, err
	}

	results := make([]matcher.BriefRelease, 0, len(searchResp.Releases))
	for _, r := range searchResp.Releases {
		results = append(results, matcher.BriefRelease{
			ID:       r.ID,
			MasterID: r.ReleaseGroup.ID,
			Title:    r.Title,
		})
	}
	c.logger.Debug("search complete", logging.String(logging.FieldQuery, query), logging.Int("results", len(results)))
	return results, nil
}

// GetRelease looks up a release with its recordings and artist credits.
func (c *Client) GetRelease(ctx context.Context, id string) (matcher.Release, error) {
	if id == "" {
		return matcher.Release{}, fmt.Errorf("release ID cannot be empty")
	}

	params := url.Values{}
	params.Add("inc", "recordings artist-credits")
	params.Add("fmt", "xml")

	var lookup LookupResponse
	if err := c.getXML(ctx, "/release/"+url.PathEscape(id)+"?"+params.Encode(), &lookup); err != nil {
		return matcher.Release{}, err
	}
	if lookup.Release == nil {
		return matcher.Release{}, fmt.Errorf("musicbrainz release %s: %w", id, matcher.ErrReleaseNotFound)
	}
	return lookup.Release.toMatcher(), nil
}

// toMatcher flattens all media into one tracklist numbered from 1, so that a
// two-disc release reads as a single run of tracks.
func (r Release) toMatcher() matcher.Release {
	out := matcher.Release{
		ID:    r.ID,
		Title: r.Title,
	}
	if r.Media != nil {
		out.Tracklist = []matcher.Track{}
	}
	position := 0
	for _, medium := range r.Media {
		for _, track := range medium.Tracks {
			position++
			title := track.Title
			if title == "" {
				title = track.Recording.Title
			}
			out.Tracklist = append(out.Tracklist, matcher.Track{
				Position: strconv.Itoa(position),
				Title:    title,
			})
		}
	}
	for _, credit := range r.Credits {
		name := credit.Name
		if name == "" {
			name = credit.Artist.Name
		}
		out.Artists = append(out.Artists, name)
	}
	return out
}

func (c *Client) getXML(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Set required headers for MusicBrainz API
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("musicbrainz %s: %w", path, matcher.ErrReleaseNotFound)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("MusicBrainz API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode XML response: %w", err)
	}
	return nil
}
