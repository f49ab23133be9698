// Package discogs is a matcher.Source backed by the Discogs database API.
package discogs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/grrywlsn/retag/config"
	"github.com/grrywlsn/retag/logging"
	"github.com/grrywlsn/retag/matcher"
)

const searchPageSize = 50

// Client wraps the Discogs API
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	userAgent  string
	logger     *slog.Logger
}

// SearchResult is one hit of the database search
type SearchResult struct {
	ID       int    `json:"id"`
	MasterID int    `json:"master_id"`
	Title    string `json:"title"`
	Type     string `json:"type"`
}

// SearchResponse represents the response from the Discogs search API
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// Artist is a credited artist of a release
type Artist struct {
	Name string `json:"name"`
}

// Track is a tracklist entry. Headings and index tracks have no position.
type Track struct {
	Position string `json:"position"`
	Title    string `json:"title"`
	Type     string `json:"type_"`
}

// Release represents the response from the Discogs release API
type Release struct {
	ID        int      `json:"id"`
	Title     string   `json:"title"`
	Artists   []Artist `json:"artists"`
	Tracklist []Track  `json:"tracklist"`
	Community struct {
		Have int `json:"have"`
	} `json:"community"`
}

// NewClient creates a new Discogs client. A nil httpClient gets a plain
// client with a 30 second timeout.
func NewClient(cfg config.DiscogsConfig, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		userAgent:  cfg.UserAgent,
		logger:     logging.NewComponentLogger(logger, "discogs"),
	}
}

// Search runs a database search and returns the hits in Discogs order
func (c *Client) Search(ctx context.Context, query string) ([]matcher.BriefRelease, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query cannot be empty")
	}

	params := url.Values{}
	params.Add("q", query)
	params.Add("per_page", strconv.Itoa(searchPageSize))

	var searchResp SearchResponse
	if err := c.getJSON(ctx, "/database/search?"+params.Encode(), &searchResp); err != nil {
		return nil, err
	}

	results := make([]matcher.BriefRelease, 0, len(searchResp.Results))
	for _, r := range searchResp.Results {
		// only releases and masters carry tracklists
		if r.Type != "" && r.Type != "release" && r.Type != "master" {
			continue
		}
		results = append(results, matcher.BriefRelease{
			ID:       strconv.Itoa(r.ID),
			MasterID: strconv.Itoa(r.MasterID),
			Title:    r.Title,
		})
	}
	c.logger.Debug("search complete", logging.String(logging.FieldQuery, query), logging.Int("results", len(results)))
	return results, nil
}

// GetRelease fetches the full release. A missing release yields
// matcher.ErrReleaseNotFound.
func (c *Client) GetRelease(ctx context.Context, id string) (matcher.Release, error) {
	if id == "" {
		return matcher.Release{}, fmt.Errorf("release ID cannot be empty")
	}

	var release Release
	if err := c.getJSON(ctx, "/releases/"+url.PathEscape(id), &release); err != nil {
		return matcher.Release{}, err
	}
	return release.toMatcher(), nil
}

func (r Release) toMatcher() matcher.Release {
	out := matcher.Release{
		ID:    strconv.Itoa(r.ID),
		Title: r.Title,
		Have:  r.Community.Have,
	}
	if r.Tracklist != nil {
		out.Tracklist = make([]matcher.Track, len(r.Tracklist))
		for i, t := range r.Tracklist {
			out.Tracklist[i] = matcher.Track{Position: t.Position, Title: t.Title}
		}
	}
	for _, a := range r.Artists {
		out.Artists = append(out.Artists, CleanArtistName(a.Name))
	}
	return out
}

// disambiguation matches the " (2)" suffix Discogs adds to homonymous
// artists.
var disambiguation = regexp.MustCompile(`\s+\(\d+\)$`)

// CleanArtistName strips the Discogs disambiguation suffix.
func CleanArtistName(name string) string {
	return strings.TrimSpace(disambiguation.ReplaceAllString(name, ""))
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/vnd.discogs.v2.discogs+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Discogs token="+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("discogs %s: %w", path, matcher.ErrReleaseNotFound)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("discogs API returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode JSON response: %w", err)
	}
	return nil
}
