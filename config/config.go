package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Release database names accepted for Source.
const (
	SourceDiscogs     = "discogs"
	SourceMusicBrainz = "musicbrainz"
	SourceSpotify     = "spotify"
)

const defaultUserAgent = "retag/1.0 (https://github.com/grrywlsn/retag)"

// Config holds all configuration values
type Config struct {
	Source      string            `toml:"source"`
	Discogs     DiscogsConfig     `toml:"discogs"`
	MusicBrainz MusicBrainzConfig `toml:"musicbrainz"`
	Spotify     SpotifyConfig     `toml:"spotify"`
	Plex        PlexConfig        `toml:"plex"`
	Cache       CacheConfig       `toml:"cache"`
	Run         RunConfig         `toml:"run"`
	Logging     LoggingConfig     `toml:"logging"`

	// EnvFile is the dotenv file read after the OS environment.
	EnvFile string `toml:"-"`
}

// DiscogsConfig holds Discogs API configuration
type DiscogsConfig struct {
	Token     string `toml:"token"`
	BaseURL   string `toml:"base_url"`
	UserAgent string `toml:"user_agent"`
}

// MusicBrainzConfig holds MusicBrainz web service configuration
type MusicBrainzConfig struct {
	BaseURL   string `toml:"base_url"`
	UserAgent string `toml:"user_agent"`
}

// SpotifyConfig holds Spotify API configuration
type SpotifyConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
}

// PlexConfig holds Plex server configuration. An empty URL disables the
// library refresh.
type PlexConfig struct {
	URL              string `toml:"url"`
	Token            string `toml:"token"`
	LibrarySectionID int    `toml:"library_section_id"`
	SkipTLSVerify    bool   `toml:"skip_tls_verify"`
}

// Enabled reports whether a Plex server is configured.
func (p PlexConfig) Enabled() bool {
	return p.URL != ""
}

// CacheConfig controls the on-disk HTTP response cache.
type CacheConfig struct {
	Dir     string `toml:"dir"`
	Enabled bool   `toml:"enabled"`
	// TTL is a Go duration string; empty or "0" keeps entries forever.
	TTL string `toml:"ttl"`
}

// TTLDuration returns the parsed TTL. validate guarantees it parses.
func (c CacheConfig) TTLDuration() time.Duration {
	d, _ := parseTTL(c.TTL)
	return d
}

// RunConfig holds per-invocation behaviour, normally set from CLI flags.
type RunConfig struct {
	Recursive bool `toml:"recursive"`
	DryRun    bool `toml:"dry_run"`
	Jobs      int  `toml:"jobs"`
	MinTracks int  `toml:"min_tracks"`
}

// LoggingConfig selects the log level and handler format.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Load loads configuration following the specified order:
// 1. Start with defaults
// 2. Load the TOML file (only if it exists)
// 3. Load from OS environment variables (only if they exist)
// 4. Load from .env file (only if it exists and values exist)
// An empty path means DefaultConfigPath.
func Load(path string) (*Config, error) {
	return LoadWithOverrides(path, nil)
}

// LoadWithOverrides loads configuration and applies CLI flag overrides,
// keyed by environment variable name.
func LoadWithOverrides(path string, overrides map[string]string) (*Config, error) {
	config, err := load(path, overrides)
	if err != nil {
		return nil, err
	}

	// Validate required configuration after all sources have been loaded
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// LoadCache loads the configuration and checks only the cache section, so
// the cache commands work without source credentials.
func LoadCache(path string) (CacheConfig, error) {
	config, err := load(path, nil)
	if err != nil {
		return CacheConfig{}, err
	}
	if strings.TrimSpace(config.Cache.Dir) == "" {
		return CacheConfig{}, fmt.Errorf("missing required configuration values:\nRETAG_CACHE_DIR")
	}
	if _, err := parseTTL(config.Cache.TTL); err != nil {
		return CacheConfig{}, fmt.Errorf("invalid configuration:\nRETAG_CACHE_TTL: %v", err)
	}
	return config.Cache, nil
}

func load(path string, overrides map[string]string) (*Config, error) {
	config := &Config{}

	// Step 1: Initialize with default values
	config.initializeDefaults()

	// Step 2: Load the TOML file
	if err := config.loadFromFile(path); err != nil {
		return nil, err
	}

	// Step 3: Load from OS environment variables (only if they exist)
	config.loadFromOSEnv()

	// Step 4: Load from .env file (only if it exists and values exist)
	config.loadFromEnvFile()

	// Step 5: Apply CLI flag overrides (only if they exist)
	config.applyOverrides(overrides)

	return config, nil
}

// DefaultConfigPath returns $XDG_CONFIG_HOME/retag/config.toml, falling back
// to ~/.config/retag/config.toml.
func DefaultConfigPath() string {
	return filepath.Join(xdgDir("XDG_CONFIG_HOME", ".config"), "retag", "config.toml")
}

func defaultCacheDir() string {
	return filepath.Join(xdgDir("XDG_CACHE_HOME", ".cache"), "retag")
}

func xdgDir(env, fallback string) string {
	if base, ok := os.LookupEnv(env); ok && strings.TrimSpace(base) != "" {
		return base
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join("~", fallback)
	}
	return filepath.Join(home, fallback)
}

// initializeDefaults sets up the initial configuration with default values
func (c *Config) initializeDefaults() {
	c.Source = SourceDiscogs
	c.EnvFile = ".env"

	c.Discogs = DiscogsConfig{
		BaseURL:   "https://api.discogs.com",
		UserAgent: defaultUserAgent,
	}
	c.MusicBrainz = MusicBrainzConfig{
		BaseURL:   "https://musicbrainz.org/ws/2",
		UserAgent: defaultUserAgent,
	}
	c.Spotify = SpotifyConfig{}
	c.Plex = PlexConfig{}

	c.Cache = CacheConfig{
		Dir:     defaultCacheDir(),
		Enabled: true,
	}
	c.Run = RunConfig{
		Jobs:      1,
		MinTracks: 2,
	}
	c.Logging = LoggingConfig{
		Level:  "info",
		Format: "console",
	}
}

// loadFromFile decodes the TOML file over the defaults. A missing default
// file is fine; a missing explicit file is an error.
func (c *Config) loadFromFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := toml.NewDecoder(file).Decode(c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// envKeys lists every environment variable understood by set.
var envKeys = []string{
	"RETAG_SOURCE",
	"DISCOGS_TOKEN",
	"DISCOGS_USER_AGENT",
	"MUSICBRAINZ_USER_AGENT",
	"SPOTIFY_CLIENT_ID",
	"SPOTIFY_CLIENT_SECRET",
	"PLEX_URL",
	"PLEX_TOKEN",
	"PLEX_LIBRARY_SECTION_ID",
	"PLEX_SKIP_TLS_VERIFY",
	"RETAG_CACHE_DIR",
	"RETAG_CACHE_DISABLED",
	"RETAG_CACHE_TTL",
	"RETAG_JOBS",
	"RETAG_MIN_TRACKS",
	"RETAG_LOG_LEVEL",
	"RETAG_LOG_FORMAT",
}

// loadFromOSEnv loads configuration from OS environment variables (only if they exist)
func (c *Config) loadFromOSEnv() {
	for _, key := range envKeys {
		if value := os.Getenv(key); value != "" {
			c.set(key, value)
		}
	}
}

// loadFromEnvFile loads configuration from .env file (only if it exists and values exist)
func (c *Config) loadFromEnvFile() {
	values, err := godotenv.Read(c.EnvFile)
	if err != nil {
		// .env file doesn't exist, skip this step
		return
	}

	for _, key := range envKeys {
		if value := values[key]; value != "" {
			c.set(key, value)
		}
	}
}

// applyOverrides applies CLI flag overrides to the configuration (only if they exist)
func (c *Config) applyOverrides(overrides map[string]string) {
	for key, value := range overrides {
		// Only apply if the value is not empty
		if value == "" {
			continue
		}
		c.set(key, value)
	}
}

// set assigns one keyed value. Unparseable numbers and booleans are ignored
// so the previous layer's value stands.
func (c *Config) set(key, value string) {
	switch key {
	case "RETAG_SOURCE":
		c.Source = strings.ToLower(strings.TrimSpace(value))
	case "DISCOGS_TOKEN":
		c.Discogs.Token = value
	case "DISCOGS_USER_AGENT":
		c.Discogs.UserAgent = value
	case "MUSICBRAINZ_USER_AGENT":
		c.MusicBrainz.UserAgent = value
	case "SPOTIFY_CLIENT_ID":
		c.Spotify.ClientID = value
	case "SPOTIFY_CLIENT_SECRET":
		c.Spotify.ClientSecret = value
	case "PLEX_URL":
		c.Plex.URL = value
	case "PLEX_TOKEN":
		c.Plex.Token = value
	case "PLEX_LIBRARY_SECTION_ID":
		if sectionID, err := parseLibrarySectionID(value); err == nil {
			c.Plex.LibrarySectionID = sectionID
		}
	case "PLEX_SKIP_TLS_VERIFY":
		if skip, err := strconv.ParseBool(value); err == nil {
			c.Plex.SkipTLSVerify = skip
		}
	case "RETAG_CACHE_DIR":
		c.Cache.Dir = value
	case "RETAG_CACHE_DISABLED":
		if disabled, err := strconv.ParseBool(value); err == nil {
			c.Cache.Enabled = !disabled
		}
	case "RETAG_CACHE_TTL":
		c.Cache.TTL = value
	case "RETAG_JOBS":
		if jobs, err := strconv.Atoi(value); err == nil {
			c.Run.Jobs = jobs
		}
	case "RETAG_MIN_TRACKS":
		if minTracks, err := strconv.Atoi(value); err == nil {
			c.Run.MinTracks = minTracks
		}
	case "RETAG_RECURSIVE":
		if recursive, err := strconv.ParseBool(value); err == nil {
			c.Run.Recursive = recursive
		}
	case "RETAG_DRY_RUN":
		if dryRun, err := strconv.ParseBool(value); err == nil {
			c.Run.DryRun = dryRun
		}
	case "RETAG_LOG_LEVEL":
		c.Logging.Level = value
	case "RETAG_LOG_FORMAT":
		c.Logging.Format = value
	}
}

// parseLibrarySectionID parses the library section ID from string
func parseLibrarySectionID(value string) (int, error) {
	if value == "0" || value == "your_music_library_section_id" {
		return 0, nil
	}

	sectionID, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid section ID '%s': %w", value, err)
	}

	return sectionID, nil
}

func parseTTL(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("negative duration %s", value)
	}
	return d, nil
}

// validate checks that all required configuration values are present
func (c *Config) validate() error {
	var missingFields []string
	var problems []string

	switch c.Source {
	case SourceDiscogs:
		if c.Discogs.Token == "" {
			missingFields = append(missingFields, "DISCOGS_TOKEN")
		}
		if c.Discogs.UserAgent == "" {
			missingFields = append(missingFields, "DISCOGS_USER_AGENT")
		}
	case SourceMusicBrainz:
		if c.MusicBrainz.UserAgent == "" {
			missingFields = append(missingFields, "MUSICBRAINZ_USER_AGENT")
		}
	case SourceSpotify:
		if c.Spotify.ClientID == "" {
			missingFields = append(missingFields, "SPOTIFY_CLIENT_ID")
		}
		if c.Spotify.ClientSecret == "" {
			missingFields = append(missingFields, "SPOTIFY_CLIENT_SECRET")
		}
	default:
		problems = append(problems, fmt.Sprintf("RETAG_SOURCE: unknown source %q (want discogs, musicbrainz or spotify)", c.Source))
	}

	// Plex is optional, but a partial configuration is a mistake
	if c.Plex.Enabled() {
		if c.Plex.Token == "" {
			missingFields = append(missingFields, "PLEX_TOKEN")
		}
		if c.Plex.LibrarySectionID == 0 {
			missingFields = append(missingFields, "PLEX_LIBRARY_SECTION_ID")
		}
	}

	if c.Cache.Enabled && strings.TrimSpace(c.Cache.Dir) == "" {
		missingFields = append(missingFields, "RETAG_CACHE_DIR")
	}
	if _, err := parseTTL(c.Cache.TTL); err != nil {
		problems = append(problems, fmt.Sprintf("RETAG_CACHE_TTL: %v", err))
	}
	if c.Run.Jobs < 1 {
		problems = append(problems, "RETAG_JOBS: must be at least 1")
	}
	if c.Run.MinTracks < 1 {
		problems = append(problems, "RETAG_MIN_TRACKS: must be at least 1")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("RETAG_LOG_FORMAT: unsupported value %q", c.Logging.Format))
	}

	if len(missingFields) > 0 {
		return fmt.Errorf("missing required configuration values:\n%s\n\nSet these values via config file, environment variables, .env file, or CLI flags", strings.Join(missingFields, "\n"))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n%s", strings.Join(problems, "\n"))
	}

	return nil
}
