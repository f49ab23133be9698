package main

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/grrywlsn/retag/apply"
	"github.com/grrywlsn/retag/config"
	"github.com/grrywlsn/retag/dirinfo"
	"github.com/grrywlsn/retag/discogs"
	"github.com/grrywlsn/retag/httpcache"
	"github.com/grrywlsn/retag/library"
	"github.com/grrywlsn/retag/logging"
	"github.com/grrywlsn/retag/matcher"
	"github.com/grrywlsn/retag/musicbrainz"
	"github.com/grrywlsn/retag/plex"
	"github.com/grrywlsn/retag/spotify"
)

// sourceTimeout bounds a single request to the release database.
const sourceTimeout = 30 * time.Second

type dirStatus int

const (
	statusIgnored dirStatus = iota
	statusUnmatched
	statusMatched
	statusFailed
)

func (s dirStatus) String() string {
	switch s {
	case statusIgnored:
		return "ignored"
	case statusUnmatched:
		return "unmatched"
	case statusMatched:
		return "matched"
	default:
		return "failed"
	}
}

// dirOutcome is what happened to one working directory.
type dirOutcome struct {
	Dir    string
	Status dirStatus
	Tracks int
	Err    error
	Result apply.Result

	info   dirinfo.TrackDirInfo
	output matcher.OutputRoot
}

// Summary counts directories per outcome.
type Summary struct {
	Matched   int
	Unmatched int
	Ignored   int
	Failed    int
	Changed   int
}

// Application represents the main application state
type Application struct {
	config  *config.Config
	logger  *slog.Logger
	out     io.Writer
	errOut  io.Writer
	cache   *httpcache.Cache
	matcher *matcher.Matcher
	applier *apply.Applier
	plex    *plex.Client
}

// NewApplication creates a new application instance: it opens the response
// cache, builds the configured release source and the optional Plex client.
func NewApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, out, errOut io.Writer) (*Application, error) {
	var cache *httpcache.Cache
	if cfg.Cache.Enabled {
		var err error
		cache, err = httpcache.Open(cfg.Cache.Dir, cfg.Cache.TTLDuration())
		if err != nil {
			return nil, fmt.Errorf("failed to open response cache: %w", err)
		}
	}

	transport := httpcache.NewTransport(cache, http.DefaultTransport, httpcache.DefaultInterval, logger)
	source, err := newSource(ctx, cfg, transport.Client(sourceTimeout), logger)
	if err != nil {
		if cache != nil {
			_ = cache.Close()
		}
		return nil, err
	}

	app := newApplication(cfg, source, logger, out, errOut)
	app.cache = cache
	if cfg.Plex.Enabled() {
		app.plex = plex.NewClient(cfg.Plex, logger)
	}
	return app, nil
}

func newApplication(cfg *config.Config, source matcher.Source, logger *slog.Logger, out, errOut io.Writer) *Application {
	return &Application{
		config:  cfg,
		logger:  logger,
		out:     out,
		errOut:  errOut,
		matcher: matcher.New(source, logger),
		applier: apply.New(cfg.Run.DryRun, logger),
	}
}

func newSource(ctx context.Context, cfg *config.Config, httpClient *http.Client, logger *slog.Logger) (matcher.Source, error) {
	switch cfg.Source {
	case config.SourceDiscogs:
		return discogs.NewClient(cfg.Discogs, httpClient, logger), nil
	case config.SourceMusicBrainz:
		return musicbrainz.NewClient(cfg.MusicBrainz, httpClient, logger), nil
	case config.SourceSpotify:
		client, err := spotify.NewClient(ctx, cfg.Spotify, httpClient, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create Spotify client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

// Close releases the response cache.
func (app *Application) Close() error {
	if app.cache == nil {
		return nil
	}
	return app.cache.Close()
}

// Run processes dirs: it lists and matches every working directory, applies
// the matches deepest first, prints the report and refreshes Plex.
func (app *Application) Run(ctx context.Context, dirs []string) (Summary, error) {
	workDirs, err := library.WorkingDirectories(dirs, app.config.Run.Recursive)
	if err != nil {
		return Summary{}, err
	}

	outcomes := make([]dirOutcome, len(workDirs))
	var pending []int
	for i, dir := range workDirs {
		outcomes[i].Dir = dir
		files, err := library.ListAudioFiles(dir)
		if err != nil {
			outcomes[i].Status = statusFailed
			outcomes[i].Err = err
			continue
		}
		outcomes[i].Tracks = len(files)
		if len(files) < app.config.Run.MinTracks {
			app.logger.Debug("directory ignored",
				logging.String(logging.FieldDir, dir),
				logging.Int("tracks", len(files)))
			continue
		}
		outcomes[i].info = dirinfo.Extract(dir, files)
		pending = append(pending, i)
	}

	if err := app.matchDirectories(ctx, outcomes, pending); err != nil {
		return Summary{}, err
	}
	app.applyMatches(outcomes)

	summary := summarize(outcomes)
	app.printReport(outcomes, summary)

	if summary.Changed > 0 && !app.config.Run.DryRun && app.plex != nil {
		if err := app.refreshPlex(ctx, dirs); err != nil {
			app.logger.Warn("plex refresh failed", logging.Error(err))
		}
	}
	return summary, nil
}

// matchDirectories matches the pending directories, at most Jobs at a time.
// A directory that fails is recorded; only cancellation aborts the run.
func (app *Application) matchDirectories(ctx context.Context, outcomes []dirOutcome, pending []int) error {
	if len(pending) == 0 {
		return nil
	}
	bar := app.newProgressBar(len(pending))
	defer bar.Finish()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(app.config.Run.Jobs, 1))

	for _, i := range pending {
		g.Go(func() error {
			defer bar.Add(1)
			outcome := &outcomes[i]

			match, err := app.matcher.Match(ctx, outcome.info)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				outcome.Status = statusFailed
				outcome.Err = err
				app.logger.Error("match failed", logging.String(logging.FieldDir, outcome.Dir), logging.Error(err))
				return nil
			}

			if output, ok := match.Get(); ok {
				outcome.Status = statusMatched
				outcome.output = output
			} else {
				outcome.Status = statusUnmatched
			}
			return nil
		})
	}
	return g.Wait()
}

// applyMatches applies every matched directory, children before parents.
func (app *Application) applyMatches(outcomes []dirOutcome) {
	index := make(map[string]int)
	var matched []string
	for i, o := range outcomes {
		if o.Status == statusMatched {
			index[o.Dir] = i
			matched = append(matched, o.Dir)
		}
	}

	for _, dir := range apply.DeepestFirst(matched) {
		outcome := &outcomes[index[dir]]
		result, err := app.applier.Apply(dir, outcome.output)
		outcome.Result = result
		if err != nil {
			outcome.Status = statusFailed
			outcome.Err = err
			app.logger.Error("apply failed", logging.String(logging.FieldDir, dir), logging.Error(err))
		}
	}
}

// refreshPlex rescans the parents of the directories given on the command
// line. Those parents are never renamed, so they still exist after the run.
func (app *Application) refreshPlex(ctx context.Context, dirs []string) error {
	parents := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", dir, err)
		}
		parents = append(parents, filepath.Dir(abs))
	}
	return app.plex.RefreshPaths(ctx, parents)
}

func (app *Application) newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(app.errOut),
		progressbar.OptionSetVisibility(isTerminal(app.errOut) && app.config.Logging.Level != "debug"),
		progressbar.OptionSetDescription("matching"),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func summarize(outcomes []dirOutcome) Summary {
	var s Summary
	for _, o := range outcomes {
		switch o.Status {
		case statusMatched:
			s.Matched++
			if o.Result.Changed() {
				s.Changed++
			}
		case statusUnmatched:
			s.Unmatched++
		case statusIgnored:
			s.Ignored++
		case statusFailed:
			s.Failed++
		}
	}
	return s
}

// sortedByDir returns the outcomes with the given status in directory order.
func sortedByDir(outcomes []dirOutcome, status dirStatus) []dirOutcome {
	var selected []dirOutcome
	for _, o := range outcomes {
		if o.Status == status {
			selected = append(selected, o)
		}
	}
	slices.SortFunc(selected, func(a, b dirOutcome) int {
		return cmp.Compare(a.Dir, b.Dir)
	})
	return selected
}
