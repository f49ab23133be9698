// Package matcher finds the release that best fits a directory of audio
// files and derives corrected track titles, numbers, album and performers
// from it.
package matcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/grrywlsn/retag/dirinfo"
	"github.com/grrywlsn/retag/logging"
	"github.com/grrywlsn/retag/optional"
)

// Matcher matches directories against a release Source. It holds no
// per-directory state, so one Matcher may serve concurrent Match calls as
// long as the Source allows it.
type Matcher struct {
	source Source
	logger *slog.Logger
}

// New creates a Matcher backed by source.
func New(source Source, logger *slog.Logger) *Matcher {
	return &Matcher{
		source: source,
		logger: logging.NewComponentLogger(logger, "matcher"),
	}
}

// Match tries the directory's queries in order and resolves the output from
// the first one that yields any acceptable release. None means nothing
// matched; an error means the source failed or the release data could not be
// used.
func (m *Matcher) Match(ctx context.Context, info dirinfo.TrackDirInfo) (optional.Option[OutputRoot], error) {
	logger := m.logger.With(logging.String(logging.FieldDir, info.Path))

	var releases []Release
	for query := range Queries(info) {
		if err := ctx.Err(); err != nil {
			return optional.None[OutputRoot](), err
		}

		found, err := m.findMatchingReleases(ctx, info, query)
		if err != nil {
			return optional.None[OutputRoot](), err
		}
		logger.Debug("query attempted",
			logging.String(logging.FieldQuery, query),
			logging.Int("releases", len(found)))

		if len(found) > 0 {
			releases = found
			break
		}
	}

	if len(releases) == 0 {
		logger.Info("no matching release")
		return optional.None[OutputRoot](), nil
	}

	sorted := rankReleases(releases)
	output, err := resolveOutput(info, sorted)
	if err != nil {
		return optional.None[OutputRoot](), fmt.Errorf("resolve %s: %w", info.Path, err)
	}

	logger.Info("matched release",
		logging.String(logging.FieldRelease, sorted[0].ID),
		logging.String("album", output.Album),
		logging.Int("candidates", len(releases)))
	return optional.Some(output), nil
}

// findMatchingReleases runs one query and returns the fetched releases that
// pass every filter, in search order.
func (m *Matcher) findMatchingReleases(ctx context.Context, info dirinfo.TrackDirInfo, query string) ([]Release, error) {
	results, err := m.source.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	var candidates []BriefRelease
	for _, result := range results {
		if result.IsMaster() || !checkReleaseNameConsistency(result.Title, query) {
			continue
		}
		candidates = append(candidates, result)
		if len(candidates) == maxCandidates {
			break
		}
	}

	var releases []Release
	for _, candidate := range candidates {
		release, err := m.source.GetRelease(ctx, candidate.ID)
		if errors.Is(err, ErrReleaseNotFound) {
			m.logger.Debug("release vanished", logging.String(logging.FieldRelease, candidate.ID))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("fetch release %s: %w", candidate.ID, err)
		}

		if release.Tracklist == nil || len(release.Tracklist) != len(info.Tracks) {
			continue
		}
		release.Tracklist = withoutUnpositioned(release.Tracklist)
		releases = append(releases, release)
	}

	return checkReleasesConsistency(info, releases), nil
}
