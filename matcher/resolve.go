package matcher

import (
	"cmp"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/grrywlsn/retag/dirinfo"
	"github.com/grrywlsn/retag/textutil"
)

// uselessTitleFactor: a local title whose meaningful tokens are less than a
// third of the release title's length is replaced regardless of canonicity.
const uselessTitleFactor = 3

// ErrInvalidPosition is returned when a track number has to be taken from a
// tracklist position that is not an integer.
var ErrInvalidPosition = errors.New("tracklist position is not a number")

// OutputRoot is the proposed metadata for one directory.
type OutputRoot struct {
	Album      string
	Performers []string
	Tracks     []MatchedTrack
}

// MatchedTrack is the proposed number and title for one file.
type MatchedTrack struct {
	Path        string
	TrackNumber int
	Title       string
}

func canonicity(s string) int {
	return textutil.MeasureStringCanonicity(s)
}

func tracklistCanonicity(tracklist []Track) int {
	total := 0
	for _, track := range tracklist {
		total += canonicity(track.Title)
	}
	return total
}

// rankReleases orders releases by tracklist canonicity, then popularity,
// both descending. Ties keep search order.
func rankReleases(releases []Release) []Release {
	type scored struct {
		release    Release
		canonicity int
	}
	ranked := make([]scored, len(releases))
	for i, release := range releases {
		ranked[i] = scored{release: release, canonicity: tracklistCanonicity(release.Tracklist)}
	}

	slices.SortStableFunc(ranked, func(a, b scored) int {
		if c := cmp.Compare(b.canonicity, a.canonicity); c != 0 {
			return c
		}
		return cmp.Compare(b.release.Have, a.release.Have)
	})

	sorted := make([]Release, len(ranked))
	for i, r := range ranked {
		sorted[i] = r.release
	}
	return sorted
}

// mostCanonical returns the first of candidates with the highest canonicity.
func mostCanonical(candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	best, bestScore := candidates[0], canonicity(candidates[0])
	for _, c := range candidates[1:] {
		if score := canonicity(c); score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, true
}

// trackAtPosition picks, across all releases, the most canonical title at
// 1-indexed position n. Releases too short for n are skipped.
func trackAtPosition(sorted []Release, n int) (Track, bool) {
	var best Track
	bestScore, found := 0, false
	for _, release := range sorted {
		if n < 1 || n > len(release.Tracklist) {
			continue
		}
		track := release.Tracklist[n-1]
		if score := canonicity(track.Title); !found || score > bestScore {
			best, bestScore, found = track, score, true
		}
	}
	return best, found
}

// closestTrack returns the tracklist entry with the smallest edit distance to
// title, the first one on ties.
func closestTrack(tracklist []Track, title string) (Track, bool) {
	if len(tracklist) == 0 {
		return Track{}, false
	}
	best := tracklist[0]
	bestDistance := textutil.CalculateLevenshteinDistance(best.Title, title)
	for _, track := range tracklist[1:] {
		if d := textutil.CalculateLevenshteinDistance(track.Title, title); d < bestDistance {
			best, bestDistance = track, d
		}
	}
	return best, true
}

// chooseTitle prefers the release title when it is at least as canonical as
// the local one, or when the local title carries too little information.
func chooseTitle(local dirinfo.TrackInfo, releaseTitle string) string {
	moreCanonical := canonicity(releaseTitle) >= canonicity(local.TrackTitle)
	useless := utf8.RuneCountInString(local.MeaningfulTrackTitleTokens)*uselessTitleFactor < utf8.RuneCountInString(releaseTitle)
	if moreCanonical || useless {
		return strings.TrimSpace(releaseTitle)
	}
	return local.TrackTitle
}

func parsePosition(position string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(position))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPosition, position)
	}
	return n, nil
}

func resolveTrack(dirPath string, local dirinfo.TrackInfo, sorted []Release) (MatchedTrack, error) {
	matched := MatchedTrack{
		Path:  filepath.Join(dirPath, local.FileName),
		Title: local.TrackTitle,
	}

	if n, ok := local.TrackNumber.Get(); ok {
		matched.TrackNumber = n
		if track, found := trackAtPosition(sorted, n); found {
			matched.Title = chooseTitle(local, track.Title)
		}
		return matched, nil
	}

	track, found := closestTrack(sorted[0].Tracklist, local.TrackTitle)
	if !found {
		return MatchedTrack{}, fmt.Errorf("no tracklist entry for %q", local.FileName)
	}
	n, err := parsePosition(track.Position)
	if err != nil {
		return MatchedTrack{}, fmt.Errorf("track %q: %w", local.FileName, err)
	}
	matched.TrackNumber = n
	matched.Title = chooseTitle(local, track.Title)
	return matched, nil
}

// resolveOutput derives the final metadata from ranked releases. sorted must
// not be empty.
func resolveOutput(info dirinfo.TrackDirInfo, sorted []Release) (OutputRoot, error) {
	best := sorted[0]

	tracks := make([]MatchedTrack, 0, len(info.Tracks))
	for _, local := range info.Tracks {
		matched, err := resolveTrack(info.Path, local, sorted)
		if err != nil {
			return OutputRoot{}, err
		}
		tracks = append(tracks, matched)
	}

	titles := make([]string, 0, len(sorted)+1)
	for _, release := range sorted {
		titles = append(titles, release.Title)
	}
	titles = append(titles, info.LeafName())
	album, _ := mostCanonical(titles)

	return OutputRoot{
		Album:      album,
		Performers: slices.Clone(best.Artists),
		Tracks:     tracks,
	}, nil
}
