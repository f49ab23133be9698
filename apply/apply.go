// Package apply writes a match result to disk: it renames the track files,
// tags them and renames their directory after the album.
package apply

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/grrywlsn/retag/logging"
	"github.com/grrywlsn/retag/matcher"
)

// ErrTargetExists is returned when a rename would overwrite a file, either
// one outside the set of tracks or another track's target.
var ErrTargetExists = errors.New("rename target already exists")

// TrackChange describes what happens to one file.
type TrackChange struct {
	OldPath     string
	NewPath     string
	TrackNumber int
	Title       string
	Tagged      bool
}

// Renamed reports whether the file gets a new name.
func (c TrackChange) Renamed() bool {
	return c.OldPath != c.NewPath
}

// Result describes what Apply did, or would do in a dry run.
type Result struct {
	Dir        string
	NewDir     string
	Album      string
	Performers []string
	Tracks     []TrackChange
	DryRun     bool
}

// Changed reports whether anything on disk differs after the apply.
func (r Result) Changed() bool {
	if r.Dir != r.NewDir {
		return true
	}
	for _, t := range r.Tracks {
		if t.Renamed() || t.Tagged {
			return true
		}
	}
	return false
}

// Applier applies match results. It is safe for concurrent use on distinct
// directories.
type Applier struct {
	dryRun  bool
	writers map[string]TagWriter
	logger  *slog.Logger
}

// New creates an Applier. In a dry run nothing on disk is touched.
func New(dryRun bool, logger *slog.Logger) *Applier {
	return &Applier{
		dryRun:  dryRun,
		writers: defaultWriters(),
		logger:  logging.NewComponentLogger(logger, "apply"),
	}
}

// Apply renames and tags the tracks of dir and renames dir after the album.
func (a *Applier) Apply(dir string, output matcher.OutputRoot) (Result, error) {
	logger := a.logger.With(logging.String(logging.FieldDir, dir))
	result := Result{
		Dir:        dir,
		NewDir:     dir,
		Album:      output.Album,
		Performers: output.Performers,
		DryRun:     a.dryRun,
	}

	for _, track := range output.Tracks {
		ext := filepath.Ext(track.Path)
		name := TrackFileName(track.TrackNumber, track.Title, ext)
		_, hasWriter := a.writers[strings.ToLower(ext)]
		result.Tracks = append(result.Tracks, TrackChange{
			OldPath:     track.Path,
			NewPath:     filepath.Join(dir, name),
			TrackNumber: track.TrackNumber,
			Title:       track.Title,
			Tagged:      hasWriter,
		})
	}

	if newName := SanitizeFileName(output.Album); newName != filepath.Base(dir) {
		result.NewDir = filepath.Join(filepath.Dir(dir), newName)
	}

	if err := checkRenames(result.Tracks); err != nil {
		return result, err
	}

	if a.dryRun {
		for _, change := range result.Tracks {
			logger.Info("would update track",
				logging.String("from", filepath.Base(change.OldPath)),
				logging.String("to", filepath.Base(change.NewPath)))
		}
		if result.NewDir != dir {
			logger.Info("would rename directory", logging.String("to", result.NewDir))
		}
		return result, nil
	}

	tags := Tags{Album: output.Album, Performers: output.Performers, TrackTotal: len(output.Tracks)}
	for _, change := range result.Tracks {
		if !change.Tagged {
			continue
		}
		tags.Title = change.Title
		tags.TrackNumber = change.TrackNumber
		writer := a.writers[strings.ToLower(filepath.Ext(change.OldPath))]
		if err := writer.WriteTags(change.OldPath, tags); err != nil {
			return result, fmt.Errorf("tag %s: %w", change.OldPath, err)
		}
	}

	if stranded, err := renameTracks(result.Tracks); err != nil {
		if len(stranded) > 0 {
			logger.Error("tracks left under temporary names",
				logging.String("paths", strings.Join(stranded, ", ")),
				logging.Error(err))
			return result, fmt.Errorf("%w (left at %s)", err, strings.Join(stranded, ", "))
		}
		return result, err
	}
	logger.Info("tracks updated", logging.Int("tracks", len(result.Tracks)))

	if result.NewDir != dir {
		renamed, err := renameDir(dir, result.NewDir)
		if err != nil {
			return result, err
		}
		if !renamed {
			logger.Warn("directory not renamed, target exists", logging.String("target", result.NewDir))
			result.NewDir = dir
		} else {
			logger.Info("directory renamed", logging.String("to", result.NewDir))
		}
	}

	return result, nil
}

// checkRenames refuses changes that would lose a file. Every target must be
// unique among the tracks, and a target on disk must be a track that moves
// away.
func checkRenames(changes []TrackChange) error {
	movers := make(map[string]struct{}, len(changes))
	for _, c := range changes {
		if c.Renamed() {
			movers[c.OldPath] = struct{}{}
		}
	}

	targets := make(map[string]string, len(changes))
	for _, c := range changes {
		if first, dup := targets[c.NewPath]; dup {
			return fmt.Errorf("%s and %s both map to %s: %w",
				filepath.Base(first), filepath.Base(c.OldPath), c.NewPath, ErrTargetExists)
		}
		targets[c.NewPath] = c.OldPath
	}

	for _, c := range changes {
		if !c.Renamed() {
			continue
		}
		if _, moving := movers[c.NewPath]; moving {
			continue
		}
		if existing, err := os.Lstat(c.NewPath); err == nil {
			if old, err := os.Lstat(c.OldPath); err == nil && os.SameFile(old, existing) {
				continue
			}
			return fmt.Errorf("%s: %w", c.NewPath, ErrTargetExists)
		}
	}
	return nil
}

// renameTracks moves every changed file to a temporary name first so that
// swapped names within the directory do not collide. If the first phase
// fails the files already moved are put back. If the second phase fails the
// temporary paths still on disk are returned.
func renameTracks(changes []TrackChange) ([]string, error) {
	type pending struct {
		old    string
		temp   string
		target string
	}
	var moves []pending

	for _, c := range changes {
		if !c.Renamed() {
			continue
		}
		temp := filepath.Join(filepath.Dir(c.OldPath), ".retag-"+uuid.NewString()+filepath.Ext(c.OldPath))
		if err := os.Rename(c.OldPath, temp); err != nil {
			var stranded []string
			for _, m := range slices.Backward(moves) {
				if os.Rename(m.temp, m.old) != nil {
					stranded = append(stranded, m.temp)
				}
			}
			return stranded, fmt.Errorf("rename %s: %w", c.OldPath, err)
		}
		moves = append(moves, pending{old: c.OldPath, temp: temp, target: c.NewPath})
	}

	for i, m := range moves {
		if err := os.Rename(m.temp, m.target); err != nil {
			stranded := make([]string, 0, len(moves)-i)
			for _, rest := range moves[i:] {
				stranded = append(stranded, rest.temp)
			}
			return stranded, fmt.Errorf("rename to %s: %w", m.target, err)
		}
	}
	return nil, nil
}

// renameDir renames dir to target unless target is another existing entry.
// A target that is the same directory (a case-only change on a
// case-insensitive filesystem) is renamed.
func renameDir(dir, target string) (bool, error) {
	targetInfo, err := os.Stat(target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return false, fmt.Errorf("stat %s: %w", target, err)
	default:
		dirInfo, err := os.Stat(dir)
		if err != nil {
			return false, fmt.Errorf("stat %s: %w", dir, err)
		}
		if !os.SameFile(dirInfo, targetInfo) {
			return false, nil
		}
	}

	if err := os.Rename(dir, target); err != nil {
		return false, fmt.Errorf("rename directory %s: %w", dir, err)
	}
	return true, nil
}

// TrackFileName renders "NN. Title.ext".
func TrackFileName(number int, title, ext string) string {
	return fmt.Sprintf("%02d. %s%s", number, SanitizeFileName(title), ext)
}

const invalidFileNameChars = `<>:"/\|?*`

// SanitizeFileName makes name safe as a single path element on common
// filesystems. The result is NFC-normalized.
func SanitizeFileName(name string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || strings.ContainsRune(invalidFileNameChars, r) {
			return '_'
		}
		return r
	}, norm.NFC.String(name))

	cleaned = strings.TrimRight(strings.TrimSpace(cleaned), ".")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return "_"
	}
	return cleaned
}

// DeepestFirst returns dirs ordered so that every directory comes before its
// ancestors. Renaming a parent then never invalidates a pending child path.
func DeepestFirst(dirs []string) []string {
	sorted := slices.Clone(dirs)
	depth := func(p string) int {
		return strings.Count(filepath.Clean(p), string(filepath.Separator))
	}
	slices.SortStableFunc(sorted, func(a, b string) int {
		return depth(b) - depth(a)
	})
	return sorted
}
