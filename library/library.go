// Package library finds the directories and audio files retag works on.
package library

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

var audioExtensions = map[string]struct{}{
	".mp3":  {},
	".ape":  {},
	".flac": {},
	".mpc":  {},
	".ogg":  {},
	".wav":  {},
}

// AudioExtensions returns the recognised extensions, lower case with dot.
func AudioExtensions() []string {
	exts := make([]string, 0, len(audioExtensions))
	for ext := range audioExtensions {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// IsAudioFile reports whether name has an audio extension, ignoring case.
func IsAudioFile(name string) bool {
	_, ok := audioExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ListAudioFiles returns the names of the audio files directly inside dir,
// sorted bytewise.
func ListAudioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !IsAudioFile(entry.Name()) {
			continue
		}
		names = append(names, entry.Name())
	}
	slices.Sort(names)
	return names, nil
}

// MissingDirectories returns the entries of dirs that do not exist or are
// not directories.
func MissingDirectories(dirs []string) []string {
	var missing []string
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			missing = append(missing, dir)
		}
	}
	return missing
}

// WorkingDirectories resolves dirs to absolute paths and, when recursive,
// adds every subdirectory below them. Hidden subdirectories are skipped.
// Each directory appears once, in the order first seen.
func WorkingDirectories(dirs []string, recursive bool) ([]string, error) {
	seen := make(map[string]struct{})
	var result []string
	add := func(dir string) {
		if _, ok := seen[dir]; ok {
			return
		}
		seen[dir] = struct{}{}
		result = append(result, dir)
	}

	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", dir, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", dir, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", dir)
		}

		if !recursive {
			add(abs)
			continue
		}

		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if path != abs && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			add(path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", dir, err)
		}
	}
	return result, nil
}
