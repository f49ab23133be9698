// Package dirinfo decomposes the audio file names of one directory into
// per-track numbers, titles and fuzzy-match tokens.
package dirinfo

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/grrywlsn/retag/optional"
	"github.com/grrywlsn/retag/textutil"
)

// TrackDirInfo describes the tracks found in one directory.
type TrackDirInfo struct {
	Path         string
	CommonPrefix optional.Option[string]
	Tracks       []TrackInfo
}

// TrackInfo is what could be inferred about a single file from its name.
type TrackInfo struct {
	FileName    string
	TrackNumber optional.Option[int]
	TrackTitle  string
	// MeaningfulTrackTitleTokens are the title tokens left after removing
	// tokens shared by every file. Used for matching, never for display.
	MeaningfulTrackTitleTokens string
}

// LeafName returns the last element of the directory path.
func (d TrackDirInfo) LeafName() string {
	return filepath.Base(d.Path)
}

var trackNumberPattern = regexp.MustCompile(`(\d+) ?[-.] ?`)

// tokenFilter removes the directory-wide common tokens plus, optionally, a
// track's own number rendered as text. The base set is shared and never
// modified.
type tokenFilter struct {
	common textutil.TokenSet
	own    []string
}

func (f tokenFilter) withNumber(n int) tokenFilter {
	return tokenFilter{
		common: f.common,
		own:    []string{strconv.Itoa(n), fmt.Sprintf("%02d", n)},
	}
}

func (f tokenFilter) contains(token string) bool {
	if f.common.Contains(token) {
		return true
	}
	for _, o := range f.own {
		if o == token {
			return true
		}
	}
	return false
}

func (f tokenFilter) meaningful(s string) string {
	var kept []string
	for _, token := range textutil.SplitToTokens(s) {
		if !f.contains(token) {
			kept = append(kept, token)
		}
	}
	return textutil.JoinTokens(kept)
}

// Extract builds a TrackDirInfo for dirPath from its audio file names.
// fileNames must already be sorted; each entry is a bare name with
// extension.
func Extract(dirPath string, fileNames []string) TrackDirInfo {
	if len(fileNames) == 0 {
		return TrackDirInfo{Path: dirPath, CommonPrefix: optional.None[string]()}
	}

	stems := make([]string, len(fileNames))
	for i, name := range fileNames {
		stems[i] = strings.TrimSuffix(name, filepath.Ext(name))
	}

	prefix := textutil.FindLongestCommonPrefix(stems, true)

	prefixLen := utf8.RuneCountInString(prefix)
	residues := make([]string, len(stems))
	for i, stem := range stems {
		residues[i] = dropRunes(stem, prefixLen)
	}
	filter := tokenFilter{common: textutil.FindCommonTokens(residues)}

	tracks := make([]TrackInfo, len(fileNames))
	for i, name := range fileNames {
		tracks[i] = extractTrackInfo(name, strings.TrimSpace(residues[i]), filter)
	}

	return TrackDirInfo{
		Path: dirPath,
		CommonPrefix: optional.Some(prefix).Filter(func(p string) bool {
			return strings.TrimSpace(p) != ""
		}),
		Tracks: tracks,
	}
}

// dropRunes returns s without its first n runes.
func dropRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[i:]
		}
		n--
	}
	return ""
}

func extractTrackInfo(fileName, residue string, filter tokenFilter) TrackInfo {
	matches := trackNumberPattern.FindAllStringSubmatchIndex(residue, -1)
	if len(matches) > 0 {
		m := matches[len(matches)-1]
		if n, err := strconv.Atoi(residue[m[2]:m[3]]); err == nil {
			title := strings.TrimSpace(residue[m[1]:])
			return TrackInfo{
				FileName:                   fileName,
				TrackNumber:                optional.Some(n),
				TrackTitle:                 title,
				MeaningfulTrackTitleTokens: filter.withNumber(n).meaningful(title),
			}
		}
	}

	return TrackInfo{
		FileName:                   fileName,
		TrackNumber:                optional.None[int](),
		TrackTitle:                 residue,
		MeaningfulTrackTitleTokens: filter.meaningful(residue),
	}
}
