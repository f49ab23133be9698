package matcher

import (
	"slices"
	"unicode/utf8"

	"github.com/grrywlsn/retag/dirinfo"
	"github.com/grrywlsn/retag/textutil"
)

const (
	// maxCandidates bounds how many search hits per query get fetched.
	maxCandidates = 5
	// significantTokenLength is the minimum length of a token that counts
	// towards conformity.
	significantTokenLength = 4
	// conformityDivisor: a release must share at least 1/3 of the local
	// significant tokens (integer division).
	conformityDivisor = 3
)

// checkReleaseNameConsistency reports whether releaseName carries exactly the
// same numbers as query, in any order. "Vol 2" must not match "Vol 3".
func checkReleaseNameConsistency(releaseName, query string) bool {
	releaseDigits := textutil.ExtractDigitGroups(releaseName)
	queryDigits := textutil.ExtractDigitGroups(query)
	slices.Sort(releaseDigits)
	slices.Sort(queryDigits)
	return slices.Equal(releaseDigits, queryDigits)
}

func significantTokens(s string) []string {
	var tokens []string
	for _, token := range textutil.SplitToTokens(s) {
		if utf8.RuneCountInString(token) >= significantTokenLength {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// measureTracklistConformity counts the distinct significant tokens of the
// tracklist titles that also occur locally.
func measureTracklistConformity(tracklist []Track, local textutil.TokenSet) int {
	matched := textutil.TokenSet{}
	for _, track := range tracklist {
		for _, token := range significantTokens(track.Title) {
			if local.Contains(token) {
				matched[token] = struct{}{}
			}
		}
	}
	return matched.Len()
}

// checkReleasesConsistency drops releases whose tracklist shares too few
// words with the local track titles.
func checkReleasesConsistency(info dirinfo.TrackDirInfo, releases []Release) []Release {
	if len(releases) == 0 || len(info.Tracks) == 0 {
		return releases
	}

	var localTokens []string
	for _, track := range info.Tracks {
		localTokens = append(localTokens, significantTokens(track.MeaningfulTrackTitleTokens)...)
	}
	idealConformity := len(localTokens)

	local := textutil.TokenSet{}
	for _, token := range localTokens {
		local[token] = struct{}{}
	}

	var consistent []Release
	for _, release := range releases {
		if measureTracklistConformity(release.Tracklist, local) >= idealConformity/conformityDivisor {
			consistent = append(consistent, release)
		}
	}
	return consistent
}

// withoutUnpositioned returns the tracklist minus entries that have no
// position (headings and other liner entries).
func withoutUnpositioned(tracklist []Track) []Track {
	kept := make([]Track, 0, len(tracklist))
	for _, track := range tracklist {
		if track.Position != "" {
			kept = append(kept, track)
		}
	}
	return kept
}
