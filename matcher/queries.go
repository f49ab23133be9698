package matcher

import (
	"iter"
	"strings"

	"github.com/grrywlsn/retag/dirinfo"
	"github.com/grrywlsn/retag/textutil"
)

// simplifyName drops every rune outside the query alphabet.
func simplifyName(name string) string {
	return strings.Map(func(r rune) rune {
		if textutil.IsCommonSymbol(r) {
			return r
		}
		return -1
	}, name)
}

// NameToQueries yields progressively shorter search phrases for name: all
// words, then all but the last, down to two words. A single-word phrase is
// never produced.
func NameToQueries(name string) iter.Seq[string] {
	words := strings.Fields(simplifyName(name))
	return func(yield func(string) bool) {
		for n := len(words); n >= 2; n-- {
			if !yield(strings.Join(words[:n], " ")) {
				return
			}
		}
	}
}

// Queries yields the search phrases for a directory: those derived from the
// common file name prefix, if any, followed by those derived from the
// directory name.
func Queries(info dirinfo.TrackDirInfo) iter.Seq[string] {
	return func(yield func(string) bool) {
		if prefix, ok := info.CommonPrefix.Get(); ok {
			for q := range NameToQueries(prefix) {
				if !yield(q) {
					return
				}
			}
		}
		for q := range NameToQueries(info.LeafName()) {
			if !yield(q) {
				return
			}
		}
	}
}
