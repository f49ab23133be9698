// Package textutil holds the string primitives used to compare local file
// names with release data: tokenization, prefix and token commonality,
// canonicity scoring and edit distance.
package textutil

import (
	"strings"
	"unicode"
)

// TokenSet is an unordered set of lowercase tokens.
type TokenSet map[string]struct{}

// Contains reports whether token is in the set.
func (s TokenSet) Contains(token string) bool {
	_, ok := s[token]
	return ok
}

// Len returns the number of tokens in the set.
func (s TokenSet) Len() int {
	return len(s)
}

// charGroups returns the maximal runs of runes accepted by inGroup, in order.
func charGroups(s string, inGroup func(rune) bool) []string {
	var groups []string
	start := -1
	for i, r := range s {
		if inGroup(r) {
			if start == -1 {
				start = i
			}
			continue
		}
		if start != -1 {
			groups = append(groups, s[start:i])
			start = -1
		}
	}
	if start != -1 {
		groups = append(groups, s[start:])
	}
	return groups
}

func isLetterOrDigit(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// SplitToTokens returns the lower-cased letter/digit runs of s in order of
// appearance. Duplicates are kept. Lowering maps each rune to exactly one
// rune, so a token never gains a combining mark.
func SplitToTokens(s string) []string {
	groups := charGroups(s, isLetterOrDigit)
	if len(groups) == 0 {
		return nil
	}
	tokens := make([]string, len(groups))
	for i, g := range groups {
		tokens[i] = strings.Map(unicode.ToLower, g)
	}
	return tokens
}

// ExtractDigitGroups returns the digit runs of s as strings, keeping
// leading zeros.
func ExtractDigitGroups(s string) []string {
	return charGroups(s, unicode.IsDigit)
}

// FindCommonTokens returns the tokens present in every one of the strings.
// An empty input yields an empty set.
func FindCommonTokens(strs []string) TokenSet {
	common := TokenSet{}
	if len(strs) == 0 {
		return common
	}
	for _, token := range SplitToTokens(strs[0]) {
		common[token] = struct{}{}
	}
	for _, s := range strs[1:] {
		present := make(map[string]struct{})
		for _, token := range SplitToTokens(s) {
			present[token] = struct{}{}
		}
		for token := range common {
			if _, ok := present[token]; !ok {
				delete(common, token)
			}
		}
	}
	return common
}

// FindLongestCommonPrefix returns the longest prefix of strs[0] shared by
// every string. Characters are compared one rune at a time, folded to
// lowercase when ignoreCase is set.
//
// The prefix never ends inside a number: when the cut falls between two
// digits of any string, the trailing digit run is dropped, so
// "Album - 01 - A" and "Album - 02 - B" share "Album - ", not "Album - 0".
func FindLongestCommonPrefix(strs []string, ignoreCase bool) string {
	if len(strs) == 0 {
		return ""
	}
	equal := func(a, b rune) bool {
		if ignoreCase {
			return unicode.ToLower(a) == unicode.ToLower(b)
		}
		return a == b
	}

	prefix := strs[0]
	for _, s := range strs[1:] {
		prefix = commonPrefix(prefix, s, equal)
		if prefix == "" {
			return ""
		}
	}
	if splitsNumber(prefix, strs) {
		prefix = strings.TrimRightFunc(prefix, unicode.IsDigit)
	}
	return prefix
}

// splitsNumber reports whether prefix ends with a digit that is followed by
// another digit in at least one of strs.
func splitsNumber(prefix string, strs []string) bool {
	runes := []rune(prefix)
	if len(runes) == 0 || !unicode.IsDigit(runes[len(runes)-1]) {
		return false
	}
	n := len(runes)
	for _, s := range strs {
		rs := []rune(s)
		if len(rs) > n && unicode.IsDigit(rs[n]) {
			return true
		}
	}
	return false
}

// commonPrefix returns the part of a that agrees with b.
func commonPrefix(a, b string, equal func(a, b rune) bool) string {
	other := []rune(b)
	n := 0
	for i, r := range a {
		if n >= len(other) || !equal(r, other[n]) {
			return a[:i]
		}
		n++
	}
	return a
}

// JoinTokens joins tokens with single spaces.
func JoinTokens(tokens []string) string {
	return strings.Join(tokens, " ")
}
