package textutil

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Canonicity penalties.
const (
	lowerCaseWordValue       = -1
	upperCaseWordValue       = -3
	badCharValue             = -100
	commonPunctuationValue   = -1
	uncommonPunctuationValue = -5
)

var commonPunctuation = map[rune]bool{
	'.': true, ',': true, '!': true, '?': true, '(': true, ')': true,
}

var commonSymbols = buildCommonSymbols()

func buildCommonSymbols() map[rune]bool {
	set := make(map[rune]bool)
	for r := '0'; r <= '9'; r++ {
		set[r] = true
	}
	for r := 'a'; r <= 'z'; r++ {
		set[r] = true
		set[unicode.ToUpper(r)] = true
	}
	for _, r := range []rune{' ', '.', ',', '!', '?', '\'', '(', ')', '[', ']'} {
		set[r] = true
	}
	return set
}

// CommonSymbols returns the characters allowed in a search query: ASCII
// digits and letters, space and . , ! ? ' ( ) [ ].
func CommonSymbols() []rune {
	symbols := make([]rune, 0, len(commonSymbols))
	for r := '0'; r <= '9'; r++ {
		symbols = append(symbols, r)
	}
	for r := 'a'; r <= 'z'; r++ {
		symbols = append(symbols, r, unicode.ToUpper(r))
	}
	return append(symbols, ' ', '.', ',', '!', '?', '\'', '(', ')', '[', ']')
}

// IsCommonSymbol reports whether r is one of CommonSymbols.
func IsCommonSymbol(r rune) bool {
	return commonSymbols[r]
}

func isASCIILetter(r rune) bool {
	return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')
}

func allRunes(s string, pred func(rune) bool) bool {
	for _, r := range s {
		if !pred(r) {
			return false
		}
	}
	return true
}

// MeasureStringCanonicity scores how properly formatted s looks. Higher is
// better; a title-cased ASCII string with light punctuation scores near zero.
//
// Words are split on single spaces, so an empty word (from a doubled space
// or an empty string) counts as both all-lowercase and all-uppercase.
func MeasureStringCanonicity(s string) int {
	score := 0
	for _, word := range strings.Split(s, " ") {
		if allRunes(word, unicode.IsLower) {
			score += lowerCaseWordValue
		}
		if allRunes(word, unicode.IsUpper) {
			score += upperCaseWordValue
		}
	}

	for _, r := range s {
		punct := unicode.IsPunct(r)
		if !isASCIILetter(r) && !unicode.IsDigit(r) && !punct && r != ' ' {
			score += badCharValue
		}
		if punct {
			if commonPunctuation[r] {
				score += commonPunctuationValue
			} else {
				score += uncommonPunctuationValue
			}
		}
	}
	return score
}

// CalculateLevenshteinDistance returns the unit-cost edit distance between a
// and b, counted in runes.
func CalculateLevenshteinDistance(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}
