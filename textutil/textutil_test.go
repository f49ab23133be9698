package textutil

import (
	"slices"
	"strings"
	"testing"
)

func TestSplitToTokens(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"01 - Track 01", []string{"01", "track", "01"}},
		{"Shippo no Uta (Single)", []string{"shippo", "no", "uta", "single"}},
		{"  ", nil},
		{"", nil},
		{"Éclair_Noir", []string{"éclair", "noir"}},
		{"İstanbul Live", []string{"istanbul", "live"}},
	}

	for _, tt := range tests {
		got := SplitToTokens(tt.input)
		if !slices.Equal(got, tt.expected) {
			t.Errorf("SplitToTokens(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestSplitToTokensIsIdempotent(t *testing.T) {
	inputs := []string{
		"Artist - Album - 01 - Song A",
		"MIXED case, with: punctuation!! and 1999",
		"über-Straße [Live]",
		"İstanbul",
		"",
	}

	for _, input := range inputs {
		first := SplitToTokens(input)
		second := SplitToTokens(strings.Join(first, " "))
		if !slices.Equal(first, second) {
			t.Errorf("tokens of %q not stable: %q then %q", input, first, second)
		}
	}
}

func TestExtractDigitGroups(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"Compilation Vol 2", []string{"2"}},
		{"Disc 01 of 2003", []string{"01", "2003"}},
		{"No numbers", nil},
		{"a1b22c333", []string{"1", "22", "333"}},
	}

	for _, tt := range tests {
		got := ExtractDigitGroups(tt.input)
		if !slices.Equal(got, tt.expected) {
			t.Errorf("ExtractDigitGroups(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}

func TestFindCommonTokens(t *testing.T) {
	common := FindCommonTokens([]string{"my track 1", "my track 2", "track 3"})
	if common.Len() != 1 || !common.Contains("track") {
		t.Errorf("Expected only 'track' in common tokens, got %v", common)
	}

	if FindCommonTokens(nil).Len() != 0 {
		t.Error("Expected empty set for empty input")
	}

	single := FindCommonTokens([]string{"One Two two"})
	if single.Len() != 2 || !single.Contains("one") || !single.Contains("two") {
		t.Errorf("Expected {one, two} for a single string, got %v", single)
	}
}

func TestFindLongestCommonPrefix(t *testing.T) {
	tests := []struct {
		name       string
		input      []string
		ignoreCase bool
		expected   string
	}{
		{
			name:       "separator and space kept",
			input:      []string{"Artist - Album - 01 - Song A", "Artist - Album - 02 - Song B"},
			ignoreCase: true,
			expected:   "Artist - Album - ",
		},
		{
			name:       "case folded",
			input:      []string{"BAND - ep - 01", "Band - EP - 02"},
			ignoreCase: true,
			expected:   "BAND - ep - ",
		},
		{
			name:       "case sensitive",
			input:      []string{"BAND - ep", "Band - EP"},
			ignoreCase: false,
			expected:   "B",
		},
		{
			name:       "number shared by all files is kept",
			input:      []string{"2019 - A", "2019 - B"},
			ignoreCase: true,
			expected:   "2019 - ",
		},
		{
			name:       "shorter string limits the prefix",
			input:      []string{"Track 1", "Track 10", "Track 2"},
			ignoreCase: true,
			expected:   "Track ",
		},
		{
			name:       "number followed by a separator is kept",
			input:      []string{"Vol 1 A", "Vol 1 B"},
			ignoreCase: true,
			expected:   "Vol 1 ",
		},
		{
			name:       "nothing in common",
			input:      []string{"abc", "xyz"},
			ignoreCase: true,
			expected:   "",
		},
		{
			name:       "single string",
			input:      []string{"Only One"},
			ignoreCase: true,
			expected:   "Only One",
		},
		{
			name:     "empty input",
			input:    nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindLongestCommonPrefix(tt.input, tt.ignoreCase)
			if got != tt.expected {
				t.Errorf("FindLongestCommonPrefix(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMeasureStringCanonicity(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"Hello World", 0},
		{"hello world", -2},
		{"HELLO WORLD", -6},
		{"Hello, World!", -2},
		{"Song - Live", -5},
		{"Café", -100},
		{"a+b", -100},
		{"A", -3},
		{"", -4},
		{"Vol. 2 (Remastered)", -3},
	}

	for _, tt := range tests {
		got := MeasureStringCanonicity(tt.input)
		if got != tt.expected {
			t.Errorf("MeasureStringCanonicity(%q) = %d, expected %d", tt.input, got, tt.expected)
		}
	}
}

func TestCanonicityCaseMonotonicity(t *testing.T) {
	inputs := []string{
		"Hello World",
		"The Dark Side of the Moon",
		"Vol. 2 (Remastered)",
		"Shippo no Uta",
		"midori no Hane",
		"AC/DC Live at River Plate",
		"Don't Stop Me Now",
	}

	for _, input := range inputs {
		original := MeasureStringCanonicity(input)
		if upper := MeasureStringCanonicity(strings.ToUpper(input)); upper > original {
			t.Errorf("uppercasing %q raised canonicity from %d to %d", input, original, upper)
		}
		if lower := MeasureStringCanonicity(strings.ToLower(input)); lower > original {
			t.Errorf("lowercasing %q raised canonicity from %d to %d", input, original, lower)
		}
	}
}

func TestCalculateLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"abc", "", 3},
		{"flaw", "lawn", 2},
		{"same", "same", 0},
		{"", "", 0},
		{"é", "e", 1},
		{"Café", "Cafe", 1},
		{"しっぽのうた", "しっぽの歌", 2},
	}

	for _, tt := range tests {
		got := CalculateLevenshteinDistance(tt.a, tt.b)
		if got != tt.expected {
			t.Errorf("CalculateLevenshteinDistance(%q, %q) = %d, expected %d", tt.a, tt.b, got, tt.expected)
		}
	}
}

func TestLevenshteinIdentityAndSymmetry(t *testing.T) {
	words := []string{"", "a", "First Song", "Second Song", "first song", "Intro", "Outro (Reprise)"}

	for _, a := range words {
		if d := CalculateLevenshteinDistance(a, a); d != 0 {
			t.Errorf("distance(%q, %q) = %d, expected 0", a, a, d)
		}
		for _, b := range words {
			ab := CalculateLevenshteinDistance(a, b)
			ba := CalculateLevenshteinDistance(b, a)
			if ab != ba {
				t.Errorf("distance not symmetric for %q/%q: %d vs %d", a, b, ab, ba)
			}
			if ab < 0 {
				t.Errorf("negative distance for %q/%q: %d", a, b, ab)
			}
		}
	}
}

func TestCommonSymbols(t *testing.T) {
	symbols := CommonSymbols()
	if len(symbols) != 10+52+10 {
		t.Errorf("Expected 72 common symbols, got %d", len(symbols))
	}

	for _, r := range "aZ09 .,!?'()[]" {
		if !IsCommonSymbol(r) {
			t.Errorf("Expected %q to be a common symbol", r)
		}
	}
	for _, r := range "-_&é:;\"" {
		if IsCommonSymbol(r) {
			t.Errorf("Expected %q not to be a common symbol", r)
		}
	}
}
