// Package similarity provides the field comparators used by matching rules.
// Every comparator is pure and returns a value in [0,1].
package similarity

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// Comparator scores two normalized values
type Comparator func(a, b string) float64

// Compare runs the rule's comparator over two normalized values
func Compare(rule models.MatchingRule, a, b string) float64 {
	switch rule.Comparator {
	case models.ComparatorExact:
		return Exact(a, b)
	case models.ComparatorFuzzy:
		return Fuzzy(a, b, rule.FuzzyMethod)
	case models.ComparatorPhonetic:
		return Phonetic(a, b)
	case models.ComparatorNumeric:
		return Numeric(a, b, rule.NumericScale)
	default:
		return 0.0
	}
}

// Exact returns 1.0 for equal values, including two empty values
func Exact(a, b string) float64 {
	if a == b {
		return 1.0
	}
	return 0.0
}

// Fuzzy dispatches to the selected edit-distance method. Levenshtein is the default.
func Fuzzy(a, b string, method models.FuzzyMethod) float64 {
	switch method {
	case models.FuzzyJaroWinkler:
		return JaroWinkler(a, b)
	case models.FuzzyTokenSort:
		return TokenSort(a, b)
	default:
		return Levenshtein(a, b)
	}
}

// Levenshtein returns 1 - distance/maxLen over runes. Empty on either side scores 0.
func Levenshtein(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	distance := matchr.Levenshtein(a, b)
	return clamp(1.0 - float64(distance)/float64(maxLen))
}

// JaroWinkler returns the Jaro-Winkler similarity. Inputs are put in a fixed
// order first so the greedy character matching cannot break symmetry.
func JaroWinkler(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}
	if b < a {
		a, b = b, a
	}
	return clamp(matchr.JaroWinkler(a, b, false))
}

// TokenSort compares values after sorting their whitespace-separated tokens,
// so "smith john" and "john smith" score 1.0
func TokenSort(a, b string) float64 {
	return Levenshtein(sortTokens(a), sortTokens(b))
}

func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}

// latinFold spells out Latin letters that have no combining-mark decomposition
var latinFold = map[rune]string{
	'ß': "ss", 'ẞ': "SS",
	'ł': "l", 'Ł': "L",
	'ø': "o", 'Ø': "O",
	'đ': "d", 'Đ': "D",
	'æ': "ae", 'Æ': "AE",
	'œ': "oe", 'Œ': "OE",
	'þ': "th", 'Þ': "TH",
	'ı': "i",
}

// Soundex returns the 4-character phonetic code of the letters in s, or ""
// when s has none. Accented Latin letters are folded to ASCII first. A
// non-Latin initial is kept as is and followed by the code of the remaining
// ASCII letters, so the code is always four runes.
func Soundex(s string) string {
	var letters strings.Builder
	for _, r := range normalizers.StripAccents(s) {
		if folded, ok := latinFold[r]; ok {
			letters.WriteString(folded)
		} else if unicode.IsLetter(r) {
			letters.WriteRune(r)
		}
	}
	if letters.Len() == 0 {
		return ""
	}

	word := letters.String()
	initial, size := utf8.DecodeRuneInString(word)
	var ascii strings.Builder
	for _, r := range word[size:] {
		if r < utf8.RuneSelf {
			ascii.WriteRune(r)
		}
	}

	if initial < utf8.RuneSelf {
		return matchr.Soundex(string(initial) + ascii.String())
	}

	// a leading vowel lets the first remaining consonant be coded
	digits := "000"
	if ascii.Len() > 0 {
		digits = matchr.Soundex("A" + ascii.String())[1:]
	}
	return string(unicode.ToUpper(initial)) + digits
}

// Phonetic returns 1.0 when both values share a Soundex code
func Phonetic(a, b string) float64 {
	codeA, codeB := Soundex(a), Soundex(b)
	if codeA == "" || codeB == "" {
		return 0.0
	}
	if codeA == codeB {
		return 1.0
	}
	return 0.0
}

var numericCleaner = strings.NewReplacer(",", "", "$", "")

// ParseNumber reads a number, ignoring thousands separators and currency signs
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(numericCleaner.Replace(s))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Numeric applies Gaussian decay exp(-d²/(2·scale²)). Non-numeric input scores 0.
func Numeric(a, b string, scale float64) float64 {
	x, ok := ParseNumber(a)
	if !ok {
		return 0.0
	}
	y, ok := ParseNumber(b)
	if !ok {
		return 0.0
	}
	if scale <= 0 {
		scale = models.DefaultNumericScale
	}
	d := x - y
	return clamp(math.Exp(-(d * d) / (2 * scale * scale)))
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
