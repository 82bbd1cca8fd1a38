package similarity

import (
	"math"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/models"
)

func TestExact(t *testing.T) {
	assert.Equal(t, 1.0, Exact("1990-01-15", "1990-01-15"))
	assert.Equal(t, 0.0, Exact("1990-01-15", "1990-01-16"))
	assert.Equal(t, 1.0, Exact("", ""))
	assert.Equal(t, 0.0, Exact("", "x"))
}

func TestLevenshtein(t *testing.T) {
	assert.InDelta(t, 0.9, Levenshtein("john smith", "jon smith"), 1e-9)
	assert.Equal(t, 1.0, Levenshtein("abc", "abc"))
	assert.Equal(t, 0.0, Levenshtein("", "abc"))
	assert.Equal(t, 0.0, Levenshtein("", ""))
	// Multi-byte runes count as one character
	assert.InDelta(t, 0.75, Levenshtein("josé", "jose"), 1e-9)
}

func TestJaroWinkler(t *testing.T) {
	assert.InDelta(t, 0.961, JaroWinkler("martha", "marhta"), 0.01)
	assert.Equal(t, 1.0, JaroWinkler("dwayne", "dwayne"))
	assert.Equal(t, 0.0, JaroWinkler("", "dwayne"))
}

func TestTokenSort(t *testing.T) {
	assert.Equal(t, 1.0, TokenSort("smith john", "john  smith"))
	assert.Less(t, TokenSort("john smith", "jane doe"), 0.5)
}

func TestFuzzy_SymmetryAndSelfIdentity(t *testing.T) {
	pairs := [][2]string{
		{"john smith", "jon smith"},
		{"dixon", "dicksonx"},
		{"acme corporation", "corporation acme inc"},
		{"a", "abcdefgh"},
		{"münchen", "munchen"},
	}
	methods := []models.FuzzyMethod{models.FuzzyLevenshtein, models.FuzzyJaroWinkler, models.FuzzyTokenSort, ""}

	for _, method := range methods {
		for _, p := range pairs {
			ab := Fuzzy(p[0], p[1], method)
			ba := Fuzzy(p[1], p[0], method)
			assert.Equal(t, ab, ba, "method %q not symmetric for %v", method, p)
			assert.GreaterOrEqual(t, ab, 0.0)
			assert.LessOrEqual(t, ab, 1.0)
			assert.Equal(t, 1.0, Fuzzy(p[0], p[0], method))
		}
	}
}

func TestSoundex(t *testing.T) {
	assert.Equal(t, "R163", Soundex("Robert"))
	assert.Equal(t, "R163", Soundex("Rupert"))
	assert.Equal(t, "S530", Soundex("smith"))
	assert.Equal(t, "S530", Soundex("Smyth"))
	assert.Equal(t, "", Soundex("1234"))
}

func TestSoundex_NonASCII(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"émile", "E540"},
		{"Émile", "E540"},
		{"ßmith", "S530"},
		{"łukasz", "L220"},
		{"Ωmega", "Ω520"},
		{"李", "李000"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			code := Soundex(tt.in)
			assert.Equal(t, tt.want, code)
			assert.Equal(t, 4, utf8.RuneCountInString(code))
		})
	}

	assert.Equal(t, Soundex("emile"), Soundex("émile"))
	assert.Equal(t, 1.0, Phonetic("zoë", "zoe"))
}

func TestPhonetic(t *testing.T) {
	assert.Equal(t, 1.0, Phonetic("smith", "smyth"))
	assert.Equal(t, 0.0, Phonetic("smith", "jones"))
	assert.Equal(t, 0.0, Phonetic("", ""))
}

func TestNumeric(t *testing.T) {
	assert.Equal(t, 1.0, Numeric("42", "42", 0))
	assert.InDelta(t, math.Exp(-0.5), Numeric("10", "20", 0), 1e-9)
	assert.InDelta(t, math.Exp(-2), Numeric("0", "2", 1), 1e-9)
	assert.InDelta(t, 1.0, Numeric("$1,000", "1000", 0), 1e-9)
	assert.Equal(t, 0.0, Numeric("abc", "10", 0))
	assert.Equal(t, 0.0, Numeric("", "", 0))
	assert.Equal(t, Numeric("3", "17", 5), Numeric("17", "3", 5))
}

func TestCompare_Dispatch(t *testing.T) {
	assert.Equal(t, 1.0, Compare(models.MatchingRule{Comparator: models.ComparatorExact}, "a", "a"))
	assert.Equal(t, 1.0, Compare(models.MatchingRule{Comparator: models.ComparatorPhonetic}, "smith", "smyth"))
	assert.InDelta(t, 0.9, Compare(models.MatchingRule{Comparator: models.ComparatorFuzzy}, "john smith", "jon smith"), 1e-9)
	assert.InDelta(t, math.Exp(-0.5), Compare(models.MatchingRule{Comparator: models.ComparatorNumeric, NumericScale: 2}, "1", "3"), 1e-9)
	assert.Equal(t, 0.0, Compare(models.MatchingRule{Comparator: "cosine"}, "a", "a"))
}
