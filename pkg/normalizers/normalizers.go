// Package normalizers provides deterministic field cleanup applied before comparison
package normalizers

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalizer is a function that normalizes a string value
type Normalizer func(string) string

// Step names accepted in a rule's normalization list
const (
	StepLowercase          = "lowercase"
	StepUppercase          = "uppercase"
	StepTrim               = "trim"
	StepRemoveWhitespace   = "remove_whitespace"
	StepRemovePunctuation  = "remove_punctuation"
	StepRemoveSpecialChars = "remove_special_chars"
	StepPhone              = "phone"
	StepAddress            = "address"
	StepStripAccents       = "strip_accents"
	StepDigitsOnly         = "digits_only"
)

// registry holds all registered normalizers. It is populated in init and read-only afterwards.
var registry = make(map[string]Normalizer)

func init() {
	register(StepLowercase, Lowercase)
	register(StepUppercase, Uppercase)
	register(StepTrim, Trim)
	register(StepRemoveWhitespace, RemoveWhitespace)
	register(StepRemovePunctuation, RemovePunctuation)
	register(StepRemoveSpecialChars, RemoveSpecialChars)
	register(StepPhone, CanonicalPhone)
	register(StepAddress, CanonicalAddress)
	register(StepStripAccents, StripAccents)
	register(StepDigitsOnly, DigitsOnly)

	// Aliases used by older rule definitions
	register("remove_spaces", RemoveWhitespace)
	register("normalize_phone", CanonicalPhone)
	register("standardize_address", CanonicalAddress)
}

func register(name string, fn Normalizer) {
	registry[name] = fn
}

// Get retrieves a normalizer by name
func Get(name string) (Normalizer, bool) {
	fn, ok := registry[name]
	return fn, ok
}

// Names returns the registered step names in sorted order
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate returns an error naming the first unknown step
func Validate(steps []string) error {
	for _, step := range steps {
		if _, ok := Get(step); !ok {
			return fmt.Errorf("unknown normalization step %q (known: %s)", step, strings.Join(Names(), ", "))
		}
	}
	return nil
}

// Apply applies a named normalizer to a value. Unknown names leave the value unchanged.
func Apply(value, normalizer string) string {
	fn, ok := Get(normalizer)
	if !ok {
		return value
	}
	return fn(value)
}

// ApplyChain applies the steps in order and trims the result
func ApplyChain(value string, steps ...string) string {
	result := value
	for _, name := range steps {
		result = Apply(result, name)
	}
	return strings.TrimSpace(result)
}

// Built-in normalizers

// Lowercase converts string to lowercase
func Lowercase(s string) string {
	return strings.ToLower(s)
}

// Uppercase converts string to uppercase
func Uppercase(s string) string {
	return strings.ToUpper(s)
}

// Trim removes leading and trailing whitespace
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// RemoveWhitespace removes all whitespace characters
func RemoveWhitespace(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsSpace(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// RemovePunctuation removes all punctuation characters
func RemovePunctuation(s string) string {
	var result strings.Builder
	for _, r := range s {
		if !unicode.IsPunct(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// RemoveSpecialChars keeps letters, digits, underscores and whitespace
func RemoveSpecialChars(s string) string {
	var result strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '_' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// DigitsOnly keeps only digit characters
func DigitsOnly(s string) string {
	var result strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// StripAccents removes combining marks, so "José" becomes "Jose"
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return result
}

// CanonicalPhone formats a phone number by digit count:
//
//	10 digits             -> (XXX) XXX-XXXX
//	>10 digits, leading 1 -> +1 (XXX) XXX-XXXX
//	>10 digits otherwise  -> +XX XXX XXX XXX...
//
// Anything shorter is reduced to its digits.
func CanonicalPhone(s string) string {
	digits := DigitsOnly(s)
	switch {
	case len(digits) == 10:
		return fmt.Sprintf("(%s) %s-%s", digits[:3], digits[3:6], digits[6:])
	case len(digits) > 10 && digits[0] == '1':
		return fmt.Sprintf("+%s (%s) %s-%s", digits[:1], digits[1:4], digits[4:7], digits[7:])
	case len(digits) > 10:
		return fmt.Sprintf("+%s %s %s %s", digits[:2], digits[2:5], digits[5:8], digits[8:])
	default:
		return digits
	}
}

var addressAbbreviations = map[string]string{
	"st":   "street",
	"rd":   "road",
	"ave":  "avenue",
	"blvd": "boulevard",
	"apt":  "suite",
	"ste":  "suite",
}

// CanonicalAddress lowercases an address and expands common abbreviations word by word
func CanonicalAddress(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, word := range words {
		if full, ok := addressAbbreviations[word]; ok {
			words[i] = full
		}
	}
	return strings.Join(words, " ")
}
