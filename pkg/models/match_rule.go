package models

// ComparatorKind defines the similarity algorithm a rule applies
type ComparatorKind string

const (
	ComparatorExact    ComparatorKind = "exact"    // Equality of normalized values
	ComparatorFuzzy    ComparatorKind = "fuzzy"    // Edit distance family
	ComparatorPhonetic ComparatorKind = "phonetic" // Soundex code equality
	ComparatorNumeric  ComparatorKind = "numeric"  // Gaussian decay on numeric distance
)

// FuzzyMethod selects the algorithm used by fuzzy rules
type FuzzyMethod string

const (
	FuzzyLevenshtein FuzzyMethod = "levenshtein"
	FuzzyJaroWinkler FuzzyMethod = "jaro_winkler"
	FuzzyTokenSort   FuzzyMethod = "token_sort"
)

// DefaultNumericScale is the Gaussian scale used when a numeric rule sets none
const DefaultNumericScale = 10.0

// MatchingRule defines how one field contributes to a pair's similarity
type MatchingRule struct {
	Field         string         `json:"field" yaml:"field" validate:"required"`
	Comparator    ComparatorKind `json:"comparator" yaml:"comparator" validate:"required,oneof=exact fuzzy phonetic numeric"`
	Weight        float64        `json:"weight" yaml:"weight" validate:"gte=0"`
	Threshold     float64        `json:"threshold" yaml:"threshold" validate:"gte=0,lte=1"`
	Normalization []string       `json:"normalization,omitempty" yaml:"normalization,omitempty"`
	Enabled       bool           `json:"enabled" yaml:"enabled"`
	FuzzyMethod   FuzzyMethod    `json:"fuzzy_method,omitempty" yaml:"fuzzy_method,omitempty" validate:"omitempty,oneof=levenshtein jaro_winkler token_sort"`
	NumericScale  float64        `json:"numeric_scale,omitempty" yaml:"numeric_scale,omitempty" validate:"gte=0"`
}

// UpdateMatchingRuleRequest patches a single rule
type UpdateMatchingRuleRequest struct {
	Weight        *float64     `json:"weight,omitempty" validate:"omitempty,gte=0"`
	Threshold     *float64     `json:"threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	Enabled       *bool        `json:"enabled,omitempty"`
	Normalization []string     `json:"normalization,omitempty"`
	FuzzyMethod   *FuzzyMethod `json:"fuzzy_method,omitempty"`
	NumericScale  *float64     `json:"numeric_scale,omitempty" validate:"omitempty,gte=0"`
}

// ReplaceMatchingRulesRequest replaces the whole active rule set
type ReplaceMatchingRulesRequest struct {
	Rules []MatchingRule `json:"rules" validate:"required,dive"`
}

// ResolutionConfig holds the global classification thresholds. It is a value
// type: overrides produce a copy rather than mutating a shared instance.
type ResolutionConfig struct {
	SimilarityThreshold    float64            `json:"similarity_threshold"`
	PossibleMatchThreshold float64            `json:"possible_match_threshold"`
	NonMatchThreshold      float64            `json:"non_match_threshold"`
	MinScore               float64            `json:"min_score"`
	DefaultWeights         map[string]float64 `json:"default_weights,omitempty"`
	// MaxBlockSize skips blocks larger than this many members (0 = unlimited)
	MaxBlockSize int `json:"max_block_size,omitempty"`
	// Workers bounds concurrent block scoring (0 or 1 = sequential)
	Workers int `json:"workers,omitempty"`
}

// DefaultResolutionConfig returns the stock thresholds and field weights
func DefaultResolutionConfig() ResolutionConfig {
	return ResolutionConfig{
		SimilarityThreshold:    0.85,
		PossibleMatchThreshold: 0.65,
		NonMatchThreshold:      0.3,
		MinScore:               0.5,
		DefaultWeights: map[string]float64{
			"name":    0.4,
			"dob":     0.3,
			"address": 0.2,
			"phone":   0.1,
		},
		Workers: 4,
	}
}

// WithSimilarityThreshold returns a copy with the match threshold replaced
func (c ResolutionConfig) WithSimilarityThreshold(v float64) ResolutionConfig {
	c.SimilarityThreshold = v
	return c
}

// WithPossibleMatchThreshold returns a copy with the possible-match threshold replaced
func (c ResolutionConfig) WithPossibleMatchThreshold(v float64) ResolutionConfig {
	c.PossibleMatchThreshold = v
	return c
}

// WithMinScore returns a copy with the consideration floor replaced
func (c ResolutionConfig) WithMinScore(v float64) ResolutionConfig {
	c.MinScore = v
	return c
}
