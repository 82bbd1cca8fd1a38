// Package rules holds the validated matching rule set and resolution thresholds.
package rules

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	ererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// RuleSet is an immutable, validated list of matching rules. Once built it is
// safe to share between concurrent batch runs.
type RuleSet struct {
	rules   []models.MatchingRule
	byField map[string]int
}

// New validates the rules and builds a RuleSet. A rule with weight 0 whose
// field appears in defaultWeights takes the default weight.
func New(rules []models.MatchingRule, defaultWeights map[string]float64) (*RuleSet, error) {
	rs := &RuleSet{
		rules:   make([]models.MatchingRule, 0, len(rules)),
		byField: make(map[string]int, len(rules)),
	}

	for _, rule := range rules {
		if rule.Weight == 0 {
			if w, ok := defaultWeights[rule.Field]; ok {
				rule.Weight = w
			}
		}
		if err := ValidateRule(rule); err != nil {
			return nil, err
		}
		if _, exists := rs.byField[rule.Field]; exists {
			return nil, ererrors.NewConfigurationError("duplicate rule for field").WithRule(rule.Field)
		}
		rule.Normalization = append([]string(nil), rule.Normalization...)
		rs.byField[rule.Field] = len(rs.rules)
		rs.rules = append(rs.rules, rule)
	}

	return rs, nil
}

// ValidateRule checks a single rule and reports the offending setting
func ValidateRule(rule models.MatchingRule) error {
	if math.IsNaN(rule.Weight) || math.IsInf(rule.Weight, 0) {
		return ererrors.NewConfigurationError("weight must be a finite number").WithRule(rule.Field).WithSetting("weight")
	}
	if math.IsNaN(rule.Threshold) {
		return ererrors.NewConfigurationError("threshold must be a number").WithRule(rule.Field).WithSetting("threshold")
	}

	if err := validate.Struct(rule); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return ererrors.NewConfigurationErrorf("rule '%s' expected '%s', got '%v'", fe.Tag(), fe.Param(), fe.Value()).
				WithRule(rule.Field).
				WithSetting(fe.Field())
		}
		return ererrors.NewConfigurationError(err.Error()).WithRule(rule.Field)
	}

	if err := normalizers.Validate(rule.Normalization); err != nil {
		return ererrors.NewConfigurationError(err.Error()).WithRule(rule.Field).WithSetting("normalization")
	}

	return nil
}

// ValidateConfig checks threshold ranges and ordering:
// non_match < possible_match < similarity, all within [0,1].
func ValidateConfig(cfg models.ResolutionConfig) error {
	bounded := []struct {
		name  string
		value float64
	}{
		{"similarity_threshold", cfg.SimilarityThreshold},
		{"possible_match_threshold", cfg.PossibleMatchThreshold},
		{"non_match_threshold", cfg.NonMatchThreshold},
		{"min_score", cfg.MinScore},
	}
	for _, b := range bounded {
		if math.IsNaN(b.value) || b.value < 0 || b.value > 1 {
			return ererrors.NewConfigurationErrorf("must be within [0,1], got %v", b.value).WithSetting(b.name)
		}
	}

	if cfg.NonMatchThreshold >= cfg.PossibleMatchThreshold {
		return ererrors.NewConfigurationErrorf("non_match_threshold (%v) must be below possible_match_threshold (%v)",
			cfg.NonMatchThreshold, cfg.PossibleMatchThreshold).WithSetting("non_match_threshold")
	}
	if cfg.PossibleMatchThreshold >= cfg.SimilarityThreshold {
		return ererrors.NewConfigurationErrorf("possible_match_threshold (%v) must be below similarity_threshold (%v)",
			cfg.PossibleMatchThreshold, cfg.SimilarityThreshold).WithSetting("possible_match_threshold")
	}

	for field, w := range cfg.DefaultWeights {
		if math.IsNaN(w) || w < 0 {
			return ererrors.NewConfigurationErrorf("default weight must be non-negative, got %v", w).WithField(field).WithSetting("default_weights")
		}
	}
	if cfg.MaxBlockSize < 0 {
		return ererrors.NewConfigurationError("must not be negative").WithSetting("max_block_size")
	}
	if cfg.Workers < 0 {
		return ererrors.NewConfigurationError("must not be negative").WithSetting("workers")
	}

	return nil
}

// Rules returns a copy of every rule, enabled or not, in order
func (rs *RuleSet) Rules() []models.MatchingRule {
	out := make([]models.MatchingRule, len(rs.rules))
	for i, rule := range rs.rules {
		rule.Normalization = append([]string(nil), rule.Normalization...)
		out[i] = rule
	}
	return out
}

// Enabled returns the enabled rules in order. The returned slice must not be modified.
func (rs *RuleSet) Enabled() []models.MatchingRule {
	enabled := make([]models.MatchingRule, 0, len(rs.rules))
	for _, rule := range rs.rules {
		if rule.Enabled {
			enabled = append(enabled, rule)
		}
	}
	return enabled
}

// Get returns the rule for a field
func (rs *RuleSet) Get(field string) (models.MatchingRule, bool) {
	i, ok := rs.byField[field]
	if !ok {
		return models.MatchingRule{}, false
	}
	return rs.rules[i], true
}

// Len returns the number of rules
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

func (rs *RuleSet) String() string {
	return fmt.Sprintf("RuleSet(%d rules, %d enabled)", len(rs.rules), len(rs.Enabled()))
}

// DefaultRules returns the stock rules for person-like records
func DefaultRules() []models.MatchingRule {
	return []models.MatchingRule{
		{
			Field:         "name",
			Comparator:    models.ComparatorFuzzy,
			FuzzyMethod:   models.FuzzyJaroWinkler,
			Weight:        0.4,
			Threshold:     0.8,
			Normalization: []string{normalizers.StepLowercase, normalizers.StepRemoveSpecialChars},
			Enabled:       true,
		},
		{
			Field:         "email",
			Comparator:    models.ComparatorExact,
			Weight:        0.3,
			Threshold:     1.0,
			Normalization: []string{normalizers.StepLowercase},
			Enabled:       true,
		},
		{
			Field:         "phone",
			Comparator:    models.ComparatorExact,
			Weight:        0.2,
			Threshold:     0.9,
			Normalization: []string{normalizers.StepPhone},
			Enabled:       true,
		},
		{
			Field:         "address",
			Comparator:    models.ComparatorFuzzy,
			FuzzyMethod:   models.FuzzyLevenshtein,
			Weight:        0.2,
			Threshold:     0.7,
			Normalization: []string{normalizers.StepLowercase, normalizers.StepAddress},
			Enabled:       true,
		},
		{Field: "dob", Comparator: models.ComparatorExact, Weight: 0.1, Threshold: 1.0, Enabled: true},
		{Field: "ssn", Comparator: models.ComparatorExact, Weight: 0.1, Threshold: 1.0, Enabled: true},
		{Field: "passport", Comparator: models.ComparatorExact, Weight: 0.1, Threshold: 1.0, Enabled: true},
	}
}
