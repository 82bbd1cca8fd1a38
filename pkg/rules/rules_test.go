package rules

import (
	"context"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestNew_DefaultRulesAreValid(t *testing.T) {
	rs, err := New(DefaultRules(), nil)
	require.NoError(t, err)
	assert.Equal(t, 7, rs.Len())
	assert.Len(t, rs.Enabled(), 7)

	name, ok := rs.Get("name")
	require.True(t, ok)
	assert.Equal(t, models.FuzzyJaroWinkler, name.FuzzyMethod)
}

func TestNew_RejectsInvalidRules(t *testing.T) {
	tests := []struct {
		name    string
		rule    models.MatchingRule
		setting string
	}{
		{
			name:    "unknown comparator",
			rule:    models.MatchingRule{Field: "name", Comparator: "cosine", Weight: 1, Threshold: 0.5},
			setting: "Comparator",
		},
		{
			name:    "negative weight",
			rule:    models.MatchingRule{Field: "name", Comparator: models.ComparatorExact, Weight: -0.1, Threshold: 0.5},
			setting: "Weight",
		},
		{
			name:    "threshold above one",
			rule:    models.MatchingRule{Field: "name", Comparator: models.ComparatorExact, Weight: 1, Threshold: 1.2},
			setting: "Threshold",
		},
		{
			name:    "unknown fuzzy method",
			rule:    models.MatchingRule{Field: "name", Comparator: models.ComparatorFuzzy, FuzzyMethod: "cosine", Weight: 1},
			setting: "FuzzyMethod",
		},
		{
			name:    "unknown normalization step",
			rule:    models.MatchingRule{Field: "name", Comparator: models.ComparatorExact, Weight: 1, Normalization: []string{"metaphone"}},
			setting: "normalization",
		},
		{
			name:    "missing field",
			rule:    models.MatchingRule{Comparator: models.ComparatorExact, Weight: 1},
			setting: "Field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New([]models.MatchingRule{tt.rule}, nil)
			require.Error(t, err)
			require.True(t, ererrors.IsConfigurationError(err))

			var configErr *ererrors.ConfigurationError
			require.ErrorAs(t, err, &configErr)
			assert.Equal(t, tt.setting, configErr.Setting)
		})
	}
}

func TestNew_RejectsDuplicateFields(t *testing.T) {
	_, err := New([]models.MatchingRule{
		{Field: "name", Comparator: models.ComparatorExact, Weight: 1},
		{Field: "name", Comparator: models.ComparatorFuzzy, Weight: 1},
	}, nil)
	assert.True(t, ererrors.IsConfigurationError(err))
}

func TestNew_AppliesDefaultWeights(t *testing.T) {
	rs, err := New([]models.MatchingRule{
		{Field: "dob", Comparator: models.ComparatorExact, Threshold: 1, Enabled: true},
		{Field: "city", Comparator: models.ComparatorExact, Enabled: true},
	}, models.DefaultResolutionConfig().DefaultWeights)
	require.NoError(t, err)

	dob, _ := rs.Get("dob")
	assert.Equal(t, 0.3, dob.Weight)
	city, _ := rs.Get("city")
	assert.Equal(t, 0.0, city.Weight)
}

func TestRuleSet_IsImmutable(t *testing.T) {
	input := []models.MatchingRule{
		{Field: "name", Comparator: models.ComparatorExact, Weight: 1, Normalization: []string{"lowercase"}, Enabled: true},
	}
	rs, err := New(input, nil)
	require.NoError(t, err)

	input[0].Normalization[0] = "uppercase"
	out := rs.Rules()
	out[0].Weight = 99

	rule, _ := rs.Get("name")
	assert.Equal(t, []string{"lowercase"}, rule.Normalization)
	assert.Equal(t, 1.0, rule.Weight)
}

func TestValidateConfig(t *testing.T) {
	require.NoError(t, ValidateConfig(models.DefaultResolutionConfig()))

	tests := []struct {
		name    string
		mutate  func(c *models.ResolutionConfig)
		setting string
	}{
		{"similarity above one", func(c *models.ResolutionConfig) { c.SimilarityThreshold = 1.1 }, "similarity_threshold"},
		{"negative floor", func(c *models.ResolutionConfig) { c.MinScore = -0.1 }, "min_score"},
		{"non match not below possible", func(c *models.ResolutionConfig) { c.NonMatchThreshold = 0.65 }, "non_match_threshold"},
		{"possible not below similarity", func(c *models.ResolutionConfig) { c.PossibleMatchThreshold = 0.9 }, "possible_match_threshold"},
		{"negative default weight", func(c *models.ResolutionConfig) { c.DefaultWeights = map[string]float64{"name": -1} }, "default_weights"},
		{"negative workers", func(c *models.ResolutionConfig) { c.Workers = -1 }, "workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := models.DefaultResolutionConfig()
			tt.mutate(&cfg)

			err := ValidateConfig(cfg)
			var configErr *ererrors.ConfigurationError
			require.ErrorAs(t, err, &configErr)
			assert.Equal(t, tt.setting, configErr.Setting)
		})
	}
}

func TestRegistry_ReplaceKeepsPreviousOnError(t *testing.T) {
	ctx := context.Background()
	reg, err := NewRegistry(DefaultRules(), nil, testLogger())
	require.NoError(t, err)
	before := reg.Current()

	_, err = reg.Replace(ctx, []models.MatchingRule{{Field: "name", Comparator: "bogus", Weight: 1}})
	require.Error(t, err)
	assert.Same(t, before, reg.Current())

	next, err := reg.Replace(ctx, []models.MatchingRule{{Field: "name", Comparator: models.ComparatorExact, Weight: 1, Enabled: true}})
	require.NoError(t, err)
	assert.Same(t, next, reg.Current())
	assert.Equal(t, 7, before.Len(), "earlier snapshot is unchanged")
}

func TestRegistry_Update(t *testing.T) {
	ctx := context.Background()
	reg, err := NewRegistry(DefaultRules(), nil, testLogger())
	require.NoError(t, err)

	weight := 0.7
	rs, err := reg.Update(ctx, "email", models.UpdateMatchingRuleRequest{Weight: &weight})
	require.NoError(t, err)
	email, _ := rs.Get("email")
	assert.Equal(t, 0.7, email.Weight)

	rs, err = reg.SetEnabled(ctx, "ssn", false)
	require.NoError(t, err)
	assert.Len(t, rs.Enabled(), 6)

	bad := 2.0
	_, err = reg.Update(ctx, "email", models.UpdateMatchingRuleRequest{Threshold: &bad})
	assert.True(t, ererrors.IsConfigurationError(err))

	_, err = reg.Update(ctx, "nickname", models.UpdateMatchingRuleRequest{Weight: &weight})
	assert.True(t, ererrors.IsConfigurationError(err))
}

func TestRegistry_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	reg, err := NewRegistry(DefaultRules(), nil, testLogger())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = reg.SetEnabled(ctx, "passport", i%2 == 0)
			_ = reg.Current().Enabled()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 7, reg.Current().Len())
}
