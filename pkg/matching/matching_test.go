package matching

import (
	"context"
	"fmt"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/rules"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func person(id string, fields map[string]string) models.EntityRecord {
	values := make(map[string]models.FieldValue, len(fields))
	for k, v := range fields {
		values[k] = models.StringValue(v)
	}
	return models.EntityRecord{ID: id, Type: "person", Fields: values}
}

func scenarioRules(t *testing.T) *rules.RuleSet {
	t.Helper()
	rs, err := rules.New([]models.MatchingRule{
		{Field: "name", Comparator: models.ComparatorFuzzy, Weight: 0.5, Threshold: 0.7, Normalization: []string{"lowercase"}, Enabled: true},
		{Field: "dob", Comparator: models.ComparatorExact, Weight: 0.5, Threshold: 1.0, Enabled: true},
	}, nil)
	require.NoError(t, err)
	return rs
}

func scenarioConfig() models.ResolutionConfig {
	cfg := models.DefaultResolutionConfig()
	cfg.SimilarityThreshold = 0.8
	cfg.PossibleMatchThreshold = 0.6
	cfg.NonMatchThreshold = 0.3
	return cfg
}

var (
	p1 = person("p1", map[string]string{"name": "John Smith", "dob": "1990-01-15"})
	p2 = person("p2", map[string]string{"name": "Jon Smith", "dob": "1990-01-15"})
	p3 = person("p3", map[string]string{"name": "Jane Doe", "dob": "1985-05-20"})
)

func TestScorer_ScenarioA_Match(t *testing.T) {
	s := NewScorer()
	score := s.Score(p1, p2, scenarioRules(t).Enabled(), scenarioConfig())

	assert.InDelta(t, 0.95, score.Overall, 1e-9)
	assert.Equal(t, models.MatchTypeMatch, score.MatchType)
	assert.InDelta(t, 0.9, score.Confidence, 1e-9)
	assert.Equal(t, 2, score.Evaluated)
	assert.InDelta(t, 0.9, score.Details["name"].Similarity, 1e-9)
	assert.True(t, score.Details["dob"].Matched)
}

func TestScorer_ScenarioB_NonMatch(t *testing.T) {
	s := NewScorer()
	score := s.Score(p1, p3, scenarioRules(t).Enabled(), scenarioConfig())

	assert.Less(t, score.Overall, 0.3)
	assert.Equal(t, models.MatchTypeNonMatch, score.MatchType)
	assert.InDelta(t, 1-score.Overall, score.Confidence, 1e-9)
}

func TestScorer_BelowThresholdKeepsWeightInDenominator(t *testing.T) {
	s := NewScorer()
	a := person("a", map[string]string{"name": "John Smith", "dob": "1990-01-15"})
	b := person("b", map[string]string{"name": "John Smith", "dob": "1990-01-16"})

	score := s.Score(a, b, scenarioRules(t).Enabled(), scenarioConfig())

	// dob fails its threshold: it contributes 0 but still counts toward the total weight
	assert.InDelta(t, 0.5, score.Overall, 1e-9)
	assert.Equal(t, 0.0, score.Details["dob"].WeightedScore)
	assert.Equal(t, 0.0, score.Details["dob"].Similarity)
	assert.False(t, score.Details["dob"].Matched)

	// raw similarity is reported even when it is clamped out of the sum
	c := person("c", map[string]string{"name": "John Smith", "dob": "x"})
	d := person("d", map[string]string{"name": "Joan Smith", "dob": "x"})
	score = s.Score(c, d, []models.MatchingRule{
		{Field: "name", Comparator: models.ComparatorFuzzy, Weight: 1, Threshold: 0.95, Enabled: true},
	}, scenarioConfig())
	assert.InDelta(t, 0.9, score.Details["name"].Similarity, 1e-9)
	assert.Equal(t, 0.0, score.Overall)
}

func TestScorer_SkipsFieldsAbsentOnBothSides(t *testing.T) {
	s := NewScorer()
	a := person("a", map[string]string{"name": "John Smith"})
	b := person("b", map[string]string{"name": "John Smith"})

	score := s.Score(a, b, scenarioRules(t).Enabled(), scenarioConfig())
	assert.Equal(t, 1, score.Evaluated)
	assert.Equal(t, 1.0, score.Overall)
	assert.NotContains(t, score.Details, "dob")

	// Present on one side only: evaluated and scored 0
	c := person("c", map[string]string{"name": "John Smith", "dob": "1990-01-15"})
	score = s.Score(a, c, scenarioRules(t).Enabled(), scenarioConfig())
	assert.Equal(t, 2, score.Evaluated)
	assert.InDelta(t, 0.5, score.Overall, 1e-9)
}

func TestScorer_NoRulesEvaluated(t *testing.T) {
	score := NewScorer().Score(p1, p2, nil, scenarioConfig())
	assert.Equal(t, 0.0, score.Overall)
	assert.Equal(t, models.MatchTypeNonMatch, score.MatchType)
	assert.Equal(t, 1.0, score.Confidence)
}

func TestScorer_Symmetry(t *testing.T) {
	s := NewScorer()
	rs, err := rules.New(rules.DefaultRules(), nil)
	require.NoError(t, err)
	records := []models.EntityRecord{
		person("a", map[string]string{"name": "Jonathan Smythe", "email": "js@example.com", "phone": "555 123 4567", "address": "1 Main St"}),
		person("b", map[string]string{"name": "Jon Smith", "email": "JS@example.com", "phone": "(555) 123-4567", "address": "1 Main Street"}),
		person("c", map[string]string{"name": "Smith, Jon", "dob": "1990-01-15"}),
		person("d", map[string]string{"name": "Dwayne", "address": "77 Sunset Blvd Apt 2"}),
	}

	for _, a := range records {
		for _, b := range records {
			cfg := models.DefaultResolutionConfig()
			assert.Equal(t, s.Score(a, b, rs.Enabled(), cfg), s.Score(b, a, rs.Enabled(), cfg), "%s/%s", a.ID, b.ID)

			ab := s.Candidate(a, b, rs.Enabled(), cfg)
			ba := s.Candidate(b, a, rs.Enabled(), cfg)
			assert.Equal(t, ab.Entity1ID, ba.Entity1ID)
			assert.LessOrEqual(t, ab.Entity1ID, ab.Entity2ID)
		}
	}
}

func TestScorer_SelfIdentity(t *testing.T) {
	s := NewScorer()
	rs, err := rules.New(rules.DefaultRules(), nil)
	require.NoError(t, err)

	a := person("a", map[string]string{
		"name":     "María O'Neil",
		"email":    "maria@example.com",
		"phone":    "+44 20 7946 0958",
		"address":  "12 High St",
		"dob":      "1970-02-03",
		"ssn":      "123-45-6789",
		"passport": "X1234567",
	})
	copyOfA := a
	copyOfA.ID = "a-copy"

	score := s.Score(a, copyOfA, rs.Enabled(), models.DefaultResolutionConfig())
	assert.Equal(t, 1.0, score.Overall)
	assert.Equal(t, models.MatchTypeMatch, score.MatchType)
}

func TestConfidence(t *testing.T) {
	assert.Equal(t, 0.9, Confidence(0.97, models.MatchTypeMatch))
	assert.Equal(t, 0.86, Confidence(0.86, models.MatchTypeMatch))
	assert.Equal(t, 0.7, Confidence(0.7, models.MatchTypePossibleMatch))
	assert.InDelta(t, 0.8, Confidence(0.2, models.MatchTypeNonMatch), 1e-9)
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(testLogger())
	entities := []models.EntityRecord{p3, p2, p1}

	result, err := r.Resolve(context.Background(), entities, scenarioRules(t), scenarioConfig(), Options{})
	require.NoError(t, err)

	require.Len(t, result.Candidates, 1)
	c := result.Candidates[0]
	assert.Equal(t, "p1", c.Entity1ID)
	assert.Equal(t, "p2", c.Entity2ID)
	assert.Equal(t, "p1_p2", c.ID)
	assert.Equal(t, models.MatchTypeMatch, c.MatchType)
	assert.Equal(t, "John Smith", c.Entity1Name)
	assert.Equal(t, models.DecisionNone, c.Review.Decision)

	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, 3, result.Statistics.TotalEntities)
	assert.Equal(t, 1, result.Statistics.Candidates)
	assert.Equal(t, 1, result.Statistics.HighConfidenceMatches)
	assert.Equal(t, 1, result.Statistics.ByMatchType[models.MatchTypeMatch])

	// input is untouched
	assert.Equal(t, "p3", entities[0].ID)
	assert.Equal(t, "Jon Smith", entities[1].FieldString("name"))
}

func TestResolver_FloorIsStrict(t *testing.T) {
	rs, err := rules.New([]models.MatchingRule{
		{Field: "name", Comparator: models.ComparatorExact, Weight: 1, Enabled: true},
		{Field: "dob", Comparator: models.ComparatorExact, Weight: 1, Enabled: true},
	}, nil)
	require.NoError(t, err)

	a := person("a", map[string]string{"name": "Ann Lee", "dob": "1990-01-01"})
	b := person("b", map[string]string{"name": "Ann Lee", "dob": "1991-01-01"})

	r := NewResolver(testLogger())
	result, err := r.Resolve(context.Background(), []models.EntityRecord{a, b}, rs, scenarioConfig(), Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Candidates, "a score equal to the floor is discarded")
	assert.Equal(t, 1, result.Statistics.Comparisons)

	result, err = r.Resolve(context.Background(), []models.EntityRecord{a, b}, rs, scenarioConfig().WithMinScore(0.49), Options{})
	require.NoError(t, err)
	assert.Len(t, result.Candidates, 1)
}

func TestResolver_SortedAndDeduplicated(t *testing.T) {
	rs, err := rules.New(rules.DefaultRules(), nil)
	require.NoError(t, err)

	entities := []models.EntityRecord{
		person("e1", map[string]string{"name": "John Smith", "email": "john@acme.com", "phone": "5551234567"}),
		person("e2", map[string]string{"name": "John Smith", "email": "john@acme.com", "phone": "555-123-4567"}),
		person("e3", map[string]string{"name": "Jon Smith", "email": "jon@acme.com", "phone": "5551234567"}),
		person("e4", map[string]string{"name": "John Smyth", "email": "john@acme.com"}),
	}
	cfg := models.DefaultResolutionConfig()
	cfg.MinScore = 0

	result, err := NewResolver(testLogger()).Resolve(context.Background(), entities, rs, cfg, Options{})
	require.NoError(t, err)

	seen := map[string]bool{}
	for i, c := range result.Candidates {
		assert.False(t, seen[c.ID], "pair %s emitted twice", c.ID)
		seen[c.ID] = true
		if i > 0 {
			assert.GreaterOrEqual(t, result.Candidates[i-1].SimilarityScore, c.SimilarityScore)
		}
	}
	assert.Equal(t, 6, result.Statistics.Comparisons)
}

func TestResolver_BlockingSoundness(t *testing.T) {
	rs, err := rules.New(rules.DefaultRules(), nil)
	require.NoError(t, err)

	var entities []models.EntityRecord
	for i := 0; i < 30; i++ {
		entities = append(entities, person(fmt.Sprintf("x%02d", i), map[string]string{
			"name":  fmt.Sprintf("Person %c%c", 'a'+rune(i%26), 'a'+rune((i*7)%26)),
			"phone": fmt.Sprintf("%03d5550000", 100+i),
		}))
	}
	twinA := person("twin-a", map[string]string{"name": "Quentin Zyx", "phone": "9998887777"})
	twinB := person("twin-b", map[string]string{"name": "Quentin Zyx", "phone": "999.888.7777"})
	entities = append(entities, twinA, twinB)

	result, err := NewResolver(testLogger()).Resolve(context.Background(), entities, rs, models.DefaultResolutionConfig(), Options{})
	require.NoError(t, err)

	found := false
	for _, c := range result.Candidates {
		if c.ID == "twin-a_twin-b" {
			found = true
			assert.Equal(t, models.MatchTypeMatch, c.MatchType)
		}
	}
	assert.True(t, found)
	assert.Less(t, result.Statistics.Comparisons, len(entities)*(len(entities)-1)/2)
}

func TestResolver_ThresholdMonotonicity(t *testing.T) {
	rs, err := rules.New(rules.DefaultRules(), nil)
	require.NoError(t, err)
	entities := []models.EntityRecord{
		person("a", map[string]string{"name": "John Smith", "email": "j@x.com"}),
		person("b", map[string]string{"name": "Jon Smith", "email": "j@x.com"}),
		person("c", map[string]string{"name": "Johnny Smith", "email": "j@x.com"}),
		person("d", map[string]string{"name": "John Smithe", "email": "js@x.com"}),
		person("e", map[string]string{"name": "J Smith", "email": "j@x.com"}),
	}

	r := NewResolver(testLogger())
	base := models.DefaultResolutionConfig()
	base.PossibleMatchThreshold = 0.55
	base.NonMatchThreshold = 0.3

	previous := -1
	for _, threshold := range []float64{0.6, 0.7, 0.8, 0.9, 0.95, 1.0} {
		result, err := r.Resolve(context.Background(), entities, rs, base.WithSimilarityThreshold(threshold), Options{})
		require.NoError(t, err)
		matches := result.Statistics.ByMatchType[models.MatchTypeMatch]
		if previous >= 0 {
			assert.LessOrEqual(t, matches, previous, "threshold %v", threshold)
		}
		previous = matches
	}
}

func TestResolver_SkipsMalformedRecords(t *testing.T) {
	bad := person("p4", map[string]string{"name": "John Smith"})
	var unsupported models.FieldValue
	require.NoError(t, unsupported.UnmarshalJSON([]byte(`true`)))
	bad.Fields["vip"] = unsupported

	entities := []models.EntityRecord{
		p1,
		{ID: "", Fields: map[string]models.FieldValue{"name": models.StringValue("John Smith")}},
		bad,
		person("p1", map[string]string{"name": "Duplicate"}),
		p2,
	}

	result, err := NewResolver(testLogger()).Resolve(context.Background(), entities, scenarioRules(t), scenarioConfig(), Options{})
	require.NoError(t, err)

	require.Len(t, result.Warnings, 3)
	assert.Equal(t, 1, result.Warnings[0].Index)
	assert.Equal(t, "p4", result.Warnings[1].EntityID)
	assert.Contains(t, result.Warnings[2].Message, "duplicate")
	assert.Equal(t, 3, result.Statistics.SkippedEntities)

	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "p1_p2", result.Candidates[0].ID)
}

func TestResolver_EntityTypeFilter(t *testing.T) {
	org := person("o1", map[string]string{"name": "John Smith", "dob": "1990-01-15"})
	org.Type = "organization"

	r := NewResolver(testLogger())
	result, err := r.Resolve(context.Background(), []models.EntityRecord{p1, p2, org}, scenarioRules(t), scenarioConfig(), Options{EntityType: "organization"})
	require.NoError(t, err)
	assert.Empty(t, result.Candidates)

	result, err = r.Resolve(context.Background(), []models.EntityRecord{p1, p2, org}, scenarioRules(t), scenarioConfig(), Options{})
	require.NoError(t, err)
	require.Len(t, result.Candidates, 1, "records of different types never share a block")
}

func TestResolver_EmptyInput(t *testing.T) {
	result, err := NewResolver(testLogger()).Resolve(context.Background(), nil, scenarioRules(t), scenarioConfig(), Options{})
	require.Error(t, err)
	assert.True(t, ererrors.IsEmptyInputError(err))
	require.NotNil(t, result)
	assert.Empty(t, result.Candidates)
}

func TestResolver_RejectsInvalidConfig(t *testing.T) {
	cfg := scenarioConfig()
	cfg.PossibleMatchThreshold = 0.9

	_, err := NewResolver(testLogger()).Resolve(context.Background(), []models.EntityRecord{p1, p2}, scenarioRules(t), cfg, Options{})
	assert.True(t, ererrors.IsConfigurationError(err))
}

func TestResolver_ResolvePair(t *testing.T) {
	r := NewResolver(testLogger())

	c, err := r.ResolvePair(p2, p1, scenarioRules(t), scenarioConfig())
	require.NoError(t, err)
	assert.Equal(t, "p1_p2", c.ID)
	assert.Equal(t, "p1", c.Entity1ID)
	assert.Equal(t, models.MatchTypeMatch, c.MatchType)
	assert.InDelta(t, 0.95, c.SimilarityScore, 1e-9)
	assert.False(t, c.CreatedAt.IsZero())

	c, err = r.ResolvePair(p1, p3, scenarioRules(t), scenarioConfig())
	require.NoError(t, err)
	assert.Equal(t, models.MatchTypeNonMatch, c.MatchType)
}

func TestResolver_ResolvePairRejects(t *testing.T) {
	r := NewResolver(testLogger())
	badCfg := scenarioConfig()
	badCfg.PossibleMatchThreshold = 0.9

	tests := []struct {
		name string
		a, b models.EntityRecord
		cfg  models.ResolutionConfig
	}{
		{"invalid config", p1, p2, badCfg},
		{"missing id", person("", map[string]string{"name": "x"}), p2, scenarioConfig()},
		{"same record", p1, p1, scenarioConfig()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.ResolvePair(tt.a, tt.b, scenarioRules(t), tt.cfg)
			assert.True(t, ererrors.IsConfigurationError(err), err)
		})
	}
}

func TestResolver_ParallelMatchesSequential(t *testing.T) {
	rs, err := rules.New(rules.DefaultRules(), nil)
	require.NoError(t, err)

	var entities []models.EntityRecord
	names := []string{"John Smith", "Jon Smith", "Jane Smith", "John Smyth", "Joan Smith", "Mary Jones", "Marie Jones", "Mary Jonas"}
	for i, name := range names {
		entities = append(entities, person(fmt.Sprintf("id%d", i), map[string]string{
			"name":  name,
			"email": fmt.Sprintf("user%d@example.com", i%3),
		}))
	}

	r := NewResolver(testLogger())
	sequential := models.DefaultResolutionConfig()
	sequential.Workers = 1
	sequential.MinScore = 0
	parallel := sequential
	parallel.Workers = 8

	seqResult, err := r.Resolve(context.Background(), entities, rs, sequential, Options{})
	require.NoError(t, err)
	parResult, err := r.Resolve(context.Background(), entities, rs, parallel, Options{})
	require.NoError(t, err)

	require.Equal(t, len(seqResult.Candidates), len(parResult.Candidates))
	for i := range seqResult.Candidates {
		assert.Equal(t, seqResult.Candidates[i].ID, parResult.Candidates[i].ID)
		assert.Equal(t, seqResult.Candidates[i].SimilarityScore, parResult.Candidates[i].SimilarityScore)
	}
}

func TestResolver_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewResolver(testLogger()).Resolve(ctx, []models.EntityRecord{p1, p2}, scenarioRules(t), scenarioConfig(), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}
