package matching

import (
	"math"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
	"github.com/Ramsey-B/clover/pkg/similarity"
)

// maxMatchConfidence caps the confidence reported for pairs classified as a match
const maxMatchConfidence = 0.9

// PairScore is the outcome of scoring one pair
type PairScore struct {
	Overall    float64
	MatchType  models.MatchType
	Confidence float64
	Details    map[string]models.FieldScore
	// Evaluated is the number of rules that contributed to the denominator
	Evaluated int
}

// Scorer computes weighted multi-field similarity between two records
type Scorer struct{}

// NewScorer creates a new Scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score compares a and b with every enabled rule whose field is present on at
// least one side.
//
// A field scoring below its rule threshold contributes 0 but its weight stays in
// the denominator, so a failed field pulls the overall score down instead of
// being ignored. The raw similarity is still reported in Details.
func (s *Scorer) Score(a, b models.EntityRecord, rules []models.MatchingRule, cfg models.ResolutionConfig) PairScore {
	details := make(map[string]models.FieldScore, len(rules))
	var weightedSum, weightSum float64
	evaluated := 0

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		va, okA := a.Field(rule.Field)
		vb, okB := b.Field(rule.Field)
		if !okA && !okB {
			continue
		}

		na := normalizers.ApplyChain(va.String(), rule.Normalization...)
		nb := normalizers.ApplyChain(vb.String(), rule.Normalization...)
		sim := similarity.Compare(rule, na, nb)

		matched := sim >= rule.Threshold
		contribution := 0.0
		if matched {
			contribution = sim * rule.Weight
		}

		weightedSum += contribution
		weightSum += rule.Weight
		evaluated++

		details[rule.Field] = models.FieldScore{
			Comparator:    rule.Comparator,
			Similarity:    sim,
			Weight:        rule.Weight,
			WeightedScore: contribution,
			Threshold:     rule.Threshold,
			Matched:       matched,
		}
	}

	overall := 0.0
	if weightSum > 0 {
		overall = math.Min(1.0, weightedSum/weightSum)
	}

	matchType := Classify(overall, cfg)
	return PairScore{
		Overall:    overall,
		MatchType:  matchType,
		Confidence: Confidence(overall, matchType),
		Details:    details,
		Evaluated:  evaluated,
	}
}

// Candidate scores a pair and packages it as a MatchCandidate with the smaller id first
func (s *Scorer) Candidate(a, b models.EntityRecord, rules []models.MatchingRule, cfg models.ResolutionConfig) models.MatchCandidate {
	if b.ID < a.ID {
		a, b = b, a
	}
	score := s.Score(a, b, rules, cfg)
	return models.MatchCandidate{
		ID:              models.CandidateID(a.ID, b.ID),
		Entity1ID:       a.ID,
		Entity2ID:       b.ID,
		SimilarityScore: score.Overall,
		MatchType:       score.MatchType,
		Confidence:      score.Confidence,
		MatchDetails:    score.Details,
		Review:          models.ReviewState{Decision: models.DecisionNone},
		Entity1Name:     a.FieldString("name"),
		Entity2Name:     b.FieldString("name"),
		Entity1Type:     a.Type,
		Entity2Type:     b.Type,
	}
}

// Classify maps an overall similarity onto the configured bands
func Classify(overall float64, cfg models.ResolutionConfig) models.MatchType {
	switch {
	case overall >= cfg.SimilarityThreshold:
		return models.MatchTypeMatch
	case overall >= cfg.PossibleMatchThreshold:
		return models.MatchTypePossibleMatch
	default:
		return models.MatchTypeNonMatch
	}
}

// Confidence derives the reported confidence from the score and its band.
// Matches are capped at 0.9 and non-matches report confidence in the negative verdict.
func Confidence(overall float64, matchType models.MatchType) float64 {
	switch matchType {
	case models.MatchTypeMatch:
		return math.Min(maxMatchConfidence, overall)
	case models.MatchTypePossibleMatch:
		return overall
	default:
		return 1 - overall
	}
}
