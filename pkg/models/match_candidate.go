package models

import "time"

// MatchType is the classification band of a scored pair
type MatchType string

const (
	MatchTypeMatch         MatchType = "match"
	MatchTypePossibleMatch MatchType = "possible_match"
	MatchTypeNonMatch      MatchType = "non_match"
)

// Decision is a reviewer's verdict on a candidate
type Decision string

const (
	DecisionNone    Decision = "none"
	DecisionConfirm Decision = "confirm"
	DecisionReject  Decision = "reject"
	DecisionDefer   Decision = "defer"
)

// FieldScore is one rule's contribution to a pair score
type FieldScore struct {
	Comparator    ComparatorKind `json:"comparator"`
	Similarity    float64        `json:"similarity"`
	Weight        float64        `json:"weight"`
	WeightedScore float64        `json:"weighted_score"`
	Threshold     float64        `json:"threshold"`
	Matched       bool           `json:"matched"`
}

// ReviewState is the mutable part of a candidate, owned by the review ledger
type ReviewState struct {
	Decision   Decision   `json:"decision" db:"decision"`
	ReviewedBy *string    `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty" db:"reviewed_at"`
	Notes      *string    `json:"notes,omitempty" db:"notes"`
}

// MatchCandidate is one scored pair. Entity1ID always sorts before Entity2ID.
type MatchCandidate struct {
	ID              string                `json:"id"`
	Entity1ID       string                `json:"entity1_id"`
	Entity2ID       string                `json:"entity2_id"`
	SimilarityScore float64               `json:"similarity_score"`
	MatchType       MatchType             `json:"match_type"`
	Confidence      float64               `json:"confidence"`
	MatchDetails    map[string]FieldScore `json:"match_details"`
	Review          ReviewState           `json:"review"`
	CreatedAt       time.Time             `json:"created_at"`

	// Display fields carried for review and export
	Entity1Name string `json:"entity1_name,omitempty"`
	Entity2Name string `json:"entity2_name,omitempty"`
	Entity1Type string `json:"entity1_type,omitempty"`
	Entity2Type string `json:"entity2_type,omitempty"`
}

// CandidateID builds the stable identifier of an unordered pair
func CandidateID(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "_" + b
}

// Accepted reports whether the candidate counts as an edge for clustering.
// A human decision always wins; without one the classifier's match label is used.
func (c MatchCandidate) Accepted() bool {
	switch c.Review.Decision {
	case DecisionConfirm:
		return true
	case DecisionNone, "":
		return c.MatchType == MatchTypeMatch
	default:
		return false
	}
}

// ReviewDecisionRequest records a reviewer's verdict on one candidate
type ReviewDecisionRequest struct {
	Decision   Decision `json:"decision" validate:"required,oneof=confirm reject defer none"`
	ReviewedBy string   `json:"reviewed_by"`
	Notes      *string  `json:"notes,omitempty"`
}

// BulkReviewRequest applies a decision to every candidate on one side of a threshold
type BulkReviewRequest struct {
	Threshold  float64 `json:"threshold" validate:"gte=0,lte=1"`
	ReviewedBy string  `json:"reviewed_by"`
}

// ReviewStatistics aggregates the ledger
type ReviewStatistics struct {
	Total            int               `json:"total"`
	ByDecision       map[Decision]int  `json:"by_decision"`
	ByMatchType      map[MatchType]int `json:"by_match_type"`
	MeanConfidence   float64           `json:"mean_confidence"`
	MedianConfidence float64           `json:"median_confidence"`
	ConfirmationRate float64           `json:"confirmation_rate"`
}
