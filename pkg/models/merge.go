package models

import "time"

// MergeStrategyType defines how a cluster is collapsed into one record
type MergeStrategyType string

const (
	// MergeStrategyPreferEntity1 uses the base record's value, falling back to the others
	MergeStrategyPreferEntity1 MergeStrategyType = "prefer_entity1"
	// MergeStrategyPreferEntity2 uses the second record's value, falling back to the others
	MergeStrategyPreferEntity2 MergeStrategyType = "prefer_entity2"
	// MergeStrategyCombine keeps equal values and records every disagreement as a conflict
	MergeStrategyCombine MergeStrategyType = "combine"
	// MergeStrategyMostRecent uses the value from the most recently updated record
	MergeStrategyMostRecent MergeStrategyType = "most_recent"
)

// ValidMergeStrategies lists the accepted strategy names
var ValidMergeStrategies = []MergeStrategyType{
	MergeStrategyPreferEntity1,
	MergeStrategyPreferEntity2,
	MergeStrategyCombine,
	MergeStrategyMostRecent,
}

// MergeConflict is stored in place of a value when members disagree under combine
type MergeConflict struct {
	Conflict bool  `json:"conflict"`
	Values   []any `json:"values"`
}

// Cluster is a set of entity ids judged to denote one real-world entity
type Cluster struct {
	ID           string   `json:"id"`
	EntityIDs    []string `json:"entity_ids"`
	CandidateIDs []string `json:"candidate_ids"`
}

// CanonicalEntity is the merged view of a cluster
type CanonicalEntity struct {
	ID                 string                   `json:"id"`
	Type               string                   `json:"type,omitempty"`
	OriginalIDs        []string                 `json:"original_ids"`
	MergeStrategy      MergeStrategyType        `json:"merge_strategy"`
	Fields             map[string]any           `json:"fields"`
	Attributes         map[string]any           `json:"attributes,omitempty"`
	AttributeConflicts map[string]MergeConflict `json:"attribute_conflicts,omitempty"`
	Sources            []string                 `json:"sources,omitempty"`
	DuplicateCount     int                      `json:"duplicate_count"`
	CanonicalizedAt    time.Time                `json:"canonicalized_at"`
}

// CanonicalizeRequest merges the supplied records under one strategy
type CanonicalizeRequest struct {
	Entities []EntityRecord    `json:"entities" validate:"required"`
	Strategy MergeStrategyType `json:"strategy" validate:"omitempty,oneof=prefer_entity1 prefer_entity2 combine most_recent"`
}
