package models

import "time"

// BatchWarning reports a record skipped during resolution
type BatchWarning struct {
	EntityID string `json:"entity_id,omitempty"`
	Index    int    `json:"index"`
	Message  string `json:"message"`
}

// ResolutionStatistics summarizes one batch run
type ResolutionStatistics struct {
	TotalEntities         int               `json:"total_entities"`
	SkippedEntities       int               `json:"skipped_entities"`
	Blocks                int               `json:"blocks"`
	Comparisons           int               `json:"comparisons"`
	Candidates            int               `json:"candidates"`
	ByMatchType           map[MatchType]int `json:"by_match_type"`
	AverageSimilarity     float64           `json:"average_similarity"`
	AverageConfidence     float64           `json:"average_confidence"`
	HighConfidenceMatches int               `json:"high_confidence_matches"`
	Duration              time.Duration     `json:"duration"`
}

// ResolutionResult is the output of one batch run
type ResolutionResult struct {
	RunID      string               `json:"run_id"`
	Candidates []MatchCandidate     `json:"candidates"`
	Warnings   []BatchWarning       `json:"warnings,omitempty"`
	Statistics ResolutionStatistics `json:"statistics"`
}

// ResolveRequest is the API shape of a batch resolution call. Threshold
// overrides apply to this call only.
type ResolveRequest struct {
	Entities               []EntityRecord `json:"entities"`
	EntityType             string         `json:"entity_type,omitempty"`
	SimilarityThreshold    *float64       `json:"similarity_threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	PossibleMatchThreshold *float64       `json:"possible_match_threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	MinScore               *float64       `json:"min_score,omitempty" validate:"omitempty,gte=0,lte=1"`
	Persist                bool           `json:"persist,omitempty"`
}

// ResolvePairRequest scores two records against each other without blocking
type ResolvePairRequest struct {
	Entity1                EntityRecord `json:"entity1"`
	Entity2                EntityRecord `json:"entity2"`
	SimilarityThreshold    *float64     `json:"similarity_threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
	PossibleMatchThreshold *float64     `json:"possible_match_threshold,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// ImportBatch is a batch of records delivered by the import pipeline
type ImportBatch struct {
	BatchID    string         `json:"batch_id"`
	TenantID   string         `json:"tenant_id,omitempty"`
	EntityType string         `json:"entity_type,omitempty"`
	Entities   []EntityRecord `json:"entities"`
}
