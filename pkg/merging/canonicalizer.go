// Package merging collapses clusters of duplicate records into canonical entities
package merging

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/clustering"
	ererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// attributeConflictPrefix keeps attribute conflicts apart from field conflicts
const attributeConflictPrefix = "attributes."

// Canonicalizer merges records that denote the same real-world entity
type Canonicalizer struct {
	logger      ectologger.Logger
	fieldMerger *FieldMerger
	now         func() time.Time
}

// NewCanonicalizer creates a new Canonicalizer
func NewCanonicalizer(logger ectologger.Logger) *Canonicalizer {
	return &Canonicalizer{
		logger:      logger,
		fieldMerger: NewFieldMerger(),
		now:         time.Now,
	}
}

// Canonicalize merges two or more records into one canonical entity.
//
// Members are ordered by confidence descending, then id ascending. The first
// member is entity1 (the base record) and the second is entity2. An empty
// strategy means prefer_entity1.
//
// Fewer than two records yield an empty canonical entity together with an
// EmptyInputError, which callers treat as a no-op.
func (c *Canonicalizer) Canonicalize(ctx context.Context, entities []models.EntityRecord, strategy models.MergeStrategyType) (*models.CanonicalEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Canonicalizer.Canonicalize")
	defer span.End()

	if strategy == "" {
		strategy = models.MergeStrategyPreferEntity1
	}
	if !validStrategy(strategy) {
		return nil, ererrors.NewConfigurationErrorf("unknown merge strategy %q", strategy).WithSetting("strategy")
	}
	if len(entities) < 2 {
		return c.empty(entities, strategy), ererrors.NewEmptyInputError("canonicalize", 2, len(entities))
	}

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"strategy": strategy,
		"members":  len(entities),
	})

	members := orderMembers(entities)
	originalIDs := make([]string, 0, len(members))
	for _, m := range members {
		originalIDs = append(originalIDs, m.ID)
	}
	sort.Strings(originalIDs)

	canonical := &models.CanonicalEntity{
		ID:                 "merged_" + strings.Join(originalIDs, "_"),
		Type:               members[0].Type,
		OriginalIDs:        originalIDs,
		MergeStrategy:      strategy,
		Fields:             make(map[string]any),
		AttributeConflicts: make(map[string]models.MergeConflict),
		Sources:            distinctSources(members),
		DuplicateCount:     len(members) - 1,
		CanonicalizedAt:    c.now().UTC(),
	}

	for _, name := range fieldNames(members) {
		values := make([]fieldValue, 0, len(members))
		for i, m := range members {
			v, ok := m.Field(name)
			if !ok {
				continue
			}
			values = append(values, fieldValue{Value: v.Interface(), UpdatedAt: m.UpdatedAt, EntityID: m.ID, Position: i})
		}
		merged, conflict := c.fieldMerger.MergeField(values, strategy)
		canonical.Fields[name] = merged
		if conflict != nil {
			canonical.AttributeConflicts[name] = *conflict
		}
	}

	for _, name := range attributeNames(members) {
		values := make([]fieldValue, 0, len(members))
		for i, m := range members {
			v, ok := m.Attributes[name]
			if !ok || v == nil {
				continue
			}
			values = append(values, fieldValue{Value: v, UpdatedAt: m.UpdatedAt, EntityID: m.ID, Position: i})
		}
		merged, conflict := c.fieldMerger.MergeField(values, strategy)
		if canonical.Attributes == nil {
			canonical.Attributes = make(map[string]any)
		}
		canonical.Attributes[name] = merged
		if conflict != nil {
			canonical.AttributeConflicts[attributeConflictPrefix+name] = *conflict
		}
	}

	log.WithFields(map[string]any{
		"canonical_id": canonical.ID,
		"fields":       len(canonical.Fields),
		"conflicts":    len(canonical.AttributeConflicts),
	}).Debug("Canonicalized entities")

	return canonical, nil
}

// empty carries the supplied ids and no merged values
func (c *Canonicalizer) empty(entities []models.EntityRecord, strategy models.MergeStrategyType) *models.CanonicalEntity {
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}
	sort.Strings(ids)
	return &models.CanonicalEntity{
		OriginalIDs:     ids,
		MergeStrategy:   strategy,
		Fields:          make(map[string]any),
		CanonicalizedAt: c.now().UTC(),
	}
}

// CanonicalizeCluster resolves a cluster's members and merges them
func (c *Canonicalizer) CanonicalizeCluster(ctx context.Context, cluster models.Cluster, entities []models.EntityRecord, strategy models.MergeStrategyType) (*models.CanonicalEntity, error) {
	members, err := clustering.Members(cluster, entities)
	if err != nil {
		return nil, err
	}
	return c.Canonicalize(ctx, members, strategy)
}

// CanonicalizeAll merges every cluster. It stops at the first failure.
func (c *Canonicalizer) CanonicalizeAll(ctx context.Context, clusters []models.Cluster, entities []models.EntityRecord, strategy models.MergeStrategyType) ([]models.CanonicalEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Canonicalizer.CanonicalizeAll")
	defer span.End()

	out := make([]models.CanonicalEntity, 0, len(clusters))
	for _, cl := range clusters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		canonical, err := c.CanonicalizeCluster(ctx, cl, entities, strategy)
		if err != nil {
			return nil, fmt.Errorf("failed to canonicalize %s: %w", cl.ID, err)
		}
		out = append(out, *canonical)
	}
	return out, nil
}

func validStrategy(s models.MergeStrategyType) bool {
	for _, v := range models.ValidMergeStrategies {
		if v == s {
			return true
		}
	}
	return false
}

func orderMembers(entities []models.EntityRecord) []models.EntityRecord {
	members := make([]models.EntityRecord, len(entities))
	copy(members, entities)
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Confidence != members[j].Confidence {
			return members[i].Confidence > members[j].Confidence
		}
		return members[i].ID < members[j].ID
	})
	return members
}

func fieldNames(members []models.EntityRecord) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range members {
		for name, v := range m.Fields {
			if seen[name] || !v.IsPresent() {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func attributeNames(members []models.EntityRecord) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range members {
		for name, v := range m.Attributes {
			if seen[name] || v == nil {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func distinctSources(members []models.EntityRecord) []string {
	seen := make(map[string]bool)
	var sources []string
	for _, m := range members {
		if m.Source == "" || seen[m.Source] {
			continue
		}
		seen[m.Source] = true
		sources = append(sources, m.Source)
	}
	return sources
}
