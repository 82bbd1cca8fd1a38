// Package clustering groups accepted match candidates into equivalence clusters.
package clustering

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"

	ererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Builder computes clusters as connected components of accepted candidate pairs
type Builder struct {
	log ectologger.Logger
}

// NewBuilder creates a new Builder
func NewBuilder(log ectologger.Logger) *Builder {
	return &Builder{log: log}
}

// Build returns the clusters formed by accepted candidates. A candidate is
// accepted when it was confirmed, or when it has no review and was classified
// as a match. Entities without an accepted edge are not returned.
//
// When entities is non-nil every id named by an accepted candidate must be in
// it, otherwise a MissingEntityError is returned.
//
// Clusters are sorted by their smallest member id; members are sorted too.
func (b *Builder) Build(ctx context.Context, candidates []models.MatchCandidate, entities []models.EntityRecord) ([]models.Cluster, error) {
	_, span := tracing.StartSpan(ctx, "clustering.Builder.Build")
	defer span.End()

	var known map[string]models.EntityRecord
	if entities != nil {
		known = models.IndexEntities(entities)
	}

	uf := newUnionFind()
	edges := make(map[string][]string)
	accepted := 0
	for _, c := range candidates {
		if !c.Accepted() || c.Entity1ID == c.Entity2ID {
			continue
		}
		if known != nil {
			for _, id := range []string{c.Entity1ID, c.Entity2ID} {
				if _, ok := known[id]; !ok {
					return nil, ererrors.NewMissingEntityError(id)
				}
			}
		}
		uf.union(c.Entity1ID, c.Entity2ID)
		accepted++
		id := c.ID
		if id == "" {
			id = models.CandidateID(c.Entity1ID, c.Entity2ID)
		}
		edges[c.Entity1ID] = append(edges[c.Entity1ID], id)
	}

	clusters := make([]models.Cluster, 0)
	for _, members := range uf.groups() {
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)

		var candidateIDs []string
		for _, m := range members {
			candidateIDs = append(candidateIDs, edges[m]...)
		}
		sort.Strings(candidateIDs)
		candidateIDs = dedupSorted(candidateIDs)

		clusters = append(clusters, models.Cluster{
			ID:           "cluster_" + members[0],
			EntityIDs:    members,
			CandidateIDs: candidateIDs,
		})
	}

	sort.Slice(clusters, func(i, j int) bool {
		return clusters[i].EntityIDs[0] < clusters[j].EntityIDs[0]
	})

	b.log.WithContext(ctx).WithFields(map[string]any{
		"candidates": len(candidates),
		"accepted":   accepted,
		"clusters":   len(clusters),
	}).Debug("Built clusters")

	return clusters, nil
}

// Members resolves a cluster's ids against the supplied records
func Members(cluster models.Cluster, entities []models.EntityRecord) ([]models.EntityRecord, error) {
	index := models.IndexEntities(entities)
	members := make([]models.EntityRecord, 0, len(cluster.EntityIDs))
	for _, id := range cluster.EntityIDs {
		e, ok := index[id]
		if !ok {
			return nil, ererrors.NewMissingEntityError(id)
		}
		members = append(members, e)
	}
	return members, nil
}

// Find returns the cluster containing entityID. A MissingEntityError is
// returned when the id is not among the supplied records; an id that is known
// but unclustered returns false.
func Find(clusters []models.Cluster, entityID string, entities []models.EntityRecord) (models.Cluster, bool, error) {
	if entities != nil {
		if _, ok := models.IndexEntities(entities)[entityID]; !ok {
			return models.Cluster{}, false, ererrors.NewMissingEntityError(entityID)
		}
	}
	for _, c := range clusters {
		i := sort.SearchStrings(c.EntityIDs, entityID)
		if i < len(c.EntityIDs) && c.EntityIDs[i] == entityID {
			return c, true, nil
		}
	}
	return models.Cluster{}, false, nil
}

func dedupSorted(in []string) []string {
	if len(in) < 2 {
		return in
	}
	out := in[:1]
	for _, s := range in[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
