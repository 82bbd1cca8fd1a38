package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	mergeAliasCypher = `
		MERGE (a:Entity {id: $entity1_id})
		MERGE (b:Entity {id: $entity2_id})
		MERGE (a)-[r:ALIAS_OF]->(b)
		SET r.confidence = $confidence,
		    r.candidate_id = $candidate_id,
		    r.decision = $decision
	`

	setClusterCypher = `
		UNWIND $entity_ids AS id
		MERGE (e:Entity {id: id})
		SET e.cluster_id = $cluster_id
	`
)

// statement is one parameterized Cypher query
type statement struct {
	Cypher string
	Params map[string]any
}

// writer runs write transactions; *Client satisfies it
type writer interface {
	ExecuteWrite(ctx context.Context, work func(tx neo4j.ManagedTransaction) (any, error)) (any, error)
}

// AliasProjector writes accepted matches as ALIAS_OF edges and tags cluster members
type AliasProjector struct {
	client writer
	logger ectologger.Logger
}

// NewAliasProjector creates a new AliasProjector
func NewAliasProjector(client writer, logger ectologger.Logger) *AliasProjector {
	return &AliasProjector{
		client: client,
		logger: logger,
	}
}

// Project writes one edge per accepted candidate and sets cluster_id on every
// cluster member, all in one transaction. Rejected or unreviewed non-matches
// are not written.
func (p *AliasProjector) Project(ctx context.Context, clusters []models.Cluster, candidates []models.MatchCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "graph.AliasProjector.Project")
	defer span.End()

	statements := aliasStatements(clusters, candidates)
	if len(statements) == 0 {
		return nil
	}

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"clusters":   len(clusters),
		"statements": len(statements),
	})

	_, err := p.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, s := range statements {
			result, err := tx.Run(ctx, s.Cypher, s.Params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to project aliases")
		return fmt.Errorf("failed to project aliases: %w", err)
	}

	log.Debug("Projected aliases")
	return nil
}

func aliasStatements(clusters []models.Cluster, candidates []models.MatchCandidate) []statement {
	var out []statement
	for _, c := range candidates {
		if !c.Accepted() {
			continue
		}
		decision := c.Review.Decision
		if decision == "" {
			decision = models.DecisionNone
		}
		out = append(out, statement{
			Cypher: mergeAliasCypher,
			Params: map[string]any{
				"entity1_id":   c.Entity1ID,
				"entity2_id":   c.Entity2ID,
				"confidence":   c.Confidence,
				"candidate_id": models.CandidateID(c.Entity1ID, c.Entity2ID),
				"decision":     string(decision),
			},
		})
	}
	for _, cl := range clusters {
		out = append(out, statement{
			Cypher: setClusterCypher,
			Params: map[string]any{
				"entity_ids": cl.EntityIDs,
				"cluster_id": cl.ID,
			},
		})
	}
	return out
}
