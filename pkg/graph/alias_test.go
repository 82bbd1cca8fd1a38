package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

type failingWriter struct {
	calls int
}

func (w *failingWriter) ExecuteWrite(_ context.Context, _ func(tx neo4j.ManagedTransaction) (any, error)) (any, error) {
	w.calls++
	return nil, errors.New("connection refused")
}

func TestAliasStatements(t *testing.T) {
	candidates := []models.MatchCandidate{
		{Entity1ID: "p1", Entity2ID: "p2", MatchType: models.MatchTypeMatch, Confidence: 0.9},
		{Entity1ID: "p2", Entity2ID: "p3", MatchType: models.MatchTypePossibleMatch, Confidence: 0.7,
			Review: models.ReviewState{Decision: models.DecisionConfirm}},
		{Entity1ID: "p4", Entity2ID: "p5", MatchType: models.MatchTypeMatch,
			Review: models.ReviewState{Decision: models.DecisionReject}},
		{Entity1ID: "p6", Entity2ID: "p7", MatchType: models.MatchTypePossibleMatch},
	}
	clusters := []models.Cluster{{ID: "cluster_p1", EntityIDs: []string{"p1", "p2", "p3"}}}

	got := aliasStatements(clusters, candidates)
	require.Len(t, got, 3)

	assert.Equal(t, mergeAliasCypher, got[0].Cypher)
	assert.Equal(t, "p1_p2", got[0].Params["candidate_id"])
	assert.Equal(t, "none", got[0].Params["decision"])
	assert.Equal(t, "confirm", got[1].Params["decision"])

	assert.Equal(t, setClusterCypher, got[2].Cypher)
	assert.Equal(t, "cluster_p1", got[2].Params["cluster_id"])
	assert.Equal(t, []string{"p1", "p2", "p3"}, got[2].Params["entity_ids"])
}

func TestProject(t *testing.T) {
	w := &failingWriter{}
	p := NewAliasProjector(w, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))

	require.NoError(t, p.Project(context.Background(), nil, nil))
	assert.Equal(t, 0, w.calls)

	err := p.Project(context.Background(), nil, []models.MatchCandidate{
		{Entity1ID: "a", Entity2ID: "b", MatchType: models.MatchTypeMatch},
	})
	assert.Error(t, err)
	assert.Equal(t, 1, w.calls)
}
