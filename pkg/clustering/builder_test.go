package clustering

import (
	"context"
	"fmt"
	"math/rand"
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

func candidate(a, b string, matchType models.MatchType, decision models.Decision) models.MatchCandidate {
	if b < a {
		a, b = b, a
	}
	return models.MatchCandidate{
		ID:        models.CandidateID(a, b),
		Entity1ID: a,
		Entity2ID: b,
		MatchType: matchType,
		Review:    models.ReviewState{Decision: decision},
	}
}

func TestBuilder_ConnectedComponents(t *testing.T) {
	b := NewBuilder(testLogger())
	clusters, err := b.Build(context.Background(), []models.MatchCandidate{
		candidate("c", "d", models.MatchTypeMatch, models.DecisionNone),
		candidate("a", "b", models.MatchTypeMatch, models.DecisionNone),
		candidate("b", "e", models.MatchTypePossibleMatch, models.DecisionConfirm),
		candidate("x", "y", models.MatchTypePossibleMatch, models.DecisionNone),
	}, nil)
	require.NoError(t, err)

	require.Len(t, clusters, 2)
	assert.Equal(t, []string{"a", "b", "e"}, clusters[0].EntityIDs)
	assert.Equal(t, "cluster_a", clusters[0].ID)
	assert.Equal(t, []string{"a_b", "b_e"}, clusters[0].CandidateIDs)
	assert.Equal(t, []string{"c", "d"}, clusters[1].EntityIDs)
}

func TestBuilder_ReviewOverridesClassifier(t *testing.T) {
	b := NewBuilder(testLogger())

	tests := []struct {
		name     string
		decision models.Decision
		want     int
	}{
		{"unreviewed match", models.DecisionNone, 1},
		{"empty decision", "", 1},
		{"confirmed", models.DecisionConfirm, 1},
		{"rejected", models.DecisionReject, 0},
		{"deferred", models.DecisionDefer, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clusters, err := b.Build(context.Background(), []models.MatchCandidate{
				candidate("p1", "p2", models.MatchTypeMatch, tt.decision),
			}, nil)
			require.NoError(t, err)
			assert.Len(t, clusters, tt.want)
		})
	}
}

func TestBuilder_NoAcceptedEdges(t *testing.T) {
	clusters, err := NewBuilder(testLogger()).Build(context.Background(), []models.MatchCandidate{
		candidate("p1", "p2", models.MatchTypeNonMatch, models.DecisionNone),
	}, nil)
	require.NoError(t, err)
	assert.NotNil(t, clusters)
	assert.Empty(t, clusters)
}

func TestBuilder_MissingEntity(t *testing.T) {
	entities := []models.EntityRecord{{ID: "p1"}}
	_, err := NewBuilder(testLogger()).Build(context.Background(), []models.MatchCandidate{
		candidate("p1", "p2", models.MatchTypeMatch, models.DecisionNone),
	}, entities)

	require.Error(t, err)
	assert.True(t, ererrors.IsMissingEntityError(err))
	assert.Contains(t, err.Error(), "p2")
}

func TestBuilder_Disjointness(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	var candidates []models.MatchCandidate
	for i := 0; i < 200; i++ {
		a := fmt.Sprintf("e%02d", rng.Intn(60))
		b := fmt.Sprintf("e%02d", rng.Intn(60))
		if a == b {
			continue
		}
		mt := models.MatchTypeMatch
		if rng.Intn(3) == 0 {
			mt = models.MatchTypePossibleMatch
		}
		candidates = append(candidates, candidate(a, b, mt, models.DecisionNone))
	}

	clusters, err := NewBuilder(testLogger()).Build(context.Background(), candidates, nil)
	require.NoError(t, err)

	seen := map[string]bool{}
	for i, c := range clusters {
		assert.GreaterOrEqual(t, len(c.EntityIDs), 2)
		for _, id := range c.EntityIDs {
			assert.False(t, seen[id], "entity %s appears in more than one cluster", id)
			seen[id] = true
		}
		if i > 0 {
			assert.Less(t, clusters[i-1].EntityIDs[0], c.EntityIDs[0])
		}
	}
}

func TestMembersAndFind(t *testing.T) {
	entities := []models.EntityRecord{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	clusters, err := NewBuilder(testLogger()).Build(context.Background(), []models.MatchCandidate{
		candidate("a", "b", models.MatchTypeMatch, models.DecisionNone),
	}, entities)
	require.NoError(t, err)
	require.Len(t, clusters, 1)

	members, err := Members(clusters[0], entities)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	_, err = Members(clusters[0], entities[2:])
	assert.True(t, ererrors.IsMissingEntityError(err))

	found, ok, err := Find(clusters, "b", entities)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "cluster_a", found.ID)

	_, ok, err = Find(clusters, "c", entities)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = Find(clusters, "zz", entities)
	assert.True(t, ererrors.IsMissingEntityError(err))
}
