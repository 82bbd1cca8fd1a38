package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/clustering"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/middleware"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/review"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeProjector struct {
	clusters []models.Cluster
	err      error
}

func (p *fakeProjector) Project(_ context.Context, clusters []models.Cluster, _ []models.MatchCandidate) error {
	p.clusters = clusters
	return p.err
}

func newTestServer(t *testing.T, projector Projector) (*echo.Echo, *review.Ledger) {
	t.Helper()
	ledger := review.NewLedger(testLogger(), nil)

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(testLogger())
	e.Use(middleware.Context())
	NewHandler(testLogger(), ledger, clustering.NewBuilder(testLogger()), merging.NewCanonicalizer(testLogger()), projector).
		Register(e.Group("/api/v1"))
	return e, ledger
}

func post(e *echo.Echo, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const entities = `[
	{"id": "a", "type": "person", "source": "crm", "fields": {"name": "Ann Lee", "city": "NY"}},
	{"id": "b", "type": "person", "source": "erp", "fields": {"name": "Ann Lee", "city": "Boston"}},
	{"id": "c", "type": "person", "fields": {"name": "Bo Chan"}}
]`

func TestBuildClusters_FromLedger(t *testing.T) {
	projector := &fakeProjector{}
	e, ledger := newTestServer(t, projector)

	require.NoError(t, ledger.Record(context.Background(), []models.MatchCandidate{
		{ID: "a_b", Entity1ID: "a", Entity2ID: "b", MatchType: models.MatchTypeMatch, Confidence: 0.9},
		{ID: "b_c", Entity1ID: "b", Entity2ID: "c", MatchType: models.MatchTypePossibleMatch, Confidence: 0.7},
		{ID: "c_z", Entity1ID: "c", Entity2ID: "z", MatchType: models.MatchTypeMatch, Confidence: 0.9},
	}))

	rec := post(e, "/api/v1/clusters", `{"entities": `+entities+`, "strategy": "combine"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ClusterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Clusters, 1)
	assert.Equal(t, []string{"a", "b"}, resp.Clusters[0].EntityIDs)
	assert.True(t, resp.Projected)
	require.Len(t, projector.clusters, 1)

	require.Len(t, resp.Canonical, 1)
	assert.Equal(t, "merged_a_b", resp.Canonical[0].ID)
	assert.Equal(t, 1, resp.Canonical[0].DuplicateCount)
}

func TestBuildClusters_ExplicitCandidates(t *testing.T) {
	e, _ := newTestServer(t, nil)

	body := `{"entities": ` + entities + `, "candidates": [
		{"id": "b_c", "entity1_id": "b", "entity2_id": "c", "match_type": "possible_match", "review": {"decision": "confirm"}}
	]}`
	rec := post(e, "/api/v1/clusters", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp ClusterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Clusters, 1)
	assert.Equal(t, []string{"b", "c"}, resp.Clusters[0].EntityIDs)
	assert.False(t, resp.Projected)
}

func TestBuildClusters_MissingEntity(t *testing.T) {
	e, _ := newTestServer(t, nil)

	body := `{"entities": ` + entities + `, "candidates": [
		{"id": "a_q", "entity1_id": "a", "entity2_id": "q", "match_type": "match"}
	]}`
	rec := post(e, "/api/v1/clusters", body)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuildClusters_ProjectionFailure(t *testing.T) {
	e, _ := newTestServer(t, &fakeProjector{err: errors.New("neo4j down")})

	body := `{"entities": ` + entities + `, "candidates": [
		{"id": "a_b", "entity1_id": "a", "entity2_id": "b", "match_type": "match"}
	]}`
	rec := post(e, "/api/v1/clusters", body)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestCanonicalize(t *testing.T) {
	e, _ := newTestServer(t, nil)

	rec := post(e, "/api/v1/canonicalize", `{"entities": `+entities+`, "strategy": "prefer_entity1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var canonical models.CanonicalEntity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &canonical))
	assert.Equal(t, "merged_a_b_c", canonical.ID)
	assert.Equal(t, 2, canonical.DuplicateCount)
	assert.ElementsMatch(t, []string{"crm", "erp"}, canonical.Sources)

	rec = post(e, "/api/v1/canonicalize", `{"entities": `+entities+`, "strategy": "coin_flip"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

}

func TestCanonicalize_SingleRecordIsEmptyResult(t *testing.T) {
	e, _ := newTestServer(t, nil)

	rec := post(e, "/api/v1/canonicalize", `{"entities": [{"id": "a", "fields": {"name": "Ann"}}], "strategy": "combine"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var canonical models.CanonicalEntity
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &canonical))
	assert.Equal(t, []string{"a"}, canonical.OriginalIDs)
	assert.Empty(t, canonical.Fields)

	rec = post(e, "/api/v1/canonicalize", `{"entities": []}`)
	assert.Equal(t, http.StatusOK, rec.Code)
}
