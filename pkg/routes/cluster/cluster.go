package cluster

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/clustering"
	ererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/review"
)

var validate = validator.New()

// Projector receives the clusters and accepted edges of every cluster request
type Projector interface {
	Project(ctx context.Context, clusters []models.Cluster, candidates []models.MatchCandidate) error
}

// Handler serves clustering and canonicalization
type Handler struct {
	logger        ectologger.Logger
	ledger        *review.Ledger
	builder       *clustering.Builder
	canonicalizer *merging.Canonicalizer
	projector     Projector
}

// NewHandler creates a cluster handler. A nil projector skips graph projection.
func NewHandler(logger ectologger.Logger, ledger *review.Ledger, builder *clustering.Builder, canonicalizer *merging.Canonicalizer, projector Projector) *Handler {
	return &Handler{
		logger:        logger,
		ledger:        ledger,
		builder:       builder,
		canonicalizer: canonicalizer,
		projector:     projector,
	}
}

// Register registers cluster and canonicalize routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/clusters", h.BuildClusters)
	g.POST("/canonicalize", h.Canonicalize)
}

// ClusterRequest groups entities by accepted candidates. Without candidates
// the ledger's candidates between the supplied entities are used. A strategy
// also canonicalizes every cluster.
type ClusterRequest struct {
	Entities   []models.EntityRecord    `json:"entities" validate:"required"`
	Candidates []models.MatchCandidate  `json:"candidates,omitempty"`
	Strategy   models.MergeStrategyType `json:"strategy,omitempty" validate:"omitempty,oneof=prefer_entity1 prefer_entity2 combine most_recent"`
}

// ClusterResponse lists clusters and, when requested, their canonical records
type ClusterResponse struct {
	Clusters  []models.Cluster         `json:"clusters"`
	Canonical []models.CanonicalEntity `json:"canonical,omitempty"`
	Projected bool                     `json:"projected"`
}

// BuildClusters forms clusters from accepted candidates
func (h *Handler) BuildClusters(c echo.Context) error {
	ctx := c.Request().Context()

	var req ClusterRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	candidates := req.Candidates
	if candidates == nil {
		stored, err := h.ledger.List(ctx, review.Filter{})
		if err != nil {
			return err
		}
		candidates = within(stored, req.Entities)
	}

	clusters, err := h.builder.Build(ctx, candidates, req.Entities)
	if err != nil {
		return err
	}

	resp := ClusterResponse{Clusters: clusters}
	if req.Strategy != "" {
		canonical, err := h.canonicalizer.CanonicalizeAll(ctx, clusters, req.Entities, req.Strategy)
		if err != nil {
			return err
		}
		resp.Canonical = canonical
	}

	if h.projector != nil && len(clusters) > 0 {
		if err := h.projector.Project(ctx, clusters, candidates); err != nil {
			h.logger.WithContext(ctx).WithError(err).Error("Failed to project clusters")
			return httperror.NewHTTPError(http.StatusBadGateway, "failed to project clusters")
		}
		resp.Projected = true
	}

	return c.JSON(http.StatusOK, resp)
}

// Canonicalize merges the supplied records into one. Fewer than two records
// return an empty canonical entity.
func (h *Handler) Canonicalize(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.CanonicalizeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	canonical, err := h.canonicalizer.Canonicalize(ctx, req.Entities, req.Strategy)
	if err != nil {
		if !ererrors.IsEmptyInputError(err) || canonical == nil {
			return err
		}
		h.logger.WithContext(ctx).WithField("entities", len(req.Entities)).Debug("Nothing to canonicalize")
	}
	return c.JSON(http.StatusOK, canonical)
}

// within keeps candidates whose both ends are among the entities
func within(candidates []models.MatchCandidate, entities []models.EntityRecord) []models.MatchCandidate {
	ids := models.IndexEntities(entities)
	out := make([]models.MatchCandidate, 0, len(candidates))
	for _, c := range candidates {
		_, ok1 := ids[c.Entity1ID]
		_, ok2 := ids[c.Entity2ID]
		if ok1 && ok2 {
			out = append(out, c)
		}
	}
	return out
}
