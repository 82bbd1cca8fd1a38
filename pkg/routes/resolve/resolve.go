package resolve

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	ererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/review"
	"github.com/Ramsey-B/clover/pkg/rules"
)

var validate = validator.New()

// Handler serves batch resolution
type Handler struct {
	logger   ectologger.Logger
	resolver *matching.Resolver
	registry *rules.Registry
	config   models.ResolutionConfig
	ledger   *review.Ledger
}

// NewHandler creates a resolution handler. config is the service-wide default;
// request overrides are applied to a copy.
func NewHandler(logger ectologger.Logger, resolver *matching.Resolver, registry *rules.Registry, config models.ResolutionConfig, ledger *review.Ledger) *Handler {
	return &Handler{
		logger:   logger,
		resolver: resolver,
		registry: registry,
		config:   config,
		ledger:   ledger,
	}
}

// Register registers resolution routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/resolve", h.Resolve)
	g.POST("/resolve/pair", h.ResolvePair)
}

// Resolve runs one batch resolution
func (h *Handler) Resolve(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.ResolveRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cfg := h.config
	if req.SimilarityThreshold != nil {
		cfg = cfg.WithSimilarityThreshold(*req.SimilarityThreshold)
	}
	if req.PossibleMatchThreshold != nil {
		cfg = cfg.WithPossibleMatchThreshold(*req.PossibleMatchThreshold)
	}
	if req.MinScore != nil {
		cfg = cfg.WithMinScore(*req.MinScore)
	}

	result, err := h.resolver.Resolve(ctx, req.Entities, h.registry.Current(), cfg, matching.Options{EntityType: req.EntityType})
	if err != nil {
		if ererrors.IsEmptyInputError(err) && result != nil {
			return c.JSON(http.StatusOK, result)
		}
		return err
	}

	if req.Persist && h.ledger != nil {
		if err := h.ledger.Record(ctx, result.Candidates); err != nil {
			return err
		}
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":     result.RunID,
		"candidates": len(result.Candidates),
		"persisted":  req.Persist,
	}).Info("Resolved batch")

	return c.JSON(http.StatusOK, result)
}

// ResolvePair scores two records directly and returns the candidate whatever its band
func (h *Handler) ResolvePair(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.ResolvePairRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	cfg := h.config
	if req.SimilarityThreshold != nil {
		cfg = cfg.WithSimilarityThreshold(*req.SimilarityThreshold)
	}
	if req.PossibleMatchThreshold != nil {
		cfg = cfg.WithPossibleMatchThreshold(*req.PossibleMatchThreshold)
	}

	candidate, err := h.resolver.ResolvePair(req.Entity1, req.Entity2, h.registry.Current(), cfg)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"candidate_id": candidate.ID,
		"match_type":   candidate.MatchType,
		"similarity":   candidate.SimilarityScore,
	}).Debug("Resolved pair")

	return c.JSON(http.StatusOK, candidate)
}
