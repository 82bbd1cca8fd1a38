package candidate

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/export"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/review"
)

var validate = validator.New()

// Handler serves the review ledger
type Handler struct {
	logger ectologger.Logger
	ledger *review.Ledger
}

func NewHandler(logger ectologger.Logger, ledger *review.Ledger) *Handler {
	return &Handler{logger: logger, ledger: ledger}
}

// Register registers candidate review routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.ListCandidates)
	g.GET("/stats", h.GetStatistics)
	g.GET("/export", h.ExportCandidates)
	g.POST("/bulk/confirm", h.BulkConfirm)
	g.POST("/bulk/reject", h.BulkReject)
	g.POST("/bulk/reset", h.BulkReset)
	g.GET("/:id", h.GetCandidate)
	g.POST("/:id/review", h.ReviewCandidate)
}

// BulkResponse reports how many candidates a bulk operation changed
type BulkResponse struct {
	Updated int `json:"updated"`
}

func filterFromQuery(c echo.Context) (review.Filter, error) {
	filter := review.Filter{
		Decision:  models.Decision(c.QueryParam("decision")),
		MatchType: models.MatchType(c.QueryParam("match_type")),
	}
	switch filter.Decision {
	case "", models.DecisionNone, models.DecisionConfirm, models.DecisionReject, models.DecisionDefer:
	default:
		return filter, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown decision %q", filter.Decision)
	}
	switch filter.MatchType {
	case "", models.MatchTypeMatch, models.MatchTypePossibleMatch, models.MatchTypeNonMatch:
	default:
		return filter, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown match_type %q", filter.MatchType)
	}
	return filter, nil
}

// reviewer falls back to the authenticated user when the body names nobody
func reviewer(c echo.Context, named string) string {
	if named != "" {
		return named
	}
	return context.GetUserID(c.Request().Context())
}

// ListCandidates lists candidates filtered by decision and match type
func (h *Handler) ListCandidates(c echo.Context) error {
	ctx := c.Request().Context()

	filter, err := filterFromQuery(c)
	if err != nil {
		return err
	}

	candidates, err := h.ledger.List(ctx, filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, candidates)
}

// GetCandidate returns one candidate
func (h *Handler) GetCandidate(c echo.Context) error {
	candidate, err := h.ledger.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, candidate)
}

// ReviewCandidate records a decision on one candidate
func (h *Handler) ReviewCandidate(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.ReviewDecisionRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.ReviewedBy = reviewer(c, req.ReviewedBy)

	candidate, err := h.ledger.Decide(ctx, c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, candidate)
}

func (h *Handler) bindBulk(c echo.Context, defaultThreshold float64) (models.BulkReviewRequest, error) {
	req := models.BulkReviewRequest{Threshold: defaultThreshold}
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return req, httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
	}
	if err := validate.Struct(req); err != nil {
		return req, httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.ReviewedBy = reviewer(c, req.ReviewedBy)
	return req, nil
}

// BulkConfirm confirms pending candidates at or above the threshold
func (h *Handler) BulkConfirm(c echo.Context) error {
	req, err := h.bindBulk(c, review.DefaultConfirmThreshold)
	if err != nil {
		return err
	}

	n, err := h.ledger.ConfirmAbove(c.Request().Context(), req.Threshold, req.ReviewedBy)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, BulkResponse{Updated: n})
}

// BulkReject rejects pending candidates below the threshold
func (h *Handler) BulkReject(c echo.Context) error {
	req, err := h.bindBulk(c, review.DefaultRejectThreshold)
	if err != nil {
		return err
	}

	n, err := h.ledger.RejectBelow(c.Request().Context(), req.Threshold, req.ReviewedBy)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, BulkResponse{Updated: n})
}

// BulkReset clears every decision
func (h *Handler) BulkReset(c echo.Context) error {
	n, err := h.ledger.ResetAll(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, BulkResponse{Updated: n})
}

// GetStatistics aggregates the ledger
func (h *Handler) GetStatistics(c echo.Context) error {
	stats, err := h.ledger.Statistics(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// ExportCandidates writes the filtered ledger as csv, json or xlsx
func (h *Handler) ExportCandidates(c echo.Context) error {
	ctx := c.Request().Context()

	format, err := export.ParseFormat(c.QueryParam("format"))
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	filter, err := filterFromQuery(c)
	if err != nil {
		return err
	}

	candidates, err := h.ledger.List(ctx, filter)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, candidates); err != nil {
		h.logger.WithContext(ctx).WithError(err).WithField("format", format).Error("Failed to export candidates")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to export candidates")
	}

	filename := format.Filename(fmt.Sprintf("match_candidates_%s", time.Now().UTC().Format("20060102_150405")))
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return c.Blob(http.StatusOK, format.ContentType(), buf.Bytes())
}
