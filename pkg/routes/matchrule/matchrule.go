package matchrule

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/rules"
)

var validate = validator.New()

// Handler serves the active matching rule set
type Handler struct {
	logger   ectologger.Logger
	registry *rules.Registry
}

func NewHandler(logger ectologger.Logger, registry *rules.Registry) *Handler {
	return &Handler{logger: logger, registry: registry}
}

// Register registers match rule routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.ListRules)
	g.PUT("", h.ReplaceRules)
	g.PATCH("/:field", h.UpdateRule)
}

// RulesResponse lists every rule in order
type RulesResponse struct {
	Rules   []models.MatchingRule `json:"rules"`
	Enabled int                   `json:"enabled"`
}

func rulesResponse(rs *rules.RuleSet) RulesResponse {
	return RulesResponse{Rules: rs.Rules(), Enabled: len(rs.Enabled())}
}

// ListRules returns the active rule set
func (h *Handler) ListRules(c echo.Context) error {
	return c.JSON(http.StatusOK, rulesResponse(h.registry.Current()))
}

// ReplaceRules validates and swaps in a whole rule list
func (h *Handler) ReplaceRules(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.ReplaceMatchingRulesRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	rs, err := h.registry.Replace(ctx, req.Rules)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rulesResponse(rs))
}

// UpdateRule patches one rule
func (h *Handler) UpdateRule(c echo.Context) error {
	ctx := c.Request().Context()
	field := c.Param("field")

	var req models.UpdateMatchingRuleRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rs, err := h.registry.Update(ctx, field, req)
	if err != nil {
		return err
	}

	rule, _ := rs.Get(field)
	return c.JSON(http.StatusOK, rule)
}
