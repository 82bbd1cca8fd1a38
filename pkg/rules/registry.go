package rules

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Gobusters/ectologger"

	ererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Registry holds the active rule set. Every change is validated and published
// as a new RuleSet, so a batch that already took a snapshot keeps scoring with it.
type Registry struct {
	current        atomic.Pointer[RuleSet]
	mu             sync.Mutex
	defaultWeights map[string]float64
	logger         ectologger.Logger
}

// NewRegistry validates the initial rules and creates a Registry
func NewRegistry(initial []models.MatchingRule, defaultWeights map[string]float64, logger ectologger.Logger) (*Registry, error) {
	rs, err := New(initial, defaultWeights)
	if err != nil {
		return nil, err
	}
	r := &Registry{
		defaultWeights: defaultWeights,
		logger:         logger,
	}
	r.current.Store(rs)
	return r, nil
}

// Current returns the active snapshot
func (r *Registry) Current() *RuleSet {
	return r.current.Load()
}

// Replace swaps in a whole new rule list
func (r *Registry) Replace(ctx context.Context, rules []models.MatchingRule) (*RuleSet, error) {
	ctx, span := tracing.StartSpan(ctx, "rules.Registry.Replace")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	rs, err := New(rules, r.defaultWeights)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("Rejected rule set")
		return nil, err
	}
	r.current.Store(rs)

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"rules":   rs.Len(),
		"enabled": len(rs.Enabled()),
	}).Info("Replaced matching rules")
	return rs, nil
}

// Update patches the rule for one field
func (r *Registry) Update(ctx context.Context, field string, req models.UpdateMatchingRuleRequest) (*RuleSet, error) {
	ctx, span := tracing.StartSpan(ctx, "rules.Registry.Update")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.current.Load()
	if _, ok := current.Get(field); !ok {
		return nil, ererrors.NewConfigurationError("no rule for field").WithField(field)
	}

	next := current.Rules()
	for i := range next {
		if next[i].Field != field {
			continue
		}
		if req.Weight != nil {
			next[i].Weight = *req.Weight
		}
		if req.Threshold != nil {
			next[i].Threshold = *req.Threshold
		}
		if req.Enabled != nil {
			next[i].Enabled = *req.Enabled
		}
		if req.Normalization != nil {
			next[i].Normalization = req.Normalization
		}
		if req.FuzzyMethod != nil {
			next[i].FuzzyMethod = *req.FuzzyMethod
		}
		if req.NumericScale != nil {
			next[i].NumericScale = *req.NumericScale
		}
	}

	rs, err := New(next, r.defaultWeights)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("Rejected rule update")
		return nil, err
	}
	r.current.Store(rs)

	r.logger.WithContext(ctx).WithField("field", field).Info("Updated matching rule")
	return rs, nil
}

// SetEnabled turns one rule on or off
func (r *Registry) SetEnabled(ctx context.Context, field string, enabled bool) (*RuleSet, error) {
	return r.Update(ctx, field, models.UpdateMatchingRuleRequest{Enabled: &enabled})
}
