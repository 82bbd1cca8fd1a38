// Package review records human decisions on match candidates
package review

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/montanaflynn/stats"

	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	// DefaultConfirmThreshold is the confidence at or above which bulk confirm applies
	DefaultConfirmThreshold = 0.8
	// DefaultRejectThreshold is the confidence below which bulk reject applies
	DefaultRejectThreshold = 0.6

	modeSingle = "single"
	modeBulk   = "bulk"
)

// Ledger owns the review state of match candidates. Writes to one candidate
// are serialized, so bulk operations and single decisions never lose updates.
type Ledger struct {
	logger ectologger.Logger
	store  Store
	locks  keyedMutex
	now    func() time.Time
}

// NewLedger creates a ledger over store. A nil store uses an in-memory one.
func NewLedger(logger ectologger.Logger, store Store) *Ledger {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Ledger{
		logger: logger,
		store:  store,
		now:    time.Now,
	}
}

// Record stores the candidates of a resolution run. Known candidates keep their decisions.
func (l *Ledger) Record(ctx context.Context, candidates []models.MatchCandidate) error {
	ctx, span := tracing.StartSpan(ctx, "review.Ledger.Record")
	defer span.End()

	if len(candidates) == 0 {
		return nil
	}
	if err := l.store.Upsert(ctx, candidates); err != nil {
		l.logger.WithContext(ctx).WithError(err).Error("Failed to record candidates")
		return err
	}
	l.logger.WithContext(ctx).WithField("count", len(candidates)).Debug("Recorded candidates")
	return nil
}

// Get returns one candidate
func (l *Ledger) Get(ctx context.Context, id string) (*models.MatchCandidate, error) {
	return l.store.Get(ctx, id)
}

// List returns the candidates passing filter, ordered by id
func (l *Ledger) List(ctx context.Context, filter Filter) ([]models.MatchCandidate, error) {
	return l.store.List(ctx, filter)
}

// Decide records a decision on one candidate, replacing any earlier one.
// Deciding none clears the reviewer, timestamp and notes.
func (l *Ledger) Decide(ctx context.Context, id string, req models.ReviewDecisionRequest) (*models.MatchCandidate, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Ledger.Decide")
	defer span.End()

	if !validDecision(req.Decision) {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown decision %q", req.Decision)
	}

	log := l.logger.WithContext(ctx).WithFields(map[string]any{
		"candidate_id": id,
		"decision":     req.Decision,
	})

	unlock := l.locks.lock(id)
	defer unlock()

	candidate, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	candidate.Review = l.reviewState(req.Decision, req.ReviewedBy, req.Notes)
	if err := l.store.SetReview(ctx, id, candidate.Review); err != nil {
		log.WithError(err).Error("Failed to store review decision")
		return nil, err
	}

	metrics.RecordReviewDecision(string(req.Decision), modeSingle, 1)
	log.Info("Recorded review decision")
	return candidate, nil
}

// ConfirmAbove confirms every pending candidate with confidence at or above threshold
func (l *Ledger) ConfirmAbove(ctx context.Context, threshold float64, reviewedBy string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Ledger.ConfirmAbove")
	defer span.End()

	return l.bulk(ctx, models.DecisionConfirm, reviewedBy, func(c models.MatchCandidate) bool {
		return pending(c) && c.Confidence >= threshold
	})
}

// RejectBelow rejects every pending candidate with confidence below threshold
func (l *Ledger) RejectBelow(ctx context.Context, threshold float64, reviewedBy string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Ledger.RejectBelow")
	defer span.End()

	return l.bulk(ctx, models.DecisionReject, reviewedBy, func(c models.MatchCandidate) bool {
		return pending(c) && c.Confidence < threshold
	})
}

// ResetAll clears every decision
func (l *Ledger) ResetAll(ctx context.Context) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Ledger.ResetAll")
	defer span.End()

	return l.bulk(ctx, models.DecisionNone, "", func(c models.MatchCandidate) bool {
		return !pending(c)
	})
}

// bulk applies decision to every candidate selected by pick. Each candidate is
// re-read under its lock so a racing single decision is seen before pick runs.
func (l *Ledger) bulk(ctx context.Context, decision models.Decision, reviewedBy string, pick func(models.MatchCandidate) bool) (int, error) {
	log := l.logger.WithContext(ctx).WithField("decision", decision)

	candidates, err := l.store.List(ctx, Filter{})
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		if !pick(c) {
			continue
		}
		ok, err := l.applyIf(ctx, c.ID, decision, reviewedBy, pick)
		if err != nil {
			log.WithError(err).Errorf("Bulk review stopped after %d changes", changed)
			return changed, fmt.Errorf("failed to review candidate %s: %w", c.ID, err)
		}
		if ok {
			changed++
		}
	}

	metrics.RecordReviewDecision(string(decision), modeBulk, changed)
	log.WithField("changed", changed).Info("Applied bulk review")
	return changed, nil
}

func (l *Ledger) applyIf(ctx context.Context, id string, decision models.Decision, reviewedBy string, pick func(models.MatchCandidate) bool) (bool, error) {
	unlock := l.locks.lock(id)
	defer unlock()

	current, err := l.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if !pick(*current) {
		return false, nil
	}
	return true, l.store.SetReview(ctx, id, l.reviewState(decision, reviewedBy, nil))
}

// Statistics aggregates the ledger
func (l *Ledger) Statistics(ctx context.Context) (models.ReviewStatistics, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Ledger.Statistics")
	defer span.End()

	candidates, err := l.store.List(ctx, Filter{})
	if err != nil {
		return models.ReviewStatistics{}, err
	}
	return Summarize(candidates), nil
}

// Summarize computes review statistics over a candidate list
func Summarize(candidates []models.MatchCandidate) models.ReviewStatistics {
	s := models.ReviewStatistics{
		Total:       len(candidates),
		ByDecision:  make(map[models.Decision]int),
		ByMatchType: make(map[models.MatchType]int),
	}
	if len(candidates) == 0 {
		return s
	}

	confidences := make([]float64, 0, len(candidates))
	for _, c := range candidates {
		s.ByDecision[normalizeDecision(c.Review.Decision)]++
		s.ByMatchType[c.MatchType]++
		confidences = append(confidences, c.Confidence)
	}

	s.MeanConfidence, _ = stats.Mean(confidences)
	s.MedianConfidence, _ = stats.Median(confidences)
	s.ConfirmationRate = float64(s.ByDecision[models.DecisionConfirm]) / float64(s.Total)
	return s
}

func (l *Ledger) reviewState(decision models.Decision, reviewedBy string, notes *string) models.ReviewState {
	if decision == models.DecisionNone {
		return models.ReviewState{Decision: models.DecisionNone}
	}
	at := l.now().UTC()
	state := models.ReviewState{
		Decision:   decision,
		ReviewedAt: &at,
		Notes:      notes,
	}
	if reviewedBy != "" {
		state.ReviewedBy = &reviewedBy
	}
	return state
}

func pending(c models.MatchCandidate) bool {
	return normalizeDecision(c.Review.Decision) == models.DecisionNone
}

func validDecision(d models.Decision) bool {
	switch d {
	case models.DecisionNone, models.DecisionConfirm, models.DecisionReject, models.DecisionDefer:
		return true
	}
	return false
}

// keyedMutex hands out one mutex per candidate id
type keyedMutex struct {
	locks sync.Map
}

func (k *keyedMutex) lock(key string) func() {
	v, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
