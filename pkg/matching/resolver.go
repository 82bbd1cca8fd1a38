// Package matching scores record pairs and drives batch resolution:
// blocking narrows the pairs, the scorer classifies them, and only candidates
// above the consideration floor are returned.
package matching

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"

	"github.com/Ramsey-B/clover/pkg/blocking"
	ererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/rules"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// highConfidence is the confidence at or above which a match counts as high confidence
const highConfidence = 0.8

// Options narrows one resolution run
type Options struct {
	// EntityType restricts the run to records of this type (empty = all)
	EntityType string
}

// Resolver runs blocking and pairwise scoring over a record collection. It
// holds no configuration of its own: rules and thresholds are passed per call.
type Resolver struct {
	log    ectologger.Logger
	scorer *Scorer
	now    func() time.Time
}

// NewResolver creates a new Resolver
func NewResolver(log ectologger.Logger) *Resolver {
	return &Resolver{
		log:    log,
		scorer: NewScorer(),
		now:    time.Now,
	}
}

// ResolvePair scores two records directly, bypassing blocking. The candidate is
// returned whatever its band, so callers can inspect non-matches too.
func (r *Resolver) ResolvePair(a, b models.EntityRecord, rs *rules.RuleSet, cfg models.ResolutionConfig) (models.MatchCandidate, error) {
	if err := rules.ValidateConfig(cfg); err != nil {
		return models.MatchCandidate{}, err
	}
	for _, e := range []models.EntityRecord{a, b} {
		if err := e.Validate(); err != nil {
			return models.MatchCandidate{}, ererrors.NewConfigurationErrorf("invalid record: %v", err)
		}
	}
	if a.ID == b.ID {
		return models.MatchCandidate{}, ererrors.NewConfigurationErrorf("cannot compare record %q with itself", a.ID)
	}
	c := r.scorer.Candidate(a, b, rs.Enabled(), cfg)
	c.CreatedAt = r.now()
	return c, nil
}

// Resolve finds match candidates in entities. Candidates scoring strictly above
// cfg.MinScore are returned sorted by descending similarity.
//
// An invalid cfg is rejected before any record is read. Malformed records are
// skipped and reported as warnings. An empty input returns an empty result
// together with an EmptyInputError, which callers treat as a no-op.
func (r *Resolver) Resolve(ctx context.Context, entities []models.EntityRecord, rs *rules.RuleSet, cfg models.ResolutionConfig, opts Options) (*models.ResolutionResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Resolver.Resolve")
	defer span.End()

	start := r.now()
	result := &models.ResolutionResult{
		RunID:      uuid.NewString(),
		Candidates: []models.MatchCandidate{},
		Statistics: models.ResolutionStatistics{
			ByMatchType: map[models.MatchType]int{},
		},
	}

	log := r.log.WithContext(ctx).WithFields(map[string]any{
		"run_id":      result.RunID,
		"entities":    len(entities),
		"entity_type": opts.EntityType,
	})

	if rs == nil {
		return nil, ererrors.NewConfigurationError("no rule set supplied")
	}
	if err := rules.ValidateConfig(cfg); err != nil {
		log.WithError(err).Warn("Rejected resolution config")
		return nil, err
	}
	if len(entities) == 0 {
		log.Debug("No entities supplied; nothing to resolve")
		return result, ererrors.NewEmptyInputError("batch resolution", 1, 0)
	}

	valid, warnings := prepare(entities, opts)
	result.Warnings = warnings
	result.Statistics.TotalEntities = len(entities)
	result.Statistics.SkippedEntities = len(warnings)
	if len(warnings) > 0 {
		log.WithField("skipped", len(warnings)).Warn("Skipped malformed entities")
		metrics.RecordSkippedRecords(len(warnings))
	}

	indexer := blocking.NewIndexer(blocking.WithMaxBlockSize(cfg.MaxBlockSize))
	blocks, oversized := indexer.Build(valid)
	if oversized > 0 {
		log.WithField("oversized_blocks", oversized).Warn("Dropped blocks above the size cap")
	}
	assigned := blocking.AssignPairs(blocks)
	result.Statistics.Blocks = len(blocks)

	byID := models.IndexEntities(valid)
	enabled := rs.Enabled()
	perBlock := make([][]models.MatchCandidate, len(blocks))
	comparisons := 0
	for _, pairs := range assigned {
		comparisons += len(pairs)
	}
	result.Statistics.Comparisons = comparisons

	createdAt := r.now()
	g, gctx := errgroup.WithContext(ctx)
	if cfg.Workers > 1 {
		g.SetLimit(cfg.Workers)
	} else {
		g.SetLimit(1)
	}
	for bi := range blocks {
		pairs := assigned[bi]
		if len(pairs) == 0 {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var kept []models.MatchCandidate
			for _, p := range pairs {
				c := r.scorer.Candidate(byID[p.A], byID[p.B], enabled, cfg)
				if c.SimilarityScore > cfg.MinScore {
					c.CreatedAt = createdAt
					kept = append(kept, c)
				}
			}
			perBlock[bi] = kept
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.WithError(err).Warn("Resolution cancelled")
		metrics.RecordResolution("cancelled", r.now().Sub(start).Seconds(), comparisons)
		return nil, err
	}

	for _, kept := range perBlock {
		result.Candidates = append(result.Candidates, kept...)
	}
	SortCandidates(result.Candidates)

	result.Statistics = summarize(result.Statistics, result.Candidates)
	result.Statistics.Duration = r.now().Sub(start)

	byType := make(map[string]int, len(result.Statistics.ByMatchType))
	for mt, n := range result.Statistics.ByMatchType {
		byType[string(mt)] = n
	}
	metrics.RecordResolution("success", result.Statistics.Duration.Seconds(), comparisons)
	metrics.RecordCandidates(byType)

	log.WithFields(map[string]any{
		"blocks":      len(blocks),
		"comparisons": comparisons,
		"candidates":  len(result.Candidates),
	}).Info("Batch resolution completed")

	return result, nil
}

// prepare drops malformed records, duplicate ids and records outside the type filter
func prepare(entities []models.EntityRecord, opts Options) ([]models.EntityRecord, []models.BatchWarning) {
	valid := make([]models.EntityRecord, 0, len(entities))
	var warnings []models.BatchWarning
	seen := make(map[string]struct{}, len(entities))

	for i, e := range entities {
		if err := e.Validate(); err != nil {
			warnings = append(warnings, models.BatchWarning{EntityID: e.ID, Index: i, Message: err.Error()})
			continue
		}
		if _, dup := seen[e.ID]; dup {
			warnings = append(warnings, models.BatchWarning{
				EntityID: e.ID,
				Index:    i,
				Message:  fmt.Sprintf("duplicate entity id %q", e.ID),
			})
			continue
		}
		seen[e.ID] = struct{}{}
		if opts.EntityType != "" && e.Type != opts.EntityType {
			continue
		}
		valid = append(valid, e)
	}
	return valid, warnings
}

// SortCandidates orders by descending similarity, then by pair ids
func SortCandidates(candidates []models.MatchCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].SimilarityScore != candidates[j].SimilarityScore {
			return candidates[i].SimilarityScore > candidates[j].SimilarityScore
		}
		if candidates[i].Entity1ID != candidates[j].Entity1ID {
			return candidates[i].Entity1ID < candidates[j].Entity1ID
		}
		return candidates[i].Entity2ID < candidates[j].Entity2ID
	})
}

func summarize(s models.ResolutionStatistics, candidates []models.MatchCandidate) models.ResolutionStatistics {
	s.Candidates = len(candidates)
	s.ByMatchType = map[models.MatchType]int{}
	if len(candidates) == 0 {
		return s
	}

	sims := make([]float64, 0, len(candidates))
	confs := make([]float64, 0, len(candidates))
	for _, c := range candidates {
		s.ByMatchType[c.MatchType]++
		sims = append(sims, c.SimilarityScore)
		confs = append(confs, c.Confidence)
		if c.MatchType == models.MatchTypeMatch && c.Confidence >= highConfidence {
			s.HighConfidenceMatches++
		}
	}
	s.AverageSimilarity, _ = stats.Mean(sims)
	s.AverageConfidence, _ = stats.Mean(confs)
	return s
}
