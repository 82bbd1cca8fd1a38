package events

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	ererrors "github.com/Ramsey-B/clover/pkg/errors"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/matching"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/review"
	"github.com/Ramsey-B/clover/pkg/rules"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ImportHandler resolves import batches delivered over Kafka
type ImportHandler struct {
	logger   ectologger.Logger
	resolver *matching.Resolver
	registry *rules.Registry
	config   models.ResolutionConfig
	ledger   *review.Ledger
	emitter  *Emitter
}

// NewImportHandler creates a handler. A nil emitter disables outcome events.
func NewImportHandler(
	logger ectologger.Logger,
	resolver *matching.Resolver,
	registry *rules.Registry,
	config models.ResolutionConfig,
	ledger *review.Ledger,
	emitter *Emitter,
) *ImportHandler {
	return &ImportHandler{
		logger:   logger,
		resolver: resolver,
		registry: registry,
		config:   config,
		ledger:   ledger,
		emitter:  emitter,
	}
}

// Handle resolves one batch with the current rule set, records the candidates
// in the ledger and emits outcome events. A returned error leaves the message
// uncommitted.
func (h *ImportHandler) Handle(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "events.ImportHandler.Handle")
	defer span.End()

	batch := msg.ImportBatch
	if batch == nil {
		return fmt.Errorf("message at offset %d carries no import batch", msg.Offset)
	}

	log := h.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_id":    batch.BatchID,
		"tenant_id":   batch.TenantID,
		"entity_type": batch.EntityType,
		"entities":    len(batch.Entities),
	})

	result, err := h.resolver.Resolve(ctx, batch.Entities, h.registry.Current(), h.config, matching.Options{EntityType: batch.EntityType})
	if err != nil {
		if ererrors.IsEmptyInputError(err) {
			log.Warn("Skipping empty import batch")
			return nil
		}
		log.WithError(err).Error("Failed to resolve import batch")
		return err
	}

	if err := h.ledger.Record(ctx, result.Candidates); err != nil {
		return fmt.Errorf("failed to record candidates: %w", err)
	}

	if h.emitter != nil {
		info := RunInfo{BatchID: batch.BatchID, TenantID: batch.TenantID, EntityType: batch.EntityType}
		if err := h.emitter.EmitResolution(ctx, info, result); err != nil {
			return fmt.Errorf("failed to emit resolution events: %w", err)
		}
	}

	log.WithFields(map[string]any{
		"run_id":     result.RunID,
		"candidates": len(result.Candidates),
		"warnings":   len(result.Warnings),
	}).Info("Resolved import batch")
	return nil
}
