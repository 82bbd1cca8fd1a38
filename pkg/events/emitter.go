// Package events publishes resolution outcomes and resolves import batches
package events

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	EventResolutionCompleted = "resolution.completed"
	EventMatchCandidate      = "match.candidate"
)

// Publisher writes events to the outcome topic
type Publisher interface {
	Publish(ctx context.Context, messages ...kafka.OutgoingMessage) error
}

// RunInfo identifies where a resolution run came from
type RunInfo struct {
	BatchID    string
	TenantID   string
	EntityType string
}

// ResolutionCompletedEvent summarizes one finished run
type ResolutionCompletedEvent struct {
	Type       string                      `json:"type"`
	RunID      string                      `json:"run_id"`
	BatchID    string                      `json:"batch_id,omitempty"`
	TenantID   string                      `json:"tenant_id,omitempty"`
	EntityType string                      `json:"entity_type,omitempty"`
	Statistics models.ResolutionStatistics `json:"statistics"`
	Warnings   int                         `json:"warnings"`
	Timestamp  time.Time                   `json:"timestamp"`
}

// MatchCandidateEvent announces one match or possible match
type MatchCandidateEvent struct {
	Type      string                `json:"type"`
	RunID     string                `json:"run_id"`
	TenantID  string                `json:"tenant_id,omitempty"`
	Candidate models.MatchCandidate `json:"candidate"`
	Timestamp time.Time             `json:"timestamp"`
}

// Emitter turns resolution results into Kafka events
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
	now       func() time.Time
}

// NewEmitter creates a new Emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// EmitResolution publishes one match.candidate event per match or possible
// match, followed by a resolution.completed event, in a single batch
func (e *Emitter) EmitResolution(ctx context.Context, info RunInfo, result *models.ResolutionResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitResolution")
	defer span.End()

	now := e.now().UTC()
	messages := make([]kafka.OutgoingMessage, 0, len(result.Candidates)+1)
	for _, c := range result.Candidates {
		if c.MatchType == models.MatchTypeNonMatch {
			continue
		}
		messages = append(messages, kafka.OutgoingMessage{
			Key: c.ID,
			Value: MatchCandidateEvent{
				Type:      EventMatchCandidate,
				RunID:     result.RunID,
				TenantID:  info.TenantID,
				Candidate: c,
				Timestamp: now,
			},
			Headers: kafka.MessageHeaders{
				EventType:  EventMatchCandidate,
				TenantID:   info.TenantID,
				EntityType: c.Entity1Type,
				BatchID:    info.BatchID,
			},
		})
	}

	messages = append(messages, kafka.OutgoingMessage{
		Key: result.RunID,
		Value: ResolutionCompletedEvent{
			Type:       EventResolutionCompleted,
			RunID:      result.RunID,
			BatchID:    info.BatchID,
			TenantID:   info.TenantID,
			EntityType: info.EntityType,
			Statistics: result.Statistics,
			Warnings:   len(result.Warnings),
			Timestamp:  now,
		},
		Headers: kafka.MessageHeaders{
			EventType:  EventResolutionCompleted,
			TenantID:   info.TenantID,
			EntityType: info.EntityType,
			BatchID:    info.BatchID,
		},
	})

	if err := e.publisher.Publish(ctx, messages...); err != nil {
		return err
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":     result.RunID,
		"batch_id":   info.BatchID,
		"candidates": len(messages) - 1,
	}).Debug("Emitted resolution events")
	return nil
}
