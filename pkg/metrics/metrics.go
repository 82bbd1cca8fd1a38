// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResolutionsTotal tracks batch resolution runs by outcome
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "runs_total",
			Help:      "Total number of batch resolution runs by status",
		},
		[]string{"status"},
	)

	// ResolutionDuration tracks batch resolution duration in seconds
	ResolutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "run_duration_seconds",
			Help:      "Duration of batch resolution runs in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
	)

	// ComparisonsTotal tracks pairwise comparisons performed
	ComparisonsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "comparisons_total",
			Help:      "Total number of pairwise comparisons performed",
		},
	)

	// CandidatesTotal tracks emitted match candidates by match type
	CandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "candidates_total",
			Help:      "Total number of match candidates emitted by match type",
		},
		[]string{"match_type"},
	)

	// SkippedRecordsTotal tracks records skipped as malformed
	SkippedRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "skipped_records_total",
			Help:      "Total number of input records skipped as malformed",
		},
	)

	// ReviewDecisionsTotal tracks review decisions by decision and source
	ReviewDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "review",
			Name:      "decisions_total",
			Help:      "Total number of review decisions recorded",
		},
		[]string{"decision", "mode"},
	)

	// KafkaPublishTotal tracks Kafka publish operations
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "publish_total",
			Help:      "Total number of Kafka publish operations",
		},
		[]string{"topic", "status"},
	)
)

// RecordResolution records one batch resolution run
func RecordResolution(status string, durationSeconds float64, comparisons int) {
	ResolutionsTotal.WithLabelValues(status).Inc()
	ResolutionDuration.Observe(durationSeconds)
	ComparisonsTotal.Add(float64(comparisons))
}

// RecordCandidates records emitted candidates per match type
func RecordCandidates(byMatchType map[string]int) {
	for matchType, count := range byMatchType {
		CandidatesTotal.WithLabelValues(matchType).Add(float64(count))
	}
}

// RecordSkippedRecords records malformed records dropped from a batch
func RecordSkippedRecords(n int) {
	SkippedRecordsTotal.Add(float64(n))
}

// RecordReviewDecision records a review decision; mode is "single" or "bulk"
func RecordReviewDecision(decision, mode string, count int) {
	ReviewDecisionsTotal.WithLabelValues(decision, mode).Add(float64(count))
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string) {
	KafkaPublishTotal.WithLabelValues(topic, status).Inc()
}
