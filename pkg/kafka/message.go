package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/clover/pkg/models"
)

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   MessageHeaders
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Parsed content
	ImportBatch *models.ImportBatch
}

// ParseImportBatch parses the message value as an import batch. Header values
// fill in a tenant or entity type the body leaves out.
func (m *IncomingMessage) ParseImportBatch() error {
	var batch models.ImportBatch
	if err := json.Unmarshal(m.Value, &batch); err != nil {
		return fmt.Errorf("invalid import batch: %w", err)
	}
	if batch.TenantID == "" {
		batch.TenantID = m.Headers.TenantID
	}
	if batch.EntityType == "" {
		batch.EntityType = m.Headers.EntityType
	}
	if batch.BatchID == "" {
		batch.BatchID = m.Key
	}
	m.ImportBatch = &batch
	return nil
}

// MessageHeaders contains the Kafka headers clover reads and writes
type MessageHeaders struct {
	EventType   string
	TenantID    string
	EntityType  string
	BatchID     string
	TraceParent string
	TraceState  string
}

// ToKafkaHeaders converts MessageHeaders to Kafka headers, skipping empty values
func (h MessageHeaders) ToKafkaHeaders() []kafka.Header {
	headers := make([]kafka.Header, 0, 7)

	add := func(key, value string) {
		if value != "" {
			headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
		}
	}
	add("event_type", h.EventType)
	add("tenant_id", h.TenantID)
	add("entity_type", h.EntityType)
	add("batch_id", h.BatchID)
	add("traceparent", h.TraceParent)
	add("tracestate", h.TraceState)
	headers = append(headers, kafka.Header{Key: "schema_version", Value: []byte(schemaVersion)})

	return headers
}

// ExtractHeaders extracts MessageHeaders from Kafka headers
func ExtractHeaders(headers []kafka.Header) MessageHeaders {
	var mh MessageHeaders
	for _, h := range headers {
		switch h.Key {
		case "event_type":
			mh.EventType = string(h.Value)
		case "tenant_id":
			mh.TenantID = string(h.Value)
		case "entity_type":
			mh.EntityType = string(h.Value)
		case "batch_id":
			mh.BatchID = string(h.Value)
		case "traceparent":
			mh.TraceParent = string(h.Value)
		case "tracestate":
			mh.TraceState = string(h.Value)
		}
	}
	return mh
}
