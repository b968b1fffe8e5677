// Package events publishes record lifecycle events on Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/query"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/segmentio/kafka-go"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

type EventType string

const (
	RecordCreated EventType = "record.created"
	RecordUpdated EventType = "record.updated"
	RecordDeleted EventType = "record.deleted"
)

// RecordEvent describes a change to one record.
type RecordEvent struct {
	EventType EventType       `json:"event_type"`
	Entity    string          `json:"entity"`
	RecordID  string          `json:"record_id"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher emits record lifecycle events.
type Publisher interface {
	Created(ctx context.Context, entity, primaryKey string, records []query.Record) error
	Updated(ctx context.Context, entity string, ids []any) error
	Deleted(ctx context.Context, entity string, ids []any) error
}

// messageWriter is the subset of *kafka.Writer used by the producer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// Producer publishes record events to a single topic.
type Producer struct {
	writer messageWriter
	logger ectologger.Logger
	topic  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           kafka.RequiredAcks(cfg.RequiredAcks),
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return newProducer(writer, cfg.Topic, logger)
}

func newProducer(writer messageWriter, topic string, logger ectologger.Logger) *Producer {
	return &Producer{
		writer: writer,
		logger: logger,
		topic:  topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

func (p *Producer) Created(ctx context.Context, entity, primaryKey string, records []query.Record) error {
	events := make([]*RecordEvent, 0, len(records))
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode %s record: %w", entity, err)
		}
		events = append(events, &RecordEvent{
			EventType: RecordCreated,
			Entity:    entity,
			RecordID:  fmt.Sprint(r[primaryKey]),
			Data:      data,
		})
	}
	return p.Publish(ctx, events...)
}

func (p *Producer) Updated(ctx context.Context, entity string, ids []any) error {
	return p.Publish(ctx, idEvents(RecordUpdated, entity, ids)...)
}

func (p *Producer) Deleted(ctx context.Context, entity string, ids []any) error {
	return p.Publish(ctx, idEvents(RecordDeleted, entity, ids)...)
}

// Publish writes events in one batch. Records are keyed by entity and id so every
// change to a record lands on the same partition.
func (p *Producer) Publish(ctx context.Context, events ...*RecordEvent) error {
	ctx, span := tracing.StartSpan(ctx, "events.Producer.Publish")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	traceParent := tracing.TraceParent(ctx)
	requestID := appctx.GetRequestID(ctx)
	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		headers := []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "entity", Value: []byte(event.Entity)},
			{Key: "schema_version", Value: []byte(SchemaVersion)},
		}
		if traceParent != "" {
			headers = append(headers, kafka.Header{Key: "traceparent", Value: []byte(traceParent)})
		}
		if requestID != "" {
			headers = append(headers, kafka.Header{Key: "request_id", Value: []byte(requestID)})
		}

		messages[i] = kafka.Message{
			Topic:   p.topic,
			Key:     []byte(event.Entity + ":" + event.RecordID),
			Value:   data,
			Headers: headers,
		}
	}

	err := p.writer.WriteMessages(ctx, messages...)
	metrics.RecordKafkaPublish(p.topic, err)
	if err != nil {
		tracing.RecordError(span, err)
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
			"topic":      p.topic,
		}).Error("Failed to publish record events")
		return fmt.Errorf("failed to publish record events: %w", err)
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
		"event_type": events[0].EventType,
		"entity":     events[0].Entity,
	}).Debug("Published record events")

	return nil
}

func idEvents(eventType EventType, entity string, ids []any) []*RecordEvent {
	events := make([]*RecordEvent, 0, len(ids))
	for _, id := range ids {
		events = append(events, &RecordEvent{
			EventType: eventType,
			Entity:    entity,
			RecordID:  fmt.Sprint(id),
		})
	}
	return events
}

// Noop discards every event. It is used when publishing is disabled.
type Noop struct{}

func (Noop) Created(context.Context, string, string, []query.Record) error { return nil }
func (Noop) Updated(context.Context, string, []any) error                  { return nil }
func (Noop) Deleted(context.Context, string, []any) error                  { return nil }
