package events

import (
	"context"
	"strconv"
	"time"

	"tripsync/pkg/kafka"
	"tripsync/pkg/model"

	"go.opentelemetry.io/otel/trace"
)

const (
	Source = "tripsync"

	EventSyncLogEntry = "trip.sync-log"
	SchemaVersion     = "1"
)

// Publisher is the part of *kafka.Producer the trip events need.
type Publisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// TripEventPublisher writes committed trip transitions keyed by trip id, so
// one trip's events stay ordered on a single partition.
type TripEventPublisher struct {
	publisher Publisher
}

func NewTripEventPublisher(publisher Publisher) *TripEventPublisher {
	return &TripEventPublisher{publisher: publisher}
}

func (p *TripEventPublisher) PublishTripEvent(ctx context.Context, event model.TripEvent) error {
	msg, err := newTripMessage(ctx, event.TripID, event.Type, event, event.OccurredAt)
	if err != nil {
		return err
	}
	return p.publisher.Publish(ctx, msg)
}

// newTripMessage stamps the message with occurredAt; a zero time keeps the
// build time.
func newTripMessage(ctx context.Context, tripID int64, eventType string, value any, occurredAt time.Time) (kafka.Message, error) {
	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	builder := kafka.NewMessage()
	if !occurredAt.IsZero() {
		builder.WithTimestamp(occurredAt.UTC())
	}
	return builder.
		WithKey(strconv.FormatInt(tripID, 10)).
		WithValue(value).
		WithEventType(eventType).
		WithSource(Source).
		WithHeader(kafka.HeaderSchemaVersion, SchemaVersion).
		WithTraceID(traceID).
		Build()
}
