// Package events fans ledger changes out to other services. Publishing is
// best effort: a lost event never undoes a committed reservation.
package events

import (
	"context"
	"fmt"
	"slotkeeper/pkg/kafka"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/metrics"
	"slotkeeper/pkg/middleware"
	"slotkeeper/pkg/model"
	"time"
)

const (
	Source        = "slotkeeper"
	SchemaVersion = "1"
)

type Publisher interface {
	Publish(ctx context.Context, event model.ReservationEvent) error
	Close() error
}

// sink is the part of kafka.Producer the publisher needs.
type sink interface {
	Publish(ctx context.Context, msg kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	producer sink
	timeout  time.Duration
	log      *logger.Logger
}

// NewKafkaPublisher wires logging and metrics into the producer chain.
func NewKafkaPublisher(producer *kafka.Producer, timeout time.Duration, log *logger.Logger) *KafkaPublisher {
	log = log.Component("events")
	producer.Use(kafka.LoggingMiddleware(log))
	producer.Use(MetricsMiddleware())
	return newKafkaPublisher(producer, timeout, log)
}

func newKafkaPublisher(s sink, timeout time.Duration, log *logger.Logger) *KafkaPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &KafkaPublisher{producer: s, timeout: timeout, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event model.ReservationEvent) error {
	msg, err := kafka.NewMessage().
		WithKey(event.ReservationID).
		WithValue(event).
		WithEventType(string(event.Type)).
		WithCorrelationID(middleware.RequestID(ctx)).
		WithSchemaVersion(SchemaVersion).
		WithSource(Source).
		WithTimestamp(event.OccurredAt).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build event message: %w", err)
	}

	// The request may already be finishing; the event should still go out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	return p.producer.Publish(ctx, msg)
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// MetricsMiddleware counts publishes by event type and result.
func MetricsMiddleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next func(ctx context.Context, msg kafka.Message) error) error {
		err := next(ctx, msg)
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.IncEventPublished(msg.GetEventType(), result)
		return err
	}
}

// NoopPublisher is used when EVENTS_ENABLED is false.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, model.ReservationEvent) error { return nil }
func (NoopPublisher) Close() error                                          { return nil }
