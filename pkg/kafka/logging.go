package kafka

import (
	"context"
	"time"

	"slotkeeper/pkg/logger"
)

func LoggingMiddleware(log *logger.Logger) ProducerMiddleware {
	return func(ctx context.Context, msg Message, next func(ctx context.Context, msg Message) error) error {
		start := time.Now()
		err := next(ctx, msg)

		attrs := []any{
			"topic", msg.Topic,
			"key", msg.Key,
			"event_id", msg.GetEventID(),
			"event_type", msg.GetEventType(),
			"duration", time.Since(start),
		}
		if err != nil {
			log.Warn("failed to publish message", append(attrs, "error", err, "error_type", ClassifyError(err).String())...)
			return err
		}
		log.Debug("published message", attrs...)
		return nil
	}
}
