package kafka_middleware

import (
	"context"

	"tripsync/pkg/kafka"
	"tripsync/pkg/metrics"
)

const (
	DirectionProduce = "produce"
	DirectionConsume = "consume"

	StatusSuccess = "success"
	StatusFailure = "failure"
)

func MetricsProducerMiddleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		err := next(ctx, msg)
		metrics.KafkaMessagesTotal.WithLabelValues(DirectionProduce, msg.Topic, status(err)).Inc()
		return err
	}
}

func MetricsConsumerMiddleware() kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		err := next(ctx, msg)
		metrics.KafkaMessagesTotal.WithLabelValues(DirectionConsume, msg.Topic, status(err)).Inc()
		return err
	}
}

func status(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}
