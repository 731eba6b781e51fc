package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"tripsync/internal/trips/events"
	"tripsync/internal/trips/repository"
	"tripsync/pkg/config"
	"tripsync/pkg/kafka"
	kafka_config "tripsync/pkg/kafka/config"
	kafka_middleware "tripsync/pkg/kafka/middleware"
)

const ServiceName = "tripsync-sync-archiver"

// sync-archiver copies sync log entries from Kafka into the Mongo archive.
func main() {
	cfg := config.Load(ServiceName)
	if cfg.MongoURI == "" {
		cfg.Log.Fatal("MONGO_URI is required for the sync archiver")
	}
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	kafkaCfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kafkaCfg.LogConfiguration(cfg.Log)

	archiver := events.NewSyncLogArchiver(repository.NewMongoSyncLogRepository(cfg), cfg.Log)
	consumer, err := kafka.NewConsumer(kafkaCfg, cfg.SyncLogTopic, archiver.Handle, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}
	consumer.Use(kafka_middleware.LoggingConsumerMiddleware(cfg.Log))
	consumer.Use(kafka_middleware.MetricsConsumerMiddleware())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.Log.Info("Starting sync log archiver", "topic", cfg.SyncLogTopic)
	if err := consumer.Start(ctx); err != nil {
		cfg.Log.Error("Consumer stopped with error", "error", err)
	}
	if err := consumer.Close(); err != nil {
		cfg.Log.Warn("Failed to close Kafka consumer", "error", err)
	}
	cfg.Log.Info("Sync log archiver stopped")
}
