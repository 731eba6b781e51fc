package main

import (
	"context"
	"os"

	"tripsync/internal/trips/events"
	"tripsync/internal/trips/handler"
	"tripsync/internal/trips/repository"
	"tripsync/internal/trips/service"
	"tripsync/internal/trips/validator"
	"tripsync/pkg/app"
	"tripsync/pkg/config"
	"tripsync/pkg/kafka"
	kafka_config "tripsync/pkg/kafka/config"
	kafka_middleware "tripsync/pkg/kafka/middleware"
	"tripsync/pkg/metrics"
	"tripsync/pkg/tracing"

	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const ServiceName = "tripsync"

func main() {
	cfg := config.Load(ServiceName)
	if cfg.JWTSecret == "" {
		cfg.Log.Fatal("JWT_SECRET is required to authenticate drivers")
	}

	shutdownTracing, err := tracing.Setup(cfg.TracingEnabled, os.Stdout, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to set up tracing", "error", err)
	}

	cfg.SetPostgres()
	cfg.SetMongo()
	if cfg.LockBackend == config.LockBackendRedis {
		cfg.SetRedis()
	}

	registry := metrics.NewRegistry()
	metrics.RegisterCoreMetrics(registry)

	serverApp := app.NewApplication(cfg)

	cfg.Log.Info("Starting Trip sync service")
	coordinator, sweeper := initServices(cfg, serverApp)

	serverApp.SetApp(
		handler.NewHealthHandler(cfg.Log, dependencyChecks(cfg)...),
		handler.NewTripHandler(coordinator, cfg.Log),
		registry,
	)
	serverApp.AddWorker(sweeper.Run)
	serverApp.OnShutdown(func() {
		if err := shutdownTracing(context.Background()); err != nil {
			cfg.Log.Warn("Failed to flush traces", "error", err)
		}
	})
	serverApp.OnShutdown(cfg.GracefulShutdown)

	if err := serverApp.Run(); err != nil {
		cfg.Log.Fatal("Trip sync service failed", "error", err)
	}
}

func initServices(cfg *config.Config, serverApp *app.Application) (service.TripCoordinator, *service.LockSweeper) {
	lockRepo := newLockRepository(cfg)

	sinks := []service.SyncSink{{Name: "postgres", Repo: repository.NewPostgresSyncLogRepository(cfg)}}
	if cfg.Client.Mongo != nil {
		sinks = append(sinks, service.SyncSink{Name: "mongo", Repo: repository.NewMongoSyncLogRepository(cfg)})
	}

	var tripEvents service.TripEventPublisher
	var producers []*kafka.Producer
	if cfg.KafkaEnabled {
		kafkaCfg, err := kafka_config.Load()
		if err != nil {
			cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
		}
		kafkaCfg.LogConfiguration(cfg.Log)

		syncLogProducer := newProducer(cfg, kafkaCfg, cfg.SyncLogTopic)
		tripEventProducer := newProducer(cfg, kafkaCfg, cfg.TripEventsTopic)
		sinks = append(sinks, service.SyncSink{Name: "kafka", Repo: events.NewKafkaSyncLogRepository(syncLogProducer)})
		tripEvents = events.NewTripEventPublisher(tripEventProducer)
		producers = append(producers, syncLogProducer, tripEventProducer)
	}

	auditLog := service.NewSyncAuditLog(cfg, sinks...)
	// producers close after the audit log has drained its writes
	serverApp.OnShutdown(auditLog.Close)
	serverApp.OnShutdown(func() {
		for _, p := range producers {
			if err := p.Close(); err != nil {
				cfg.Log.Warn("Failed to close Kafka producer", "topic", p.Topic(), "error", err)
			}
		}
	})

	trips := repository.NewPostgresTripRepository(cfg)
	coordinator := service.NewTripCoordinator(service.CoordinatorDeps{
		Trips:       trips,
		Assignments: repository.NewPostgresAssignmentRepository(cfg),
		Drivers:     repository.NewPostgresDriverRepository(cfg),
		Locks:       service.NewLockManager(lockRepo, cfg),
		Store:       service.NewVersionedRecordStore(trips),
		Audit:       auditLog,
		Events:      tripEvents,
		Validator:   validator.NewTripValidator(cfg.Log),
	}, cfg)

	cfg.Log.Info("Trip coordinator initialized",
		"lock_backend", cfg.LockBackend,
		"sync_log_sinks", len(sinks),
		"kafka_enabled", cfg.KafkaEnabled,
	)
	return coordinator, service.NewLockSweeper(lockRepo, cfg.LockSweepInterval, cfg.Log)
}

func newLockRepository(cfg *config.Config) repository.LockRepository {
	switch cfg.LockBackend {
	case config.LockBackendRedis:
		return repository.NewRedisLockRepository(cfg.Client.Redis)
	case config.LockBackendMemory:
		cfg.Log.Warn("In-memory locks only exclude operations within this process")
		return repository.NewMemoryLockRepository()
	default:
		return repository.NewPostgresLockRepository(cfg)
	}
}

func newProducer(cfg *config.Config, kafkaCfg *kafka_config.Config, topic string) *kafka.Producer {
	producer, err := kafka.NewProducer(kafkaCfg, topic, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "topic", topic, "error", err)
	}
	producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
	producer.Use(kafka_middleware.MetricsProducerMiddleware())
	return producer
}

func dependencyChecks(cfg *config.Config) []handler.DependencyCheck {
	checks := []handler.DependencyCheck{{Name: "postgres", Ping: cfg.Client.Postgres.Ping}}
	if cfg.Client.Mongo != nil {
		checks = append(checks, handler.DependencyCheck{
			Name: "mongo",
			Ping: func(ctx context.Context) error { return cfg.Client.Mongo.Ping(ctx, readpref.Primary()) },
		})
	}
	if cfg.Client.Redis != nil {
		checks = append(checks, handler.DependencyCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return cfg.Client.Redis.Ping(ctx).Err() },
		})
	}
	return checks
}
