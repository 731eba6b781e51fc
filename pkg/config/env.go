package config

const (
	EnvPostgresURL         = "POSTGRES_URL"
	EnvPostgresMaxConns    = "POSTGRES_MAX_CONNS"
	EnvPostgresConnTimeout = "POSTGRES_CONN_TIMEOUT"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvMongoConnTimeout  = "MONGO_CONN_TIMEOUT"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvLockBackend       = "LOCK_BACKEND"
	EnvAcceptLockTTL     = "ACCEPT_LOCK_TTL"
	EnvCompleteLockTTL   = "COMPLETE_LOCK_TTL"
	EnvLockSweepInterval = "LOCK_SWEEP_INTERVAL"
	EnvAuditTimeout      = "AUDIT_TIMEOUT"

	EnvKafkaEnabled    = "KAFKA_ENABLED"
	EnvSyncLogTopic    = "SYNC_LOG_TOPIC"
	EnvTripEventsTopic = "TRIP_EVENTS_TOPIC"

	EnvJWTSecret      = "JWT_SECRET"
	EnvTracingEnabled = "TRACING_ENABLED"

	EnvPort        = "PORT"
	EnvLogLevel    = "LOG_LEVEL"
	EnvMetricsPath = "METRICS_PATH"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)
