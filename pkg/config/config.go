package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"tripsync/pkg/client"
	"tripsync/pkg/db/postgres"
	"tripsync/pkg/logger"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	PostgresURL         string
	PostgresMaxConns    int
	PostgresConnTimeout time.Duration

	MongoURI          string
	MongoDatabaseName string
	MongoConnTimeout  time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	LockBackend       string
	AcceptLockTTL     time.Duration
	CompleteLockTTL   time.Duration
	LockSweepInterval time.Duration
	AuditTimeout      time.Duration

	KafkaEnabled    bool
	SyncLogTopic    string
	TripEventsTopic string

	JWTSecret      string
	TracingEnabled bool

	Port        string
	MetricsPath string

	RequestTimeout time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Log    *logger.Logger
	Client *client.Client
}

func Load(serviceName string) *Config {
	cfg := &Config{
		PostgresURL:         getEnvStr(EnvPostgresURL, DefaultPostgresURL),
		PostgresMaxConns:    getEnvNum(EnvPostgresMaxConns, DefaultPostgresMaxConns),
		PostgresConnTimeout: getEnvDuration(EnvPostgresConnTimeout, DefaultPostgresConnTimeout),

		MongoURI:          getEnvStr(EnvMongoURI, ""),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		MongoConnTimeout:  getEnvDuration(EnvMongoConnTimeout, DefaultMongoConnTimeout),

		RedisAddr:     getEnvStr(EnvRedisAddr, DefaultRedisAddr),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),
		RedisDB:       getEnvNum(EnvRedisDB, DefaultRedisDB),

		LockBackend:       getEnvStr(EnvLockBackend, DefaultLockBackend),
		AcceptLockTTL:     getEnvDuration(EnvAcceptLockTTL, DefaultAcceptLockTTL),
		CompleteLockTTL:   getEnvDuration(EnvCompleteLockTTL, DefaultCompleteLockTTL),
		LockSweepInterval: getEnvDuration(EnvLockSweepInterval, DefaultLockSweepInterval),
		AuditTimeout:      getEnvDuration(EnvAuditTimeout, DefaultAuditTimeout),

		KafkaEnabled:    getEnvBool(EnvKafkaEnabled, false),
		SyncLogTopic:    getEnvStr(EnvSyncLogTopic, DefaultSyncLogTopic),
		TripEventsTopic: getEnvStr(EnvTripEventsTopic, DefaultTripEventsTopic),

		JWTSecret:      getEnvStr(EnvJWTSecret, ""),
		TracingEnabled: getEnvBool(EnvTracingEnabled, false),

		Port:        getEnvStr(EnvPort, DefaultPort),
		MetricsPath: getEnvStr(EnvMetricsPath, DefaultMetricsPath),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),

		Log: logger.New(logger.Config{
			Level:     getEnvStr(EnvLogLevel, DefaultLogLevel),
			Format:    logger.JSON,
			AddSource: true,
			Service:   serviceName,
		}),
		Client: client.NewClient(),
	}

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func (cfg *Config) SetPostgres() {
	cfg.Client.SetPostgres(cfg.Log, postgres.PoolConfig{
		URL:         cfg.PostgresURL,
		MaxConns:    int32(cfg.PostgresMaxConns),
		ConnTimeout: cfg.PostgresConnTimeout,
	})
}

// SetMongo connects only when a URI is configured.
func (cfg *Config) SetMongo() {
	if cfg.MongoURI == "" {
		return
	}
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.MongoConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, cfg.PostgresConnTimeout)
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	if !regexp.MustCompile(`^postgres(ql)?://`).MatchString(cfg.PostgresURL) {
		errors = append(errors, "PostgresURL must start with 'postgres://' or 'postgresql://'")
	}
	if cfg.PostgresMaxConns <= 0 {
		errors = append(errors, fmt.Sprintf("PostgresMaxConns must be positive, got: %d", cfg.PostgresMaxConns))
	}
	if cfg.PostgresConnTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("PostgresConnTimeout must be positive, got: %s", cfg.PostgresConnTimeout))
	}

	if cfg.MongoURI != "" && !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
		errors = append(errors, "MongoURI must start with 'mongodb://' or 'mongodb+srv://'")
	}
	if cfg.MongoURI != "" && cfg.MongoDatabaseName == "" {
		errors = append(errors, "MongoDatabaseName cannot be empty when MongoURI is set")
	}

	switch cfg.LockBackend {
	case LockBackendPostgres, LockBackendMemory:
	case LockBackendRedis:
		if cfg.RedisAddr == "" {
			errors = append(errors, "RedisAddr cannot be empty when LockBackend is redis")
		}
	default:
		errors = append(errors, fmt.Sprintf("LockBackend must be one of postgres, redis, memory, got: %s", cfg.LockBackend))
	}

	if cfg.AcceptLockTTL <= 0 {
		errors = append(errors, fmt.Sprintf("AcceptLockTTL must be positive, got: %s", cfg.AcceptLockTTL))
	}
	if cfg.CompleteLockTTL <= 0 {
		errors = append(errors, fmt.Sprintf("CompleteLockTTL must be positive, got: %s", cfg.CompleteLockTTL))
	}
	if cfg.LockSweepInterval < 0 {
		errors = append(errors, fmt.Sprintf("LockSweepInterval cannot be negative, got: %s", cfg.LockSweepInterval))
	}
	if cfg.AuditTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("AuditTimeout must be positive, got: %s", cfg.AuditTimeout))
	}

	if cfg.KafkaEnabled && (cfg.SyncLogTopic == "" || cfg.TripEventsTopic == "") {
		errors = append(errors, "SyncLogTopic and TripEventsTopic cannot be empty when Kafka is enabled")
	}

	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"postgres_url", redactURL(cfg.PostgresURL),
		"postgres_max_conns", cfg.PostgresMaxConns,
		"mongo_uri", redactURL(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"redis_addr", cfg.RedisAddr,
		"lock_backend", cfg.LockBackend,
		"accept_lock_ttl", cfg.AcceptLockTTL,
		"complete_lock_ttl", cfg.CompleteLockTTL,
		"lock_sweep_interval", cfg.LockSweepInterval,
		"audit_timeout", cfg.AuditTimeout,
		"kafka_enabled", cfg.KafkaEnabled,
		"sync_log_topic", cfg.SyncLogTopic,
		"trip_events_topic", cfg.TripEventsTopic,
		"jwt_secret_set", cfg.JWTSecret != "",
		"tracing_enabled", cfg.TracingEnabled,
		"port", cfg.Port,
		"metrics_path", cfg.MetricsPath,
		"request_timeout", cfg.RequestTimeout,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
	)
}

var credentialRegex = regexp.MustCompile(`(://)[^:/@]+:[^@]+@`)

func redactURL(uri string) string {
	return credentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown(cfg.Log, cfg.ShutdownTimeout)
}
