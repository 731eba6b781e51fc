package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// OperationsTotal counts coordinator operations by outcome code.
	OperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripsync_operations_total",
		Help: "Total number of trip coordinator operations by result code",
	}, []string{"operation", "code"})
	// OperationDuration observes coordinator latency including lock wait.
	OperationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tripsync_operation_duration_seconds",
		Help:    "Duration of trip coordinator operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	LockAcquireTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripsync_lock_acquire_total",
		Help: "Lock acquisition attempts by result",
	}, []string{"result"})
	LockReleaseFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripsync_lock_release_failures_total",
		Help: "Lock releases that errored or found no owned row",
	})
	LocksSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tripsync_locks_swept_total",
		Help: "Expired locks removed by the background sweeper",
	})
	SyncLogFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripsync_sync_log_failures_total",
		Help: "Sync log writes that failed per sink",
	}, []string{"sink"})
	KafkaMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "tripsync_kafka_messages_total",
		Help: "Kafka messages handled by direction and status",
	}, []string{"direction", "topic", "status"})
)

const (
	LockResultAcquired   = "acquired"
	LockResultContention = "contention"
	LockResultError      = "error"
)

func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// RegisterCoreMetrics registers every tripsync collector on reg.
func RegisterCoreMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		OperationsTotal,
		OperationDuration,
		LockAcquireTotal,
		LockReleaseFailures,
		LocksSwept,
		SyncLogFailures,
		KafkaMessagesTotal,
	)
}
