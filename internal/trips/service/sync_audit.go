package service

import (
	"context"
	"sync"
	"time"

	"tripsync/internal/trips/repository"
	"tripsync/pkg/config"
	"tripsync/pkg/logger"
	"tripsync/pkg/metrics"
	"tripsync/pkg/model"
)

// SyncSink is one destination of the sync audit trail.
type SyncSink struct {
	Name string
	Repo repository.SyncLogRepository
}

// SyncAuditLog appends sync attempts to every sink in the background.
// Write failures are logged and counted, never returned.
type SyncAuditLog struct {
	sinks   []SyncSink
	timeout time.Duration
	log     *logger.Logger
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewSyncAuditLog(cfg *config.Config, sinks ...SyncSink) *SyncAuditLog {
	return &SyncAuditLog{
		sinks:   sinks,
		timeout: cfg.AuditTimeout,
		log:     cfg.Log,
		now:     time.Now,
	}
}

func (a *SyncAuditLog) LogSync(
	ctx context.Context,
	tripID int64,
	operation model.SyncOperation,
	clientVersion, serverVersion *int64,
	wasConflict bool,
	resolution string,
	details map[string]any,
) {
	a.Record(ctx, model.SyncLogEntry{
		TripID:        tripID,
		Operation:     operation,
		ClientVersion: clientVersion,
		ServerVersion: serverVersion,
		WasConflict:   wasConflict,
		Resolution:    resolution,
		Details:       details,
	})
}

// Record returns immediately; the entry is written by a tracked goroutine.
func (a *SyncAuditLog) Record(ctx context.Context, entry model.SyncLogEntry) {
	if len(a.sinks) == 0 {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = a.now().UTC()
	}

	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.log.Warn("Sync log closed, dropping entry", "trip_id", entry.TripID, "operation", entry.Operation)
		return
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()
		for _, sink := range a.sinks {
			a.write(writeCtx, sink, &entry)
		}
	}()
}

func (a *SyncAuditLog) write(ctx context.Context, sink SyncSink, entry *model.SyncLogEntry) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SyncLogFailures.WithLabelValues(sink.Name).Inc()
			a.log.Error("Sync log sink panicked", "sink", sink.Name, "trip_id", entry.TripID, "panic", r)
		}
	}()

	if err := sink.Repo.Insert(ctx, entry); err != nil {
		metrics.SyncLogFailures.WithLabelValues(sink.Name).Inc()
		a.log.Warn("Failed to write sync log",
			"sink", sink.Name,
			"trip_id", entry.TripID,
			"operation", entry.Operation,
			"error", err,
		)
	}
}

// Close stops accepting entries and waits for in-flight writes.
func (a *SyncAuditLog) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
	a.wg.Wait()
}
