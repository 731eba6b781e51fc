package events

import (
	"context"
	"fmt"

	"tripsync/internal/trips/repository"
	"tripsync/pkg/kafka"
	"tripsync/pkg/logger"
	"tripsync/pkg/model"
)

// KafkaSyncLogRepository streams sync log entries to a topic. It is one of
// the SyncAuditLog sinks; the sync archiver drains the topic into MongoDB.
type KafkaSyncLogRepository struct {
	publisher Publisher
}

var _ repository.SyncLogRepository = (*KafkaSyncLogRepository)(nil)

func NewKafkaSyncLogRepository(publisher Publisher) *KafkaSyncLogRepository {
	return &KafkaSyncLogRepository{publisher: publisher}
}

func (r *KafkaSyncLogRepository) Insert(ctx context.Context, entry *model.SyncLogEntry) error {
	msg, err := newTripMessage(ctx, entry.TripID, EventSyncLogEntry, entry, entry.Timestamp)
	if err != nil {
		return err
	}
	if err := r.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish sync log entry for trip %d: %w", entry.TripID, err)
	}
	return nil
}

// SyncLogArchiver persists consumed sync log entries into a repository.
type SyncLogArchiver struct {
	repo repository.SyncLogRepository
	log  *logger.Logger
}

func NewSyncLogArchiver(repo repository.SyncLogRepository, log *logger.Logger) *SyncLogArchiver {
	return &SyncLogArchiver{repo: repo, log: log}
}

// Handle is a kafka.MessageHandler. Undecodable payloads are permanent
// failures; storage errors are transient so the consumer retries them.
func (a *SyncLogArchiver) Handle(ctx context.Context, msg kafka.Message) error {
	if eventType := msg.GetEventType(); eventType != "" && eventType != EventSyncLogEntry {
		a.log.Debug("Skipping non sync-log message", "event_type", eventType, "offset", msg.Offset)
		return nil
	}

	var entry model.SyncLogEntry
	if err := msg.DecodeValue(&entry); err != nil {
		return kafka.NewPermanentError("failed to decode sync log entry", err)
	}
	if entry.TripID <= 0 || entry.Operation == "" {
		return kafka.NewPermanentError(fmt.Sprintf("invalid sync log entry at offset %d", msg.Offset), kafka.ErrInvalidMessage)
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = msg.Timestamp
	}

	if err := a.repo.Insert(ctx, &entry); err != nil {
		return kafka.NewTransientError("failed to archive sync log entry", err)
	}
	return nil
}
