package repository

import (
	"context"
	"fmt"

	"tripsync/pkg/config"
	"tripsync/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

const SyncLogCollection = "Sync_log"

type mongoSyncLogRepository struct {
	collection *mongo.Collection
}

func NewMongoSyncLogRepository(cfg *config.Config) SyncLogRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoSyncLogRepository{collection: db.Collection(SyncLogCollection)}
}

func (r *mongoSyncLogRepository) Insert(ctx context.Context, entry *model.SyncLogEntry) error {
	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		return fmt.Errorf("failed to insert sync log for trip %d: %w", entry.TripID, err)
	}
	return nil
}
