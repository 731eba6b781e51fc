package repository

import (
	"context"
	"fmt"

	"tripsync/pkg/config"
	"tripsync/pkg/model"

	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresSyncLogRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSyncLogRepository(cfg *config.Config) SyncLogRepository {
	return &postgresSyncLogRepository{pool: cfg.Client.Postgres}
}

func (r *postgresSyncLogRepository) Insert(ctx context.Context, entry *model.SyncLogEntry) error {
	var details any
	if len(entry.Details) > 0 {
		details = entry.Details
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sync_log (trip_id, operation, client_version, server_version, was_conflict, resolution, details, created_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)`,
		entry.TripID, string(entry.Operation), entry.ClientVersion, entry.ServerVersion,
		entry.WasConflict, entry.Resolution, details, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync log for trip %d: %w", entry.TripID, err)
	}
	return nil
}
