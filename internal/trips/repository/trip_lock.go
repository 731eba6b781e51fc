package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	tripserrors "tripsync/internal/trips/errors"
	"tripsync/pkg/config"
	"tripsync/pkg/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Lock rows are written on the pool, never inside a caller's transaction,
// so other holders see them immediately.
type postgresLockRepository struct {
	cfg  *config.Config
	pool *pgxpool.Pool
}

func NewPostgresLockRepository(cfg *config.Config) LockRepository {
	return &postgresLockRepository{cfg: cfg, pool: cfg.Client.Postgres}
}

func (r *postgresLockRepository) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM distributed_locks WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired locks: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *postgresLockRepository) InsertIfAbsent(ctx context.Context, lock *model.Lock, ttl time.Duration) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO distributed_locks (resource_type, resource_id, lock_holder, expires_at, reason)
		 VALUES ($1, $2, $3, now() + ($4::bigint * interval '1 millisecond'), $5)
		 ON CONFLICT (resource_type, resource_id) DO NOTHING`,
		lock.ResourceType, lock.ResourceID, lock.Holder, ttl.Milliseconds(), lock.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lock %s:%d: %w", lock.ResourceType, lock.ResourceID, err)
	}
	return nil
}

func (r *postgresLockRepository) FindLock(ctx context.Context, resourceType string, resourceID int64) (*model.Lock, error) {
	var (
		lock   model.Lock
		reason *string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT resource_type, resource_id, lock_holder, expires_at, reason, created_at
		 FROM distributed_locks
		 WHERE resource_type = $1 AND resource_id = $2`,
		resourceType, resourceID,
	).Scan(&lock.ResourceType, &lock.ResourceID, &lock.Holder, &lock.ExpiresAt, &reason, &lock.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tripserrors.ErrLockNotFound
		}
		return nil, fmt.Errorf("failed to read lock %s:%d: %w", resourceType, resourceID, err)
	}
	if reason != nil {
		lock.Reason = *reason
	}
	return &lock, nil
}

func (r *postgresLockRepository) DeleteByHolder(ctx context.Context, resourceType string, resourceID int64, holder string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM distributed_locks
		 WHERE resource_type = $1 AND resource_id = $2 AND lock_holder = $3`,
		resourceType, resourceID, holder,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete lock %s:%d: %w", resourceType, resourceID, err)
	}
	return tag.RowsAffected() > 0, nil
}
