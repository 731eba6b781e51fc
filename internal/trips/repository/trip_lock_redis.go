package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	tripserrors "tripsync/internal/trips/errors"
	"tripsync/pkg/model"

	"github.com/redis/go-redis/v9"
)

const redisLockPrefix = "tripsync:lock:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// Redis keys expire natively, so DeleteExpired has nothing to do.
type redisLockRepository struct {
	client *redis.Client
}

func NewRedisLockRepository(client *redis.Client) LockRepository {
	return &redisLockRepository{client: client}
}

func redisLockKey(resourceType string, resourceID int64) string {
	return fmt.Sprintf("%s%s:%d", redisLockPrefix, resourceType, resourceID)
}

func (r *redisLockRepository) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func (r *redisLockRepository) InsertIfAbsent(ctx context.Context, lock *model.Lock, ttl time.Duration) error {
	key := redisLockKey(lock.ResourceType, lock.ResourceID)
	if err := r.client.SetNX(ctx, key, lock.Holder, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set lock %s: %w", key, err)
	}
	return nil
}

func (r *redisLockRepository) FindLock(ctx context.Context, resourceType string, resourceID int64) (*model.Lock, error) {
	key := redisLockKey(resourceType, resourceID)

	pipe := r.client.Pipeline()
	holderCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read lock %s: %w", key, err)
	}

	holder, err := holderCmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, tripserrors.ErrLockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lock %s: %w", key, err)
	}

	now := time.Now()
	lock := &model.Lock{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Holder:       holder,
		Reason:       model.DefaultLockReason,
		ExpiresAt:    now,
	}
	if ttl := ttlCmd.Val(); ttl > 0 {
		lock.ExpiresAt = now.Add(ttl)
	}
	return lock, nil
}

func (r *redisLockRepository) DeleteByHolder(ctx context.Context, resourceType string, resourceID int64, holder string) (bool, error) {
	key := redisLockKey(resourceType, resourceID)
	deleted, err := releaseScript.Run(ctx, r.client, []string{key}, holder).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return deleted > 0, nil
}
