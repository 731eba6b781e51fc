package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tripserrors "tripsync/internal/trips/errors"
	"tripsync/internal/trips/repository"
	"tripsync/pkg/config"
	"tripsync/pkg/metrics"
	"tripsync/pkg/model"

	"github.com/google/uuid"
)

// MaxHolderLength matches the lock_holder column.
const MaxHolderLength = 100

// LockManager hands out short-lived advisory locks. Acquire never waits: a
// held resource yields ErrLockContention at once.
type LockManager interface {
	Acquire(ctx context.Context, resourceType string, resourceID int64, ttl time.Duration) (*model.Lock, error)
	// Release deletes the lock only if lease still owns it.
	Release(ctx context.Context, lease *model.Lock) (bool, error)
}

type lockManager struct {
	repo repository.LockRepository
	cfg  *config.Config
}

func NewLockManager(repo repository.LockRepository, cfg *config.Config) LockManager {
	return &lockManager{
		repo: repo,
		cfg:  cfg,
	}
}

// NewHolderID mints a holder identity unique to one acquisition.
func NewHolderID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "unknown"
	}
	id := fmt.Sprintf("%s_%d_%s", host, os.Getpid(), uuid.NewString())
	if len(id) > MaxHolderLength {
		id = id[len(id)-MaxHolderLength:]
	}
	return id
}

func (m *lockManager) Acquire(ctx context.Context, resourceType string, resourceID int64, ttl time.Duration) (*model.Lock, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock ttl must be positive, got %s", ttl)
	}

	if purged, err := m.repo.DeleteExpired(ctx); err != nil {
		m.cfg.Log.Warn("Failed to purge expired locks", "error", err)
	} else if purged > 0 {
		m.cfg.Log.Debug("Purged expired locks", "count", purged)
	}

	lease := &model.Lock{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Holder:       NewHolderID(),
		Reason:       model.DefaultLockReason,
	}
	if err := m.repo.InsertIfAbsent(ctx, lease, ttl); err != nil {
		metrics.LockAcquireTotal.WithLabelValues(metrics.LockResultError).Inc()
		return nil, err
	}

	stored, err := m.repo.FindLock(ctx, resourceType, resourceID)
	if err != nil && !errors.Is(err, tripserrors.ErrLockNotFound) {
		metrics.LockAcquireTotal.WithLabelValues(metrics.LockResultError).Inc()
		return nil, err
	}
	if stored == nil || stored.Holder != lease.Holder {
		metrics.LockAcquireTotal.WithLabelValues(metrics.LockResultContention).Inc()
		return nil, tripserrors.ErrLockContention
	}

	metrics.LockAcquireTotal.WithLabelValues(metrics.LockResultAcquired).Inc()
	return stored, nil
}

func (m *lockManager) Release(ctx context.Context, lease *model.Lock) (bool, error) {
	if lease == nil {
		return false, nil
	}
	return m.repo.DeleteByHolder(ctx, lease.ResourceType, lease.ResourceID, lease.Holder)
}
