package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	tripserrors "tripsync/internal/trips/errors"
	"tripsync/internal/trips/repository"
	"tripsync/pkg/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func TestNewHolderID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewHolderID()
		if len(id) > MaxHolderLength {
			t.Fatalf("holder %q longer than %d", id, MaxHolderLength)
		}
		if seen[id] {
			t.Fatalf("holder %q minted twice", id)
		}
		seen[id] = true
	}
	if id := NewHolderID(); !strings.Contains(id, fmt.Sprintf("_%d_", os.Getpid())) {
		t.Errorf("holder %q should carry the pid", id)
	}
}

func TestLockManager_MutualExclusion(t *testing.T) {
	ctx := context.Background()
	locks := NewLockManager(repository.NewMemoryLockRepository(), newTestConfig())

	first, err := locks.Acquire(ctx, model.ResourceTrip, 42, 10*time.Second)
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}

	if _, err := locks.Acquire(ctx, model.ResourceTrip, 42, 10*time.Second); !errors.Is(err, tripserrors.ErrLockContention) {
		t.Fatalf("second Acquire() error = %v, want ErrLockContention", err)
	}
	if _, err := locks.Acquire(ctx, model.ResourceTrip, 43, 10*time.Second); err != nil {
		t.Fatalf("other resource Acquire() error = %v", err)
	}

	released, err := locks.Release(ctx, first)
	if err != nil || !released {
		t.Fatalf("Release() = %v, %v; want true, nil", released, err)
	}
	if released, _ := locks.Release(ctx, first); released {
		t.Errorf("second Release() should report false")
	}

	second, err := locks.Acquire(ctx, model.ResourceTrip, 42, 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	if second.Holder == first.Holder {
		t.Errorf("each acquisition needs its own holder")
	}
}

func TestLockManager_ConcurrentAcquireSingleWinner(t *testing.T) {
	ctx := context.Background()
	locks := NewLockManager(repository.NewMemoryLockRepository(), newTestConfig())

	var winners, losers atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, err := locks.Acquire(gctx, model.ResourceTrip, 42, 10*time.Second)
			switch {
			case err == nil:
				winners.Add(1)
			case errors.Is(err, tripserrors.ErrLockContention):
				losers.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if winners.Load() != 1 || losers.Load() != 19 {
		t.Errorf("winners = %d, losers = %d; want 1 and 19", winners.Load(), losers.Load())
	}
}

func TestLockManager_ExpiredLockIsReclaimed(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryLockRepository()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	repo.SetClock(func() time.Time { return now })
	locks := NewLockManager(repo, newTestConfig())

	stale, err := locks.Acquire(ctx, model.ResourceTrip, 42, 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	now = now.Add(5 * time.Second)
	if _, err := locks.Acquire(ctx, model.ResourceTrip, 42, 10*time.Second); !errors.Is(err, tripserrors.ErrLockContention) {
		t.Fatalf("live lock should block, got %v", err)
	}

	now = now.Add(6 * time.Second)
	fresh, err := locks.Acquire(ctx, model.ResourceTrip, 42, 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire() after expiry error = %v", err)
	}
	if !fresh.ExpiresAt.Equal(now.Add(10 * time.Second)) {
		t.Errorf("ExpiresAt = %s, want %s", fresh.ExpiresAt, now.Add(10*time.Second))
	}

	if released, _ := locks.Release(ctx, stale); released {
		t.Errorf("expired holder must not release the new lock")
	}
	if released, _ := locks.Release(ctx, fresh); !released {
		t.Errorf("current holder should release")
	}
}

func TestLockManager_PurgeFailureIsNotFatal(t *testing.T) {
	var inserted *model.Lock
	repo := &mockLockRepository{
		deleteExpiredFunc: func(ctx context.Context) (int64, error) {
			return 0, errors.New("purge failed")
		},
		insertIfAbsentFunc: func(ctx context.Context, lock *model.Lock, ttl time.Duration) error {
			stored := *lock
			inserted = &stored
			return nil
		},
		findLockFunc: func(ctx context.Context, resourceType string, resourceID int64) (*model.Lock, error) {
			return inserted, nil
		},
	}
	locks := NewLockManager(repo, newTestConfig())

	lease, err := locks.Acquire(context.Background(), model.ResourceTrip, 1, time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if lease.Holder != inserted.Holder {
		t.Errorf("lease holder = %s, want %s", lease.Holder, inserted.Holder)
	}
}

func TestLockManager_StorageErrors(t *testing.T) {
	storageErr := errors.New("connection refused")

	tests := []struct {
		name string
		repo *mockLockRepository
	}{
		{
			name: "insert fails",
			repo: &mockLockRepository{
				insertIfAbsentFunc: func(ctx context.Context, lock *model.Lock, ttl time.Duration) error {
					return storageErr
				},
			},
		},
		{
			name: "holder read fails",
			repo: &mockLockRepository{
				findLockFunc: func(ctx context.Context, resourceType string, resourceID int64) (*model.Lock, error) {
					return nil, storageErr
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locks := NewLockManager(tt.repo, newTestConfig())
			_, err := locks.Acquire(context.Background(), model.ResourceTrip, 1, time.Second)
			if !errors.Is(err, storageErr) {
				t.Fatalf("Acquire() error = %v, want storage error", err)
			}
			if errors.Is(err, tripserrors.ErrLockContention) {
				t.Errorf("storage failure must not look like contention")
			}
		})
	}
}

func TestLockManager_RejectsNonPositiveTTL(t *testing.T) {
	locks := NewLockManager(repository.NewMemoryLockRepository(), newTestConfig())
	if _, err := locks.Acquire(context.Background(), model.ResourceTrip, 1, 0); err == nil {
		t.Fatal("Acquire() with zero ttl should fail")
	}
}

func TestLockManager_RedisBackend(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	locks := NewLockManager(repository.NewRedisLockRepository(client), newTestConfig())

	lease, err := locks.Acquire(ctx, model.ResourceTrip, 42, 10*time.Second)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := locks.Acquire(ctx, model.ResourceTrip, 42, 10*time.Second); !errors.Is(err, tripserrors.ErrLockContention) {
		t.Fatalf("second Acquire() error = %v, want ErrLockContention", err)
	}

	mr.FastForward(11 * time.Second)
	if _, err := locks.Acquire(ctx, model.ResourceTrip, 42, 10*time.Second); err != nil {
		t.Fatalf("Acquire() after expiry error = %v", err)
	}
	if released, _ := locks.Release(ctx, lease); released {
		t.Errorf("expired lease must not release the new holder's lock")
	}
}
