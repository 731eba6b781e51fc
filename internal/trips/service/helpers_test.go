package service

import (
	"context"
	"testing"
	"time"

	"tripsync/internal/trips/repository"
	"tripsync/pkg/config"
	"tripsync/pkg/logger"
	"tripsync/pkg/model"
)

// ────────────────────────────────────────────────
// Shared fixtures
// ────────────────────────────────────────────────

func newTestConfig() *config.Config {
	return &config.Config{
		Log:             logger.Discard(),
		AcceptLockTTL:   10 * time.Second,
		CompleteLockTTL: 30 * time.Second,
		AuditTimeout:    time.Second,
		ReadTimeout:     time.Second,
		WriteTimeout:    time.Second,
	}
}

type fixture struct {
	cfg         *config.Config
	store       *repository.MemoryStore
	lockRepo    *repository.MemoryLockRepository
	locks       LockManager
	audit       *SyncAuditLog
	coordinator TripCoordinator
}

type fixtureOption func(deps *CoordinatorDeps)

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()
	cfg := newTestConfig()
	store := repository.NewMemoryStore()
	lockRepo := repository.NewMemoryLockRepository()
	locks := NewLockManager(lockRepo, cfg)
	audit := NewSyncAuditLog(cfg, SyncSink{Name: "memory", Repo: store.SyncLog()})

	deps := CoordinatorDeps{
		Trips:       store.Trips(),
		Assignments: store.Assignments(),
		Drivers:     store.Drivers(),
		Locks:       locks,
		Audit:       audit,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	f := &fixture{
		cfg:         cfg,
		store:       store,
		lockRepo:    lockRepo,
		locks:       locks,
		audit:       audit,
		coordinator: NewTripCoordinator(deps, cfg),
	}
	t.Cleanup(audit.Close)
	return f
}

func (f *fixture) seedTrip(t *testing.T, id, version int64) {
	t.Helper()
	if err := f.store.Trips().Create(context.Background(), &model.TripRequest{ID: id, Version: version}); err != nil {
		t.Fatalf("seed trip %d: %v", id, err)
	}
}

func (f *fixture) seedDriver(t *testing.T, id int64, available bool, status model.VerificationStatus) {
	t.Helper()
	driver := &model.Driver{ID: id, Available: available, VerificationStatus: status}
	if err := f.store.Drivers().Create(context.Background(), driver); err != nil {
		t.Fatalf("seed driver %d: %v", id, err)
	}
}

func (f *fixture) trip(t *testing.T, id int64) *model.TripRequest {
	t.Helper()
	trip, err := f.store.Trips().FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("read trip %d: %v", id, err)
	}
	return trip
}

func (f *fixture) driver(t *testing.T, id int64) *model.Driver {
	t.Helper()
	driver, err := f.store.Drivers().FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("read driver %d: %v", id, err)
	}
	return driver
}

func (f *fixture) assignmentCount(t *testing.T, tripID int64) int {
	t.Helper()
	n, err := f.store.Assignments().CountByTrip(context.Background(), tripID)
	if err != nil {
		t.Fatalf("count assignments: %v", err)
	}
	return n
}

func (f *fixture) assertUnlocked(t *testing.T, tripID int64) {
	t.Helper()
	if lock, err := f.lockRepo.FindLock(context.Background(), model.ResourceTrip, tripID); err == nil {
		t.Errorf("trip %d still locked by %s", tripID, lock.Holder)
	}
}

// retryOnContention mimics a client that retries lock contention.
func retryOnContention(op func() Result) Result {
	var res Result
	for i := 0; i < 500; i++ {
		res = op()
		if res.Code != CodeLockContention {
			return res
		}
		time.Sleep(time.Millisecond)
	}
	return res
}

func int64Ptr(v int64) *int64 {
	return &v
}

// ────────────────────────────────────────────────
// Mock repositories
// ────────────────────────────────────────────────

type mockLockRepository struct {
	deleteExpiredFunc  func(ctx context.Context) (int64, error)
	insertIfAbsentFunc func(ctx context.Context, lock *model.Lock, ttl time.Duration) error
	findLockFunc       func(ctx context.Context, resourceType string, resourceID int64) (*model.Lock, error)
	deleteByHolderFunc func(ctx context.Context, resourceType string, resourceID int64, holder string) (bool, error)
}

func (m *mockLockRepository) DeleteExpired(ctx context.Context) (int64, error) {
	if m.deleteExpiredFunc != nil {
		return m.deleteExpiredFunc(ctx)
	}
	return 0, nil
}

func (m *mockLockRepository) InsertIfAbsent(ctx context.Context, lock *model.Lock, ttl time.Duration) error {
	if m.insertIfAbsentFunc != nil {
		return m.insertIfAbsentFunc(ctx, lock, ttl)
	}
	return nil
}

func (m *mockLockRepository) FindLock(ctx context.Context, resourceType string, resourceID int64) (*model.Lock, error) {
	if m.findLockFunc != nil {
		return m.findLockFunc(ctx, resourceType, resourceID)
	}
	return nil, nil
}

func (m *mockLockRepository) DeleteByHolder(ctx context.Context, resourceType string, resourceID int64, holder string) (bool, error) {
	if m.deleteByHolderFunc != nil {
		return m.deleteByHolderFunc(ctx, resourceType, resourceID, holder)
	}
	return true, nil
}

// mockTripRepository overrides single calls of a real repository.
type mockTripRepository struct {
	repository.TripRepository
	findByIDForUpdateFunc func(ctx context.Context, id int64) (*model.TripRequest, error)
	conditionalUpdateFunc func(ctx context.Context, id int64, cond model.UpdateCondition, changes model.TripChanges, opKey string) (model.VersionedUpdate, error)
}

func (m *mockTripRepository) FindByIDForUpdate(ctx context.Context, id int64) (*model.TripRequest, error) {
	if m.findByIDForUpdateFunc != nil {
		return m.findByIDForUpdateFunc(ctx, id)
	}
	return m.TripRepository.FindByIDForUpdate(ctx, id)
}

func (m *mockTripRepository) ConditionalUpdate(ctx context.Context, id int64, cond model.UpdateCondition, changes model.TripChanges, opKey string) (model.VersionedUpdate, error) {
	if m.conditionalUpdateFunc != nil {
		return m.conditionalUpdateFunc(ctx, id, cond, changes, opKey)
	}
	return m.TripRepository.ConditionalUpdate(ctx, id, cond, changes, opKey)
}

type mockSyncLogRepository struct {
	insertFunc func(ctx context.Context, entry *model.SyncLogEntry) error
}

func (m *mockSyncLogRepository) Insert(ctx context.Context, entry *model.SyncLogEntry) error {
	if m.insertFunc != nil {
		return m.insertFunc(ctx, entry)
	}
	return nil
}

type mockEventPublisher struct {
	publishFunc func(ctx context.Context, event model.TripEvent) error
}

func (m *mockEventPublisher) PublishTripEvent(ctx context.Context, event model.TripEvent) error {
	if m.publishFunc != nil {
		return m.publishFunc(ctx, event)
	}
	return nil
}
