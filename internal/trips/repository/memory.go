package repository

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	tripserrors "tripsync/internal/trips/errors"
	"tripsync/pkg/db/postgres"
	apperrors "tripsync/pkg/errors"
	"tripsync/pkg/model"
)

// MemoryStore keeps trips, assignments, drivers and sync log entries in
// process. Transactions are serialized on one mutex and roll back by
// restoring a snapshot, which also gives FindByIDForUpdate its row lock.
type MemoryStore struct {
	txMu sync.Mutex

	trips       map[int64]model.TripRequest
	drivers     map[int64]model.Driver
	assignments []model.Assignment
	syncLog     []model.SyncLogEntry
	nextID      int64

	now func() time.Time
}

type memoryTx struct {
	store  *MemoryStore
	active atomic.Bool
}

type memoryTxKey struct{}

type memorySnapshot struct {
	trips       map[int64]model.TripRequest
	drivers     map[int64]model.Driver
	assignments []model.Assignment
	syncLog     []model.SyncLogEntry
	nextID      int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trips:   make(map[int64]model.TripRequest),
		drivers: make(map[int64]model.Driver),
		now:     time.Now,
	}
}

// Trips, Assignments, Drivers and SyncLog expose the store through the
// repository interfaces.
func (s *MemoryStore) Trips() TripRepository             { return memoryTrips{s} }
func (s *MemoryStore) Assignments() AssignmentRepository { return memoryAssignments{s} }
func (s *MemoryStore) Drivers() DriverRepository         { return memoryDrivers{s} }
func (s *MemoryStore) SyncLog() SyncLogRepository        { return memorySyncLog{s} }

// SyncLogEntries returns a copy of every logged entry.
func (s *MemoryStore) SyncLogEntries() []model.SyncLogEntry {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return append([]model.SyncLogEntry(nil), s.syncLog...)
}

func (s *MemoryStore) inTx(ctx context.Context) bool {
	tx, ok := ctx.Value(memoryTxKey{}).(*memoryTx)
	return ok && tx.store == s && tx.active.Load()
}

func (s *MemoryStore) lock(ctx context.Context) func() {
	if s.inTx(ctx) {
		return func() {}
	}
	s.txMu.Lock()
	return s.txMu.Unlock
}

func (s *MemoryStore) ExecuteTransaction(ctx context.Context, fn postgres.TransactionFunc) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	tx := &memoryTx{store: s}
	tx.active.Store(true)
	defer tx.active.Store(false)

	if err := fn(context.WithValue(ctx, memoryTxKey{}, tx)); err != nil {
		s.restore(snap)
		if apperrors.IsAppError(err) {
			return err
		}
		return fmt.Errorf("transaction failed: %w", err)
	}
	return nil
}

func (s *MemoryStore) snapshot() memorySnapshot {
	snap := memorySnapshot{
		trips:       make(map[int64]model.TripRequest, len(s.trips)),
		drivers:     make(map[int64]model.Driver, len(s.drivers)),
		assignments: append([]model.Assignment(nil), s.assignments...),
		syncLog:     append([]model.SyncLogEntry(nil), s.syncLog...),
		nextID:      s.nextID,
	}
	for id, trip := range s.trips {
		snap.trips[id] = trip
	}
	for id, driver := range s.drivers {
		snap.drivers[id] = driver
	}
	return snap
}

func (s *MemoryStore) restore(snap memorySnapshot) {
	s.trips = snap.trips
	s.drivers = snap.drivers
	s.assignments = snap.assignments
	s.syncLog = snap.syncLog
	s.nextID = snap.nextID
}

func (s *MemoryStore) activeAssignment(tripID int64) (int, bool) {
	for i, a := range s.assignments {
		if a.TripID == tripID && a.State.IsActive() {
			return i, true
		}
	}
	return 0, false
}

func timePtr(t time.Time) *time.Time {
	return &t
}

type memoryTrips struct{ s *MemoryStore }

func (r memoryTrips) Create(ctx context.Context, trip *model.TripRequest) error {
	defer r.s.lock(ctx)()

	if _, exists := r.s.trips[trip.ID]; exists {
		return fmt.Errorf("failed to insert trip %d: duplicate id", trip.ID)
	}
	if trip.Version <= 0 {
		trip.Version = 1
	}
	if trip.State == "" {
		trip.State = model.TripPending
	}
	trip.CreatedAt = r.s.now()
	r.s.trips[trip.ID] = *trip
	return nil
}

func (r memoryTrips) FindByID(ctx context.Context, id int64) (*model.TripRequest, error) {
	defer r.s.lock(ctx)()
	return r.find(id)
}

func (r memoryTrips) FindByIDForUpdate(ctx context.Context, id int64) (*model.TripRequest, error) {
	defer r.s.lock(ctx)()
	return r.find(id)
}

func (r memoryTrips) find(id int64) (*model.TripRequest, error) {
	trip, ok := r.s.trips[id]
	if !ok {
		return nil, tripserrors.ErrNotFound
	}
	trip.AssignedDriverID = nil
	if i, ok := r.s.activeAssignment(id); ok {
		driverID := r.s.assignments[i].DriverID
		trip.AssignedDriverID = &driverID
	}
	return &trip, nil
}

func (r memoryTrips) ConditionalUpdate(ctx context.Context, id int64, cond model.UpdateCondition, changes model.TripChanges, opKey string) (model.VersionedUpdate, error) {
	defer r.s.lock(ctx)()

	trip, ok := r.s.trips[id]
	if !ok || !cond.Matches(&trip) {
		return model.VersionedUpdate{}, nil
	}

	now := r.s.now()
	if changes.State != nil {
		trip.State = *changes.State
	}
	if changes.DistanceKm != nil {
		distance := *changes.DistanceKm
		trip.DistanceKm = &distance
	}
	if changes.DurationMin != nil {
		duration := *changes.DurationMin
		trip.DurationMin = &duration
	}
	if changes.StampAccepted {
		trip.AcceptedAt = timePtr(now)
	}
	if changes.StampArrived {
		trip.ArrivedAt = timePtr(now)
	}
	if changes.StampStarted {
		trip.StartedAt = timePtr(now)
	}
	if changes.StampCompleted {
		trip.CompletedAt = timePtr(now)
	}
	if opKey != "" {
		trip.LastOperationKey = opKey
	}
	trip.Version++
	trip.LastSyncAt = timePtr(now)
	r.s.trips[id] = trip

	return model.VersionedUpdate{Success: true, Version: trip.Version, State: trip.State}, nil
}

func (r memoryTrips) ExecuteTransaction(ctx context.Context, fn postgres.TransactionFunc) error {
	return r.s.ExecuteTransaction(ctx, fn)
}

type memoryAssignments struct{ s *MemoryStore }

func (r memoryAssignments) Create(ctx context.Context, assignment *model.Assignment) error {
	defer r.s.lock(ctx)()

	if assignment.State.IsActive() {
		if _, exists := r.s.activeAssignment(assignment.TripID); exists {
			return tripserrors.ErrAssignmentExists
		}
	}
	r.s.nextID++
	now := r.s.now()
	assignment.ID = r.s.nextID
	assignment.AssignedAt = now
	assignment.UpdatedAt = now
	r.s.assignments = append(r.s.assignments, *assignment)
	return nil
}

func (r memoryAssignments) FindActiveByTrip(ctx context.Context, tripID int64) (*model.Assignment, error) {
	defer r.s.lock(ctx)()

	i, ok := r.s.activeAssignment(tripID)
	if !ok {
		return nil, tripserrors.ErrAssignmentNotFound
	}
	assignment := r.s.assignments[i]
	return &assignment, nil
}

func (r memoryAssignments) TransitionActive(ctx context.Context, tripID int64, state model.AssignmentState) (bool, error) {
	defer r.s.lock(ctx)()

	i, ok := r.s.activeAssignment(tripID)
	if !ok {
		return false, nil
	}
	r.s.assignments[i].State = state
	r.s.assignments[i].UpdatedAt = r.s.now()
	return true, nil
}

func (r memoryAssignments) CountByTrip(ctx context.Context, tripID int64) (int, error) {
	defer r.s.lock(ctx)()

	count := 0
	for _, a := range r.s.assignments {
		if a.TripID == tripID {
			count++
		}
	}
	return count, nil
}

type memoryDrivers struct{ s *MemoryStore }

func (r memoryDrivers) Create(ctx context.Context, driver *model.Driver) error {
	defer r.s.lock(ctx)()

	if _, exists := r.s.drivers[driver.ID]; exists {
		return fmt.Errorf("failed to insert driver %d: duplicate id", driver.ID)
	}
	r.s.drivers[driver.ID] = *driver
	return nil
}

func (r memoryDrivers) FindByID(ctx context.Context, id int64) (*model.Driver, error) {
	defer r.s.lock(ctx)()
	return r.find(id)
}

func (r memoryDrivers) FindByIDForUpdate(ctx context.Context, id int64) (*model.Driver, error) {
	defer r.s.lock(ctx)()
	return r.find(id)
}

func (r memoryDrivers) find(id int64) (*model.Driver, error) {
	driver, ok := r.s.drivers[id]
	if !ok {
		return nil, tripserrors.ErrDriverNotFound
	}
	return &driver, nil
}

func (r memoryDrivers) MarkBusy(ctx context.Context, id int64) (bool, error) {
	defer r.s.lock(ctx)()

	driver, ok := r.s.drivers[id]
	if !ok || !driver.Available {
		return false, nil
	}
	driver.Available = false
	r.s.drivers[id] = driver
	return true, nil
}

func (r memoryDrivers) ReleaseAfterTrip(ctx context.Context, id int64) error {
	defer r.s.lock(ctx)()

	driver, ok := r.s.drivers[id]
	if !ok {
		return tripserrors.ErrDriverNotFound
	}
	driver.Available = true
	driver.CompletedTrips++
	r.s.drivers[id] = driver
	return nil
}

type memorySyncLog struct{ s *MemoryStore }

func (r memorySyncLog) Insert(ctx context.Context, entry *model.SyncLogEntry) error {
	defer r.s.lock(ctx)()
	r.s.syncLog = append(r.s.syncLog, *entry)
	return nil
}

type lockKey struct {
	resourceType string
	resourceID   int64
}

// MemoryLockRepository is a process-local lock table with an injectable clock.
type MemoryLockRepository struct {
	mu    sync.Mutex
	locks map[lockKey]model.Lock
	now   func() time.Time
}

func NewMemoryLockRepository() *MemoryLockRepository {
	return &MemoryLockRepository{
		locks: make(map[lockKey]model.Lock),
		now:   time.Now,
	}
}

func (r *MemoryLockRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryLockRepository) DeleteExpired(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var purged int64
	for key, lock := range r.locks {
		if lock.Expired(now) {
			delete(r.locks, key)
			purged++
		}
	}
	return purged, nil
}

func (r *MemoryLockRepository) InsertIfAbsent(ctx context.Context, lock *model.Lock, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := lockKey{lock.ResourceType, lock.ResourceID}
	if _, exists := r.locks[key]; exists {
		return nil
	}
	now := r.now()
	stored := *lock
	stored.CreatedAt = now
	stored.ExpiresAt = now.Add(ttl)
	r.locks[key] = stored
	return nil
}

func (r *MemoryLockRepository) FindLock(ctx context.Context, resourceType string, resourceID int64) (*model.Lock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	lock, ok := r.locks[lockKey{resourceType, resourceID}]
	if !ok {
		return nil, tripserrors.ErrLockNotFound
	}
	return &lock, nil
}

func (r *MemoryLockRepository) DeleteByHolder(ctx context.Context, resourceType string, resourceID int64, holder string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := lockKey{resourceType, resourceID}
	lock, ok := r.locks[key]
	if !ok || lock.Holder != holder {
		return false, nil
	}
	delete(r.locks, key)
	return true, nil
}
