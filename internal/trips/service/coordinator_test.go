package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"tripsync/internal/trips/repository"
	apperrors "tripsync/pkg/errors"
	"tripsync/pkg/model"

	"golang.org/x/sync/errgroup"
)

var validMetrics = model.TripMetrics{DistanceKm: 12.5, DurationMin: 31}

func TestAcceptTrip_Success(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, 42, 3)
	f.seedDriver(t, 7, true, model.VerificationApproved)

	res := f.coordinator.AcceptTrip(context.Background(), 42, 7, "accept-42-7")
	if !res.Success || res.Code != CodeOK {
		t.Fatalf("AcceptTrip() = %+v, want ok", res)
	}
	if res.Version != 4 || res.State != model.TripAccepted {
		t.Errorf("result version/state = %d/%s, want 4/accepted", res.Version, res.State)
	}

	trip := f.trip(t, 42)
	if trip.State != model.TripAccepted || trip.Version != 4 {
		t.Errorf("stored trip = %s v%d, want accepted v4", trip.State, trip.Version)
	}
	if trip.AssignedDriverID == nil || *trip.AssignedDriverID != 7 {
		t.Errorf("assigned driver = %v, want 7", trip.AssignedDriverID)
	}
	if trip.AcceptedAt == nil || trip.LastSyncAt == nil {
		t.Errorf("accept timestamps not stamped")
	}
	if f.driver(t, 7).Available {
		t.Errorf("driver should be marked busy")
	}
	if n := f.assignmentCount(t, 42); n != 1 {
		t.Errorf("assignments = %d, want 1", n)
	}
	f.assertUnlocked(t, 42)

	f.audit.Close()
	entries := f.store.SyncLogEntries()
	if len(entries) != 1 {
		t.Fatalf("sync log entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Operation != model.SyncAccept || entry.Resolution != model.ResolutionApplied || entry.WasConflict {
		t.Errorf("unexpected sync entry %+v", entry)
	}
	if *entry.ClientVersion != 3 || *entry.ServerVersion != 4 {
		t.Errorf("sync versions = %d/%d, want 3/4", *entry.ClientVersion, *entry.ServerVersion)
	}
}

func TestAcceptTrip_SecondDriverFindsTripTaken(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, 42, 3)
	f.seedDriver(t, 7, true, model.VerificationApproved)
	f.seedDriver(t, 8, true, model.VerificationApproved)

	if res := f.coordinator.AcceptTrip(context.Background(), 42, 7, "accept-a"); res.Code != CodeOK {
		t.Fatalf("first accept = %+v", res)
	}

	res := f.coordinator.AcceptTrip(context.Background(), 42, 8, "accept-b")
	if res.Success || res.Code != CodeAlreadyTaken {
		t.Fatalf("second accept = %+v, want alreadyTaken", res)
	}
	if res.CurrentState != model.TripAccepted || res.Version != 4 {
		t.Errorf("current state/version = %s/%d, want accepted/4", res.CurrentState, res.Version)
	}
	if res.Retryable {
		t.Errorf("alreadyTaken must not be retryable")
	}
	if !f.driver(t, 8).Available {
		t.Errorf("losing driver must stay available")
	}
	if n := f.assignmentCount(t, 42); n != 1 {
		t.Errorf("assignments = %d, want 1", n)
	}
	f.assertUnlocked(t, 42)
}

func TestAcceptTrip_ConcurrentDriversSingleWinner(t *testing.T) {
	const drivers = 10
	f := newFixture(t)
	f.seedTrip(t, 42, 3)
	for id := int64(1); id <= drivers; id++ {
		f.seedDriver(t, id, true, model.VerificationApproved)
	}

	results := make([]Result, drivers)
	var g errgroup.Group
	for i := 0; i < drivers; i++ {
		g.Go(func() error {
			driverID := int64(i + 1)
			results[i] = retryOnContention(func() Result {
				return f.coordinator.AcceptTrip(context.Background(), 42, driverID, fmt.Sprintf("accept-%d", driverID))
			})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("accept race error = %v", err)
	}

	var winners, taken int
	for _, res := range results {
		switch res.Code {
		case CodeOK:
			winners++
		case CodeAlreadyTaken:
			taken++
		default:
			t.Errorf("unexpected result %+v", res)
		}
	}
	if winners != 1 || taken != drivers-1 {
		t.Errorf("winners = %d, taken = %d; want 1 and %d", winners, taken, drivers-1)
	}

	trip := f.trip(t, 42)
	if trip.Version != 4 || trip.State != model.TripAccepted {
		t.Errorf("trip = %s v%d, want accepted v4", trip.State, trip.Version)
	}
	if n := f.assignmentCount(t, 42); n != 1 {
		t.Errorf("assignments = %d, want 1", n)
	}
	f.assertUnlocked(t, 42)
}

func TestAcceptTrip_IdempotentReplay(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, 42, 1)
	f.seedDriver(t, 7, true, model.VerificationApproved)

	first := f.coordinator.AcceptTrip(context.Background(), 42, 7, "retry-me")
	second := f.coordinator.AcceptTrip(context.Background(), 42, 7, "retry-me")

	if first.Code != CodeOK {
		t.Fatalf("first accept = %+v", first)
	}
	if !second.Success || second.Code != CodeIdempotentReplay {
		t.Fatalf("replay = %+v, want idempotentReplay", second)
	}
	if second.Version != first.Version || second.State != first.State {
		t.Errorf("replay = v%d %s, want v%d %s", second.Version, second.State, first.Version, first.State)
	}
	if n := f.assignmentCount(t, 42); n != 1 {
		t.Errorf("assignments = %d, want 1", n)
	}
	if v := f.trip(t, 42).Version; v != 2 {
		t.Errorf("version = %d, want 2", v)
	}
}

func TestAcceptTrip_LockContention(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, 42, 3)
	f.seedDriver(t, 7, true, model.VerificationApproved)

	held, err := f.locks.Acquire(context.Background(), model.ResourceTrip, 42, time.Minute)
	if err != nil {
		t.Fatalf("pre-acquire: %v", err)
	}

	res := f.coordinator.AcceptTrip(context.Background(), 42, 7, "accept-1")
	if res.Code != CodeLockContention || !res.Retryable {
		t.Fatalf("AcceptTrip() = %+v, want retryable lockContention", res)
	}
	if trip := f.trip(t, 42); trip.State != model.TripPending || trip.Version != 3 {
		t.Errorf("trip changed under contention: %s v%d", trip.State, trip.Version)
	}

	if stored, err := f.lockRepo.FindLock(context.Background(), model.ResourceTrip, 42); err != nil || stored.Holder != held.Holder {
		t.Errorf("contended call must not touch the holder's lock")
	}

	f.audit.Close()
	entries := f.store.SyncLogEntries()
	if len(entries) != 1 || !entries[0].WasConflict || entries[0].Resolution != model.ResolutionRetry {
		t.Errorf("sync log = %+v, want one retry conflict", entries)
	}
}

func TestAcceptTrip_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		tripID   int64
		driverID int64
		seed     func(t *testing.T, f *fixture)
		wantCode ResultCode
	}{
		{
			name:     "trip not found",
			tripID:   99,
			driverID: 7,
			seed: func(t *testing.T, f *fixture) {
				f.seedDriver(t, 7, true, model.VerificationApproved)
			},
			wantCode: CodeNotFound,
		},
		{
			name:     "driver not found",
			tripID:   42,
			driverID: 7,
			seed: func(t *testing.T, f *fixture) {
				f.seedTrip(t, 42, 1)
			},
			wantCode: CodeNotFound,
		},
		{
			name:     "driver busy",
			tripID:   42,
			driverID: 7,
			seed: func(t *testing.T, f *fixture) {
				f.seedTrip(t, 42, 1)
				f.seedDriver(t, 7, false, model.VerificationApproved)
			},
			wantCode: CodeDriverUnavailable,
		},
		{
			name:     "driver pending verification",
			tripID:   42,
			driverID: 7,
			seed: func(t *testing.T, f *fixture) {
				f.seedTrip(t, 42, 1)
				f.seedDriver(t, 7, true, model.VerificationPending)
			},
			wantCode: CodeDriverNotVerified,
		},
		{
			name:     "driver rejected",
			tripID:   42,
			driverID: 7,
			seed: func(t *testing.T, f *fixture) {
				f.seedTrip(t, 42, 1)
				f.seedDriver(t, 7, true, model.VerificationRejected)
			},
			wantCode: CodeDriverNotVerified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.seed(t, f)

			res := f.coordinator.AcceptTrip(context.Background(), tt.tripID, tt.driverID, "accept-1")
			if res.Success || res.Code != tt.wantCode {
				t.Fatalf("AcceptTrip() = %+v, want %s", res, tt.wantCode)
			}
			if res.Retryable {
				t.Errorf("%s must not be retryable", tt.wantCode)
			}
			if tt.tripID == 42 {
				if trip := f.trip(t, 42); trip.State != model.TripPending || trip.Version != 1 {
					t.Errorf("trip changed: %s v%d", trip.State, trip.Version)
				}
				if n := f.assignmentCount(t, 42); n != 0 {
					t.Errorf("assignments = %d, want 0", n)
				}
			}
			f.assertUnlocked(t, tt.tripID)
		})
	}
}

func TestAcceptTrip_Validation(t *testing.T) {
	tests := []struct {
		name      string
		tripID    int64
		driverID  int64
		key       string
		wantField string
	}{
		{"missing key", 42, 7, "", "idempotency_key"},
		{"key with spaces", 42, 7, "not a key", "idempotency_key"},
		{"non-positive driver", 42, 0, "k1", "driver_id"},
		{"non-positive trip", -1, 7, "k1", "trip_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedTrip(t, 42, 1)
			f.seedDriver(t, 7, true, model.VerificationApproved)

			res := f.coordinator.AcceptTrip(context.Background(), tt.tripID, tt.driverID, tt.key)
			if res.Code != CodeValidation {
				t.Fatalf("AcceptTrip() = %+v, want validation", res)
			}
			if _, ok := res.Details[tt.wantField]; !ok {
				t.Errorf("details %v missing %s", res.Details, tt.wantField)
			}
			f.assertUnlocked(t, 42)

			f.audit.Close()
			if entries := f.store.SyncLogEntries(); len(entries) != 0 {
				t.Errorf("validation failures must not be logged, got %d entries", len(entries))
			}
		})
	}
}

func TestCompleteTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTrip(t, 42, 3)
	f.seedDriver(t, 7, true, model.VerificationApproved)
	f.seedDriver(t, 8, true, model.VerificationApproved)

	if res := f.coordinator.CompleteTrip(ctx, 42, 7, validMetrics, "complete-early"); res.Code != CodeForbidden {
		t.Fatalf("complete unassigned trip = %+v, want forbidden", res)
	}

	if res := f.coordinator.AcceptTrip(ctx, 42, 7, "accept-1"); res.Code != CodeOK {
		t.Fatalf("accept = %+v", res)
	}

	if res := f.coordinator.CompleteTrip(ctx, 42, 8, validMetrics, "complete-other"); res.Code != CodeForbidden {
		t.Fatalf("complete by other driver = %+v, want forbidden", res)
	}

	res := f.coordinator.CompleteTrip(ctx, 42, 7, validMetrics, "complete-1")
	if !res.Success || res.Code != CodeOK {
		t.Fatalf("complete = %+v, want ok", res)
	}
	if res.Version != 5 || res.State != model.TripCompleted {
		t.Errorf("result = v%d %s, want v5 completed", res.Version, res.State)
	}

	trip := f.trip(t, 42)
	if trip.CompletedAt == nil || trip.DistanceKm == nil || *trip.DistanceKm != 12.5 || *trip.DurationMin != 31 {
		t.Errorf("completion fields not stored: %+v", trip)
	}
	if trip.AssignedDriverID != nil {
		t.Errorf("completed trip should have no active assignment")
	}
	driver := f.driver(t, 7)
	if !driver.Available || driver.CompletedTrips != 1 {
		t.Errorf("driver = %+v, want available with 1 completed trip", driver)
	}

	replay := f.coordinator.CompleteTrip(ctx, 42, 7, validMetrics, "complete-1")
	if replay.Code != CodeIdempotentReplay || replay.Version != 5 {
		t.Errorf("replay = %+v, want idempotentReplay at v5", replay)
	}

	again := f.coordinator.CompleteTrip(ctx, 42, 7, validMetrics, "complete-2")
	if again.Code != CodeForbidden {
		t.Errorf("second complete = %+v, want forbidden once the assignment is closed", again)
	}
	if driver := f.driver(t, 7); driver.CompletedTrips != 1 {
		t.Errorf("completed trips = %d after replay, want 1", driver.CompletedTrips)
	}
	f.assertUnlocked(t, 42)
}

func TestCompleteTrip_NonAssigneeLearnsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTrip(t, 42, 3)
	f.seedDriver(t, 7, true, model.VerificationApproved)
	f.seedDriver(t, 8, true, model.VerificationApproved)

	assertHidden := func(t *testing.T, stage string, res Result) {
		t.Helper()
		if res.Code != CodeForbidden {
			t.Fatalf("%s: CompleteTrip() by driver 8 = %+v, want forbidden", stage, res)
		}
		if res.CurrentState != "" || res.State != "" || res.Version != 0 {
			t.Errorf("%s: forbidden result exposes trip state: %+v", stage, res)
		}
		appErr := res.AppError()
		if _, ok := appErr.Details["current_state"]; ok {
			t.Errorf("%s: error details expose current_state: %v", stage, appErr.Details)
		}
	}

	assertHidden(t, "pending", f.coordinator.CompleteTrip(ctx, 42, 8, validMetrics, "peek-pending"))

	if res := f.coordinator.AcceptTrip(ctx, 42, 7, "accept-1"); res.Code != CodeOK {
		t.Fatalf("accept = %+v", res)
	}
	assertHidden(t, "accepted", f.coordinator.CompleteTrip(ctx, 42, 8, validMetrics, "peek-accepted"))

	if res := f.coordinator.CompleteTrip(ctx, 42, 7, validMetrics, "complete-1"); res.Code != CodeOK {
		t.Fatalf("complete = %+v", res)
	}
	assertHidden(t, "completed", f.coordinator.CompleteTrip(ctx, 42, 8, validMetrics, "peek-completed"))

	if trip := f.trip(t, 42); trip.Version != 5 {
		t.Errorf("version = %d, want 5; forbidden calls must not write", trip.Version)
	}
	f.assertUnlocked(t, 42)
}

func TestCompleteTrip_InvalidMetrics(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, 42, 1)

	res := f.coordinator.CompleteTrip(context.Background(), 42, 7, model.TripMetrics{DistanceKm: -1}, "complete-1")
	if res.Code != CodeValidation {
		t.Fatalf("CompleteTrip() = %+v, want validation", res)
	}
}

func TestAdvanceTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedTrip(t, 42, 1)
	f.seedDriver(t, 7, true, model.VerificationApproved)
	f.seedDriver(t, 8, true, model.VerificationApproved)

	if res := f.coordinator.AcceptTrip(ctx, 42, 7, "accept-1"); res.Code != CodeOK || res.Version != 2 {
		t.Fatalf("accept = %+v", res)
	}

	if res := f.coordinator.AdvanceTrip(ctx, 42, 8, model.TripDriverArrived, nil, "arrive-other"); res.Code != CodeForbidden {
		t.Errorf("advance by other driver = %+v, want forbidden", res)
	}
	if res := f.coordinator.AdvanceTrip(ctx, 42, 7, model.TripInProgress, nil, "start-early"); res.Code != CodeAlreadyTaken {
		t.Errorf("skip to inProgress = %+v, want alreadyTaken", res)
	}

	arrived := f.coordinator.AdvanceTrip(ctx, 42, 7, model.TripDriverArrived, nil, "arrive-1")
	if arrived.Code != CodeOK || arrived.Version != 3 || arrived.State != model.TripDriverArrived {
		t.Fatalf("arrive = %+v, want ok v3", arrived)
	}

	stale := f.coordinator.AdvanceTrip(ctx, 42, 7, model.TripInProgress, int64Ptr(2), "start-stale")
	if stale.Code != CodeVersionConflict || !stale.Retryable || stale.Version != 3 {
		t.Fatalf("stale advance = %+v, want retryable versionConflict at v3", stale)
	}

	started := f.coordinator.AdvanceTrip(ctx, 42, 7, model.TripInProgress, int64Ptr(3), "start-1")
	if started.Code != CodeOK || started.Version != 4 {
		t.Fatalf("start = %+v, want ok v4", started)
	}
	if replay := f.coordinator.AdvanceTrip(ctx, 42, 7, model.TripInProgress, int64Ptr(3), "start-1"); replay.Code != CodeIdempotentReplay || replay.Version != 4 {
		t.Errorf("replay = %+v, want idempotentReplay v4", replay)
	}

	trip := f.trip(t, 42)
	if trip.ArrivedAt == nil || trip.StartedAt == nil {
		t.Errorf("advance timestamps not stamped")
	}
	assignment, err := f.store.Assignments().FindActiveByTrip(ctx, 42)
	if err != nil || assignment.State != model.AssignmentInProgress {
		t.Errorf("assignment = %+v, %v; want inProgress", assignment, err)
	}

	if res := f.coordinator.CompleteTrip(ctx, 42, 7, validMetrics, "complete-1"); res.Code != CodeOK || res.Version != 5 {
		t.Errorf("complete = %+v, want ok v5", res)
	}
	f.assertUnlocked(t, 42)
}

func TestAdvanceTrip_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name     string
		to       model.TripState
		expected *int64
	}{
		{"terminal target", model.TripCompleted, nil},
		{"unknown target", model.TripState("flying"), nil},
		{"zero expected version", model.TripDriverArrived, int64Ptr(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if res := f.coordinator.AdvanceTrip(context.Background(), 42, 7, tt.to, tt.expected, "k1"); res.Code != CodeValidation {
				t.Errorf("AdvanceTrip() = %+v, want validation", res)
			}
		})
	}
}

func TestAcceptTrip_StorageErrorRollsBack(t *testing.T) {
	storageErr := errors.New("connection reset")
	f := newFixture(t, func(deps *CoordinatorDeps) {
		deps.Trips = &mockTripRepository{
			TripRepository: deps.Trips,
			conditionalUpdateFunc: func(ctx context.Context, id int64, cond model.UpdateCondition, changes model.TripChanges, opKey string) (model.VersionedUpdate, error) {
				return model.VersionedUpdate{}, storageErr
			},
		}
	})
	f.seedTrip(t, 42, 3)
	f.seedDriver(t, 7, true, model.VerificationApproved)

	res := f.coordinator.AcceptTrip(context.Background(), 42, 7, "accept-1")
	if res.Code != CodeStorageError || !res.Retryable {
		t.Fatalf("AcceptTrip() = %+v, want retryable storageError", res)
	}
	if !errors.Is(res.Err, storageErr) {
		t.Errorf("Err = %v, want wrapped storage error", res.Err)
	}
	if trip := f.trip(t, 42); trip.State != model.TripPending || trip.Version != 3 {
		t.Errorf("trip changed: %s v%d", trip.State, trip.Version)
	}
	f.assertUnlocked(t, 42)
}

func TestAcceptTrip_ConflictAfterRead(t *testing.T) {
	f := newFixture(t, func(deps *CoordinatorDeps) {
		deps.Trips = &mockTripRepository{
			TripRepository: deps.Trips,
			conditionalUpdateFunc: func(ctx context.Context, id int64, cond model.UpdateCondition, changes model.TripChanges, opKey string) (model.VersionedUpdate, error) {
				return model.VersionedUpdate{}, nil
			},
		}
	})
	f.seedTrip(t, 42, 3)
	f.seedDriver(t, 7, true, model.VerificationApproved)

	res := f.coordinator.AcceptTrip(context.Background(), 42, 7, "accept-1")
	if res.Code != CodeVersionConflict || res.Version != 3 {
		t.Fatalf("AcceptTrip() = %+v, want versionConflict at v3", res)
	}
	if n := f.assignmentCount(t, 42); n != 0 {
		t.Errorf("assignments = %d, want 0", n)
	}
}

func TestAcceptTrip_LockBackendFailure(t *testing.T) {
	f := newFixture(t, func(deps *CoordinatorDeps) {
		deps.Locks = NewLockManager(&mockLockRepository{
			insertIfAbsentFunc: func(ctx context.Context, lock *model.Lock, ttl time.Duration) error {
				return errors.New("lock table unavailable")
			},
		}, newTestConfig())
	})
	f.seedTrip(t, 42, 1)

	if res := f.coordinator.AcceptTrip(context.Background(), 42, 7, "accept-1"); res.Code != CodeStorageError {
		t.Errorf("AcceptTrip() = %+v, want storageError", res)
	}
}

func TestAcceptTrip_ReleaseFailureKeepsResult(t *testing.T) {
	var (
		mu     sync.Mutex
		stored *model.Lock
	)
	f := newFixture(t, func(deps *CoordinatorDeps) {
		deps.Locks = NewLockManager(&mockLockRepository{
			insertIfAbsentFunc: func(ctx context.Context, lock *model.Lock, ttl time.Duration) error {
				mu.Lock()
				defer mu.Unlock()
				copied := *lock
				stored = &copied
				return nil
			},
			findLockFunc: func(ctx context.Context, resourceType string, resourceID int64) (*model.Lock, error) {
				mu.Lock()
				defer mu.Unlock()
				return stored, nil
			},
			deleteByHolderFunc: func(ctx context.Context, resourceType string, resourceID int64, holder string) (bool, error) {
				return false, errors.New("delete failed")
			},
		}, newTestConfig())
	})
	f.seedTrip(t, 42, 1)
	f.seedDriver(t, 7, true, model.VerificationApproved)

	if res := f.coordinator.AcceptTrip(context.Background(), 42, 7, "accept-1"); res.Code != CodeOK {
		t.Errorf("AcceptTrip() = %+v, want ok despite release failure", res)
	}
}

func TestAcceptTrip_AuditFailureDoesNotAffectResult(t *testing.T) {
	var audit *SyncAuditLog
	f := newFixture(t, func(deps *CoordinatorDeps) {
		audit = NewSyncAuditLog(newTestConfig(), SyncSink{
			Name: "broken",
			Repo: &mockSyncLogRepository{insertFunc: func(ctx context.Context, entry *model.SyncLogEntry) error {
				return errors.New("audit store down")
			}},
		})
		deps.Audit = audit
	})
	t.Cleanup(audit.Close)
	f.seedTrip(t, 42, 1)
	f.seedDriver(t, 7, true, model.VerificationApproved)

	if res := f.coordinator.AcceptTrip(context.Background(), 42, 7, "accept-1"); res.Code != CodeOK {
		t.Errorf("AcceptTrip() = %+v, want ok", res)
	}
}

func TestTripEvents(t *testing.T) {
	var (
		mu     sync.Mutex
		events []model.TripEvent
	)
	publisher := &mockEventPublisher{publishFunc: func(ctx context.Context, event model.TripEvent) error {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
		return errors.New("broker down")
	}}
	f := newFixture(t, func(deps *CoordinatorDeps) { deps.Events = publisher })
	f.seedTrip(t, 42, 1)
	f.seedDriver(t, 7, true, model.VerificationApproved)
	f.seedDriver(t, 8, true, model.VerificationApproved)
	ctx := context.Background()

	if res := f.coordinator.AcceptTrip(ctx, 42, 7, "accept-1"); res.Code != CodeOK {
		t.Fatalf("accept = %+v, publish failure must not fail the operation", res)
	}
	f.coordinator.AcceptTrip(ctx, 42, 8, "accept-2")
	f.coordinator.AcceptTrip(ctx, 42, 7, "accept-1")
	f.coordinator.AdvanceTrip(ctx, 42, 7, model.TripDriverArrived, nil, "arrive-1")
	f.coordinator.CompleteTrip(ctx, 42, 7, validMetrics, "complete-1")

	want := []struct {
		eventType string
		version   int64
		state     model.TripState
	}{
		{model.EventTripAccepted, 2, model.TripAccepted},
		{model.EventTripAdvanced, 3, model.TripDriverArrived},
		{model.EventTripCompleted, 4, model.TripCompleted},
	}
	mu.Lock()
	defer mu.Unlock()
	if len(events) != len(want) {
		t.Fatalf("published %d events, want %d", len(events), len(want))
	}
	for i, w := range want {
		got := events[i]
		if got.Type != w.eventType || got.Version != w.version || got.State != w.state || got.DriverID != 7 {
			t.Errorf("event %d = %+v, want %s v%d %s", i, got, w.eventType, w.version, w.state)
		}
	}
}

func TestGetTrip(t *testing.T) {
	f := newFixture(t)
	f.seedTrip(t, 42, 1)
	ctx := context.Background()

	trip, err := f.coordinator.GetTrip(ctx, 42)
	if err != nil || trip.ID != 42 || trip.State != model.TripPending {
		t.Fatalf("GetTrip() = %+v, %v", trip, err)
	}

	tests := []struct {
		name     string
		id       int64
		wantCode string
	}{
		{"missing", 99, apperrors.CodeNotFound},
		{"invalid id", 0, apperrors.CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.coordinator.GetTrip(ctx, tt.id); !apperrors.HasCode(err, tt.wantCode) {
				t.Errorf("GetTrip(%d) error = %v, want %s", tt.id, err, tt.wantCode)
			}
		})
	}
}

func TestGetTrip_StorageError(t *testing.T) {
	f := newFixture(t, func(deps *CoordinatorDeps) {
		deps.Trips = &failingFindTrips{TripRepository: deps.Trips}
	})
	if _, err := f.coordinator.GetTrip(context.Background(), 1); !apperrors.HasCode(err, apperrors.CodeInternal) {
		t.Errorf("GetTrip() error = %v, want internal", err)
	}
}

type failingFindTrips struct {
	repository.TripRepository
}

func (r *failingFindTrips) FindByID(ctx context.Context, id int64) (*model.TripRequest, error) {
	return nil, fmt.Errorf("query failed: %w", errors.New("broken pipe"))
}
