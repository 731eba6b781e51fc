package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	tripserrors "tripsync/internal/trips/errors"
	"tripsync/internal/trips/repository"
	"tripsync/internal/trips/validator"
	"tripsync/pkg/config"
	apperrors "tripsync/pkg/errors"
	"tripsync/pkg/metrics"
	"tripsync/pkg/model"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("tripsync/internal/trips/service")

const (
	operationAccept   = "accept"
	operationComplete = "complete"
	operationAdvance  = "advance"
)

// TripEventPublisher announces committed trip transitions.
type TripEventPublisher interface {
	PublishTripEvent(ctx context.Context, event model.TripEvent) error
}

// TripCoordinator runs trip transitions under a trip lock and a single
// transaction. Every call returns a Result, never a bare error.
type TripCoordinator interface {
	AcceptTrip(ctx context.Context, tripID, driverID int64, idempotencyKey string) Result
	CompleteTrip(ctx context.Context, tripID, driverID int64, tripMetrics model.TripMetrics, idempotencyKey string) Result
	AdvanceTrip(ctx context.Context, tripID, driverID int64, to model.TripState, expectedVersion *int64, idempotencyKey string) Result
	GetTrip(ctx context.Context, tripID int64) (*model.TripRequest, error)
}

type CoordinatorDeps struct {
	Trips       repository.TripRepository
	Assignments repository.AssignmentRepository
	Drivers     repository.DriverRepository
	Locks       LockManager
	Store       VersionedRecordStore
	Audit       *SyncAuditLog
	Events      TripEventPublisher
	Validator   *validator.TripValidator
}

type tripCoordinator struct {
	trips       repository.TripRepository
	assignments repository.AssignmentRepository
	drivers     repository.DriverRepository
	locks       LockManager
	store       VersionedRecordStore
	auditLog    *SyncAuditLog
	events      TripEventPublisher
	validator   *validator.TripValidator
	cfg         *config.Config
}

func NewTripCoordinator(deps CoordinatorDeps, cfg *config.Config) TripCoordinator {
	if deps.Store == nil {
		deps.Store = NewVersionedRecordStore(deps.Trips)
	}
	if deps.Validator == nil {
		deps.Validator = validator.NewTripValidator(cfg.Log)
	}
	return &tripCoordinator{
		trips:       deps.Trips,
		assignments: deps.Assignments,
		drivers:     deps.Drivers,
		locks:       deps.Locks,
		store:       deps.Store,
		auditLog:    deps.Audit,
		events:      deps.Events,
		validator:   deps.Validator,
		cfg:         cfg,
	}
}

func (c *tripCoordinator) AcceptTrip(ctx context.Context, tripID, driverID int64, idempotencyKey string) (result Result) {
	ctx, span := c.startSpan(ctx, "TripCoordinator.AcceptTrip", tripID, driverID)
	start := time.Now()
	var readVersion *int64
	defer func() {
		c.finish(ctx, span, operationAccept, start, result)
		c.audit(ctx, model.SyncAccept, result, readVersion, driverID, idempotencyKey)
	}()

	cmd := model.AcceptTripCommand{TripID: tripID, DriverID: driverID, IdempotencyKey: idempotencyKey}
	if err := c.validator.ValidateAccept(&cmd); err != nil {
		return invalidResult(tripID, err)
	}

	lease, err := c.locks.Acquire(ctx, model.ResourceTrip, tripID, c.cfg.AcceptLockTTL)
	if err != nil {
		return c.lockFailure(tripID, err)
	}
	defer c.release(ctx, lease)

	err = c.trips.ExecuteTransaction(ctx, func(ctx context.Context) error {
		trip, err := c.trips.FindByIDForUpdate(ctx, tripID)
		if err != nil {
			return tripReadError(tripID, err)
		}
		readVersion = versionOf(trip)

		if trip.LastOperationKey == idempotencyKey {
			result = replayResult(trip)
			return nil
		}
		if trip.State != model.TripPending {
			return reject(alreadyTakenResult(trip, "Trip was already taken"))
		}

		driver, err := c.drivers.FindByIDForUpdate(ctx, driverID)
		if err != nil {
			if errors.Is(err, tripserrors.ErrDriverNotFound) {
				return reject(rejectedResult(tripID, CodeNotFound, "Driver not found"))
			}
			return err
		}
		if !driver.Available {
			return reject(rejectedResult(tripID, CodeDriverUnavailable, "Driver is not available"))
		}
		if !driver.IsApproved() {
			return reject(rejectedResult(tripID, CodeDriverNotVerified, "Driver is not verified"))
		}

		update, err := c.trips.ConditionalUpdate(ctx, tripID,
			model.UpdateCondition{ExpectedVersion: &trip.Version, ExpectedStates: []model.TripState{model.TripPending}},
			model.TripChanges{State: model.StatePtr(model.TripAccepted), StampAccepted: true},
			idempotencyKey,
		)
		if err != nil {
			return err
		}
		if !update.Success {
			return c.conflict(ctx, tripID)
		}

		assignment := &model.Assignment{TripID: tripID, DriverID: driverID, State: model.AssignmentAssigned}
		if err := c.assignments.Create(ctx, assignment); err != nil {
			if errors.Is(err, tripserrors.ErrAssignmentExists) {
				return reject(alreadyTakenResult(trip, "Trip was already taken"))
			}
			return err
		}

		busy, err := c.drivers.MarkBusy(ctx, driverID)
		if err != nil {
			return err
		}
		if !busy {
			return reject(rejectedResult(tripID, CodeDriverUnavailable, "Driver is not available"))
		}

		result = okResult(tripID, "Trip accepted", update)
		return nil
	})
	if err != nil {
		return c.txFailure(tripID, err)
	}

	if result.Code == CodeOK {
		c.publish(ctx, model.EventTripAccepted, driverID, result)
	}
	return result
}

func (c *tripCoordinator) CompleteTrip(ctx context.Context, tripID, driverID int64, tripMetrics model.TripMetrics, idempotencyKey string) (result Result) {
	ctx, span := c.startSpan(ctx, "TripCoordinator.CompleteTrip", tripID, driverID)
	start := time.Now()
	var readVersion *int64
	defer func() {
		c.finish(ctx, span, operationComplete, start, result)
		c.audit(ctx, model.SyncComplete, result, readVersion, driverID, idempotencyKey)
	}()

	cmd := model.CompleteTripCommand{TripID: tripID, DriverID: driverID, Metrics: tripMetrics, IdempotencyKey: idempotencyKey}
	if err := c.validator.ValidateComplete(&cmd); err != nil {
		return invalidResult(tripID, err)
	}

	lease, err := c.locks.Acquire(ctx, model.ResourceTrip, tripID, c.cfg.CompleteLockTTL)
	if err != nil {
		return c.lockFailure(tripID, err)
	}
	defer c.release(ctx, lease)

	err = c.trips.ExecuteTransaction(ctx, func(ctx context.Context) error {
		trip, err := c.trips.FindByIDForUpdate(ctx, tripID)
		if err != nil {
			return tripReadError(tripID, err)
		}
		readVersion = versionOf(trip)

		if trip.LastOperationKey == idempotencyKey {
			result = replayResult(trip)
			return nil
		}
		// Only the active assignee learns anything about the trip's state.
		if trip.AssignedDriverID == nil || *trip.AssignedDriverID != driverID {
			return reject(rejectedResult(tripID, CodeForbidden, "Driver is not assigned to this trip"))
		}
		if !trip.State.IsCompletable() {
			return reject(alreadyTakenResult(trip, "Trip cannot be completed from its current state"))
		}

		distance := tripMetrics.DistanceKm
		duration := tripMetrics.DurationMin
		update, err := c.trips.ConditionalUpdate(ctx, tripID,
			model.UpdateCondition{ExpectedVersion: &trip.Version, ExpectedStates: model.CompletableStates},
			model.TripChanges{
				State:          model.StatePtr(model.TripCompleted),
				DistanceKm:     &distance,
				DurationMin:    &duration,
				StampCompleted: true,
			},
			idempotencyKey,
		)
		if err != nil {
			return err
		}
		if !update.Success {
			return c.conflict(ctx, tripID)
		}

		moved, err := c.assignments.TransitionActive(ctx, tripID, model.AssignmentCompleted)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("trip %d has no active assignment to complete", tripID)
		}
		if err := c.drivers.ReleaseAfterTrip(ctx, driverID); err != nil {
			return err
		}

		result = okResult(tripID, "Trip completed", update)
		return nil
	})
	if err != nil {
		return c.txFailure(tripID, err)
	}

	if result.Code == CodeOK {
		c.publish(ctx, model.EventTripCompleted, driverID, result)
	}
	return result
}

func (c *tripCoordinator) AdvanceTrip(ctx context.Context, tripID, driverID int64, to model.TripState, expectedVersion *int64, idempotencyKey string) (result Result) {
	ctx, span := c.startSpan(ctx, "TripCoordinator.AdvanceTrip", tripID, driverID)
	span.SetAttributes(attribute.String("trip.target_state", string(to)))
	start := time.Now()
	clientVersion := expectedVersion
	defer func() {
		c.finish(ctx, span, operationAdvance, start, result)
		c.audit(ctx, model.SyncAdvance, result, clientVersion, driverID, idempotencyKey)
	}()

	cmd := model.AdvanceTripCommand{
		TripID:          tripID,
		DriverID:        driverID,
		State:           to,
		ExpectedVersion: expectedVersion,
		IdempotencyKey:  idempotencyKey,
	}
	if err := c.validator.ValidateAdvance(&cmd); err != nil {
		return invalidResult(tripID, err)
	}

	lease, err := c.locks.Acquire(ctx, model.ResourceTrip, tripID, c.cfg.AcceptLockTTL)
	if err != nil {
		return c.lockFailure(tripID, err)
	}
	defer c.release(ctx, lease)

	err = c.trips.ExecuteTransaction(ctx, func(ctx context.Context) error {
		trip, err := c.trips.FindByIDForUpdate(ctx, tripID)
		if err != nil {
			return tripReadError(tripID, err)
		}
		if clientVersion == nil {
			clientVersion = versionOf(trip)
		}

		if trip.AssignedDriverID == nil || *trip.AssignedDriverID != driverID {
			return reject(rejectedResult(tripID, CodeForbidden, "Driver is not assigned to this trip"))
		}
		if trip.LastOperationKey == idempotencyKey {
			result = replayResult(trip)
			return nil
		}
		if !trip.State.CanTransitionTo(to) {
			return reject(alreadyTakenResult(trip, fmt.Sprintf("Trip cannot move from %s to %s", trip.State, to)))
		}

		changes := model.TripChanges{State: model.StatePtr(to)}
		switch to {
		case model.TripDriverArrived:
			changes.StampArrived = true
		case model.TripInProgress:
			changes.StampStarted = true
		}

		update, err := c.store.UpdateWithVersion(ctx, tripID, changes, clientVersion, idempotencyKey)
		if err != nil {
			return tripReadError(tripID, err)
		}
		if update.Conflict {
			return reject(versionConflictResult(tripID, *update))
		}
		if update.Idempotent {
			result = replayResult(&model.TripRequest{ID: tripID, Version: update.Version, State: update.State})
			return nil
		}

		assignmentState, _ := model.AssignmentStateFor(to)
		moved, err := c.assignments.TransitionActive(ctx, tripID, assignmentState)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("trip %d has no active assignment to advance", tripID)
		}

		result = okResult(tripID, "Trip advanced", *update)
		return nil
	})
	if err != nil {
		return c.txFailure(tripID, err)
	}

	if result.Code == CodeOK {
		c.publish(ctx, model.EventTripAdvanced, driverID, result)
	}
	return result
}

func (c *tripCoordinator) GetTrip(ctx context.Context, tripID int64) (*model.TripRequest, error) {
	if tripID <= 0 {
		return nil, apperrors.InvalidInput("Trip ID must be a positive integer")
	}

	trip, err := c.trips.FindByID(ctx, tripID)
	if err != nil {
		if errors.Is(err, tripserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Trip", tripID)
		}
		return nil, apperrors.Internal("Failed to retrieve trip", err)
	}
	return trip, nil
}

func (c *tripCoordinator) startSpan(ctx context.Context, name string, tripID, driverID int64) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int64("trip.id", tripID),
		attribute.Int64("driver.id", driverID),
	))
}

func (c *tripCoordinator) finish(ctx context.Context, span trace.Span, operation string, start time.Time, result Result) {
	metrics.OperationsTotal.WithLabelValues(operation, string(result.Code)).Inc()
	metrics.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())

	span.SetAttributes(
		attribute.String("trip.result", string(result.Code)),
		attribute.Int64("trip.version", result.Version),
	)
	if result.Code == CodeStorageError {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Message)
	}
	span.End()

	log := c.cfg.Log.WithTrace(ctx)
	args := []any{
		"operation", operation,
		"trip_id", result.TripID,
		"code", result.Code,
		"version", result.Version,
		"duration", time.Since(start),
	}
	switch {
	case result.Success:
		log.Info("Trip operation applied", args...)
	case result.Code == CodeStorageError:
		log.Error("Trip operation failed", append(args, "error", result.Err)...)
	default:
		log.Info("Trip operation rejected", append(args, "message", result.Message)...)
	}
}

func (c *tripCoordinator) lockFailure(tripID int64, err error) Result {
	if errors.Is(err, tripserrors.ErrLockContention) {
		return lockContentionResult(tripID)
	}
	return storageErrorResult(tripID, fmt.Errorf("failed to acquire trip lock: %w", err))
}

// release runs on every exit path. The lock TTL covers a failed release.
func (c *tripCoordinator) release(ctx context.Context, lease *model.Lock) {
	released, err := c.locks.Release(context.WithoutCancel(ctx), lease)
	if err != nil || !released {
		metrics.LockReleaseFailures.Inc()
		c.cfg.Log.Warn("Failed to release trip lock",
			"trip_id", lease.ResourceID,
			"holder", lease.Holder,
			"released", released,
			"error", err,
		)
	}
}

func (c *tripCoordinator) conflict(ctx context.Context, tripID int64) error {
	current, err := c.trips.FindByID(ctx, tripID)
	if err != nil {
		return tripReadError(tripID, err)
	}
	return reject(versionConflictResult(tripID, model.VersionedUpdate{Version: current.Version, State: current.State}))
}

func (c *tripCoordinator) txFailure(tripID int64, err error) Result {
	var rejected *resultError
	if errors.As(err, &rejected) {
		return rejected.result
	}
	return storageErrorResult(tripID, err)
}

func (c *tripCoordinator) audit(ctx context.Context, operation model.SyncOperation, result Result, clientVersion *int64, driverID int64, idempotencyKey string) {
	if c.auditLog == nil || result.Code == CodeValidation {
		return
	}

	var serverVersion *int64
	if result.Version > 0 {
		v := result.Version
		serverVersion = &v
	}
	c.auditLog.LogSync(ctx, result.TripID, operation, clientVersion, serverVersion,
		wasConflict(result.Code), resolutionFor(result.Code),
		map[string]any{
			"driver_id":       driverID,
			"idempotency_key": idempotencyKey,
			"code":            string(result.Code),
		},
	)
}

func (c *tripCoordinator) publish(ctx context.Context, eventType string, driverID int64, result Result) {
	if c.events == nil {
		return
	}
	event := model.TripEvent{
		Type:       eventType,
		TripID:     result.TripID,
		DriverID:   driverID,
		State:      result.State,
		Version:    result.Version,
		OccurredAt: time.Now().UTC(),
	}
	if err := c.events.PublishTripEvent(context.WithoutCancel(ctx), event); err != nil {
		c.cfg.Log.Warn("Failed to publish trip event",
			"type", eventType,
			"trip_id", result.TripID,
			"error", err,
		)
	}
}

func tripReadError(tripID int64, err error) error {
	if errors.Is(err, tripserrors.ErrNotFound) {
		return reject(rejectedResult(tripID, CodeNotFound, "Trip not found"))
	}
	return err
}

func invalidResult(tripID int64, err error) Result {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return validationResult(tripID, err, verrs.Details())
	}
	return validationResult(tripID, err, nil)
}

func versionOf(trip *model.TripRequest) *int64 {
	v := trip.Version
	return &v
}

func wasConflict(code ResultCode) bool {
	switch code {
	case CodeLockContention, CodeVersionConflict, CodeAlreadyTaken:
		return true
	}
	return false
}

func resolutionFor(code ResultCode) string {
	switch code {
	case CodeOK:
		return model.ResolutionApplied
	case CodeIdempotentReplay:
		return model.ResolutionIdempotent
	case CodeLockContention, CodeVersionConflict:
		return model.ResolutionRetry
	case CodeStorageError:
		return model.ResolutionFailed
	}
	return model.ResolutionRejected
}
