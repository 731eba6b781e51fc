package repository

import (
	"context"
	"time"

	"tripsync/pkg/db/postgres"
	"tripsync/pkg/model"
)

type TripRepository interface {
	Create(ctx context.Context, trip *model.TripRequest) error
	FindByID(ctx context.Context, id int64) (*model.TripRequest, error)
	// FindByIDForUpdate row-locks the trip until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id int64) (*model.TripRequest, error)
	// ConditionalUpdate applies changes only when cond holds, bumping the
	// version by one and stamping opKey. Success is false when no row matched.
	ConditionalUpdate(ctx context.Context, id int64, cond model.UpdateCondition, changes model.TripChanges, opKey string) (model.VersionedUpdate, error)
	ExecuteTransaction(ctx context.Context, fn postgres.TransactionFunc) error
}

type AssignmentRepository interface {
	Create(ctx context.Context, assignment *model.Assignment) error
	FindActiveByTrip(ctx context.Context, tripID int64) (*model.Assignment, error)
	// TransitionActive moves the trip's active assignment to state and reports
	// whether one existed.
	TransitionActive(ctx context.Context, tripID int64, state model.AssignmentState) (bool, error)
	CountByTrip(ctx context.Context, tripID int64) (int, error)
}

type DriverRepository interface {
	Create(ctx context.Context, driver *model.Driver) error
	FindByID(ctx context.Context, id int64) (*model.Driver, error)
	FindByIDForUpdate(ctx context.Context, id int64) (*model.Driver, error)
	// MarkBusy flips available from true to false and reports whether it did.
	MarkBusy(ctx context.Context, id int64) (bool, error)
	ReleaseAfterTrip(ctx context.Context, id int64) error
}

type LockRepository interface {
	DeleteExpired(ctx context.Context) (int64, error)
	// InsertIfAbsent stores lock unless a row for the same resource exists.
	InsertIfAbsent(ctx context.Context, lock *model.Lock, ttl time.Duration) error
	FindLock(ctx context.Context, resourceType string, resourceID int64) (*model.Lock, error)
	DeleteByHolder(ctx context.Context, resourceType string, resourceID int64, holder string) (bool, error)
}

type SyncLogRepository interface {
	Insert(ctx context.Context, entry *model.SyncLogEntry) error
}

// withTimeout caps ctx at timeout without extending an earlier deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline && time.Until(deadline) < timeout {
		return context.WithDeadline(ctx, deadline)
	}
	return context.WithTimeout(ctx, timeout)
}
