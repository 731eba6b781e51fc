package repository

import (
	"context"
	"errors"
	"fmt"

	tripserrors "tripsync/internal/trips/errors"
	"tripsync/pkg/config"
	"tripsync/pkg/db/postgres"
	"tripsync/pkg/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type postgresAssignmentRepository struct {
	cfg  *config.Config
	pool *pgxpool.Pool
}

func NewPostgresAssignmentRepository(cfg *config.Config) AssignmentRepository {
	return &postgresAssignmentRepository{cfg: cfg, pool: cfg.Client.Postgres}
}

func activeStates() []string {
	states := make([]string, len(model.ActiveAssignmentStates))
	for i, s := range model.ActiveAssignmentStates {
		states[i] = string(s)
	}
	return states
}

func (r *postgresAssignmentRepository) Create(ctx context.Context, assignment *model.Assignment) error {
	err := postgres.Conn(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO trip_assignments (trip_id, driver_id, state)
		 VALUES ($1, $2, $3)
		 RETURNING id, assigned_at, updated_at`,
		assignment.TripID, assignment.DriverID, string(assignment.State),
	).Scan(&assignment.ID, &assignment.AssignedAt, &assignment.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return tripserrors.ErrAssignmentExists
		}
		return fmt.Errorf("failed to insert assignment for trip %d: %w", assignment.TripID, err)
	}
	return nil
}

func (r *postgresAssignmentRepository) FindActiveByTrip(ctx context.Context, tripID int64) (*model.Assignment, error) {
	var (
		assignment model.Assignment
		state      string
	)
	err := postgres.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, trip_id, driver_id, state, assigned_at, updated_at
		 FROM trip_assignments
		 WHERE trip_id = $1 AND state = ANY($2)`,
		tripID, activeStates(),
	).Scan(&assignment.ID, &assignment.TripID, &assignment.DriverID, &state, &assignment.AssignedAt, &assignment.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tripserrors.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to read assignment for trip %d: %w", tripID, err)
	}
	assignment.State = model.AssignmentState(state)
	return &assignment, nil
}

func (r *postgresAssignmentRepository) TransitionActive(ctx context.Context, tripID int64, state model.AssignmentState) (bool, error) {
	tag, err := postgres.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE trip_assignments SET state = $2, updated_at = now()
		 WHERE trip_id = $1 AND state = ANY($3)`,
		tripID, string(state), activeStates(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to update assignment for trip %d: %w", tripID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *postgresAssignmentRepository) CountByTrip(ctx context.Context, tripID int64) (int, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	var count int
	err := postgres.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT count(*) FROM trip_assignments WHERE trip_id = $1`, tripID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count assignments for trip %d: %w", tripID, err)
	}
	return count, nil
}
