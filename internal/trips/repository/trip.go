package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tripserrors "tripsync/internal/trips/errors"
	"tripsync/pkg/config"
	"tripsync/pkg/db/postgres"
	"tripsync/pkg/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	TripTable = "trip_requests"

	tripSelect = `
		SELECT t.id, t.version, t.state, COALESCE(t.last_operation_key, ''),
		       t.distance_km, t.duration_min, t.created_at, t.accepted_at,
		       t.arrived_at, t.started_at, t.completed_at, t.last_sync_at,
		       a.driver_id
		FROM trip_requests t
		LEFT JOIN trip_assignments a
		       ON a.trip_id = t.id AND a.state IN ('assigned', 'arrived', 'inProgress')
		WHERE t.id = $1`
)

type postgresTripRepository struct {
	cfg       *config.Config
	pool      *pgxpool.Pool
	txManager postgres.TransactionManager
}

func NewPostgresTripRepository(cfg *config.Config) TripRepository {
	return &postgresTripRepository{
		cfg:       cfg,
		pool:      cfg.Client.Postgres,
		txManager: postgres.NewTransactionManager(cfg.Client.Postgres),
	}
}

func (r *postgresTripRepository) Create(ctx context.Context, trip *model.TripRequest) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if trip.Version <= 0 {
		trip.Version = 1
	}
	if trip.State == "" {
		trip.State = model.TripPending
	}

	err := postgres.Conn(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO trip_requests (id, version, state) VALUES ($1, $2, $3) RETURNING created_at`,
		trip.ID, trip.Version, string(trip.State),
	).Scan(&trip.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert trip %d: %w", trip.ID, err)
	}
	return nil
}

func (r *postgresTripRepository) FindByID(ctx context.Context, id int64) (*model.TripRequest, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()
	return r.find(ctx, tripSelect, id)
}

func (r *postgresTripRepository) FindByIDForUpdate(ctx context.Context, id int64) (*model.TripRequest, error) {
	return r.find(ctx, tripSelect+" FOR UPDATE OF t", id)
}

func (r *postgresTripRepository) find(ctx context.Context, query string, id int64) (*model.TripRequest, error) {
	var (
		trip        model.TripRequest
		state       string
		durationMin *int32
	)
	err := postgres.Conn(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&trip.ID, &trip.Version, &state, &trip.LastOperationKey,
		&trip.DistanceKm, &durationMin, &trip.CreatedAt, &trip.AcceptedAt,
		&trip.ArrivedAt, &trip.StartedAt, &trip.CompletedAt, &trip.LastSyncAt,
		&trip.AssignedDriverID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tripserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to read trip %d: %w", id, err)
	}
	trip.State = model.TripState(state)
	if durationMin != nil {
		d := int(*durationMin)
		trip.DurationMin = &d
	}
	return &trip, nil
}

func (r *postgresTripRepository) ConditionalUpdate(ctx context.Context, id int64, cond model.UpdateCondition, changes model.TripChanges, opKey string) (model.VersionedUpdate, error) {
	query, args := buildConditionalUpdate(id, cond, changes, opKey)

	var (
		result model.VersionedUpdate
		state  string
	)
	err := postgres.Conn(ctx, r.pool).QueryRow(ctx, query, args...).Scan(&result.Version, &state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.VersionedUpdate{}, nil
		}
		return model.VersionedUpdate{}, fmt.Errorf("failed to update trip %d: %w", id, err)
	}
	result.Success = true
	result.State = model.TripState(state)
	return result, nil
}

func (r *postgresTripRepository) ExecuteTransaction(ctx context.Context, fn postgres.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}

// buildConditionalUpdate renders the UPDATE for a closed set of columns.
func buildConditionalUpdate(id int64, cond model.UpdateCondition, changes model.TripChanges, opKey string) (string, []any) {
	sets := []string{"version = version + 1", "last_sync_at = now()"}
	var args []any
	bind := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if changes.State != nil {
		sets = append(sets, "state = "+bind(string(*changes.State)))
	}
	if changes.DistanceKm != nil {
		sets = append(sets, "distance_km = "+bind(*changes.DistanceKm))
	}
	if changes.DurationMin != nil {
		sets = append(sets, "duration_min = "+bind(*changes.DurationMin))
	}
	if changes.StampAccepted {
		sets = append(sets, "accepted_at = now()")
	}
	if changes.StampArrived {
		sets = append(sets, "arrived_at = now()")
	}
	if changes.StampStarted {
		sets = append(sets, "started_at = now()")
	}
	if changes.StampCompleted {
		sets = append(sets, "completed_at = now()")
	}
	if opKey != "" {
		sets = append(sets, "last_operation_key = "+bind(opKey))
	}

	where := []string{"id = " + bind(id)}
	if cond.ExpectedVersion != nil {
		where = append(where, "version = "+bind(*cond.ExpectedVersion))
	}
	if len(cond.ExpectedStates) > 0 {
		states := make([]string, len(cond.ExpectedStates))
		for i, s := range cond.ExpectedStates {
			states[i] = string(s)
		}
		where = append(where, "state = ANY("+bind(states)+")")
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s RETURNING version, state",
		TripTable, strings.Join(sets, ", "), strings.Join(where, " AND "))
	return query, args
}
