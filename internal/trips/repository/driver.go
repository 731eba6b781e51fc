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

const driverSelect = `SELECT id, available, verification_status, completed_trips FROM drivers WHERE id = $1`

type postgresDriverRepository struct {
	cfg  *config.Config
	pool *pgxpool.Pool
}

func NewPostgresDriverRepository(cfg *config.Config) DriverRepository {
	return &postgresDriverRepository{cfg: cfg, pool: cfg.Client.Postgres}
}

func (r *postgresDriverRepository) Create(ctx context.Context, driver *model.Driver) error {
	ctx, cancel := withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	_, err := postgres.Conn(ctx, r.pool).Exec(ctx,
		`INSERT INTO drivers (id, available, verification_status, completed_trips) VALUES ($1, $2, $3, $4)`,
		driver.ID, driver.Available, string(driver.VerificationStatus), driver.CompletedTrips,
	)
	if err != nil {
		return fmt.Errorf("failed to insert driver %d: %w", driver.ID, err)
	}
	return nil
}

func (r *postgresDriverRepository) FindByID(ctx context.Context, id int64) (*model.Driver, error) {
	ctx, cancel := withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()
	return r.find(ctx, driverSelect, id)
}

func (r *postgresDriverRepository) FindByIDForUpdate(ctx context.Context, id int64) (*model.Driver, error) {
	return r.find(ctx, driverSelect+" FOR UPDATE", id)
}

func (r *postgresDriverRepository) find(ctx context.Context, query string, id int64) (*model.Driver, error) {
	var (
		driver model.Driver
		status string
	)
	err := postgres.Conn(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&driver.ID, &driver.Available, &status, &driver.CompletedTrips,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, tripserrors.ErrDriverNotFound
		}
		return nil, fmt.Errorf("failed to read driver %d: %w", id, err)
	}
	driver.VerificationStatus = model.VerificationStatus(status)
	return &driver, nil
}

func (r *postgresDriverRepository) MarkBusy(ctx context.Context, id int64) (bool, error) {
	tag, err := postgres.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE drivers SET available = FALSE, updated_at = now() WHERE id = $1 AND available`, id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark driver %d busy: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *postgresDriverRepository) ReleaseAfterTrip(ctx context.Context, id int64) error {
	tag, err := postgres.Conn(ctx, r.pool).Exec(ctx,
		`UPDATE drivers
		 SET available = TRUE, completed_trips = completed_trips + 1, updated_at = now()
		 WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("failed to release driver %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return tripserrors.ErrDriverNotFound
	}
	return nil
}
