package postgres

import (
	"context"
	"fmt"

	"tripsync/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

type migration struct {
	Name       string
	Statements []string
}

var Migrations = []migration{
	{
		Name: "drivers",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS drivers (
				id                  BIGINT PRIMARY KEY,
				available           BOOLEAN NOT NULL DEFAULT TRUE,
				verification_status TEXT NOT NULL DEFAULT 'pending'
					CHECK (verification_status IN ('pending', 'approved', 'rejected')),
				completed_trips     INTEGER NOT NULL DEFAULT 0,
				updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
		},
	},
	{
		Name: "trip_requests",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS trip_requests (
				id                 BIGINT PRIMARY KEY,
				version            BIGINT NOT NULL DEFAULT 1,
				state              TEXT NOT NULL DEFAULT 'pending'
					CHECK (state IN ('pending', 'accepted', 'driverArrived', 'inProgress', 'completed', 'cancelled')),
				last_operation_key VARCHAR(100),
				distance_km        DOUBLE PRECISION,
				duration_min       INTEGER,
				created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
				accepted_at        TIMESTAMPTZ,
				arrived_at         TIMESTAMPTZ,
				started_at         TIMESTAMPTZ,
				completed_at       TIMESTAMPTZ,
				last_sync_at       TIMESTAMPTZ
			)`,
			`CREATE INDEX IF NOT EXISTS idx_trip_requests_state ON trip_requests (state)`,
		},
	},
	{
		Name: "trip_assignments",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS trip_assignments (
				id          BIGSERIAL PRIMARY KEY,
				trip_id     BIGINT NOT NULL REFERENCES trip_requests (id),
				driver_id   BIGINT NOT NULL REFERENCES drivers (id),
				state       TEXT NOT NULL
					CHECK (state IN ('assigned', 'arrived', 'inProgress', 'completed', 'cancelled')),
				assigned_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS uq_trip_assignments_active ON trip_assignments (trip_id)
				WHERE state IN ('assigned', 'arrived', 'inProgress')`,
			`CREATE INDEX IF NOT EXISTS idx_trip_assignments_driver ON trip_assignments (driver_id, state)`,
		},
	},
	{
		Name: "distributed_locks",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS distributed_locks (
				resource_type VARCHAR(50) NOT NULL,
				resource_id   BIGINT NOT NULL,
				lock_holder   VARCHAR(100) NOT NULL,
				expires_at    TIMESTAMPTZ NOT NULL,
				reason        VARCHAR(100),
				created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
				PRIMARY KEY (resource_type, resource_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_distributed_locks_expires ON distributed_locks (expires_at)`,
		},
	},
	{
		Name: "sync_log",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS sync_log (
				id             BIGSERIAL PRIMARY KEY,
				trip_id        BIGINT NOT NULL,
				operation      VARCHAR(50) NOT NULL,
				client_version BIGINT,
				server_version BIGINT,
				was_conflict   BOOLEAN NOT NULL DEFAULT FALSE,
				resolution     VARCHAR(50),
				details        JSONB,
				created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
			)`,
			`CREATE INDEX IF NOT EXISTS idx_sync_log_trip ON sync_log (trip_id, created_at)`,
		},
	},
}

// RunMigration applies every statement in order. Each statement is idempotent.
func RunMigration(ctx context.Context, pool *pgxpool.Pool, log *logger.Logger) error {
	log.Info("Running postgres migrations", "count", len(Migrations))
	for _, m := range Migrations {
		for i, stmt := range m.Statements {
			if _, err := pool.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("migration %s statement %d failed: %w", m.Name, i+1, err)
			}
		}
		log.Info("Migration applied", "name", m.Name)
	}
	return nil
}
