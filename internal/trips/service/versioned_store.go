package service

import (
	"context"

	"tripsync/internal/trips/repository"
	"tripsync/pkg/model"
)

// VersionedRecordStore applies optimistic, idempotent updates to trips.
type VersionedRecordStore interface {
	// UpdateWithVersion applies changes when the stored version equals
	// expectedVersion (or unconditionally when it is nil). A repeated
	// idempotencyKey returns the stored state without writing.
	UpdateWithVersion(ctx context.Context, id int64, changes model.TripChanges, expectedVersion *int64, idempotencyKey string) (*model.VersionedUpdate, error)
}

type versionedStore struct {
	trips repository.TripRepository
}

func NewVersionedRecordStore(trips repository.TripRepository) VersionedRecordStore {
	return &versionedStore{trips: trips}
}

func (s *versionedStore) UpdateWithVersion(ctx context.Context, id int64, changes model.TripChanges, expectedVersion *int64, idempotencyKey string) (*model.VersionedUpdate, error) {
	if idempotencyKey != "" {
		current, err := s.trips.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.LastOperationKey == idempotencyKey {
			return &model.VersionedUpdate{
				Success:    true,
				Idempotent: true,
				Version:    current.Version,
				State:      current.State,
			}, nil
		}
	}

	cond := model.UpdateCondition{ExpectedVersion: expectedVersion}
	result, err := s.trips.ConditionalUpdate(ctx, id, cond, changes, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if result.Success {
		return &result, nil
	}

	current, err := s.trips.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.VersionedUpdate{
		Conflict: true,
		Version:  current.Version,
		State:    current.State,
	}, nil
}
