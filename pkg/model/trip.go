package model

import (
	"time"
)

type TripState string

const (
	TripPending       TripState = "pending"
	TripAccepted      TripState = "accepted"
	TripDriverArrived TripState = "driverArrived"
	TripInProgress    TripState = "inProgress"
	TripCompleted     TripState = "completed"
	TripCancelled     TripState = "cancelled"
)

var tripTransitions = map[TripState][]TripState{
	TripPending:       {TripAccepted, TripCancelled},
	TripAccepted:      {TripDriverArrived, TripCompleted, TripCancelled},
	TripDriverArrived: {TripInProgress, TripCompleted},
	TripInProgress:    {TripCompleted},
}

// CompletableStates are the states a trip may be completed from.
var CompletableStates = []TripState{TripAccepted, TripDriverArrived, TripInProgress}

func (s TripState) Valid() bool {
	switch s {
	case TripPending, TripAccepted, TripDriverArrived, TripInProgress, TripCompleted, TripCancelled:
		return true
	}
	return false
}

func (s TripState) IsTerminal() bool {
	return s == TripCompleted || s == TripCancelled
}

func (s TripState) CanTransitionTo(next TripState) bool {
	if s.IsTerminal() {
		return false
	}
	for _, candidate := range tripTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

func (s TripState) IsCompletable() bool {
	for _, candidate := range CompletableStates {
		if candidate == s {
			return true
		}
	}
	return false
}

// TripRequest is the shared record drivers race on. Version grows by exactly
// one on every applied mutation; LastOperationKey is the idempotency key of
// the most recent applied mutation.
type TripRequest struct {
	ID               int64      `json:"id" bson:"trip_id"`
	Version          int64      `json:"version" bson:"version"`
	State            TripState  `json:"state" bson:"state"`
	LastOperationKey string     `json:"-" bson:"-"`
	AssignedDriverID *int64     `json:"assigned_driver_id,omitempty" bson:"assigned_driver_id,omitempty"`
	DistanceKm       *float64   `json:"distance_km,omitempty" bson:"distance_km,omitempty"`
	DurationMin      *int       `json:"duration_min,omitempty" bson:"duration_min,omitempty"`
	CreatedAt        time.Time  `json:"created_at" bson:"created_at"`
	AcceptedAt       *time.Time `json:"accepted_at,omitempty" bson:"accepted_at,omitempty"`
	ArrivedAt        *time.Time `json:"arrived_at,omitempty" bson:"arrived_at,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	LastSyncAt       *time.Time `json:"last_sync_at,omitempty" bson:"last_sync_at,omitempty"`
}

// TripChanges is the closed set of columns a conditional update may touch.
// Stamp flags set the matching timestamp column to the store's current time.
type TripChanges struct {
	State          *TripState
	DistanceKm     *float64
	DurationMin    *int
	StampAccepted  bool
	StampArrived   bool
	StampStarted   bool
	StampCompleted bool
}

// UpdateCondition guards a conditional update. Nil/empty fields are not checked.
type UpdateCondition struct {
	ExpectedVersion *int64
	ExpectedStates  []TripState
}

func (c UpdateCondition) Matches(trip *TripRequest) bool {
	if c.ExpectedVersion != nil && trip.Version != *c.ExpectedVersion {
		return false
	}
	if len(c.ExpectedStates) == 0 {
		return true
	}
	for _, s := range c.ExpectedStates {
		if trip.State == s {
			return true
		}
	}
	return false
}

// VersionedUpdate is the outcome of an optimistic update attempt.
type VersionedUpdate struct {
	Success    bool      `json:"success"`
	Idempotent bool      `json:"idempotent,omitempty"`
	Conflict   bool      `json:"conflict,omitempty"`
	Version    int64     `json:"version"`
	State      TripState `json:"state"`
}

type TripMetrics struct {
	DistanceKm  float64 `json:"distance_km" validate:"gte=0,lte=5000"`
	DurationMin int     `json:"duration_min" validate:"gte=0,lte=1440"`
}

func StatePtr(s TripState) *TripState {
	return &s
}
