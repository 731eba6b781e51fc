package model

// Commands carry driver requests into the trip coordinator. Validation tags
// are enforced by the trips validator before any lock is taken.

type AcceptTripCommand struct {
	TripID         int64  `json:"trip_id" validate:"required,gt=0"`
	DriverID       int64  `json:"driver_id" validate:"required,gt=0"`
	IdempotencyKey string `json:"idempotency_key" validate:"required,max=100,idempotency_key"`
}

type CompleteTripCommand struct {
	TripID         int64       `json:"trip_id" validate:"required,gt=0"`
	DriverID       int64       `json:"driver_id" validate:"required,gt=0"`
	Metrics        TripMetrics `json:"metrics"`
	IdempotencyKey string      `json:"idempotency_key" validate:"required,max=100,idempotency_key"`
}

type AdvanceTripCommand struct {
	TripID          int64     `json:"trip_id" validate:"required,gt=0"`
	DriverID        int64     `json:"driver_id" validate:"required,gt=0"`
	State           TripState `json:"state" validate:"required,oneof=driverArrived inProgress"`
	ExpectedVersion *int64    `json:"expected_version,omitempty" validate:"omitempty,gt=0"`
	IdempotencyKey  string    `json:"idempotency_key" validate:"required,max=100,idempotency_key"`
}
