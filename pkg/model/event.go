package model

import "time"

const (
	EventTripAccepted  = "trip.accepted"
	EventTripAdvanced  = "trip.advanced"
	EventTripCompleted = "trip.completed"
)

// TripEvent is published after a trip transition commits.
type TripEvent struct {
	Type       string    `json:"type"`
	TripID     int64     `json:"trip_id"`
	DriverID   int64     `json:"driver_id"`
	State      TripState `json:"state"`
	Version    int64     `json:"version"`
	OccurredAt time.Time `json:"occurred_at"`
}
