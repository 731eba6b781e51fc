package model

import "time"

type AssignmentState string

const (
	AssignmentAssigned   AssignmentState = "assigned"
	AssignmentArrived    AssignmentState = "arrived"
	AssignmentInProgress AssignmentState = "inProgress"
	AssignmentCompleted  AssignmentState = "completed"
	AssignmentCancelled  AssignmentState = "cancelled"
)

// ActiveAssignmentStates mark an assignment whose driver still owns the trip.
var ActiveAssignmentStates = []AssignmentState{AssignmentAssigned, AssignmentArrived, AssignmentInProgress}

func (s AssignmentState) IsActive() bool {
	for _, active := range ActiveAssignmentStates {
		if s == active {
			return true
		}
	}
	return false
}

// AssignmentStateFor maps a trip state onto the assignment state that mirrors it.
func AssignmentStateFor(s TripState) (AssignmentState, bool) {
	switch s {
	case TripAccepted:
		return AssignmentAssigned, true
	case TripDriverArrived:
		return AssignmentArrived, true
	case TripInProgress:
		return AssignmentInProgress, true
	case TripCompleted:
		return AssignmentCompleted, true
	case TripCancelled:
		return AssignmentCancelled, true
	}
	return "", false
}

type Assignment struct {
	ID         int64           `json:"id"`
	TripID     int64           `json:"trip_id"`
	DriverID   int64           `json:"driver_id"`
	State      AssignmentState `json:"state"`
	AssignedAt time.Time       `json:"assigned_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
