package model

import "time"

const (
	ResourceTrip   = "trip"
	ResourceDriver = "driver"

	DefaultLockReason = "operation"
)

// Lock is an advisory lock row keyed by (ResourceType, ResourceID). A Lock
// returned from a successful acquisition doubles as the lease needed to
// release it: only the stored Holder may delete the row.
type Lock struct {
	ResourceType string    `json:"resource_type"`
	ResourceID   int64     `json:"resource_id"`
	Holder       string    `json:"holder"`
	ExpiresAt    time.Time `json:"expires_at"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

func (l *Lock) Expired(now time.Time) bool {
	return l.ExpiresAt.Before(now)
}
