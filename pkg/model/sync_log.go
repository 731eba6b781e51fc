package model

import "time"

type SyncOperation string

const (
	SyncAccept   SyncOperation = "accept"
	SyncComplete SyncOperation = "complete"
	SyncAdvance  SyncOperation = "advance"
)

const (
	ResolutionApplied    = "applied"
	ResolutionIdempotent = "idempotent"
	ResolutionRetry      = "retry"
	ResolutionRejected   = "rejected"
	ResolutionFailed     = "failed"
)

// SyncLogEntry records one synchronization attempt. Entries are append-only.
type SyncLogEntry struct {
	TripID        int64          `json:"trip_id" bson:"trip_id"`
	Operation     SyncOperation  `json:"operation" bson:"operation"`
	ClientVersion *int64         `json:"client_version,omitempty" bson:"client_version,omitempty"`
	ServerVersion *int64         `json:"server_version,omitempty" bson:"server_version,omitempty"`
	WasConflict   bool           `json:"was_conflict" bson:"was_conflict"`
	Resolution    string         `json:"resolution,omitempty" bson:"resolution,omitempty"`
	Details       map[string]any `json:"details,omitempty" bson:"details,omitempty"`
	Timestamp     time.Time      `json:"timestamp" bson:"timestamp"`
}
