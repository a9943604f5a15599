package domain

import (
	"encoding/json"
	"github.com/google/uuid"
	"time"
)

// Job types
const (
	JobTypeIncomingActivity = 1
	JobTypeOutgoingActivity = 2
)

// Job statuses
const (
	JobStatusQueued  = 1
	JobStatusRunning = 2
)

// Job is a durable background work item. Jobs are claimed by pollers and
// deleted on completion; a Running job whose updated_at is older than the
// visibility timeout is eligible for re-claim.
type Job struct {
	Id           uuid.UUID
	JobType      int
	JobData      string // JSON payload
	JobStatus    int
	ScheduledFor time.Time
	UpdatedAt    time.Time
}

// IncomingActivityJob is the payload of an IncomingActivity job
type IncomingActivityJob struct {
	Activity        json.RawMessage `json:"activity"`
	IsAuthenticated bool            `json:"is_authenticated"`
	FailureCount    int             `json:"failure_count"`
}

// OutgoingActivityJob is the payload of an OutgoingActivity job
type OutgoingActivityJob struct {
	Activity   json.RawMessage `json:"activity"`
	SenderId   uuid.UUID       `json:"sender_id"`
	Recipients []RemoteAccount `json:"recipients"`
}
