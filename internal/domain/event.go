package domain

import (
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobInactive  JobStatus = "INACTIVE"
	JobActive    JobStatus = "ACTIVE"
	JobEnRoute   JobStatus = "EN_ROUTE"
	JobAtStop    JobStatus = "AT_STOP"
	JobDelayed   JobStatus = "DELAYED"
	JobCompleted JobStatus = "COMPLETED"
	JobCancelled JobStatus = "CANCELLED"
)

type EventType string

const (
	RouteStarted       EventType = "ROUTE_STARTED"
	ArrivedAtStop      EventType = "ARRIVED_AT_STOP"
	DepartedStop       EventType = "DEPARTED_STOP"
	DelayReported      EventType = "DELAY_REPORTED"
	RouteCompleted     EventType = "ROUTE_COMPLETED"
	RouteCancelled     EventType = "ROUTE_CANCELLED"
	ProofCaptured      EventType = "PROOF_CAPTURED"
	SupervisorOverride EventType = "SUPERVISOR_OVERRIDE"
)

type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "PENDING"
	ReviewApproved ReviewStatus = "APPROVED"
	ReviewRejected ReviewStatus = "REJECTED"
)

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// ExecutionEvent is one append-only entry in the execution log. EventID is
// assigned by the client and doubles as the idempotency key: replaying the
// same id is a no-op.
type ExecutionEvent struct {
	EventID         uuid.UUID         `db:"event_id" json:"event_id"`
	DriverID        uuid.UUID         `db:"driver_id" json:"driver_id"`
	SessionID       uuid.UUID         `db:"session_id" json:"session_id"`
	JobID           uuid.UUID         `db:"job_id" json:"job_id"`
	EventType       EventType         `db:"event_type" json:"event_type"`
	ResultingStatus JobStatus         `db:"resulting_status" json:"resulting_status"`
	Location        *Location         `db:"-" json:"location,omitempty"`
	CapturedAt      time.Time         `db:"captured_at" json:"captured_at"`
	ReceivedAt      time.Time         `db:"received_at" json:"received_at"`
	Metadata        map[string]string `db:"metadata" json:"metadata,omitempty"`
	ReviewStatus    *ReviewStatus     `db:"review_status" json:"review_status,omitempty"`
	ReviewReason    string            `db:"review_reason" json:"review_reason,omitempty"`
}

// JobState is the denormalized execution state on the job row. It is derived
// from the event log only and never written outside the append transaction.
type JobState struct {
	JobID            uuid.UUID  `db:"id" json:"job_id"`
	DriverID         uuid.UUID  `db:"driver_id" json:"driver_id"`
	DriverStatus     JobStatus  `db:"driver_status" json:"driver_status"`
	CurrentStopIndex int        `db:"current_stop_index" json:"current_stop_index"`
	ActualStartTime  *time.Time `db:"actual_start_time" json:"actual_start_time,omitempty"`
	ActualEndTime    *time.Time `db:"actual_end_time" json:"actual_end_time,omitempty"`
	LastEventAt      *time.Time `db:"last_event_at" json:"last_event_at,omitempty"`
}

// JobStateUpdate carries the derived-state changes an accepted event applies
// inside the same transaction as the append. ExpectedStatus is the optimistic
// guard: the update touches the row only while the status is still what the
// state machine validated against.
type JobStateUpdate struct {
	JobID          uuid.UUID
	ExpectedStatus JobStatus
	NewStatus      JobStatus
	StopAdvance    int
	SetStart       bool
	SetEnd         bool
	Reset          bool
	CapturedAt     time.Time
}

type SubmitEventRequest struct {
	EventID    string            `json:"event_id"`
	EventType  string            `json:"event_type"`
	DriverID   string            `json:"driver_id"`
	SessionID  string            `json:"session_id"`
	JobID      string            `json:"job_id"`
	Location   *Location         `json:"location,omitempty"`
	CapturedAt time.Time         `json:"captured_at"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type SubmitEventResponse struct {
	EventID         string `json:"event_id"`
	Accepted        bool   `json:"accepted"`
	Duplicate       bool   `json:"duplicate,omitempty"`
	ResultingStatus string `json:"resulting_status"`
	NeedsReview     bool   `json:"needs_review,omitempty"`
	Message         string `json:"message,omitempty"`
}

type ReviewEventRequest struct {
	Status   string `json:"status"`
	Reviewer string `json:"reviewer"`
}
