// Package execution holds the job execution state machine as a pure function
// over (current status, event type). Persistence supplies only the atomic
// append-and-update transaction; every validation rule lives here so it can
// be exercised without a database.
package execution

import (
	"fleet-tracking/internal/domain"
)

// Outcome describes what an accepted event does to the job's derived state.
type Outcome struct {
	NewStatus domain.JobStatus
	// StatusChanged is false for side-events (proof capture) that must not
	// touch the job row.
	StatusChanged bool
	StopAdvance   int
	SetStart      bool
	SetEnd        bool
	Reset         bool
	// NeedsReview marks the event for the manual review queue regardless of
	// location plausibility (supervisor overrides are always flagged).
	NeedsReview bool
}

// MetadataTargetStatus is the metadata key a SUPERVISOR_OVERRIDE uses to name
// the status it forces. MetadataActor identifies who performed it.
const (
	MetadataTargetStatus = "target_status"
	MetadataActor        = "actor"
)

var transitions = map[domain.EventType]struct {
	from []domain.JobStatus
	to   domain.JobStatus
}{
	domain.RouteStarted:   {from: []domain.JobStatus{domain.JobInactive, domain.JobActive}, to: domain.JobEnRoute},
	domain.ArrivedAtStop:  {from: []domain.JobStatus{domain.JobEnRoute}, to: domain.JobAtStop},
	domain.DepartedStop:   {from: []domain.JobStatus{domain.JobAtStop}, to: domain.JobEnRoute},
	domain.DelayReported:  {from: []domain.JobStatus{domain.JobEnRoute, domain.JobAtStop}, to: domain.JobDelayed},
	domain.RouteCompleted: {from: []domain.JobStatus{domain.JobEnRoute, domain.JobAtStop, domain.JobDelayed}, to: domain.JobCompleted},
}

var allStatuses = []domain.JobStatus{
	domain.JobInactive, domain.JobActive, domain.JobEnRoute,
	domain.JobAtStop, domain.JobDelayed, domain.JobCompleted, domain.JobCancelled,
}

// Apply validates eventType against the current job status and returns the
// resulting state change. Illegal transitions return ErrStateConflict and
// must never be recorded. Metadata is consulted only for supervisor
// overrides.
func Apply(current domain.JobStatus, eventType domain.EventType, metadata map[string]string) (Outcome, error) {
	switch eventType {
	case domain.ProofCaptured:
		// Side-event: asserts no status change.
		return Outcome{NewStatus: current}, nil

	case domain.RouteCancelled:
		if current == domain.JobCompleted {
			return Outcome{}, domain.Conflictf("cannot cancel a completed route")
		}
		return Outcome{NewStatus: domain.JobInactive, StatusChanged: true, Reset: true}, nil

	case domain.SupervisorOverride:
		if metadata[MetadataActor] == "" {
			return Outcome{}, domain.Validationf("supervisor override requires %s metadata", MetadataActor)
		}
		target := domain.JobStatus(metadata[MetadataTargetStatus])
		if !ValidStatus(target) {
			return Outcome{}, domain.Validationf("supervisor override has no valid %s", MetadataTargetStatus)
		}
		return Outcome{NewStatus: target, StatusChanged: target != current, NeedsReview: true}, nil

	case domain.RouteStarted:
		out, err := tableApply(current, eventType)
		if err != nil {
			return Outcome{}, err
		}
		out.SetStart = true
		return out, nil

	case domain.ArrivedAtStop:
		out, err := tableApply(current, eventType)
		if err != nil {
			return Outcome{}, err
		}
		out.StopAdvance = 1
		return out, nil

	case domain.DepartedStop, domain.DelayReported:
		return tableApply(current, eventType)

	case domain.RouteCompleted:
		out, err := tableApply(current, eventType)
		if err != nil {
			return Outcome{}, err
		}
		out.SetEnd = true
		return out, nil

	default:
		return Outcome{}, domain.Validationf("unknown event type %q", eventType)
	}
}

func tableApply(current domain.JobStatus, eventType domain.EventType) (Outcome, error) {
	t := transitions[eventType]
	for _, s := range t.from {
		if s == current {
			return Outcome{NewStatus: t.to, StatusChanged: true}, nil
		}
	}
	return Outcome{}, domain.Conflictf("event %s not allowed while job is %s", eventType, current)
}

func ValidStatus(s domain.JobStatus) bool {
	for _, known := range allStatuses {
		if s == known {
			return true
		}
	}
	return false
}

func ValidEventType(t domain.EventType) bool {
	switch t {
	case domain.RouteStarted, domain.ArrivedAtStop, domain.DepartedStop,
		domain.DelayReported, domain.RouteCompleted, domain.RouteCancelled,
		domain.ProofCaptured, domain.SupervisorOverride:
		return true
	}
	return false
}
