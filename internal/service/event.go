package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fleet-tracking/internal/domain"
	"fleet-tracking/internal/execution"
	"fleet-tracking/internal/projection"
)

// EventStore is the append-only event log plus the derived job state it
// updates in the same transaction.
type EventStore interface {
	Append(ctx context.Context, ev *domain.ExecutionEvent, upd *domain.JobStateUpdate) (bool, error)
	GetEvent(ctx context.Context, eventID uuid.UUID) (*domain.ExecutionEvent, error)
	GetJob(ctx context.Context, jobID uuid.UUID) (*domain.JobState, error)
	LastLocatedEvent(ctx context.Context, jobID uuid.UUID) (*domain.ExecutionEvent, error)
	Timeline(ctx context.Context, driverID uuid.UUID, sessionID *uuid.UUID, limit int) ([]domain.ExecutionEvent, error)
	Flagged(ctx context.Context, limit int) ([]domain.ExecutionEvent, error)
	SetReview(ctx context.Context, eventID uuid.UUID, status domain.ReviewStatus, reviewer string) error
}

// SessionGetter is the slice of the session registry the intake paths need.
type SessionGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Session, error)
}

// LiveFeed receives projection updates for push consumers (websocket hub,
// broker fanout).
type LiveFeed interface {
	PublishView(view domain.DriverView)
}

type EventService struct {
	slogger     *slog.Logger
	store       EventStore
	sessions    SessionGetter
	tracker     *projection.Tracker
	feed        LiveFeed
	maxSpeedKmh float64
}

func NewEventService(slogger *slog.Logger, store EventStore, sessions SessionGetter, tracker *projection.Tracker, feed LiveFeed, maxSpeedKmh float64) *EventService {
	return &EventService{
		slogger:     slogger,
		store:       store,
		sessions:    sessions,
		tracker:     tracker,
		feed:        feed,
		maxSpeedKmh: maxSpeedKmh,
	}
}

// Submit validates one execution event against the submitting driver's
// assignment and the job's current status, then appends it and updates the
// derived job state atomically. Violations are hard-rejected and never
// recorded. A replayed event_id is a no-op success.
func (s *EventService) Submit(ctx context.Context, req *domain.SubmitEventRequest) (*domain.SubmitEventResponse, error) {
	eventID, err := uuid.Parse(req.EventID)
	if err != nil {
		return nil, domain.Validationf("bad event_id: %s", err)
	}
	driverID, err := uuid.Parse(req.DriverID)
	if err != nil {
		return nil, domain.Validationf("bad driver_id: %s", err)
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return nil, domain.Validationf("bad session_id: %s", err)
	}
	jobID, err := uuid.Parse(req.JobID)
	if err != nil {
		return nil, domain.Validationf("bad job_id: %s", err)
	}
	eventType := domain.EventType(req.EventType)
	if !execution.ValidEventType(eventType) {
		return nil, domain.Validationf("unknown event type %q", req.EventType)
	}
	if req.CapturedAt.IsZero() {
		return nil, domain.Validationf("captured_at is required")
	}
	if req.Location != nil {
		if err := validateLocation(req.Location.Lat, req.Location.Lng); err != nil {
			return nil, err
		}
	}

	// Replays short-circuit before state validation: the first submission
	// already moved the job, so re-running the transition table against the
	// advanced status would wrongly conflict.
	if existing, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	} else if existing != nil {
		return &domain.SubmitEventResponse{
			EventID:         req.EventID,
			Accepted:        true,
			Duplicate:       true,
			ResultingStatus: string(existing.ResultingStatus),
			Message:         "duplicate event ignored",
		}, nil
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.DriverID != driverID {
		return nil, domain.Conflictf("session %s does not belong to driver %s", sessionID, driverID)
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.DriverID != driverID {
		return nil, domain.Conflictf("driver %s is not assigned to job %s", driverID, jobID)
	}

	outcome, err := execution.Apply(job.DriverStatus, eventType, req.Metadata)
	if err != nil {
		return nil, err
	}

	needsReview := outcome.NeedsReview
	reviewReason := ""
	if needsReview {
		reviewReason = "supervisor override by " + req.Metadata[execution.MetadataActor]
	}
	if !needsReview && req.Location != nil {
		prev, err := s.store.LastLocatedEvent(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if prev != nil && execution.Implausible(*prev.Location, *req.Location, prev.CapturedAt, req.CapturedAt, s.maxSpeedKmh) {
			needsReview = true
			reviewReason = "implausible movement since previous event"
		}
	}

	ev := &domain.ExecutionEvent{
		EventID:         eventID,
		DriverID:        driverID,
		SessionID:       sessionID,
		JobID:           jobID,
		EventType:       eventType,
		ResultingStatus: outcome.NewStatus,
		Location:        req.Location,
		CapturedAt:      req.CapturedAt,
		ReceivedAt:      time.Now().UTC(),
		Metadata:        req.Metadata,
		ReviewReason:    reviewReason,
	}
	if needsReview {
		pending := domain.ReviewPending
		ev.ReviewStatus = &pending
	}

	var upd *domain.JobStateUpdate
	if outcome.StatusChanged {
		upd = &domain.JobStateUpdate{
			JobID:          jobID,
			ExpectedStatus: job.DriverStatus,
			NewStatus:      outcome.NewStatus,
			StopAdvance:    outcome.StopAdvance,
			SetStart:       outcome.SetStart,
			SetEnd:         outcome.SetEnd,
			Reset:          outcome.Reset,
			CapturedAt:     req.CapturedAt,
		}
	}

	inserted, err := s.store.Append(ctx, ev, upd)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return &domain.SubmitEventResponse{
			EventID:         req.EventID,
			Accepted:        true,
			Duplicate:       true,
			ResultingStatus: string(job.DriverStatus),
			Message:         "duplicate event ignored",
		}, nil
	}

	if outcome.StatusChanged {
		s.tracker.SetStatus(driverID, sessionID, outcome.NewStatus)
		if view, ok := s.tracker.Get(driverID); ok && s.feed != nil {
			s.feed.PublishView(view)
		}
	}
	s.slogger.Info("execution event accepted",
		"event_id", eventID, "job_id", jobID, "event_type", eventType,
		"resulting_status", outcome.NewStatus, "needs_review", needsReview)

	return &domain.SubmitEventResponse{
		EventID:         req.EventID,
		Accepted:        true,
		ResultingStatus: string(outcome.NewStatus),
		NeedsReview:     needsReview,
	}, nil
}

func (s *EventService) Timeline(ctx context.Context, driverID, sessionID string, limit int) ([]domain.ExecutionEvent, error) {
	did, err := uuid.Parse(driverID)
	if err != nil {
		return nil, domain.Validationf("bad driver_id: %s", err)
	}
	var sid *uuid.UUID
	if sessionID != "" {
		parsed, err := uuid.Parse(sessionID)
		if err != nil {
			return nil, domain.Validationf("bad session_id: %s", err)
		}
		sid = &parsed
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	return s.store.Timeline(ctx, did, sid, limit)
}

func (s *EventService) Flagged(ctx context.Context, limit int) ([]domain.ExecutionEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.Flagged(ctx, limit)
}

// Review records an approve/reject verdict on a flagged event. The verdict is
// audit-only and never changes derived job state.
func (s *EventService) Review(ctx context.Context, eventID string, req *domain.ReviewEventRequest) error {
	id, err := uuid.Parse(eventID)
	if err != nil {
		return domain.Validationf("bad event_id: %s", err)
	}
	if req.Reviewer == "" {
		return domain.Validationf("reviewer is required")
	}
	status := domain.ReviewStatus(req.Status)
	if status != domain.ReviewApproved && status != domain.ReviewRejected {
		return domain.Validationf("review status must be APPROVED or REJECTED")
	}
	return s.store.SetReview(ctx, id, status, req.Reviewer)
}
