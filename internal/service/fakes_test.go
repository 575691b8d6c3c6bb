package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"fleet-tracking/internal/domain"
)

// In-memory stores honoring the same contracts as the postgres repos, so the
// service logic runs under test without a database.

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*domain.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[uuid.UUID]*domain.Session)}
}

func (f *fakeSessionStore) Start(_ context.Context, s *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.sessions {
		if existing.DriverID == s.DriverID && existing.Status == domain.SessionActive {
			now := time.Now().UTC()
			existing.Status = domain.SessionInvalidated
			existing.EndedAt = &now
			existing.EndReason = "superseded"
		}
	}
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeSessionStore) Get(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, domain.NotFoundf("session %s", id)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) Heartbeat(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.Status != domain.SessionActive {
		return false, nil
	}
	s.LastHeartbeatAt = at
	return true, nil
}

func (f *fakeSessionStore) End(_ context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.Status != domain.SessionActive {
		return false, nil
	}
	s.Status = domain.SessionEnded
	s.EndedAt = &at
	s.EndReason = reason
	return true, nil
}

func (f *fakeSessionStore) ExpireStale(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var drivers []uuid.UUID
	for _, s := range f.sessions {
		if s.Status == domain.SessionActive && s.LastHeartbeatAt.Before(cutoff) {
			now := time.Now().UTC()
			s.Status = domain.SessionExpired
			s.EndedAt = &now
			s.EndReason = "heartbeat timeout"
			drivers = append(drivers, s.DriverID)
		}
	}
	return drivers, nil
}

func (f *fakeSessionStore) ListAudit(_ context.Context, driverID *uuid.UUID, limit int) ([]domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Session
	for _, s := range f.sessions {
		if driverID != nil && s.DriverID != *driverID {
			continue
		}
		out = append(out, *s)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSessionStore) activeCount(driverID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.sessions {
		if s.DriverID == driverID && s.Status == domain.SessionActive {
			n++
		}
	}
	return n
}

type fakeEventStore struct {
	mu     sync.Mutex
	events map[uuid.UUID]*domain.ExecutionEvent
	order  []uuid.UUID
	jobs   map[uuid.UUID]*domain.JobState
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{
		events: make(map[uuid.UUID]*domain.ExecutionEvent),
		jobs:   make(map[uuid.UUID]*domain.JobState),
	}
}

func (f *fakeEventStore) Append(_ context.Context, ev *domain.ExecutionEvent, upd *domain.JobStateUpdate) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.events[ev.EventID]; exists {
		return false, nil
	}
	if upd != nil {
		job, ok := f.jobs[upd.JobID]
		if !ok {
			return false, domain.NotFoundf("job %s", upd.JobID)
		}
		if job.DriverStatus != upd.ExpectedStatus {
			return false, domain.Conflictf("job %s changed since validation, resynchronize", upd.JobID)
		}
		if job.LastEventAt != nil && job.LastEventAt.After(upd.CapturedAt) {
			return false, domain.Conflictf("job %s changed since validation, resynchronize", upd.JobID)
		}
		job.DriverStatus = upd.NewStatus
		if upd.Reset {
			job.CurrentStopIndex = 0
			job.ActualStartTime = nil
		} else {
			job.CurrentStopIndex += upd.StopAdvance
			if upd.SetStart && job.ActualStartTime == nil {
				at := upd.CapturedAt
				job.ActualStartTime = &at
			}
		}
		if upd.SetEnd {
			at := upd.CapturedAt
			job.ActualEndTime = &at
		}
		at := upd.CapturedAt
		job.LastEventAt = &at
	}
	cp := *ev
	f.events[ev.EventID] = &cp
	f.order = append(f.order, ev.EventID)
	return true, nil
}

func (f *fakeEventStore) GetEvent(_ context.Context, eventID uuid.UUID) (*domain.ExecutionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[eventID]
	if !ok {
		return nil, nil
	}
	cp := *ev
	return &cp, nil
}

func (f *fakeEventStore) GetJob(_ context.Context, jobID uuid.UUID) (*domain.JobState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, domain.NotFoundf("job %s", jobID)
	}
	cp := *job
	return &cp, nil
}

func (f *fakeEventStore) LastLocatedEvent(_ context.Context, jobID uuid.UUID) (*domain.ExecutionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var last *domain.ExecutionEvent
	for _, id := range f.order {
		ev := f.events[id]
		if ev.JobID != jobID || ev.Location == nil {
			continue
		}
		if last == nil || ev.CapturedAt.After(last.CapturedAt) {
			last = ev
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	return &cp, nil
}

func (f *fakeEventStore) Timeline(_ context.Context, driverID uuid.UUID, sessionID *uuid.UUID, limit int) ([]domain.ExecutionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ExecutionEvent
	for _, id := range f.order {
		ev := f.events[id]
		if ev.DriverID != driverID {
			continue
		}
		if sessionID != nil && ev.SessionID != *sessionID {
			continue
		}
		out = append(out, *ev)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeEventStore) Flagged(_ context.Context, limit int) ([]domain.ExecutionEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ExecutionEvent
	for _, id := range f.order {
		ev := f.events[id]
		if ev.ReviewStatus != nil && *ev.ReviewStatus == domain.ReviewPending {
			out = append(out, *ev)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeEventStore) SetReview(_ context.Context, eventID uuid.UUID, status domain.ReviewStatus, reviewer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.events[eventID]
	if !ok || ev.ReviewStatus == nil || *ev.ReviewStatus != domain.ReviewPending {
		return domain.NotFoundf("no pending review for event %s", eventID)
	}
	ev.ReviewStatus = &status
	ev.ReviewReason += " | reviewed by " + reviewer
	return nil
}

type fakeTelemetryStore struct {
	mu     sync.Mutex
	points []domain.TelemetryPoint
}

func (f *fakeTelemetryStore) Insert(_ context.Context, p *domain.TelemetryPoint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.points {
		if existing.DeviceID == p.DeviceID && existing.CapturedAt.Equal(p.CapturedAt) {
			return false, nil
		}
	}
	f.points = append(f.points, *p)
	return true, nil
}

func (f *fakeTelemetryStore) LatestActivePositions(context.Context) ([]domain.TelemetryPoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TelemetryPoint(nil), f.points...), nil
}

func (f *fakeTelemetryStore) QualityReport(context.Context, time.Time) ([]domain.GPSQualityRow, error) {
	return nil, nil
}

func (f *fakeTelemetryStore) ActiveJobStatus(context.Context, uuid.UUID) (domain.JobStatus, error) {
	return domain.JobInactive, nil
}

func (f *fakeTelemetryStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.points)
}

type fakeFeed struct {
	mu    sync.Mutex
	views []domain.DriverView
}

func (f *fakeFeed) PublishView(view domain.DriverView) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views = append(f.views, view)
}
