// Package projection keeps the "current position / current status" view
// dispatch reads. It is a cache over the event log and telemetry stream,
// never a source of truth: it can always be rebuilt from storage.
package projection

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"fleet-tracking/internal/domain"
)

type Tracker struct {
	mu    sync.RWMutex
	views map[uuid.UUID]*domain.DriverView
}

func NewTracker() *Tracker {
	return &Tracker{views: make(map[uuid.UUID]*domain.DriverView)}
}

// Observe folds a telemetry point into the projection. Ordering uses capture
// time: a point captured earlier than the driver's current position is
// ignored even if it arrived later. Returns true when the view advanced.
func (t *Tracker) Observe(p *domain.TelemetryPoint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	view, ok := t.views[p.DriverID]
	if ok && view.CapturedAt != nil && !p.CapturedAt.After(*view.CapturedAt) {
		return false
	}
	if !ok {
		view = &domain.DriverView{DriverID: p.DriverID, Status: domain.JobInactive}
		t.views[p.DriverID] = view
	}
	captured := p.CapturedAt
	view.SessionID = p.SessionID
	view.Position = &domain.Location{Lat: p.Lat, Lng: p.Lng}
	view.SpeedKmh = p.SpeedKmh
	view.Heading = p.Heading
	view.CapturedAt = &captured
	view.UpdatedAt = time.Now().UTC()
	return true
}

// SetStatus records the driver's execution status after a validated event.
func (t *Tracker) SetStatus(driverID, sessionID uuid.UUID, status domain.JobStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	view, ok := t.views[driverID]
	if !ok {
		view = &domain.DriverView{DriverID: driverID}
		t.views[driverID] = view
	}
	view.SessionID = sessionID
	view.Status = status
	view.UpdatedAt = time.Now().UTC()
}

// Remove drops the driver from the view when their session ends, expires or
// is invalidated.
func (t *Tracker) Remove(driverID uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.views, driverID)
}

func (t *Tracker) Get(driverID uuid.UUID) (domain.DriverView, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	view, ok := t.views[driverID]
	if !ok {
		return domain.DriverView{}, false
	}
	return *view, true
}

func (t *Tracker) Snapshot() []domain.DriverView {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]domain.DriverView, 0, len(t.views))
	for _, view := range t.views {
		out = append(out, *view)
	}
	return out
}

// WarmUp seeds the projection from storage on startup. statusOf resolves the
// driver's current execution status; points must already be the newest per
// driver on an active session.
func (t *Tracker) WarmUp(points []domain.TelemetryPoint, statusOf func(driverID uuid.UUID) domain.JobStatus) {
	for i := range points {
		p := &points[i]
		t.Observe(p)
		t.SetStatus(p.DriverID, p.SessionID, statusOf(p.DriverID))
	}
}
