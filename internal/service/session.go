package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fleet-tracking/internal/domain"
	"fleet-tracking/internal/projection"
)

// SessionStore is the persistence contract of the session registry. Start
// must atomically invalidate the driver's previous active session (reason
// "superseded") and insert the new one; the last committer wins under
// concurrency.
type SessionStore interface {
	Start(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, id uuid.UUID) (*domain.Session, error)
	Heartbeat(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	End(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error)
	ExpireStale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
	ListAudit(ctx context.Context, driverID *uuid.UUID, limit int) ([]domain.Session, error)
}

type SessionService struct {
	slogger          *slog.Logger
	store            SessionStore
	tracker          *projection.Tracker
	heartbeatTimeout time.Duration
}

func NewSessionService(slogger *slog.Logger, store SessionStore, tracker *projection.Tracker, heartbeatTimeout time.Duration) *SessionService {
	return &SessionService{
		slogger:          slogger,
		store:            store,
		tracker:          tracker,
		heartbeatTimeout: heartbeatTimeout,
	}
}

func (s *SessionService) Start(ctx context.Context, req *domain.StartSessionRequest) (*domain.Session, error) {
	driverID, err := uuid.Parse(req.DriverID)
	if err != nil {
		return nil, domain.Validationf("bad driver_id: %s", err)
	}
	deviceID, err := uuid.Parse(req.DeviceID)
	if err != nil {
		return nil, domain.Validationf("bad device_id: %s", err)
	}
	var vehicleID *uuid.UUID
	if req.VehicleID != "" {
		vid, err := uuid.Parse(req.VehicleID)
		if err != nil {
			return nil, domain.Validationf("bad vehicle_id: %s", err)
		}
		vehicleID = &vid
	}

	now := time.Now().UTC()
	session := &domain.Session{
		ID:              uuid.New(),
		DriverID:        driverID,
		DeviceID:        deviceID,
		VehicleID:       vehicleID,
		Status:          domain.SessionActive,
		DeviceInfo:      req.DeviceInfo,
		StartedAt:       now,
		LastHeartbeatAt: now,
	}
	if err := s.store.Start(ctx, session); err != nil {
		return nil, err
	}
	s.slogger.Info("session started",
		"session_id", session.ID, "driver_id", driverID, "device_id", deviceID)
	return session, nil
}

// Heartbeat returns false for non-active sessions; that is an answer, not an
// error.
func (s *SessionService) Heartbeat(ctx context.Context, sessionID string) (bool, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return false, domain.Validationf("bad session_id: %s", err)
	}
	return s.store.Heartbeat(ctx, id, time.Now().UTC())
}

// End is idempotent: ending a session that already terminated returns false.
func (s *SessionService) End(ctx context.Context, sessionID, reason string) (bool, error) {
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return false, domain.Validationf("bad session_id: %s", err)
	}
	if reason == "" {
		reason = "logout"
	}
	session, err := s.store.Get(ctx, id)
	if err != nil {
		return false, err
	}
	ended, err := s.store.End(ctx, id, reason, time.Now().UTC())
	if err != nil {
		return false, err
	}
	if ended {
		s.tracker.Remove(session.DriverID)
		s.slogger.Info("session ended", "session_id", id, "reason", reason)
	}
	return ended, nil
}

// ExpireStale moves every active session with a heartbeat older than the
// timeout to EXPIRED and drops the drivers from the live projection.
func (s *SessionService) ExpireStale(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-s.heartbeatTimeout)
	drivers, err := s.store.ExpireStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, driverID := range drivers {
		s.tracker.Remove(driverID)
	}
	if len(drivers) > 0 {
		s.slogger.Info("expired stale sessions", "count", len(drivers))
	}
	return len(drivers), nil
}

// RunSweeper runs the expiry sweep on a fixed interval until ctx is done.
func (s *SessionService) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireStale(ctx); err != nil {
				s.slogger.Error("session sweep failed", "error", err)
			}
		}
	}
}

func (s *SessionService) Audit(ctx context.Context, driverID string, limit int) ([]domain.Session, error) {
	var filter *uuid.UUID
	if driverID != "" {
		id, err := uuid.Parse(driverID)
		if err != nil {
			return nil, domain.Validationf("bad driver_id: %s", err)
		}
		filter = &id
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListAudit(ctx, filter, limit)
}
