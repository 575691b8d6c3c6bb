package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fleet-tracking/internal/domain"
	"fleet-tracking/internal/projection"
)

// TelemetryStore persists GPS samples. Insert must be idempotent on
// (device_id, captured_at) and report whether the row is new.
type TelemetryStore interface {
	Insert(ctx context.Context, p *domain.TelemetryPoint) (bool, error)
	LatestActivePositions(ctx context.Context) ([]domain.TelemetryPoint, error)
	QualityReport(ctx context.Context, since time.Time) ([]domain.GPSQualityRow, error)
	ActiveJobStatus(ctx context.Context, driverID uuid.UUID) (domain.JobStatus, error)
}

type TelemetryService struct {
	slogger      *slog.Logger
	store        TelemetryStore
	sessions     SessionGetter
	tracker      *projection.Tracker
	feed         LiveFeed
	maxBatchSize int
}

func NewTelemetryService(slogger *slog.Logger, store TelemetryStore, sessions SessionGetter, tracker *projection.Tracker, feed LiveFeed, maxBatchSize int) *TelemetryService {
	return &TelemetryService{
		slogger:      slogger,
		store:        store,
		sessions:     sessions,
		tracker:      tracker,
		feed:         feed,
		maxBatchSize: maxBatchSize,
	}
}

// SubmitPoint stores one GPS sample. Points on sessions that are no longer
// active are kept for history but never advance the live projection.
func (s *TelemetryService) SubmitPoint(ctx context.Context, req *domain.SubmitPointRequest) (*domain.TelemetryPoint, error) {
	if err := validatePoint(req); err != nil {
		return nil, err
	}
	driverID, err := uuid.Parse(req.DriverID)
	if err != nil {
		return nil, domain.Validationf("bad driver_id: %s", err)
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		return nil, domain.Validationf("bad session_id: %s", err)
	}
	deviceID, err := uuid.Parse(req.DeviceID)
	if err != nil {
		return nil, domain.Validationf("bad device_id: %s", err)
	}

	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.DriverID != driverID {
		return nil, domain.Validationf("session %s does not belong to driver %s", sessionID, driverID)
	}

	point := &domain.TelemetryPoint{
		ID:           uuid.New(),
		DriverID:     driverID,
		SessionID:    sessionID,
		DeviceID:     deviceID,
		Lat:          req.Lat,
		Lng:          req.Lng,
		Altitude:     req.Altitude,
		Accuracy:     req.Accuracy,
		Heading:      req.Heading,
		SpeedKmh:     req.SpeedKmh,
		BatteryLevel: req.BatteryLevel,
		CapturedAt:   req.CapturedAt,
		ReceivedAt:   time.Now().UTC(),
	}
	inserted, err := s.store.Insert(ctx, point)
	if err != nil {
		return nil, err
	}
	if !inserted {
		// Replayed sample (same device, same capture instant): success, but
		// nothing new to project.
		return point, nil
	}

	if session.IsActive() && s.tracker.Observe(point) {
		if view, ok := s.tracker.Get(driverID); ok && s.feed != nil {
			s.feed.PublishView(view)
		}
	}
	return point, nil
}

// SubmitBatch validates and inserts each point independently and reports a
// per-point outcome so the client retries only the failed subset.
func (s *TelemetryService) SubmitBatch(ctx context.Context, req *domain.SubmitBatchRequest) (*domain.SubmitBatchResponse, error) {
	if len(req.Points) == 0 {
		return nil, domain.Validationf("batch is empty")
	}
	if len(req.Points) > s.maxBatchSize {
		return nil, domain.Validationf("batch exceeds %d points", s.maxBatchSize)
	}

	resp := &domain.SubmitBatchResponse{Results: make([]domain.PointResult, 0, len(req.Points))}
	for i := range req.Points {
		point, err := s.SubmitPoint(ctx, &req.Points[i])
		if err != nil {
			resp.Rejected++
			resp.Results = append(resp.Results, domain.PointResult{Index: i, Error: err.Error()})
			continue
		}
		resp.Accepted++
		resp.Results = append(resp.Results, domain.PointResult{Index: i, Accepted: true, PointID: point.ID.String()})
	}
	return resp, nil
}

// WarmUp seeds the projection from storage at startup.
func (s *TelemetryService) WarmUp(ctx context.Context) error {
	points, err := s.store.LatestActivePositions(ctx)
	if err != nil {
		return err
	}
	s.tracker.WarmUp(points, func(driverID uuid.UUID) domain.JobStatus {
		status, err := s.store.ActiveJobStatus(ctx, driverID)
		if err != nil {
			return domain.JobInactive
		}
		return status
	})
	s.slogger.Info("projection warmed up", "drivers", len(points))
	return nil
}

// ActiveDrivers is the dispatch read API: every driver with a live view.
func (s *TelemetryService) ActiveDrivers() []domain.DriverView {
	return s.tracker.Snapshot()
}

func (s *TelemetryService) Quality(ctx context.Context, since time.Time) ([]domain.GPSQualityRow, error) {
	if since.IsZero() {
		since = time.Now().UTC().Add(-24 * time.Hour)
	}
	return s.store.QualityReport(ctx, since)
}
