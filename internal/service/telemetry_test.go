package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-tracking/internal/domain"
	"fleet-tracking/internal/projection"
)

type telemetryFixture struct {
	svc       *TelemetryService
	store     *fakeTelemetryStore
	sessions  *fakeSessionStore
	tracker   *projection.Tracker
	feed      *fakeFeed
	driverID  uuid.UUID
	sessionID uuid.UUID
	deviceID  uuid.UUID
}

func newTelemetryFixture(t *testing.T) *telemetryFixture {
	t.Helper()
	store := &fakeTelemetryStore{}
	sessions := newFakeSessionStore()
	tracker := projection.NewTracker()
	feed := &fakeFeed{}

	driverID := uuid.New()
	sessionID := uuid.New()
	deviceID := uuid.New()

	now := time.Now().UTC()
	require.NoError(t, sessions.Start(context.Background(), &domain.Session{
		ID:              sessionID,
		DriverID:        driverID,
		DeviceID:        deviceID,
		Status:          domain.SessionActive,
		StartedAt:       now,
		LastHeartbeatAt: now,
	}))

	return &telemetryFixture{
		svc:       NewTelemetryService(testLogger(), store, sessions, tracker, feed, 100),
		store:     store,
		sessions:  sessions,
		tracker:   tracker,
		feed:      feed,
		driverID:  driverID,
		sessionID: sessionID,
		deviceID:  deviceID,
	}
}

func (f *telemetryFixture) point(lat, lng float64, capturedAt time.Time) domain.SubmitPointRequest {
	return domain.SubmitPointRequest{
		DriverID:   f.driverID.String(),
		SessionID:  f.sessionID.String(),
		DeviceID:   f.deviceID.String(),
		Lat:        lat,
		Lng:        lng,
		CapturedAt: capturedAt,
	}
}

func TestSubmitPointOutOfOrderKeepsNewestCapture(t *testing.T) {
	f := newTelemetryFixture(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	// P1 was captured after P2 but arrives first.
	p1 := f.point(43.25, 76.95, base.Add(2*time.Minute))
	p2 := f.point(43.24, 76.94, base.Add(1*time.Minute))

	_, err := f.svc.SubmitPoint(ctx, &p1)
	require.NoError(t, err)
	_, err = f.svc.SubmitPoint(ctx, &p2)
	require.NoError(t, err)

	assert.Equal(t, 2, f.store.count(), "both points are stored for history")

	view, ok := f.tracker.Get(f.driverID)
	require.True(t, ok)
	require.NotNil(t, view.Position)
	assert.Equal(t, 43.25, view.Position.Lat, "projection must keep the later capture")
	assert.Equal(t, p1.CapturedAt.Unix(), view.CapturedAt.Unix())

	assert.Len(t, f.feed.views, 1, "the stale point must not fan out")
}

func TestSubmitPointReplayedFlushIsIdempotent(t *testing.T) {
	f := newTelemetryFixture(t)
	ctx := context.Background()

	p := f.point(43.25, 76.95, time.Now().UTC())
	_, err := f.svc.SubmitPoint(ctx, &p)
	require.NoError(t, err)

	// Same device, same capture instant: a re-flushed offline batch.
	replay := p
	_, err = f.svc.SubmitPoint(ctx, &replay)
	require.NoError(t, err, "a replayed point is a success, not an error")

	assert.Equal(t, 1, f.store.count(), "replay must not duplicate the stored row")
	assert.Len(t, f.feed.views, 1, "replay must not fan out again")
}

func TestSubmitPointInactiveSessionStoredButHidden(t *testing.T) {
	f := newTelemetryFixture(t)
	ctx := context.Background()

	_, err := f.sessions.End(ctx, f.sessionID, "logout", time.Now().UTC())
	require.NoError(t, err)

	p := f.point(43.25, 76.95, time.Now().UTC())
	_, err = f.svc.SubmitPoint(ctx, &p)
	require.NoError(t, err)

	assert.Equal(t, 1, f.store.count(), "late uploads from ended sessions are kept")
	_, ok := f.tracker.Get(f.driverID)
	assert.False(t, ok, "ended sessions never reach the live view")
	assert.Empty(t, f.feed.views)
}

func TestSubmitPointValidation(t *testing.T) {
	f := newTelemetryFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	bad := f.point(91.0, 0, now)
	_, err := f.svc.SubmitPoint(ctx, &bad)
	assert.ErrorIs(t, err, domain.ErrValidation)

	bad = f.point(43.25, 181.0, now)
	_, err = f.svc.SubmitPoint(ctx, &bad)
	assert.ErrorIs(t, err, domain.ErrValidation)

	bad = f.point(43.25, 76.95, time.Time{})
	_, err = f.svc.SubmitPoint(ctx, &bad)
	assert.ErrorIs(t, err, domain.ErrValidation)

	heading := 360.0
	bad = f.point(43.25, 76.95, now)
	bad.Heading = &heading
	_, err = f.svc.SubmitPoint(ctx, &bad)
	assert.ErrorIs(t, err, domain.ErrValidation)

	battery := 120.0
	bad = f.point(43.25, 76.95, now)
	bad.BatteryLevel = &battery
	_, err = f.svc.SubmitPoint(ctx, &bad)
	assert.ErrorIs(t, err, domain.ErrValidation)

	wrongDriver := f.point(43.25, 76.95, now)
	wrongDriver.DriverID = uuid.NewString()
	_, err = f.svc.SubmitPoint(ctx, &wrongDriver)
	assert.ErrorIs(t, err, domain.ErrValidation)

	unknownSession := f.point(43.25, 76.95, now)
	unknownSession.SessionID = uuid.NewString()
	_, err = f.svc.SubmitPoint(ctx, &unknownSession)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	assert.Equal(t, 0, f.store.count(), "no rejected point may be stored")
}

func TestSubmitBatchPartialFailure(t *testing.T) {
	f := newTelemetryFixture(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Minute)

	good1 := f.point(43.25, 76.95, base)
	bad := f.point(-95.0, 76.95, base.Add(time.Second))
	good2 := f.point(43.26, 76.96, base.Add(2*time.Second))

	resp, err := f.svc.SubmitBatch(ctx, &domain.SubmitBatchRequest{
		Points: []domain.SubmitPointRequest{good1, bad, good2},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Accepted)
	assert.Equal(t, 1, resp.Rejected)
	require.Len(t, resp.Results, 3)

	assert.True(t, resp.Results[0].Accepted)
	assert.NotEmpty(t, resp.Results[0].PointID)
	assert.False(t, resp.Results[1].Accepted)
	assert.Equal(t, 1, resp.Results[1].Index)
	assert.NotEmpty(t, resp.Results[1].Error)
	assert.True(t, resp.Results[2].Accepted)

	assert.Equal(t, 2, f.store.count(), "only the valid subset is stored")
}

func TestSubmitBatchSizeLimits(t *testing.T) {
	f := newTelemetryFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitBatch(ctx, &domain.SubmitBatchRequest{})
	assert.ErrorIs(t, err, domain.ErrValidation)

	oversize := make([]domain.SubmitPointRequest, 101)
	for i := range oversize {
		oversize[i] = f.point(43.25, 76.95, time.Now().UTC())
	}
	_, err = f.svc.SubmitBatch(ctx, &domain.SubmitBatchRequest{Points: oversize})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestActiveDriversSnapshot(t *testing.T) {
	f := newTelemetryFixture(t)
	ctx := context.Background()

	p := f.point(43.25, 76.95, time.Now().UTC())
	_, err := f.svc.SubmitPoint(ctx, &p)
	require.NoError(t, err)

	views := f.svc.ActiveDrivers()
	require.Len(t, views, 1)
	assert.Equal(t, f.driverID, views[0].DriverID)
	assert.Equal(t, f.sessionID, views[0].SessionID)
}
