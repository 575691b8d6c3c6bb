package server

import (
	"context"
	"fmt"
	"net/http"

	"fleet-tracking/internal/service"
)

// QueueProcessor lets operators trigger a reconciliation pass over the sync
// queue without waiting for the worker's next poll.
type QueueProcessor interface {
	ProcessPending(ctx context.Context) (int, error)
}

type trackingServer struct {
	srv http.Server
}

func NewTrackingServer(
	port uint16,
	secret string,
	sessions *service.SessionService,
	events *service.EventService,
	telemetry *service.TelemetryService,
	syncSvc *service.SyncService,
	queue QueueProcessor,
) *trackingServer {
	mux := http.NewServeMux()
	sec := []byte(secret)
	hand := &trackingHandler{
		sessions:  sessions,
		events:    events,
		telemetry: telemetry,
		sync:      syncSvc,
		queue:     queue,
	}

	driver := func(h http.HandlerFunc) http.Handler { return roleMiddleware(h, sec, "DRIVER") }
	reader := func(h http.HandlerFunc) http.Handler { return roleMiddleware(h, sec, "DISPATCH", "ADMIN") }
	admin := func(h http.HandlerFunc) http.Handler { return roleMiddleware(h, sec, "ADMIN") }

	mux.Handle("POST /sessions/start", driver(hand.startSession))
	mux.Handle("POST /sessions/{session_id}/heartbeat", driver(hand.heartbeat))
	mux.Handle("POST /sessions/{session_id}/end", driver(hand.endSession))

	mux.Handle("POST /drivers/{driver_id}/events", driver(hand.submitEvent))
	mux.Handle("POST /drivers/{driver_id}/telemetry", driver(hand.submitPoint))
	mux.Handle("POST /telemetry/batch", driver(hand.submitBatch))
	mux.Handle("POST /sync/batches", driver(hand.enqueueBatch))

	mux.Handle("GET /dispatch/active-drivers", reader(hand.activeDrivers))
	mux.Handle("GET /drivers/{driver_id}/timeline", reader(hand.timeline))

	mux.Handle("POST /sync/process", admin(hand.processQueue))
	mux.Handle("GET /admin/sessions", admin(hand.sessionAudit))
	mux.Handle("GET /admin/gps-quality", admin(hand.gpsQuality))
	mux.Handle("GET /admin/events/flagged", admin(hand.flaggedEvents))
	mux.Handle("POST /admin/events/{event_id}/review", admin(hand.reviewEvent))

	return &trackingServer{
		srv: http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}
}

func (s *trackingServer) StartServer() error {
	return s.srv.ListenAndServe()
}

func (s *trackingServer) ShutDownServer(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

type trackingHandler struct {
	sessions  *service.SessionService
	events    *service.EventService
	telemetry *service.TelemetryService
	sync      *service.SyncService
	queue     QueueProcessor
}
