package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleet-tracking/internal/broker"
	"fleet-tracking/internal/domain"
	"fleet-tracking/internal/projection"
	"fleet-tracking/internal/reconciler"
	"fleet-tracking/internal/repo"
	"fleet-tracking/internal/server"
	"fleet-tracking/internal/service"
	"fleet-tracking/internal/ws"
	"fleet-tracking/pkg"
)

// liveFeed fans projection updates out to both push surfaces: the dispatch
// websocket hub and the broker fanout for external consumers.
type liveFeed struct {
	hub *ws.DispatchHub
	pub *broker.Publisher
}

func (f *liveFeed) PublishView(view domain.DriverView) {
	f.hub.PublishView(view)
	f.pub.PublishView(view)
}

func main() {
	slogger := pkg.CustomSlog("tracking-service")
	cfg, err := pkg.ParseConfig()
	if err != nil {
		slogger.Error("cannot parse config", "action", "parse config", "error", err)
		os.Exit(1)
	}

	if err := pkg.RunMigrations(&cfg.DatabaseCfg, "migrations"); err != nil {
		slogger.Error("cannot run migrations", "action", "migrate", "error", err)
		os.Exit(1)
	}

	pool, err := pkg.NewDB(context.Background(), &cfg.DatabaseCfg)
	if err != nil {
		slogger.Error("cannot create connection to db", "action", "connect to db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	rabbit, err := broker.NewPublisher(pkg.RabbitDSN(&cfg.RabbitMQCfg), slogger)
	if err != nil {
		slogger.Error("cannot create connection to rabbitMQ", "action", "connect to rabbitMQ", "error", err)
		os.Exit(1)
	}
	defer rabbit.CloseRabbit()

	box, err := pkg.NewSealedBox(cfg.TrackingCfg.SyncKey)
	if err != nil {
		slogger.Error("cannot build sync sealed box", "error", err)
		os.Exit(1)
	}

	sessionRepo := repo.NewSessionRepo(pool)
	eventRepo := repo.NewEventRepo(pool)
	telemetryRepo := repo.NewTelemetryRepo(pool)
	syncRepo := repo.NewSyncRepo(pool)

	tracker := projection.NewTracker()
	hub := ws.NewDispatchHub(slogger, []byte(cfg.ServicesCfg.Secret), cfg.WebSocketCfg.Port)
	feed := &liveFeed{hub: hub, pub: rabbit}

	heartbeatTimeout := time.Duration(cfg.TrackingCfg.HeartbeatTimeoutMinutes) * time.Minute
	sessions := service.NewSessionService(slogger, sessionRepo, tracker, heartbeatTimeout)
	events := service.NewEventService(slogger, eventRepo, sessionRepo, tracker, feed, cfg.TrackingCfg.MaxSpeedKmh)
	telemetry := service.NewTelemetryService(slogger, telemetryRepo, sessionRepo, tracker, feed, cfg.TrackingCfg.MaxBatchSize)
	syncSvc := service.NewSyncService(slogger, syncRepo, rabbit)
	queue := reconciler.New(slogger, syncRepo, events, telemetry, box, cfg.TrackingCfg.SyncRetryLimit)

	if err := telemetry.WarmUp(context.Background()); err != nil {
		slogger.Error("cannot warm up projection", "error", err)
		os.Exit(1)
	}

	myServer := server.NewTrackingServer(
		cfg.ServicesCfg.TrackingService,
		cfg.ServicesCfg.Secret,
		sessions, events, telemetry, syncSvc, queue,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sessions.RunSweeper(ctx, time.Duration(cfg.TrackingCfg.SweepIntervalSeconds)*time.Second)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		slogger.Info("starting the websocket hub", "action", "start the websocket hub")
		err := hub.StartServer()
		slog.Error("websocket hub stopped", "error", err)
		quit <- nil
	}()
	go func() {
		slogger.Info("starting the server", "action", "start the server")
		err := myServer.StartServer()
		slog.Error("server stopped", "error", err)
		quit <- nil
	}()
	<-quit
	hub.CloseServer()
	myServer.ShutDownServer(context.Background())
}
