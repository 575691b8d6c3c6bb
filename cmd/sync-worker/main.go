package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleet-tracking/internal/broker"
	"fleet-tracking/internal/projection"
	"fleet-tracking/internal/reconciler"
	"fleet-tracking/internal/repo"
	"fleet-tracking/internal/service"
	"fleet-tracking/pkg"
)

func main() {
	slogger := pkg.CustomSlog("sync-worker")
	cfg, err := pkg.ParseConfig()
	if err != nil {
		slogger.Error("cannot parse config", "action", "parse config", "error", err)
		os.Exit(1)
	}

	pool, err := pkg.NewDB(context.Background(), &cfg.DatabaseCfg)
	if err != nil {
		slogger.Error("cannot create connection to db", "action", "connect to db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	consumer, err := broker.NewSyncConsumer(pkg.RabbitDSN(&cfg.RabbitMQCfg), slogger)
	if err != nil {
		slogger.Error("cannot create connection to rabbitMQ", "action", "connect to rabbitMQ", "error", err)
		os.Exit(1)
	}
	defer consumer.CloseRabbit()

	box, err := pkg.NewSealedBox(cfg.TrackingCfg.SyncKey)
	if err != nil {
		slogger.Error("cannot build sync sealed box", "error", err)
		os.Exit(1)
	}

	sessionRepo := repo.NewSessionRepo(pool)
	eventRepo := repo.NewEventRepo(pool)
	telemetryRepo := repo.NewTelemetryRepo(pool)
	syncRepo := repo.NewSyncRepo(pool)

	// The worker keeps its own projection; dispatch reads the service's one.
	// No feed is wired here, replayed batches only touch storage.
	tracker := projection.NewTracker()
	events := service.NewEventService(slogger, eventRepo, sessionRepo, tracker, nil, cfg.TrackingCfg.MaxSpeedKmh)
	telemetry := service.NewTelemetryService(slogger, telemetryRepo, sessionRepo, tracker, nil, cfg.TrackingCfg.MaxBatchSize)

	worker := reconciler.New(slogger, syncRepo, events, telemetry, box, cfg.TrackingCfg.SyncRetryLimit)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		cancel()
	}()

	slogger.Info("sync worker started", "action", "run reconciler")
	worker.Run(ctx, consumer.WakeUps(), 30*time.Second)
	slogger.Info("sync worker stopped")
}
