// Package reconciler replays encrypted offline batches into the live intake
// paths. Devices are processed in parallel; each device's queue is strictly
// serial and oldest-first so events land in the order they were captured.
// Replay is safe to repeat because event appends are idempotent on event_id.
package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"fleet-tracking/internal/domain"
	"fleet-tracking/pkg"
)

// Queue is the persistent sync queue. ClaimNext hands the device's head item
// to exactly one consumer at a time, so the worker's poll loop and the
// operator-triggered pass never replay the same item concurrently.
type Queue interface {
	DevicesWithPending(ctx context.Context) ([]uuid.UUID, error)
	ClaimNext(ctx context.Context, deviceID uuid.UUID) (*domain.SyncQueueItem, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, lastEventID *uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, retryLimit int) (bool, error)
}

type EventIntake interface {
	Submit(ctx context.Context, req *domain.SubmitEventRequest) (*domain.SubmitEventResponse, error)
}

type PointIntake interface {
	SubmitPoint(ctx context.Context, req *domain.SubmitPointRequest) (*domain.TelemetryPoint, error)
}

type Reconciler struct {
	slogger    *slog.Logger
	queue      Queue
	events     EventIntake
	points     PointIntake
	box        *pkg.SealedBox
	retryLimit int
}

func New(slogger *slog.Logger, queue Queue, events EventIntake, points PointIntake, box *pkg.SealedBox, retryLimit int) *Reconciler {
	return &Reconciler{
		slogger:    slogger,
		queue:      queue,
		events:     events,
		points:     points,
		box:        box,
		retryLimit: retryLimit,
	}
}

// ProcessPending drains the queue for every device with pending items, one
// goroutine per device. Returns the number of items processed successfully.
func (r *Reconciler) ProcessPending(ctx context.Context) (int, error) {
	devices, err := r.queue.DevicesWithPending(ctx)
	if err != nil {
		return 0, err
	}

	counts := make([]int, len(devices))
	g, gctx := errgroup.WithContext(ctx)
	for i, deviceID := range devices {
		g.Go(func() error {
			n, err := r.ProcessDevice(gctx, deviceID)
			counts[i] = n
			return err
		})
	}
	err = g.Wait()

	total := 0
	for _, n := range counts {
		total += n
	}
	return total, err
}

// ProcessDevice drains one device's queue serially. A failed item stays at
// the head (or escalates), so the pass stops there to preserve ordering. A
// nil claim means the queue is drained or another consumer holds the head;
// either way this pass is done.
func (r *Reconciler) ProcessDevice(ctx context.Context, deviceID uuid.UUID) (int, error) {
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		item, err := r.queue.ClaimNext(ctx, deviceID)
		if err != nil {
			return processed, err
		}
		if item == nil {
			return processed, nil
		}
		ok, err := r.processItem(ctx, item)
		if err != nil {
			return processed, err
		}
		if !ok {
			return processed, nil
		}
		processed++
	}
}

// processItem replays one batch. Returns (true, nil) on success, (false, nil)
// when the item failed and was retried/escalated, and an error only for
// queue-level failures.
func (r *Reconciler) processItem(ctx context.Context, item *domain.SyncQueueItem) (bool, error) {
	batch, err := r.decode(item)
	if err != nil {
		return false, r.fail(ctx, item, err)
	}

	var lastEventID *uuid.UUID
	for i := range batch.Events {
		resp, err := r.events.Submit(ctx, &batch.Events[i])
		if err != nil {
			return false, r.fail(ctx, item, err)
		}
		if id, err := uuid.Parse(resp.EventID); err == nil {
			lastEventID = &id
		}
	}
	for i := range batch.Points {
		_, err := r.points.SubmitPoint(ctx, &batch.Points[i])
		if errors.Is(err, domain.ErrNotFound) {
			// The session vanished between capture and replay. The point is
			// unrecoverable; say so instead of poisoning the whole batch.
			r.slogger.Warn("dropping point from sync batch",
				"queue_item_id", item.ID, "device_id", item.DeviceID,
				"point_index", i, "error", err)
			continue
		}
		if err != nil {
			return false, r.fail(ctx, item, err)
		}
	}

	if err := r.queue.MarkProcessed(ctx, item.ID, lastEventID, time.Now().UTC()); err != nil {
		return false, err
	}
	r.slogger.Info("sync batch replayed",
		"queue_item_id", item.ID, "device_id", item.DeviceID,
		"events", len(batch.Events), "points", len(batch.Points))
	return true, nil
}

func (r *Reconciler) decode(item *domain.SyncQueueItem) (*domain.SyncBatch, error) {
	plaintext, err := r.box.Open(item.EncryptedPayload, item.EncryptionIV)
	if err != nil {
		return nil, domain.Validationf("batch decryption failed: %s", err)
	}
	batch := new(domain.SyncBatch)
	if err := json.Unmarshal(plaintext, batch); err != nil {
		return nil, domain.Validationf("batch is not valid json: %s", err)
	}
	return batch, nil
}

func (r *Reconciler) fail(ctx context.Context, item *domain.SyncQueueItem, cause error) error {
	escalated, err := r.queue.MarkFailed(ctx, item.ID, cause.Error(), r.retryLimit)
	if err != nil {
		return err
	}
	if escalated {
		r.slogger.Error("sync batch escalated for manual review",
			"queue_item_id", item.ID, "device_id", item.DeviceID, "error", cause)
	} else {
		r.slogger.Warn("sync batch failed, will retry",
			"queue_item_id", item.ID, "device_id", item.DeviceID, "error", cause)
	}
	return nil
}

// Run consumes wake-up signals and falls back to a periodic full pass, until
// ctx is done.
func (r *Reconciler) Run(ctx context.Context, wake <-chan string, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, open := <-wake:
			if !open {
				return
			}
			deviceID, err := uuid.Parse(raw)
			if err != nil {
				r.slogger.Warn("bad device id in wake-up", "device_id", raw)
				continue
			}
			if _, err := r.ProcessDevice(ctx, deviceID); err != nil {
				r.slogger.Error("device reconciliation failed", "device_id", deviceID, "error", err)
			}
		case <-ticker.C:
			if _, err := r.ProcessPending(ctx); err != nil {
				r.slogger.Error("queue reconciliation failed", "error", err)
			}
		}
	}
}
