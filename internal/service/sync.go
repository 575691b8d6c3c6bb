package service

import (
	"context"
	"encoding/base64"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"fleet-tracking/internal/domain"
)

// maxEncryptedPayload bounds a single offline flush. Devices split larger
// backlogs into multiple queue items.
const maxEncryptedPayload = 4 << 20

type SyncEnqueuer interface {
	Enqueue(ctx context.Context, item *domain.SyncQueueItem) error
}

// WakePublisher nudges the sync worker after an enqueue. Best effort: the
// worker also polls, so a broker outage only delays reconciliation.
type WakePublisher interface {
	PublishSyncEnqueued(ctx context.Context, deviceID uuid.UUID) error
}

type SyncService struct {
	slogger *slog.Logger
	store   SyncEnqueuer
	wake    WakePublisher
}

func NewSyncService(slogger *slog.Logger, store SyncEnqueuer, wake WakePublisher) *SyncService {
	return &SyncService{slogger: slogger, store: store, wake: wake}
}

func (s *SyncService) Enqueue(ctx context.Context, req *domain.EnqueueBatchRequest) (uuid.UUID, error) {
	deviceID, err := uuid.Parse(req.DeviceID)
	if err != nil {
		return uuid.Nil, domain.Validationf("bad device_id: %s", err)
	}
	driverID, err := uuid.Parse(req.DriverID)
	if err != nil {
		return uuid.Nil, domain.Validationf("bad driver_id: %s", err)
	}
	payload, err := base64.StdEncoding.DecodeString(req.Payload)
	if err != nil {
		return uuid.Nil, domain.Validationf("payload is not valid base64: %s", err)
	}
	iv, err := base64.StdEncoding.DecodeString(req.IV)
	if err != nil {
		return uuid.Nil, domain.Validationf("iv is not valid base64: %s", err)
	}
	if len(payload) == 0 || len(iv) == 0 {
		return uuid.Nil, domain.Validationf("payload and iv are required")
	}
	if len(payload) > maxEncryptedPayload {
		return uuid.Nil, domain.Validationf("payload exceeds %d bytes", maxEncryptedPayload)
	}

	item := &domain.SyncQueueItem{
		ID:               uuid.New(),
		DeviceID:         deviceID,
		DriverID:         driverID,
		EncryptedPayload: payload,
		EncryptionIV:     iv,
		Status:           domain.SyncPending,
		EnqueuedAt:       time.Now().UTC(),
	}
	if err := s.store.Enqueue(ctx, item); err != nil {
		return uuid.Nil, err
	}

	if s.wake != nil {
		if err := s.wake.PublishSyncEnqueued(ctx, deviceID); err != nil {
			s.slogger.Warn("sync wake-up publish failed", "device_id", deviceID, "error", err)
		}
	}
	s.slogger.Info("sync batch enqueued", "queue_item_id", item.ID, "device_id", deviceID)
	return item.ID, nil
}
