package service

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-tracking/internal/domain"
)

type fakeSyncQueue struct {
	items []*domain.SyncQueueItem
}

func (f *fakeSyncQueue) Enqueue(_ context.Context, item *domain.SyncQueueItem) error {
	f.items = append(f.items, item)
	return nil
}

type fakeWaker struct {
	devices []uuid.UUID
	fail    bool
}

func (f *fakeWaker) PublishSyncEnqueued(_ context.Context, deviceID uuid.UUID) error {
	if f.fail {
		return errors.New("broker down")
	}
	f.devices = append(f.devices, deviceID)
	return nil
}

func enqueueRequest(payload, iv []byte) *domain.EnqueueBatchRequest {
	return &domain.EnqueueBatchRequest{
		DeviceID: uuid.NewString(),
		DriverID: uuid.NewString(),
		Payload:  base64.StdEncoding.EncodeToString(payload),
		IV:       base64.StdEncoding.EncodeToString(iv),
	}
}

func TestEnqueueStoresItemAndWakesWorker(t *testing.T) {
	queue := &fakeSyncQueue{}
	waker := &fakeWaker{}
	svc := NewSyncService(testLogger(), queue, waker)

	req := enqueueRequest([]byte("ciphertext"), []byte("123456789012"))
	id, err := svc.Enqueue(context.Background(), req)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	require.Len(t, queue.items, 1)
	assert.Equal(t, domain.SyncPending, queue.items[0].Status)
	assert.Equal(t, []byte("ciphertext"), queue.items[0].EncryptedPayload)

	require.Len(t, waker.devices, 1)
	assert.Equal(t, req.DeviceID, waker.devices[0].String())
}

func TestEnqueueWakeFailureIsNotFatal(t *testing.T) {
	queue := &fakeSyncQueue{}
	svc := NewSyncService(testLogger(), queue, &fakeWaker{fail: true})

	_, err := svc.Enqueue(context.Background(), enqueueRequest([]byte("ciphertext"), []byte("iv")))
	require.NoError(t, err, "the worker also polls, a missed wake-up only delays replay")
	assert.Len(t, queue.items, 1)
}

func TestEnqueueValidation(t *testing.T) {
	svc := NewSyncService(testLogger(), &fakeSyncQueue{}, nil)
	ctx := context.Background()

	req := enqueueRequest([]byte("x"), []byte("iv"))
	req.DeviceID = "bogus"
	_, err := svc.Enqueue(ctx, req)
	assert.ErrorIs(t, err, domain.ErrValidation)

	req = enqueueRequest([]byte("x"), []byte("iv"))
	req.Payload = "not base64!!"
	_, err = svc.Enqueue(ctx, req)
	assert.ErrorIs(t, err, domain.ErrValidation)

	req = enqueueRequest(nil, []byte("iv"))
	_, err = svc.Enqueue(ctx, req)
	assert.ErrorIs(t, err, domain.ErrValidation)

	req = enqueueRequest(make([]byte, maxEncryptedPayload+1), []byte("iv"))
	_, err = svc.Enqueue(ctx, req)
	assert.ErrorIs(t, err, domain.ErrValidation)
}
