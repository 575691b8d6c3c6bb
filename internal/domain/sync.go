package domain

import (
	"time"

	"github.com/google/uuid"
)

type SyncItemStatus string

const (
	SyncPending    SyncItemStatus = "PENDING"
	SyncProcessing SyncItemStatus = "PROCESSING"
	SyncProcessed  SyncItemStatus = "PROCESSED"
	SyncEscalated  SyncItemStatus = "ESCALATED"
)

// SyncQueueItem is one encrypted batch flushed by a device that was offline.
// A consumer claims the item (PROCESSING) before replaying it, so the head of
// a device's queue belongs to exactly one consumer at a time. Consumed
// exactly once on success; failed items retry up to the ceiling and then
// escalate for manual review.
type SyncQueueItem struct {
	ID               uuid.UUID      `db:"id" json:"id"`
	DeviceID         uuid.UUID      `db:"device_id" json:"device_id"`
	DriverID         uuid.UUID      `db:"driver_id" json:"driver_id"`
	EncryptedPayload []byte         `db:"encrypted_payload" json:"-"`
	EncryptionIV     []byte         `db:"encryption_iv" json:"-"`
	Status           SyncItemStatus `db:"status" json:"status"`
	RetryCount       int            `db:"retry_count" json:"retry_count"`
	LastError        string         `db:"last_error" json:"last_error,omitempty"`
	EnqueuedAt       time.Time      `db:"enqueued_at" json:"enqueued_at"`
	ClaimedAt        *time.Time     `db:"claimed_at" json:"claimed_at,omitempty"`
	ProcessedAt      *time.Time     `db:"processed_at" json:"processed_at,omitempty"`
	ProcessedEventID *uuid.UUID     `db:"processed_event_id" json:"processed_event_id,omitempty"`
}

// SyncBatch is the decrypted payload of a queue item: the events and points
// the device accumulated offline, in capture order.
type SyncBatch struct {
	Events []SubmitEventRequest `json:"events"`
	Points []SubmitPointRequest `json:"points"`
}

type EnqueueBatchRequest struct {
	DeviceID string `json:"device_id"`
	DriverID string `json:"driver_id"`
	Payload  string `json:"payload"` // base64 ciphertext
	IV       string `json:"iv"`      // base64 nonce
}

type EnqueueBatchResponse struct {
	QueueItemID string `json:"queue_item_id"`
}
