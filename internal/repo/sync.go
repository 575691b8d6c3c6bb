package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-tracking/internal/domain"
)

type SyncRepo struct {
	db *pgxpool.Pool
}

func NewSyncRepo(db *pgxpool.Pool) *SyncRepo {
	return &SyncRepo{db: db}
}

func (r *SyncRepo) Enqueue(ctx context.Context, item *domain.SyncQueueItem) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO sync_queue (
			id, device_id, driver_id, encrypted_payload, encryption_iv,
			status, enqueued_at
		) VALUES ($1, $2, $3, $4, $5, 'PENDING', $6)
	`, item.ID, item.DeviceID, item.DriverID, item.EncryptedPayload, item.EncryptionIV, item.EnqueuedAt)
	return wrapErr(err)
}

// staleClaim is how long a PROCESSING item may sit unclaimed-looking before
// another consumer may take it over (the claimer crashed mid-batch). Replay
// is idempotent on both events and points, so a takeover is safe.
const staleClaim = "5 minutes"

// DevicesWithPending lists devices that have open items, so the reconciler
// can fan out one serial consumer per device. Stale PROCESSING claims count
// as open.
func (r *SyncRepo) DevicesWithPending(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT device_id FROM sync_queue
		WHERE status = 'PENDING'
			OR (status = 'PROCESSING' AND claimed_at < now() - interval '`+staleClaim+`')
	`)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, wrapErr(rows.Err())
}

// ClaimNext atomically claims the head of the device's queue. The head is the
// oldest non-terminal item: if it is PENDING (or a stale PROCESSING claim) it
// flips to PROCESSING and is returned; if another consumer holds a live claim
// on it, nil is returned and the caller backs off. A concurrent claimer
// blocks on the row lock and re-checks, so two consumers can never share an
// item or leapfrog the queue's order.
func (r *SyncRepo) ClaimNext(ctx context.Context, deviceID uuid.UUID) (*domain.SyncQueueItem, error) {
	item := new(domain.SyncQueueItem)
	err := r.db.QueryRow(ctx, `
		UPDATE sync_queue
		SET status = 'PROCESSING', claimed_at = now()
		WHERE id = (
			SELECT id FROM sync_queue
			WHERE device_id = $1 AND status IN ('PENDING', 'PROCESSING')
			ORDER BY enqueued_at ASC
			LIMIT 1
			FOR UPDATE
		)
		AND (status = 'PENDING' OR claimed_at < now() - interval '`+staleClaim+`')
		RETURNING id, device_id, driver_id, encrypted_payload, encryption_iv,
			status, retry_count, last_error, enqueued_at, claimed_at,
			processed_at, processed_event_id
	`, deviceID).Scan(
		&item.ID, &item.DeviceID, &item.DriverID, &item.EncryptedPayload, &item.EncryptionIV,
		&item.Status, &item.RetryCount, &item.LastError, &item.EnqueuedAt, &item.ClaimedAt,
		&item.ProcessedAt, &item.ProcessedEventID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return item, nil
}

func (r *SyncRepo) MarkProcessed(ctx context.Context, id uuid.UUID, lastEventID *uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE sync_queue
		SET status = 'PROCESSED', processed_at = $2, processed_event_id = $3
		WHERE id = $1 AND status = 'PROCESSING'
	`, id, at, lastEventID)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("sync item %s is not claimed", id)
	}
	return nil
}

// MarkFailed releases the claim: the item goes back to PENDING for another
// attempt, or to ESCALATED once the retry counter crosses the ceiling.
// Returns true when the item was escalated.
func (r *SyncRepo) MarkFailed(ctx context.Context, id uuid.UUID, reason string, retryLimit int) (bool, error) {
	var status domain.SyncItemStatus
	err := r.db.QueryRow(ctx, `
		UPDATE sync_queue
		SET retry_count = retry_count + 1,
			last_error = $2,
			claimed_at = NULL,
			status = CASE WHEN retry_count + 1 >= $3 THEN 'ESCALATED' ELSE 'PENDING' END
		WHERE id = $1 AND status = 'PROCESSING'
		RETURNING status
	`, id, reason, retryLimit).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, domain.NotFoundf("sync item %s is not claimed", id)
	}
	if err != nil {
		return false, wrapErr(err)
	}
	return status == domain.SyncEscalated, nil
}
