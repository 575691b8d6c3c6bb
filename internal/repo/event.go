package repo

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-tracking/internal/domain"
)

type EventRepo struct {
	db *pgxpool.Pool
}

func NewEventRepo(db *pgxpool.Pool) *EventRepo {
	return &EventRepo{db: db}
}

// Append inserts the event and applies the derived job-state update in one
// transaction. The insert is idempotent on event_id: a duplicate id commits
// nothing and returns inserted=false. The job update carries two guards — the
// status the state machine validated against and a capture-time floor — so a
// racing or stale event cannot supersede newer state.
func (r *EventRepo) Append(ctx context.Context, ev *domain.ExecutionEvent, upd *domain.JobStateUpdate) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, wrapErr(err)
	}
	defer tx.Rollback(ctx)

	meta, err := json.Marshal(ev.Metadata)
	if err != nil {
		return false, err
	}
	var lat, lng *float64
	if ev.Location != nil {
		lat, lng = &ev.Location.Lat, &ev.Location.Lng
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO execution_events (
			event_id, driver_id, session_id, job_id, event_type, resulting_status,
			latitude, longitude, captured_at, received_at, metadata,
			review_status, review_reason
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (event_id) DO NOTHING
	`, ev.EventID, ev.DriverID, ev.SessionID, ev.JobID, ev.EventType, ev.ResultingStatus,
		lat, lng, ev.CapturedAt, ev.ReceivedAt, meta, ev.ReviewStatus, ev.ReviewReason)
	if err != nil {
		return false, wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		// Idempotent replay: the event is already on record, leave the job
		// state exactly as it is.
		return false, wrapErr(tx.Commit(ctx))
	}

	if upd != nil {
		tag, err = tx.Exec(ctx, `
			UPDATE jobs SET
				driver_status = $2,
				current_stop_index = CASE WHEN $3 THEN 0 ELSE current_stop_index + $4 END,
				actual_start_time = CASE
					WHEN $3 THEN NULL
					WHEN $5 THEN COALESCE(actual_start_time, $7)
					ELSE actual_start_time END,
				actual_end_time = CASE WHEN $6 THEN $7 ELSE actual_end_time END,
				last_event_at = $7
			WHERE id = $1
				AND driver_status = $8
				AND (last_event_at IS NULL OR last_event_at <= $7)
		`, upd.JobID, upd.NewStatus, upd.Reset, upd.StopAdvance,
			upd.SetStart, upd.SetEnd, upd.CapturedAt, upd.ExpectedStatus)
		if err != nil {
			return false, wrapErr(err)
		}
		if tag.RowsAffected() == 0 {
			return false, domain.Conflictf("job %s changed since validation, resynchronize", upd.JobID)
		}
	}
	return true, wrapErr(tx.Commit(ctx))
}

// GetEvent looks up one event by its idempotency key. Returns (nil, nil) when
// the id has never been seen.
func (r *EventRepo) GetEvent(ctx context.Context, eventID uuid.UUID) (*domain.ExecutionEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT event_id, driver_id, session_id, job_id, event_type, resulting_status,
			latitude, longitude, captured_at, received_at, metadata,
			review_status, review_reason
		FROM execution_events
		WHERE event_id = $1
	`, eventID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	events, err := scanEvents(rows)
	if err != nil {
		return nil, wrapErr(err)
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0], nil
}

func (r *EventRepo) GetJob(ctx context.Context, jobID uuid.UUID) (*domain.JobState, error) {
	j := new(domain.JobState)
	err := r.db.QueryRow(ctx, `
		SELECT id, driver_id, driver_status, current_stop_index,
			actual_start_time, actual_end_time, last_event_at
		FROM jobs WHERE id = $1
	`, jobID).Scan(
		&j.JobID, &j.DriverID, &j.DriverStatus, &j.CurrentStopIndex,
		&j.ActualStartTime, &j.ActualEndTime, &j.LastEventAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundf("job %s", jobID)
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return j, nil
}

// LastLocatedEvent returns the newest event on the job that carries a
// location, used for the plausibility check on the next submission.
func (r *EventRepo) LastLocatedEvent(ctx context.Context, jobID uuid.UUID) (*domain.ExecutionEvent, error) {
	ev := new(domain.ExecutionEvent)
	var lat, lng float64
	err := r.db.QueryRow(ctx, `
		SELECT event_id, captured_at, latitude, longitude
		FROM execution_events
		WHERE job_id = $1 AND latitude IS NOT NULL
		ORDER BY captured_at DESC
		LIMIT 1
	`, jobID).Scan(&ev.EventID, &ev.CapturedAt, &lat, &lng)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	ev.Location = &domain.Location{Lat: lat, Lng: lng}
	return ev, nil
}

// Timeline returns the driver's events in capture order, newest first,
// optionally narrowed to one session.
func (r *EventRepo) Timeline(ctx context.Context, driverID uuid.UUID, sessionID *uuid.UUID, limit int) ([]domain.ExecutionEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT event_id, driver_id, session_id, job_id, event_type, resulting_status,
			latitude, longitude, captured_at, received_at, metadata,
			review_status, review_reason
		FROM execution_events
		WHERE driver_id = $1 AND ($2::uuid IS NULL OR session_id = $2)
		ORDER BY captured_at DESC
		LIMIT $3
	`, driverID, sessionID, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (r *EventRepo) Flagged(ctx context.Context, limit int) ([]domain.ExecutionEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT event_id, driver_id, session_id, job_id, event_type, resulting_status,
			latitude, longitude, captured_at, received_at, metadata,
			review_status, review_reason
		FROM execution_events
		WHERE review_status = 'PENDING'
		ORDER BY received_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// SetReview records the reviewer's verdict. Audit-only: the event itself and
// the derived job state are untouched.
func (r *EventRepo) SetReview(ctx context.Context, eventID uuid.UUID, status domain.ReviewStatus, reviewer string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE execution_events
		SET review_status = $2, review_reason = review_reason || ' | reviewed by ' || $3
		WHERE event_id = $1 AND review_status = 'PENDING'
	`, eventID, status, reviewer)
	if err != nil {
		return wrapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFoundf("no pending review for event %s", eventID)
	}
	return nil
}

func scanEvents(rows pgx.Rows) ([]domain.ExecutionEvent, error) {
	var out []domain.ExecutionEvent
	for rows.Next() {
		var ev domain.ExecutionEvent
		var lat, lng *float64
		var meta []byte
		err := rows.Scan(
			&ev.EventID, &ev.DriverID, &ev.SessionID, &ev.JobID, &ev.EventType,
			&ev.ResultingStatus, &lat, &lng, &ev.CapturedAt, &ev.ReceivedAt,
			&meta, &ev.ReviewStatus, &ev.ReviewReason,
		)
		if err != nil {
			return nil, err
		}
		if lat != nil && lng != nil {
			ev.Location = &domain.Location{Lat: *lat, Lng: *lng}
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &ev.Metadata); err != nil {
				return nil, err
			}
		}
		out = append(out, ev)
	}
	return out, wrapErr(rows.Err())
}
