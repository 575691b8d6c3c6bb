package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-tracking/internal/domain"
)

const uniqueViolation = "23505"

type SessionRepo struct {
	db *pgxpool.Pool
}

func NewSessionRepo(db *pgxpool.Pool) *SessionRepo {
	return &SessionRepo{db: db}
}

// Start invalidates any active session the driver has and inserts the new one
// in a single transaction. A concurrent Start for the same driver loses the
// race on the partial unique index; we retry the whole transaction so the
// last committer owns the ACTIVE row.
func (r *SessionRepo) Start(ctx context.Context, s *domain.Session) error {
	const attempts = 3
	var err error
	for i := 0; i < attempts; i++ {
		err = r.startOnce(ctx, s)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			continue
		}
		return wrapErr(err)
	}
	return wrapErr(err)
}

func (r *SessionRepo) startOnce(ctx context.Context, s *domain.Session) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE sessions
		SET status = 'INVALIDATED', ended_at = now(), end_reason = 'superseded'
		WHERE driver_id = $1 AND status = 'ACTIVE'
	`, s.DriverID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO sessions (
			id, driver_id, device_id, vehicle_id, status, device_info,
			started_at, last_heartbeat_at
		) VALUES ($1, $2, $3, $4, 'ACTIVE', $5, $6, $6)
	`, s.ID, s.DriverID, s.DeviceID, s.VehicleID, s.DeviceInfo, s.StartedAt)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO drivers (id, availability, updated_at)
		VALUES ($1, 'AVAILABLE', now())
		ON CONFLICT (id) DO UPDATE SET availability = 'AVAILABLE', updated_at = now()
	`, s.DriverID)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *SessionRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	s := new(domain.Session)
	err := r.db.QueryRow(ctx, `
		SELECT id, driver_id, device_id, vehicle_id, status, device_info,
			started_at, ended_at, last_heartbeat_at, end_reason
		FROM sessions WHERE id = $1
	`, id).Scan(
		&s.ID, &s.DriverID, &s.DeviceID, &s.VehicleID, &s.Status, &s.DeviceInfo,
		&s.StartedAt, &s.EndedAt, &s.LastHeartbeatAt, &s.EndReason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFoundf("session %s", id)
	}
	if err != nil {
		return nil, wrapErr(err)
	}
	return s, nil
}

// Heartbeat bumps last_heartbeat_at only while the session is still active.
func (r *SessionRepo) Heartbeat(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE sessions SET last_heartbeat_at = $2
		WHERE id = $1 AND status = 'ACTIVE'
	`, id, at)
	if err != nil {
		return false, wrapErr(err)
	}
	return tag.RowsAffected() > 0, nil
}

// End moves an active session to ENDED and reverts the driver's availability.
// Ending a session that is no longer active returns false, not an error.
func (r *SessionRepo) End(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, wrapErr(err)
	}
	defer tx.Rollback(ctx)

	var driverID uuid.UUID
	err = tx.QueryRow(ctx, `
		UPDATE sessions SET status = 'ENDED', ended_at = $2, end_reason = $3
		WHERE id = $1 AND status = 'ACTIVE'
		RETURNING driver_id
	`, id, at, reason).Scan(&driverID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, wrapErr(err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE drivers SET availability = 'OFFLINE', updated_at = now()
		WHERE id = $1
	`, driverID)
	if err != nil {
		return false, wrapErr(err)
	}
	return true, wrapErr(tx.Commit(ctx))
}

// ExpireStale sweeps every active session whose heartbeat is older than the
// cutoff, returning the affected driver ids so projections can drop them.
func (r *SessionRepo) ExpireStale(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE sessions SET status = 'EXPIRED', ended_at = now(), end_reason = 'heartbeat timeout'
		WHERE status = 'ACTIVE' AND last_heartbeat_at < $1
		RETURNING driver_id
	`, cutoff)
	if err != nil {
		return nil, wrapErr(err)
	}
	var drivers []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		drivers = append(drivers, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}

	for _, driverID := range drivers {
		_, err = tx.Exec(ctx, `
			UPDATE drivers SET availability = 'OFFLINE', updated_at = now()
			WHERE id = $1
		`, driverID)
		if err != nil {
			return nil, wrapErr(err)
		}
	}
	return drivers, wrapErr(tx.Commit(ctx))
}

// ListAudit returns recent sessions, optionally for a single driver.
func (r *SessionRepo) ListAudit(ctx context.Context, driverID *uuid.UUID, limit int) ([]domain.Session, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, driver_id, device_id, vehicle_id, status, device_info,
			started_at, ended_at, last_heartbeat_at, end_reason
		FROM sessions
		WHERE ($1::uuid IS NULL OR driver_id = $1)
		ORDER BY started_at DESC
		LIMIT $2
	`, driverID, limit)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		var s domain.Session
		err = rows.Scan(
			&s.ID, &s.DriverID, &s.DeviceID, &s.VehicleID, &s.Status, &s.DeviceInfo,
			&s.StartedAt, &s.EndedAt, &s.LastHeartbeatAt, &s.EndReason,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, wrapErr(rows.Err())
}
