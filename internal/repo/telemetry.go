package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-tracking/internal/domain"
)

type TelemetryRepo struct {
	db *pgxpool.Pool
}

func NewTelemetryRepo(db *pgxpool.Pool) *TelemetryRepo {
	return &TelemetryRepo{db: db}
}

// Insert stores one point. Idempotent on (device_id, captured_at) so a
// replayed offline batch never duplicates rows; returns false when the point
// was already on record.
func (r *TelemetryRepo) Insert(ctx context.Context, p *domain.TelemetryPoint) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO telemetry_points (
			id, driver_id, session_id, device_id, latitude, longitude,
			altitude, accuracy_meters, heading_degrees, speed_kmh, battery_level,
			captured_at, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (device_id, captured_at) DO NOTHING
	`, p.ID, p.DriverID, p.SessionID, p.DeviceID, p.Lat, p.Lng,
		p.Altitude, p.Accuracy, p.Heading, p.SpeedKmh, p.BatteryLevel,
		p.CapturedAt, p.ReceivedAt)
	if err != nil {
		return false, wrapErr(err)
	}
	return tag.RowsAffected() > 0, nil
}

// LatestActivePositions cold-starts the in-memory projection: the newest
// point per driver among those with an ACTIVE session, newest by capture
// time (not receipt time).
func (r *TelemetryRepo) LatestActivePositions(ctx context.Context) ([]domain.TelemetryPoint, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT ON (p.driver_id)
			p.id, p.driver_id, p.session_id, p.device_id, p.latitude, p.longitude,
			p.altitude, p.accuracy_meters, p.heading_degrees, p.speed_kmh,
			p.battery_level, p.captured_at, p.received_at
		FROM telemetry_points p
		JOIN sessions s ON s.id = p.session_id AND s.status = 'ACTIVE'
		ORDER BY p.driver_id, p.captured_at DESC
	`)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []domain.TelemetryPoint
	for rows.Next() {
		var p domain.TelemetryPoint
		err = rows.Scan(
			&p.ID, &p.DriverID, &p.SessionID, &p.DeviceID, &p.Lat, &p.Lng,
			&p.Altitude, &p.Accuracy, &p.Heading, &p.SpeedKmh, &p.BatteryLevel,
			&p.CapturedAt, &p.ReceivedAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, wrapErr(rows.Err())
}

// QualityReport aggregates point quality per device since the given time.
// out_of_order counts points that arrived after a later-captured one.
func (r *TelemetryRepo) QualityReport(ctx context.Context, since time.Time) ([]domain.GPSQualityRow, error) {
	rows, err := r.db.Query(ctx, `
		WITH ordered AS (
			SELECT device_id, accuracy_meters, battery_level, captured_at,
				LAG(captured_at) OVER (PARTITION BY device_id ORDER BY received_at) AS prev_captured
			FROM telemetry_points
			WHERE received_at >= $1
		)
		SELECT device_id,
			COUNT(*) AS point_count,
			AVG(accuracy_meters) AS avg_accuracy,
			MIN(battery_level) AS min_battery,
			COUNT(*) FILTER (WHERE prev_captured IS NOT NULL AND captured_at < prev_captured) AS out_of_order_count
		FROM ordered
		GROUP BY device_id
		ORDER BY point_count DESC
	`, since)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var out []domain.GPSQualityRow
	for rows.Next() {
		var row domain.GPSQualityRow
		err = rows.Scan(&row.DeviceID, &row.PointCount, &row.AvgAccuracy, &row.MinBattery, &row.OutOfOrderCount)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, wrapErr(rows.Err())
}

// ActiveJobStatus looks up the driver's newest non-terminal job status for
// the projection warm-up.
func (r *TelemetryRepo) ActiveJobStatus(ctx context.Context, driverID uuid.UUID) (domain.JobStatus, error) {
	var status domain.JobStatus
	err := r.db.QueryRow(ctx, `
		SELECT driver_status FROM jobs
		WHERE driver_id = $1 AND driver_status NOT IN ('COMPLETED', 'CANCELLED')
		ORDER BY last_event_at DESC NULLS LAST
		LIMIT 1
	`, driverID).Scan(&status)
	if err != nil {
		return domain.JobInactive, nil
	}
	return status, nil
}
