package domain

import (
	"time"

	"github.com/google/uuid"
)

// TelemetryPoint is one GPS sample from a device. Immutable once stored.
type TelemetryPoint struct {
	ID           uuid.UUID `db:"id" json:"id"`
	DriverID     uuid.UUID `db:"driver_id" json:"driver_id"`
	SessionID    uuid.UUID `db:"session_id" json:"session_id"`
	DeviceID     uuid.UUID `db:"device_id" json:"device_id"`
	Lat          float64   `db:"latitude" json:"lat"`
	Lng          float64   `db:"longitude" json:"lng"`
	Altitude     *float64  `db:"altitude" json:"altitude,omitempty"`
	Accuracy     *float64  `db:"accuracy_meters" json:"accuracy,omitempty"`
	Heading      *float64  `db:"heading_degrees" json:"heading,omitempty"`
	SpeedKmh     *float64  `db:"speed_kmh" json:"speed_kmh,omitempty"`
	BatteryLevel *float64  `db:"battery_level" json:"battery_level,omitempty"`
	CapturedAt   time.Time `db:"captured_at" json:"captured_at"`
	ReceivedAt   time.Time `db:"received_at" json:"received_at"`
}

type SubmitPointRequest struct {
	DriverID     string    `json:"driver_id"`
	SessionID    string    `json:"session_id"`
	DeviceID     string    `json:"device_id"`
	Lat          float64   `json:"lat"`
	Lng          float64   `json:"lng"`
	Altitude     *float64  `json:"altitude,omitempty"`
	Accuracy     *float64  `json:"accuracy,omitempty"`
	Heading      *float64  `json:"heading,omitempty"`
	SpeedKmh     *float64  `json:"speed_kmh,omitempty"`
	BatteryLevel *float64  `json:"battery_level,omitempty"`
	CapturedAt   time.Time `json:"captured_at"`
}

type SubmitBatchRequest struct {
	Points []SubmitPointRequest `json:"points"`
}

// PointResult reports the outcome of one point in a batch so the client can
// prune only the failed subset before retrying.
type PointResult struct {
	Index    int    `json:"index"`
	Accepted bool   `json:"accepted"`
	PointID  string `json:"point_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

type SubmitBatchResponse struct {
	Accepted int           `json:"accepted"`
	Rejected int           `json:"rejected"`
	Results  []PointResult `json:"results"`
}

// DriverView is the read projection consumed by dispatch: the latest known
// position and execution status of one driver on an active session.
type DriverView struct {
	DriverID   uuid.UUID  `json:"driver_id"`
	SessionID  uuid.UUID  `json:"session_id"`
	Status     JobStatus  `json:"status"`
	Position   *Location  `json:"position,omitempty"`
	SpeedKmh   *float64   `json:"speed_kmh,omitempty"`
	Heading    *float64   `json:"heading,omitempty"`
	CapturedAt *time.Time `json:"captured_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// GPSQualityRow aggregates point quality per device for the admin report.
type GPSQualityRow struct {
	DeviceID        uuid.UUID `db:"device_id" json:"device_id"`
	PointCount      int64     `db:"point_count" json:"point_count"`
	AvgAccuracy     *float64  `db:"avg_accuracy" json:"avg_accuracy,omitempty"`
	MinBattery      *float64  `db:"min_battery" json:"min_battery,omitempty"`
	OutOfOrderCount int64     `db:"out_of_order_count" json:"out_of_order_count"`
}
