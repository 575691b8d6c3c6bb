package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionActive      SessionStatus = "ACTIVE"
	SessionEnded       SessionStatus = "ENDED"
	SessionExpired     SessionStatus = "EXPIRED"
	SessionInvalidated SessionStatus = "INVALIDATED"
)

// Session binds a driver to the device that is authoritative for their shift.
// At most one ACTIVE session exists per driver; a newer StartSession
// invalidates the previous one with reason "superseded".
type Session struct {
	ID              uuid.UUID     `db:"id" json:"id"`
	DriverID        uuid.UUID     `db:"driver_id" json:"driver_id"`
	DeviceID        uuid.UUID     `db:"device_id" json:"device_id"`
	VehicleID       *uuid.UUID    `db:"vehicle_id" json:"vehicle_id,omitempty"`
	Status          SessionStatus `db:"status" json:"status"`
	DeviceInfo      string        `db:"device_info" json:"device_info,omitempty"`
	StartedAt       time.Time     `db:"started_at" json:"started_at"`
	EndedAt         *time.Time    `db:"ended_at" json:"ended_at,omitempty"`
	LastHeartbeatAt time.Time     `db:"last_heartbeat_at" json:"last_heartbeat_at"`
	EndReason       string        `db:"end_reason" json:"end_reason,omitempty"`
}

func (s *Session) IsActive() bool {
	return s.Status == SessionActive
}

type StartSessionRequest struct {
	DriverID   string `json:"driver_id"`
	DeviceID   string `json:"device_id"`
	VehicleID  string `json:"vehicle_id,omitempty"`
	DeviceInfo string `json:"device_info,omitempty"`
}

type StartSessionResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	Message   string `json:"message"`
}

type HeartbeatResponse struct {
	SessionID string `json:"session_id"`
	Active    bool   `json:"active"`
}

type EndSessionRequest struct {
	Reason string `json:"reason"`
}

type EndSessionResponse struct {
	SessionID string `json:"session_id"`
	Ended     bool   `json:"ended"`
	Message   string `json:"message"`
}
