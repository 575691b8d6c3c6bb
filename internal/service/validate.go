package service

import (
	"fleet-tracking/internal/domain"
)

// Validation lives at the service layer so the live HTTP path and the offline
// sync replay enforce exactly the same rules.

func validateLocation(lat, lng float64) error {
	if lat < -90 || lat > 90 {
		return domain.Validationf("latitude must be between -90 and 90")
	}
	if lng < -180 || lng > 180 {
		return domain.Validationf("longitude must be between -180 and 180")
	}
	return nil
}

func validatePoint(req *domain.SubmitPointRequest) error {
	if req.DriverID == "" || req.SessionID == "" || req.DeviceID == "" {
		return domain.Validationf("driver_id, session_id and device_id are required")
	}
	if req.CapturedAt.IsZero() {
		return domain.Validationf("captured_at is required")
	}
	if err := validateLocation(req.Lat, req.Lng); err != nil {
		return err
	}
	if req.Accuracy != nil && *req.Accuracy < 0 {
		return domain.Validationf("accuracy cannot be negative")
	}
	if req.SpeedKmh != nil && *req.SpeedKmh < 0 {
		return domain.Validationf("speed_kmh cannot be negative")
	}
	if req.Heading != nil && (*req.Heading < 0 || *req.Heading >= 360) {
		return domain.Validationf("heading must be between 0 (inclusive) and 360 (exclusive)")
	}
	if req.BatteryLevel != nil && (*req.BatteryLevel < 0 || *req.BatteryLevel > 100) {
		return domain.Validationf("battery_level must be between 0 and 100")
	}
	return nil
}
