package execution

import (
	"math"
	"time"

	"fleet-tracking/internal/domain"
)

const earthRadiusKm = 6371.0

// HaversineKm returns the great-circle distance between two coordinates.
func HaversineKm(a, b domain.Location) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// Implausible reports whether moving from prev to next would require a speed
// above maxSpeedKmh. Zero or negative elapsed time with any displacement is
// implausible too (the device clock jumped, or the position teleported).
func Implausible(prev, next domain.Location, prevAt, nextAt time.Time, maxSpeedKmh float64) bool {
	distKm := HaversineKm(prev, next)
	if distKm < 0.01 {
		return false
	}
	elapsed := nextAt.Sub(prevAt)
	if elapsed <= 0 {
		return true
	}
	speed := distKm / elapsed.Hours()
	return speed > maxSpeedKmh
}
