package model

import (
	"math"
	"time"
)

// SatelliteObservation is an immutable snapshot of the geometry and signal
// between one UE and one satellite at a single instant. It is produced by a
// GeometryProvider and only ever consumed, never mutated.
type SatelliteObservation struct {
	SatelliteID  string    `json:"satellite_id"`
	UEID         string    `json:"ue_id"`
	Timestamp    time.Time `json:"timestamp"`
	ElevationDeg float64   `json:"elevation_deg"`
	AzimuthDeg   float64   `json:"azimuth_deg"`
	RangeKm      float64   `json:"range_km"`
	RSRPDBm      float64   `json:"rsrp_dbm"`
}

// Valid reports whether the observation carries a usable geometry sample.
// NaN or physically impossible values mark the sample as unusable; callers
// treat that as a soft staleness signal rather than a hard failure.
func (o SatelliteObservation) Valid() bool {
	if o.Timestamp.IsZero() {
		return false
	}
	if math.IsNaN(o.ElevationDeg) || o.ElevationDeg < -90 || o.ElevationDeg > 90 {
		return false
	}
	if math.IsNaN(o.RangeKm) || o.RangeKm < 0 {
		return false
	}
	return !math.IsNaN(o.RSRPDBm)
}
