package models

import (
	"time"
)

// PositionFix is one raw reading from a position source, real or simulated.
// It is immutable once created and consumed exactly once by the sample filter.
type PositionFix struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters float64
	CapturedAt     time.Time
	Simulated      bool
}

// TelemetryPoint is the canonical, transport-ready position sample. The
// timestamp is an ISO-8601 string because both transport paths share a
// bit-exact wire payload.
type TelemetryPoint struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Timestamp string  `json:"timestamp"`
}

// TrackingBatch is the envelope published on the ride's channel and POSTed to
// the fallback tracking endpoint. Simulated is set only for degraded sessions
// fed by the path simulator, so analytics can tell synthetic traces apart.
type TrackingBatch struct {
	RideID    string           `json:"ride_id"`
	Points    []TelemetryPoint `json:"points"`
	Simulated bool             `json:"simulated,omitempty"`
}
