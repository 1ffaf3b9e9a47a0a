package models

import (
	"time"

	"github.com/ridetrack/telemetry-agent/pkg/geo"
)

// RideStatus is the ride lifecycle status string reported by the backend.
type RideStatus string

const (
	RideStatusScheduled RideStatus = "SCHEDULED"
	RideStatusConfirmed RideStatus = "CONFIRMED"
	RideStatusOngoing   RideStatus = "ONGOING"
	RideStatusCompleted RideStatus = "COMPLETED"
	RideStatusCancelled RideStatus = "CANCELLED"
)

// TrackingSession describes the one active ride being tracked. Exactly one
// session is active at a time; starting a session for a new ride implicitly
// stops the previous one.
type TrackingSession struct {
	SessionID   string    `json:"session_id"`
	RideID      string    `json:"ride_id"`
	IsActive    bool      `json:"is_active"`
	Degraded    bool      `json:"degraded"`
	StartedAt   time.Time `json:"started_at"`
	LastFlushAt time.Time `json:"last_flush_at"`
}

// SimulationState is a snapshot of a running path simulation.
type SimulationState struct {
	Path                 []geo.LatLng
	StartedAt            time.Time
	SpeedMetersPerSecond float64
	Progress             float64
	SendToBackend        bool
}
