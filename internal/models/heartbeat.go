package models

import "time"

// DeviceHealth is a small snapshot of the device attached to each heartbeat.
type DeviceHealth struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// Heartbeat reports session liveness while tracking runs.
type Heartbeat struct {
	DeviceID  string       `json:"device_id"`
	SessionID string       `json:"session_id"`
	RideID    string       `json:"ride_id"`
	Timestamp time.Time    `json:"timestamp"`
	State     string       `json:"state"`
	Health    DeviceHealth `json:"health"`
}
