package telemetry

import (
	"testing"

	"github.com/ridetrack/telemetry-agent/internal/models"
	"github.com/ridetrack/telemetry-agent/pkg/geo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestPhaseFromStatus_Mapping(t *testing.T) {
	logger := zerolog.Nop()

	assert.Equal(t, PhaseToPickup, PhaseFromStatus(models.RideStatusConfirmed, logger))
	assert.Equal(t, PhaseToDropoff, PhaseFromStatus(models.RideStatusOngoing, logger))
}

func TestPhaseFromStatus_DefaultsToPickup(t *testing.T) {
	logger := zerolog.Nop()

	assert.Equal(t, PhaseToPickup, PhaseFromStatus("", logger))
	assert.Equal(t, PhaseToPickup, PhaseFromStatus("BANANA", logger))
	assert.Equal(t, PhaseToPickup, PhaseFromStatus(models.RideStatusScheduled, logger))
}

func TestPhasePolicy_TargetFollowsPhase(t *testing.T) {
	pickup := geo.LatLng{Lat: 10.80, Lng: 106.70}
	dropoff := geo.LatLng{Lat: 10.90, Lng: 106.80}
	policy := NewPhasePolicy(pickup, dropoff, zerolog.Nop())

	state := policy.Evaluate(models.RideStatusConfirmed, geo.LatLng{Lat: 10.85, Lng: 106.75})
	assert.Equal(t, PhaseToPickup, state.Phase)
	assert.Equal(t, pickup, state.Target)

	state = policy.Evaluate(models.RideStatusOngoing, geo.LatLng{Lat: 10.85, Lng: 106.75})
	assert.Equal(t, PhaseToDropoff, state.Phase)
	assert.Equal(t, dropoff, state.Target)
}

func TestPhasePolicy_BecameNearFiresOncePerCrossing(t *testing.T) {
	pickup := geo.LatLng{Lat: 10.80, Lng: 106.70}
	dropoff := geo.LatLng{Lat: 10.90, Lng: 106.80}
	policy := NewPhasePolicy(pickup, dropoff, zerolog.Nop())

	// Approach the pickup point crossing the 100 m threshold once, then
	// keep sampling inside the radius.
	approach := []geo.LatLng{
		{Lat: 10.80, Lng: 106.71}, // ~1.1 km out
		{Lat: 10.80, Lng: 106.705},
		{Lat: 10.80, Lng: 106.7005}, // ~55 m, first sample inside
		{Lat: 10.80, Lng: 106.7003},
		{Lat: 10.80, Lng: 106.7001},
	}

	fired := 0
	for _, pos := range approach {
		state := policy.Evaluate(models.RideStatusConfirmed, pos)
		if state.BecameNear {
			fired++
		}
	}

	assert.Equal(t, 1, fired)

	final := policy.Evaluate(models.RideStatusConfirmed, approach[len(approach)-1])
	assert.True(t, final.IsNear)
	assert.False(t, final.BecameNear)
}

func TestPhasePolicy_ReportsDistance(t *testing.T) {
	pickup := geo.LatLng{Lat: 0, Lng: 0}
	policy := NewPhasePolicy(pickup, geo.LatLng{Lat: 1, Lng: 1}, zerolog.Nop())

	state := policy.Evaluate(models.RideStatusConfirmed, geo.LatLng{Lat: 0, Lng: 0.0009})
	assert.InDelta(t, 100, state.DistanceMeters, 2)
	assert.True(t, state.IsNear)
}
