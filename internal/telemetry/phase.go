package telemetry

import (
	"github.com/ridetrack/telemetry-agent/internal/models"
	"github.com/ridetrack/telemetry-agent/pkg/geo"
	"github.com/rs/zerolog"
)

// Phase is the two-state leg of a ride: heading to pickup or to dropoff.
type Phase string

const (
	PhaseToPickup  Phase = "toPickup"
	PhaseToDropoff Phase = "toDropoff"
)

// ProximityThresholdMeters gates the "near target" flags.
const ProximityThresholdMeters = 100.0

// PhaseState is the derived phase plus proximity readiness for the phase's
// target point.
type PhaseState struct {
	Phase          Phase
	Target         geo.LatLng
	DistanceMeters float64
	IsNear         bool
	// BecameNear is true only on the false→true crossing, so a consumer can
	// fire a single notification instead of one per sample.
	BecameNear bool
}

// PhaseFromStatus derives the phase from the latest known request status.
// The derivation is level-triggered and idempotent: every call recomputes
// directly from the status. Unknown or missing statuses default to the
// earlier, safer toPickup phase.
func PhaseFromStatus(status models.RideStatus, logger zerolog.Logger) Phase {
	switch status {
	case models.RideStatusConfirmed:
		return PhaseToPickup
	case models.RideStatusOngoing:
		return PhaseToDropoff
	default:
		logger.Warn().
			Str("status", string(status)).
			Msg("Unrecognized ride status, defaulting phase to toPickup")
		return PhaseToPickup
	}
}

// PhasePolicy computes phase and proximity state for a ride's pickup and
// dropoff points. It retains the previous proximity flag so the near event
// is edge-triggered.
type PhasePolicy struct {
	pickup  geo.LatLng
	dropoff geo.LatLng
	logger  zerolog.Logger

	wasNear bool
}

// NewPhasePolicy creates a policy for the given pickup and dropoff points.
func NewPhasePolicy(pickup, dropoff geo.LatLng, logger zerolog.Logger) *PhasePolicy {
	return &PhasePolicy{
		pickup:  pickup,
		dropoff: dropoff,
		logger:  logger,
	}
}

// Evaluate recomputes the phase from the given status and the proximity
// flags for the current position against the phase's target.
func (p *PhasePolicy) Evaluate(status models.RideStatus, current geo.LatLng) PhaseState {
	phase := PhaseFromStatus(status, p.logger)

	target := p.pickup
	if phase == PhaseToDropoff {
		target = p.dropoff
	}

	distance := geo.HaversineMeters(current, target)
	isNear := distance <= ProximityThresholdMeters
	becameNear := isNear && !p.wasNear
	p.wasNear = isNear

	return PhaseState{
		Phase:          phase,
		Target:         target,
		DistanceMeters: distance,
		IsNear:         isNear,
		BecameNear:     becameNear,
	}
}
