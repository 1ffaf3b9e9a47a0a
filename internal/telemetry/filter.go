package telemetry

import (
	"time"

	"github.com/ridetrack/telemetry-agent/internal/models"
	"github.com/ridetrack/telemetry-agent/pkg/geo"
	"github.com/rs/zerolog"
)

// DefaultMaxAccuracyMeters is the accuracy ceiling above which real fixes
// are rejected as too imprecise to be worth transporting.
const DefaultMaxAccuracyMeters = 50.0

// Filter normalizes raw position fixes into canonical telemetry points.
// Fixes arrive in varying shapes from real and simulated sources; nothing
// past this boundary sees format variance or invalid coordinates.
type Filter struct {
	maxAccuracyMeters float64
	logger            zerolog.Logger
}

// NewFilter creates a Filter with the given accuracy ceiling. A ceiling of
// zero or less falls back to the default.
func NewFilter(maxAccuracyMeters float64, logger zerolog.Logger) *Filter {
	if maxAccuracyMeters <= 0 {
		maxAccuracyMeters = DefaultMaxAccuracyMeters
	}
	return &Filter{
		maxAccuracyMeters: maxAccuracyMeters,
		logger:            logger,
	}
}

// Normalize converts a raw fix into a transport-ready point. It returns
// false when the fix is rejected: accuracy above the ceiling, or coordinates
// outside the valid lat/lng range. Simulated fixes carry synthetic accuracy
// and pass the accuracy check by construction. A zero capture time falls
// back to the current time.
func (f *Filter) Normalize(fix models.PositionFix) (models.TelemetryPoint, bool) {
	if !fix.Simulated && fix.AccuracyMeters > f.maxAccuracyMeters {
		f.logger.Debug().
			Float64("accuracy_m", fix.AccuracyMeters).
			Float64("ceiling_m", f.maxAccuracyMeters).
			Msg("Dropping low-accuracy fix")
		return models.TelemetryPoint{}, false
	}

	point := geo.LatLng{Lat: fix.Latitude, Lng: fix.Longitude}
	if !point.Valid() {
		f.logger.Warn().
			Float64("lat", fix.Latitude).
			Float64("lng", fix.Longitude).
			Msg("Dropping fix with out-of-range coordinates")
		return models.TelemetryPoint{}, false
	}

	capturedAt := fix.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now()
	}

	return models.TelemetryPoint{
		Lat:       fix.Latitude,
		Lng:       fix.Longitude,
		Timestamp: capturedAt.UTC().Format(time.RFC3339),
	}, true
}
