package ridestatus

import (
	"context"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/ridetrack/telemetry-agent/internal/models"
	"github.com/ridetrack/telemetry-agent/pkg/backend"
	"github.com/rs/zerolog"
)

// DefaultTTL is how long a fetched status stays fresh. Flush decisions read
// the status often; a short staleness window is traded for not hammering the
// backend before every flush.
const DefaultTTL = 30 * time.Second

type entry struct {
	status    models.RideStatus
	fetchedAt time.Time
}

// Oracle caches ride lifecycle statuses with a TTL.
type Oracle struct {
	client backend.RideAPI
	ttl    time.Duration
	cache  cmap.ConcurrentMap[string, entry]
	logger zerolog.Logger
}

// NewOracle creates an Oracle over the given backend client. A non-positive
// TTL falls back to the default.
func NewOracle(client backend.RideAPI, ttl time.Duration, logger zerolog.Logger) *Oracle {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Oracle{
		client: client,
		ttl:    ttl,
		cache:  cmap.New[entry](),
		logger: logger,
	}
}

// Status returns the ride's lifecycle status, served from cache while fresh.
// On a fetch error a stale cached value is returned rather than failing the
// caller; the error propagates only when nothing cached exists.
func (o *Oracle) Status(ctx context.Context, rideID string) (models.RideStatus, error) {
	cached, ok := o.cache.Get(rideID)
	if ok && time.Since(cached.fetchedAt) < o.ttl {
		return cached.status, nil
	}

	raw, err := o.client.RideStatus(ctx, rideID)
	if err != nil {
		if ok {
			o.logger.Warn().
				Err(err).
				Str("ride_id", rideID).
				Str("stale_status", string(cached.status)).
				Msg("Ride status fetch failed, serving stale cache entry")
			return cached.status, nil
		}
		return "", err
	}

	status := models.RideStatus(raw)
	o.cache.Set(rideID, entry{status: status, fetchedAt: time.Now()})
	return status, nil
}

// Invalidate drops the cached entry for a ride, forcing the next Status call
// to fetch. Used when the caller knows a transition just happened.
func (o *Oracle) Invalidate(rideID string) {
	o.cache.Remove(rideID)
}
