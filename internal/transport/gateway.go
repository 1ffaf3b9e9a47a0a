package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ridetrack/telemetry-agent/internal/models"
	"github.com/ridetrack/telemetry-agent/pkg/backend"
	"github.com/ridetrack/telemetry-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

// Gateway sends telemetry batches to the backend. The primary path publishes
// on the ride's real-time channel; when the channel is not connected the
// batch falls back to the request/response tracking endpoint. A batch is
// never dropped silently: both paths failing surfaces an error and the
// caller keeps its buffer.
type Gateway struct {
	mqttClient mqtt.MQTTClient
	rideAPI    backend.RideAPI
	qos        int
	logger     zerolog.Logger
}

// NewGateway creates a Gateway over the shared MQTT connection and the
// backend REST client.
func NewGateway(mqttClient mqtt.MQTTClient, rideAPI backend.RideAPI, qos int, logger zerolog.Logger) *Gateway {
	return &Gateway{
		mqttClient: mqttClient,
		rideAPI:    rideAPI,
		qos:        qos,
		logger:     logger,
	}
}

// TrackTopic returns the session-scoped channel for a ride's track batches.
func TrackTopic(rideID string) string {
	return fmt.Sprintf("rides/%s/track", rideID)
}

// SendBatch dispatches the points as one message. Both paths carry the
// identical wire payload. Delivery order across a mid-stream fallback is not
// guaranteed; timestamps inside the batch let the backend re-sort.
func (g *Gateway) SendBatch(ctx context.Context, rideID string, points []models.TelemetryPoint, simulated bool) error {
	if len(points) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	batch := models.TrackingBatch{
		RideID:    rideID,
		Points:    points,
		Simulated: simulated,
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to serialize tracking batch: %w", err)
	}

	if g.mqttClient.IsConnected() {
		token := g.mqttClient.Publish(TrackTopic(rideID), byte(g.qos), false, payload)
		// A stalled broker must not hold the caller past its deadline; the
		// context bounds the wait for the ack, not just the fallback.
		select {
		case <-token.Done():
			if token.Error() == nil {
				g.logger.Debug().
					Str("ride_id", rideID).
					Int("points", len(points)).
					Msg("Batch published on real-time channel")
				return nil
			}
			g.logger.Warn().
				Err(token.Error()).
				Str("ride_id", rideID).
				Msg("Channel publish failed, falling back to tracking endpoint")
		case <-ctx.Done():
			g.logger.Warn().
				Err(ctx.Err()).
				Str("ride_id", rideID).
				Msg("Channel publish did not complete before deadline, falling back to tracking endpoint")
		}
	} else {
		g.logger.Debug().
			Str("ride_id", rideID).
			Msg("Channel not connected, using tracking endpoint")
	}

	if err := g.rideAPI.PostTracking(ctx, rideID, payload); err != nil {
		return fmt.Errorf("both transport paths failed: %w", err)
	}

	g.logger.Debug().
		Str("ride_id", rideID).
		Int("points", len(points)).
		Msg("Batch delivered via tracking endpoint")
	return nil
}
