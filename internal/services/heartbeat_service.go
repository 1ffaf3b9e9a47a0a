package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ridetrack/telemetry-agent/internal/models"
	"github.com/ridetrack/telemetry-agent/pkg/identity"
	"github.com/ridetrack/telemetry-agent/pkg/mqtt"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
)

// SessionSource exposes the active tracking session for liveness reporting.
type SessionSource interface {
	Session() (models.TrackingSession, bool)
	State() TrackingState
}

// HeartbeatService publishes periodic session heartbeats with a device
// health snapshot while a ride is being tracked.
type HeartbeatService struct {
	Interval      time.Duration
	QOS           int
	DeviceInfo    identity.DeviceInfoInterface
	MqttClient    mqtt.MQTTClient
	SessionSource SessionSource
	Logger        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHeartbeatService initializes a new HeartbeatService.
func NewHeartbeatService(interval time.Duration, qos int, deviceInfo identity.DeviceInfoInterface,
	mqttClient mqtt.MQTTClient, sessionSource SessionSource, logger zerolog.Logger) *HeartbeatService {

	return &HeartbeatService{
		Interval:      interval,
		QOS:           qos,
		DeviceInfo:    deviceInfo,
		MqttClient:    mqttClient,
		SessionSource: sessionSource,
		Logger:        logger,
	}
}

// Start launches the heartbeat loop in a separate goroutine.
func (h *HeartbeatService) Start() error {
	if h.ctx != nil {
		h.Logger.Warn().Msg("HeartbeatService is already running")
		return errors.New("heartbeat service is already running")
	}

	h.ctx, h.cancel = context.WithCancel(context.Background())

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.runHeartbeatLoop()
	}()

	h.Logger.Info().Dur("interval", h.Interval).Msg("HeartbeatService started")
	return nil
}

// Stop gracefully stops the heartbeat service.
func (h *HeartbeatService) Stop() error {
	if h.ctx == nil {
		h.Logger.Warn().Msg("HeartbeatService is not running")
		return errors.New("heartbeat service is not running")
	}

	h.cancel()
	h.wg.Wait()

	h.ctx = nil
	h.cancel = nil

	h.Logger.Info().Msg("HeartbeatService stopped")
	return nil
}

// runHeartbeatLoop publishes one heartbeat per interval while a session is
// active. Idle periods publish nothing: heartbeats report tracking
// liveness, not app liveness.
func (h *HeartbeatService) runHeartbeatLoop() {
	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			session, active := h.SessionSource.Session()
			if !active {
				continue
			}

			heartbeat := models.Heartbeat{
				DeviceID:  h.DeviceInfo.GetDeviceID(),
				SessionID: session.SessionID,
				RideID:    session.RideID,
				Timestamp: time.Now(),
				State:     string(h.SessionSource.State()),
				Health:    h.collectHealth(),
			}

			payload, err := json.Marshal(heartbeat)
			if err != nil {
				h.Logger.Error().Err(err).Msg("Failed to serialize heartbeat message")
				continue
			}

			topic := fmt.Sprintf("rides/%s/heartbeat", session.RideID)
			token := h.MqttClient.Publish(topic, byte(h.QOS), false, payload)
			token.Wait()

			if err := token.Error(); err != nil {
				h.Logger.Error().Err(err).Msg("Failed to publish heartbeat message")
			} else {
				h.Logger.Debug().Str("ride_id", session.RideID).Msg("Heartbeat published")
			}

		case <-h.ctx.Done():
			h.Logger.Info().Msg("HeartbeatService stopping gracefully")
			return
		}
	}
}

// collectHealth gathers a best-effort device snapshot; collection failures
// degrade to zero values rather than skipping the heartbeat.
func (h *HeartbeatService) collectHealth() models.DeviceHealth {
	var health models.DeviceHealth

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		health.CPUPercent = percents[0]
	} else if err != nil {
		h.Logger.Debug().Err(err).Msg("Failed to collect CPU usage")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		health.MemoryPercent = vm.UsedPercent
	} else {
		h.Logger.Debug().Err(err).Msg("Failed to collect memory usage")
	}

	return health
}
