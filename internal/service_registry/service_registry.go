package service_registry

import (
	"errors"
	"fmt"

	"github.com/ridetrack/telemetry-agent/internal/registry"
	"github.com/ridetrack/telemetry-agent/internal/ridestatus"
	"github.com/ridetrack/telemetry-agent/internal/services"
	"github.com/ridetrack/telemetry-agent/internal/telemetry"
	"github.com/ridetrack/telemetry-agent/internal/transport"
	"github.com/ridetrack/telemetry-agent/internal/utils"
	"github.com/ridetrack/telemetry-agent/pkg/backend"
	"github.com/ridetrack/telemetry-agent/pkg/file"
	"github.com/ridetrack/telemetry-agent/pkg/identity"
	"github.com/ridetrack/telemetry-agent/pkg/mqtt"
	"github.com/ridetrack/telemetry-agent/pkg/position"
	"github.com/rs/zerolog"
)

// ServiceRegistry manages the lifecycle of the agent's services.
type ServiceRegistry struct {
	services    map[string]registry.Service // Stores registered services
	serviceKeys []string                    // Maintains order of service registration
	mqttClient  mqtt.MQTTClient
	rideAPI     backend.RideAPI
	fileClient  file.FileOperations
	appDeps     services.AppDependencies
	Logger      zerolog.Logger

	// Tracking is exposed so the hosting layer can start/stop ride sessions.
	Tracking *services.TrackingService
}

// NewServiceRegistry initializes a new service registry with dependencies.
func NewServiceRegistry(mqttClient mqtt.MQTTClient, rideAPI backend.RideAPI,
	fileClient file.FileOperations, appDeps services.AppDependencies, logger zerolog.Logger) *ServiceRegistry {
	return &ServiceRegistry{
		services:   make(map[string]registry.Service),
		mqttClient: mqttClient,
		rideAPI:    rideAPI,
		fileClient: fileClient,
		appDeps:    appDeps,
		Logger:     logger,
	}
}

// RegisterService adds a new service to the registry.
func (sr *ServiceRegistry) RegisterService(name string, svc registry.Service) {
	if _, exists := sr.services[name]; exists {
		sr.Logger.Warn().Msgf("Service %s is already registered", name)
		return
	}
	sr.services[name] = svc
	sr.serviceKeys = append(sr.serviceKeys, name)
	sr.Logger.Info().Msgf("Registered service: %s", name)
}

// StartServices initiates all registered services in order.
// If a service fails to start, it stops already started services.
func (sr *ServiceRegistry) StartServices() error {
	startedServices := []string{}

	for _, name := range sr.serviceKeys {
		svc := sr.services[name]
		sr.Logger.Info().Msgf("Starting service: %s", name)
		if err := svc.Start(); err != nil {
			sr.Logger.Error().Err(err).Msgf("Failed to start service: %s", name)

			// Stop already started services before returning
			sr.Logger.Warn().Msg("Stopping already started services due to startup failure...")
			for i := len(startedServices) - 1; i >= 0; i-- {
				_ = sr.services[startedServices[i]].Stop()
			}
			return err
		}
		startedServices = append(startedServices, name)
	}

	return nil
}

// StopServices stops all services in reverse order.
func (sr *ServiceRegistry) StopServices() error {
	var stopErrors []error
	for i := len(sr.serviceKeys) - 1; i >= 0; i-- {
		name := sr.serviceKeys[i]
		if err := sr.services[name].Stop(); err != nil {
			stopErrors = append(stopErrors, fmt.Errorf("failed to stop %s: %w", name, err))
		}
	}
	if len(stopErrors) > 0 {
		for _, e := range stopErrors {
			sr.Logger.Error().Err(e).Msg("Service stop failure")
		}
		return errors.Join(stopErrors...)
	}
	return nil
}

// RegisterServices initializes and registers enabled services based on configuration.
func (sr *ServiceRegistry) RegisterServices(config *utils.Config, deviceInfo identity.DeviceInfoInterface) error {
	servicesInOrder := []struct {
		name        string
		enabled     bool
		constructor func() (registry.Service, error)
	}{
		{
			name:    "tracking",
			enabled: config.Services.Tracking.Enabled,
			constructor: func() (registry.Service, error) {
				trackingCfg := config.Services.Tracking

				var provider position.Provider
				var fallback position.Provider
				var err error
				if trackingCfg.SensorBased {
					provider = position.NewDeviceSensorProvider(trackingCfg.GPSDevicePort, trackingCfg.GPSDeviceBaudRate)
					if trackingCfg.MapsAPIKey != "" {
						fallback, err = position.NewGoogleGeolocationProvider(trackingCfg.MapsAPIKey)
						if err != nil {
							sr.Logger.Error().Err(err).Msg("Failed to create Google Geolocation provider")
							return nil, err
						}
					}
				} else {
					provider, err = position.NewGoogleGeolocationProvider(trackingCfg.MapsAPIKey)
					if err != nil {
						sr.Logger.Error().Err(err).Msg("Failed to create Google Geolocation provider")
						return nil, err
					}
				}

				oracle := ridestatus.NewOracle(sr.rideAPI, trackingCfg.StatusCacheTTL, sr.Logger)
				gateway := transport.NewGateway(sr.mqttClient, sr.rideAPI, trackingCfg.QOS, sr.Logger)
				filter := telemetry.NewFilter(trackingCfg.MaxAccuracyMeters, sr.Logger)

				newDispatcher := func(rideID string) services.SampleDispatcher {
					return telemetry.NewDispatcher(rideID, trackingCfg.MaxBufferSize,
						trackingCfg.FlushInterval, oracle, gateway, sr.Logger)
				}

				sr.Tracking = services.NewTrackingService(
					trackingCfg.SamplingInterval,
					trackingCfg.DegradedSpeedMPS,
					provider,
					fallback,
					newDispatcher,
					filter,
					sr.appDeps.Source,
					sr.appDeps.Indicator,
					sr.appDeps.Notifier,
					sr.Logger,
				)
				return sr.Tracking, nil
			},
		},
		{
			name:    "heartbeat",
			enabled: config.Services.Heartbeat.Enabled,
			constructor: func() (registry.Service, error) {
				if sr.Tracking == nil {
					return nil, errors.New("heartbeat service requires the tracking service")
				}
				return services.NewHeartbeatService(
					config.Services.Heartbeat.Interval,
					config.Services.Heartbeat.QOS,
					deviceInfo,
					sr.mqttClient,
					sr.Tracking,
					sr.Logger,
				), nil
			},
		},
	}

	// Register services in the predefined order
	registeredServices := []string{}
	for _, svc := range servicesInOrder {
		if svc.enabled {
			serviceInstance, err := svc.constructor()
			if err != nil {
				sr.Logger.Error().Err(err).Msgf("Failed to create %s service", svc.name)
				return err
			}
			sr.RegisterService(svc.name, serviceInstance)
			registeredServices = append(registeredServices, svc.name)
		}
	}

	sr.Logger.Info().Msgf("Registered services in order: %v", registeredServices)
	return nil
}
