package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/ridetrack/telemetry-agent/internal/appstate"
	"github.com/ridetrack/telemetry-agent/internal/service_registry"
	"github.com/ridetrack/telemetry-agent/internal/services"
	"github.com/ridetrack/telemetry-agent/internal/utils"
	"github.com/ridetrack/telemetry-agent/pkg/backend"
	"github.com/ridetrack/telemetry-agent/pkg/file"
	"github.com/ridetrack/telemetry-agent/pkg/identity"
	"github.com/ridetrack/telemetry-agent/pkg/mqtt"
	"github.com/rs/zerolog"
)

func main() {
	// Set up structured logging with JSON output
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Initialize file operations handler
	fileClient := file.NewFileService()

	// Load configuration from file
	config, err := utils.LoadConfig("configs/config.yaml", fileClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Generate a unique MQTT Client ID by appending a UUID
	config.MQTT.ClientID = config.MQTT.ClientID + "-" + uuid.New().String()
	log.Info().Str("client_id", config.MQTT.ClientID).Msg("Using MQTT Client ID")

	// Initialize the shared MQTT connection
	mqttClient := mqtt.NewMqttService(fileClient)
	err = mqttClient.Initialize(config.MQTT.Broker, config.MQTT.ClientID, config.MQTT.CACertificate)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize MQTT connection")
	}

	// Initialize DeviceInfo
	deviceInfo := identity.NewDeviceInfo(config.Identity.DeviceFile, fileClient)
	err = deviceInfo.LoadDeviceInfo()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load device information")
	}

	// Ride backend REST client (status fetch + tracking fallback)
	rideAPI := backend.NewClient(config.Backend.BaseURL, config.Backend.APIKey, config.Backend.Timeout)

	// Platform collaborators. Without a platform binding the agent runs
	// foregrounded with log-backed indicator and notifier.
	appDeps := services.AppDependencies{
		Source:    appstate.NewChannelSource(appstate.Foreground),
		Indicator: &appstate.LogIndicator{Logger: log},
		Notifier:  &appstate.LogNotifier{Logger: log},
	}

	// Create a new service registry to manage services
	serviceRegistry := service_registry.NewServiceRegistry(mqttClient, rideAPI, fileClient, appDeps, log)

	// Register all services based on the configuration
	if err := serviceRegistry.RegisterServices(config, deviceInfo); err != nil {
		log.Fatal().Err(err).Msg("Failed to register services")
	}

	// Start all registered services in the registry
	if err := serviceRegistry.StartServices(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start services")
	}
	log.Info().Msg("All services started successfully")

	// Handle graceful shutdown
	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down gracefully...")
	if err := serviceRegistry.StopServices(); err != nil {
		log.Error().Err(err).Msg("Failed to stop all services")
	}
	mqttClient.Disconnect(250)
}
