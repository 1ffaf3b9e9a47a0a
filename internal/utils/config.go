package utils

import (
	"time"

	"github.com/ridetrack/telemetry-agent/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate (optional)
	} `yaml:"mqtt"`

	Backend struct {
		BaseURL string        `yaml:"base_url"` // Ride backend base URL
		APIKey  string        `yaml:"api_key"`  // API key sent on backend requests
		Timeout time.Duration `yaml:"timeout"`  // HTTP request timeout
	} `yaml:"backend"`

	Identity struct {
		DeviceFile string `yaml:"device_file"` // Path to the device identity file
	} `yaml:"identity"`

	Services struct {
		Tracking struct {
			Enabled           bool          `yaml:"enabled"`             // Enable/disable ride tracking
			QOS               int           `yaml:"qos"`                 // MQTT QoS level for tracking batches
			SamplingInterval  time.Duration `yaml:"sampling_interval"`   // Interval between position samples
			MaxBufferSize     int           `yaml:"max_buffer_size"`     // Buffered points that trigger a flush
			FlushInterval     time.Duration `yaml:"flush_interval"`      // Elapsed time that triggers a flush
			MaxAccuracyMeters float64       `yaml:"max_accuracy_meters"` // Accuracy ceiling for real fixes
			StatusCacheTTL    time.Duration `yaml:"status_cache_ttl"`    // Ride-status cache freshness window
			DegradedSpeedMPS  float64       `yaml:"degraded_speed_mps"`  // Simulated speed for degraded fallback
			SensorBased       bool          `yaml:"sensor_based"`        // Use GPS sensor or geolocation API first
			MapsAPIKey        string        `yaml:"maps_api_key"`        // Google maps API Key
			GPSDeviceBaudRate int           `yaml:"gps_baud_rate"`       // The Baud rate for GPS sensor
			GPSDevicePort     string        `yaml:"gps_device_port"`     // UNIX Port where the GPS sensor is mounted
		} `yaml:"tracking"`

		Heartbeat struct {
			Enabled  bool          `yaml:"enabled"`  // Enable/disable session heartbeats
			Interval time.Duration `yaml:"interval"` // Interval between heartbeats
			QOS      int           `yaml:"qos"`      // MQTT QoS level for heartbeat messages
		} `yaml:"heartbeat"`
	} `yaml:"services"`
}

// LoadConfig loads the YAML configuration from the specified file.
// It returns a pointer to the Config struct and an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	err := fileClient.ReadYamlFile(filename, &config)
	if err != nil {
		return nil, err
	}

	return &config, nil
}
