package position

import (
	"context"
	"time"

	"googlemaps.github.io/maps"
)

// GoogleGeolocationProvider resolves position through the Google Maps
// Geolocation API. It is the reduced-precision substitute used when the GPS
// sensor cannot produce fixes: accuracy is network-derived rather than
// satellite-derived.
type GoogleGeolocationProvider struct {
	client *maps.Client
}

// NewGoogleGeolocationProvider creates a new GoogleGeolocationProvider instance.
func NewGoogleGeolocationProvider(apiKey string) (*GoogleGeolocationProvider, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &GoogleGeolocationProvider{
		client: c,
	}, nil
}

// GetLocation retrieves the device's location using the Geolocation API.
func (g *GoogleGeolocationProvider) GetLocation() (Location, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// WiFi access points sharpen the estimate when the host can scan them;
	// ConsiderIP keeps the request answerable without them.
	wifiAPs, err := getWiFiAccessPoints(ctx)
	if err != nil {
		wifiAPs = nil
	}

	req := &maps.GeolocationRequest{
		ConsiderIP:       true,
		WiFiAccessPoints: wifiAPs,
	}

	resp, err := g.client.Geolocate(ctx, req)
	if err != nil {
		return Location{}, err
	}

	return Location{
		Latitude:  resp.Location.Lat,
		Longitude: resp.Location.Lng,
		Accuracy:  resp.Accuracy,
		Timestamp: time.Now(),
	}, nil
}

// Close releases the provider.
func (g *GoogleGeolocationProvider) Close() error {
	return nil
}
