package position

import "time"

// StaticProvider returns a fixed location on every read. Useful for demos
// and as a deterministic provider in tests.
type StaticProvider struct {
	Location Location
}

// NewStaticProvider creates a provider pinned to the given coordinates.
func NewStaticProvider(lat, lng, accuracy float64) *StaticProvider {
	return &StaticProvider{
		Location: Location{Latitude: lat, Longitude: lng, Accuracy: accuracy},
	}
}

// GetLocation returns the fixed location stamped with the current time.
func (s *StaticProvider) GetLocation() (Location, error) {
	loc := s.Location
	loc.Timestamp = time.Now()
	return loc, nil
}

// Close releases the provider.
func (s *StaticProvider) Close() error {
	return nil
}
