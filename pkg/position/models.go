package position

import "time"

// Location represents one raw position reading from a provider.
type Location struct {
	Latitude  float64
	Longitude float64
	Accuracy  float64
	Timestamp time.Time
}
