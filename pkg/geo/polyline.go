package geo

import (
	"math"

	"github.com/twpayne/go-polyline"
)

// DefaultPolylinePrecision is the precision used by Google's polyline format.
const DefaultPolylinePrecision = 5

// DecodePolyline decodes a Google-style delta/varint encoded path string into
// coordinate pairs. Malformed or empty input yields an empty slice rather
// than an error: encoded paths arrive from the backend and a bad route must
// degrade to straight-line behavior, not fail the caller.
func DecodePolyline(encoded string, precision int) []LatLng {
	if encoded == "" {
		return nil
	}

	codec := polylineCodec(precision)
	coords, _, err := codec.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil
	}

	points := make([]LatLng, 0, len(coords))
	for _, c := range coords {
		points = append(points, LatLng{Lat: c[0], Lng: c[1]})
	}
	return points
}

// EncodePolyline is the inverse of DecodePolyline. A round-trip reproduces
// the original points to within the precision's rounding error.
func EncodePolyline(points []LatLng, precision int) string {
	if len(points) == 0 {
		return ""
	}

	coords := make([][]float64, 0, len(points))
	for _, p := range points {
		coords = append(coords, []float64{p.Lat, p.Lng})
	}

	codec := polylineCodec(precision)
	return string(codec.EncodeCoords(nil, coords))
}

func polylineCodec(precision int) polyline.Codec {
	if precision <= 0 {
		precision = DefaultPolylinePrecision
	}
	return polyline.Codec{Dim: 2, Scale: math.Pow(10, float64(precision))}
}
