package geo

import "math"

const earthRadiusMeters = 6371000.0

// LatLng is a coordinate pair in decimal degrees.
type LatLng struct {
	Lat float64
	Lng float64
}

// Valid reports whether the coordinate lies inside the WGS84 range.
func (p LatLng) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// HaversineMeters returns the great-circle distance in meters between two
// points specified in decimal degrees.
func HaversineMeters(a, b LatLng) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusMeters * c
}

// PathLength returns the sum of consecutive great-circle segment lengths in
// meters. Paths with fewer than two points have zero length.
func PathLength(points []LatLng) float64 {
	total := 0.0
	for i := 0; i < len(points)-1; i++ {
		total += HaversineMeters(points[i], points[i+1])
	}
	return total
}

// SegmentLengths returns the per-segment great-circle lengths of a path.
func SegmentLengths(points []LatLng) []float64 {
	if len(points) < 2 {
		return nil
	}
	lengths := make([]float64, len(points)-1)
	for i := range lengths {
		lengths[i] = HaversineMeters(points[i], points[i+1])
	}
	return lengths
}

// Interpolate returns the point a fraction t of the way from a to b using
// linear interpolation in degree space. t is clamped to [0, 1].
func Interpolate(a, b LatLng, t float64) LatLng {
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	return LatLng{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lng: a.Lng + (b.Lng-a.Lng)*t,
	}
}

// PointAtFraction maps a fraction of total path length onto the path by
// locating the bracketing segment and interpolating within it, so motion
// derived from it stays smooth regardless of point density. frac is clamped
// to [0, 1]; frac >= 1 returns the exact final point.
func PointAtFraction(points []LatLng, segLengths []float64, totalLength, frac float64) LatLng {
	if len(points) == 0 {
		return LatLng{}
	}
	if len(points) == 1 || totalLength <= 0 || frac >= 1 {
		return points[len(points)-1]
	}
	if frac <= 0 {
		return points[0]
	}

	target := frac * totalLength
	accum := 0.0
	for i, segLen := range segLengths {
		if accum+segLen >= target {
			if segLen == 0 {
				return points[i]
			}
			return Interpolate(points[i], points[i+1], (target-accum)/segLen)
		}
		accum += segLen
	}
	return points[len(points)-1]
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
