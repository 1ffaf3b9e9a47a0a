package geo

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePolyline_GoogleReferenceExample(t *testing.T) {
	// The worked example from Google's polyline algorithm documentation.
	points := DecodePolyline("_p~iF~ps|U_ulLnnqC_mqNvxq`@", 5)

	require.Len(t, points, 3)
	assert.InDelta(t, 38.5, points[0].Lat, 1e-5)
	assert.InDelta(t, -120.2, points[0].Lng, 1e-5)
	assert.InDelta(t, 40.7, points[1].Lat, 1e-5)
	assert.InDelta(t, -120.95, points[1].Lng, 1e-5)
	assert.InDelta(t, 43.252, points[2].Lat, 1e-5)
	assert.InDelta(t, -126.453, points[2].Lng, 1e-5)
}

func TestDecodePolyline_EmptyInput(t *testing.T) {
	assert.Empty(t, DecodePolyline("", 5))
}

func TestDecodePolyline_MalformedInput(t *testing.T) {
	// A dangling continuation byte cannot terminate a varint.
	assert.Empty(t, DecodePolyline("_p~iF~ps|U\x80", 5))
}

func TestEncodePolyline_EmptyInput(t *testing.T) {
	assert.Equal(t, "", EncodePolyline(nil, 5))
}

func TestPolyline_RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 20; trial++ {
		n := 2 + rng.Intn(30)
		points := make([]LatLng, n)
		for i := range points {
			points[i] = LatLng{
				Lat: rng.Float64()*180 - 90,
				Lng: rng.Float64()*360 - 180,
			}
		}

		decoded := DecodePolyline(EncodePolyline(points, 5), 5)
		require.Len(t, decoded, n)
		for i := range points {
			assert.InDelta(t, points[i].Lat, decoded[i].Lat, 1e-5)
			assert.InDelta(t, points[i].Lng, decoded[i].Lng, 1e-5)
		}
	}
}

func TestPolyline_RoundTripHigherPrecision(t *testing.T) {
	points := []LatLng{
		{Lat: 10.800001, Lng: 106.700001},
		{Lat: 10.810002, Lng: 106.710002},
	}

	decoded := DecodePolyline(EncodePolyline(points, 6), 6)
	require.Len(t, decoded, 2)
	for i := range points {
		assert.InDelta(t, points[i].Lat, decoded[i].Lat, 1e-6)
		assert.InDelta(t, points[i].Lng, decoded[i].Lng, 1e-6)
	}
}
