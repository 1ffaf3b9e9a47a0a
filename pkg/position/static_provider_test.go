package position

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticProvider_ReturnsPinnedLocation(t *testing.T) {
	var _ Provider = (*StaticProvider)(nil)

	p := NewStaticProvider(10.80, 106.70, 8.0)
	defer p.Close()

	loc, err := p.GetLocation()
	require.NoError(t, err)
	assert.Equal(t, 10.80, loc.Latitude)
	assert.Equal(t, 106.70, loc.Longitude)
	assert.Equal(t, 8.0, loc.Accuracy)
	assert.False(t, loc.Timestamp.IsZero(), "readings are stamped with the read time")

	again, err := p.GetLocation()
	require.NoError(t, err)
	assert.Equal(t, loc.Latitude, again.Latitude)
	assert.Equal(t, loc.Longitude, again.Longitude)
}
