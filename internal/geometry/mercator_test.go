package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
)

func TestProject_KnownCoordinate(t *testing.T) {
	// Bonn-ish camera location from survey data.
	x, y, err := Project(7.1396999999998805, 50.69659999999914)
	assert.NoError(t, err)
	assert.InDelta(t, 794787.768416722, x, 1e-3)
	assert.InDelta(t, 6567800.23790998, y, 1e-3)
}

func TestProject_RoundTrip(t *testing.T) {
	coords := [][2]float64{
		{7.1397, 50.6966},
		{-32.44150999999994, -3.849019999999944},
		{0, 0},
		{179.9, 84.9},
		{-179.9, -84.9},
	}

	for _, c := range coords {
		x, y, err := Project(c[0], c[1])
		assert.NoError(t, err)
		lon, lat := Unproject(x, y)
		assert.InDelta(t, c[0], lon, 1e-6)
		assert.InDelta(t, c[1], lat, 1e-6)
	}
}

func TestProject_OutOfRange(t *testing.T) {
	_, _, err := Project(181, 0)
	assert.True(t, apperr.IsValidation(err))

	_, _, err = Project(0, -91)
	assert.True(t, apperr.IsValidation(err))
}

func TestLonLatToDMS(t *testing.T) {
	lon, lat := LonLatToDMS(7.1397, 50.6966)
	assert.Equal(t, 7, lon.Degrees)
	assert.Equal(t, 8, lon.Minutes)
	assert.InDelta(t, 22.92, lon.Seconds, 0.01)
	assert.Equal(t, "E", lon.Ref)
	assert.Equal(t, 50, lat.Degrees)
	assert.Equal(t, "N", lat.Ref)

	lon, lat = LonLatToDMS(-32.4415, -3.8490)
	assert.Equal(t, 32, lon.Degrees)
	assert.Equal(t, "W", lon.Ref)
	assert.Equal(t, 3, lat.Degrees)
	assert.Equal(t, "S", lat.Ref)
}
