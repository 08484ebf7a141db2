// Package geometry holds the pure coordinate math used when placing camera
// locations on the published web map and when decorating photo attributes
// with GPS values.
package geometry

import (
	"math"

	"github.com/OpenCamTrap/camtrap/internal/apperr"
)

// earthRadius is the WGS84 semi-major axis in meters, the sphere radius of
// the web-mercator projection.
const earthRadius = 6378137.0

// Project converts geodetic EPSG:4326 coordinates (degrees) to projected
// EPSG:3857 web-mercator coordinates (meters).
func Project(lon, lat float64) (x, y float64, err error) {
	if err := validateLonLat(lon, lat); err != nil {
		return 0, 0, err
	}
	x = earthRadius * lon * math.Pi / 180
	y = earthRadius * math.Log(math.Tan(math.Pi/4+lat*math.Pi/360))
	return x, y, nil
}

// Unproject converts projected EPSG:3857 coordinates back to geodetic
// EPSG:4326 degrees.
func Unproject(x, y float64) (lon, lat float64) {
	lon = x / earthRadius * 180 / math.Pi
	lat = (2*math.Atan(math.Exp(y/earthRadius)) - math.Pi/2) * 180 / math.Pi
	return lon, lat
}

func validateLonLat(lon, lat float64) error {
	if math.IsNaN(lon) || math.IsNaN(lat) {
		return apperr.Validation("coordinates", "coordinates must be numeric")
	}
	if lon < -180 || lon > 180 {
		return apperr.Validation("longitude", "%.6f is outside [-180, 180]", lon)
	}
	if lat < -90 || lat > 90 {
		return apperr.Validation("latitude", "%.6f is outside [-90, 90]", lat)
	}
	return nil
}
