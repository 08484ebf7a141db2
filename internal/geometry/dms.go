package geometry

import (
	"fmt"
	"math"
)

// DMS is a coordinate component in degree/minute/second form with its
// hemisphere reference, the representation used for photo GPS attributes.
type DMS struct {
	Degrees int
	Minutes int
	Seconds float64
	Ref     string
}

func (d DMS) String() string {
	return fmt.Sprintf(`%d°%d'%05.2f"%s`, d.Degrees, d.Minutes, d.Seconds, d.Ref)
}

// LonLatToDMS decomposes decimal longitude/latitude into DMS pairs.
// Longitude references E/W, latitude N/S; degrees are always non-negative.
func LonLatToDMS(lon, lat float64) (DMS, DMS) {
	lonDMS := decimalToDMS(lon)
	lonDMS.Ref = "E"
	if lon < 0 {
		lonDMS.Ref = "W"
	}

	latDMS := decimalToDMS(lat)
	latDMS.Ref = "N"
	if lat < 0 {
		latDMS.Ref = "S"
	}

	return lonDMS, latDMS
}

func decimalToDMS(value float64) DMS {
	abs := math.Abs(value)
	degrees := int(abs)
	rem := 60 * (abs - float64(degrees))
	minutes := int(rem)
	seconds := 60 * (rem - float64(minutes))
	return DMS{Degrees: degrees, Minutes: minutes, Seconds: seconds}
}
