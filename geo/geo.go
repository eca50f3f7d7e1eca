// Package geo provides the coordinate value type and great-circle distance
// calculations used for attendance geofencing.
package geo

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/pkg/errors"
)

// earthRadiusM is the mean Earth radius used by the haversine formula.
const earthRadiusM = 6371000.0

var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate is a WGS-84 latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks that the coordinate lies within the valid geodetic ranges.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return errors.Wrapf(ErrInvalidCoordinate, "lat=%v lon=%v", c.Lat, c.Lon)
	}
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return errors.Wrap(ErrInvalidCoordinate, "NaN component")
	}
	return nil
}

// Distance returns the great-circle distance between a and b in meters using
// the haversine formula. Identical coordinates return exactly 0.
func Distance(a, b Coordinate) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}

	if a == b {
		return 0, nil
	}

	lat1 := radians(a.Lat)
	lat2 := radians(b.Lat)
	dLat := radians(b.Lat - a.Lat)
	dLon := radians(b.Lon - a.Lon)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusM * math.Asin(math.Sqrt(h)), nil
}

func radians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// Degree is a latitude or longitude component that unmarshals from either a
// JSON number or a numeric string. Clients send both representations; the
// rest of the system only ever sees float64.
type Degree float64

func (d *Degree) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case float64:
		*d = Degree(v)
		return nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(ErrInvalidCoordinate, "parsing %q", v)
		}
		*d = Degree(f)
		return nil
	default:
		return errors.Wrapf(ErrInvalidCoordinate, "unexpected type %T", raw)
	}
}

func (d Degree) MarshalJSON() ([]byte, error) {
	return json.Marshal(float64(d))
}
