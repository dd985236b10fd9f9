/*
Package commuting validates geofenced check-ins and check-outs.

PURPOSE:
  A trainee reports a position when arriving at or leaving the unit. The
  position is accepted if it lies within the radius of ANY active reference
  location (great-circle distance); otherwise the check is rejected. With
  zero active locations every check is rejected - the geofence fails closed,
  never open.

  Records are per (trainee, calendar day): one check-in, then at most one
  check-out. Administrators may enter records manually, bypassing the
  geofence but never the per-day uniqueness.

SEE ALSO:
  - service.go: the check-in/check-out sequence rules
  - store/sqlite/commuting.go: persistence
*/
package commuting

import (
	"math"
)

// earthRadiusM is the mean Earth radius used for great-circle distance.
const earthRadiusM = 6371000.0

// Position is a reported WGS84 point.
type Position struct {
	Lat float64
	Lng float64
}

// ReferenceLocation is one registered acceptance boundary: a center
// coordinate plus a radius in meters. Inactive locations are ignored by
// validation but kept for administration.
type ReferenceLocation struct {
	ID      string
	Name    string
	Lat     float64
	Lng     float64
	RadiusM float64
	Active  bool
}

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(a, b Position) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Validate accepts a position if it is within radius of any active
// reference location, returning the matched location. Rejections:
//   - NoActiveLocationError when zero locations are active (fail closed)
//   - OutOfRangeError when every active location is too far
func Validate(pos Position, locations []ReferenceLocation) (*ReferenceLocation, error) {
	nearest := math.Inf(1)
	active := 0

	for i := range locations {
		loc := &locations[i]
		if !loc.Active {
			continue
		}
		active++
		d := HaversineMeters(pos, Position{Lat: loc.Lat, Lng: loc.Lng})
		if d <= loc.RadiusM {
			return loc, nil
		}
		if d < nearest {
			nearest = d
		}
	}

	if active == 0 {
		return nil, &NoActiveLocationError{}
	}
	return nil, &OutOfRangeError{NearestMeters: nearest}
}
