package geo

import (
	"fmt"
	"math"
)

// Coordinates is a validated WGS84 point.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// InvalidCoordinateError reports a latitude or longitude outside its valid range.
type InvalidCoordinateError struct {
	Field string
	Value float64
}

func (e *InvalidCoordinateError) Error() string {
	return fmt.Sprintf("invalid coordinate: %s=%f out of range", e.Field, e.Value)
}

// NewCoordinates validates and builds a point. Latitude must be in [-90,90],
// longitude in [-180,180].
func NewCoordinates(lat, lng float64) (Coordinates, error) {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return Coordinates{}, &InvalidCoordinateError{Field: "latitude", Value: lat}
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return Coordinates{}, &InvalidCoordinateError{Field: "longitude", Value: lng}
	}
	return Coordinates{Lat: lat, Lng: lng}, nil
}

// DecimalToCoordinates converts nullable decimal columns into a point.
// Either input being nil yields nil: providers without a geocode are skipped
// by distance scoring upstream rather than errored.
func DecimalToCoordinates(lat, lng *float64) *Coordinates {
	if lat == nil || lng == nil {
		return nil
	}
	c, err := NewCoordinates(*lat, *lng)
	if err != nil {
		return nil
	}
	return &c
}

const earthRadiusKm = 6371

// Haversine returns the great-circle distance between two points in km.
// Symmetric, exactly 0 for identical points, and correct across the
// antimeridian because the delta enters through sin/cos only.
func Haversine(a, b Coordinates) float64 {
	dLat := (b.Lat - a.Lat) * (math.Pi / 180)
	dLng := (b.Lng - a.Lng) * (math.Pi / 180)
	latA := a.Lat * (math.Pi / 180)
	latB := b.Lat * (math.Pi / 180)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}
