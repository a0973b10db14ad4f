package core

import "errors"

// ErrInvalidCoordinates is returned when a latitude/longitude pair is out of range.
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// LatLng is a WGS84 position in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the position is within WGS84 bounds.
func (p LatLng) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// NewLatLng builds a validated position.
func NewLatLng(lat, lng float64) (LatLng, error) {
	p := LatLng{Lat: lat, Lng: lng}
	if !p.Valid() {
		return LatLng{}, ErrInvalidCoordinates
	}
	return p, nil
}

// FlyTo is an externally supplied camera directive. Zoom 0 means "use the
// controller's default".
type FlyTo struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Zoom float64 `json:"zoom,omitempty"`
}

// Point is a screen-space pixel position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}
