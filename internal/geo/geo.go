// Package geo provides coordinate parsing, projection, and pixel-space math
// for the map layers.
//
// Clustering operates on screen pixels, not geographic distance, so lat/lng
// positions are projected to EPSG:3857 and then scaled to world pixels at
// the current zoom level. Zoom 0 maps the whole world onto one 256px tile;
// each zoom level doubles the pixel extent.
package geo

import (
	"math"
	"strconv"
	"strings"

	"github.com/amou/memorymap/pkg/core"

	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// originShift is half the EPSG:3857 world extent in meters.
const originShift = 20037508.342789244

// tileSize is the base tile edge in pixels at zoom 0.
const tileSize = 256.0

// ParseLatLng parses a "lat,lng" string into a validated position.
func ParseLatLng(coords string) (core.LatLng, error) {
	parts := strings.Split(coords, ",")
	if len(parts) < 2 {
		return core.LatLng{}, core.ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.LatLng{}, core.ErrInvalidCoordinates
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.LatLng{}, core.ErrInvalidCoordinates
	}
	return core.NewLatLng(lat, lng)
}

// Point3857 projects a WGS84 position to an EPSG:3857 point.
func Point3857(pos core.LatLng) geom.Point {
	epsg := wgs84.EPSG()
	f := epsg.Transform(4326, 3857)
	x, y, _ := f(pos.Lng, pos.Lat, 0)
	return geom.NewPoint(geom.Coordinates{
		XY:   geom.XY{X: x, Y: y},
		Type: geom.CoordinatesType(geom.DimXY),
	})
}

// WorldPixel projects a position to world pixel space at the given zoom.
func WorldPixel(pos core.LatLng, zoom float64) geom.XY {
	p, _ := Point3857(pos).XY()

	scale := tileSize * math.Pow(2, zoom) / (2 * originShift)
	return geom.XY{
		X: (p.X + originShift) * scale,
		// Screen Y grows downward.
		Y: (originShift - p.Y) * scale,
	}
}

// PixelDistance returns the Euclidean distance between two pixel positions.
func PixelDistance(a, b geom.XY) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Bounds is a lat/lng bounding box.
type Bounds struct {
	MinLat, MinLng float64
	MaxLat, MaxLng float64
	empty          bool
}

// EmptyBounds returns bounds containing no positions.
func EmptyBounds() Bounds {
	return Bounds{
		MinLat: math.Inf(1), MinLng: math.Inf(1),
		MaxLat: math.Inf(-1), MaxLng: math.Inf(-1),
		empty: true,
	}
}

// Extend grows the bounds to include pos.
func (b Bounds) Extend(pos core.LatLng) Bounds {
	return Bounds{
		MinLat: math.Min(b.MinLat, pos.Lat),
		MinLng: math.Min(b.MinLng, pos.Lng),
		MaxLat: math.Max(b.MaxLat, pos.Lat),
		MaxLng: math.Max(b.MaxLng, pos.Lng),
	}
}

// Empty reports whether the bounds contain no positions.
func (b Bounds) Empty() bool {
	return b.empty || b.MinLat > b.MaxLat
}

// Center returns the midpoint of the bounds.
func (b Bounds) Center() core.LatLng {
	return core.LatLng{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lng: (b.MinLng + b.MaxLng) / 2,
	}
}

// ZoomForBounds returns the highest zoom at which the bounds fit inside a
// viewport of the given pixel dimensions, clamped to [minZoom, maxZoom].
func ZoomForBounds(b Bounds, viewportW, viewportH, minZoom, maxZoom float64) float64 {
	if b.Empty() {
		return minZoom
	}
	nw := WorldPixel(core.LatLng{Lat: b.MaxLat, Lng: b.MinLng}, 0)
	se := WorldPixel(core.LatLng{Lat: b.MinLat, Lng: b.MaxLng}, 0)

	w := se.X - nw.X
	h := se.Y - nw.Y
	if w <= 0 && h <= 0 {
		return maxZoom
	}

	zoom := maxZoom
	if w > 0 {
		zoom = math.Min(zoom, math.Log2(viewportW/w))
	}
	if h > 0 {
		zoom = math.Min(zoom, math.Log2(viewportH/h))
	}
	return math.Max(minZoom, math.Min(zoom, maxZoom))
}
