// Package cluster groups markers by screen-pixel density. Membership is a
// function of the current zoom: positions are projected to world pixels and
// grouped greedily within a fixed pixel radius, so zooming in naturally
// breaks clusters apart without any geographic threshold tuning.
package cluster

import (
	"math"

	"github.com/amou/memorymap/internal/geo"
	"github.com/amou/memorymap/pkg/core"

	geom "github.com/peterstace/simplefeatures/geom"
)

// DefaultRadiusPx matches the cluster radius of the map frontend.
const DefaultRadiusPx = 80

// DefaultMaxZoom is the zoom at which clusters spiderfy instead of zooming.
const DefaultMaxZoom = 22

// spiderfyDistanceMultiplier scales the spiderfy leg length.
const spiderfyDistanceMultiplier = 1.5

// Marker is a clusterable map entity.
type Marker struct {
	ID  string
	Pos core.LatLng
}

// Cluster is an ephemeral grouping of markers at one zoom level. A cluster
// of one renders as a plain marker.
type Cluster struct {
	Members []Marker
	Pos     core.LatLng
	Bounds  geo.Bounds
}

// Count returns the number of members.
func (c *Cluster) Count() int {
	return len(c.Members)
}

// Group computes density clusters with a fixed pixel radius.
type Group struct {
	RadiusPx float64
	MaxZoom  float64
}

// NewGroup creates a Group with the default radius and max zoom.
func NewGroup() *Group {
	return &Group{RadiusPx: DefaultRadiusPx, MaxZoom: DefaultMaxZoom}
}

// Compute groups markers at the given zoom. Each marker joins the first
// cluster whose seed lies within RadiusPx of it in world pixel space, so
// the result is deterministic for a given marker order.
func (g *Group) Compute(markers []Marker, zoom float64) []Cluster {
	type seed struct {
		px      geom.XY
		cluster int
	}

	var seeds []seed
	clusters := make([]Cluster, 0, len(markers))

	for _, m := range markers {
		px := geo.WorldPixel(m.Pos, zoom)

		joined := false
		for _, s := range seeds {
			if geo.PixelDistance(px, s.px) <= g.RadiusPx {
				c := &clusters[s.cluster]
				c.Members = append(c.Members, m)
				c.Bounds = c.Bounds.Extend(m.Pos)
				joined = true
				break
			}
		}
		if joined {
			continue
		}

		clusters = append(clusters, Cluster{
			Members: []Marker{m},
			Bounds:  geo.EmptyBounds().Extend(m.Pos),
		})
		seeds = append(seeds, seed{px: px, cluster: len(clusters) - 1})
	}

	for i := range clusters {
		clusters[i].Pos = centroid(clusters[i].Members)
	}
	return clusters
}

// ShouldSpiderfy reports whether a cluster click at the given zoom should
// fan members out instead of zooming to bounds.
func (g *Group) ShouldSpiderfy(zoom float64) bool {
	return zoom >= g.MaxZoom
}

// SpiderfyOffsets arranges count points evenly on a circle around the
// cluster position, for revealing members at max zoom.
func SpiderfyOffsets(count int) []core.Point {
	if count <= 0 {
		return nil
	}
	radius := spiderfyDistanceMultiplier * (20 + 5*float64(count))
	offsets := make([]core.Point, count)
	for i := range offsets {
		angle := 2 * math.Pi * float64(i) / float64(count)
		offsets[i] = core.Point{
			X: radius * math.Cos(angle),
			Y: radius * math.Sin(angle),
		}
	}
	return offsets
}

func centroid(members []Marker) core.LatLng {
	var lat, lng float64
	for _, m := range members {
		lat += m.Pos.Lat
		lng += m.Pos.Lng
	}
	n := float64(len(members))
	return core.LatLng{Lat: lat / n, Lng: lng / n}
}
