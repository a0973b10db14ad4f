package cluster

import (
	"fmt"
	"testing"

	"github.com/amou/memorymap/pkg/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func markerAt(id string, lat, lng float64) Marker {
	return Marker{ID: id, Pos: core.LatLng{Lat: lat, Lng: lng}}
}

func TestCompute_Empty(t *testing.T) {
	g := NewGroup()
	assert.Empty(t, g.Compute(nil, 10))
}

func TestCompute_SingleMarker(t *testing.T) {
	g := NewGroup()
	clusters := g.Compute([]Marker{markerAt("a", 48.85, 2.35)}, 10)
	require.Len(t, clusters, 1)
	assert.Equal(t, 1, clusters[0].Count())
	assert.InDelta(t, 48.85, clusters[0].Pos.Lat, 1e-9)
}

func TestCompute_NearbyMarkersMergeAtLowZoom(t *testing.T) {
	g := NewGroup()
	markers := []Marker{
		markerAt("a", 48.8566, 2.3522), // Paris
		markerAt("b", 48.8570, 2.3530),
		markerAt("c", 40.7128, -74.0060), // New York
	}

	clusters := g.Compute(markers, 2)
	require.Len(t, clusters, 2)
	assert.Equal(t, 2, clusters[0].Count())
	assert.Equal(t, 1, clusters[1].Count())
}

func TestCompute_ZoomSplitsClusters(t *testing.T) {
	g := NewGroup()
	markers := []Marker{
		markerAt("a", 48.8566, 2.3522),
		markerAt("b", 48.9000, 2.4000), // ~6 km away
	}

	low := g.Compute(markers, 3)
	assert.Len(t, low, 1, "6km apart should merge at zoom 3")

	high := g.Compute(markers, 14)
	assert.Len(t, high, 2, "6km apart should split at zoom 14")
}

func TestCompute_EveryMarkerAssignedExactlyOnce(t *testing.T) {
	g := NewGroup()
	var markers []Marker
	for i := range 40 {
		markers = append(markers, markerAt(
			fmt.Sprintf("m%d", i),
			float64(i%7)*10-30,
			float64(i%11)*20-100,
		))
	}

	for _, zoom := range []float64{1, 5, 10, 16} {
		clusters := g.Compute(markers, zoom)
		seen := map[string]int{}
		total := 0
		for _, c := range clusters {
			total += c.Count()
			for _, m := range c.Members {
				seen[m.ID]++
			}
		}
		assert.Equal(t, len(markers), total, "zoom=%v", zoom)
		for id, n := range seen {
			assert.Equal(t, 1, n, "marker %s at zoom %v", id, zoom)
		}
	}
}

func TestCompute_Deterministic(t *testing.T) {
	g := NewGroup()
	markers := []Marker{
		markerAt("a", 10, 10),
		markerAt("b", 10.001, 10.001),
		markerAt("c", -20, 60),
	}
	first := g.Compute(markers, 6)
	second := g.Compute(markers, 6)
	assert.Equal(t, first, second)
}

func TestShouldSpiderfy(t *testing.T) {
	g := NewGroup()
	assert.False(t, g.ShouldSpiderfy(14))
	assert.True(t, g.ShouldSpiderfy(DefaultMaxZoom))
}

func TestSpiderfyOffsets(t *testing.T) {
	assert.Nil(t, SpiderfyOffsets(0))

	offsets := SpiderfyOffsets(6)
	require.Len(t, offsets, 6)
	// All legs share the same radius.
	r0 := offsets[0].X*offsets[0].X + offsets[0].Y*offsets[0].Y
	for _, o := range offsets[1:] {
		assert.InDelta(t, r0, o.X*o.X+o.Y*o.Y, 1e-6)
	}
}
