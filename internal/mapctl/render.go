package mapctl

import (
	"fmt"

	"github.com/amou/memorymap/internal/cluster"
	"github.com/amou/memorymap/internal/geo"
	"github.com/amou/memorymap/internal/geocode"
	"github.com/amou/memorymap/internal/style"
	"github.com/amou/memorymap/pkg/core"
)

// RenderedMarker is one visible marker. Offset is set when the marker is
// fanned out of a spiderfied cluster.
type RenderedMarker struct {
	Memory core.Memory      `json:"memory"`
	Style  style.MarkerSpec `json:"style"`
	Offset *core.Point      `json:"offset,omitempty"`
}

// RenderedCluster is one visible cluster badge.
type RenderedCluster struct {
	ID        string            `json:"id"`
	Pos       core.LatLng       `json:"pos"`
	Style     style.ClusterSpec `json:"style"`
	MemberIDs []string          `json:"member_ids"`
}

// RenderState is the complete visible marker/cluster set at the current zoom.
type RenderState struct {
	Markers  []RenderedMarker  `json:"markers"`
	Clusters []RenderedCluster `json:"clusters"`
}

// renderStateLocked recomputes clustering and styling. Callers hold c.mu.
func (c *Controller) renderStateLocked() RenderState {
	zoom := c.surface.Zoom()

	clusterable := make([]cluster.Marker, 0, len(c.order))
	for _, id := range c.order {
		m := c.markers[id]
		clusterable = append(clusterable, cluster.Marker{
			ID:  id,
			Pos: core.LatLng{Lat: m.Latitude, Lng: m.Longitude},
		})
	}
	c.lastClusters = c.group.Compute(clusterable, zoom)

	var rs RenderState
	for i, cl := range c.lastClusters {
		if cl.Count() == 1 {
			rs.Markers = append(rs.Markers, c.renderMarkerLocked(cl.Members[0].ID, nil))
			continue
		}
		if i == c.spiderfied {
			offsets := cluster.SpiderfyOffsets(cl.Count())
			for j, member := range cl.Members {
				off := offsets[j]
				rs.Markers = append(rs.Markers, c.renderMarkerLocked(member.ID, &off))
			}
			continue
		}
		ids := make([]string, 0, cl.Count())
		for _, member := range cl.Members {
			ids = append(ids, member.ID)
		}
		rs.Clusters = append(rs.Clusters, RenderedCluster{
			ID:        fmt.Sprintf("c%d", i),
			Pos:       cl.Pos,
			Style:     style.Cluster(cl.Count()),
			MemberIDs: ids,
		})
	}
	return rs
}

func (c *Controller) renderMarkerLocked(id string, offset *core.Point) RenderedMarker {
	m := c.markers[id]
	return RenderedMarker{
		Memory: m,
		Style:  style.Marker(m.MarkerColor(), id == c.selectedID),
		Offset: offset,
	}
}

// ClusterClick handles a click on a cluster badge. Below max zoom the camera
// zooms to the cluster's bounds; at max zoom the members fan out instead.
func (c *Controller) ClusterClick(id string) {
	c.mu.Lock()
	if c.phase != phaseReady {
		c.mu.Unlock()
		return
	}

	idx := -1
	for i := range c.lastClusters {
		if fmt.Sprintf("c%d", i) == id && c.lastClusters[i].Count() > 1 {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return
	}

	zoom := c.surface.Zoom()
	if c.group.ShouldSpiderfy(zoom) {
		c.spiderfied = idx
		rs := c.renderStateLocked()
		c.mu.Unlock()
		c.emitRender(rs)
		return
	}

	target := c.lastClusters[idx]
	c.mu.Unlock()

	w, h := c.surface.ViewportSize()
	// never zoom out of a cluster, and always zoom in at least one level
	targetZoom := geo.ZoomForBounds(target.Bounds, w, h, zoom+1, c.group.MaxZoom)
	center := target.Bounds.Center()
	c.surface.FlyTo(core.FlyTo{Lat: center.Lat, Lng: center.Lng, Zoom: targetZoom}, defaultFlyDuration)
}

func (c *Controller) emitRender(rs RenderState) {
	if c.events.Render != nil {
		c.events.Render(rs)
	}
}

func (c *Controller) emitTooltip(t *Tooltip) {
	if c.events.Tooltip != nil {
		c.events.Tooltip(t)
	}
}

func (c *Controller) emitNotice(level, message string) {
	if c.events.Notice != nil {
		c.events.Notice(level, message)
	}
}

func (c *Controller) emitSearchResults(results []geocode.Result) {
	if c.events.SearchResults != nil {
		c.events.SearchResults(results)
	}
}
