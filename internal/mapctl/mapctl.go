// Package mapctl implements the map interaction controller: it owns the
// rendered marker set, the clustering layer, tooltip scheduling, placement
// mode, and camera flight. The surrounding layer feeds it the visible memory
// list and user gestures; it emits selection, coordinate-pick, and render
// events back.
//
// The controller is safe for concurrent use. All pending work (hover delays,
// search debounce, post-flight selection) runs on single-shot timers guarded
// by a generation counter, so a superseding event invalidates stale callbacks
// deterministically.
package mapctl

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/amou/memorymap/internal/cluster"
	"github.com/amou/memorymap/internal/geocode"
	"github.com/amou/memorymap/pkg/core"
)

// Camera zoom floors and fixed zooms for the various flight triggers.
const (
	markerClickMinZoom = 14
	selectionMinZoom   = 10
	defaultFlyZoom     = 12
	searchResultZoom   = 15
	locateZoom         = 14
)

// Camera flight durations.
const (
	markerClickFlyDuration  = 800 * time.Millisecond
	defaultFlyDuration      = time.Second
	searchResultFlyDuration = 1500 * time.Millisecond
	locateFlyDuration       = 1200 * time.Millisecond
)

// Surface is the map rendering and camera collaborator.
type Surface interface {
	// FlyTo animates the camera to the target over the given duration.
	FlyTo(target core.FlyTo, duration time.Duration)
	// Zoom returns the current zoom level.
	Zoom() float64
	// Project converts a position to on-screen pixel coordinates.
	Project(pos core.LatLng) (x, y float64)
	// ViewportSize returns the viewport dimensions in pixels.
	ViewportSize() (w, h float64)
}

// Searcher resolves free-text queries to candidate places.
type Searcher interface {
	Search(ctx context.Context, query string) ([]geocode.Result, error)
}

// Locator provides the device's current position.
type Locator interface {
	CurrentPosition(ctx context.Context) (core.LatLng, error)
}

// Events are the callbacks the controller emits. Nil callbacks are skipped.
// Callbacks are invoked without the controller lock held, so they may call
// back into the controller.
type Events struct {
	// MemorySelected fires after a marker click settles or on external
	// list-driven selection.
	MemorySelected func(m core.Memory)
	// CoordinatePicked fires on a placement-mode map click.
	CoordinatePicked func(lat, lng, screenX, screenY float64)
	// Notice surfaces a transient user-visible message.
	Notice func(level, message string)
	// Tooltip fires when the active tooltip changes; nil clears it.
	Tooltip func(t *Tooltip)
	// Render fires with the full marker/cluster render state.
	Render func(rs RenderState)
	// SearchResults fires with geocoding results; empty clears the list.
	SearchResults func(results []geocode.Result)
}

// Dependencies are the collaborators a Controller needs.
type Dependencies struct {
	Surface  Surface
	Searcher Searcher
	Locator  Locator
	Logger   *slog.Logger
}

// Config holds the controller's timer durations. Zero values take the
// defaults matching the production interaction timings.
type Config struct {
	HoverShowDelay time.Duration // marker hover until tooltip shows
	HoverHideDelay time.Duration // marker leave until tooltip hides
	SearchDebounce time.Duration // search input settle time
	SelectSettle   time.Duration // marker click flight before selection fires
}

func (c *Config) applyDefaults() {
	if c.HoverShowDelay == 0 {
		c.HoverShowDelay = 1000 * time.Millisecond
	}
	if c.HoverHideDelay == 0 {
		c.HoverHideDelay = 300 * time.Millisecond
	}
	if c.SearchDebounce == 0 {
		c.SearchDebounce = 500 * time.Millisecond
	}
	if c.SelectSettle == 0 {
		c.SelectSettle = 800 * time.Millisecond
	}
}

// Tooltip is the single active tooltip's captured state.
type Tooltip struct {
	Memory   core.Memory
	ScreenX  float64
	ScreenY  float64
	Zoom     float64
	Topic    string
	Category string // display label, e.g. "✈️ Travel"
}

// lifecycle phases
type phase int

const (
	phaseUninitialized phase = iota
	phaseReady
	phaseDestroyed
)

// tooltip state machine phases
type tooltipPhase int

const (
	tooltipIdle tooltipPhase = iota
	tooltipPendingShow
	tooltipShown
	tooltipPendingHide
)

// Controller is the map interaction controller.
type Controller struct {
	surface  Surface
	searcher Searcher
	locator  Locator
	log      *slog.Logger
	cfg      Config
	group    *cluster.Group

	mu    sync.Mutex
	phase phase

	// marker set, keyed by memory id, with insertion order preserved
	markers map[string]core.Memory
	order   []string

	selectedID      string
	placementActive bool

	// tooltip state machine
	ttPhase  tooltipPhase
	ttTarget string
	ttShown  *Tooltip
	hoverGen uint64
	hideGen  uint64

	// debounced search
	searchGen uint64

	// post-flight selection
	settleGen uint64

	// last computed clusters, for cluster-click resolution
	lastClusters []cluster.Cluster
	spiderfied   int // index into lastClusters, -1 when none

	// reconcile requested before Ready
	pending         []core.Memory
	pendingSelected string
	havePending     bool

	lastReconcile time.Duration

	events Events
}

// NewController creates a controller in the Uninitialized state.
func NewController(deps Dependencies, cfg Config, events Events) *Controller {
	cfg.applyDefaults()
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		surface:    deps.Surface,
		searcher:   deps.Searcher,
		locator:    deps.Locator,
		log:        log,
		cfg:        cfg,
		group:      cluster.NewGroup(),
		markers:    make(map[string]core.Memory),
		spiderfied: -1,
		events:     events,
	}
}

// Ready marks the map surface as mounted. A reconcile requested before this
// point is applied now.
func (c *Controller) Ready() {
	c.mu.Lock()
	if c.phase != phaseUninitialized {
		c.mu.Unlock()
		return
	}
	c.phase = phaseReady

	var emit func()
	if c.havePending {
		emit = c.reconcileLocked(c.pending, c.pendingSelected)
		c.pending = nil
		c.havePending = false
	}
	c.mu.Unlock()
	if emit != nil {
		emit()
	}
}

// Destroy tears the controller down: all markers, clusters, and pending
// timers are released. Every operation after Destroy is a no-op.
func (c *Controller) Destroy() {
	c.mu.Lock()
	if c.phase == phaseDestroyed {
		c.mu.Unlock()
		return
	}
	c.phase = phaseDestroyed

	// bump every generation so in-flight timers see themselves stale
	c.hoverGen++
	c.hideGen++
	c.searchGen++
	c.settleGen++

	c.markers = make(map[string]core.Memory)
	c.order = nil
	c.lastClusters = nil
	c.spiderfied = -1
	c.ttPhase = tooltipIdle
	c.ttShown = nil
	c.ttTarget = ""
	c.mu.Unlock()
}

// Reconcile replaces the rendered marker set with the supplied list. Records
// without valid coordinates are skipped and logged; the rest render one
// marker each, styled by color and selection. Before Ready the list is held
// and applied on Ready; after Destroy this is a no-op.
func (c *Controller) Reconcile(memories []core.Memory, selectedID string) {
	c.mu.Lock()
	switch c.phase {
	case phaseDestroyed:
		c.mu.Unlock()
		return
	case phaseUninitialized:
		c.pending = memories
		c.pendingSelected = selectedID
		c.havePending = true
		c.mu.Unlock()
		return
	}
	emit := c.reconcileLocked(memories, selectedID)
	c.mu.Unlock()
	emit()
}

// reconcileLocked performs the full-replace rebuild. Callers hold c.mu.
// Returns the render emission to invoke after unlocking.
func (c *Controller) reconcileLocked(memories []core.Memory, selectedID string) func() {
	start := time.Now()

	c.markers = make(map[string]core.Memory, len(memories))
	c.order = c.order[:0]
	for _, m := range memories {
		if !m.HasValidPosition() {
			c.log.Warn("skipping marker with invalid coordinates",
				"memory_id", m.ID, "lat", m.Latitude, "lng", m.Longitude)
			continue
		}
		if _, dup := c.markers[m.ID]; dup {
			continue
		}
		c.markers[m.ID] = m
		c.order = append(c.order, m.ID)
	}
	c.selectedID = selectedID
	c.spiderfied = -1

	// a vanished marker takes its tooltip with it
	clearTip := c.ttTarget != "" && !c.hasMarkerLocked(c.ttTarget)
	if clearTip {
		c.resetTooltipLocked()
	}

	rs := c.renderStateLocked()
	c.lastReconcile = time.Since(start)

	return func() {
		if clearTip {
			c.emitTooltip(nil)
		}
		c.emitRender(rs)
	}
}

func (c *Controller) hasMarkerLocked(id string) bool {
	_, ok := c.markers[id]
	return ok
}

// MarkerCount returns the number of rendered markers.
func (c *Controller) MarkerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.markers)
}

// LastReconcileDuration returns how long the most recent rebuild took.
func (c *Controller) LastReconcileDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReconcile
}

// SetPlacementMode toggles placement mode. While active, map clicks are
// captured as coordinate picks instead of normal navigation.
func (c *Controller) SetPlacementMode(active bool) {
	c.mu.Lock()
	if c.phase == phaseDestroyed {
		c.mu.Unlock()
		return
	}
	c.placementActive = active
	c.mu.Unlock()
}

// MapClick handles a click on the bare map. In placement mode it emits a
// coordinate pick exactly once and suppresses default click handling;
// otherwise the click is ignored here and passes through to navigation.
func (c *Controller) MapClick(lat, lng float64) {
	c.mu.Lock()
	if c.phase != phaseReady || !c.placementActive {
		c.mu.Unlock()
		return
	}
	picked := c.events.CoordinatePicked
	c.mu.Unlock()

	x, y := c.surface.Project(core.LatLng{Lat: lat, Lng: lng})
	if picked != nil {
		picked(lat, lng, x, y)
	}
}

// MarkerClick handles a click on a marker. Propagation to the map's generic
// click handling is the caller's concern; this method clears any tooltip,
// flies the camera to the memory at max(currentZoom, 14), and emits the
// selection only after the flight settles.
func (c *Controller) MarkerClick(id string) {
	c.mu.Lock()
	if c.phase != phaseReady {
		c.mu.Unlock()
		return
	}
	m, ok := c.markers[id]
	if !ok {
		c.mu.Unlock()
		return
	}

	hadTip := c.ttShown != nil
	c.resetTooltipLocked()

	c.selectedID = id
	rs := c.renderStateLocked()

	c.settleGen++
	gen := c.settleGen
	time.AfterFunc(c.cfg.SelectSettle, func() {
		c.mu.Lock()
		if c.phase != phaseReady || gen != c.settleGen {
			c.mu.Unlock()
			return
		}
		selected := c.events.MemorySelected
		c.mu.Unlock()
		if selected != nil {
			selected(m)
		}
	})
	c.mu.Unlock()

	if hadTip {
		c.emitTooltip(nil)
	}
	zoom := maxFloat(c.surface.Zoom(), markerClickMinZoom)
	c.surface.FlyTo(core.FlyTo{Lat: m.Latitude, Lng: m.Longitude, Zoom: zoom}, markerClickFlyDuration)
	c.emitRender(rs)
}

// SelectMemory handles an externally driven selection, e.g. from a list
// panel. The camera flies at max(currentZoom, 10); list selections may come
// from anywhere on the globe and should not over-zoom.
func (c *Controller) SelectMemory(id string) {
	c.mu.Lock()
	if c.phase != phaseReady {
		c.mu.Unlock()
		return
	}
	m, ok := c.markers[id]
	if !ok {
		c.mu.Unlock()
		return
	}
	c.selectedID = id
	rs := c.renderStateLocked()
	selected := c.events.MemorySelected
	c.mu.Unlock()

	zoom := maxFloat(c.surface.Zoom(), selectionMinZoom)
	c.surface.FlyTo(core.FlyTo{Lat: m.Latitude, Lng: m.Longitude, Zoom: zoom}, defaultFlyDuration)
	c.emitRender(rs)
	if selected != nil {
		selected(m)
	}
}

// FlyToLocation handles an external camera directive. A zero target zoom
// takes the default of 12.
func (c *Controller) FlyToLocation(target core.FlyTo) {
	c.mu.Lock()
	if c.phase != phaseReady {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if target.Zoom == 0 {
		target.Zoom = defaultFlyZoom
	}
	c.surface.FlyTo(target, defaultFlyDuration)
}

// ViewportChanged recomputes clustering after a pan or zoom gesture.
func (c *Controller) ViewportChanged() {
	c.mu.Lock()
	if c.phase != phaseReady {
		c.mu.Unlock()
		return
	}
	c.spiderfied = -1
	rs := c.renderStateLocked()
	c.mu.Unlock()
	c.emitRender(rs)
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
