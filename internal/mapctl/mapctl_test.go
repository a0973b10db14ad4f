package mapctl

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amou/memorymap/internal/geocode"
	"github.com/amou/memorymap/pkg/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fast timers so the state machine can be exercised in real time
var testConfig = Config{
	HoverShowDelay: 30 * time.Millisecond,
	HoverHideDelay: 20 * time.Millisecond,
	SearchDebounce: 20 * time.Millisecond,
	SelectSettle:   50 * time.Millisecond,
}

type flight struct {
	target   core.FlyTo
	duration time.Duration
}

type fakeSurface struct {
	mu      sync.Mutex
	zoom    float64
	flights []flight
}

func (s *fakeSurface) FlyTo(target core.FlyTo, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flights = append(s.flights, flight{target: target, duration: duration})
}

func (s *fakeSurface) Zoom() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoom
}

func (s *fakeSurface) Project(pos core.LatLng) (float64, float64) {
	return pos.Lng * 10, pos.Lat * 10
}

func (s *fakeSurface) ViewportSize() (float64, float64) {
	return 800, 600
}

func (s *fakeSurface) setZoom(z float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zoom = z
}

func (s *fakeSurface) lastFlight() (flight, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.flights) == 0 {
		return flight{}, false
	}
	return s.flights[len(s.flights)-1], true
}

func (s *fakeSurface) flightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flights)
}

type fakeSearcher struct {
	mu      sync.Mutex
	queries []string
	results []geocode.Result
	err     error
	block   chan struct{} // when set, Search waits on it
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]geocode.Result, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	block := f.block
	results, err := f.results, f.err
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return results, err
}

func (f *fakeSearcher) queryLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

type fakeLocator struct {
	pos core.LatLng
	err error
}

func (f *fakeLocator) CurrentPosition(ctx context.Context) (core.LatLng, error) {
	return f.pos, f.err
}

// recorder captures everything the controller emits.
type recorder struct {
	mu       sync.Mutex
	renders  []RenderState
	tooltips []*Tooltip
	notices  []string
	selected []core.Memory
	picks    [][4]float64
	results  [][]geocode.Result
}

func (r *recorder) events() Events {
	return Events{
		MemorySelected: func(m core.Memory) {
			r.mu.Lock()
			r.selected = append(r.selected, m)
			r.mu.Unlock()
		},
		CoordinatePicked: func(lat, lng, x, y float64) {
			r.mu.Lock()
			r.picks = append(r.picks, [4]float64{lat, lng, x, y})
			r.mu.Unlock()
		},
		Notice: func(level, message string) {
			r.mu.Lock()
			r.notices = append(r.notices, level+": "+message)
			r.mu.Unlock()
		},
		Tooltip: func(t *Tooltip) {
			r.mu.Lock()
			r.tooltips = append(r.tooltips, t)
			r.mu.Unlock()
		},
		Render: func(rs RenderState) {
			r.mu.Lock()
			r.renders = append(r.renders, rs)
			r.mu.Unlock()
		},
		SearchResults: func(results []geocode.Result) {
			r.mu.Lock()
			r.results = append(r.results, results)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) lastRender() (RenderState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.renders) == 0 {
		return RenderState{}, false
	}
	return r.renders[len(r.renders)-1], true
}

func (r *recorder) selectedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.selected)
}

func (r *recorder) pickCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.picks)
}

func (r *recorder) noticeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notices)
}

func newReadyController(t *testing.T, surface *fakeSurface) (*Controller, *recorder) {
	t.Helper()
	rec := &recorder{}
	c := NewController(Dependencies{Surface: surface}, testConfig, rec.events())
	c.Ready()
	t.Cleanup(c.Destroy)
	return c, rec
}

func mem(id string, lat, lng float64) core.Memory {
	return core.Memory{ID: id, UserID: "u1", Title: "m-" + id, Latitude: lat, Longitude: lng}
}

func markerIDs(rs RenderState) []string {
	var ids []string
	for _, m := range rs.Markers {
		ids = append(ids, m.Memory.ID)
	}
	for _, cl := range rs.Clusters {
		ids = append(ids, cl.MemberIDs...)
	}
	return ids
}

func TestReconcile_MarkerCountMatchesValidMemories(t *testing.T) {
	surface := &fakeSurface{zoom: 3}
	c, rec := newReadyController(t, surface)

	c.Reconcile([]core.Memory{
		mem("a", 48.85, 2.35),
		mem("b", 40.71, -74.0),
		{ID: "bad", Latitude: 200, Longitude: 0}, // invalid, skipped
		mem("c", -33.86, 151.2),
	}, "")

	assert.Equal(t, 3, c.MarkerCount())

	rs, ok := rec.lastRender()
	require.True(t, ok)
	ids := markerIDs(rs)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, ids)
}

func TestReconcile_NoDuplicateIDs(t *testing.T) {
	surface := &fakeSurface{zoom: 3}
	c, rec := newReadyController(t, surface)

	c.Reconcile([]core.Memory{
		mem("a", 10, 10),
		mem("a", 10, 10),
	}, "")

	assert.Equal(t, 1, c.MarkerCount())
	rs, _ := rec.lastRender()
	assert.Len(t, markerIDs(rs), 1)
}

func TestReconcile_Idempotent(t *testing.T) {
	surface := &fakeSurface{zoom: 3}
	c, rec := newReadyController(t, surface)

	list := []core.Memory{mem("a", 48.85, 2.35), mem("b", 40.71, -74.0)}
	c.Reconcile(list, "a")
	first, ok := rec.lastRender()
	require.True(t, ok)

	c.Reconcile(list, "a")
	second, _ := rec.lastRender()

	assert.Equal(t, first, second)
}

func TestReconcile_SelectionStyling(t *testing.T) {
	surface := &fakeSurface{zoom: 3}
	c, rec := newReadyController(t, surface)

	c.Reconcile([]core.Memory{mem("a", 48.85, 2.35), mem("b", 40.71, -74.0)}, "a")

	rs, _ := rec.lastRender()
	require.Len(t, rs.Markers, 2)
	for _, m := range rs.Markers {
		if m.Memory.ID == "a" {
			assert.True(t, m.Style.Selected)
			assert.Equal(t, 48, m.Style.Size)
		} else {
			assert.False(t, m.Style.Selected)
			assert.Equal(t, 36, m.Style.Size)
		}
	}
}

func TestReconcile_BeforeReadyAppliesOnReady(t *testing.T) {
	surface := &fakeSurface{zoom: 3}
	rec := &recorder{}
	c := NewController(Dependencies{Surface: surface}, testConfig, rec.events())
	defer c.Destroy()

	c.Reconcile([]core.Memory{mem("a", 10, 10)}, "")
	_, rendered := rec.lastRender()
	assert.False(t, rendered)
	assert.Equal(t, 0, c.MarkerCount())

	c.Ready()
	assert.Equal(t, 1, c.MarkerCount())
	_, rendered = rec.lastRender()
	assert.True(t, rendered)
}

func TestDestroy_OperationsBecomeNoOps(t *testing.T) {
	surface := &fakeSurface{zoom: 3}
	c, rec := newReadyController(t, surface)

	c.Reconcile([]core.Memory{mem("a", 10, 10)}, "")
	c.Destroy()

	c.Reconcile([]core.Memory{mem("b", 20, 20)}, "")
	c.MarkerClick("a")
	c.MouseOver("a")

	assert.Equal(t, 0, c.MarkerCount())
	assert.Equal(t, 0, surface.flightCount())
	time.Sleep(2 * testConfig.HoverShowDelay)
	assert.Nil(t, c.ActiveTooltip())
	assert.Equal(t, 0, rec.selectedCount())
}

func TestTooltip_ShowsAfterHoverDelay(t *testing.T) {
	surface := &fakeSurface{zoom: 5}
	c, _ := newReadyController(t, surface)

	m := mem("a", 48.85, 2.35)
	m.Category = "travel"
	c.Reconcile([]core.Memory{m}, "")
	c.MouseOver("a")

	assert.Nil(t, c.ActiveTooltip())
	time.Sleep(2 * testConfig.HoverShowDelay)

	tip := c.ActiveTooltip()
	require.NotNil(t, tip)
	assert.Equal(t, "a", tip.Memory.ID)
	assert.Equal(t, 5.0, tip.Zoom)
	assert.NotEmpty(t, tip.Topic)
	assert.Equal(t, "✈️ Travel", tip.Category)
}

func TestTooltip_MouseOutBeforeDelayNeverShows(t *testing.T) {
	surface := &fakeSurface{zoom: 5}
	c, _ := newReadyController(t, surface)

	c.Reconcile([]core.Memory{mem("a", 48.85, 2.35)}, "")
	c.MouseOver("a")
	time.Sleep(testConfig.HoverShowDelay / 3)
	c.MouseOut("a")

	time.Sleep(3 * testConfig.HoverShowDelay)
	assert.Nil(t, c.ActiveTooltip())
}

func TestTooltip_NewMarkerSupersedesPending(t *testing.T) {
	surface := &fakeSurface{zoom: 5}
	c, _ := newReadyController(t, surface)

	c.Reconcile([]core.Memory{mem("a", 48.85, 2.35), mem("b", 40.71, -74.0)}, "")
	c.MouseOver("a")
	time.Sleep(testConfig.HoverShowDelay / 3)
	c.MouseOver("b")

	time.Sleep(3 * testConfig.HoverShowDelay)
	tip := c.ActiveTooltip()
	require.NotNil(t, tip)
	assert.Equal(t, "b", tip.Memory.ID)
}

func TestTooltip_HidesAfterMouseOut(t *testing.T) {
	surface := &fakeSurface{zoom: 5}
	c, _ := newReadyController(t, surface)

	c.Reconcile([]core.Memory{mem("a", 48.85, 2.35)}, "")
	c.MouseOver("a")
	time.Sleep(2 * testConfig.HoverShowDelay)
	require.NotNil(t, c.ActiveTooltip())

	c.MouseOut("a")
	time.Sleep(3 * testConfig.HoverHideDelay)
	assert.Nil(t, c.ActiveTooltip())
}

func TestTooltip_SurfaceReentryCancelsHide(t *testing.T) {
	surface := &fakeSurface{zoom: 5}
	c, _ := newReadyController(t, surface)

	c.Reconcile([]core.Memory{mem("a", 48.85, 2.35)}, "")
	c.MouseOver("a")
	time.Sleep(2 * testConfig.HoverShowDelay)
	require.NotNil(t, c.ActiveTooltip())

	c.MouseOut("a")
	c.TooltipEnter() // pointer reached the tooltip before the hide fired

	time.Sleep(3 * testConfig.HoverHideDelay)
	assert.NotNil(t, c.ActiveTooltip())

	c.TooltipLeave()
	time.Sleep(3 * testConfig.HoverHideDelay)
	assert.Nil(t, c.ActiveTooltip())
}

func TestMarkerClick_FliesThenSelectsOnce(t *testing.T) {
	surface := &fakeSurface{zoom: 5}
	c, rec := newReadyController(t, surface)

	c.Reconcile([]core.Memory{mem("a", 48.85, 2.35)}, "")
	c.MarkerClick("a")

	// camera flight is immediate, at the zoom floor
	f, ok := surface.lastFlight()
	require.True(t, ok)
	assert.Equal(t, 48.85, f.target.Lat)
	assert.Equal(t, 14.0, f.target.Zoom)

	// selection waits for the flight to settle
	assert.Equal(t, 0, rec.selectedCount())
	time.Sleep(2 * testConfig.SelectSettle)
	require.Equal(t, 1, rec.selectedCount())
	rec.mu.Lock()
	assert.Equal(t, "a", rec.selected[0].ID)
	rec.mu.Unlock()

	// and never fires again
	time.Sleep(2 * testConfig.SelectSettle)
	assert.Equal(t, 1, rec.selectedCount())
}

func TestMarkerClick_KeepsHigherZoom(t *testing.T) {
	surface := &fakeSurface{zoom: 16}
	c, _ := newReadyController(t, surface)

	c.Reconcile([]core.Memory{mem("a", 48.85, 2.35)}, "")
	c.MarkerClick("a")

	f, ok := surface.lastFlight()
	require.True(t, ok)
	assert.Equal(t, 16.0, f.target.Zoom)
}

func TestMarkerClick_ClearsTooltip(t *testing.T) {
	surface := &fakeSurface{zoom: 5}
	c, _ := newReadyController(t, surface)

	c.Reconcile([]core.Memory{mem("a", 48.85, 2.35)}, "")
	c.MouseOver("a")
	time.Sleep(2 * testConfig.HoverShowDelay)
	require.NotNil(t, c.ActiveTooltip())

	c.MarkerClick("a")
	assert.Nil(t, c.ActiveTooltip())
}

func TestSelectMemory_UsesLowerZoomFloor(t *testing.T) {
	surface := &fakeSurface{zoom: 5}
	c, rec := newReadyController(t, surface)

	c.Reconcile([]core.Memory{mem("a", 48.85, 2.35)}, "")
	c.SelectMemory("a")

	f, ok := surface.lastFlight()
	require.True(t, ok)
	assert.Equal(t, 10.0, f.target.Zoom)
	assert.Equal(t, 1, rec.selectedCount())

	// already zoomed in further than the floor: keep the current zoom
	surface.setZoom(13)
	c.SelectMemory("a")
	f, _ = surface.lastFlight()
	assert.Equal(t, 13.0, f.target.Zoom)
}

func TestFlyToLocation_DefaultZoom(t *testing.T) {
	surface := &fakeSurface{zoom: 5}
	c, _ := newReadyController(t, surface)

	c.FlyToLocation(core.FlyTo{Lat: 1, Lng: 2})
	f, ok := surface.lastFlight()
	require.True(t, ok)
	assert.Equal(t, 12.0, f.target.Zoom)

	c.FlyToLocation(core.FlyTo{Lat: 1, Lng: 2, Zoom: 7})
	f, _ = surface.lastFlight()
	assert.Equal(t, 7.0, f.target.Zoom)
}

func TestPlacementMode_PickExactlyOnce(t *testing.T) {
	surface := &fakeSurface{zoom: 5}
	c, rec := newReadyController(t, surface)

	// inactive: clicks pass through, nothing picked
	c.MapClick(40.0, -73.0)
	assert.Equal(t, 0, rec.pickCount())

	c.SetPlacementMode(true)
	c.MapClick(40.0, -73.0)

	require.Equal(t, 1, rec.pickCount())
	pick := rec.picks[0]
	assert.Equal(t, 40.0, pick[0])
	assert.Equal(t, -73.0, pick[1])
	assert.Equal(t, -730.0, pick[2]) // projected screen x
	assert.Equal(t, 400.0, pick[3])  // projected screen y

	c.SetPlacementMode(false)
	c.MapClick(40.0, -73.0)
	assert.Equal(t, 1, rec.pickCount())
}

func TestSearch_DebouncesToFinalQuery(t *testing.T) {
	surface := &fakeSurface{zoom: 5}
	searcher := &fakeSearcher{results: []geocode.Result{{Lat: 48.85, Lng: 2.35, Name: "Paris"}}}
	rec := &recorder{}
	c := NewController(Dependencies{Surface: surface, Searcher: searcher}, testConfig, rec.events())
	c.Ready()
	defer c.Destroy()

	c.SearchInput("p")
	c.SearchInput("pa")
	c.SearchInput("paris")

	time.Sleep(4 * testConfig.SearchDebounce)
	assert.Equal(t, []string{"paris"}, searcher.queryLog())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.results)
	last := rec.results[len(rec.results)-1]
	require.Len(t, last, 1)
	assert.Equal(t, "Paris", last[0].Name)
}

func TestSearch_FailureSurfacesNoticeAndClears(t *testing.T) {
	surface := &fakeSurface{zoom: 5}
	searcher := &fakeSearcher{err: errors.New("boom")}
	rec := &recorder{}
	c := NewController(Dependencies{Surface: surface, Searcher: searcher}, testConfig, rec.events())
	c.Ready()
	defer c.Destroy()

	c.SearchInput("paris")
	time.Sleep(4 * testConfig.SearchDebounce)

	assert.Equal(t, 1, rec.noticeCount())
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.results)
	assert.Empty(t, rec.results[len(rec.results)-1])
}

func TestSearch_StaleResponseDropped(t *testing.T) {
	surface := &fakeSurface{zoom: 5}
	block := make(chan struct{})
	searcher := &fakeSearcher{
		results: []geocode.Result{{Lat: 1, Lng: 2, Name: "stale"}},
		block:   block,
	}
	rec := &recorder{}
	c := NewController(Dependencies{Surface: surface, Searcher: searcher}, testConfig, rec.events())
	c.Ready()
	defer c.Destroy()

	c.SearchInput("paris")
	time.Sleep(2 * testConfig.SearchDebounce) // debounce fired, Search now blocked

	c.SearchInput("") // input cleared while the request is in flight
	close(block)
	time.Sleep(2 * testConfig.SearchDebounce)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, rs := range rec.results {
		assert.Empty(t, rs, "stale search response must not surface")
	}
}

func TestSelectSearchResult_FliesToFixedZoom(t *testing.T) {
	surface := &fakeSurface{zoom: 5}
	c, _ := newReadyController(t, surface)

	c.SelectSearchResult(geocode.Result{Lat: 48.85, Lng: 2.35})
	f, ok := surface.lastFlight()
	require.True(t, ok)
	assert.Equal(t, 15.0, f.target.Zoom)
	assert.Equal(t, 1500*time.Millisecond, f.duration)
}

func TestLocateMe_Success(t *testing.T) {
	surface := &fakeSurface{zoom: 5}
	rec := &recorder{}
	c := NewController(Dependencies{
		Surface: surface,
		Locator: &fakeLocator{pos: core.LatLng{Lat: 51.5, Lng: -0.12}},
	}, testConfig, rec.events())
	c.Ready()
	defer c.Destroy()

	c.LocateMe()
	require.Eventually(t, func() bool { return surface.flightCount() > 0 },
		time.Second, 5*time.Millisecond)

	f, _ := surface.lastFlight()
	assert.Equal(t, 51.5, f.target.Lat)
	assert.Equal(t, 14.0, f.target.Zoom)
}

func TestLocateMe_FailureSurfacesNotice(t *testing.T) {
	surface := &fakeSurface{zoom: 5}
	rec := &recorder{}
	c := NewController(Dependencies{
		Surface: surface,
		Locator: &fakeLocator{err: errors.New("denied")},
	}, testConfig, rec.events())
	c.Ready()
	defer c.Destroy()

	c.LocateMe()
	require.Eventually(t, func() bool { return rec.noticeCount() > 0 },
		time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, surface.flightCount())
}

func TestClusterClick_ZoomsToBounds(t *testing.T) {
	surface := &fakeSurface{zoom: 3}
	c, rec := newReadyController(t, surface)

	// two markers ~0.01 degrees apart cluster at zoom 3
	c.Reconcile([]core.Memory{mem("a", 48.85, 2.35), mem("b", 48.86, 2.36)}, "")

	rs, _ := rec.lastRender()
	require.Len(t, rs.Clusters, 1)
	assert.Equal(t, 2, rs.Clusters[0].Style.Count)

	c.ClusterClick(rs.Clusters[0].ID)
	f, ok := surface.lastFlight()
	require.True(t, ok)
	assert.Greater(t, f.target.Zoom, 3.0)
}

func TestClusterClick_SpiderfiesAtMaxZoom(t *testing.T) {
	surface := &fakeSurface{zoom: 3}
	c, rec := newReadyController(t, surface)

	// identical positions never split apart by zooming
	c.Reconcile([]core.Memory{mem("a", 48.85, 2.35), mem("b", 48.85, 2.35)}, "")
	rs, _ := rec.lastRender()
	require.Len(t, rs.Clusters, 1)

	surface.setZoom(22)
	c.ViewportChanged()
	rs, _ = rec.lastRender()
	require.Len(t, rs.Clusters, 1)

	c.ClusterClick(rs.Clusters[0].ID)
	rs, _ = rec.lastRender()
	assert.Empty(t, rs.Clusters)
	require.Len(t, rs.Markers, 2)
	for _, m := range rs.Markers {
		assert.NotNil(t, m.Offset)
	}
	assert.Equal(t, 0, surface.flightCount())
}

func TestViewportChanged_SplitsClustersOnZoomIn(t *testing.T) {
	surface := &fakeSurface{zoom: 3}
	c, rec := newReadyController(t, surface)

	c.Reconcile([]core.Memory{mem("a", 48.85, 2.35), mem("b", 48.86, 2.36)}, "")
	rs, _ := rec.lastRender()
	require.Len(t, rs.Clusters, 1)

	surface.setZoom(16)
	c.ViewportChanged()
	rs, _ = rec.lastRender()
	assert.Empty(t, rs.Clusters)
	assert.Len(t, rs.Markers, 2)
}
