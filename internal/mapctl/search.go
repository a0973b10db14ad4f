package mapctl

import (
	"context"
	"strings"
	"time"

	"github.com/amou/memorymap/internal/geocode"
	"github.com/amou/memorymap/pkg/core"
)

// SearchInput handles location search text changes. The query is debounced;
// a response arriving after the input moved on is dropped. An empty query
// cancels any outstanding search and clears the result list.
func (c *Controller) SearchInput(query string) {
	c.mu.Lock()
	if c.phase != phaseReady {
		c.mu.Unlock()
		return
	}
	c.searchGen++
	gen := c.searchGen

	if strings.TrimSpace(query) == "" {
		c.mu.Unlock()
		c.emitSearchResults(nil)
		return
	}

	time.AfterFunc(c.cfg.SearchDebounce, func() {
		c.runSearch(gen, query)
	})
	c.mu.Unlock()
}

// runSearch is the debounce timer body. The network call happens outside the
// lock; the generation is re-checked before any visible state changes.
func (c *Controller) runSearch(gen uint64, query string) {
	c.mu.Lock()
	if c.phase != phaseReady || gen != c.searchGen {
		c.mu.Unlock()
		return
	}
	searcher := c.searcher
	c.mu.Unlock()

	if searcher == nil {
		return
	}

	results, err := searcher.Search(context.Background(), query)

	c.mu.Lock()
	stale := c.phase != phaseReady || gen != c.searchGen
	c.mu.Unlock()
	if stale {
		return
	}

	if err != nil {
		c.log.Warn("location search failed", "query", query, "error", err)
		c.emitSearchResults(nil)
		c.emitNotice("error", "Location search failed. Please try again.")
		return
	}
	c.emitSearchResults(results)
}

// SelectSearchResult flies the camera to a chosen search result.
func (c *Controller) SelectSearchResult(r geocode.Result) {
	c.mu.Lock()
	if c.phase != phaseReady {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.surface.FlyTo(core.FlyTo{Lat: r.Lat, Lng: r.Lng, Zoom: searchResultZoom}, searchResultFlyDuration)
	c.emitSearchResults(nil)
}

// LocateMe requests the device position and flies to it on success. The
// request runs in the background so other interactions are never blocked.
func (c *Controller) LocateMe() {
	c.mu.Lock()
	if c.phase != phaseReady {
		c.mu.Unlock()
		return
	}
	locator := c.locator
	c.mu.Unlock()

	if locator == nil {
		c.emitNotice("error", "Location is not available on this device.")
		return
	}

	go func() {
		pos, err := locator.CurrentPosition(context.Background())

		c.mu.Lock()
		stale := c.phase != phaseReady
		c.mu.Unlock()
		if stale {
			return
		}

		if err != nil {
			c.log.Warn("geolocation failed", "error", err)
			c.emitNotice("error", "Unable to determine your location.")
			return
		}
		c.surface.FlyTo(core.FlyTo{Lat: pos.Lat, Lng: pos.Lng, Zoom: locateZoom}, locateFlyDuration)
	}()
}
