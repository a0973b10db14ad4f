package mapctl

import (
	"time"

	"github.com/amou/memorymap/internal/topic"
	"github.com/amou/memorymap/pkg/core"
)

// MouseOver handles the pointer entering a marker. Any pending hide is
// canceled; a show timer starts and the tooltip appears only if the pointer
// is still on the marker when it fires. Hovering a different marker cancels
// whatever the previous one had pending.
func (c *Controller) MouseOver(id string) {
	c.mu.Lock()
	if c.phase != phaseReady || !c.hasMarkerLocked(id) {
		c.mu.Unlock()
		return
	}

	// cancel any pending hide
	c.hideGen++

	if c.ttTarget == id {
		switch c.ttPhase {
		case tooltipShown, tooltipPendingHide:
			// pointer came back before the hide fired
			c.ttPhase = tooltipShown
			c.mu.Unlock()
			return
		case tooltipPendingShow:
			c.mu.Unlock()
			return
		}
	}

	clearPrev := c.ttShown != nil
	c.ttShown = nil
	c.ttTarget = id
	c.ttPhase = tooltipPendingShow

	c.hoverGen++
	gen := c.hoverGen
	time.AfterFunc(c.cfg.HoverShowDelay, func() {
		c.showTooltip(gen, id)
	})
	c.mu.Unlock()

	if clearPrev {
		c.emitTooltip(nil)
	}
}

// showTooltip is the hover-show timer body. It captures the memory, the
// screen position at fire time, and the current zoom.
func (c *Controller) showTooltip(gen uint64, id string) {
	c.mu.Lock()
	if c.phase != phaseReady || gen != c.hoverGen || c.ttPhase != tooltipPendingShow || c.ttTarget != id {
		c.mu.Unlock()
		return
	}
	m, ok := c.markers[id]
	if !ok {
		c.ttPhase = tooltipIdle
		c.ttTarget = ""
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	// projection happens outside the lock; re-check state before committing
	x, y := c.surface.Project(core.LatLng{Lat: m.Latitude, Lng: m.Longitude})
	zoom := c.surface.Zoom()

	c.mu.Lock()
	if c.phase != phaseReady || gen != c.hoverGen || c.ttPhase != tooltipPendingShow || c.ttTarget != id {
		c.mu.Unlock()
		return
	}
	tip := &Tooltip{
		Memory:   m,
		ScreenX:  x,
		ScreenY:  y,
		Zoom:     zoom,
		Topic:    topic.Generate(m.Description, m.Title),
		Category: core.CategoryLabel(m.Category),
	}
	c.ttPhase = tooltipShown
	c.ttShown = tip
	c.mu.Unlock()

	c.emitTooltip(tip)
}

// MouseOut handles the pointer leaving a marker. A pending show is simply
// canceled; a shown tooltip starts the hide timer, giving the pointer a
// grace window to reach the tooltip surface.
func (c *Controller) MouseOut(id string) {
	c.mu.Lock()
	if c.phase != phaseReady || c.ttTarget != id {
		c.mu.Unlock()
		return
	}

	switch c.ttPhase {
	case tooltipPendingShow:
		c.hoverGen++
		c.ttPhase = tooltipIdle
		c.ttTarget = ""
		c.mu.Unlock()
		return
	case tooltipShown:
		c.ttPhase = tooltipPendingHide
		c.hideGen++
		gen := c.hideGen
		time.AfterFunc(c.cfg.HoverHideDelay, func() {
			c.hideTooltip(gen)
		})
	}
	c.mu.Unlock()
}

// hideTooltip is the hover-hide timer body.
func (c *Controller) hideTooltip(gen uint64) {
	c.mu.Lock()
	if c.phase != phaseReady || gen != c.hideGen || c.ttPhase != tooltipPendingHide {
		c.mu.Unlock()
		return
	}
	c.resetTooltipLocked()
	c.mu.Unlock()

	c.emitTooltip(nil)
}

// TooltipEnter handles the pointer reaching the tooltip surface itself; a
// pending hide is canceled and the tooltip stays up.
func (c *Controller) TooltipEnter() {
	c.mu.Lock()
	if c.phase == phaseReady && c.ttPhase == tooltipPendingHide {
		c.hideGen++
		c.ttPhase = tooltipShown
	}
	c.mu.Unlock()
}

// TooltipLeave handles the pointer leaving the tooltip surface.
func (c *Controller) TooltipLeave() {
	c.mu.Lock()
	if c.phase != phaseReady || c.ttPhase != tooltipShown {
		c.mu.Unlock()
		return
	}
	c.ttPhase = tooltipPendingHide
	c.hideGen++
	gen := c.hideGen
	time.AfterFunc(c.cfg.HoverHideDelay, func() {
		c.hideTooltip(gen)
	})
	c.mu.Unlock()
}

// ActiveTooltip returns the currently shown tooltip, or nil.
func (c *Controller) ActiveTooltip() *Tooltip {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttShown
}

// resetTooltipLocked cancels every tooltip timer and clears the captured
// state. Callers hold c.mu and emit the nil tooltip themselves if one was
// shown.
func (c *Controller) resetTooltipLocked() {
	c.hoverGen++
	c.hideGen++
	c.ttPhase = tooltipIdle
	c.ttTarget = ""
	c.ttShown = nil
}
