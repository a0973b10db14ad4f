package streaming

import (
	"encoding/json"

	"github.com/amou/memorymap/pkg/core"
)

// Client-to-server message types for a map session.
const (
	TypeReconcile     = "reconcile"      // replace the session's memory list
	TypeMouseOver     = "mouse_over"     // pointer entered a marker
	TypeMouseOut      = "mouse_out"      // pointer left a marker
	TypeTooltipEnter  = "tooltip_enter"  // pointer entered the tooltip surface
	TypeTooltipLeave  = "tooltip_leave"  // pointer left the tooltip surface
	TypeMarkerClick   = "marker_click"   // marker clicked
	TypeClusterClick  = "cluster_click"  // cluster clicked
	TypeMapClick      = "map_click"      // bare map clicked
	TypePlacementMode = "placement_mode" // toggle placement mode
	TypeSelectMemory  = "select_memory"  // list-driven selection
	TypeFlyTo         = "fly_to"         // external camera directive
	TypeSearch        = "search"         // location search text changed
	TypeLocate        = "locate"         // locate-me request
	TypeLocateResult  = "locate_result"  // browser geolocation reply
	TypeViewport      = "viewport"       // client viewport changed (pan/zoom)
)

// Server-to-client message types.
const (
	TypeRender        = "render"         // full marker/cluster render state
	TypeCamera        = "camera"         // camera fly command
	TypeTooltip       = "tooltip"        // tooltip shown or cleared
	TypeSelected      = "selected"       // memory-selected event
	TypePicked        = "picked"         // placement-mode coordinate pick
	TypeNotice        = "notice"         // transient user-visible notice
	TypeSearchResults = "search_results" // geocoding results
	TypeMemoryChanged = "memory_changed" // store mutation broadcast
	TypeLocateRequest = "locate_request" // ask the browser for its position
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Marshal builds an Envelope around the JSON encoding of payload.
func Marshal(msgType string, payload any) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, Payload: raw}, nil
}

// ReconcilePayload carries the full memory list for a session.
type ReconcilePayload struct {
	Memories []core.Memory `json:"memories"`
	Selected string        `json:"selected,omitempty"`
}

// TargetPayload references a marker or cluster by id.
type TargetPayload struct {
	ID string `json:"id"`
}

// MapClickPayload carries a bare map click.
type MapClickPayload struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PlacementModePayload toggles placement mode.
type PlacementModePayload struct {
	Active bool `json:"active"`
}

// SearchPayload carries free-text location search input.
type SearchPayload struct {
	Query string `json:"query"`
}

// CameraPayload is a camera fly command.
type CameraPayload struct {
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Zoom       float64 `json:"zoom"`
	DurationMS int64   `json:"duration_ms"`
}

// PickedPayload is a placement-mode coordinate pick, with the on-screen
// pixel position the caller needs to anchor a popup.
type PickedPayload struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	ScreenX float64 `json:"screen_x"`
	ScreenY float64 `json:"screen_y"`
}

// TooltipPayload describes the single active tooltip; a nil Memory clears it.
type TooltipPayload struct {
	Memory   *core.Memory `json:"memory,omitempty"`
	ScreenX  float64      `json:"screen_x"`
	ScreenY  float64      `json:"screen_y"`
	Zoom     float64      `json:"zoom"`
	Topic    string       `json:"topic,omitempty"`
	Category string       `json:"category,omitempty"`
}

// NoticePayload is a transient toast-style message.
type NoticePayload struct {
	Level   string `json:"level"` // "info", "success", "error"
	Message string `json:"message"`
}

// ViewportPayload reports the client's current camera and viewport size.
type ViewportPayload struct {
	CenterLat float64 `json:"center_lat"`
	CenterLng float64 `json:"center_lng"`
	Zoom      float64 `json:"zoom"`
	Width     float64 `json:"width"`
	Height    float64 `json:"height"`
}

// SearchResultPayload is one geocoding candidate on the wire.
type SearchResultPayload struct {
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Name        string  `json:"name,omitempty"`
	DisplayName string  `json:"display_name"`
}

// LocateResultPayload is the browser's answer to a locate request. A
// non-empty Error means geolocation was denied or unavailable.
type LocateResultPayload struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Error string  `json:"error,omitempty"`
}

// MemoryChangedPayload broadcasts a store mutation.
type MemoryChangedPayload struct {
	Action string       `json:"action"` // "created", "updated", "deleted"
	ID     string       `json:"id"`
	Memory *core.Memory `json:"memory,omitempty"`
}
