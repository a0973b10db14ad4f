package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/amou/memorymap/internal/channel"
	"github.com/amou/memorymap/internal/dispatcher"
	"github.com/amou/memorymap/internal/geo"
	"github.com/amou/memorymap/internal/geocode"
	"github.com/amou/memorymap/internal/mapctl"
	"github.com/amou/memorymap/pkg/core"
	"github.com/amou/memorymap/pkg/streaming"

	ws "github.com/gorilla/websocket"
)

const (
	sessionSendSize = 256
	writeWait       = 10 * time.Second
	locateWait      = 15 * time.Second
)

// initial camera before the client reports its viewport
const (
	defaultCenterLat = 20
	defaultCenterLng = 0
	defaultZoom      = 2
	defaultViewportW = 1024
	defaultViewportH = 768
)

var upgrader = ws.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// token auth happens before the upgrade; origin policy is CORS's job
	CheckOrigin: func(r *http.Request) bool { return true },
}

// hub tracks live sessions for store-mutation broadcasts.
type hub struct {
	mu       sync.Mutex
	sessions map[*session]struct{}
}

func newHub() *hub {
	return &hub{sessions: make(map[*session]struct{})}
}

func (h *hub) add(s *session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// stats sums marker counts across live sessions and reports the slowest
// recent reconcile.
func (h *hub) stats() (markers int, lastReconcile time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		markers += s.ctl.MarkerCount()
		if d := s.ctl.LastReconcileDuration(); d > lastReconcile {
			lastReconcile = d
		}
	}
	return markers, lastReconcile
}

func (h *hub) broadcast(env streaming.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.sessions {
		s.send(env)
	}
}

// session is one live WebSocket map session with its own controller.
type session struct {
	conn   *ws.Conn
	out    *channel.Buffered[streaming.Envelope]
	done   chan struct{}
	closed sync.Once
	log    *slog.Logger

	userID  string
	ctl     *mapctl.Controller
	surface *remoteSurface
	locator *remoteLocator
}

// send queues an envelope for the write loop. Non-blocking; drops if the
// client cannot keep up.
func (s *session) send(env streaming.Envelope) {
	select {
	case <-s.done:
		return
	default:
	}
	if !s.out.TrySend(env) {
		s.log.Warn("session send buffer full, dropping message",
			"type", env.Type, "buffered", s.out.Len())
	}
}

func (s *session) close() {
	s.closed.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// writeLoop drains the out channel onto the socket.
func (s *session) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case env := <-s.out.Receive():
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				s.log.Warn("session SetWriteDeadline error", "error", err)
				s.close()
				return
			}
			if err := s.conn.WriteJSON(env); err != nil {
				s.log.Warn("session write error", "error", err)
				s.close()
				return
			}
		}
	}
}

// remoteSurface implements mapctl.Surface against a browser client: camera
// commands go out as envelopes, and projection math runs server-side from
// the last reported viewport.
type remoteSurface struct {
	mu     sync.Mutex
	center core.LatLng
	zoom   float64
	width  float64
	height float64
	out    func(streaming.Envelope)
}

func newRemoteSurface(out func(streaming.Envelope)) *remoteSurface {
	return &remoteSurface{
		center: core.LatLng{Lat: defaultCenterLat, Lng: defaultCenterLng},
		zoom:   defaultZoom,
		width:  defaultViewportW,
		height: defaultViewportH,
		out:    out,
	}
}

func (r *remoteSurface) update(p streaming.ViewportPayload) {
	r.mu.Lock()
	r.center = core.LatLng{Lat: p.CenterLat, Lng: p.CenterLng}
	r.zoom = p.Zoom
	if p.Width > 0 {
		r.width = p.Width
	}
	if p.Height > 0 {
		r.height = p.Height
	}
	r.mu.Unlock()
}

func (r *remoteSurface) FlyTo(target core.FlyTo, duration time.Duration) {
	r.mu.Lock()
	r.center = core.LatLng{Lat: target.Lat, Lng: target.Lng}
	r.zoom = target.Zoom
	r.mu.Unlock()

	env, err := streaming.Marshal(streaming.TypeCamera, streaming.CameraPayload{
		Lat:        target.Lat,
		Lng:        target.Lng,
		Zoom:       target.Zoom,
		DurationMS: duration.Milliseconds(),
	})
	if err == nil {
		r.out(env)
	}
}

func (r *remoteSurface) Zoom() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zoom
}

func (r *remoteSurface) Project(pos core.LatLng) (float64, float64) {
	r.mu.Lock()
	center, zoom := r.center, r.zoom
	w, h := r.width, r.height
	r.mu.Unlock()

	p := geo.WorldPixel(pos, zoom)
	c := geo.WorldPixel(center, zoom)
	return p.X - c.X + w/2, p.Y - c.Y + h/2
}

func (r *remoteSurface) ViewportSize() (float64, float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

// remoteLocator implements mapctl.Locator against a browser client: the
// server asks for navigator.geolocation over the socket and waits for the
// reply envelope. One outstanding request at a time; a newer request
// supersedes the waiter of an older one.
type remoteLocator struct {
	out  func(streaming.Envelope)
	done <-chan struct{}

	mu      sync.Mutex
	waiting chan locateReply
}

type locateReply struct {
	pos core.LatLng
	err error
}

func (l *remoteLocator) CurrentPosition(ctx context.Context) (core.LatLng, error) {
	ch := make(chan locateReply, 1)
	l.mu.Lock()
	l.waiting = ch
	l.mu.Unlock()

	env, err := streaming.Marshal(streaming.TypeLocateRequest, struct{}{})
	if err != nil {
		return core.LatLng{}, err
	}
	l.out(env)

	timer := time.NewTimer(locateWait)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.pos, r.err
	case <-timer.C:
		return core.LatLng{}, errors.New("geolocation request timed out")
	case <-ctx.Done():
		return core.LatLng{}, ctx.Err()
	case <-l.done:
		return core.LatLng{}, errors.New("session closed")
	}
}

// deliver hands a geolocation reply to the waiting request, if one is live.
func (l *remoteLocator) deliver(p streaming.LocateResultPayload) {
	l.mu.Lock()
	ch := l.waiting
	l.waiting = nil
	l.mu.Unlock()
	if ch == nil {
		return
	}
	if p.Error != "" {
		ch <- locateReply{err: errors.New(p.Error)}
		return
	}
	ch <- locateReply{pos: core.LatLng{Lat: p.Lat, Lng: p.Lng}}
}

// handleSession upgrades the connection and runs a map session until the
// client disconnects.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := &session{
		conn:   conn,
		out:    channel.NewBuffered[streaming.Envelope](sessionSendSize),
		done:   make(chan struct{}),
		log:    s.log.With("session_user", userID),
		userID: userID,
	}
	sess.surface = newRemoteSurface(sess.send)
	sess.locator = &remoteLocator{out: sess.send, done: sess.done}

	locator := s.deps.Locator
	if locator == nil {
		locator = sess.locator
	}
	sess.ctl = mapctl.NewController(
		mapctl.Dependencies{
			Surface:  sess.surface,
			Searcher: s.deps.Searcher,
			Locator:  locator,
			Logger:   sess.log,
		},
		mapctl.Config{},
		s.sessionEvents(sess),
	)

	s.hub.add(sess)
	go sess.writeLoop()

	sess.ctl.Ready()
	if memories, err := s.deps.Store.ListVisible(userID); err == nil {
		sess.ctl.Reconcile(memories, "")
		s.recordReconcile(sess)
	} else {
		sess.log.Error("initial memory load failed", "error", err)
	}

	s.readLoop(sess)

	sess.ctl.Destroy()
	s.hub.remove(sess)
	sess.close()
}

// sessionEvents bridges controller emissions onto the socket.
func (s *Server) sessionEvents(sess *session) mapctl.Events {
	emit := func(msgType string, payload any) {
		env, err := streaming.Marshal(msgType, payload)
		if err != nil {
			sess.log.Error("encoding session message failed", "type", msgType, "error", err)
			return
		}
		sess.send(env)
	}

	return mapctl.Events{
		Render: func(rs mapctl.RenderState) {
			emit(streaming.TypeRender, rs)
		},
		Tooltip: func(t *mapctl.Tooltip) {
			p := streaming.TooltipPayload{}
			if t != nil {
				m := t.Memory
				p = streaming.TooltipPayload{
					Memory:   &m,
					ScreenX:  t.ScreenX,
					ScreenY:  t.ScreenY,
					Zoom:     t.Zoom,
					Topic:    t.Topic,
					Category: t.Category,
				}
			}
			emit(streaming.TypeTooltip, p)
		},
		MemorySelected: func(m core.Memory) {
			emit(streaming.TypeSelected, m)
		},
		CoordinatePicked: func(lat, lng, x, y float64) {
			emit(streaming.TypePicked, streaming.PickedPayload{
				Lat: lat, Lng: lng, ScreenX: x, ScreenY: y,
			})
		},
		Notice: func(level, message string) {
			emit(streaming.TypeNotice, streaming.NoticePayload{Level: level, Message: message})
		},
		SearchResults: func(results []geocode.Result) {
			wire := make([]streaming.SearchResultPayload, 0, len(results))
			for _, r := range results {
				wire = append(wire, streaming.SearchResultPayload{
					Lat: r.Lat, Lng: r.Lng, Name: r.Name, DisplayName: r.DisplayName,
				})
			}
			emit(streaming.TypeSearchResults, wire)
		},
	}
}

// readLoop pumps client envelopes through the event dispatcher.
func (s *Server) readLoop(sess *session) {
	for {
		var env streaming.Envelope
		if err := sess.conn.ReadJSON(&env); err != nil {
			select {
			case <-sess.done:
			default:
				s.log.Debug("session read ended", "error", err)
			}
			return
		}

		s.recordInteraction(sess.userID, env.Type)

		if _, err := s.events.Dispatch(dispatcher.Event{
			Name:      env.Type,
			SessionID: sess.userID,
			Payload:   sessionEvent{sess: sess, env: env},
			Timestamp: time.Now(),
		}); err != nil {
			s.log.Debug("session event not handled", "type", env.Type, "error", err)
		}
	}
}

// sessionEvent is the dispatcher payload for one incoming envelope.
type sessionEvent struct {
	sess *session
	env  streaming.Envelope
}

// sessionHandler adapts a typed payload handler to the dispatcher contract.
// Handlers run on the session's read goroutine, so per-session ordering is
// preserved.
func sessionHandler[P any](apply func(*session, P)) dispatcher.HandlerFunc {
	return func(e dispatcher.Event) (any, error) {
		se, ok := e.Payload.(sessionEvent)
		if !ok {
			return nil, fmt.Errorf("unexpected payload for %s", e.Name)
		}
		var p P
		if len(se.env.Payload) > 0 {
			if err := json.Unmarshal(se.env.Payload, &p); err != nil {
				return nil, fmt.Errorf("decoding %s payload: %w", e.Name, err)
			}
		}
		apply(se.sess, p)
		return "ok", nil
	}
}

// registerSessionHandlers binds every client message type to its controller
// operation.
func (s *Server) registerSessionHandlers() {
	d := s.events

	d.Register(streaming.TypeViewport, sessionHandler(func(sess *session, p streaming.ViewportPayload) {
		sess.surface.update(p)
		sess.ctl.ViewportChanged()
	}))
	d.Register(streaming.TypeReconcile, sessionHandler(func(sess *session, p streaming.ReconcilePayload) {
		sess.ctl.Reconcile(p.Memories, p.Selected)
		s.recordReconcile(sess)
	}), dispatcher.Logged())
	d.Register(streaming.TypeMouseOver, sessionHandler(func(sess *session, p streaming.TargetPayload) {
		sess.ctl.MouseOver(p.ID)
	}))
	d.Register(streaming.TypeMouseOut, sessionHandler(func(sess *session, p streaming.TargetPayload) {
		sess.ctl.MouseOut(p.ID)
	}))
	d.Register(streaming.TypeTooltipEnter, sessionHandler(func(sess *session, _ struct{}) {
		sess.ctl.TooltipEnter()
	}))
	d.Register(streaming.TypeTooltipLeave, sessionHandler(func(sess *session, _ struct{}) {
		sess.ctl.TooltipLeave()
	}))
	d.Register(streaming.TypeMarkerClick, sessionHandler(func(sess *session, p streaming.TargetPayload) {
		sess.ctl.MarkerClick(p.ID)
	}))
	d.Register(streaming.TypeClusterClick, sessionHandler(func(sess *session, p streaming.TargetPayload) {
		sess.ctl.ClusterClick(p.ID)
	}))
	d.Register(streaming.TypeMapClick, sessionHandler(func(sess *session, p streaming.MapClickPayload) {
		sess.ctl.MapClick(p.Lat, p.Lng)
	}))
	d.Register(streaming.TypePlacementMode, sessionHandler(func(sess *session, p streaming.PlacementModePayload) {
		sess.ctl.SetPlacementMode(p.Active)
	}))
	d.Register(streaming.TypeSelectMemory, sessionHandler(func(sess *session, p streaming.TargetPayload) {
		sess.ctl.SelectMemory(p.ID)
	}))
	d.Register(streaming.TypeFlyTo, sessionHandler(func(sess *session, p streaming.CameraPayload) {
		sess.ctl.FlyToLocation(core.FlyTo{Lat: p.Lat, Lng: p.Lng, Zoom: p.Zoom})
	}))
	d.Register(streaming.TypeSearch, sessionHandler(func(sess *session, p streaming.SearchPayload) {
		sess.ctl.SearchInput(p.Query)
	}), dispatcher.Logged())
	d.Register(streaming.TypeLocate, sessionHandler(func(sess *session, _ struct{}) {
		sess.ctl.LocateMe()
	}))
	d.Register(streaming.TypeLocateResult, sessionHandler(func(sess *session, p streaming.LocateResultPayload) {
		sess.locator.deliver(p)
	}))
}

func (s *Server) recordInteraction(userID, kind string) {
	if s.deps.Influx == nil {
		return
	}
	if err := s.deps.Influx.RecordInteraction(context.Background(), userID, kind); err != nil {
		s.log.Debug("recording interaction metric failed", "error", err)
	}
}

func (s *Server) recordReconcile(sess *session) {
	if s.deps.Influx == nil {
		return
	}
	err := s.deps.Influx.RecordReconcile(context.Background(), sess.userID,
		sess.ctl.MarkerCount(), sess.ctl.LastReconcileDuration())
	if err != nil {
		s.log.Debug("recording reconcile metric failed", "error", err)
	}
}
