// Package httpapi is the service's outer surface: JSON auth and memory CRUD
// endpoints plus a WebSocket map-session endpoint that runs one interaction
// controller per connection.
package httpapi

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/amou/memorymap/internal/dispatcher"
	"github.com/amou/memorymap/internal/influx"
	"github.com/amou/memorymap/internal/logging"
	"github.com/amou/memorymap/internal/mapctl"
	"github.com/amou/memorymap/internal/store"

	"github.com/rs/cors"
)

// Dependencies holds the collaborators the API needs.
type Dependencies struct {
	Store      store.Backend
	Searcher   mapctl.Searcher
	Locator    mapctl.Locator
	LogManager *logging.SlogManager
	EventLog   dispatcher.Logger // optional, defaults to the service logger
	Influx     *influx.Manager   // optional
}

// Config holds the API server settings.
type Config struct {
	Addr        string
	JWTSecret   string
	CORSOrigins []string
}

// Server serves the REST API and WebSocket map sessions.
type Server struct {
	deps   Dependencies
	cfg    Config
	log    *slog.Logger
	hub    *hub
	mux    *http.ServeMux
	events *dispatcher.Dispatcher
}

// NewServer wires the routes and returns an unstarted server.
func NewServer(deps Dependencies, cfg Config) (*Server, error) {
	s := &Server{
		deps: deps,
		cfg:  cfg,
		log:  deps.LogManager.Logger(),
		hub:  newHub(),
	}

	var eventLog dispatcher.Logger = s.log
	if deps.EventLog != nil {
		eventLog = deps.EventLog
	}
	events, err := dispatcher.New(eventLog)
	if err != nil {
		return nil, fmt.Errorf("creating event dispatcher: %w", err)
	}
	s.events = events
	s.registerSessionHandlers()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/auth/signin", s.handleSignin)
	mux.Handle("GET /api/auth/me", s.authenticate(http.HandlerFunc(s.handleMe)))

	mux.Handle("GET /api/categories", http.HandlerFunc(s.handleCategories))

	mux.Handle("GET /api/memories", s.authenticate(http.HandlerFunc(s.handleListMemories)))
	mux.Handle("POST /api/memories", s.authenticate(http.HandlerFunc(s.handleCreateMemory)))
	mux.Handle("PUT /api/memories/{id}", s.authenticate(http.HandlerFunc(s.handleUpdateMemory)))
	mux.Handle("DELETE /api/memories/{id}", s.authenticate(http.HandlerFunc(s.handleDeleteMemory)))

	mux.Handle("GET /ws/session", s.authenticate(http.HandlerFunc(s.handleSession)))

	s.mux = mux
	return s, nil
}

// Handler returns the CORS-wrapped root handler.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(s.mux)
}

// SessionCount returns the number of live map sessions.
func (s *Server) SessionCount() int {
	return s.hub.count()
}

// SessionStats reports the rendered marker total across live sessions and
// the slowest recent reconcile.
func (s *Server) SessionStats() (markers int, lastReconcile time.Duration) {
	return s.hub.stats()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
