// Package gateway exposes rooms over HTTP and streams room snapshots to
// WebSocket sessions.
package gateway

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/trivia/go/internal/docstore"
	"github.com/mcdev12/trivia/go/internal/room"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// Service wires the REST handlers and the session manager to one room machine
type Service struct {
	rooms    *RoomHandler
	sessions *SessionManager
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	Clock            clockwork.Clock
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		Clock:            clockwork.NewRealClock(),
	}
}

func NewService(config Config, machine *room.Machine, store docstore.Store) *Service {
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	return &Service{
		rooms:    NewRoomHandler(machine),
		sessions: NewSessionManager(store, machine, config.Clock, config.ConnectionConfig),
	}
}

// Router registers every gateway route.
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/rooms", s.rooms.Create).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomID}", s.rooms.Get).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{roomID}/validate", s.rooms.Validate).Methods(http.MethodGet)
	api.HandleFunc("/rooms/{roomID}/join", s.rooms.Join).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomID}/start", s.rooms.Start).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomID}/answer", s.rooms.Answer).Methods(http.MethodPost)
	api.HandleFunc("/rooms/{roomID}/leave", s.rooms.Leave).Methods(http.MethodPost)

	r.HandleFunc("/ws/room", s.HandleRoomSession).Methods(http.MethodGet)
	r.HandleFunc("/ws/stats", s.HandleStats).Methods(http.MethodGet)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	return r
}

// Handler wraps the router with CORS and h2c.
func (s *Service) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	return h2c.NewHandler(c.Handler(s.Router()), &http2.Server{})
}

// HandleRoomSession handles GET /ws/room?room_id=&player_id=
func (s *Service) HandleRoomSession(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("room_id")
	if roomID == "" {
		writeError(w, http.StatusBadRequest, "room_id is required")
		return
	}
	playerID := r.URL.Query().Get("player_id")
	if playerID == "" {
		writeError(w, http.StatusBadRequest, "player_id is required")
		return
	}

	// Upgrade has already written the handshake response on failure.
	if err := s.sessions.Upgrade(w, r, roomID, playerID); err != nil {
		log.Error().
			Err(err).
			Str("room_id", roomID).
			Str("player_id", playerID).
			Msg("failed to open room session")
	}
}

// HandleStats handles GET /ws/stats
func (s *Service) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sessions.Stats())
}

// Shutdown closes every open session.
func (s *Service) Shutdown() {
	s.sessions.Shutdown()
}
