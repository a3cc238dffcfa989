package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/trivia/go/internal/docstore"
	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/mcdev12/trivia/go/internal/roomfeed"
	"github.com/mcdev12/trivia/go/internal/turntimer"
	"github.com/rs/zerolog/log"
)

const (
	MessageTypeState = "state"
	MessageTypeTick  = "tick"
)

// Message is the envelope pushed to room sessions.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// TickData reports the countdown of the turn in play.
type TickData struct {
	PlayerID    string `json:"player_id"`
	Round       int    `json:"round"`
	RemainingMs int64  `json:"remaining_ms"`
}

// SessionManager tracks the WebSocket sessions observing each room
type SessionManager struct {
	store     docstore.Store
	forfeiter turntimer.Forfeiter
	clock     clockwork.Clock
	upgrader  websocket.Upgrader
	config    ConnectionConfig

	// Parent of every session context; cancelled by Shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.RWMutex
	rooms map[string]map[*Session]bool
}

// Session is one WebSocket observer of a room
type Session struct {
	ID       string
	PlayerID string
	RoomID   string

	conn    *websocket.Conn
	send    chan []byte
	manager *SessionManager
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once

	ConnectedAt time.Time
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      64,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewSessionManager(store docstore.Store, forfeiter turntimer.Forfeiter, clock clockwork.Clock, config ConnectionConfig) *SessionManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		store:     store,
		forfeiter: forfeiter,
		clock:     clock,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
		ctx:    ctx,
		cancel: cancel,
		rooms:  make(map[string]map[*Session]bool),
	}
}

// Upgrade upgrades the request and starts streaming roomID to the client.
// The session runs the turn timer on behalf of playerID.
func (sm *SessionManager) Upgrade(w http.ResponseWriter, r *http.Request, roomID, playerID string) error {
	conn, err := sm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	ctx, cancel := context.WithCancel(sm.ctx)
	s := &Session{
		ID:          uuid.New().String(),
		PlayerID:    playerID,
		RoomID:      roomID,
		conn:        conn,
		send:        make(chan []byte, sm.config.SendBuffer),
		manager:     sm,
		ctx:         ctx,
		cancel:      cancel,
		ConnectedAt: sm.clock.Now(),
	}

	feed, err := roomfeed.Watch(ctx, sm.store, roomID)
	if err != nil {
		cancel()
		_ = conn.Close()
		return err
	}

	watcher := turntimer.New(ctx, roomID, playerID, sm.forfeiter,
		turntimer.WithClock(sm.clock),
		turntimer.WithTick(func(turn models.TurnKey, remaining time.Duration) {
			s.enqueue(Message{Type: MessageTypeTick, Data: TickData{
				PlayerID:    turn.PlayerID,
				Round:       turn.Round,
				RemainingMs: remaining.Milliseconds(),
			}})
		}),
	)

	sm.register(s)

	go s.observe(feed, watcher)
	go s.writePump()
	go s.readPump()

	log.Info().
		Str("session_id", s.ID).
		Str("player_id", playerID).
		Str("room_id", roomID).
		Msg("WebSocket session established")
	return nil
}

func (sm *SessionManager) register(s *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.rooms[s.RoomID] == nil {
		sm.rooms[s.RoomID] = make(map[*Session]bool)
	}
	sm.rooms[s.RoomID][s] = true

	log.Debug().
		Str("session_id", s.ID).
		Str("room_id", s.RoomID).
		Int("total_sessions", len(sm.rooms[s.RoomID])).
		Msg("session registered")
}

func (sm *SessionManager) unregister(s *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sessions, ok := sm.rooms[s.RoomID]
	if !ok {
		return
	}
	if _, ok := sessions[s]; !ok {
		return
	}
	delete(sessions, s)
	if len(sessions) == 0 {
		delete(sm.rooms, s.RoomID)
	}

	log.Info().
		Str("session_id", s.ID).
		Str("player_id", s.PlayerID).
		Str("room_id", s.RoomID).
		Msg("session unregistered")
}

// Stats summarises the open sessions.
type Stats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveRooms      int            `json:"active_rooms"`
	RoomConnections  map[string]int `json:"room_connections"`
}

func (sm *SessionManager) Stats() Stats {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	st := Stats{ActiveRooms: len(sm.rooms), RoomConnections: make(map[string]int, len(sm.rooms))}
	for roomID, sessions := range sm.rooms {
		st.TotalConnections += len(sessions)
		st.RoomConnections[roomID] = len(sessions)
	}
	return st
}

// Shutdown closes every session.
func (sm *SessionManager) Shutdown() {
	sm.cancel()

	sm.mu.RLock()
	var open []*Session
	for _, sessions := range sm.rooms {
		for s := range sessions {
			open = append(open, s)
		}
	}
	sm.mu.RUnlock()

	for _, s := range open {
		s.close()
	}
}

// observe forwards snapshots to the client and the turn timer until the feed ends.
func (s *Session) observe(feed <-chan models.RoomState, watcher *turntimer.Watcher) {
	defer func() {
		watcher.Stop()
		s.close()
	}()

	for state := range feed {
		if state.Error == "" {
			watcher.Observe(state)
		}
		s.enqueue(Message{Type: MessageTypeState, Data: state})
	}
}

func (s *Session) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Msg("failed to marshal session message")
		return
	}

	select {
	case <-s.ctx.Done():
	case s.send <- data:
	default:
		log.Warn().
			Str("session_id", s.ID).
			Str("player_id", s.PlayerID).
			Msg("session send buffer full, closing session")
		go s.close()
	}
}

func (s *Session) close() {
	s.once.Do(func() {
		s.cancel()
		s.manager.unregister(s)
		_ = s.conn.Close()
	})
}

// writePump handles sending messages to the WebSocket connection
func (s *Session) writePump() {
	cfg := s.manager.config
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-s.ctx.Done():
			_ = s.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("session_id", s.ID).Msg("failed to write message to WebSocket")
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("session_id", s.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump keeps the read deadline fresh and notices when the client goes away.
func (s *Session) readPump() {
	cfg := s.manager.config
	defer s.close()

	s.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("session_id", s.ID).Msg("unexpected WebSocket close error")
			}
			return
		}

		log.Debug().
			Str("session_id", s.ID).
			Str("player_id", s.PlayerID).
			Int("bytes", len(message)).
			Msg("received client message")
		_ = s.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	}
}
