package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/mcdev12/trivia/go/internal/docstore"
	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/mcdev12/trivia/go/internal/room"
	"github.com/rs/zerolog/log"
)

// RoomHandler serves the room REST endpoints.
type RoomHandler struct {
	machine *room.Machine
}

func NewRoomHandler(machine *room.Machine) *RoomHandler {
	return &RoomHandler{machine: machine}
}

type profileRequest struct {
	Profile models.Profile `json:"profile"`
}

type answerRequest struct {
	PlayerID string `json:"player_id"`
	Option   string `json:"option"`
}

type createRoomResponse struct {
	RoomID string           `json:"room_id"`
	Link   string           `json:"link"`
	State  models.RoomState `json:"state"`
}

type validateResponse struct {
	Result string `json:"result"`
	Reason string `json:"reason,omitempty"`
}

// Create handles POST /api/rooms
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	roomID := room.NewRoomID()
	s, err := h.machine.CreateRoom(r.Context(), roomID, req.Profile)
	if err != nil {
		writeRoomError(w, roomID, err)
		return
	}

	writeJSON(w, http.StatusCreated, createRoomResponse{
		RoomID: roomID,
		Link:   room.DeepLink(roomID),
		State:  s,
	})
}

// Get handles GET /api/rooms/{roomID}
func (h *RoomHandler) Get(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]

	s, err := h.machine.Get(r.Context(), roomID)
	if err != nil {
		writeRoomError(w, roomID, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Validate handles GET /api/rooms/{roomID}/validate
func (h *RoomHandler) Validate(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]

	result := h.machine.ValidateForJoin(r.Context(), roomID)
	resp := validateResponse{Result: room.ResultName(result)}
	if v, ok := result.(room.ValidationError); ok {
		resp.Reason = v.Reason
	}
	writeJSON(w, http.StatusOK, resp)
}

// Join handles POST /api/rooms/{roomID}/join
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.machine.JoinOrUpdate(r.Context(), roomID, req.Profile)
	if err != nil {
		writeRoomError(w, roomID, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Start handles POST /api/rooms/{roomID}/start
func (h *RoomHandler) Start(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]

	s, err := h.machine.StartGame(r.Context(), roomID)
	if err != nil {
		writeRoomError(w, roomID, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Answer handles POST /api/rooms/{roomID}/answer. It returns once the turn
// has advanced.
func (h *RoomHandler) Answer(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.machine.SubmitAnswer(r.Context(), roomID, req.PlayerID, req.Option)
	if err != nil {
		writeRoomError(w, roomID, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Leave handles POST /api/rooms/{roomID}/leave
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomID"]

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s, err := h.machine.LeaveRoom(r.Context(), roomID, req.Profile)
	if err != nil {
		writeRoomError(w, roomID, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// statusFor maps room errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, room.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, room.ErrInvalidRoomID), errors.Is(err, room.ErrInvalidProfile):
		return http.StatusBadRequest
	case errors.Is(err, room.ErrNotStarted),
		errors.Is(err, room.ErrGameOver),
		errors.Is(err, room.ErrGameInProgress),
		errors.Is(err, room.ErrNotYourTurn),
		errors.Is(err, room.ErrEmptyCatalog),
		errors.Is(err, docstore.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeRoomError(w http.ResponseWriter, roomID string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("room_id", roomID).Msg("room operation failed")
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
