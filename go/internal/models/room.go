package models

import (
	"slices"
	"time"
)

// RoomPhase is the lifecycle position of a room, derived from its state.
type RoomPhase string

const (
	RoomPhasePending    RoomPhase = "PENDING"
	RoomPhaseLobby      RoomPhase = "LOBBY"
	RoomPhaseInProgress RoomPhase = "IN_PROGRESS"
	RoomPhaseGameOver   RoomPhase = "GAME_OVER"
)

// RoomState is the shared document for one match.
// TurnStartedAt and TurnDurationMs are Unix milliseconds and milliseconds.
type RoomState struct {
	Profiles            []Profile      `json:"profiles"`
	CurrentTurnPlayerID string         `json:"current_turn_player_id"`
	TurnStartedAt       int64          `json:"turn_started_at"`
	TurnDurationMs      int64          `json:"turn_duration_ms"`
	SessionStarted      bool           `json:"session_started"`
	GameOver            bool           `json:"game_over"`
	CurrentQuestion     string         `json:"current_question"`
	CurrentOptions      []string       `json:"current_options"`
	CorrectOption       string         `json:"correct_option"`
	SelectedOption      string         `json:"selected_option"`
	Answered            bool           `json:"answered"` // an answer or forfeit was recorded for the current turn
	Scores              map[string]int `json:"scores"`
	QuestionPool        []string       `json:"question_pool"`
	UsedQuestions       []string       `json:"used_questions"`
	RoundsPlayed        int            `json:"rounds_played"`
	MaxRounds           int            `json:"max_rounds"`

	// Error is set only on snapshots synthesized from a subscription failure.
	Error string `json:"error,omitempty"`
}

// TurnKey identifies one turn. Two snapshots with equal keys describe the same turn.
type TurnKey struct {
	PlayerID  string `json:"player_id"`
	Round     int    `json:"round"`
	StartedAt int64  `json:"started_at"`
}

// NewRoomState returns a pending room holding only the creator.
func NewRoomState(creator Profile) RoomState {
	return RoomState{
		Profiles:       []Profile{creator},
		Scores:         map[string]int{},
		QuestionPool:   []string{},
		UsedQuestions:  []string{},
		CurrentOptions: []string{},
	}
}

// Clone returns a deep copy so derived values never share slices or maps with s.
func (s RoomState) Clone() RoomState {
	c := s
	c.Profiles = slices.Clone(s.Profiles)
	c.CurrentOptions = slices.Clone(s.CurrentOptions)
	c.QuestionPool = slices.Clone(s.QuestionPool)
	c.UsedQuestions = slices.Clone(s.UsedQuestions)
	c.Scores = make(map[string]int, len(s.Scores))
	for k, v := range s.Scores {
		c.Scores[k] = v
	}
	return c
}

// HasProfile reports whether a profile with id is in the room.
func (s RoomState) HasProfile(id string) bool {
	return s.profileIndex(id) >= 0
}

func (s RoomState) profileIndex(id string) int {
	return slices.IndexFunc(s.Profiles, func(p Profile) bool { return p.ID == id })
}

// WithProfile appends p if its id is not present yet and recomputes
// SessionStarted. A match that has begun stays started.
func (s RoomState) WithProfile(p Profile) RoomState {
	next := s.Clone()
	if !next.HasProfile(p.ID) {
		next.Profiles = append(next.Profiles, p)
	}
	next.SessionStarted = len(next.Profiles) > 1 || s.GameOver || s.CurrentTurnPlayerID != ""
	return next
}

// WithoutProfile removes the profile with id. Nothing else changes.
func (s RoomState) WithoutProfile(id string) RoomState {
	next := s.Clone()
	next.Profiles = slices.DeleteFunc(next.Profiles, func(p Profile) bool { return p.ID == id })
	return next
}

// IsGameOver evaluates the end-of-match predicate against the rounds played so far.
func (s RoomState) IsGameOver() bool {
	return s.RoundsPlayed+1 >= s.MaxRounds || len(s.Profiles) < 2
}

// NextPlayerID returns the profile after the current turn holder, wrapping around.
// An unknown or empty current holder yields the first profile.
func (s RoomState) NextPlayerID() string {
	if len(s.Profiles) == 0 {
		return ""
	}
	i := s.profileIndex(s.CurrentTurnPlayerID)
	if i < 0 {
		// The holder left, so their seat is gone; play restarts at the first profile.
		return s.Profiles[0].ID
	}
	return s.Profiles[(i+1)%len(s.Profiles)].ID
}

// Turn returns the key of the turn in play.
func (s RoomState) Turn() TurnKey {
	return TurnKey{PlayerID: s.CurrentTurnPlayerID, Round: s.RoundsPlayed, StartedAt: s.TurnStartedAt}
}

// InProgress reports whether a turn is being played.
func (s RoomState) InProgress() bool {
	return s.SessionStarted && !s.GameOver && s.CurrentTurnPlayerID != ""
}

// Phase derives the lifecycle phase.
func (s RoomState) Phase() RoomPhase {
	switch {
	case s.GameOver:
		return RoomPhaseGameOver
	case s.CurrentTurnPlayerID != "":
		return RoomPhaseInProgress
	case len(s.Profiles) > 1:
		return RoomPhaseLobby
	default:
		return RoomPhasePending
	}
}

// Leaders returns the ids of the profiles holding the top score, in turn order.
func (s RoomState) Leaders() []string {
	best := -1
	var ids []string
	for _, p := range s.Profiles {
		score := s.Scores[p.ID]
		switch {
		case score > best:
			best = score
			ids = []string{p.ID}
		case score == best:
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// TurnStart returns TurnStartedAt as a time.
func (s RoomState) TurnStart() time.Time {
	return time.UnixMilli(s.TurnStartedAt)
}

// TurnDuration returns TurnDurationMs as a duration.
func (s RoomState) TurnDuration() time.Duration {
	return time.Duration(s.TurnDurationMs) * time.Millisecond
}
