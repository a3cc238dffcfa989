package events

// Event payload types published by the room machine

// RoomCreatedPayload is the payload for a RoomCreated event
type RoomCreatedPayload struct {
	CreatorID string `json:"creator_id"`
}

// PlayerJoinedPayload is the payload for a PlayerJoined event
type PlayerJoinedPayload struct {
	PlayerID       string `json:"player_id"`
	PlayerName     string `json:"player_name"`
	PlayerCount    int    `json:"player_count"`
	SessionStarted bool   `json:"session_started"`
}

// PlayerLeftPayload is the payload for a PlayerLeft event
type PlayerLeftPayload struct {
	PlayerID    string `json:"player_id"`
	PlayerCount int    `json:"player_count"`
}

// GameStartedPayload is the payload for a GameStarted event
type GameStartedPayload struct {
	FirstPlayerID  string `json:"first_player_id"`
	MaxRounds      int    `json:"max_rounds"`
	TurnDurationMs int64  `json:"turn_duration_ms"`
	PlayerCount    int    `json:"player_count"`
}

// AnswerSubmittedPayload is the payload for an AnswerSubmitted event
type AnswerSubmittedPayload struct {
	PlayerID  string `json:"player_id"`
	Round     int    `json:"round"`
	Correct   bool   `json:"correct"`
	Forfeited bool   `json:"forfeited"`
	Score     int    `json:"score"`
}

// TurnAdvancedPayload is the payload for a TurnAdvanced event
type TurnAdvancedPayload struct {
	PreviousPlayerID string `json:"previous_player_id"`
	NextPlayerID     string `json:"next_player_id"`
	RoundsPlayed     int    `json:"rounds_played"`
	TurnStartedAt    int64  `json:"turn_started_at"`
}

// GameOverPayload is the payload for a GameOver event
type GameOverPayload struct {
	RoundsPlayed int            `json:"rounds_played"`
	Scores       map[string]int `json:"scores"`
	Winners      []string       `json:"winners"`
}
