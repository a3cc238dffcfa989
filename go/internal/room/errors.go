package room

import "errors"

var (
	// ErrRoomNotFound is returned by mutating operations when the room document is absent.
	ErrRoomNotFound = errors.New("room not found")
	// ErrInvalidRoomID is returned for an empty room id.
	ErrInvalidRoomID = errors.New("invalid room id")
	// ErrInvalidProfile is returned for a profile without an id.
	ErrInvalidProfile = errors.New("invalid profile")
	// ErrNotStarted is returned when answering before the match began.
	ErrNotStarted = errors.New("game not started")
	// ErrGameOver is returned when answering after the match ended.
	ErrGameOver = errors.New("game over")
	// ErrGameInProgress is returned when starting a match that is being played.
	ErrGameInProgress = errors.New("game in progress")
	// ErrEmptyCatalog is returned when no questions can be allocated.
	ErrEmptyCatalog = errors.New("question catalog is empty")
	// ErrNotYourTurn is returned when someone other than the turn holder answers.
	ErrNotYourTurn = errors.New("not your turn")
)
