package room

import (
	"context"
	"errors"

	"github.com/mcdev12/trivia/go/internal/docstore"
)

// ValidationResult is the outcome of ValidateForJoin. It is one of Valid,
// AlreadyStarted, NotFound or ValidationError.
type ValidationResult interface {
	validationResult()
}

// Valid means the room exists and has not started.
type Valid struct{}

// AlreadyStarted means the room's session has begun.
type AlreadyStarted struct{}

// NotFound means no room has that id.
type NotFound struct{}

// ValidationError wraps a store or decoding failure.
type ValidationError struct {
	Reason string
}

func (Valid) validationResult()           {}
func (AlreadyStarted) validationResult()  {}
func (NotFound) validationResult()        {}
func (ValidationError) validationResult() {}

func validate(ctx context.Context, store docstore.Store, roomID string) ValidationResult {
	s, err := loadState(ctx, store, roomID)
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return NotFound{}
	case err != nil:
		return ValidationError{Reason: "Error: " + err.Error()}
	case s.SessionStarted:
		return AlreadyStarted{}
	default:
		return Valid{}
	}
}

// ResultName returns the wire name of r.
func ResultName(r ValidationResult) string {
	switch r.(type) {
	case Valid:
		return "valid"
	case AlreadyStarted:
		return "already_started"
	case NotFound:
		return "not_found"
	case ValidationError:
		return "error"
	default:
		return "unknown"
	}
}
