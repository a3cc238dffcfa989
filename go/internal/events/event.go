// Package events describes the domain events a room emits after each committed change.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventType names a room event.
type EventType string

const (
	EventTypeRoomCreated     EventType = "RoomCreated"
	EventTypePlayerJoined    EventType = "PlayerJoined"
	EventTypePlayerLeft      EventType = "PlayerLeft"
	EventTypeGameStarted     EventType = "GameStarted"
	EventTypeAnswerSubmitted EventType = "AnswerSubmitted"
	EventTypeTurnAdvanced    EventType = "TurnAdvanced"
	EventTypeGameOver        EventType = "GameOver"
)

// Event is the envelope for every room event.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	RoomID     string          `json:"room_id"`
	Type       EventType       `json:"type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// New builds an event with a fresh id.
func New(roomID string, eventType EventType, at time.Time, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:         uuid.New(),
		RoomID:     roomID,
		Type:       eventType,
		OccurredAt: at.UTC(),
		Payload:    data,
	}, nil
}

// Publisher delivers events to interested parties.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher writes events to the log. It is used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, event Event) error {
	log.Info().
		Str("event_id", event.ID.String()).
		Str("room_id", event.RoomID).
		Str("event_type", string(event.Type)).
		RawJSON("payload", event.Payload).
		Msg("room event")
	return nil
}

// NoOpPublisher drops every event.
type NoOpPublisher struct{}

func (NoOpPublisher) Publish(context.Context, Event) error { return nil }
