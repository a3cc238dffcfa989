// Package roomfeed turns store change notifications into room snapshots.
package roomfeed

import (
	"context"
	"fmt"

	"github.com/mcdev12/trivia/go/internal/docstore"
	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/mcdev12/trivia/go/internal/room"
	"github.com/rs/zerolog/log"
)

// ErrorState is the snapshot delivered in place of a document that could not be read.
func ErrorState(err error) models.RoomState {
	return models.RoomState{Error: err.Error()}
}

// Watch emits the current room state and every later committed state. Store
// and decode failures are emitted as ErrorState snapshots. Absent documents
// are skipped. The channel is closed when ctx is done or the store ends the
// subscription.
func Watch(ctx context.Context, store docstore.Store, roomID string) (<-chan models.RoomState, error) {
	changes, err := store.Subscribe(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("subscribe to room %s: %w", roomID, err)
	}

	out := make(chan models.RoomState, 1)
	go func() {
		defer close(out)
		for c := range changes {
			s, ok := translate(roomID, c)
			if !ok {
				continue
			}
			select {
			case out <- s:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func translate(roomID string, c docstore.Change) (models.RoomState, bool) {
	if c.Err != nil {
		log.Warn().Err(c.Err).Str("room_id", roomID).Msg("room subscription error")
		return ErrorState(c.Err), true
	}
	if !c.Exists {
		return models.RoomState{}, false
	}
	s, err := room.DecodeState(c.Doc)
	if err != nil {
		log.Warn().Err(err).Str("room_id", roomID).Msg("undecodable room document")
		return ErrorState(err), true
	}
	return s, true
}
