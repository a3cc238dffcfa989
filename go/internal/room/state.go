package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/trivia/go/internal/docstore"
	"github.com/mcdev12/trivia/go/internal/models"
)

// DecodeState parses a stored room document.
func DecodeState(doc []byte) (models.RoomState, error) {
	var s models.RoomState
	if err := json.Unmarshal(doc, &s); err != nil {
		return models.RoomState{}, fmt.Errorf("decode room: %w", err)
	}
	if s.Scores == nil {
		s.Scores = map[string]int{}
	}
	return s, nil
}

func encodeState(s models.RoomState) ([]byte, error) {
	s.Error = ""
	doc, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode room: %w", err)
	}
	return doc, nil
}

func notFound(roomID string, err error) error {
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%s: %w", roomID, ErrRoomNotFound)
	}
	return err
}

func loadState(ctx context.Context, store docstore.Store, roomID string) (models.RoomState, error) {
	doc, err := store.Get(ctx, roomID)
	if err != nil {
		return models.RoomState{}, notFound(roomID, err)
	}
	return DecodeState(doc)
}

// deriveFunc computes the next state from a snapshot. Returning docstore.ErrAbort
// leaves the document untouched.
type deriveFunc func(cur models.RoomState) (models.RoomState, error)

// updateState runs derive inside a store transaction. It returns the state the
// final attempt produced, or the snapshot it read when that attempt aborted,
// and whether a write was committed.
func updateState(ctx context.Context, store docstore.Store, roomID string, derive deriveFunc) (models.RoomState, bool, error) {
	var (
		result models.RoomState
		wrote  bool
	)
	err := store.RunTransaction(ctx, roomID, func(doc []byte) ([]byte, error) {
		wrote = false
		cur, err := DecodeState(doc)
		if err != nil {
			return nil, err
		}
		result = cur

		next, err := derive(cur.Clone())
		if err != nil {
			return nil, err
		}
		out, err := encodeState(next)
		if err != nil {
			return nil, err
		}
		result, wrote = next, true
		return out, nil
	})
	if err != nil {
		return models.RoomState{}, false, notFound(roomID, err)
	}
	return result, wrote, nil
}
