package room

import (
	"fmt"

	"github.com/google/uuid"
)

// RoomIDLength is the length of generated room ids.
const RoomIDLength = 6

// NewRoomID returns a short random room id. Uniqueness is not checked.
func NewRoomID() string {
	return uuid.NewString()[:RoomIDLength]
}

// DeepLink is the link a creator shares to invite players.
func DeepLink(roomID string) string {
	return fmt.Sprintf("trivia://game/%s", roomID)
}
