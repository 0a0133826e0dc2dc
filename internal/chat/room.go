package chat

import (
	"fmt"
	"strconv"
	"strings"
)

// RoomID names a live-delivery scope. Conversation rooms and personal rooms
// share one string space; the prefix keeps conversation 7 and user 7 apart.
type RoomID string

type RoomKind string

const (
	RoomConversation RoomKind = "conversation"
	RoomUser         RoomKind = "user"
)

func ConversationRoom(conversationID int) RoomID {
	return RoomID(string(RoomConversation) + ":" + itoa(conversationID))
}

func UserRoom(userID int) RoomID {
	return RoomID(string(RoomUser) + ":" + itoa(userID))
}

// ParseRoomID validates a client-supplied room id.
func ParseRoomID(s string) (RoomKind, int, error) {
	kind, rawID, ok := strings.Cut(s, ":")
	if !ok {
		return "", 0, fmt.Errorf("%w: room id %q", ErrInvalidRequest, s)
	}
	id, err := strconv.Atoi(rawID)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("%w: room id %q", ErrInvalidRequest, s)
	}
	switch RoomKind(kind) {
	case RoomConversation, RoomUser:
		return RoomKind(kind), id, nil
	default:
		return "", 0, fmt.Errorf("%w: unknown room kind %q", ErrInvalidRequest, kind)
	}
}

func itoa(i int) string { return strconv.Itoa(i) }
