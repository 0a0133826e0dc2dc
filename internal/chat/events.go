package chat

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go-chat-relay/internal/auth"
)

// Event types carried in Envelope.Type.
const (
	EventJoinRoom        = "joinRoom"
	EventLeaveRoom       = "leaveRoom"
	EventSendMessage     = "sendMessage"
	EventReceiveMessage  = "receiveMessage"
	EventNewNotification = "newNotification"
	EventError           = "error"
)

const notificationText = "You have a new message."

// Envelope is the frame format in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ---------------------------------------------
// ⬇️ Inbound payloads
// ---------------------------------------------

type RoomPayload struct {
	RoomID string `json:"roomId" validate:"required,max=64"`
}

type SendMessagePayload struct {
	ConversationID int    `json:"conversationId" validate:"required,gt=0"`
	Content        string `json:"content" validate:"required,max=4096"`
}

// ---------------------------------------------
// ⬆️ Outbound payloads
// ---------------------------------------------

type ReceiveMessage struct {
	Message *Message       `json:"message"`
	Sender  auth.Principal `json:"sender"`
}

type Notification struct {
	Message        string `json:"message"`
	ConversationID int    `json:"conversationId"`
}

type ErrorEvent struct {
	Reason string `json:"reason"`
}

// encodeEvent builds one outbound frame.
func encodeEvent(eventType string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", eventType, err)
	}
	return json.Marshal(Envelope{Type: eventType, Data: raw})
}

// decodeStrict decodes raw into dst and rejects fields dst does not declare.
func decodeStrict(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing data", ErrInvalidRequest)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
