package chat

import (
	"time"

	"github.com/samber/lo"
)

// ---------------------------------------------
// 🗄️ Database & API Models
// ---------------------------------------------

type ConversationType string

const (
	TypePrivate ConversationType = "private"
	TypeGroup   ConversationType = "group"
)

type Conversation struct {
	ID              int              `json:"id"`
	Type            ConversationType `json:"type"`
	Name            string           `json:"name,omitempty"`
	Participants    []int            `json:"participants"`
	LatestMessageID *int             `json:"latest_message_id,omitempty"`
	LatestMessage   *Message         `json:"latest_message,omitempty"` // only on listings
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID int) bool {
	return lo.Contains(c.Participants, userID)
}

// NewConversation describes a conversation to create. For private chats
// Participants holds exactly the two users.
type NewConversation struct {
	Type         ConversationType
	Name         string
	Participants []int
}

type Message struct {
	ID             int       `json:"id"`
	ConversationID int       `json:"conversation_id"`
	SenderID       int       `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"` // 🟢 Denormalized on history reads
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// privateKey orders the pair so (a,b) and (b,a) map to one chat.
func privateKey(a, b int) string {
	if a > b {
		a, b = b, a
	}
	return itoa(a) + ":" + itoa(b)
}
