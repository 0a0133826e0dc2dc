//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mock_store_test.go -package=chat
package chat

import "context"

// Store is the durable side of the chat: conversations and their messages.
// Implementations return ErrNotFound for absent entities. A single write is
// assumed atomic; the relay relies on nothing stronger.
type Store interface {
	// FindPrivateChat returns the private chat between a and b, in either order.
	FindPrivateChat(ctx context.Context, a, b int) (*Conversation, error)
	// CreateConversation creates a conversation. Creating a private chat for a
	// pair that already has one returns the existing chat.
	CreateConversation(ctx context.Context, nc NewConversation) (*Conversation, error)
	GetConversation(ctx context.Context, id int) (*Conversation, error)
	// AddParticipant adds userID to a conversation; adding a member twice is a no-op.
	AddParticipant(ctx context.Context, conversationID, userID int) error
	// AppendMessage is the durability point of a send.
	AppendMessage(ctx context.Context, conversationID, senderID int, content string) (*Message, error)
	SetLatestMessage(ctx context.Context, conversationID, messageID int) error
	// ListMessages returns the conversation's messages oldest first.
	ListMessages(ctx context.Context, conversationID int) ([]Message, error)
	// ListConversationsForUser returns the user's conversations, most recently
	// updated first, with LatestMessage populated.
	ListConversationsForUser(ctx context.Context, userID int) ([]Conversation, error)
}

// Directory answers user lookups the chat layer needs.
type Directory interface {
	UserExists(ctx context.Context, id int) (bool, error)
}

// Presence is told when a user's sessions come and go.
type Presence interface {
	Connected(ctx context.Context, userID int) error
	Disconnected(ctx context.Context, userID int) error
}

type nopPresence struct{}

func (nopPresence) Connected(context.Context, int) error    { return nil }
func (nopPresence) Disconnected(context.Context, int) error { return nil }
