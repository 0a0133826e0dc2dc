package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"go-chat-relay/internal/auth"
)

// Service holds the conversation operations that sit beside the relay:
// creating chats and groups and reading history.
type Service struct {
	store     Store
	directory Directory
	log       zerolog.Logger
}

func NewService(store Store, directory Directory, log zerolog.Logger) *Service {
	return &Service{
		store:     store,
		directory: directory,
		log:       log.With().Str("component", "conversations").Logger(),
	}
}

// CreateOrGetPrivateChat returns the private chat between the caller and
// recipientID, creating it on first contact.
func (s *Service) CreateOrGetPrivateChat(ctx context.Context, p auth.Principal, recipientID int) (*Conversation, error) {
	if recipientID <= 0 || recipientID == p.ID {
		return nil, fmt.Errorf("%w: recipient must be another user", ErrInvalidRequest)
	}

	exists, err := s.directory.UserExists(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("lookup recipient: %w: %v", ErrPersistence, err)
	}
	if !exists {
		return nil, fmt.Errorf("recipient %d: %w", recipientID, ErrNotFound)
	}

	conv, err := s.store.FindPrivateChat(ctx, p.ID, recipientID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("find private chat: %w: %v", ErrPersistence, err)
	}

	// CreateConversation resolves a racing create to the same chat.
	conv, err = s.store.CreateConversation(ctx, NewConversation{
		Type:         TypePrivate,
		Participants: []int{p.ID, recipientID},
	})
	if err != nil {
		return nil, fmt.Errorf("create private chat: %w: %v", ErrPersistence, err)
	}
	s.log.Info().Int("conversation_id", conv.ID).Int("user_id", p.ID).Int("recipient_id", recipientID).Msg("private chat ready")
	return conv, nil
}

// ListRecentConversations returns the caller's conversations, most recently
// active first.
func (s *Service) ListRecentConversations(ctx context.Context, p auth.Principal) ([]Conversation, error) {
	convs, err := s.store.ListConversationsForUser(ctx, p.ID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w: %v", ErrPersistence, err)
	}
	return convs, nil
}

// History returns a conversation's messages, oldest first. Only
// participants may read it.
func (s *Service) History(ctx context.Context, p auth.Principal, conversationID int) ([]Message, error) {
	if _, err := s.memberConversation(ctx, p.ID, conversationID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w: %v", ErrPersistence, err)
	}
	return msgs, nil
}

// CreateGroup creates a named group whose only participant is the caller.
func (s *Service) CreateGroup(ctx context.Context, p auth.Principal, name string) (*Conversation, error) {
	conv, err := s.store.CreateConversation(ctx, NewConversation{
		Type:         TypeGroup,
		Name:         name,
		Participants: []int{p.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("create group: %w: %v", ErrPersistence, err)
	}
	return conv, nil
}

// JoinGroup adds the caller to a group. Joining twice is harmless.
func (s *Service) JoinGroup(ctx context.Context, p auth.Principal, groupID int) (*Conversation, error) {
	conv, err := s.conversation(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if conv.Type != TypeGroup {
		return nil, fmt.Errorf("conversation %d is not a group: %w", groupID, ErrNotFound)
	}
	if conv.HasParticipant(p.ID) {
		return conv, nil
	}

	if err := s.store.AddParticipant(ctx, groupID, p.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("group %d: %w", groupID, ErrNotFound)
		}
		return nil, fmt.Errorf("join group: %w: %v", ErrPersistence, err)
	}
	return s.conversation(ctx, groupID)
}

// ListGroups returns the groups the caller belongs to.
func (s *Service) ListGroups(ctx context.Context, p auth.Principal) ([]Conversation, error) {
	convs, err := s.ListRecentConversations(ctx, p)
	if err != nil {
		return nil, err
	}
	return lo.Filter(convs, func(c Conversation, _ int) bool {
		return c.Type == TypeGroup
	}), nil
}

// memberConversation loads a conversation and checks userID belongs to it.
func (s *Service) memberConversation(ctx context.Context, userID, conversationID int) (*Conversation, error) {
	conv, err := s.conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, fmt.Errorf("conversation %d: %w", conversationID, ErrForbidden)
	}
	return conv, nil
}

func (s *Service) conversation(ctx context.Context, id int) (*Conversation, error) {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("conversation %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("load conversation %d: %w: %v", id, ErrPersistence, err)
	}
	return conv, nil
}
