package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
)

// memoryStore is an in-process Store for tests.
type memoryStore struct {
	mu            sync.Mutex
	clock         time.Time
	conversations map[int]*Conversation
	messages      map[int][]Message
	private       map[string]int
	nextConvID    int
	nextMsgID     int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		clock:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		conversations: make(map[int]*Conversation),
		messages:      make(map[int][]Message),
		private:       make(map[string]int),
	}
}

// tick advances the fake clock so updatedAt ordering is deterministic.
func (s *memoryStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *memoryStore) copyConversation(c *Conversation) *Conversation {
	out := *c
	out.Participants = append([]int(nil), c.Participants...)
	if c.LatestMessageID != nil {
		out.LatestMessageID = lo.ToPtr(*c.LatestMessageID)
	}
	return &out
}

func (s *memoryStore) FindPrivateChat(_ context.Context, a, b int) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.private[privateKey(a, b)]
	if !ok {
		return nil, ErrNotFound
	}
	return s.copyConversation(s.conversations[id]), nil
}

func (s *memoryStore) CreateConversation(_ context.Context, nc NewConversation) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if nc.Type == TypePrivate {
		if len(nc.Participants) != 2 {
			return nil, errors.New("private chat needs two participants")
		}
		if id, ok := s.private[privateKey(nc.Participants[0], nc.Participants[1])]; ok {
			return s.copyConversation(s.conversations[id]), nil
		}
	}

	s.nextConvID++
	now := s.tick()
	c := &Conversation{
		ID:           s.nextConvID,
		Type:         nc.Type,
		Name:         nc.Name,
		Participants: lo.Uniq(nc.Participants),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.conversations[c.ID] = c
	if nc.Type == TypePrivate {
		s.private[privateKey(nc.Participants[0], nc.Participants[1])] = c.ID
	}
	return s.copyConversation(c), nil
}

func (s *memoryStore) GetConversation(_ context.Context, id int) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.copyConversation(c), nil
}

func (s *memoryStore) AddParticipant(_ context.Context, conversationID, userID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	if !lo.Contains(c.Participants, userID) {
		c.Participants = append(c.Participants, userID)
	}
	return nil
}

func (s *memoryStore) AppendMessage(_ context.Context, conversationID, senderID int, content string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}
	s.nextMsgID++
	m := Message{
		ID:             s.nextMsgID,
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      s.tick(),
	}
	s.messages[conversationID] = append(s.messages[conversationID], m)
	return &m, nil
}

func (s *memoryStore) SetLatestMessage(_ context.Context, conversationID, messageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[conversationID]
	if !ok {
		return ErrNotFound
	}
	c.LatestMessageID = lo.ToPtr(messageID)
	c.UpdatedAt = s.tick()
	return nil
}

func (s *memoryStore) ListMessages(_ context.Context, conversationID int) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message{}, s.messages[conversationID]...), nil
}

func (s *memoryStore) ListConversationsForUser(_ context.Context, userID int) ([]Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []Conversation{}
	for _, c := range s.conversations {
		if !lo.Contains(c.Participants, userID) {
			continue
		}
		conv := s.copyConversation(c)
		if c.LatestMessageID != nil {
			if m, ok := lo.Find(s.messages[c.ID], func(m Message) bool { return m.ID == *c.LatestMessageID }); ok {
				conv.LatestMessage = &m
			}
		}
		out = append(out, *conv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

var _ Store = (*memoryStore)(nil)

// memoryDirectory is a fixed set of known user ids.
type memoryDirectory map[int]bool

func (d memoryDirectory) UserExists(_ context.Context, id int) (bool, error) {
	return d[id], nil
}

// recorder is a Subscriber that keeps every frame it accepts.
type recorder struct {
	mu     sync.Mutex
	frames [][]byte
	refuse bool
}

func (r *recorder) Deliver(frame []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refuse {
		return false
	}
	r.frames = append(r.frames, frame)
	return true
}

func (r *recorder) events() []Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return lo.Map(r.frames, func(f []byte, _ int) Envelope { return mustEnvelope(f) })
}

type panicker struct{}

func (panicker) Deliver([]byte) bool { panic("subscriber exploded") }
