package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"go-chat-relay/internal/auth"
	"go-chat-relay/internal/metrics"
)

// Relay turns a submitted message into a durable one and fans it out.
//
// A send moves through Received → AuthorizedMember → Persisted → Broadcast
// → NotificationsSent. Anything failing before Persisted aborts the send
// with no side effects. After Persisted the send has succeeded: the latest
// pointer update, the room broadcast and the notifications are best effort
// and their failures are only logged.
type Relay struct {
	store    Store
	registry *Registry
	log      zerolog.Logger
	locks    *keyedMutex
}

func NewRelay(store Store, registry *Registry, log zerolog.Logger) *Relay {
	return &Relay{
		store:    store,
		registry: registry,
		log:      log.With().Str("component", "relay").Logger(),
		locks:    newKeyedMutex(),
	}
}

// SendMessage persists content from sender into the conversation and
// delivers it live. The returned error is one of ErrNotFound, ErrForbidden
// or ErrPersistence; none is ever caused by live delivery.
func (r *Relay) SendMessage(ctx context.Context, sender auth.Principal, conversationID int, content string) (*Message, error) {
	conv, err := r.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.RelayRejections.WithLabelValues("not_found").Inc()
			return nil, fmt.Errorf("conversation %d: %w", conversationID, ErrNotFound)
		}
		metrics.RelayRejections.WithLabelValues("persistence").Inc()
		return nil, fmt.Errorf("load conversation %d: %w: %v", conversationID, ErrPersistence, err)
	}

	if !conv.HasParticipant(sender.ID) {
		metrics.RelayRejections.WithLabelValues("forbidden").Inc()
		r.log.Warn().
			Int("conversation_id", conversationID).
			Int("user_id", sender.ID).
			Msg("send rejected: sender is not a participant")
		return nil, fmt.Errorf("conversation %d: %w", conversationID, ErrForbidden)
	}

	// Holding the conversation lock from append to broadcast makes live
	// delivery order match commit order for this conversation.
	unlock := r.locks.lock(conversationID)
	defer unlock()

	start := time.Now()
	msg, err := r.store.AppendMessage(ctx, conversationID, sender.ID, content)
	metrics.PersistLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RelayRejections.WithLabelValues("persistence").Inc()
		return nil, fmt.Errorf("append message: %w: %v", ErrPersistence, err)
	}
	msg.SenderName = sender.Username

	r.afterPersist(ctx, conv, sender, msg)
	return msg, nil
}

// afterPersist runs every step past the durability point. Nothing here may
// fail the send.
func (r *Relay) afterPersist(ctx context.Context, conv *Conversation, sender auth.Principal, msg *Message) {
	log := r.log.With().Int("conversation_id", conv.ID).Int("message_id", msg.ID).Logger()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("live delivery aborted")
		}
	}()

	if err := r.store.SetLatestMessage(ctx, conv.ID, msg.ID); err != nil {
		log.Error().Err(err).Msg("failed to update latest message pointer")
	}

	frame, err := encodeEvent(EventReceiveMessage, ReceiveMessage{Message: msg, Sender: sender})
	if err != nil {
		log.Error().Err(err).Msg("failed to encode message event")
	} else {
		r.broadcast(log, ConversationRoom(conv.ID), frame)
	}

	frame, err = encodeEvent(EventNewNotification, Notification{
		Message:        notificationText,
		ConversationID: conv.ID,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to encode notification")
		return
	}
	for _, userID := range lo.Without(conv.Participants, sender.ID) {
		r.broadcast(log, UserRoom(userID), frame)
	}
}

func (r *Relay) broadcast(log zerolog.Logger, room RoomID, frame []byte) {
	delivered, dropped := r.registry.Broadcast(room, frame)
	metrics.Deliveries.WithLabelValues("delivered").Add(float64(delivered))
	if dropped > 0 {
		metrics.Deliveries.WithLabelValues("dropped").Add(float64(dropped))
		log.Warn().Str("room", string(room)).Int("dropped", dropped).Msg("live delivery dropped")
	}
}

// keyedMutex hands out one mutex per conversation and forgets it once no
// goroutine holds or waits on it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int]*refMutex)}
}

func (k *keyedMutex) lock(key int) (unlock func()) {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
