package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-chat-relay/internal/auth"
	"go-chat-relay/internal/metrics"
)

// Verifier is what we need from the identity layer.
type Verifier interface {
	Verify(credential string) (auth.Principal, error)
}

type HubOptions struct {
	SendBuffer     int           // per-session outbound queue length
	PersistTimeout time.Duration // bound on a websocket-originated send
	MaxMessageSize int64         // largest inbound frame accepted
}

func (o HubOptions) withDefaults() HubOptions {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.PersistTimeout <= 0 {
		o.PersistTimeout = 5 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 8192
	}
	return o
}

// Hub is the process-wide owner of live delivery. It is created at start,
// shared by every connection, and shut down once on exit.
type Hub struct {
	registry *Registry
	relay    *Relay
	service  *Service
	verifier Verifier
	presence Presence
	opts     HubOptions
	log      zerolog.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
}

func NewHub(registry *Registry, relay *Relay, service *Service, verifier Verifier, presence Presence, opts HubOptions, log zerolog.Logger) *Hub {
	if presence == nil {
		presence = nopPresence{}
	}
	return &Hub{
		registry: registry,
		relay:    relay,
		service:  service,
		verifier: verifier,
		presence: presence,
		opts:     opts.withDefaults(),
		log:      log.With().Str("component", "hub").Logger(),
		sessions: make(map[*Session]struct{}),
	}
}

// Authenticate is the handshake hook. It runs the same verification as the
// REST middleware.
func (h *Hub) Authenticate(rawCredential string) (auth.Principal, error) {
	return h.verifier.Verify(rawCredential)
}

// NewSession wraps a freshly upgraded connection. conn may be nil for a
// session driven directly through its handlers.
func (h *Hub) NewSession(conn *websocket.Conn) *Session {
	id := uuid.NewString()
	return &Session{
		ID:    id,
		hub:   h,
		conn:  conn,
		send:  make(chan []byte, h.opts.SendBuffer),
		state: StateConnecting,
		log:   h.log.With().Str("session_id", id).Logger(),
	}
}

// activate binds an authenticated session to its personal room.
func (h *Hub) activate(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()

	h.registry.Join(UserRoom(s.principal.ID), s)
	if s.State() == StateClosed {
		h.registry.LeaveAll(s)
	}
	metrics.SessionsActive.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.PersistTimeout)
	defer cancel()
	if err := h.presence.Connected(ctx, s.principal.ID); err != nil {
		s.log.Warn().Err(err).Msg("presence update failed")
	}
}

// release undoes activate. The session calls it exactly once.
func (h *Hub) release(s *Session) {
	rooms := h.registry.LeaveAll(s)

	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	metrics.SessionsActive.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), h.opts.PersistTimeout)
	defer cancel()
	if err := h.presence.Disconnected(ctx, s.principal.ID); err != nil {
		s.log.Warn().Err(err).Msg("presence update failed")
	}
	s.log.Debug().Int("rooms_left", rooms).Msg("session released")
}

// Sessions returns how many sessions are active.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown disconnects every live session.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Disconnect("server shutdown")
	}
	h.log.Info().Int("sessions", len(sessions)).Msg("hub shut down")
}
