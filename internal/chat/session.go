package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-chat-relay/internal/auth"
	"go-chat-relay/internal/metrics"
)

const (
	writeWait  = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait   = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod = (pongWait * 9) / 10 // Send pings to peer with this period. Must be less than pongWait.
)

type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is one live client connection: Connecting → Authenticated →
// Active → Closed. The hub's registry references it while it is Active.
type Session struct {
	ID string

	hub  *Hub
	conn *websocket.Conn
	send chan []byte // Buffered channel of outbound frames.
	log  zerolog.Logger

	mu        sync.Mutex
	state     State
	principal auth.Principal
	closeOnce sync.Once
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Principal() auth.Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

// Authenticate verifies the handshake credential and, on success, activates
// the session. On failure the session is Closed and never touches the
// registry.
func (s *Session) Authenticate(rawCredential string) error {
	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		return fmt.Errorf("%w: session is %s", ErrInvalidRequest, s.state)
	}
	p, err := s.hub.Authenticate(rawCredential)
	if err != nil {
		s.state = StateClosed
		close(s.send)
		s.mu.Unlock()
		metrics.HandshakeFailures.Inc()
		return err
	}
	s.principal = p
	s.state = StateAuthenticated
	s.log = s.log.With().Int("user_id", p.ID).Logger()
	s.mu.Unlock()

	s.hub.activate(s)

	s.mu.Lock()
	if s.state == StateAuthenticated {
		s.state = StateActive
	}
	s.mu.Unlock()
	s.log.Info().Str("username", p.Username).Msg("session active")
	return nil
}

// Deliver queues frame without blocking. A closed session or a full queue
// refuses it.
func (s *Session) Deliver(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// JoinRoom binds the session to room. A conversation room requires
// membership; the only personal room a session may join is its own.
func (s *Session) JoinRoom(ctx context.Context, rawRoom string) error {
	if s.State() != StateActive {
		return fmt.Errorf("%w: session is not active", ErrInvalidRequest)
	}
	room, err := s.authorizeRoom(ctx, rawRoom)
	if err != nil {
		return err
	}

	s.hub.registry.Join(room, s)
	// Disconnect may have run LeaveAll between the state check and Join.
	if s.State() == StateClosed {
		s.hub.registry.Leave(room, s)
	}
	s.log.Debug().Str("room", string(room)).Msg("joined room")
	return nil
}

// LeaveRoom unbinds the session from room.
func (s *Session) LeaveRoom(rawRoom string) error {
	kind, id, err := ParseRoomID(rawRoom)
	if err != nil {
		return err
	}
	room := ConversationRoom(id)
	if kind == RoomUser {
		room = UserRoom(id)
	}
	s.hub.registry.Leave(room, s)
	s.log.Debug().Str("room", string(room)).Msg("left room")
	return nil
}

func (s *Session) authorizeRoom(ctx context.Context, rawRoom string) (RoomID, error) {
	kind, id, err := ParseRoomID(rawRoom)
	if err != nil {
		return "", err
	}
	p := s.Principal()
	switch kind {
	case RoomUser:
		if id != p.ID {
			return "", fmt.Errorf("personal room of user %d: %w", id, ErrForbidden)
		}
		return UserRoom(id), nil
	default:
		ctx, cancel := context.WithTimeout(ctx, s.hub.opts.PersistTimeout)
		defer cancel()
		if _, err := s.hub.service.memberConversation(ctx, p.ID, id); err != nil {
			return "", err
		}
		return ConversationRoom(id), nil
	}
}

// SendMessage hands a message to the relay. The write runs on a context
// detached from the connection so a disconnect cannot abort it.
func (s *Session) SendMessage(ctx context.Context, payload SendMessagePayload) (*Message, error) {
	if s.State() != StateActive {
		return nil, fmt.Errorf("%w: session is not active", ErrInvalidRequest)
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.hub.opts.PersistTimeout)
	defer cancel()

	msg, err := s.hub.relay.SendMessage(ctx, s.Principal(), payload.ConversationID, payload.Content)
	if err != nil {
		return nil, err
	}
	metrics.MessagesPersisted.WithLabelValues("ws").Inc()
	return msg, nil
}

// Disconnect closes the session. Only the first call has any effect, so
// duplicate signals from the transport are harmless.
func (s *Session) Disconnect(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		prev := s.state
		if prev != StateClosed {
			s.state = StateClosed
			close(s.send) // stops the writePump
		}
		s.mu.Unlock()

		if prev == StateAuthenticated || prev == StateActive {
			s.hub.release(s)
			s.log.Info().Str("reason", reason).Msg("session closed")
		}
	})
}

// handle dispatches one inbound frame.
func (s *Session) handle(ctx context.Context, frame []byte) {
	var env Envelope
	dec := json.NewDecoder(bytes.NewReader(frame))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&env); err != nil {
		s.sendError(fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	var err error
	switch env.Type {
	case EventJoinRoom:
		var p RoomPayload
		if err = decodeStrict(env.Data, &p); err == nil {
			err = s.JoinRoom(ctx, p.RoomID)
		}
	case EventLeaveRoom:
		var p RoomPayload
		if err = decodeStrict(env.Data, &p); err == nil {
			err = s.LeaveRoom(p.RoomID)
		}
	case EventSendMessage:
		var p SendMessagePayload
		if err = decodeStrict(env.Data, &p); err == nil {
			_, err = s.SendMessage(ctx, p)
		}
	default:
		err = fmt.Errorf("%w: unknown event type %q", ErrInvalidRequest, env.Type)
	}

	if err != nil {
		s.sendError(err)
	}
}

// sendError reports a failure to this session only.
func (s *Session) sendError(err error) {
	reason := reasonFor(err)
	if errors.Is(err, ErrPersistence) {
		s.log.Error().Err(err).Msg("request failed")
	} else {
		s.log.Debug().Err(err).Msg("request rejected")
	}
	frame, encErr := encodeEvent(EventError, ErrorEvent{Reason: reason})
	if encErr != nil {
		return
	}
	if !s.Deliver(frame) {
		s.log.Warn().Str("reason", reason).Msg("error event dropped")
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, auth.ErrMalformed), errors.Is(err, auth.ErrInvalid):
		return "authentication error"
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrPersistence):
		return "message could not be stored, try again"
	default:
		return err.Error()
	}
}

// Reject tells the peer its handshake failed and closes the connection.
func (s *Session) Reject(err error) {
	defer s.conn.Close()
	frame, encErr := encodeEvent(EventError, ErrorEvent{Reason: reasonFor(err)})
	if encErr != nil {
		return
	}
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return
	}
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication error"))
}

// ReadPump pumps frames from the websocket connection to the handlers.
func (s *Session) ReadPump() {
	reason := "connection closed"
	defer func() {
		// Cleanup: If connection dies, leave every room
		s.Disconnect(reason)
		s.conn.Close()
	}()

	// Config limits to prevent abuse
	s.conn.SetReadLimit(s.hub.opts.MaxMessageSize)

	// Heartbeat logic (Keep-Alive)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ctx := context.Background()
	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("unexpected close")
			}
			reason = err.Error()
			return
		}
		s.handle(ctx, frame)
	}
}

// WritePump pumps frames from the send queue to the websocket connection.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			// Set a write deadline so we don't hang forever
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The session was closed.
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			// Heartbeat: Send a Ping every 54 seconds to keep connection alive
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
