package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"go-chat-relay/internal/auth"
	"go-chat-relay/internal/metrics"
	"go-chat-relay/internal/middleware"
	"go-chat-relay/internal/respond"
)

var validate = validator.New()

type Handler struct {
	hub      *Hub
	relay    *Relay
	service  *Service
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewHandler(hub *Hub, relay *Relay, service *Service, allowedOrigins []string, log zerolog.Logger) *Handler {
	return &Handler{
		hub:     hub,
		relay:   relay,
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		log: log.With().Str("component", "chat").Logger(),
	}
}

// originChecker accepts requests without an Origin header (non-browser
// clients) and browser requests from an allowed origin. "*" allows all.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return lo.Contains(allowed, "*") || lo.Contains(allowed, origin)
	}
}

// ServeWs upgrades the connection and runs the handshake. The credential
// comes from the `token` query parameter or the Authorization header.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	session := h.hub.NewSession(conn)
	if err := session.Authenticate(middleware.TokenFromRequest(r)); err != nil {
		h.log.Info().Err(err).Str("remote_addr", r.RemoteAddr).Msg("handshake rejected")
		session.Reject(err)
		return
	}

	// Start the two pumps
	go session.WritePump()
	go session.ReadPump()
}

type startConversationRequest struct {
	TargetID int `json:"target_id" validate:"required,gt=0"`
}

type sendMessageRequest struct {
	Content string `json:"content" validate:"required,max=4096"`
}

type createGroupRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// StartConversation finds or creates the caller's private chat with target_id.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	var req startConversationRequest
	if !decode(w, r, &req) {
		return
	}

	conv, err := h.service.CreateOrGetPrivateChat(r.Context(), principal(r), req.TargetID)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{
		"conversation_id": conv.ID,
		"conversation":    conv,
	})
}

func (h *Handler) RecentConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.service.ListRecentConversations(r.Context(), principal(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string][]Conversation{"conversations": convs})
}

func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "conversationID")
	if !ok {
		return
	}
	msgs, err := h.service.History(r.Context(), principal(r), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string][]Message{"messages": msgs})
}

// SendMessage is the REST entry into the relay. It answers 201 as soon as
// the message is durable, whatever happens to live delivery.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "conversationID")
	if !ok {
		return
	}
	var req sendMessageRequest
	if !decode(w, r, &req) {
		return
	}

	msg, err := h.relay.SendMessage(r.Context(), principal(r), id, req.Content)
	if err != nil {
		h.fail(w, err)
		return
	}
	metrics.MessagesPersisted.WithLabelValues("rest").Inc()
	respond.JSON(w, http.StatusCreated, map[string]*Message{"message": msg})
}

func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if !decode(w, r, &req) {
		return
	}
	group, err := h.service.CreateGroup(r.Context(), principal(r), req.Name)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, map[string]*Conversation{"group": group})
}

func (h *Handler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "groupID")
	if !ok {
		return
	}
	group, err := h.service.JoinGroup(r.Context(), principal(r), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string]*Conversation{"group": group})
}

func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.service.ListGroups(r.Context(), principal(r))
	if err != nil {
		h.fail(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string][]Conversation{"groups": groups})
}

// fail maps the chat error taxonomy onto HTTP.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ErrForbidden):
		respond.Error(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, ErrInvalidRequest):
		respond.Error(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ErrPersistence):
		h.log.Error().Err(err).Msg("persistence failure")
		respond.Error(w, http.StatusServiceUnavailable, "persistence_error", "storage unavailable, retry later")
	default:
		h.log.Error().Err(err).Msg("unexpected error")
		respond.Error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func principal(r *http.Request) auth.Principal {
	p, _ := middleware.PrincipalFrom(r.Context())
	return p
}

func idParam(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		respond.Error(w, http.StatusBadRequest, "invalid_request", "invalid "+name)
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	if err := validate.Struct(dst); err != nil {
		respond.Error(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}
