package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"go-chat-relay/internal/middleware"
	"go-chat-relay/internal/respond"
)

var validate = validator.New()

type Handler struct {
	Service *Service
	log     zerolog.Logger
}

func NewHandler(s *Service, log zerolog.Logger) *Handler {
	return &Handler{Service: s, log: log.With().Str("component", "user").Logger()}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.Service.Register(r.Context(), &req)
	if err != nil {
		if errors.Is(err, ErrUsernameTaken) {
			respond.Error(w, http.StatusConflict, "conflict", err.Error())
			return
		}
		h.log.Error().Err(err).Str("username", req.Username).Msg("register failed")
		respond.Error(w, http.StatusInternalServerError, "internal", "could not register user")
		return
	}

	respond.JSON(w, http.StatusCreated, res)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.Service.Login(r.Context(), &req)
	if err != nil {
		if !errors.Is(err, ErrInvalidCredentials) {
			h.log.Error().Err(err).Msg("login failed")
		}
		respond.Error(w, http.StatusUnauthorized, "unauthenticated", "invalid credentials")
		return
	}

	respond.JSON(w, http.StatusOK, res)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	u, err := h.Service.Me(r.Context(), p.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		h.log.Error().Err(err).Int("user_id", p.ID).Msg("load profile failed")
		respond.Error(w, http.StatusInternalServerError, "internal", "could not load user")
		return
	}
	respond.JSON(w, http.StatusOK, u)
}

func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		respond.Error(w, http.StatusBadRequest, "invalid_request", "query parameter q is required")
		return
	}

	users, err := h.Service.SearchUsers(r.Context(), q)
	if err != nil {
		h.log.Error().Err(err).Msg("search failed")
		respond.Error(w, http.StatusInternalServerError, "internal", "search failed")
		return
	}
	respond.JSON(w, http.StatusOK, users)
}

func (h *Handler) Contacts(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.PrincipalFrom(r.Context())
	users, err := h.Service.Contacts(r.Context(), p.ID)
	if err != nil {
		h.log.Error().Err(err).Msg("list contacts failed")
		respond.Error(w, http.StatusInternalServerError, "internal", "could not list contacts")
		return
	}
	respond.JSON(w, http.StatusOK, map[string][]User{"contacts": users})
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
