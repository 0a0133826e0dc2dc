package presence

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"go-chat-relay/internal/respond"
)

type Handler struct {
	tracker *Tracker
	log     zerolog.Logger
}

func NewHandler(t *Tracker, log zerolog.Logger) *Handler {
	return &Handler{tracker: t, log: log.With().Str("component", "presence").Logger()}
}

// UserPresence answers whether a user currently has a live session.
func (h *Handler) UserPresence(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil || id <= 0 {
		respond.Error(w, http.StatusBadRequest, "invalid_request", "invalid userID")
		return
	}

	online, err := h.tracker.Online(r.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Int("user_id", id).Msg("presence lookup failed")
		respond.Error(w, http.StatusServiceUnavailable, "unavailable", "presence unavailable")
		return
	}
	respond.JSON(w, http.StatusOK, map[string]interface{}{"user_id": id, "online": online})
}
