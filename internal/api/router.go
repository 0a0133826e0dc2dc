package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"go-chat-relay/internal/chat"
	"go-chat-relay/internal/middleware"
	"go-chat-relay/internal/presence"
	"go-chat-relay/internal/respond"
	"go-chat-relay/internal/user"
)

// Deps are the handlers the router mounts. Presence is optional.
type Deps struct {
	Users          *user.Handler
	Chat           *chat.Handler
	Presence       *presence.Handler
	Verifier       middleware.TokenVerifier
	AllowedOrigins []string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, d Deps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Public Routes
	r.Post("/register", d.Users.Register)
	r.Post("/login", d.Users.Login)

	// WebSocket (Real-time). The handshake authenticates on its own so a
	// failure can be reported over the socket.
	r.Get("/ws", d.Chat.ServeWs)

	// Protected Routes (Require JWT)
	authMiddleware := middleware.NewAuthMiddleware(d.Verifier)
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		r.Get("/api/users/me", d.Users.Me)
		r.Get("/api/users/search", d.Users.SearchUsers)
		r.Get("/api/contacts", d.Users.Contacts)
		if d.Presence != nil {
			r.Get("/api/users/{userID}/presence", d.Presence.UserPresence)
		}

		r.Post("/api/conversations", d.Chat.StartConversation) // Find/Create Chat
		r.Get("/api/conversations", d.Chat.RecentConversations)
		r.Get("/api/conversations/{conversationID}/messages", d.Chat.GetChatHistory) // Load History
		r.Post("/api/conversations/{conversationID}/messages", d.Chat.SendMessage)

		r.Post("/api/groups", d.Chat.CreateGroup)
		r.Get("/api/groups", d.Chat.ListGroups)
		r.Post("/api/groups/{groupID}/join", d.Chat.JoinGroup)
	})

	return r
}
