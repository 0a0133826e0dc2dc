package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"go-chat-relay/internal/api"
	"go-chat-relay/internal/auth"
	"go-chat-relay/internal/chat"
	"go-chat-relay/internal/config"
	"go-chat-relay/internal/db"
	"go-chat-relay/internal/presence"
	"go-chat-relay/internal/user"
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	// 1. Config & Flags
	cfg, err := config.Load()
	if err != nil {
		return 2, err
	}
	addr := flag.String("addr", cfg.Addr, "http service address")
	flag.Parse()

	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(ctx, cfg.DSN)
	if err != nil {
		return 1, fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer database.Close()
	logger.Info().Msg("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(ctx); err != nil {
		return 1, fmt.Errorf("migration failed: %w", err)
	}
	logger.Info().Msg("✅ Database Schema Initialized")

	// 3. Connect to Redis (Platform Layer). Presence is optional.
	var tracker *presence.Tracker
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return 1, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		tracker = presence.NewTracker(redisClient)
		logger.Info().Msg("✅ Connected to Redis")
	}

	// 4. Initialize User Feature
	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.TokenTTL)
	userRepo := user.NewRepository(database.Conn)
	userService := user.NewService(userRepo, verifier)
	userHandler := user.NewHandler(userService, logger)

	// 5. Initialize Chat Feature
	chatRepo := chat.NewRepository(database.Conn)
	registry := chat.NewRegistry(logger)
	relay := chat.NewRelay(chatRepo, registry, logger)
	chatService := chat.NewService(chatRepo, userRepo, logger)

	var sessionPresence chat.Presence
	var presenceHandler *presence.Handler
	if tracker != nil {
		sessionPresence = tracker
		presenceHandler = presence.NewHandler(tracker, logger)
	}
	hub := chat.NewHub(registry, relay, chatService, verifier, sessionPresence, chat.HubOptions{
		SendBuffer:     cfg.SessionSendBuffer,
		PersistTimeout: cfg.PersistTimeout,
		MaxMessageSize: cfg.MaxMessageSize,
	}, logger)
	chatHandler := chat.NewHandler(hub, relay, chatService, cfg.Origins(), logger)

	// 6. Define Routes
	router := api.NewRouter(logger, api.Deps{
		Users:          userHandler,
		Chat:           chatHandler,
		Presence:       presenceHandler,
		Verifier:       verifier,
		AllowedOrigins: cfg.Origins(),
	})

	// Websocket connections manage their own deadlines, so no WriteTimeout.
	srv := &http.Server{
		Addr:              *addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", *addr).Str("env", cfg.Env).Msg("🚀 Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return 1, fmt.Errorf("server failed: %w", err)
	case <-quit:
	}

	logger.Info().Msg("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown does not wait for hijacked connections; close sessions first.
	hub.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return 1, fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return 0, nil
}
