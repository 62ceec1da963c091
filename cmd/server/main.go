// Em-Guide - conversational survey bot backend
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ValentinKim531/Em-Guide-backend/internal/api"
	"github.com/ValentinKim531/Em-Guide-backend/internal/assistant"
	"github.com/ValentinKim531/Em-Guide-backend/internal/auth"
	"github.com/ValentinKim531/Em-Guide-backend/internal/config"
	"github.com/ValentinKim531/Em-Guide-backend/internal/dialog"
	"github.com/ValentinKim531/Em-Guide-backend/internal/middleware"
	"github.com/ValentinKim531/Em-Guide-backend/internal/session"
	"github.com/ValentinKim531/Em-Guide-backend/internal/speech"
	"github.com/ValentinKim531/Em-Guide-backend/internal/stats"
	"github.com/ValentinKim531/Em-Guide-backend/internal/store"
	"github.com/ValentinKim531/Em-Guide-backend/internal/ws"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(ctx); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Session store: Redis when configured, in-process otherwise.
	var sessions session.Store
	if cfg.RedisAddr != "" {
		redisStore, err := session.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SessionTTL)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		sessions = redisStore
		slog.Info("Session store connected", "backend", "redis", "addr", cfg.RedisAddr)
	} else {
		memStore := session.NewMemory(cfg.SessionTTL)
		memStore.StartJanitor(ctx, 10*time.Minute)
		sessions = memStore
		slog.Info("Session store initialized", "backend", "memory", "ttl", cfg.SessionTTL)
	}
	defer func() {
		if closeErr := sessions.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	// Yandex IAM token bootstrap and refresh loop.
	tokens := speech.NewIAMTokenManager(cfg.Yandex.OAuthToken)
	if err := tokens.Refresh(ctx); err != nil {
		slog.Error("Failed to obtain IAM token", "error", err)
		os.Exit(1)
	}
	tokens.StartRefreshLoop(ctx)

	speechClient := speech.NewYandexClient(tokens, cfg.Yandex.FolderID)
	engine := assistant.NewOpenAIClient(cfg.OpenAI.APIKey, logger,
		assistant.WithPollInterval(cfg.OpenAI.PollInterval),
		assistant.WithRunTimeout(cfg.OpenAI.RunTimeout),
	)

	orchestrator := dialog.NewOrchestrator(repo, sessions, engine, speechClient, dialog.Options{
		OnboardingPersona:   cfg.OpenAI.OnboardingAssistant,
		SurveyPersona:       cfg.OpenAI.SurveyAssistant,
		SynthesizeReplies:   cfg.Dialog.SynthesizeReplies,
		DuplicateAudioReply: cfg.Dialog.DuplicateAudioReply,
		LockWait:            cfg.Dialog.LockWait,
	}, logger)

	// Initialize handlers.
	verifier := auth.NewClient(cfg.AuthURL)
	wsHandler := ws.NewHandler(orchestrator, repo, verifier, cfg.AllowedOrigin, cfg.IsDevelopment())
	statsService := stats.NewService(repo)
	restHandler := api.NewHandler(repo, statsService)
	healthHandler := api.NewHealthHandler(repo)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))

	healthHandler.RegisterHealth(r)
	restHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/chat", wsHandler.ServeHTTP)

	// Create server. WriteTimeout stays 0: websocket sessions are long-lived.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
