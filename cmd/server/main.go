// agentdesk backend: agent registry, chat sessions, live-chat hub.
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

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/agentdesk/internal/api"
	"github.com/ashureev/agentdesk/internal/chatlog"
	"github.com/ashureev/agentdesk/internal/classifier"
	"github.com/ashureev/agentdesk/internal/config"
	"github.com/ashureev/agentdesk/internal/livechat"
	"github.com/ashureev/agentdesk/internal/middleware"
	"github.com/ashureev/agentdesk/internal/registry"
	"github.com/ashureev/agentdesk/internal/store"
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

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	if cfg.SeedPath != "" {
		seed, err := registry.LoadFile(cfg.SeedPath)
		if err != nil {
			slog.Error("Failed to load registry seed", "error", err)
			os.Exit(1)
		}
		if err := seed.Apply(context.Background(), repo); err != nil {
			slog.Error("Failed to import registry seed", "error", err)
			os.Exit(1)
		}
		slog.Info("Registry seed imported", "website_id", seed.WebsiteID, "agents", len(seed.Agents), "chains", len(seed.Chains))
	}

	cls, err := classifier.New(cfg.Classifier.Options(), logger)
	if err != nil {
		slog.Warn("Classifier backend unavailable, using pattern classifier", "backend", cfg.Classifier.Backend, "error", err)
		cls = classifier.NewPattern()
	}

	convLog, err := newConversationLog(cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := convLog.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Initialize services.
	hub := livechat.NewHub(repo, livechat.NewConnManager(), cfg.FrontendURL, cfg.IsDevelopment())
	hub.SetEventSink(chatlog.HubSink{Logger: convLog})

	limiter := api.NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
	defer limiter.Stop()

	// Initialize handlers.
	apiHandler := api.NewHandler(repo, hub, cls, limiter, cfg.IsDevelopment())
	healthHandler := api.NewHealthHandler(repo, 5*time.Second)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	healthHandler.RegisterHealth(r)
	apiHandler.RegisterRoutes(r)

	// WebSocket endpoints.
	r.Get("/ws/chat/{clientId}/{userId}", hub.ServeCustomer)
	r.Get("/ws/agent/{agentId}", hub.ServeSpecialist)

	// WebSocket connections are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start TTL worker.
	livechat.StartTTLWorker(ctx, repo, hub, cfg.SessionTTL, cfg.SessionSweep)

	if cfg.WatchSeed {
		go func() {
			apply := func(ctx context.Context, seed *registry.Seed) error {
				return seed.Apply(ctx, repo)
			}
			if err := registry.Watch(ctx, cfg.SeedPath, registry.DefaultDebounce, logger, apply); err != nil {
				slog.Error("Registry seed watcher stopped", "error", err)
			}
		}()
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

	// Hijacked WebSocket connections are not tracked by Shutdown.
	hub.Conns().CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func newConversationLog(cfg *config.Config, logger *slog.Logger) (chatlog.Logger, error) {
	files, err := chatlog.NewConversationLogger(chatlog.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		return nil, err
	}
	if cfg.AMQP.URL == "" {
		return files, nil
	}

	broker, err := chatlog.NewAMQPLogger(chatlog.AMQPConfig{
		URL:       cfg.AMQP.URL,
		Queue:     cfg.AMQP.Queue,
		QueueSize: cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Warn("AMQP conversation sink unavailable", "error", err)
		return files, nil
	}
	slog.Info("Publishing conversation events", "queue", cfg.AMQP.Queue)
	return chatlog.Multi(files, broker), nil
}
