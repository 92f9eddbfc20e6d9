// NutriBot - conversational nutrition assistant client
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

	"github.com/ashureev/nutribot/internal/api"
	"github.com/ashureev/nutribot/internal/backend"
	"github.com/ashureev/nutribot/internal/chat"
	"github.com/ashureev/nutribot/internal/config"
	"github.com/ashureev/nutribot/internal/middleware"
	"github.com/ashureev/nutribot/internal/nutrition"
	"github.com/ashureev/nutribot/internal/realtime"
	"github.com/ashureev/nutribot/internal/session"
	"github.com/ashureev/nutribot/internal/state"
	"github.com/ashureev/nutribot/internal/store"
	"github.com/ashureev/nutribot/internal/telemetry"
	"github.com/ashureev/nutribot/internal/voice"
	"github.com/ashureev/nutribot/web"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting NutriBot", "port", cfg.Port, "backend", cfg.Backend.URL, "dev", cfg.IsDevelopment())

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "path", cfg.DBPath)

	// Session state.
	seed := session.Restore(context.Background(), repo, session.Defaults{PrepTime: cfg.Session.DefaultPrepTime}, logger)
	container := state.New(seed)
	persister := session.NewPersister(repo, logger)
	persister.Attach(container)
	slog.Info("Session restored", "user_id", seed.UserID, "history", len(seed.SensorHistory), "prep_time", seed.PrepTime)

	// Backend.
	client, err := backend.NewClient(backend.Config{
		BaseURL:       cfg.Backend.URL,
		Timeout:       cfg.Backend.Timeout,
		RateLimit:     cfg.Backend.RateLimit,
		Burst:         cfg.Backend.RateBurst,
		FoodCacheSize: cfg.Backend.FoodCacheSize,
		FoodCacheTTL:  cfg.Backend.FoodCacheTTL,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize backend client", "error", err)
		os.Exit(1)
	}
	slog.Info("Backend client ready", "url", client.BaseURL(), "timeout", cfg.Backend.Timeout)

	// Services.
	sensors := telemetry.NewManager(client, container, telemetry.WithLogger(logger), telemetry.WithSubmitTimeout(cfg.Backend.Timeout))
	orchestrator := chat.New(client, container, chat.WithLogger(logger))
	foods := nutrition.NewLookup(client, logger)

	hub := realtime.NewHub(container,
		realtime.WithOriginPatterns(cfg.OriginPatterns()...),
		realtime.WithLogger(logger),
	)

	var capability voice.Capability
	if cfg.Voice.Enabled {
		remote := voice.NewRemote(hub)
		hub.SetReporter(remote)
		capability = remote
	}
	speech := voice.NewAdapter(capability, container, orchestrator, cfg.Voice.Language, logger)
	slog.Info("Voice capture", "supported", speech.IsSupported(), "language", speech.Language())

	handler := api.NewHandler(api.Deps{
		State:           container,
		Chat:            orchestrator,
		Sensors:         sensors,
		Voice:           speech,
		Foods:           foods,
		Recommender:     client,
		Catalog:         client,
		Store:           repo,
		DefaultInterval: cfg.Session.SensorInterval,
	})
	hub.SetView(handler.View)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))

	handler.RegisterRoutes(r)
	r.Get("/ws/state", hub.ServeHTTP)

	// Serve embedded dashboard (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// WebSocket connections are long-lived; no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Session.AutoSample {
		sensors.StartAutoSampling(cfg.Session.SensorInterval)
		slog.Info("Auto-sampling started", "interval", cfg.Session.SensorInterval)
	}

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

	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	sensors.Close()
	speech.Close()
	if err := persister.Close(); err != nil {
		slog.Error("Failed to close persister", "error", err)
	}
	if err := repo.Close(); err != nil {
		slog.Error("Failed to close repository", "error", err)
	}

	slog.Info("Server stopped successfully")
}
