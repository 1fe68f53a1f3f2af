// Symptom Intake - interview server
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

	"github.com/ashureev/symptom-intake/internal/api"
	"github.com/ashureev/symptom-intake/internal/config"
	"github.com/ashureev/symptom-intake/internal/identity"
	"github.com/ashureev/symptom-intake/internal/interview"
	"github.com/ashureev/symptom-intake/internal/llm/provider"
	"github.com/ashureev/symptom-intake/internal/metrics"
	"github.com/ashureev/symptom-intake/internal/middleware"
	"github.com/ashureev/symptom-intake/internal/reasoning"
	"github.com/ashureev/symptom-intake/internal/store"
	"github.com/ashureev/symptom-intake/internal/sweeper"
	"github.com/ashureev/symptom-intake/internal/transcriptlog"
	"github.com/ashureev/symptom-intake/web"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "provider", cfg.Reasoning.Provider, "store", cfg.Store.Backend)

	// Initialize dependencies.
	sessions, err := store.Open(store.Options{
		Backend:  cfg.Store.Backend,
		DBPath:   cfg.Store.DBPath,
		RedisURL: cfg.Store.RedisURL,
	})
	if err != nil {
		slog.Error("Failed to initialize session store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := sessions.Close(); closeErr != nil {
			slog.Error("Failed to close session store", "error", closeErr)
		}
	}()

	if err := sessions.Ping(context.Background()); err != nil {
		slog.Error("Session store health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Session store connected", "backend", cfg.Store.Backend)

	schema, err := reasoning.LoadSchema(cfg.Reasoning.SchemaPath)
	if err != nil {
		slog.Error("Failed to load report schema", "error", err)
		os.Exit(1)
	}

	recorder := metrics.NewRecorder()

	policy, compiler, err := buildReasoning(cfg.Reasoning, schema, recorder)
	if err != nil {
		slog.Error("Failed to initialize reasoning provider", "error", err)
		os.Exit(1)
	}
	slog.Info("Reasoning provider ready", "provider", cfg.Reasoning.Provider, "model", cfg.Reasoning.Model)

	transcripts, err := transcriptlog.New(transcriptlog.Config{
		Enabled:       cfg.TranscriptLog.Enabled,
		Dir:           cfg.TranscriptLog.Dir,
		GlobalEnabled: cfg.TranscriptLog.GlobalEnabled,
		GlobalPath:    cfg.TranscriptLog.GlobalPath,
		QueueSize:     cfg.TranscriptLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize transcript logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcripts.Close(); closeErr != nil {
			slog.Error("Failed to close transcript logger", "error", closeErr)
		}
	}()

	// Initialize services.
	svc := interview.NewService(sessions, policy, compiler, interview.Config{
		MaxTurns:       cfg.MaxTurns,
		SessionTTL:     cfg.SessionTTL,
		ClosingMessage: schema.ClosingMessage,
		Fallback:       reasoning.NewScripted(schema),
		Log:            transcripts,
		Metrics:        recorder,
	})

	// Initialize handlers.
	interviewHandler := api.NewInterviewHandler(svc, schema, api.InterviewConfig{
		SessionTTL:    cfg.SessionTTL,
		MaxBodyBytes:  cfg.MaxRequestBodyBytes,
		IsDevelopment: cfg.IsDevelopment(),
	})
	healthHandler := api.NewHealthHandler(sessions, cfg.Store.Backend)
	wsHandler := api.NewWebSocketHandler(svc, cfg.FrontendURL, cfg.IsDevelopment(), cfg.MaxRequestBodyBytes)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	defer limiter.Close()

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware)

	// Public routes.
	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", recorder.Handler())

	// Interview routes are rate limited per client IP.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter))
		interviewHandler.RegisterRoutes(r)
		r.Get("/ws/interview", wsHandler.ServeHTTP)
	})

	// Serve embedded client (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// WriteTimeout covers one reasoning call with all of its retries.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: writeTimeout(cfg.Reasoning),
		IdleTimeout:  120 * time.Second,
	}

	// Start session sweeper.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweepDone := sweeper.Start(ctx, sessions, cfg.SweepInterval, recorder.SessionsExpired)
	slog.Info("Session sweeper started", "session_ttl", cfg.SessionTTL, "interval", cfg.SweepInterval)

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
	<-sweepDone

	slog.Info("Server stopped successfully")
}

// buildReasoning returns the interview policy and report compiler for the
// configured provider.
func buildReasoning(cfg config.ReasoningConfig, schema *reasoning.Schema, obs reasoning.Observer) (interview.Policy, interview.Compiler, error) {
	if cfg.Provider == config.ProviderScripted {
		scripted := reasoning.NewScripted(schema)
		return scripted, scripted, nil
	}

	completer, err := provider.New(context.Background(), cfg)
	if err != nil {
		return nil, nil, err
	}
	engine := reasoning.NewEngine(completer, schema, reasoning.EngineConfig{
		MaxTokens: cfg.MaxOutputTokens,
		Observer:  obs,
	})
	return engine, engine, nil
}

func writeTimeout(cfg config.ReasoningConfig) time.Duration {
	attempts := time.Duration(cfg.MaxRetries + 1)
	return attempts*cfg.Timeout + 15*time.Second
}
