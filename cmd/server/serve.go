package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/ashureev/estatepost/internal/api"
	"github.com/ashureev/estatepost/internal/config"
	"github.com/ashureev/estatepost/internal/facebook"
	"github.com/ashureev/estatepost/internal/live"
	"github.com/ashureev/estatepost/internal/lock"
	"github.com/ashureev/estatepost/internal/media"
	"github.com/ashureev/estatepost/internal/metrics"
	"github.com/ashureev/estatepost/internal/middleware"
	"github.com/ashureev/estatepost/internal/oauth"
	"github.com/ashureev/estatepost/internal/secret"
	"github.com/ashureev/estatepost/internal/session"
	"github.com/ashureev/estatepost/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the live pipeline and the Facebook connection API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := setup(cmd)
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(cfg *config.Config) error {
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	m := metrics.New()

	engine, images, err := newPipeline(cfg, m)
	if err != nil {
		return err
	}
	slog.Info("Workflow graph compiled", "steps", engine.Graph().Steps())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	regOpts := []session.Option{
		session.WithInboxSize(cfg.Session.InboxSize),
		session.WithTracker(m),
	}
	if cfg.Session.RedisURL != "" {
		rdb, err := lock.NewClient(ctx, cfg.Session.RedisURL)
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer func() {
			if closeErr := rdb.Close(); closeErr != nil {
				slog.Error("Failed to close redis client", "error", closeErr)
			}
		}()
		regOpts = append(regOpts, session.WithLocker(lock.NewRedisLocker(rdb, "estatepost:run:"), cfg.Session.LockTTL))
		slog.Info("Run locking enabled", "lock_ttl", cfg.Session.LockTTL)
	}
	registry := session.NewRegistry(engine, regOpts...)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Handle("/metrics", m.Handler())
	live.NewWebSocketHandler(registry, cfg.AllowedOrigins, cfg.IsDevelopment()).RegisterRoutes(r)

	if cfg.OAuthEnabled() {
		closeRepo, err := registerFacebookRoutes(r, cfg)
		if err != nil {
			return err
		}
		defer closeRepo()
	} else {
		slog.Warn("Facebook connection API disabled (FB_APP_ID, FB_APP_SECRET and ENCRYPTION_KEY required)")
	}

	// Create server.
	// WebSocket connections are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start image janitor.
	media.StartJanitor(ctx, images, cfg.Image.TTL)
	slog.Info("Image janitor started", "image_ttl", cfg.Image.TTL, "dir", images.Dir())

	// Start server.
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal.
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server stopped successfully")
	return nil
}

// registerFacebookRoutes wires the agent repository, token cipher and
// Graph client behind the /facebook and /api routes.
func registerFacebookRoutes(r chi.Router, cfg *config.Config) (func(), error) {
	repo, err := store.Open(cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	closeRepo := func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}

	if err := repo.Ping(context.Background()); err != nil {
		closeRepo()
		return nil, fmt.Errorf("database health check failed: %w", err)
	}
	slog.Info("Database connected", "postgres", store.IsPostgresDSN(cfg.DBDSN))

	cipher, err := secret.NewCipher(cfg.Facebook.EncryptionKey, cfg.Facebook.FallbackKeys...)
	if err != nil {
		closeRepo()
		return nil, fmt.Errorf("initialize token cipher: %w", err)
	}

	graph := facebook.NewClient(cfg.Facebook.AppID, cfg.Facebook.AppSecret, cfg.Facebook.RedirectURI)
	base := api.NewHandler(oauth.NewService(graph, repo, cipher))
	api.NewFacebookHandler(base).RegisterRoutes(r)
	api.NewPostHandler(base).RegisterRoutes(r)
	return closeRepo, nil
}
