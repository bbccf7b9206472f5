package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/collabroom/collabroom-server/internal/assistant"
	"github.com/collabroom/collabroom-server/internal/auth"
	"github.com/collabroom/collabroom-server/internal/config"
	"github.com/collabroom/collabroom-server/internal/core"
	"github.com/collabroom/collabroom-server/internal/service/chat"
	"github.com/collabroom/collabroom-server/internal/store"
	"github.com/collabroom/collabroom-server/internal/store/sqlite"
	transporthttp "github.com/collabroom/collabroom-server/internal/transport/http"
)

// App wires together store, core, services, and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	router          *chat.Service
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      24 * time.Hour,
	}
	authService := auth.NewService(st, jwtConfig)

	generator, err := assistant.NewLLMGenerator(cfg.Assistant)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("init assistant backend: %w", err)
	}
	logger.Info().
		Str("provider", cfg.Assistant.Provider).
		Str("model", generator.Model()).
		Msg("assistant backend initialized")
	assistantService := assistant.NewService(generator, cfg.Assistant, logger)

	hub := core.NewHub()
	router := chat.NewService(st, hub, assistantService, logger)
	server := transporthttp.NewServer(hub, router, authService, st, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		router:          router,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup waits for in-flight assistant replies and closes resources.
func (a *App) cleanup() {
	a.router.Wait()

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
