package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/plasmarift/lobby-server/internal/auth"
	"github.com/plasmarift/lobby-server/internal/autohost"
	"github.com/plasmarift/lobby-server/internal/config"
	"github.com/plasmarift/lobby-server/internal/core"
	"github.com/plasmarift/lobby-server/internal/store"
	"github.com/plasmarift/lobby-server/internal/store/sqlite"
	transporthttp "github.com/plasmarift/lobby-server/internal/transport/http"
	"github.com/plasmarift/lobby-server/internal/worker"
)

// App wires together the coordinator, worker pool, fleet, and transport.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	router          *core.Router
	pool            *worker.Pool
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	pool := worker.NewPool(cfg.Workers, st, logger)
	registry := core.NewRegistry()
	fleet := autohost.NewManager(logger)
	router := core.NewRouter(registry, pool, fleet, pool.Receipts(), cfg.ReceiptTimeout, logger)

	tokenCfg := &auth.TokenConfig{
		Secret: []byte(cfg.AutohostSecret),
		Issuer: "lobby-server",
		TTL:    24 * time.Hour,
	}

	server := transporthttp.NewServer(router, registry, fleet, tokenCfg, *cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		router:          router,
		pool:            pool,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the coordinator, worker pool, and HTTP server, blocking
// until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.pool.Run(ctx)
	go a.router.Run(ctx)

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

func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
