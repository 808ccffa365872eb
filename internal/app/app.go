package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go-realestate/internal/config"
	"go-realestate/internal/database"
	"go-realestate/internal/event"
	"go-realestate/internal/handler"
	"go-realestate/internal/middleware"
	"go-realestate/internal/repository"
	"go-realestate/internal/router"
	"go-realestate/internal/service"
	"go-realestate/internal/token"
)

type App struct {
	server       *http.Server
	cleanupFuncs []func()
}

type stores struct {
	users     service.UserStore
	favorites service.FavoriteStore
	health    func(context.Context) error
	close     func()
}

// New wires the application for cfg. With STORE_DRIVER=postgres it connects,
// migrates and fails if the database is unreachable.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	go event.Log(context.WithoutCancel(ctx), events)

	appHandler, err := newHandler(cfg, st, bus)
	if err != nil {
		unsubscribe()
		st.close()
		return nil, err
	}

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           appHandler,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server:       server,
		cleanupFuncs: []func(){unsubscribe, st.close},
	}, nil
}

func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if serveErr := a.server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		a.Close()
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)
	a.Close()
	if err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// Close releases the store and stops background workers. Run calls it on
// shutdown; callers that only use Handler call it themselves.
func (a *App) Close() {
	for _, fn := range a.cleanupFuncs {
		fn()
	}
	a.cleanupFuncs = nil
}

func openStores(ctx context.Context, cfg *config.Config) (stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		slog.Warn("using in-memory store; data is lost on restart")
		users := repository.NewMemoryUserRepository()
		favorites := repository.NewMemoryFavoriteRepository()
		users.CascadeTo(favorites)
		return stores{
			users:     users,
			favorites: favorites,
			close:     func() {},
		}, nil
	}

	slog.Info("connecting to PostgreSQL")
	db, err := database.New(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return stores{}, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return stores{}, fmt.Errorf("failed to migrate database: %w", err)
	}
	slog.Info("database ready")

	return stores{
		users:     repository.NewUserRepository(db.Pool),
		favorites: repository.NewFavoriteRepository(db.Pool),
		health:    db.Health,
		close:     db.Close,
	}, nil
}

func newHandler(cfg *config.Config, st stores, bus event.Bus) (http.Handler, error) {
	tokens, err := token.NewService(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}

	authService := service.NewAuthService(service.NewCredentialStore(st.users), tokens, cfg.RotateRefreshTokens)
	authService.SetEvents(bus)
	favoriteService := service.NewFavoriteService(st.favorites, st.users)

	return router.New(
		cfg,
		middleware.NewAuthMiddleware(authService),
		handler.NewAuthHandler(authService),
		handler.NewFavoriteHandler(favoriteService),
		handler.NewHealthHandler(st.health),
	), nil
}
