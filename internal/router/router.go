package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"go-realestate/internal/config"
	"go-realestate/internal/handler"
	"go-realestate/internal/middleware"
)

func New(
	cfg *config.Config,
	authMiddleware *middleware.AuthMiddleware,
	authHandler *handler.AuthHandler,
	favoriteHandler *handler.FavoriteHandler,
	healthHandler *handler.HealthHandler,
) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)

	r.Get("/health", healthHandler.Health)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/signup", authHandler.Signup)
			auth.Post("/signin", authHandler.Signin)
			auth.Post("/refresh-token", authHandler.Refresh)
			auth.With(authMiddleware.OptionalAuth).Post("/logout", authHandler.Logout)
			auth.With(authMiddleware.RequireAuth).Get("/me", authHandler.Me)
		})

		api.Route("/users/{userID}/favorites", func(fav chi.Router) {
			fav.Use(authMiddleware.RequireAuth)
			fav.Get("/", favoriteHandler.List)
			fav.Post("/", favoriteHandler.Add)
			fav.Delete("/{propertyID}", favoriteHandler.Remove)
		})
	})

	return r
}
