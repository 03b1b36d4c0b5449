package routes

import (
	"net/http"

	"educheck/internal/config"
	"educheck/internal/handlers"
	"educheck/internal/logger"
	"educheck/internal/services/websocket"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes registers the operator API on a chi router.
func SetupRoutes(scanner handlers.Scanner, hub *websocket.HubService, cfg *config.Config, logger *logger.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", handlers.HealthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", handlers.StatusHandler(scanner))
		r.Get("/devices", handlers.DevicesHandler(scanner))
		r.Post("/devices/select", handlers.SelectDeviceHandler(scanner, logger))
		r.Post("/scanner/start", handlers.StartHandler(scanner, logger))
		r.Post("/scanner/stop", handlers.StopHandler(scanner))

		// Podgląd na żywo dla operatora
		r.Get("/view", handlers.ViewWebsocketHandler(hub, logger))

		r.Get("/logs", handlers.ShowLogsHandler(logger))
		r.Post("/logs/clear", handlers.ClearLogsHandler(logger))
	})

	return r
}
