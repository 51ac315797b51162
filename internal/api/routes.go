package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lkadlec/cashier/internal/reconciler"
	"github.com/lkadlec/cashier/pkg/logger"
)

// Router is the operator command API router
type Router struct {
	handler    *Handler
	middleware *Middleware
	logger     *logger.Logger
}

// NewRouter creates a new API router
func NewRouter(service *reconciler.Service, logger *logger.Logger) *Router {
	return &Router{
		handler:    NewHandler(service, logger),
		middleware: NewMiddleware(logger),
		logger:     logger.Named("api-router"),
	}
}

// Routes returns the API routes
func (r *Router) Routes() http.Handler {
	router := chi.NewRouter()

	// Middleware
	router.Use(r.middleware.RequestID)
	router.Use(r.middleware.Logger)
	router.Use(r.middleware.Recoverer)

	// API routes
	router.Route("/api/v1", func(router chi.Router) {
		// Operator commands
		router.Post("/commands/pair", r.handler.PairCommand)
		router.Post("/flights/{id}/notify", r.handler.NotifyFlight)

		// Command overview
		router.Get("/help", r.handler.GetHelp)

		// Health check
		router.Get("/health", r.handler.GetHealth)
	})

	return router
}
