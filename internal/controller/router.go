package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/dkotenko/slotswapper/internal/notify"
	"github.com/dkotenko/slotswapper/internal/service"
)

// Router собирает все HTTP-маршруты приложения
type Router struct {
	auth           *service.AuthService
	events         *service.EventService
	swaps          *service.SwapService
	hub            *notify.Hub
	allowedOrigins []string
	logger         *zap.Logger
}

func NewRouter(
	auth *service.AuthService,
	events *service.EventService,
	swaps *service.SwapService,
	hub *notify.Hub,
	allowedOrigins []string,
	logger *zap.Logger,
) *Router {
	return &Router{
		auth:           auth,
		events:         events,
		swaps:          swaps,
		hub:            hub,
		allowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

// Setup настраивает middleware и маршруты
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(rt.logger))

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"message": "Hello from the SlotSwapper API!"})
	})
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	authHandler := NewAuthHandler(rt.auth, rt.logger)
	router.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	eventHandler := NewEventHandler(rt.events, rt.logger)
	router.Route("/api/events", func(r chi.Router) {
		r.Use(authenticate(rt.auth))
		r.Post("/", eventHandler.Create)
		r.Get("/my-events", eventHandler.Mine)
		r.Patch("/{eventID}/status", eventHandler.UpdateStatus)
		r.Put("/{eventID}", eventHandler.Update)
		r.Delete("/{eventID}", eventHandler.Delete)
	})

	swapHandler := NewSwapHandler(rt.swaps, rt.logger)
	router.Route("/api/swap", func(r chi.Router) {
		r.Use(authenticate(rt.auth))
		r.Get("/swappable-slots", swapHandler.Marketplace)
		r.Post("/request", swapHandler.Propose)
		r.Post("/response/{swapRequestID}", swapHandler.Respond)
		r.Get("/requests/incoming", swapHandler.Incoming)
		r.Get("/requests/outgoing", swapHandler.Outgoing)
		r.Delete("/request/{swapRequestID}", swapHandler.Dismiss)
	})

	wsHandler := NewWSHandler(rt.hub, rt.auth, rt.allowedOrigins, rt.logger)
	router.Get("/ws", wsHandler.Connect)

	return router
}
