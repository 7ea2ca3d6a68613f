package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Config задаёт параметры API-листенера.
type Config struct {
	Address string
}

// NewServer собирает HTTP-сервер API поверх chi-маршрутизатора.
func NewServer(cfg Config, h *Handler) *http.Server {
	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Recoverer)
	router.Use(chimw.Timeout(60 * time.Second))

	router.Route("/api/v1", func(r chi.Router) {
		r.Route("/checkout", func(r chi.Router) {
			r.Post("/intents", h.CreateIntent)
			r.Post("/intents/{id}/order", h.CreateGatewayOrder)
			r.Get("/status", h.CheckStatus)
		})
		r.Route("/gateway", func(r chi.Router) {
			r.Post("/webhook", h.HandleWebhook)
			r.Post("/callback", h.HandleCallback)
		})
	})

	return &http.Server{
		Addr:         cfg.Address,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
