/**
 * @description
 * This file sets up the HTTP router for the payment-service. The webhook endpoint is
 * authenticated by the provider signature; every other payment route requires a
 * caller token.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS handling for browser clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// PaymentRoutes creates the router mounted under /payments.
func PaymentRoutes(h *PaymentHandlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	r.Post("/webhook", h.WebhookHandler)

	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(jwtSecret))

		r.Post("/intents", h.CreateIntentHandler)
		r.Get("/", h.ListPaymentsHandler)
		r.Get("/{id}", h.GetPaymentHandler)
	})

	return r
}

// NewRouter builds the service's root handler. metrics may be nil.
func NewRouter(h *PaymentHandlers, jwtSecret string, allowedOrigins []string, metrics http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Mount("/payments", PaymentRoutes(h, jwtSecret))

	return r
}
