package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			// Wallet routes
			r.Get("/wallet/{userID}", apiHandler.GetWalletHandler)
			r.Post("/wallet/{userID}/earn", apiHandler.EarnHandler)
			r.Post("/wallet/{userID}/spend", apiHandler.SpendHandler)
			r.Get("/wallet/{userID}/transactions", apiHandler.ListTransactionsHandler)

			// Chat routes
			r.Post("/chat", apiHandler.ChatHandler)
			r.Delete("/chat/{sessionID}", apiHandler.EndChatHandler)
		})
	})

	return r
}
