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
		r.Get("/posts/{slug}", apiHandler.GetPostHandler)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Post("/posts", apiHandler.CreatePostHandler)
			r.Put("/posts/{postID}", apiHandler.UpdatePostHandler)
			r.Delete("/posts/{postID}", apiHandler.DeletePostHandler)

			// Embedding pipeline
			r.Post("/posts/{postID}/embed", apiHandler.ReembedPostHandler)
			r.Delete("/posts/{postID}/embedding", apiHandler.DeleteEmbeddingHandler)
			r.Post("/embeddings/bulk", apiHandler.BulkEmbedHandler)

			// AI-assisted editing
			r.Post("/ai/summary", apiHandler.SummaryHandler)
			r.Post("/ai/slug", apiHandler.SlugHandler)
			r.Post("/ai/translate", apiHandler.TranslateHandler)
		})
	})

	return r
}
