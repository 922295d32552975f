package admin

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// RegisterRoutes registers all admin API routes using chi router
func RegisterRoutes(mux *http.ServeMux, handlers *AdminHandlers) {
	r := chi.NewRouter()
	r.Use(AuthMiddleware)

	r.Route("/sequences", func(r chi.Router) {
		r.Get("/", handlers.handleListSequences)
		r.Get("/{name}", handlers.handleGetSequence)
		r.Post("/{name}/next", handlers.handleNext)
	})

	r.Get("/native", handlers.handleGetNative)
	r.Put("/native", handlers.handleSetNative)

	r.Get("/ddl", handlers.handleDDLPreview)

	r.Post("/entities/{table}/rows", handlers.handleInsertRows)

	// Mount chi router under /admin
	mux.Handle("/admin", http.RedirectHandler("/admin/", http.StatusMovedPermanently))
	mux.Handle("/admin/", http.StripPrefix("/admin", r))

	log.Info().Msg("Admin endpoints enabled at /admin/*")
}
