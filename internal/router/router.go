// Package router sets up the HTTP routes and middleware chains of the
// librarybot API. Routes are split into public catalog reads, the upload
// workflow and the privileged admin group.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"librarybot/internal/handlers"
	"librarybot/internal/middleware"
)

// New creates and returns the configured Chi router. searchLimiter may be
// nil to leave searches unthrottled.
func New(catalog *handlers.Catalog, admin *handlers.Admin, uploads *handlers.Uploads, searchLimiter *middleware.RateLimiter) chi.Router {
	r := chi.NewRouter()

	// Global middleware, applied to every request.
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.Identify)

	r.Get("/health", healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", catalog.Stats)

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", catalog.MainCategories)
			r.Get("/{id}", catalog.Category)
			r.Get("/{id}/books", catalog.CategoryBooks)
		})

		r.Group(func(r chi.Router) {
			if searchLimiter != nil {
				r.Use(searchLimiter.Middleware)
			}
			r.Get("/search", catalog.Search)
			r.Get("/search/{token}", catalog.SearchPage)
		})

		r.Route("/books", func(r chi.Router) {
			r.Get("/popular", catalog.Popular)
			r.Get("/recent", catalog.Recent)
			r.Get("/{id}", catalog.Book)
			r.Post("/{id}/download", catalog.Download)
		})

		// Upload workflow, one session per operator.
		r.Route("/uploads/{operator}", func(r chi.Router) {
			r.Post("/", uploads.Start)
			r.Get("/", uploads.Current)
			r.Delete("/", uploads.Cancel)
			r.Post("/events", uploads.Event)
		})

		// Catalog management, privileged actors only.
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequirePrivileged)

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", admin.Categories)
				r.Post("/", admin.CreateCategory)
				r.Patch("/{id}", admin.UpdateCategory)
				r.Delete("/{id}", admin.DeleteCategory)
				r.Post("/{id}/restore", admin.RestoreCategory)
				r.Get("/{id}/count", admin.CountCategoryBooks)
			})

			r.Route("/books", func(r chi.Router) {
				r.Post("/delete", admin.DeleteBooks)
				r.Patch("/{id}", admin.UpdateBook)
				r.Delete("/{id}", admin.DeleteBook)
				r.Post("/{id}/restore", admin.RestoreBook)
			})

			r.Get("/trash", admin.Trash)
			r.Get("/trash/counts", admin.TrashCounts)
			r.Post("/purge", admin.Purge)
		})
	})

	return r
}

// healthHandler returns a simple JSON health check response.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
