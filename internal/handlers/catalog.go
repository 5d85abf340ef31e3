package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"librarybot/internal/catalog"
	"librarybot/internal/middleware"
	"librarybot/internal/models"
)

// Catalog serves the read-only browsing and search endpoints.
type Catalog struct {
	svc *catalog.Service
}

// NewCatalog creates a new Catalog handler.
func NewCatalog(svc *catalog.Service) *Catalog {
	return &Catalog{svc: svc}
}

// Stats returns the catalog statistics.
func (h *Catalog) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Statistics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// MainCategories lists the live top-level categories.
func (h *Catalog) MainCategories(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.MainCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Category returns one category with its path and children.
func (h *Catalog) Category(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.svc.Category(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// CategoryBooks pages through the books filed directly under a category.
func (h *Catalog) CategoryBooks(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	kind, err := kindQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := intQuery(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.svc.BooksIn(r.Context(), id, kind, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Search runs a new search. The token in the response fetches further
// pages for the same X-Session.
func (h *Catalog) Search(w http.ResponseWriter, r *http.Request) {
	kind, err := kindQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := intQuery(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.svc.Search(r.Context(), searchSession(r), r.URL.Query().Get("q"), kind, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SearchPage fetches another page of a remembered search.
func (h *Catalog) SearchPage(w http.ResponseWriter, r *http.Request) {
	kind, err := kindQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := intQuery(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := h.svc.SearchPage(r.Context(), searchSession(r), chi.URLParam(r, "token"), kind, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Book returns one live book.
func (h *Catalog) Book(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.svc.Book(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Download counts a download and returns the book with its file reference
// so the frontend can send the file.
func (h *Catalog) Download(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.svc.Download(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Popular lists the most downloaded books.
func (h *Catalog) Popular(w http.ResponseWriter, r *http.Request) {
	h.ranked(w, r, h.svc.Popular)
}

// Recent lists the newest books.
func (h *Catalog) Recent(w http.ResponseWriter, r *http.Request) {
	h.ranked(w, r, h.svc.Recent)
}

type rankFunc func(ctx context.Context, kind *models.FileKind, limit int) ([]models.Book, error)

func (h *Catalog) ranked(w http.ResponseWriter, r *http.Request, list rankFunc) {
	kind, err := kindQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := list(r.Context(), kind, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// searchSession names the cache namespace for a caller's searches: the
// X-Session header when present, else the actor id.
func searchSession(r *http.Request) string {
	if s := r.Header.Get(middleware.HeaderSession); s != "" {
		return s
	}
	if actor := middleware.ActorFromCtx(r.Context()); actor.ID != 0 {
		return "actor:" + actor.ID.String()
	}
	return "anonymous"
}
