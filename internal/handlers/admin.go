// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"librarybot/internal/middleware"
	"librarybot/internal/models"
)

// CategoryAdmin is the write side of the category store.
type CategoryAdmin interface {
	Create(ctx context.Context, in models.NewCategory) (uuid.UUID, error)
	ListWithBookCounts(ctx context.Context, kind *models.FileKind) ([]models.Category, error)
	CountBooks(ctx context.Context, id uuid.UUID, includeSubcategories bool, kind *models.FileKind) (int, error)
	Update(ctx context.Context, id uuid.UUID, upd models.CategoryUpdate) error
	Delete(ctx context.Context, id uuid.UUID, hard bool) error
	Restore(ctx context.Context, id uuid.UUID) error
	ListDeleted(ctx context.Context) ([]models.Category, error)
}

// BookAdmin is the write side of the book store.
type BookAdmin interface {
	Paginate(ctx context.Context, filter models.BookFilter, page, perPage int, sort models.BookSort) (models.Page[models.Book], error)
	Update(ctx context.Context, id uuid.UUID, upd models.BookUpdate) error
	Delete(ctx context.Context, id uuid.UUID, hard bool) error
	DeleteBulk(ctx context.Context, ids []uuid.UUID, hard bool) int
	Restore(ctx context.Context, id uuid.UUID) error
}

// Maintenance covers trash accounting and purging.
type Maintenance interface {
	DeletedCounts(ctx context.Context) (books, categories int, err error)
	PurgeDeleted(ctx context.Context, olderThan time.Duration) (models.PurgeResult, error)
}

// Admin serves the catalog management endpoints. Every route is mounted
// behind middleware.RequirePrivileged.
type Admin struct {
	categories CategoryAdmin
	books      BookAdmin
	trash      Maintenance
	purgeAfter time.Duration
}

// NewAdmin creates a new Admin handler. purgeAfter is the retention used
// when a purge request names none.
func NewAdmin(categories CategoryAdmin, books BookAdmin, trash Maintenance, purgeAfter time.Duration) *Admin {
	return &Admin{
		categories: categories,
		books:      books,
		trash:      trash,
		purgeAfter: purgeAfter,
	}
}

type categoryRequest struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	ParentID    *uuid.UUID `json:"parent_id"`
	MakeRoot    bool       `json:"make_root"`
}

type bookRequest struct {
	Title           *string          `json:"title"`
	Author          *string          `json:"author"`
	Narrator        *string          `json:"narrator"`
	Description     *string          `json:"description"`
	CategoryID      *uuid.UUID       `json:"category_id"`
	FileReference   *string          `json:"file_reference"`
	FileKind        *models.FileKind `json:"file_kind"`
	SizeBytes       *int64           `json:"size_bytes"`
	DurationSeconds *int             `json:"duration_seconds"`
}

type bulkDeleteRequest struct {
	IDs  []uuid.UUID `json:"ids"`
	Hard bool        `json:"hard"`
}

// Categories lists live categories with their direct book counts.
func (h *Admin) Categories(w http.ResponseWriter, r *http.Request) {
	kind, err := kindQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := h.categories.ListWithBookCounts(r.Context(), kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// CreateCategory files a new category under the optional parent.
func (h *Admin) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in := models.NewCategory{
		Description: req.Description,
		ParentID:    req.ParentID,
		CreatedBy:   middleware.ActorFromCtx(r.Context()).ID,
	}
	if req.Name != nil {
		in.Name = *req.Name
	}
	id, err := h.categories.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("category created", "id", id, "name", in.Name, "by", in.CreatedBy)
	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

// UpdateCategory renames, redescribes or moves a category.
func (h *Admin) UpdateCategory(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	upd := models.CategoryUpdate{
		Name:        req.Name,
		Description: req.Description,
		ParentID:    req.ParentID,
		MakeRoot:    req.MakeRoot,
	}
	if err := h.categories.Update(r.Context(), id, upd); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteCategory soft deletes a category subtree, or removes it for good
// with ?hard=true.
func (h *Admin) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	hard := boolQuery(r, "hard")
	if err := h.categories.Delete(r.Context(), id, hard); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("category deleted", "id", id, "hard", hard, "by", middleware.ActorFromCtx(r.Context()).ID)
	w.WriteHeader(http.StatusNoContent)
}

// RestoreCategory brings back a soft deleted category and what was
// deleted with it.
func (h *Admin) RestoreCategory(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.categories.Restore(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CountCategoryBooks counts live books in a category, optionally with its
// whole subtree.
func (h *Admin) CountCategoryBooks(w http.ResponseWriter, r *http.Request) {
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
	n, err := h.categories.CountBooks(r.Context(), id, boolQuery(r, "include_subcategories"), kind)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// Trash lists soft deleted categories and a page of soft deleted books.
func (h *Admin) Trash(w http.ResponseWriter, r *http.Request) {
	page, err := intQuery(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx := r.Context()
	categories, err := h.categories.ListDeleted(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	books, err := h.books.Paginate(ctx, models.BookFilter{OnlyDeleted: true}, page, models.DefaultPerPage,
		models.DefaultBookSort)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"categories": categories,
		"books":      books,
	})
}

// UpdateBook changes the given book fields.
func (h *Admin) UpdateBook(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	upd := models.BookUpdate{
		Title:           req.Title,
		Author:          req.Author,
		Narrator:        req.Narrator,
		Description:     req.Description,
		CategoryID:      req.CategoryID,
		FileReference:   req.FileReference,
		FileKind:        req.FileKind,
		SizeBytes:       req.SizeBytes,
		DurationSeconds: req.DurationSeconds,
	}
	if err := h.books.Update(r.Context(), id, upd); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteBook soft deletes a book, or removes it with ?hard=true.
func (h *Admin) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	hard := boolQuery(r, "hard")
	if err := h.books.Delete(r.Context(), id, hard); err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("book deleted", "id", id, "hard", hard, "by", middleware.ActorFromCtx(r.Context()).ID)
	w.WriteHeader(http.StatusNoContent)
}

// DeleteBooks deletes several books and reports how many went.
func (h *Admin) DeleteBooks(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, r, &models.ValidationError{Field: "ids", Reason: "must not be empty"})
		return
	}
	n := h.books.DeleteBulk(r.Context(), req.IDs, req.Hard)
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n, "requested": len(req.IDs)})
}

// RestoreBook brings back a soft deleted book.
func (h *Admin) RestoreBook(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.books.Restore(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TrashCounts reports how many rows are soft deleted.
func (h *Admin) TrashCounts(w http.ResponseWriter, r *http.Request) {
	books, categories, err := h.trash.DeletedCounts(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"books": books, "categories": categories})
}

// Purge removes rows soft deleted longer ago than ?older_than_days, or the
// configured retention.
func (h *Admin) Purge(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "older_than_days", -1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	olderThan := h.purgeAfter
	if days >= 0 {
		olderThan = time.Duration(days) * 24 * time.Hour
	}
	res, err := h.trash.PurgeDeleted(r.Context(), olderThan)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("trash purged",
		"books", res.Books,
		"categories", res.Categories,
		"older_than", olderThan,
		"by", middleware.ActorFromCtx(r.Context()).ID,
	)
	writeJSON(w, http.StatusOK, res)
}
