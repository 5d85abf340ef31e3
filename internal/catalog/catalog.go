// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package catalog is the read side the chat frontend talks to: browsing
// the category tree, searching with resumable result pages, retrieving
// books and reading the statistics.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"librarybot/internal/cache"
	"librarybot/internal/metrics"
	"librarybot/internal/models"
)

// MinQueryLength is the shortest search query accepted, in characters.
const MinQueryLength = 2

// Categories is the part of the category store the read side needs.
type Categories interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Category, error)
	Path(ctx context.Context, id uuid.UUID) (string, error)
	ListMain(ctx context.Context) ([]models.Category, error)
	ListChildren(ctx context.Context, parentID uuid.UUID) ([]models.Category, error)
}

// Books is the part of the book store the read side needs.
type Books interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Book, error)
	Paginate(ctx context.Context, filter models.BookFilter, page, perPage int, sort models.BookSort) (models.Page[models.Book], error)
	Search(ctx context.Context, query string, kind *models.FileKind, page, perPage int) (models.Page[models.Book], error)
	Popular(ctx context.Context, limit int, kind *models.FileKind) ([]models.Book, error)
	Recent(ctx context.Context, limit int, kind *models.FileKind) ([]models.Book, error)
	IncrementDownloadCount(ctx context.Context, id uuid.UUID) (int, error)
}

// Stats computes catalog statistics.
type Stats interface {
	Statistics(ctx context.Context) (models.Statistics, error)
}

// SearchCache remembers searches per session so result pages can be
// requested later by token.
type SearchCache interface {
	Put(ctx context.Context, session string, s cache.Search) (string, error)
	Get(ctx context.Context, session, token string) (cache.Search, error)
}

// SearchResult is one page of search results plus the token that fetches
// further pages of the same search.
type SearchResult struct {
	Token string                   `json:"token,omitempty"`
	Query string                   `json:"query"`
	Kind  *models.FileKind         `json:"kind,omitempty"`
	Page  models.Page[models.Book] `json:"page"`
}

// CategoryView is a category with its breadcrumb path and live children.
type CategoryView struct {
	Category models.Category   `json:"category"`
	Path     string            `json:"path"`
	Children []models.Category `json:"children"`
}

// Service answers read requests from the frontend.
type Service struct {
	categories Categories
	books      Books
	stats      Stats
	searches   SearchCache
	perPage    int
	now        func() time.Time
}

// NewService wires the read side. A non-positive perPage uses
// models.DefaultPerPage.
func NewService(categories Categories, books Books, stats Stats, searches SearchCache, perPage int) *Service {
	if perPage <= 0 {
		perPage = models.DefaultPerPage
	}
	return &Service{
		categories: categories,
		books:      books,
		stats:      stats,
		searches:   searches,
		perPage:    perPage,
		now:        time.Now,
	}
}

// Search runs a substring search and remembers it for session. A failure
// to remember the search is logged and the result is returned without a
// token.
func (s *Service) Search(ctx context.Context, session, query string, kind *models.FileKind, page int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		metrics.Searches.WithLabelValues("rejected").Inc()
		return nil, &models.ValidationError{
			Field:  "query",
			Reason: fmt.Sprintf("must be at least %d characters", MinQueryLength),
		}
	}

	result, err := s.run(ctx, query, kind, page)
	if err != nil {
		return nil, err
	}

	entry := cache.Search{Query: query, CreatedAt: s.now()}
	if kind != nil {
		entry.Kind = *kind
	}
	token, err := s.searches.Put(ctx, session, entry)
	if err != nil {
		slog.Warn("search not cached", "session", session, "error", err)
	}
	result.Token = token
	return result, nil
}

// SearchPage fetches another page of a remembered search. kind, when set,
// replaces the kind the search was made with. An unknown or expired token
// is a NotFoundError.
func (s *Service) SearchPage(ctx context.Context, session, token string, kind *models.FileKind, page int) (*SearchResult, error) {
	entry, err := s.searches.Get(ctx, session, token)
	if errors.Is(err, cache.ErrSearchExpired) {
		return nil, &models.NotFoundError{Entity: "search", ID: token}
	}
	if err != nil {
		return nil, fmt.Errorf("load search: %w", err)
	}

	if kind == nil && entry.Kind != "" {
		k := entry.Kind
		kind = &k
	}
	result, err := s.run(ctx, entry.Query, kind, page)
	if err != nil {
		return nil, err
	}
	result.Token = token
	return result, nil
}

func (s *Service) run(ctx context.Context, query string, kind *models.FileKind, page int) (*SearchResult, error) {
	p, err := s.books.Search(ctx, query, kind, page, s.perPage)
	if err != nil {
		return nil, err
	}
	if p.Total == 0 {
		metrics.Searches.WithLabelValues("empty").Inc()
	} else {
		metrics.Searches.WithLabelValues("found").Inc()
	}
	return &SearchResult{Query: query, Kind: kind, Page: p}, nil
}

// Download records a retrieval of a live book and returns it with the
// updated count.
func (s *Service) Download(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	if _, err := s.books.IncrementDownloadCount(ctx, id); err != nil {
		return nil, err
	}
	b, err := s.books.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	metrics.Downloads.WithLabelValues(b.FileKind.String()).Inc()
	return b, nil
}

// Book returns a live book.
func (s *Service) Book(ctx context.Context, id uuid.UUID) (*models.Book, error) {
	b, err := s.books.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.IsDeleted {
		return nil, models.NewNotFound("book", id)
	}
	return b, nil
}

func (s *Service) Statistics(ctx context.Context) (models.Statistics, error) {
	return s.stats.Statistics(ctx)
}

func (s *Service) MainCategories(ctx context.Context) ([]models.Category, error) {
	return s.categories.ListMain(ctx)
}

// Category returns a live category with its path and children. Deleted
// categories are reported as not found.
func (s *Service) Category(ctx context.Context, id uuid.UUID) (*CategoryView, error) {
	c, err := s.categories.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsDeleted {
		return nil, models.NewNotFound("category", id)
	}
	path, err := s.categories.Path(ctx, id)
	if err != nil {
		return nil, err
	}
	children, err := s.categories.ListChildren(ctx, id)
	if err != nil {
		return nil, err
	}
	if children == nil {
		children = []models.Category{}
	}
	return &CategoryView{Category: *c, Path: path, Children: children}, nil
}

// BooksIn lists the live books filed directly under a category, newest first.
func (s *Service) BooksIn(ctx context.Context, categoryID uuid.UUID, kind *models.FileKind, page int) (models.Page[models.Book], error) {
	filter := models.BookFilter{CategoryID: &categoryID, Kind: kind}
	return s.books.Paginate(ctx, filter, page, s.perPage, models.DefaultBookSort)
}

// Popular returns up to limit of the most downloaded books.
func (s *Service) Popular(ctx context.Context, kind *models.FileKind, limit int) ([]models.Book, error) {
	return s.books.Popular(ctx, clampLimit(limit), kind)
}

// Recent returns up to limit of the newest books.
func (s *Service) Recent(ctx context.Context, kind *models.FileKind, limit int) ([]models.Book, error) {
	return s.books.Recent(ctx, clampLimit(limit), kind)
}

func clampLimit(n int) int {
	if n <= 0 {
		return 10
	}
	if n > models.MaxPerPage {
		return models.MaxPerPage
	}
	return n
}
