// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"librarybot/internal/models"
)

// StatsCache memoizes computed statistics between mutations. Invalidate
// advances the generation; Set must drop stats computed under an older one.
type StatsCache interface {
	Get(ctx context.Context) (*models.Statistics, bool)
	Generation(ctx context.Context) (uint64, error)
	Set(ctx context.Context, gen uint64, stats models.Statistics)
	Invalidate(ctx context.Context)
}

// StatsStore derives catalog statistics and manages the trash.
type StatsStore struct {
	db    *sql.DB
	cache StatsCache
}

// NewStatsStore returns a new StatsStore. cache may be nil.
func NewStatsStore(db *sql.DB, cache StatsCache) *StatsStore {
	return &StatsStore{db: db, cache: cache}
}

// Invalidate drops the memoized statistics. It matches InvalidateFunc so
// it can be handed to the other stores with WithInvalidation.
func (s *StatsStore) Invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
}

// Statistics returns the catalog counters, served from the memo when one
// is configured and still valid.
func (s *StatsStore) Statistics(ctx context.Context) (st models.Statistics, err error) {
	ctx, done := observe(ctx, "stats.statistics")
	defer done(&err)

	var (
		gen     uint64
		memoize bool
	)
	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx); ok {
			return *cached, nil
		}
		var genErr error
		gen, genErr = s.cache.Generation(ctx)
		memoize = genErr == nil
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM categories WHERE NOT is_deleted),
			(SELECT COUNT(*) FROM categories WHERE NOT is_deleted AND parent_id IS NULL),
			(SELECT COUNT(*) FROM books WHERE NOT is_deleted),
			(SELECT COUNT(*) FROM books WHERE NOT is_deleted AND file_kind = 'pdf'),
			(SELECT COUNT(*) FROM books WHERE NOT is_deleted AND file_kind = 'audio'),
			(SELECT COALESCE(SUM(download_count), 0) FROM books WHERE NOT is_deleted),
			(SELECT COUNT(*) FROM categories WHERE is_deleted),
			(SELECT COUNT(*) FROM books WHERE is_deleted)`,
	).Scan(
		&st.TotalCategories, &st.MainCategories, &st.TotalBooks, &st.PDFBooks,
		&st.AudioBooks, &st.TotalDownloads, &st.DeletedCategories, &st.DeletedBooks,
	)
	if err != nil {
		return models.Statistics{}, fmt.Errorf("compute statistics: %w", err)
	}
	st.SubCategories = st.TotalCategories - st.MainCategories

	if memoize {
		s.cache.Set(ctx, gen, st)
	}
	return st, nil
}

// DeletedCounts returns how many books and categories sit in the trash.
func (s *StatsStore) DeletedCounts(ctx context.Context) (books, categories int, err error) {
	ctx, done := observe(ctx, "stats.deleted_counts")
	defer done(&err)

	err = s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM books WHERE is_deleted),
			(SELECT COUNT(*) FROM categories WHERE is_deleted)`,
	).Scan(&books, &categories)
	if err != nil {
		return 0, 0, fmt.Errorf("count deleted rows: %w", err)
	}
	return books, categories, nil
}

// PurgeDeleted physically removes rows soft-deleted more than olderThan
// ago. Books go first, then categories; both in one transaction.
func (s *StatsStore) PurgeDeleted(ctx context.Context, olderThan time.Duration) (res models.PurgeResult, err error) {
	ctx, done := observe(ctx, "stats.purge_deleted",
		attribute.Float64("older_than_seconds", olderThan.Seconds()))
	defer done(&err)

	if olderThan < 0 {
		return res, &models.ValidationError{Field: "older_than", Reason: "must not be negative"}
	}
	secs := olderThan.Seconds()

	err = withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		r, err := tx.ExecContext(ctx, `
			DELETE FROM books
			WHERE is_deleted AND deleted_at < NOW() - make_interval(secs => $1)`, secs)
		if err != nil {
			return fmt.Errorf("purge books: %w", err)
		}
		n, err := r.RowsAffected()
		if err != nil {
			return fmt.Errorf("purge books: %w", err)
		}
		res.Books = int(n)

		r, err = tx.ExecContext(ctx, `
			DELETE FROM categories
			WHERE is_deleted AND deleted_at < NOW() - make_interval(secs => $1)`, secs)
		if err != nil {
			return fmt.Errorf("purge categories: %w", err)
		}
		n, err = r.RowsAffected()
		if err != nil {
			return fmt.Errorf("purge categories: %w", err)
		}
		res.Categories = int(n)
		return nil
	})
	if err != nil {
		return models.PurgeResult{}, err
	}

	if res.Books > 0 || res.Categories > 0 {
		s.Invalidate(ctx)
	}
	slog.Info("trash purged", "books", res.Books, "categories", res.Categories, "older_than", olderThan)
	return res, nil
}
