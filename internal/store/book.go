// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"librarybot/internal/models"
)

// BookStore manages book records in the database.
type BookStore struct {
	db   *sql.DB
	opts options
}

// NewBookStore returns a new BookStore.
func NewBookStore(db *sql.DB, opts ...Option) *BookStore {
	return &BookStore{db: db, opts: buildOptions(opts)}
}

const bookColumns = `b.id, b.title, b.file_reference, b.file_kind, b.category_id,
	b.author, b.narrator, b.description, b.duration_seconds, b.size_bytes,
	b.uploaded_by, b.download_count, b.created_at, b.updated_at,
	b.is_deleted, b.deleted_at, c.name`

const bookFrom = ` FROM books b LEFT JOIN categories c ON c.id = b.category_id`

// scanBook scans a row selected with bookColumns into a Book struct.
func scanBook(scanner interface{ Scan(...any) error }) (*models.Book, error) {
	var b models.Book
	err := scanner.Scan(
		&b.ID, &b.Title, &b.FileReference, &b.FileKind, &b.CategoryID,
		&b.Author, &b.Narrator, &b.Description, &b.DurationSeconds, &b.SizeBytes,
		&b.UploadedBy, &b.DownloadCount, &b.CreatedAt, &b.UpdatedAt,
		&b.IsDeleted, &b.DeletedAt, &b.CategoryName,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *BookStore) queryBooks(ctx context.Context, query string, args ...any) ([]models.Book, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		items = append(items, *b)
	}
	return items, rows.Err()
}

func liveReferenceTaken(ctx context.Context, q DBTX, ref string, self *uuid.UUID) (bool, error) {
	var taken bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM books
			WHERE file_reference = $1 AND NOT is_deleted
			  AND ($2::uuid IS NULL OR id <> $2)
		)`, ref, uuidArg(self),
	).Scan(&taken)
	return taken, err
}

func duplicateReference(ref string, cause error) error {
	dup := &models.DuplicateError{Entity: "book", Field: "file_reference", Value: ref}
	if cause != nil {
		dup.Err = &models.ConflictError{Entity: "book", Err: cause}
	}
	return dup
}

// Create validates and inserts a book, returning its id.
func (s *BookStore) Create(ctx context.Context, in models.NewBook) (id uuid.UUID, err error) {
	ctx, done := observe(ctx, "book.create", attribute.String("file_kind", in.FileKind.String()))
	defer done(&err)

	id, err = s.create(ctx, in)
	if err != nil {
		return uuid.Nil, err
	}
	s.opts.changed(ctx)
	return id, nil
}

func (s *BookStore) create(ctx context.Context, in models.NewBook) (uuid.UUID, error) {
	if err := in.Validate(); err != nil {
		return uuid.Nil, err
	}
	in.Author = trimOptional(in.Author)
	in.Narrator = trimOptional(in.Narrator)
	in.Description = trimOptional(in.Description)

	ok, err := liveCategoryExists(ctx, s.db, in.CategoryID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("check book category: %w", err)
	}
	if !ok {
		return uuid.Nil, models.NewNotFound("category", in.CategoryID)
	}

	taken, err := liveReferenceTaken(ctx, s.db, in.FileReference, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("check file reference: %w", err)
	}
	if taken {
		return uuid.Nil, duplicateReference(in.FileReference, nil)
	}

	var id uuid.UUID
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO books (title, file_reference, file_kind, category_id, author,
		                   narrator, description, duration_seconds, size_bytes, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		in.Title, in.FileReference, string(in.FileKind), in.CategoryID, in.Author,
		in.Narrator, in.Description, in.DurationSeconds, in.SizeBytes, int64(in.UploadedBy),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, duplicateReference(in.FileReference, err)
		}
		return uuid.Nil, fmt.Errorf("create book: %w", err)
	}
	return id, nil
}

// CreateBulk inserts each record independently. A failing record is logged
// and counted; it never aborts the rest of the batch.
func (s *BookStore) CreateBulk(ctx context.Context, records []models.NewBook) (succeeded, failed int) {
	ctx, span := tracer.Start(ctx, "store.book.create_bulk")
	defer span.End()

	for i, rec := range records {
		if _, err := s.create(ctx, rec); err != nil {
			slog.Warn("bulk book insert failed",
				"index", i,
				"file_reference", rec.FileReference,
				"error", err,
			)
			failed++
			continue
		}
		succeeded++
	}

	span.SetAttributes(
		attribute.Int("succeeded", succeeded),
		attribute.Int("failed", failed),
	)
	if succeeded > 0 {
		s.opts.changed(ctx)
	}
	return succeeded, failed
}

// FindByID retrieves a book by ID, including soft-deleted rows.
func (s *BookStore) FindByID(ctx context.Context, id uuid.UUID) (b *models.Book, err error) {
	ctx, done := observe(ctx, "book.find_by_id")
	defer done(&err)

	row := s.db.QueryRowContext(ctx, `SELECT `+bookColumns+bookFrom+` WHERE b.id = $1`, id)
	b, err = scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound("book", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find book by id: %w", err)
	}
	return b, nil
}

// FindByFileReference returns the live book holding ref.
func (s *BookStore) FindByFileReference(ctx context.Context, ref string) (b *models.Book, err error) {
	ctx, done := observe(ctx, "book.find_by_reference")
	defer done(&err)

	row := s.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+bookFrom+` WHERE b.file_reference = $1 AND NOT b.is_deleted`, ref)
	b, err = scanBook(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "book", ID: ref}
	}
	if err != nil {
		return nil, fmt.Errorf("find book by reference: %w", err)
	}
	return b, nil
}

// whereBuilder accumulates AND-ed predicates with numbered placeholders.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(clause string, args ...any) {
	for _, a := range args {
		w.args = append(w.args, a)
		clause = strings.Replace(clause, "?", "$"+strconv.Itoa(len(w.args)), 1)
	}
	w.clauses = append(w.clauses, clause)
}

func (w *whereBuilder) next() string {
	return "$" + strconv.Itoa(len(w.args)+1)
}

func (w *whereBuilder) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func filterWhere(f models.BookFilter) *whereBuilder {
	w := &whereBuilder{}
	switch {
	case f.OnlyDeleted:
		w.add("b.is_deleted")
	case !f.IncludeDeleted:
		w.add("NOT b.is_deleted")
	}
	if f.CategoryID != nil {
		w.add("b.category_id = ?", *f.CategoryID)
	}
	if f.Kind != nil {
		w.add("b.file_kind = ?", string(*f.Kind))
	}
	return w
}

var sortColumns = map[models.BookSortField]string{
	models.SortByTitle:         "b.title",
	models.SortByCreatedAt:     "b.created_at",
	models.SortByDownloadCount: "b.download_count",
	models.SortByAuthor:        "b.author",
}

// orderClause renders a whitelisted ORDER BY. Unknown fields fall back to
// the default sort. The id tiebreaker keeps paging stable.
func orderClause(sort models.BookSort) string {
	col, ok := sortColumns[sort.By]
	if !ok {
		sort = models.DefaultBookSort
		col = sortColumns[sort.By]
	}
	dir := "ASC"
	if sort.Desc {
		dir = "DESC"
	}
	return " ORDER BY " + col + " " + dir + " NULLS LAST, b.id"
}

// Paginate returns one page of books matching filter. Asking for a page
// past the end yields no items but still reports the true totals.
func (s *BookStore) Paginate(ctx context.Context, filter models.BookFilter, page, perPage int, sort models.BookSort) (result models.Page[models.Book], err error) {
	ctx, done := observe(ctx, "book.paginate", attribute.Int("page", page))
	defer done(&err)

	page, perPage, offset := models.NormalizePaging(page, perPage)
	w := filterWhere(filter)

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books b`+w.String(), w.args...).Scan(&total); err != nil {
		return result, fmt.Errorf("count books: %w", err)
	}

	limit, off := w.next(), "$"+strconv.Itoa(len(w.args)+2)
	args := append(w.args, perPage, offset)
	items, err := s.queryBooks(ctx,
		`SELECT `+bookColumns+bookFrom+w.String()+orderClause(sort)+` LIMIT `+limit+` OFFSET `+off,
		args...)
	if err != nil {
		return result, fmt.Errorf("paginate books: %w", err)
	}
	return models.NewPage(items, total, page, perPage), nil
}

// Search matches query case-insensitively as a substring of the title,
// author or narrator of live books, ordered by title.
func (s *BookStore) Search(ctx context.Context, query string, kind *models.FileKind, page, perPage int) (result models.Page[models.Book], err error) {
	ctx, done := observe(ctx, "book.search", attribute.Int("page", page))
	defer done(&err)

	page, perPage, offset := models.NormalizePaging(page, perPage)
	pattern := "%" + escapeLike(strings.TrimSpace(query)) + "%"

	const match = `
		WHERE NOT b.is_deleted
		  AND (b.title ILIKE $1 OR b.author ILIKE $1 OR b.narrator ILIKE $1)
		  AND ($2::text IS NULL OR b.file_kind = $2)`

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books b`+match, pattern, kindArg(kind)).Scan(&total); err != nil {
		return result, fmt.Errorf("count search results: %w", err)
	}

	items, err := s.queryBooks(ctx,
		`SELECT `+bookColumns+bookFrom+match+` ORDER BY b.title, b.id LIMIT $3 OFFSET $4`,
		pattern, kindArg(kind), perPage, offset)
	if err != nil {
		return result, fmt.Errorf("search books: %w", err)
	}
	return models.NewPage(items, total, page, perPage), nil
}

// Popular returns the most downloaded live books.
func (s *BookStore) Popular(ctx context.Context, limit int, kind *models.FileKind) (items []models.Book, err error) {
	ctx, done := observe(ctx, "book.popular")
	defer done(&err)

	_, limit, _ = models.NormalizePaging(1, limit)
	items, err = s.queryBooks(ctx, `SELECT `+bookColumns+bookFrom+`
		WHERE NOT b.is_deleted AND ($1::text IS NULL OR b.file_kind = $1)
		ORDER BY b.download_count DESC, b.title LIMIT $2`, kindArg(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("list popular books: %w", err)
	}
	return items, nil
}

// Recent returns the newest live books.
func (s *BookStore) Recent(ctx context.Context, limit int, kind *models.FileKind) (items []models.Book, err error) {
	ctx, done := observe(ctx, "book.recent")
	defer done(&err)

	_, limit, _ = models.NormalizePaging(1, limit)
	items, err = s.queryBooks(ctx, `SELECT `+bookColumns+bookFrom+`
		WHERE NOT b.is_deleted AND ($1::text IS NULL OR b.file_kind = $1)
		ORDER BY b.created_at DESC, b.id LIMIT $2`, kindArg(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("list recent books: %w", err)
	}
	return items, nil
}

// IncrementDownloadCount adds one to a live book's download count in a
// single statement and returns the new value.
func (s *BookStore) IncrementDownloadCount(ctx context.Context, id uuid.UUID) (count int, err error) {
	ctx, done := observe(ctx, "book.increment_downloads")
	defer done(&err)

	err = s.db.QueryRowContext(ctx, `
		UPDATE books SET download_count = download_count + 1
		WHERE id = $1 AND NOT is_deleted
		RETURNING download_count`, id,
	).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.NewNotFound("book", id)
	}
	if err != nil {
		return 0, fmt.Errorf("increment download count: %w", err)
	}
	s.opts.changed(ctx)
	return count, nil
}

// Update applies the non-nil fields of upd to a live book.
func (s *BookStore) Update(ctx context.Context, id uuid.UUID, upd models.BookUpdate) (err error) {
	ctx, done := observe(ctx, "book.update")
	defer done(&err)

	if err := upd.Validate(); err != nil {
		return err
	}
	if upd.IsEmpty() {
		return nil
	}

	err = withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM books WHERE id = $1 AND NOT is_deleted)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("load book: %w", err)
		}
		if !exists {
			return models.NewNotFound("book", id)
		}

		w := &whereBuilder{}
		set := func(col string, v any) { w.add(col+" = ?", v) }
		if upd.Title != nil {
			set("title", *upd.Title)
		}
		if upd.Author != nil {
			set("author", trimOptional(upd.Author))
		}
		if upd.Narrator != nil {
			set("narrator", trimOptional(upd.Narrator))
		}
		if upd.Description != nil {
			set("description", trimOptional(upd.Description))
		}
		if upd.CategoryID != nil {
			ok, err := liveCategoryExists(ctx, tx, *upd.CategoryID)
			if err != nil {
				return fmt.Errorf("check book category: %w", err)
			}
			if !ok {
				return models.NewNotFound("category", upd.CategoryID)
			}
			set("category_id", *upd.CategoryID)
		}
		if upd.FileReference != nil {
			ref := strings.TrimSpace(*upd.FileReference)
			taken, err := liveReferenceTaken(ctx, tx, ref, &id)
			if err != nil {
				return fmt.Errorf("check file reference: %w", err)
			}
			if taken {
				return duplicateReference(ref, nil)
			}
			set("file_reference", ref)
		}
		if upd.FileKind != nil {
			set("file_kind", string(*upd.FileKind))
		}
		if upd.SizeBytes != nil {
			set("size_bytes", *upd.SizeBytes)
		}
		if upd.DurationSeconds != nil {
			set("duration_seconds", *upd.DurationSeconds)
		}

		idArg := w.next()
		w.args = append(w.args, id)
		_, err := tx.ExecContext(ctx,
			`UPDATE books SET `+strings.Join(w.clauses, ", ")+`, updated_at = NOW() WHERE id = `+idArg,
			w.args...)
		if err != nil {
			if isUniqueViolation(err) {
				ref := ""
				if upd.FileReference != nil {
					ref = *upd.FileReference
				}
				return duplicateReference(ref, err)
			}
			return fmt.Errorf("update book: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.opts.changed(ctx)
	return nil
}

// Delete soft-deletes a book, or removes it physically when hard is set.
func (s *BookStore) Delete(ctx context.Context, id uuid.UUID, hard bool) (err error) {
	ctx, done := observe(ctx, "book.delete", attribute.Bool("hard", hard))
	defer done(&err)

	if err := s.delete(ctx, id, hard); err != nil {
		return err
	}
	s.opts.changed(ctx)
	return nil
}

func (s *BookStore) delete(ctx context.Context, id uuid.UUID, hard bool) error {
	var res sql.Result
	var err error
	if hard {
		res, err = s.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE books SET is_deleted = TRUE, deleted_at = NOW()
			WHERE id = $1 AND NOT is_deleted`, id)
	}
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if n > 0 {
		return nil
	}

	// Nothing changed: either the book is already in the trash or it
	// never existed.
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if !exists {
		return models.NewNotFound("book", id)
	}
	return nil
}

// DeleteBulk deletes each id independently and returns how many succeeded.
func (s *BookStore) DeleteBulk(ctx context.Context, ids []uuid.UUID, hard bool) int {
	ctx, span := tracer.Start(ctx, "store.book.delete_bulk")
	defer span.End()

	deleted := 0
	for _, id := range ids {
		if err := s.delete(ctx, id, hard); err != nil {
			slog.Warn("bulk book delete failed", "book_id", id, "error", err)
			continue
		}
		deleted++
	}
	span.SetAttributes(attribute.Int("deleted", deleted))
	if deleted > 0 {
		s.opts.changed(ctx)
	}
	return deleted
}

// Restore brings a soft-deleted book back. Restoring a live book is a
// no-op. The book's category must be live and its file reference must not
// have been reused meanwhile.
func (s *BookStore) Restore(ctx context.Context, id uuid.UUID) (err error) {
	ctx, done := observe(ctx, "book.restore")
	defer done(&err)

	restored := false
	err = withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		var (
			deleted    bool
			ref        string
			categoryID uuid.UUID
		)
		err := tx.QueryRowContext(ctx,
			`SELECT is_deleted, file_reference, category_id FROM books WHERE id = $1 FOR UPDATE`, id,
		).Scan(&deleted, &ref, &categoryID)
		if errors.Is(err, sql.ErrNoRows) {
			return models.NewNotFound("book", id)
		}
		if err != nil {
			return fmt.Errorf("load book: %w", err)
		}
		if !deleted {
			return nil
		}

		ok, err := liveCategoryExists(ctx, tx, categoryID)
		if err != nil {
			return fmt.Errorf("check book category: %w", err)
		}
		if !ok {
			return models.NewNotFound("category", categoryID)
		}

		taken, err := liveReferenceTaken(ctx, tx, ref, &id)
		if err != nil {
			return fmt.Errorf("check file reference: %w", err)
		}
		if taken {
			return duplicateReference(ref, nil)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE books SET is_deleted = FALSE, deleted_at = NULL WHERE id = $1`, id); err != nil {
			if isUniqueViolation(err) {
				return duplicateReference(ref, err)
			}
			return fmt.Errorf("restore book: %w", err)
		}
		restored = true
		return nil
	})
	if err != nil {
		return err
	}

	if restored {
		s.opts.changed(ctx)
	}
	return nil
}
