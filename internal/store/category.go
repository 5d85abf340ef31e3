// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"librarybot/internal/models"
)

// CategoryStore manages the category tree in the database.
type CategoryStore struct {
	db   *sql.DB
	opts options
}

// NewCategoryStore returns a new CategoryStore.
func NewCategoryStore(db *sql.DB, opts ...Option) *CategoryStore {
	return &CategoryStore{db: db, opts: buildOptions(opts)}
}

const categoryColumns = `id, name, description, parent_id, created_by, created_at, is_deleted, deleted_at`

// liveSubtreeCTE selects the live category $1 and every live descendant.
// UNION (not UNION ALL) makes the recursion stop on malformed cycles.
const liveSubtreeCTE = `
	WITH RECURSIVE subtree AS (
		SELECT id FROM categories WHERE id = $1 AND NOT is_deleted
		UNION
		SELECT c.id FROM categories c
		JOIN subtree s ON c.parent_id = s.id
		WHERE NOT c.is_deleted
	)`

// anySubtreeCTE selects category $1 and every descendant regardless of state.
const anySubtreeCTE = `
	WITH RECURSIVE subtree AS (
		SELECT id FROM categories WHERE id = $1
		UNION
		SELECT c.id FROM categories c
		JOIN subtree s ON c.parent_id = s.id
	)`

// scanCategory scans a row into a Category struct.
func scanCategory(scanner interface{ Scan(...any) error }) (*models.Category, error) {
	var c models.Category
	err := scanner.Scan(
		&c.ID, &c.Name, &c.Description, &c.ParentID,
		&c.CreatedBy, &c.CreatedAt, &c.IsDeleted, &c.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CategoryStore) queryCategories(ctx context.Context, query string, args ...any) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []models.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, *c)
	}
	return items, rows.Err()
}

// liveExists reports whether id names a live category.
func liveCategoryExists(ctx context.Context, q DBTX, id uuid.UUID) (bool, error) {
	var ok bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1 AND NOT is_deleted)`, id,
	).Scan(&ok)
	return ok, err
}

// siblingNameTaken reports whether a live category other than self already
// uses name under parentID.
func siblingNameTaken(ctx context.Context, q DBTX, name string, parentID *uuid.UUID, self *uuid.UUID) (bool, error) {
	var taken bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM categories
			WHERE name = $1 AND parent_id IS NOT DISTINCT FROM $2
			  AND NOT is_deleted AND ($3::uuid IS NULL OR id <> $3)
		)`, name, uuidArg(parentID), uuidArg(self),
	).Scan(&taken)
	return taken, err
}

// Create validates and inserts a new category, returning its id.
func (s *CategoryStore) Create(ctx context.Context, in models.NewCategory) (id uuid.UUID, err error) {
	ctx, done := observe(ctx, "category.create", attribute.String("name", in.Name))
	defer done(&err)

	if err := in.Validate(); err != nil {
		return uuid.Nil, err
	}
	in.Description = trimOptional(in.Description)

	if in.ParentID != nil {
		ok, err := liveCategoryExists(ctx, s.db, *in.ParentID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("check parent category: %w", err)
		}
		if !ok {
			return uuid.Nil, models.NewNotFound("category", in.ParentID)
		}
	}

	taken, err := siblingNameTaken(ctx, s.db, in.Name, in.ParentID, nil)
	if err != nil {
		return uuid.Nil, fmt.Errorf("check category name: %w", err)
	}
	if taken {
		return uuid.Nil, &models.DuplicateError{Entity: "category", Field: "name", Value: in.Name}
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO categories (name, description, parent_id, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		in.Name, in.Description, uuidArg(in.ParentID), int64(in.CreatedBy),
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return uuid.Nil, &models.ConflictError{Entity: "category", Err: err}
		}
		return uuid.Nil, fmt.Errorf("create category: %w", err)
	}

	s.opts.changed(ctx)
	return id, nil
}

// FindByID retrieves a category by ID, including soft-deleted rows.
func (s *CategoryStore) FindByID(ctx context.Context, id uuid.UUID) (c *models.Category, err error) {
	ctx, done := observe(ctx, "category.find_by_id")
	defer done(&err)

	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id)
	c, err = scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFound("category", id)
	}
	if err != nil {
		return nil, fmt.Errorf("find category by id: %w", err)
	}
	return c, nil
}

// FindByName returns the live category called name under parentID
// (nil for main categories).
func (s *CategoryStore) FindByName(ctx context.Context, name string, parentID *uuid.UUID) (c *models.Category, err error) {
	ctx, done := observe(ctx, "category.find_by_name")
	defer done(&err)

	name = strings.TrimSpace(name)
	row := s.db.QueryRowContext(ctx, `
		SELECT `+categoryColumns+` FROM categories
		WHERE name = $1 AND parent_id IS NOT DISTINCT FROM $2 AND NOT is_deleted`,
		name, uuidArg(parentID),
	)
	c, err = scanCategory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "category", ID: name}
	}
	if err != nil {
		return nil, fmt.Errorf("find category by name: %w", err)
	}
	return c, nil
}

// Path returns the names from the root down to id joined by
// models.PathSeparator. The walk stops at a missing parent or at an id it
// has already visited, so malformed cycles terminate. An unknown id yields "".
func (s *CategoryStore) Path(ctx context.Context, id uuid.UUID) (path string, err error) {
	ctx, done := observe(ctx, "category.path")
	defer done(&err)

	var names []string
	visited := make(map[uuid.UUID]struct{})
	current := &id
	for current != nil {
		if _, seen := visited[*current]; seen {
			break
		}
		visited[*current] = struct{}{}

		var name string
		var parent *uuid.UUID
		err := s.db.QueryRowContext(ctx,
			`SELECT name, parent_id FROM categories WHERE id = $1`, *current,
		).Scan(&name, &parent)
		if errors.Is(err, sql.ErrNoRows) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("walk category path: %w", err)
		}
		names = append(names, name)
		current = parent
	}

	slices.Reverse(names)
	return strings.Join(names, models.PathSeparator), nil
}

// ListMain returns live root categories ordered by name.
func (s *CategoryStore) ListMain(ctx context.Context) (items []models.Category, err error) {
	ctx, done := observe(ctx, "category.list_main")
	defer done(&err)

	items, err = s.queryCategories(ctx, `
		SELECT `+categoryColumns+` FROM categories
		WHERE parent_id IS NULL AND NOT is_deleted
		ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list main categories: %w", err)
	}
	return items, nil
}

// ListChildren returns the live direct children of parentID ordered by name.
func (s *CategoryStore) ListChildren(ctx context.Context, parentID uuid.UUID) (items []models.Category, err error) {
	ctx, done := observe(ctx, "category.list_children")
	defer done(&err)

	items, err = s.queryCategories(ctx, `
		SELECT `+categoryColumns+` FROM categories
		WHERE parent_id = $1 AND NOT is_deleted
		ORDER BY name`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list subcategories: %w", err)
	}
	return items, nil
}

// HasChildren reports whether id has at least one live child.
func (s *CategoryStore) HasChildren(ctx context.Context, id uuid.UUID) (ok bool, err error) {
	ctx, done := observe(ctx, "category.has_children")
	defer done(&err)

	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM categories WHERE parent_id = $1 AND NOT is_deleted)`, id,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check subcategories: %w", err)
	}
	return ok, nil
}

// ListWithBookCounts returns every live category with the number of live
// books filed directly under it, main categories first.
func (s *CategoryStore) ListWithBookCounts(ctx context.Context, kind *models.FileKind) (items []models.Category, err error) {
	ctx, done := observe(ctx, "category.list_with_counts")
	defer done(&err)

	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.description, c.parent_id, c.created_by, c.created_at,
		       c.is_deleted, c.deleted_at, COUNT(b.id) AS book_count
		FROM categories c
		LEFT JOIN books b ON b.category_id = c.id AND NOT b.is_deleted
		     AND ($1::text IS NULL OR b.file_kind = $1)
		WHERE NOT c.is_deleted
		GROUP BY c.id
		ORDER BY (c.parent_id IS NOT NULL), c.name`, kindArg(kind))
	if err != nil {
		return nil, fmt.Errorf("list categories with counts: %w", err)
	}
	defer rows.Close()

	items = []models.Category{}
	for rows.Next() {
		var c models.Category
		err := rows.Scan(
			&c.ID, &c.Name, &c.Description, &c.ParentID, &c.CreatedBy,
			&c.CreatedAt, &c.IsDeleted, &c.DeletedAt, &c.BookCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// CountBooks counts live books filed under id. With includeSubcategories
// the count spans the whole live subtree, not just direct children.
func (s *CategoryStore) CountBooks(ctx context.Context, id uuid.UUID, includeSubcategories bool, kind *models.FileKind) (n int, err error) {
	ctx, done := observe(ctx, "category.count_books",
		attribute.Bool("include_subcategories", includeSubcategories))
	defer done(&err)

	if includeSubcategories {
		err = s.db.QueryRowContext(ctx, liveSubtreeCTE+`
			SELECT COUNT(*) FROM books b
			JOIN subtree s ON b.category_id = s.id
			WHERE NOT b.is_deleted AND ($2::text IS NULL OR b.file_kind = $2)`,
			id, kindArg(kind),
		).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM books
			WHERE category_id = $1 AND NOT is_deleted
			  AND ($2::text IS NULL OR file_kind = $2)`,
			id, kindArg(kind),
		).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count category books: %w", err)
	}
	return n, nil
}

// Count returns the number of categories.
func (s *CategoryStore) Count(ctx context.Context, includeDeleted bool) (n int, err error) {
	ctx, done := observe(ctx, "category.count")
	defer done(&err)

	query := `SELECT COUNT(*) FROM categories WHERE NOT is_deleted`
	if includeDeleted {
		query = `SELECT COUNT(*) FROM categories`
	}
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return n, nil
}

// Update edits a live category's name, description or parent. Moving a
// category under itself or one of its descendants is rejected.
func (s *CategoryStore) Update(ctx context.Context, id uuid.UUID, upd models.CategoryUpdate) (err error) {
	ctx, done := observe(ctx, "category.update")
	defer done(&err)

	if err := upd.Validate(); err != nil {
		return err
	}
	if upd.IsEmpty() {
		return nil
	}

	err = withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+categoryColumns+` FROM categories WHERE id = $1 AND NOT is_deleted FOR UPDATE`, id)
		cur, err := scanCategory(row)
		if errors.Is(err, sql.ErrNoRows) {
			return models.NewNotFound("category", id)
		}
		if err != nil {
			return fmt.Errorf("load category: %w", err)
		}

		name := cur.Name
		if upd.Name != nil {
			name = *upd.Name
		}
		description := cur.Description
		if upd.Description != nil {
			description = trimOptional(upd.Description)
		}
		parentID := cur.ParentID
		switch {
		case upd.MakeRoot:
			parentID = nil
		case upd.ParentID != nil:
			if err := checkReparent(ctx, tx, id, *upd.ParentID); err != nil {
				return err
			}
			parentID = upd.ParentID
		}

		if name != cur.Name || !sameParent(parentID, cur.ParentID) {
			taken, err := siblingNameTaken(ctx, tx, name, parentID, &id)
			if err != nil {
				return fmt.Errorf("check category name: %w", err)
			}
			if taken {
				return &models.DuplicateError{Entity: "category", Field: "name", Value: name}
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE categories SET name = $1, description = $2, parent_id = $3
			WHERE id = $4`,
			name, description, uuidArg(parentID), id,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return &models.ConflictError{Entity: "category", Err: err}
			}
			return fmt.Errorf("update category: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.opts.changed(ctx)
	return nil
}

// checkReparent rejects moving id under a missing category, itself, or
// anything in its own subtree.
func checkReparent(ctx context.Context, tx DBTX, id, parentID uuid.UUID) error {
	if parentID == id {
		return &models.ValidationError{Field: "parent_id", Reason: "a category cannot be its own parent"}
	}
	ok, err := liveCategoryExists(ctx, tx, parentID)
	if err != nil {
		return fmt.Errorf("check parent category: %w", err)
	}
	if !ok {
		return models.NewNotFound("category", parentID)
	}

	var descendant bool
	err = tx.QueryRowContext(ctx, anySubtreeCTE+`
		SELECT EXISTS (SELECT 1 FROM subtree WHERE id = $2)`, id, parentID,
	).Scan(&descendant)
	if err != nil {
		return fmt.Errorf("check category descendants: %w", err)
	}
	if descendant {
		return &models.ValidationError{Field: "parent_id", Reason: "a category cannot move under its own descendant"}
	}
	return nil
}

func sameParent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Delete removes a category and its subtree in one transaction. A soft
// delete stamps the category, its live descendants and their live books
// with one shared deleted_at; a hard delete physically removes the subtree
// and every book filed under it.
func (s *CategoryStore) Delete(ctx context.Context, id uuid.UUID, hard bool) (err error) {
	ctx, done := observe(ctx, "category.delete", attribute.Bool("hard", hard))
	defer done(&err)

	err = withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		var deleted bool
		err := tx.QueryRowContext(ctx,
			`SELECT is_deleted FROM categories WHERE id = $1 FOR UPDATE`, id,
		).Scan(&deleted)
		if errors.Is(err, sql.ErrNoRows) {
			return models.NewNotFound("category", id)
		}
		if err != nil {
			return fmt.Errorf("load category: %w", err)
		}

		if hard {
			if _, err := tx.ExecContext(ctx, anySubtreeCTE+`
				DELETE FROM books WHERE category_id IN (SELECT id FROM subtree)`, id); err != nil {
				return fmt.Errorf("delete subtree books: %w", err)
			}
			// Descendants go through ON DELETE CASCADE.
			if _, err := tx.ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id); err != nil {
				return fmt.Errorf("delete category: %w", err)
			}
			return nil
		}

		if deleted {
			return nil
		}
		_, err = tx.ExecContext(ctx, liveSubtreeCTE+`,
			trashed_books AS (
				UPDATE books SET is_deleted = TRUE, deleted_at = NOW()
				WHERE NOT is_deleted AND category_id IN (SELECT id FROM subtree)
				RETURNING id
			)
			UPDATE categories SET is_deleted = TRUE, deleted_at = NOW()
			WHERE id IN (SELECT id FROM subtree)`, id)
		if err != nil {
			return fmt.Errorf("soft delete category: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.opts.changed(ctx)
	return nil
}

// Restore brings a soft-deleted category back together with the
// descendants and books removed by the same delete. Restoring a live
// category is a no-op.
func (s *CategoryStore) Restore(ctx context.Context, id uuid.UUID) (err error) {
	ctx, done := observe(ctx, "category.restore")
	defer done(&err)

	restored := false
	err = withTx(ctx, s.db, func(ctx context.Context, tx DBTX) error {
		row := tx.QueryRowContext(ctx,
			`SELECT `+categoryColumns+` FROM categories WHERE id = $1 FOR UPDATE`, id)
		cur, err := scanCategory(row)
		if errors.Is(err, sql.ErrNoRows) {
			return models.NewNotFound("category", id)
		}
		if err != nil {
			return fmt.Errorf("load category: %w", err)
		}
		if !cur.IsDeleted {
			return nil
		}

		if cur.ParentID != nil {
			ok, err := liveCategoryExists(ctx, tx, *cur.ParentID)
			if err != nil {
				return fmt.Errorf("check parent category: %w", err)
			}
			if !ok {
				return models.NewNotFound("category", cur.ParentID)
			}
		}

		taken, err := siblingNameTaken(ctx, tx, cur.Name, cur.ParentID, &id)
		if err != nil {
			return fmt.Errorf("check category name: %w", err)
		}
		if taken {
			return &models.DuplicateError{Entity: "category", Field: "name", Value: cur.Name}
		}

		var reused string
		err = tx.QueryRowContext(ctx, restoreSubtreeCTE+`
			SELECT b.file_reference FROM books b
			WHERE b.is_deleted AND b.deleted_at = $2
				AND b.category_id IN (SELECT id FROM subtree)
				AND EXISTS (
					SELECT 1 FROM books l
					WHERE l.file_reference = b.file_reference AND NOT l.is_deleted
				)
			LIMIT 1`, id, cur.DeletedAt,
		).Scan(&reused)
		switch {
		case err == nil:
			return &models.DuplicateError{Entity: "book", Field: "file_reference", Value: reused}
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("check restored books: %w", err)
		}

		_, err = tx.ExecContext(ctx, restoreSubtreeCTE+`,
			restored_books AS (
				UPDATE books SET is_deleted = FALSE, deleted_at = NULL
				WHERE is_deleted AND deleted_at = $2 AND category_id IN (SELECT id FROM subtree)
				RETURNING id
			)
			UPDATE categories SET is_deleted = FALSE, deleted_at = NULL
			WHERE id IN (SELECT id FROM subtree)`, id, cur.DeletedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return restoreConflict(err, cur.Name)
			}
			return fmt.Errorf("restore category: %w", err)
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

// restoreSubtreeCTE selects a deleted category ($1) and the descendants
// that went to the trash in the same cascade ($2 is its deleted_at).
const restoreSubtreeCTE = `
	WITH RECURSIVE subtree AS (
		SELECT id FROM categories WHERE id = $1
		UNION
		SELECT c.id FROM categories c
		JOIN subtree s ON c.parent_id = s.id
		WHERE c.is_deleted AND c.deleted_at = $2
	)`

// restoreConflict maps a unique violation raised while restoring a subtree
// to the entity whose index rejected it.
func restoreConflict(err error, name string) error {
	if violatedIndex(err) == bookReferenceIndex {
		return &models.DuplicateError{
			Entity: "book", Field: "file_reference",
			Err: &models.ConflictError{Entity: "book", Err: err},
		}
	}
	return &models.DuplicateError{
		Entity: "category", Field: "name", Value: name,
		Err: &models.ConflictError{Entity: "category", Err: err},
	}
}

// ListDeleted returns the soft-deleted categories, most recent first.
func (s *CategoryStore) ListDeleted(ctx context.Context) (items []models.Category, err error) {
	ctx, done := observe(ctx, "category.list_deleted")
	defer done(&err)

	items, err = s.queryCategories(ctx, `
		SELECT `+categoryColumns+` FROM categories
		WHERE is_deleted
		ORDER BY deleted_at DESC, name`)
	if err != nil {
		return nil, fmt.Errorf("list deleted categories: %w", err)
	}
	return items, nil
}
