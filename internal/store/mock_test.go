package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"librarybot/internal/models"
)

func newMockDB(t require.TestingT) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return db, mock
}

const (
	qPathStep       = `SELECT name, parent_id FROM categories WHERE id = \$1`
	qCategoryExists = `SELECT EXISTS \(SELECT 1 FROM categories WHERE id = \$1 AND NOT is_deleted\)`
	qSiblingName    = `(?s)SELECT EXISTS \(\s*SELECT 1 FROM categories\s+WHERE name = \$1`
	qInsertCategory = `(?s)INSERT INTO categories`
	qReferenceTaken = `(?s)SELECT EXISTS \(\s*SELECT 1 FROM books\s+WHERE file_reference = \$1`
	qInsertBook     = `(?s)INSERT INTO books`
)

func TestWithTxCommitsOnSuccess(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE books`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := withTx(context.Background(), db, func(ctx context.Context, tx DBTX) error {
		_, err := tx.ExecContext(ctx, `UPDATE books SET title = 'x'`)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnError(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := withTx(context.Background(), db, func(context.Context, DBTX) error { return boom })
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	require.Panics(t, func() {
		_ = withTx(context.Background(), db, func(context.Context, DBTX) error { panic("kaput") })
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryPathStopsOnCycle(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	cs := NewCategoryStore(db)

	a, b := uuid.New(), uuid.New()
	mock.ExpectQuery(qPathStep).WithArgs(a).
		WillReturnRows(sqlmock.NewRows([]string{"name", "parent_id"}).AddRow("Child", b.String()))
	mock.ExpectQuery(qPathStep).WithArgs(b).
		WillReturnRows(sqlmock.NewRows([]string{"name", "parent_id"}).AddRow("Parent", a.String()))

	path, err := cs.Path(context.Background(), a)
	require.NoError(t, err)
	assert.Equal(t, "Parent → Child", path)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryPathUnknownID(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	cs := NewCategoryStore(db)

	id := uuid.New()
	mock.ExpectQuery(qPathStep).WithArgs(id).WillReturnError(sql.ErrNoRows)

	path, err := cs.Path(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, path)
}

// TestCategoryPathTerminatesOnArbitraryGraphs feeds Path random parent
// links, cycles and dangling references included, and checks that the
// walk visits each id at most once.
func TestCategoryPathTerminatesOnArbitraryGraphs(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 12).Draw(t, "nodes")
		ids := make([]uuid.UUID, n)
		for i := range ids {
			ids[i] = uuid.New()
		}
		// parent[i] == -1 means root, n means a dangling reference.
		parent := make([]int, n)
		for i := range parent {
			parent[i] = rapid.IntRange(-1, n).Draw(t, fmt.Sprintf("parent%d", i))
		}
		start := rapid.IntRange(0, n-1).Draw(t, "start")

		db, mock := newMockDB(t)
		defer db.Close()

		visited := map[int]bool{}
		var want []string
		missing := uuid.New()
		for cur := start; ; {
			if cur == n {
				mock.ExpectQuery(qPathStep).WithArgs(missing).WillReturnError(sql.ErrNoRows)
				break
			}
			if visited[cur] {
				break
			}
			visited[cur] = true
			name := fmt.Sprintf("node-%d", cur)
			want = append([]string{name}, want...)

			rows := sqlmock.NewRows([]string{"name", "parent_id"})
			switch p := parent[cur]; p {
			case -1:
				rows.AddRow(name, nil)
			case n:
				rows.AddRow(name, missing.String())
			default:
				rows.AddRow(name, ids[p].String())
			}
			mock.ExpectQuery(qPathStep).WithArgs(ids[cur]).WillReturnRows(rows)
			if parent[cur] == -1 {
				break
			}
			cur = parent[cur]
		}

		path, err := NewCategoryStore(db).Path(context.Background(), ids[start])
		if err != nil {
			t.Fatalf("Path: %v", err)
		}
		if path != strings.Join(want, models.PathSeparator) {
			t.Fatalf("path: got %q, want %q", path, strings.Join(want, models.PathSeparator))
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("walk diverged: %v", err)
		}
	})
}

func TestCategoryCreateLostRaceIsConflict(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	cs := NewCategoryStore(db)

	mock.ExpectQuery(qSiblingName).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(qInsertCategory).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, Message: "duplicate key"})

	_, err := cs.Create(context.Background(), models.NewCategory{Name: "Poetry"})
	var conflict *models.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ErrorIs(t, err, models.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryCreateDuplicatePrecheck(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	cs := NewCategoryStore(db)

	mock.ExpectQuery(qSiblingName).WithArgs("Poetry", nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	_, err := cs.Create(context.Background(), models.NewCategory{Name: "  Poetry  "})
	assert.ErrorIs(t, err, models.ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCategoryCreateInvalidNeverTouchesDB(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	cs := NewCategoryStore(db)

	_, err := cs.Create(context.Background(), models.NewCategory{Name: " x "})
	assert.ErrorIs(t, err, models.ErrValidation)
	require.NoError(t, mock.ExpectationsWereMet())
}

func expectBookInsert(mock sqlmock.Sqlmock, id uuid.UUID) {
	mock.ExpectQuery(qCategoryExists).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(qReferenceTaken).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(qInsertBook).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(id.String()))
}

func TestBookCreateBulkCountsFailures(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()

	invalidations := 0
	bs := NewBookStore(db, WithInvalidation(func(context.Context) { invalidations++ }))

	cat := uuid.New()
	var records []models.NewBook
	for i, title := range []string{"One", "Two", "", "Four", "Five"} {
		records = append(records, models.NewBook{
			Title:         title,
			FileReference: fmt.Sprintf("ref-%d", i),
			FileKind:      models.FileKindPDF,
			CategoryID:    cat,
		})
		if title != "" {
			expectBookInsert(mock, uuid.New())
		}
	}

	ok, failed := bs.CreateBulk(context.Background(), records)
	assert.Equal(t, 4, ok)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, invalidations)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookCreateUniqueViolationIsDuplicate(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	bs := NewBookStore(db)

	mock.ExpectQuery(qCategoryExists).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(qReferenceTaken).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery(qInsertBook).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation})

	_, err := bs.Create(context.Background(), models.NewBook{
		Title: "Raced", FileReference: "ref-1", FileKind: models.FileKindPDF, CategoryID: uuid.New(),
	})
	assert.ErrorIs(t, err, models.ErrDuplicate)
	assert.ErrorIs(t, err, models.ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBookIncrementMissingIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	bs := NewBookStore(db)

	id := uuid.New()
	mock.ExpectQuery(`(?s)UPDATE books SET download_count = download_count \+ 1`).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err := bs.IncrementDownloadCount(context.Background(), id)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRestoreConflictNamesViolatedIndex(t *testing.T) {
	bookErr := &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: bookReferenceIndex}
	err := restoreConflict(bookErr, "Fiction")
	var dup *models.DuplicateError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "book", dup.Entity)
	assert.Equal(t, "file_reference", dup.Field)
	assert.ErrorIs(t, err, models.ErrConflict)

	nameErr := &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "idx_categories_live_name"}
	err = restoreConflict(nameErr, "Fiction")
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "category", dup.Entity)
	assert.Equal(t, "name", dup.Field)
	assert.Equal(t, "Fiction", dup.Value)
}

func TestOrderClauseWhitelist(t *testing.T) {
	tests := []struct {
		sort models.BookSort
		want string
	}{
		{sort: models.BookSort{By: models.SortByTitle}, want: " ORDER BY b.title ASC NULLS LAST, b.id"},
		{sort: models.BookSort{By: models.SortByDownloadCount, Desc: true}, want: " ORDER BY b.download_count DESC NULLS LAST, b.id"},
		{sort: models.BookSort{By: "title; DROP TABLE books"}, want: " ORDER BY b.created_at DESC NULLS LAST, b.id"},
		{sort: models.BookSort{}, want: " ORDER BY b.created_at DESC NULLS LAST, b.id"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, orderClause(tt.sort), "sort %+v", tt.sort)
	}
}

func TestFilterWhere(t *testing.T) {
	cat := uuid.New()
	kind := models.FileKindAudio

	w := filterWhere(models.BookFilter{CategoryID: &cat, Kind: &kind})
	assert.Equal(t, " WHERE NOT b.is_deleted AND b.category_id = $1 AND b.file_kind = $2", w.String())
	assert.Equal(t, []any{cat, "audio"}, w.args)
	assert.Equal(t, "$3", w.next())

	assert.Equal(t, " WHERE b.is_deleted", filterWhere(models.BookFilter{OnlyDeleted: true}).String())
	assert.Equal(t, "", filterWhere(models.BookFilter{IncludeDeleted: true}).String())
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\% \_pure\\`, escapeLike(`100% _pure\`))
}
