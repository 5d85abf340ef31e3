// store_test.go provides a shared test database helper for all store
// integration tests. Tests are skipped if PostgreSQL is not available.
package store

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"librarybot/internal/database"
	"librarybot/internal/models"
)

// testDSN returns the PostgreSQL connection string for testing.
// Uses environment variables with defaults matching docker-compose.yml.
func testDSN() string {
	host := envOr("POSTGRES_HOST", "localhost")
	port := envOr("POSTGRES_PORT", "5432")
	user := envOr("POSTGRES_USER", "librarybot")
	pass := envOr("POSTGRES_PASSWORD", "changeme")
	name := envOr("POSTGRES_DB", "librarybot")
	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=disable"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// testDB opens a connection to the test database and runs migrations.
// If the database is unavailable, the test is skipped. A cleanup
// function is registered to close the connection when the test finishes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("pgx", testDSN())
	if err != nil {
		t.Skipf("skipping integration test: cannot open DB: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping integration test: DB not reachable: %v", err)
	}

	if err := database.Migrate(db); err != nil {
		db.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// uniqueName returns a category name that will not collide across runs.
func uniqueName(prefix string) string {
	return prefix + " " + uuid.NewString()[:8]
}

// newRoot creates a main category and registers a hard delete of its
// whole subtree (books included) for cleanup.
func newRoot(t *testing.T, cs *CategoryStore, name string) uuid.UUID {
	t.Helper()
	id, err := cs.Create(context.Background(), models.NewCategory{Name: name, CreatedBy: 1})
	if err != nil {
		t.Fatalf("create root %q: %v", name, err)
	}
	t.Cleanup(func() { _ = cs.Delete(context.Background(), id, true) })
	return id
}

func newChild(t *testing.T, cs *CategoryStore, parent uuid.UUID, name string) uuid.UUID {
	t.Helper()
	id, err := cs.Create(context.Background(), models.NewCategory{Name: name, ParentID: &parent, CreatedBy: 1})
	if err != nil {
		t.Fatalf("create child %q: %v", name, err)
	}
	return id
}

func newPDF(t *testing.T, bs *BookStore, category uuid.UUID, title string) uuid.UUID {
	t.Helper()
	id, err := bs.Create(context.Background(), models.NewBook{
		Title:         title,
		FileReference: "ref-" + uuid.NewString(),
		FileKind:      models.FileKindPDF,
		CategoryID:    category,
		UploadedBy:    1,
	})
	if err != nil {
		t.Fatalf("create book %q: %v", title, err)
	}
	return id
}

func strPtr(s string) *string { return &s }

func kindPtr(k models.FileKind) *models.FileKind { return &k }
