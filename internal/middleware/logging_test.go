package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"librarybot/internal/metrics"
)

func TestLogger(t *testing.T) {
	t.Run("passes the status through", func(t *testing.T) {
		handler := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/missing", nil))

		if rr.Code != http.StatusNotFound {
			t.Errorf("status: got %d, want 404", rr.Code)
		}
	})

	t.Run("body without WriteHeader", func(t *testing.T) {
		handler := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("hello"))
		}))

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		if rr.Code != http.StatusOK || rr.Body.String() != "hello" {
			t.Errorf("got %d %q", rr.Code, rr.Body.String())
		}
	})

	t.Run("observes the route pattern", func(t *testing.T) {
		r := chi.NewRouter()
		r.Use(Logger)
		r.Get("/api/books/{id}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})

		before := testutil.CollectAndCount(metrics.HTTPRequestDuration)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/books/123", nil))
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/books/456", nil))

		if rr.Code != http.StatusTeapot {
			t.Fatalf("status: got %d", rr.Code)
		}
		if got := testutil.CollectAndCount(metrics.HTTPRequestDuration) - before; got != 1 {
			t.Errorf("expected one new series for both requests, got %d", got)
		}
	})
}

func TestRoutePatternUnmatched(t *testing.T) {
	if got := routePattern(httptest.NewRequest(http.MethodGet, "/x", nil)); got != "unmatched" {
		t.Errorf("got %q, want unmatched", got)
	}
}

// TestResponseWriter checks the status capture the Logger relies on.
func TestResponseWriter(t *testing.T) {
	t.Run("first WriteHeader wins", func(t *testing.T) {
		rw := &responseWriter{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
		rw.WriteHeader(http.StatusNotFound)
		rw.WriteHeader(http.StatusInternalServerError)

		if rw.statusCode != http.StatusNotFound || !rw.written {
			t.Errorf("statusCode=%d written=%v", rw.statusCode, rw.written)
		}
	})

	t.Run("Write defaults to 200", func(t *testing.T) {
		rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
		n, err := rw.Write([]byte("test"))
		if err != nil || n != 4 {
			t.Fatalf("Write: n=%d err=%v", n, err)
		}
		if rw.statusCode != http.StatusOK || !rw.written {
			t.Errorf("statusCode=%d written=%v", rw.statusCode, rw.written)
		}
	})

	t.Run("Write keeps explicit status", func(t *testing.T) {
		rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
		rw.WriteHeader(http.StatusCreated)
		rw.Write([]byte("created"))

		if rw.statusCode != http.StatusCreated {
			t.Errorf("statusCode: got %d, want 201", rw.statusCode)
		}
	})
}
