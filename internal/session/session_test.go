package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"librarybot/internal/upload"
)

// testValkeyClient returns a Redis client connected to the test Valkey.
// Skips the test if Valkey is unavailable.
func testValkeyClient(t *testing.T) *redis.Client {
	t.Helper()

	host := envOr("VALKEY_HOST", "localhost")
	port := envOr("VALKEY_PORT", "6379")
	password := os.Getenv("VALKEY_PASSWORD")

	client := redis.NewClient(&redis.Options{
		Addr:     host + ":" + port,
		Password: password,
		DB:       15, // Use DB 15 for tests to isolate from dev data.
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("skipping integration test: Valkey not reachable: %v", err)
	}

	t.Cleanup(func() {
		keys, _ := client.Keys(ctx, keyPrefix+"*").Result()
		if len(keys) > 0 {
			client.Del(ctx, keys...)
		}
		client.Close()
	})

	return client
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func sampleSession() *upload.Session {
	cat := uuid.New()
	author := "Alisher Navoiy"
	s := upload.NewSession(4242, upload.ModeBatch, time.Now().UTC().Truncate(time.Second))
	s.State = upload.AwaitNarrator
	s.CategoryID = &cat
	s.Current = &upload.Record{FileReference: "file-1", FileKind: "audio", Title: "Xamsa", Author: &author}
	s.Queue = []upload.Record{{FileReference: "file-0", FileKind: "pdf", Title: "Devon"}}
	return s
}

func checkRoundTrip(t *testing.T, saved, loaded *upload.Session) {
	t.Helper()
	if loaded.State != saved.State || loaded.Mode != saved.Mode {
		t.Errorf("state/mode: got %s/%s, want %s/%s", loaded.State, loaded.Mode, saved.State, saved.Mode)
	}
	if *loaded.CategoryID != *saved.CategoryID {
		t.Errorf("category: got %s, want %s", *loaded.CategoryID, *saved.CategoryID)
	}
	if loaded.Current == nil || loaded.Current.Title != "Xamsa" || *loaded.Current.Author != "Alisher Navoiy" {
		t.Errorf("current record lost: %+v", loaded.Current)
	}
	if len(loaded.Queue) != 1 || loaded.Queue[0].FileReference != "file-0" {
		t.Errorf("queue lost: %+v", loaded.Queue)
	}
	if !loaded.StartedAt.Equal(saved.StartedAt) {
		t.Errorf("started_at: got %v, want %v", loaded.StartedAt, saved.StartedAt)
	}
}

func TestKey(t *testing.T) {
	if got := Key(4242); got != "upload:session:4242" {
		t.Errorf("Key: got %q", got)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(0)
	s := sampleSession()

	if err := m.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := m.Load(ctx, s.Operator)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	checkRoundTrip(t, s, loaded)

	// The stored copy is independent of the caller's value.
	loaded.Queue = nil
	again, _ := m.Load(ctx, s.Operator)
	if len(again.Queue) != 1 {
		t.Error("mutating a loaded session changed the stored one")
	}
}

func TestMemoryStoreMissing(t *testing.T) {
	_, err := NewMemoryStore(0).Load(context.Background(), 1)
	if !errors.Is(err, upload.ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(time.Minute)
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	s := sampleSession()
	if err := m.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	clock = clock.Add(59 * time.Second)
	if _, err := m.Load(ctx, s.Operator); err != nil {
		t.Fatalf("Load before expiry: %v", err)
	}
	if err := m.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	clock = clock.Add(59 * time.Second)
	if _, err := m.Load(ctx, s.Operator); err != nil {
		t.Fatalf("saving should have refreshed the TTL: %v", err)
	}

	clock = clock.Add(time.Minute)
	if _, err := m.Load(ctx, s.Operator); !errors.Is(err, upload.ErrNoSession) {
		t.Errorf("expected expiry, got %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Len after expiry: %d", m.Len())
	}
}

func TestMemoryStoreCountSkipsExpired(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(time.Minute)
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	first := sampleSession()
	second := sampleSession()
	second.Operator = first.Operator + 1
	_ = m.Save(ctx, first)
	clock = clock.Add(30 * time.Second)
	_ = m.Save(ctx, second)

	if n, err := m.Count(ctx); err != nil || n != 2 {
		t.Fatalf("Count: got %d, %v; want 2", n, err)
	}

	// Nobody touches the first session again; it must drop out on its own.
	clock = clock.Add(45 * time.Second)
	if n, _ := m.Count(ctx); n != 1 {
		t.Errorf("Count after first expiry: got %d, want 1", n)
	}
	clock = clock.Add(time.Minute)
	if n, _ := m.Count(ctx); n != 0 {
		t.Errorf("Count after both expired: got %d, want 0", n)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore(0)
	s := sampleSession()
	_ = m.Save(ctx, s)

	if err := m.Delete(ctx, s.Operator); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := m.Delete(ctx, s.Operator); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := m.Load(ctx, s.Operator); !errors.Is(err, upload.ErrNoSession) {
		t.Errorf("expected ErrNoSession after delete, got %v", err)
	}
}

func TestValkeyStoreRoundTrip(t *testing.T) {
	client := testValkeyClient(t)
	ctx := context.Background()
	v := NewValkeyStore(client, time.Minute)
	s := sampleSession()

	if err := v.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := v.Load(ctx, s.Operator)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	checkRoundTrip(t, s, loaded)

	ttl, err := client.TTL(ctx, Key(s.Operator)).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("unexpected TTL %v", ttl)
	}
}

func TestValkeyStoreMissingAndDelete(t *testing.T) {
	client := testValkeyClient(t)
	ctx := context.Background()
	v := NewValkeyStore(client, 0)

	if v.ttl != DefaultTTL {
		t.Errorf("expected DefaultTTL, got %v", v.ttl)
	}
	if _, err := v.Load(ctx, 777); !errors.Is(err, upload.ErrNoSession) {
		t.Errorf("expected ErrNoSession, got %v", err)
	}

	s := sampleSession()
	s.Operator = 777
	if err := v.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := v.Delete(ctx, 777); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := v.Load(ctx, 777); !errors.Is(err, upload.ErrNoSession) {
		t.Errorf("expected ErrNoSession after delete, got %v", err)
	}
}

func TestValkeyStoreCorruptPayload(t *testing.T) {
	client := testValkeyClient(t)
	ctx := context.Background()
	v := NewValkeyStore(client, time.Minute)

	client.Set(ctx, Key(31), "{not json", time.Minute)
	if _, err := v.Load(ctx, 31); err == nil || errors.Is(err, upload.ErrNoSession) {
		t.Errorf("expected unmarshal error, got %v", err)
	}
}

var (
	_ upload.SessionStore = (*ValkeyStore)(nil)
	_ upload.SessionStore = (*MemoryStore)(nil)
)

func TestValkeyStoreCount(t *testing.T) {
	client := testValkeyClient(t)
	ctx := context.Background()
	v := NewValkeyStore(client, time.Minute)

	before, err := v.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}

	first := sampleSession()
	second := sampleSession()
	second.Operator = first.Operator + 1
	for _, s := range []*upload.Session{first, second} {
		if err := v.Save(ctx, s); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if n, err := v.Count(ctx); err != nil || n != before+2 {
		t.Fatalf("Count: got %d, %v; want %d", n, err, before+2)
	}

	if err := v.Delete(ctx, first.Operator); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n, _ := v.Count(ctx); n != before+1 {
		t.Errorf("Count after delete: got %d, want %d", n, before+1)
	}
}
