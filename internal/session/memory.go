package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"librarybot/internal/models"
	"librarybot/internal/upload"
)

type memoryEntry struct {
	payload []byte
	expires time.Time
}

// MemoryStore keeps sessions in process memory with the same expiry rules
// as ValkeyStore. Sessions are stored serialized so callers never share
// state with the store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[models.ActorID]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an empty store. A zero ttl uses DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		entries: make(map[models.ActorID]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (m *MemoryStore) Load(_ context.Context, operator models.ActorID) (*upload.Session, error) {
	m.mu.Lock()
	e, ok := m.entries[operator]
	if ok && !m.now().Before(e.expires) {
		delete(m.entries, operator)
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return nil, upload.ErrNoSession
	}

	var sess upload.Session
	if err := json.Unmarshal(e.payload, &sess); err != nil {
		return nil, fmt.Errorf("session unmarshal: %w", err)
	}
	return &sess, nil
}

func (m *MemoryStore) Save(_ context.Context, sess *upload.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session marshal: %w", err)
	}
	m.mu.Lock()
	m.entries[sess.Operator] = memoryEntry{payload: payload, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, operator models.ActorID) error {
	m.mu.Lock()
	delete(m.entries, operator)
	m.mu.Unlock()
	return nil
}

// Len reports how many unexpired sessions are held.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	now := m.now()
	for _, e := range m.entries {
		if now.Before(e.expires) {
			n++
		}
	}
	return n
}

// Count is Len in the shape the metrics gauge expects.
func (m *MemoryStore) Count(context.Context) (int, error) {
	return m.Len(), nil
}
