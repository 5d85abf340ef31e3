// Package session persists upload sessions between chat turns. Sessions
// are stored as JSON keyed by operator id, in Valkey with a sliding TTL or
// in process memory.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"librarybot/internal/models"
	"librarybot/internal/upload"
)

const (
	// DefaultTTL is how long an idle upload session survives.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces upload sessions in Valkey.
	keyPrefix = "upload:session:"
)

// Key returns the Valkey key holding operator's session.
func Key(operator models.ActorID) string {
	return keyPrefix + strconv.FormatInt(int64(operator), 10)
}

// ValkeyStore keeps sessions in Valkey. Every save resets the TTL, so a
// session expires only after DefaultTTL (or the configured TTL) of inactivity.
type ValkeyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewValkeyStore creates a store backed by client. A zero ttl uses DefaultTTL.
func NewValkeyStore(client *redis.Client, ttl time.Duration) *ValkeyStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ValkeyStore{client: client, ttl: ttl}
}

// Load returns the operator's session, or upload.ErrNoSession when there
// is none or it has expired.
func (s *ValkeyStore) Load(ctx context.Context, operator models.ActorID) (*upload.Session, error) {
	payload, err := s.client.Get(ctx, Key(operator)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, upload.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("session get: %w", err)
	}

	var sess upload.Session
	if err := json.Unmarshal(payload, &sess); err != nil {
		return nil, fmt.Errorf("session unmarshal: %w", err)
	}
	return &sess, nil
}

// Save writes the session and refreshes its TTL.
func (s *ValkeyStore) Save(ctx context.Context, sess *upload.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("session marshal: %w", err)
	}
	if err := s.client.Set(ctx, Key(sess.Operator), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("session store: %w", err)
	}
	return nil
}

// Delete removes the operator's session. Deleting a missing session is
// not an error.
func (s *ValkeyStore) Delete(ctx context.Context, operator models.ActorID) error {
	if err := s.client.Del(ctx, Key(operator)).Err(); err != nil {
		return fmt.Errorf("session delete: %w", err)
	}
	return nil
}

// Count returns how many sessions are stored. Valkey expires keys on its
// own, so this is the number of unexpired sessions.
func (s *ValkeyStore) Count(ctx context.Context) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("session scan: %w", err)
	}
	return n, nil
}
