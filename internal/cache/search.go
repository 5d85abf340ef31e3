// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"librarybot/internal/models"
)

const (
	searchKeyPrefix = "search:"

	// DefaultSearchSize is how many searches one session keeps.
	DefaultSearchSize = 100

	// DefaultSearchTTL is how long an idle session's searches are kept.
	DefaultSearchTTL = time.Hour
)

// Search is a query remembered so later pages can be fetched by token.
type Search struct {
	Query     string          `json:"query"`
	Kind      models.FileKind `json:"kind,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ErrSearchExpired is returned when a token is unknown to the session,
// either evicted or expired.
var ErrSearchExpired = errors.New("search expired")

// newToken returns an opaque search token short enough for chat callback data.
func newToken() string {
	id := uuid.New()
	return fmt.Sprintf("%x", id[:6])
}

// SearchCache keeps the most recent searches of each session in Valkey:
// a hash of token to search and a list of tokens in insertion order.
// When a session exceeds its size the oldest searches are evicted.
type SearchCache struct {
	client  *redis.Client
	size    int
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
}

// NewSearchCache creates a search cache. Zero values select the defaults.
func NewSearchCache(client *redis.Client, size int, ttl time.Duration) *SearchCache {
	if size <= 0 {
		size = DefaultSearchSize
	}
	if ttl <= 0 {
		ttl = DefaultSearchTTL
	}
	return &SearchCache{client: client, size: size, ttl: ttl, breaker: newBreaker("search")}
}

func searchKeys(session string) (entries, order string) {
	base := searchKeyPrefix + session
	return base + ":entries", base + ":order"
}

// Put remembers s for session and returns its token.
func (c *SearchCache) Put(ctx context.Context, session string, s Search) (string, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("search encode: %w", err)
	}
	token := newToken()
	entries, order := searchKeys(session)

	_, err = c.breaker.Execute(func() (interface{}, error) {
		pipe := c.client.TxPipeline()
		pipe.HSet(ctx, entries, token, payload)
		pipe.RPush(ctx, order, token)
		length := pipe.LLen(ctx, order)
		pipe.Expire(ctx, entries, c.ttl)
		pipe.Expire(ctx, order, c.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, err
		}

		overflow := length.Val() - int64(c.size)
		if overflow <= 0 {
			return nil, nil
		}
		evicted, err := c.client.LPopCount(ctx, order, int(overflow)).Result()
		if err != nil {
			return nil, err
		}
		if len(evicted) > 0 {
			return nil, c.client.HDel(ctx, entries, evicted...).Err()
		}
		return nil, nil
	})
	if err != nil {
		return "", fmt.Errorf("search put: %w", err)
	}
	return token, nil
}

// Get returns the search stored under token, or ErrSearchExpired.
func (c *SearchCache) Get(ctx context.Context, session, token string) (Search, error) {
	entries, _ := searchKeys(session)
	v, err := c.breaker.Execute(func() (interface{}, error) {
		return c.client.HGet(ctx, entries, token).Bytes()
	})
	if errors.Is(err, redis.Nil) {
		record("search", resultMiss)
		return Search{}, ErrSearchExpired
	}
	if err != nil {
		record("search", resultError)
		slog.Warn("search cache get error", "session", session, "error", err)
		return Search{}, fmt.Errorf("search get: %w", err)
	}

	var s Search
	if err := json.Unmarshal(v.([]byte), &s); err != nil {
		record("search", resultError)
		return Search{}, fmt.Errorf("search decode: %w", err)
	}
	record("search", resultHit)
	return s, nil
}
