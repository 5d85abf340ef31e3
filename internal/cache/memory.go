package cache

import (
	"context"
	"sync"
)

type memorySession struct {
	entries map[string]Search
	order   []string
}

// MemorySearchCache is the in-process counterpart of SearchCache. It
// applies the same per-session bound and eviction order but never expires.
type MemorySearchCache struct {
	mu       sync.Mutex
	size     int
	sessions map[string]*memorySession
}

// NewMemorySearchCache creates an empty cache. A zero size uses DefaultSearchSize.
func NewMemorySearchCache(size int) *MemorySearchCache {
	if size <= 0 {
		size = DefaultSearchSize
	}
	return &MemorySearchCache{size: size, sessions: make(map[string]*memorySession)}
}

func (c *MemorySearchCache) Put(_ context.Context, session string, s Search) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[session]
	if !ok {
		sess = &memorySession{entries: make(map[string]Search)}
		c.sessions[session] = sess
	}

	token := newToken()
	sess.entries[token] = s
	sess.order = append(sess.order, token)
	for len(sess.order) > c.size {
		delete(sess.entries, sess.order[0])
		sess.order = sess.order[1:]
	}
	return token, nil
}

func (c *MemorySearchCache) Get(_ context.Context, session, token string) (Search, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sess, ok := c.sessions[session]; ok {
		if s, ok := sess.entries[token]; ok {
			record("search", resultHit)
			return s, nil
		}
	}
	record("search", resultMiss)
	return Search{}, ErrSearchExpired
}
