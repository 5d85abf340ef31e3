// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"librarybot/internal/models"
)

const (
	statsKey    = "stats:catalog"
	statsGenKey = "stats:catalog:gen"

	// DefaultStatsTTL bounds how stale memoized statistics can get when an
	// invalidation is lost.
	DefaultStatsTTL = 5 * time.Minute
)

// setIfGeneration writes the memo only while the generation counter still
// holds the value the caller read before computing.
var setIfGeneration = redis.NewScript(`
local cur = redis.call('GET', KEYS[2])
if cur == false then cur = '0' end
if cur ~= ARGV[1] then return 0 end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// StatsMemo memoizes catalog statistics in Valkey. Stores invalidate it
// after every mutation; the TTL is only a backstop. Every invalidation
// bumps a generation counter so a computation that raced a mutation is
// never written back.
type StatsMemo struct {
	client  *redis.Client
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
}

// NewStatsMemo creates a memo backed by client. A zero ttl uses DefaultStatsTTL.
func NewStatsMemo(client *redis.Client, ttl time.Duration) *StatsMemo {
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	return &StatsMemo{client: client, ttl: ttl, breaker: newBreaker("stats")}
}

// Get returns the memoized statistics. Errors are logged and reported as
// a miss.
func (m *StatsMemo) Get(ctx context.Context) (*models.Statistics, bool) {
	v, err := m.breaker.Execute(func() (interface{}, error) {
		return m.client.Get(ctx, statsKey).Bytes()
	})
	if errors.Is(err, redis.Nil) {
		record("stats", resultMiss)
		return nil, false
	}
	if err != nil {
		record("stats", resultError)
		slog.Warn("stats memo get error", "error", err)
		return nil, false
	}

	var st models.Statistics
	if err := json.Unmarshal(v.([]byte), &st); err != nil {
		record("stats", resultError)
		slog.Warn("stats memo decode error", "error", err)
		return nil, false
	}
	record("stats", resultHit)
	return &st, true
}

// Generation returns the invalidation counter. A missing counter is 0.
func (m *StatsMemo) Generation(ctx context.Context) (uint64, error) {
	v, err := m.breaker.Execute(func() (interface{}, error) {
		return m.client.Get(ctx, statsGenKey).Uint64()
	})
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

// Set stores st unless the memo was invalidated after gen was read.
func (m *StatsMemo) Set(ctx context.Context, gen uint64, st models.Statistics) {
	payload, err := json.Marshal(st)
	if err != nil {
		slog.Warn("stats memo encode error", "error", err)
		return
	}
	v, err := m.breaker.Execute(func() (interface{}, error) {
		return setIfGeneration.Run(ctx, m.client, []string{statsKey, statsGenKey},
			strconv.FormatUint(gen, 10), payload, m.ttl.Milliseconds()).Int()
	})
	if err != nil {
		slog.Warn("stats memo set error", "error", err)
		return
	}
	if v.(int) == 0 {
		slog.Debug("stats memo set skipped, invalidated meanwhile", "generation", gen)
	}
}

func (m *StatsMemo) Invalidate(ctx context.Context) {
	_, err := m.breaker.Execute(func() (interface{}, error) {
		_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Incr(ctx, statsGenKey)
			pipe.Del(ctx, statsKey)
			return nil
		})
		return nil, err
	})
	if err != nil {
		slog.Warn("stats memo invalidate error", "error", err)
		return
	}
	slog.Debug("stats memo invalidated")
}
