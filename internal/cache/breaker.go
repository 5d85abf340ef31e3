// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package cache

import (
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"librarybot/internal/metrics"
)

// newBreaker returns the circuit breaker guarding one cache's Valkey calls.
// A miss (redis.Nil) counts as success. While the breaker is open every
// lookup is a miss and every write is dropped, so the catalog keeps
// answering from PostgreSQL.
func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, redis.Nil)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("cache breaker state changed", "cache", name, "from", from.String(), "to", to.String())
		},
	})
}

// Lookup results recorded in metrics.CacheRequests.
const (
	resultHit   = "hit"
	resultMiss  = "miss"
	resultError = "error"
)

func record(cache, result string) {
	metrics.CacheRequests.WithLabelValues(cache, result).Inc()
}
