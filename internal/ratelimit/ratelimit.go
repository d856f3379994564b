// Package ratelimit provides a process-wide registry of per-provider rate
// limiters. Every outbound provider call contends for the same limiter
// instance for its provider key, making the limiter the serialization point
// described by the concurrency model: concurrent tasks cooperatively share
// one provider's request budget.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Registry holds one *rate.Limiter per provider key.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{limiters: make(map[string]*rate.Limiter)}
}

// Limiter returns the limiter for key, constructing it with the given
// requests-per-second rate (and a burst of 1) on first use.
func (r *Registry) Limiter(key string, rps float64) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(rate.Limit(rps), 1)
		r.limiters[key] = l
	}
	return l
}

// Wait blocks until key's limiter admits one request, or ctx is done.
func (r *Registry) Wait(ctx context.Context, key string, rps float64) error {
	return r.Limiter(key, rps).Wait(ctx)
}
