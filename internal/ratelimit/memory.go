package ratelimit

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/smallbiznis/packhub/internal/clock"
)

// MemoryLimiter is a per-key token bucket held in process memory.
type MemoryLimiter struct {
	clock clock.Clock
	rate  float64
	burst int

	mu      sync.Mutex
	buckets map[string]*memoryBucket
}

type memoryBucket struct {
	tokens float64
	ts     time.Time
}

func NewMemoryLimiter(clk clock.Clock, rate float64, burst int) (*MemoryLimiter, error) {
	if rate <= 0 {
		return nil, errors.New("rate limiter rate must be positive")
	}
	if burst <= 0 {
		return nil, errors.New("rate limiter burst must be positive")
	}
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &MemoryLimiter{
		clock:   clk,
		rate:    rate,
		burst:   burst,
		buckets: make(map[string]*memoryBucket),
	}, nil
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (*Result, error) {
	if key == "" {
		return &Result{Allowed: false}, errors.New("rate limiter key is empty")
	}

	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &memoryBucket{tokens: float64(l.burst), ts: now}
		l.buckets[key] = b
	} else if elapsed := now.Sub(b.ts); elapsed > 0 {
		b.tokens = math.Min(float64(l.burst), b.tokens+elapsed.Seconds()*l.rate)
		b.ts = now
	}

	result := &Result{Limit: l.burst}
	if b.tokens >= 1 {
		b.tokens--
		result.Allowed = true
	} else {
		result.RetryAfter = time.Duration((1 - b.tokens) / l.rate * float64(time.Second))
	}
	result.Remaining = int(b.tokens)
	return result, nil
}

// Reset forgets every bucket.
func (l *MemoryLimiter) Reset() {
	l.mu.Lock()
	l.buckets = make(map[string]*memoryBucket)
	l.mu.Unlock()
}
