package ratelimit

import (
	"context"
	"time"
)

// Result describes one admission decision.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects a request for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// AllowAll admits everything. It is used when rate limiting is disabled.
type AllowAll struct{}

func (AllowAll) Allow(context.Context, string) (*Result, error) {
	return &Result{Allowed: true}, nil
}
