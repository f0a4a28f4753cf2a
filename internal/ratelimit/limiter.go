package ratelimit

import "context"

// RateLimiter controls outbound delivery throughput per scope.
type RateLimiter interface {
	Allow(ctx context.Context, scope string) (bool, error)
	Wait(ctx context.Context, scope string) error
}
