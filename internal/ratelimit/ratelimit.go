// Package ratelimit implements the admission gate: a fixed-window counter in
// Redis keyed by the inbound credential token. Tokens are the key, not client
// addresses, since multiple senders can share infrastructure.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// RedisCmds is the slice of the go-redis client the gate uses.
type RedisCmds interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	PExpire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	PTTL(ctx context.Context, key string) *redis.DurationCmd
}

// Decision is the gate's verdict for one request.
type Decision struct {
	Allowed    bool
	Remaining  int           // requests left in the current window
	RetryAfter time.Duration // time until the window resets; zero when allowed
}

// Limiter is a fixed-window rate limiter. The window key expires with the
// window itself, so idle tokens hold no state.
type Limiter struct {
	rdb    RedisCmds
	max    int
	window time.Duration
}

func New(rdb RedisCmds, max int, window time.Duration) *Limiter {
	return &Limiter{rdb: rdb, max: max, window: window}
}

// Allow counts one request against the token's window and decides admission.
// The first hit of a window arms the expiry; rejected requests report the
// remaining window as the retry hint. A Redis failure fails open: the gate
// protects ingestion, it must not become the outage itself.
func (l *Limiter) Allow(ctx context.Context, token string) (Decision, error) {
	key := keyPrefix + token

	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return Decision{Allowed: true, Remaining: l.max}, err
	}

	retryAfter := l.window
	if count == 1 {
		if err := l.rdb.PExpire(ctx, key, l.window).Err(); err != nil {
			return Decision{Allowed: true, Remaining: l.max - 1}, err
		}
	} else if ttl, ttlErr := l.rdb.PTTL(ctx, key).Result(); ttlErr == nil {
		if ttl > 0 {
			retryAfter = ttl
		} else {
			// No expiry on the key means the arming PExpire failed on the
			// window's first hit. Re-arm it here, otherwise the counter
			// never resets and the token is locked out permanently.
			if err := l.rdb.PExpire(ctx, key, l.window).Err(); err != nil && count <= int64(l.max) {
				return Decision{Allowed: true, Remaining: l.max - int(count)}, err
			}
		}
	}

	if count <= int64(l.max) {
		return Decision{Allowed: true, Remaining: l.max - int(count)}, nil
	}
	return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
}
