package middleware

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// FailureLimiter counts failed credential attempts per subject in a fixed
// one-minute window. A nil limiter or nil cache never blocks.
type FailureLimiter struct {
	cache  *redis.Client
	max    int
	window time.Duration
}

func NewFailureLimiter(cache *redis.Client, maxPerMin int) *FailureLimiter {
	if maxPerMin <= 0 {
		maxPerMin = 10
	}
	return &FailureLimiter{cache: cache, max: maxPerMin, window: time.Minute}
}

func failureKey(subject string) string { return "rl:apikey:" + subject }

// Exceeded reports whether subject has used up its failures. Cache errors fail open.
func (l *FailureLimiter) Exceeded(ctx context.Context, subject string) bool {
	if l == nil || l.cache == nil {
		return false
	}
	n, err := l.cache.Get(ctx, failureKey(subject)).Int()
	if err != nil {
		return false
	}
	return n >= l.max
}

// Record counts one failure for subject.
func (l *FailureLimiter) Record(ctx context.Context, subject string) {
	if l == nil || l.cache == nil {
		return
	}
	key := failureKey(subject)
	cnt, err := l.cache.Incr(ctx, key).Result()
	if err == nil && cnt == 1 {
		l.cache.Expire(ctx, key, l.window)
	}
}
