package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles per client and path using a counter in redis, so the
// limit holds across instances. Location reports arrive every few seconds per
// driver; the window must be sized with that in mind.
type RateLimiter struct {
	redis    *redis.Client
	requests int
	window   time.Duration
}

func NewRateLimiter(redisClient *redis.Client, requests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:    redisClient,
		requests: requests,
		window:   window,
	}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Stream connections are one long request; counting them would lock
		// out reconnecting clients.
		if strings.HasSuffix(r.URL.Path, "/stream") {
			next.ServeHTTP(w, r)
			return
		}

		clientID := r.Header.Get(ActorHeader)
		if clientID == "" {
			clientID = r.RemoteAddr
			if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
				clientID = forwarded
			}
		}

		key := fmt.Sprintf("ratelimit:%s:%s", clientID, r.URL.Path)
		ctx := r.Context()

		allowed, remaining, err := rl.isAllowed(ctx, key)
		if err != nil {
			// Fail open: losing redis must not take the API down with it.
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", rl.requests))
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))

		if !allowed {
			writeJSONError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "too many requests, please try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) isAllowed(ctx context.Context, key string) (bool, int, error) {
	pipe := rl.redis.Pipeline()

	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.window)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return true, rl.requests, err
	}

	count := int(incr.Val())
	remaining := rl.requests - count
	if remaining < 0 {
		remaining = 0
	}

	return count <= rl.requests, remaining, nil
}
