// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an in-memory token-bucket rate limiter keyed by a
// pluggable KeyFunc, built on golang.org/x/time/rate. Idle buckets are swept
// opportunistically to bound memory. Replays served by IdempotencyValidator
// bypass the limiter.
package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyFunc derives the bucket a request is charged to.
type KeyFunc func(*gin.Context) string

// KeyByClientIP charges requests to the client address.
func KeyByClientIP() KeyFunc {
	return func(c *gin.Context) string { return "ip:" + c.ClientIP() }
}

// KeyByClientAndClass charges reads and writes to separate buckets per
// client, so a burst of edits does not starve lookups.
func KeyByClientAndClass() KeyFunc {
	return func(c *gin.Context) string {
		class := "write"
		if isSafeMethod(c.Request.Method) {
			class = "read"
		}
		return class + ":" + c.ClientIP()
	}
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a token bucket per key. Idle buckets are evicted
// opportunistically every sweepEvery lookups.
type RateLimiter struct {
	limit rate.Limit
	burst int
	keyFn KeyFunc

	mu      sync.Mutex
	buckets map[string]*bucket
	idleTTL time.Duration
	lookups int
	now     func() time.Time
}

const sweepEvery = 5000

// NewRateLimiter returns a limiter refilling rps tokens per second up to
// burst. rps <= 0 disables limiting.
func NewRateLimiter(rps float64, burst int, keyFn KeyFunc) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if keyFn == nil {
		keyFn = KeyByClientIP()
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		keyFn:   keyFn,
		buckets: make(map[string]*bucket),
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= sweepEvery {
		for k, b := range rl.buckets {
			if now.Sub(b.lastSeen) >= rl.idleTTL {
				delete(rl.buckets, k)
			}
		}
		rl.lookups = 0
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter
}

// Len returns the number of tracked buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Handler rejects requests over the limit with 429 and a Retry-After hint.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit <= 0 || IsRateBypass(c) {
			c.Next()
			return
		}

		lim := rl.limiter(rl.keyFn(c))
		now := rl.now()
		if lim.AllowN(now, 1) {
			c.Next()
			return
		}

		wait := 1
		if r := lim.ReserveN(now, 1); r.OK() {
			wait = int(math.Ceil(r.DelayFrom(now).Seconds()))
			r.CancelAt(now)
		}
		if wait < 1 {
			wait = 1
		}
		c.Header("Retry-After", strconv.Itoa(wait))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}
