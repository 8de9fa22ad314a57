// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header on unsafe methods and
// stashes the normalized key in the Gin context. When a lookup reports that
// the key was already completed, the request is flagged as a replay and
// skips rate limiting.
package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// HeaderIdempotencyKey is the request header carrying a client retry key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)

// IdempotencyOptions bounds the accepted key format.
type IdempotencyOptions struct {
	// MaxLen caps the key length; <= 0 means 200.
	MaxLen int
	// Pattern restricts the allowed characters; nil means token characters
	// plus '.', '_', '~', '-' and ':'.
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether a live record exists for key under
// scope. Expiry is the lookup's concern.
type IdempotencyLookup func(ctx context.Context, scope, key string) (bool, error)

// IdempotencyScope names the operation a key is bound to: the method and
// the registered route, e.g. "POST /api/v1/translations". The same key
// sent to another route is a different request.
func IdempotencyScope(c *gin.Context) string {
	return c.Request.Method + " " + routeOf(c)
}

// GetIdempotencyKey returns the validated key stashed by
// IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	s := c.GetString(ctxKeyIdemKey)
	return s, s != ""
}

// IsReplay reports whether a record already exists for this request's key.
func IsReplay(c *gin.Context) bool { return c.GetBool(ctxKeyIdemReplay) }

// IsRateBypass reports whether the rate limiter should let this request
// through; replays do no work and are not counted.
func IsRateBypass(c *gin.Context) bool { return c.GetBool(ctxKeyRateBypass) }

// IdempotencyValidator validates the Idempotency-Key header on unsafe
// methods and stashes it for the handler. Requests without the header pass
// untouched; a malformed key is rejected with 400. When lookup finds a
// live record the request is marked as a replay. Lookup errors are logged
// and the request proceeds as a first attempt.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || isSafeMethod(c.Request.Method) {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get(requestIDHeader),
				"code":       "bad_request",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			exists, err := lookup(c.Request.Context(), IdempotencyScope(c), key)
			if err != nil {
				log.Warn().Err(err).Str("idempotency_key", key).Msg("idempotency lookup failed")
			}
			if exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
