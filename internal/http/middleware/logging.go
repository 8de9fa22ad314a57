// Package middleware contains the Gin middleware of the HTTP layer: request
// ids, access logging with redaction, panic recovery, metrics, rate
// limiting, idempotency keys and security headers.
//
// Recommended order: RequestID, Logger, Recovery, then the rest, so that
// panics and rejections are logged with the correlation id.
package middleware

import (
	"net/http"
	"net/url"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	maxQueryLogLength = 2048
	redacted          = "[REDACTED]"
)

// RequestID propagates X-Request-ID or mints a UUIDv4, and echoes it on the
// response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if rid == "" || len(rid) > 128 {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// LogOptions extends the built-in redaction lists. Matching is
// case-insensitive.
type LogOptions struct {
	// MaskHeaders are logged as [REDACTED] in addition to Authorization,
	// Cookie and Set-Cookie.
	MaskHeaders []string
	// MaskQuery are query parameters whose values are replaced.
	MaskQuery []string
	// LogHeaders lists request headers copied into the access log.
	LogHeaders []string
}

var emailRE = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)

type redactor struct {
	headers map[string]struct{}
	query   map[string]struct{}
	logged  []string
}

func newRedactor(opts LogOptions) *redactor {
	r := &redactor{
		headers: lowerSet([]string{"authorization", "cookie", "set-cookie"}, opts.MaskHeaders),
		query:   lowerSet([]string{"token", "access_token", "api_key", "password"}, opts.MaskQuery),
		logged:  opts.LogHeaders,
	}
	return r
}

func lowerSet(base, extra []string) map[string]struct{} {
	m := make(map[string]struct{}, len(base)+len(extra))
	for _, s := range append(base, extra...) {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			m[s] = struct{}{}
		}
	}
	return m
}

// scrubQuery masks listed parameters and e-mail addresses. Unparseable
// queries are dropped entirely.
func (r *redactor) scrubQuery(raw string) string {
	if raw == "" {
		return ""
	}
	vals, err := url.ParseQuery(raw)
	if err != nil {
		return redacted
	}
	for k, vv := range vals {
		_, mask := r.query[strings.ToLower(k)]
		for i, v := range vv {
			if mask {
				vv[i] = redacted
			} else {
				vv[i] = emailRE.ReplaceAllString(v, "[REDACTED:email]")
			}
		}
	}
	return truncate(vals.Encode(), maxQueryLogLength)
}

func (r *redactor) headerDict(h http.Header) *zerolog.Event {
	d := zerolog.Dict()
	for _, name := range r.logged {
		v := h.Get(name)
		if v == "" {
			continue
		}
		if _, mask := r.headers[strings.ToLower(name)]; mask {
			v = redacted
		}
		d.Str(name, v)
	}
	return d
}

// Logger writes one structured access log per request and stores a
// request-scoped logger in the context for handlers (see LoggerFrom).
// Level follows the outcome: error for 5xx or recorded gin errors, warn for
// 4xx, info otherwise. Bodies are never logged.
func Logger(opts LogOptions) gin.HandlerFunc {
	red := newRedactor(opts)

	return func(c *gin.Context) {
		start := time.Now()

		l := log.With().
			Str("request_id", c.GetString(requestIDKey)).
			Str("method", c.Request.Method).
			Str("path", routeOf(c)).
			Logger()
		c.Set(loggerKey, &l)

		query := red.scrubQuery(c.Request.URL.RawQuery)
		headers := red.headerDict(c.Request.Header)

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0 || status >= http.StatusInternalServerError:
			ev = l.Error()
			if len(c.Errors) > 0 {
				ev = ev.Str("errors", c.Errors.String())
			}
		case status >= http.StatusBadRequest:
			ev = l.Warn()
		default:
			ev = l.Info()
		}
		ev.Str("query", query).
			Dict("headers", headers).
			Str("remote_ip", c.ClientIP()).
			Int64("bytes_in", c.Request.ContentLength).
			Int("status", status).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

// Recovery turns a panic into a JSON 500 carrying the request id and logs
// the stack.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			rid := c.GetString(requestIDKey)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// Logger is not installed. Never nil.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Str("request_id", c.GetString(requestIDKey)).Logger()
	return &l
}

func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
