package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type lookupCall struct {
	scope, key string
}

type idemSeen struct {
	key            string
	replay, bypass bool
}

func idemRouter(t *testing.T, opts IdempotencyOptions, lookup IdempotencyLookup) (*gin.Engine, *idemSeen) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	seen := &idemSeen{}
	r := gin.New()
	r.Use(IdempotencyValidator(opts, lookup))
	h := func(c *gin.Context) {
		seen.key, _ = GetIdempotencyKey(c)
		seen.replay = IsReplay(c)
		seen.bypass = IsRateBypass(c)
		c.Status(http.StatusOK)
	}
	r.POST("/api/v1/translations", h)
	r.GET("/api/v1/translations", h)
	return r, seen
}

func TestIdempotencyValidator_NoHeader(t *testing.T) {
	called := false
	r, seen := idemRouter(t, IdempotencyOptions{}, func(context.Context, string, string) (bool, error) {
		called = true
		return true, nil
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/translations", nil))
	if w.Code != http.StatusOK || called || seen.key != "" || seen.replay {
		t.Fatalf("code=%d called=%v seen=%+v", w.Code, called, seen)
	}
}

func TestIdempotencyValidator_IgnoredOnSafeMethods(t *testing.T) {
	called := false
	r, seen := idemRouter(t, IdempotencyOptions{}, func(context.Context, string, string) (bool, error) {
		called = true
		return true, nil
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/translations", nil)
	req.Header.Set(HeaderIdempotencyKey, "bad key with spaces")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || called || seen.key != "" {
		t.Fatalf("GET must ignore the header: code=%d called=%v", w.Code, called)
	}
}

func TestIdempotencyValidator_RejectsMalformedKeys(t *testing.T) {
	r, _ := idemRouter(t, IdempotencyOptions{MaxLen: 8}, nil)

	for _, key := range []string{"has space", "emoji-☃", strings.Repeat("a", 9)} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/translations", nil)
		req.Header.Set(HeaderIdempotencyKey, key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("key %q: status = %d; want 400", key, w.Code)
		}
		if !strings.Contains(w.Body.String(), "Idempotency-Key") {
			t.Fatalf("key %q: body = %s", key, w.Body.String())
		}
	}
}

func TestIdempotencyValidator_LookupMissAndHit(t *testing.T) {
	var calls []lookupCall
	hit := false
	r, seen := idemRouter(t, IdempotencyOptions{}, func(_ context.Context, scope, key string) (bool, error) {
		calls = append(calls, lookupCall{scope, key})
		return hit, nil
	})

	send := func() {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/translations", nil)
		req.Header.Set(HeaderIdempotencyKey, "create-1")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	send()
	if seen.key != "create-1" || seen.replay || seen.bypass {
		t.Fatalf("miss: seen=%+v", seen)
	}
	hit = true
	send()
	if !seen.replay || !seen.bypass {
		t.Fatalf("hit: seen=%+v", seen)
	}
	want := lookupCall{"POST /api/v1/translations", "create-1"}
	if len(calls) != 2 || calls[0] != want {
		t.Fatalf("calls = %+v", calls)
	}
}

func TestIdempotencyValidator_LookupErrorProceeds(t *testing.T) {
	_ = captureLogger(t)
	r, seen := idemRouter(t, IdempotencyOptions{}, func(context.Context, string, string) (bool, error) {
		return false, errors.New("db down")
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/translations", nil)
	req.Header.Set(HeaderIdempotencyKey, "k-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || seen.replay || seen.key != "k-1" {
		t.Fatalf("code=%d seen=%+v", w.Code, seen)
	}
}
