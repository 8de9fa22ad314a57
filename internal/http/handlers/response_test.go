package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-translation-backend/internal/domain"
)

func serveErr(t *testing.T, err error) (*httptest.ResponseRecorder, *bytes.Buffer) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-ID", "rid-1")
		c.Set("logger", &logger)
		c.Next()
	})
	r.GET("/x", func(c *gin.Context) { failWith(c, err) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w, &buf
}

func TestFailWith_MapsDomainErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.NewValidationError(map[string]string{"key": "is required"}), http.StatusUnprocessableEntity, ErrCodeValidation},
		{fmt.Errorf("wrapped: %w", domain.ErrValidation), http.StatusUnprocessableEntity, ErrCodeValidation},
		{fmt.Errorf("show: %w", domain.ErrNotFound), http.StatusNotFound, ErrCodeNotFound},
		{domain.ErrConflict, http.StatusConflict, ErrCodeConflict},
		{domain.StoreFailure("export", errors.New("disk on fire")), http.StatusInternalServerError, ErrCodeInternal},
		{errors.New("anything else"), http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tc := range cases {
		w, _ := serveErr(t, tc.err)
		if w.Code != tc.status {
			t.Fatalf("%v: status = %d; want %d", tc.err, w.Code, tc.status)
		}
		var resp ErrorResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("json: %v", err)
		}
		if resp.Code != tc.code || resp.RequestID != "rid-1" {
			t.Fatalf("%v: body = %+v", tc.err, resp)
		}
	}
}

func TestFailWith_ValidationCarriesFields(t *testing.T) {
	w, _ := serveErr(t, domain.NewValidationError(map[string]string{
		"translations[fr]": "must not be blank",
		"tags[0]":          "must not be blank",
	}))

	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(resp.Fields) != 2 || resp.Fields["translations[fr]"] != "must not be blank" {
		t.Fatalf("fields = %v", resp.Fields)
	}
}

func TestFailWith_InternalHidesCauseButLogsIt(t *testing.T) {
	w, buf := serveErr(t, errors.New("connection refused to 10.0.0.5"))

	if strings.Contains(w.Body.String(), "10.0.0.5") {
		t.Fatalf("internal detail leaked to client: %s", w.Body.String())
	}
	if !strings.Contains(buf.String(), "10.0.0.5") || !strings.Contains(buf.String(), `"level":"error"`) {
		t.Fatalf("expected error log with cause, got %s", buf.String())
	}
}

func TestFail_4xxNotLogged(t *testing.T) {
	w, buf := serveErr(t, domain.ErrNotFound)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if buf.Len() != 0 {
		t.Fatalf("4xx should not be logged here, got %s", buf.String())
	}
}
