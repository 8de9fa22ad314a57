// Package handlers provides the HTTP handlers of the translation API.
//
// All error responses share the ErrorResponse envelope with a stable code.
// fail logs 5xx responses with the request-scoped logger; failWith maps
// domain errors onto status codes so handlers never switch on errors
// themselves.
//
//	HTTP/1.1 422 Unprocessable Entity
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "validation_failed",
//	  "message": "validation failed",
//	  "fields": {"translations[fr]": "must not be blank"}
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-translation-backend/internal/domain"
	"github.com/tbourn/go-translation-backend/internal/http/middleware"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"translation key not found"`
	// Per-field messages, present for validation_failed only
	Fields map[string]string `json:"fields,omitempty"`
}

func fail(c *gin.Context, status int, code, msg string) {
	failFields(c, status, code, msg, nil)
}

func failFields(c *gin.Context, status int, code, msg string, fields map[string]string) {
	resp := ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
		Fields:    fields,
	}

	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		ev := lg.Error().
			Int("status", status).
			Str("code", code)
		if len(c.Errors) > 0 {
			ev = ev.Str("cause", c.Errors.Last().Error())
		}
		ev.Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail, used by the router for fallbacks.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failWith translates a service error into a response. Unknown errors are
// reported as 500 without leaking their text to the client.
func failWith(c *gin.Context, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		failFields(c, http.StatusUnprocessableEntity, ErrCodeValidation, "validation failed", verr.Fields)
	case errors.Is(err, domain.ErrValidation):
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidation, "validation failed")
	case errors.Is(err, domain.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "translation key not found")
	case errors.Is(err, domain.ErrConflict):
		fail(c, http.StatusConflict, ErrCodeConflict, "translation key already exists")
	default:
		_ = c.Error(err)
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal server error")
	}
}

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
