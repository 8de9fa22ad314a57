// Translation HTTP handlers.
//
//   - GET    /translations          (search, paginated, weak ETag)
//   - GET    /translations/export   (locale → key → content map)
//   - GET    /translations/{key}
//   - POST   /translations          (Idempotency-Key aware)
//   - PUT    /translations/{key}
//   - DELETE /translations/{key}
//
// Handlers decode the transport, call the service and map its errors; all
// validation happens in the service.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-translation-backend/internal/domain"
	"github.com/tbourn/go-translation-backend/internal/http/middleware"
	"github.com/tbourn/go-translation-backend/internal/repo"
	"github.com/tbourn/go-translation-backend/internal/services"
	"github.com/tbourn/go-translation-backend/internal/utils"
)

// TranslationService is the service contract consumed by the handlers.
type TranslationService interface {
	Search(ctx context.Context, in services.SearchInput) (*repo.Page, error)
	Show(ctx context.Context, key string) (*domain.TranslationKey, error)
	Create(ctx context.Context, in services.CreateInput) (*domain.TranslationKey, error)
	Update(ctx context.Context, key string, in services.UpdateInput) (*domain.TranslationKey, error)
	Delete(ctx context.Context, key string) error
	Export(ctx context.Context, in services.ExportInput) (map[string]string, error)
}

// IdempotencyStore records and replays create results.
type IdempotencyStore interface {
	Lookup(ctx context.Context, scope, key string) (*domain.TranslationKey, int, error)
	Remember(ctx context.Context, scope, key string, k *domain.TranslationKey, status int) error
}

// StatsFunc returns the number of keys and their latest update time; it
// feeds the search ETag. A nil StatsFunc disables ETags.
type StatsFunc func(ctx context.Context) (count int64, maxUpdatedAt *time.Time, err error)

// Handlers groups the translation endpoints.
type Handlers struct {
	svc   TranslationService
	idem  IdempotencyStore
	stats StatsFunc
}

// New constructs Handlers. idem and stats may be nil.
func New(svc TranslationService, idem IdempotencyStore, stats StatsFunc) *Handlers {
	return &Handlers{svc: svc, idem: idem, stats: stats}
}

// TranslationResponse is the detail representation of a translation key.
type TranslationResponse struct {
	ID           uint              `json:"id" example:"42"`
	Key          string            `json:"key" example:"checkout.button.pay"`
	Translations map[string]string `json:"translations"`
	Tags         []string          `json:"tags" example:"web,mobile"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func toResponse(k *domain.TranslationKey) TranslationResponse {
	return TranslationResponse{
		ID:           k.ID,
		Key:          k.Key,
		Translations: k.TranslationMap(),
		Tags:         k.TagNames(),
		CreatedAt:    k.CreatedAt,
		UpdatedAt:    k.UpdatedAt,
	}
}

// CreateTranslationRequest is the JSON payload of POST /translations.
type CreateTranslationRequest struct {
	Key          string            `json:"key" example:"checkout.button.pay"`
	Translations map[string]string `json:"translations"`
	Tags         []string          `json:"tags" example:"web,mobile"`
}

// UpdateTranslationRequest is the JSON payload of PUT /translations/{key}.
// Omitting tags (or sending null) keeps the current tag set; an empty
// array clears it.
type UpdateTranslationRequest struct {
	Translations map[string]string `json:"translations"`
	Tags         *[]string         `json:"tags"`
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page     int   `json:"page"`
	PerPage  int   `json:"per_page"`
	Total    int64 `json:"total"`
	LastPage int   `json:"last_page"`
	HasNext  bool  `json:"has_next"`
}

// SearchTranslationsResponse wraps a page of keys.
type SearchTranslationsResponse struct {
	Translations []TranslationResponse `json:"translations"`
	Pagination   Pagination            `json:"pagination"`
}

func badJSON(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		fail(c, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
		return
	}
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
}

func (h *Handlers) searchETag(c *gin.Context) string {
	if h.stats == nil {
		return ""
	}
	count, maxTS, err := h.stats(c.Request.Context())
	if err != nil {
		middleware.LoggerFrom(c).Warn().Err(err).Msg("search etag stats")
		return ""
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	q := xxhash.Sum64String(c.Request.URL.Query().Encode())
	return fmt.Sprintf(`W/"translations:%d:%d:%x"`, count, ts, q)
}

// SearchTranslations godoc
// @ID          searchTranslations
// @Summary     Search translation keys
// @Description Filters by substring over key and content, locale, tag and tag set (any of). Newest first. Supports a weak ETag via If-None-Match.
// @Tags        Translations
// @Produce     json
//
// @Param       If-None-Match  header  string    false  "Return 304 if ETag matches"
// @Param       search         query   string    false  "Substring of key or any content"  maxlength(255)
// @Param       locale         query   string    false  "Only keys with this locale; restricts loaded translations"  example(en)
// @Param       tag            query   string    false  "Only keys with this tag"  example(web)
// @Param       tags           query   []string  false  "Only keys with any of these tags (repeat or comma-separate)"  collectionFormat(multi)
// @Param       page           query   int       false  "Page number"  minimum(1) default(1)
// @Param       perPage        query   int       false  "Items per page"  minimum(1) maximum(100) default(15)
//
// @Success     200  {object}  handlers.SearchTranslationsResponse
// @Header      200  {string}  ETag  "Weak ETag for the current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     422  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /translations [get]
func (h *Handlers) SearchTranslations(c *gin.Context) {
	in := services.SearchInput{
		Search: c.Query("search"),
		Locale: c.Query("locale"),
		Tag:    c.Query("tag"),
		Tags:   utils.ListParam(append(c.QueryArray("tags"), c.QueryArray("tags[]")...)),
	}
	fields := map[string]string{}
	var err error
	if in.Page, err = utils.IntParam(c.Query("page"), 0); err != nil {
		fields["page"] = "must be an integer"
	}
	if in.PerPage, err = utils.IntParam(c.Query("perPage"), 0); err != nil {
		fields["perPage"] = "must be an integer"
	}
	if len(fields) > 0 {
		failWith(c, domain.NewValidationError(fields))
		return
	}

	if etag := h.searchETag(c); etag != "" {
		c.Header("ETag", etag)
		if c.GetHeader("If-None-Match") == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	page, err := h.svc.Search(c.Request.Context(), in)
	if err != nil {
		failWith(c, err)
		return
	}

	items := make([]TranslationResponse, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, toResponse(&page.Items[i]))
	}
	ok(c, http.StatusOK, SearchTranslationsResponse{
		Translations: items,
		Pagination: Pagination{
			Page:     page.Page,
			PerPage:  page.PerPage,
			Total:    page.Total,
			LastPage: page.LastPage,
			HasNext:  page.HasNext(),
		},
	})
}

// ExportTranslations godoc
// @ID          exportTranslations
// @Summary     Export translations for a locale
// @Description Returns a flat key → content map for one locale, optionally restricted to keys carrying any of the given tags. Served from the export cache; never stale after a committed change.
// @Tags        Translations
// @Produce     json
//
// @Param       locale  query  string    true   "Locale to export"  example(en)
// @Param       tags    query  []string  false  "Any of these tags (repeat or comma-separate)"  collectionFormat(multi)
//
// @Success     200  {object}  map[string]string
// @Failure     422  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /translations/export [get]
func (h *Handlers) ExportTranslations(c *gin.Context) {
	out, err := h.svc.Export(c.Request.Context(), services.ExportInput{
		Locale: c.Query("locale"),
		Tags:   utils.ListParam(append(c.QueryArray("tags"), c.QueryArray("tags[]")...)),
	})
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, out)
}

// ShowTranslation godoc
// @ID          showTranslation
// @Summary     Get a translation key
// @Tags        Translations
// @Produce     json
//
// @Param       key  path  string  true  "Translation key"  example(checkout.button.pay)
//
// @Success     200  {object}  handlers.TranslationResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /translations/{key} [get]
func (h *Handlers) ShowTranslation(c *gin.Context) {
	k, err := h.svc.Show(c.Request.Context(), c.Param("key"))
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, toResponse(k))
}

// CreateTranslation godoc
// @ID          createTranslation
// @Summary     Create a translation key
// @Description Creates a key with its translations and tags. A repeated request with the same Idempotency-Key replays the original response.
// @Tags        Translations
// @Accept      json
// @Produce     json
//
// @Param       Idempotency-Key  header  string  false  "Key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CreateTranslationRequest  true  "Translation key"
//
// @Success     201  {object}  handlers.TranslationResponse
// @Header      201  {string}  Idempotency-Replayed  "true when the response is a replay"
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed JSON"
// @Failure     409  {object}  handlers.ErrorResponse  "Key already exists"
// @Failure     422  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /translations [post]
func (h *Handlers) CreateTranslation(c *gin.Context) {
	ctx := c.Request.Context()
	lg := middleware.LoggerFrom(c)

	idemKey, _ := middleware.GetIdempotencyKey(c)
	scope := middleware.IdempotencyScope(c)
	if idemKey != "" && h.idem != nil && middleware.IsReplay(c) {
		prev, status, err := h.idem.Lookup(ctx, scope, idemKey)
		switch {
		case err == nil:
			c.Header("Idempotency-Replayed", "true")
			ok(c, status, toResponse(prev))
			return
		case !errors.Is(err, domain.ErrNotFound):
			lg.Warn().Err(err).Str("idempotency_key", idemKey).Msg("idempotency replay failed")
		}
	}

	var req CreateTranslationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, err)
		return
	}

	k, err := h.svc.Create(ctx, services.CreateInput{
		Key:          req.Key,
		Translations: req.Translations,
		Tags:         req.Tags,
	})
	if err != nil {
		failWith(c, err)
		return
	}

	if idemKey != "" && h.idem != nil {
		if err := h.idem.Remember(ctx, scope, idemKey, k, http.StatusCreated); err != nil {
			lg.Warn().Err(err).Str("idempotency_key", idemKey).Msg("idempotency record failed")
		}
	}

	c.Header("Location", c.FullPath()+"/"+url.PathEscape(k.Key))
	ok(c, http.StatusCreated, toResponse(k))
}

// UpdateTranslation godoc
// @ID          updateTranslation
// @Summary     Update a translation key
// @Description Upserts the given locales (others are kept) and, when tags is present, replaces the tag set.
// @Tags        Translations
// @Accept      json
// @Produce     json
//
// @Param       key   path  string  true  "Translation key"  example(checkout.button.pay)
// @Param       body  body  handlers.UpdateTranslationRequest  true  "Changes"
//
// @Success     200  {object}  handlers.TranslationResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Malformed JSON"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     422  {object}  handlers.ErrorResponse  "Validation failed"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /translations/{key} [put]
func (h *Handlers) UpdateTranslation(c *gin.Context) {
	var req UpdateTranslationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c, err)
		return
	}

	k, err := h.svc.Update(c.Request.Context(), c.Param("key"), services.UpdateInput{
		Translations: req.Translations,
		Tags:         req.Tags,
	})
	if err != nil {
		failWith(c, err)
		return
	}
	ok(c, http.StatusOK, toResponse(k))
}

// DeleteTranslation godoc
// @ID          deleteTranslation
// @Summary     Delete a translation key
// @Description Removes the key with its translations and tag links. Tags themselves are kept.
// @Tags        Translations
//
// @Param       key  path  string  true  "Translation key"  example(checkout.button.pay)
//
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /translations/{key} [delete]
func (h *Handlers) DeleteTranslation(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("key")); err != nil {
		failWith(c, err)
		return
	}
	noContent(c)
}

// Health godoc
// @ID       health
// @Summary  Liveness probe
// @Tags     System
// @Produce  json
// @Success  200  {object}  map[string]string
// @Router   /health [get]
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
