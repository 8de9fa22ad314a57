package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-translation-backend/internal/domain"
	"github.com/tbourn/go-translation-backend/internal/http/middleware"
	"github.com/tbourn/go-translation-backend/internal/repo"
	"github.com/tbourn/go-translation-backend/internal/services"
)

// ---------- fakes ----------

type fakeSvc struct {
	keys map[string]*domain.TranslationKey

	lastSearch services.SearchInput
	lastExport services.ExportInput
	lastUpdate services.UpdateInput
	creates    int
	searches   int
}

func newFakeSvc() *fakeSvc {
	return &fakeSvc{keys: map[string]*domain.TranslationKey{}}
}

func (f *fakeSvc) Search(_ context.Context, in services.SearchInput) (*repo.Page, error) {
	f.searches++
	f.lastSearch = in
	p := &repo.Page{Page: 1, PerPage: 15, LastPage: 1}
	for _, k := range f.keys {
		p.Items = append(p.Items, *k)
	}
	p.Total = int64(len(p.Items))
	return p, nil
}

func (f *fakeSvc) Show(_ context.Context, key string) (*domain.TranslationKey, error) {
	if k, ok := f.keys[key]; ok {
		return k, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeSvc) Create(_ context.Context, in services.CreateInput) (*domain.TranslationKey, error) {
	f.creates++
	if strings.TrimSpace(in.Key) == "" {
		return nil, domain.NewValidationError(map[string]string{"key": "is required"})
	}
	if _, dup := f.keys[in.Key]; dup {
		return nil, domain.ErrConflict
	}
	k := &domain.TranslationKey{ID: uint(len(f.keys) + 1), Key: in.Key, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	for loc, content := range in.Translations {
		k.Translations = append(k.Translations, domain.Translation{Locale: loc, Content: content})
	}
	for _, t := range in.Tags {
		k.Tags = append(k.Tags, domain.Tag{Name: t})
	}
	f.keys[in.Key] = k
	return k, nil
}

func (f *fakeSvc) Update(_ context.Context, key string, in services.UpdateInput) (*domain.TranslationKey, error) {
	f.lastUpdate = in
	k, ok := f.keys[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return k, nil
}

func (f *fakeSvc) Delete(_ context.Context, key string) error {
	if _, ok := f.keys[key]; !ok {
		return domain.ErrNotFound
	}
	delete(f.keys, key)
	return nil
}

func (f *fakeSvc) Export(_ context.Context, in services.ExportInput) (map[string]string, error) {
	f.lastExport = in
	if in.Locale == "" {
		return nil, domain.NewValidationError(map[string]string{"locale": "is required"})
	}
	return map[string]string{"a.key": "[EN] a"}, nil
}

type fakeIdem struct {
	recorded map[string]*domain.TranslationKey
}

func (f *fakeIdem) Lookup(_ context.Context, scope, key string) (*domain.TranslationKey, int, error) {
	if k, ok := f.recorded[scope+"|"+key]; ok {
		return k, http.StatusCreated, nil
	}
	return nil, 0, domain.ErrNotFound
}

func (f *fakeIdem) Remember(_ context.Context, scope, key string, k *domain.TranslationKey, _ int) error {
	f.recorded[scope+"|"+key] = k
	return nil
}

func (f *fakeIdem) exists(_ context.Context, scope, key string) (bool, error) {
	_, ok := f.recorded[scope+"|"+key]
	return ok, nil
}

// ---------- router ----------

func newTestRouter(svc TranslationService, idem *fakeIdem, stats StatsFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	var lookup middleware.IdempotencyLookup
	var store IdempotencyStore
	if idem != nil {
		lookup, store = idem.exists, idem
	}
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, lookup))
	h := New(svc, store, stats)
	api := r.Group("/api/v1")
	api.GET("/translations", h.SearchTranslations)
	api.GET("/translations/export", h.ExportTranslations)
	api.GET("/translations/:key", h.ShowTranslation)
	api.POST("/translations", h.CreateTranslation)
	api.PUT("/translations/:key", h.UpdateTranslation)
	api.DELETE("/translations/:key", h.DeleteTranslation)
	return r
}

func do(r http.Handler, method, path, body string, hdr ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v (body %s)", err, w.Body.String())
	}
	return v
}

// ---------- tests ----------

func TestCreateTranslation_201AndDetailShape(t *testing.T) {
	svc := newFakeSvc()
	r := newTestRouter(svc, nil, nil)

	w := do(r, http.MethodPost, "/api/v1/translations",
		`{"key":"home.title","translations":{"en":"Home"},"tags":["web"]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	got := decode[TranslationResponse](t, w)
	if got.Key != "home.title" || got.Translations["en"] != "Home" || len(got.Tags) != 1 {
		t.Fatalf("body = %+v", got)
	}
	if loc := w.Header().Get("Location"); loc != "/api/v1/translations/home.title" {
		t.Fatalf("Location = %q", loc)
	}
}

func TestCreateTranslation_ErrorStatuses(t *testing.T) {
	svc := newFakeSvc()
	r := newTestRouter(svc, nil, nil)
	_ = do(r, http.MethodPost, "/api/v1/translations", `{"key":"dup","translations":{"en":"x"}}`)

	cases := []struct {
		body   string
		status int
		code   string
	}{
		{`{"key":`, http.StatusBadRequest, ErrCodeBadRequest},
		{`{"key":"dup","translations":{"en":"y"}}`, http.StatusConflict, ErrCodeConflict},
		{`{"key":"  ","translations":{"en":"y"}}`, http.StatusUnprocessableEntity, ErrCodeValidation},
	}
	for _, tc := range cases {
		w := do(r, http.MethodPost, "/api/v1/translations", tc.body)
		if w.Code != tc.status {
			t.Fatalf("%s: status = %d; want %d", tc.body, w.Code, tc.status)
		}
		if resp := decode[ErrorResponse](t, w); resp.Code != tc.code {
			t.Fatalf("%s: code = %q; want %q", tc.body, resp.Code, tc.code)
		}
	}
}

func TestCreateTranslation_IdempotentReplay(t *testing.T) {
	svc := newFakeSvc()
	idem := &fakeIdem{recorded: map[string]*domain.TranslationKey{}}
	r := newTestRouter(svc, idem, nil)

	body := `{"key":"pay.button","translations":{"en":"Pay"}}`
	first := do(r, http.MethodPost, "/api/v1/translations", body, middleware.HeaderIdempotencyKey, "retry-1")
	second := do(r, http.MethodPost, "/api/v1/translations", body, middleware.HeaderIdempotencyKey, "retry-1")

	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("codes = %d, %d", first.Code, second.Code)
	}
	if second.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("second response should be a replay")
	}
	if svc.creates != 1 {
		t.Fatalf("service Create called %d times; want 1", svc.creates)
	}
	if decode[TranslationResponse](t, first).ID != decode[TranslationResponse](t, second).ID {
		t.Fatalf("replay must return the original resource")
	}

	third := do(r, http.MethodPost, "/api/v1/translations", body, middleware.HeaderIdempotencyKey, "retry-2")
	if third.Code != http.StatusConflict {
		t.Fatalf("new key, existing resource: status = %d; want 409", third.Code)
	}
}

func TestShowUpdateDelete(t *testing.T) {
	svc := newFakeSvc()
	r := newTestRouter(svc, nil, nil)
	_ = do(r, http.MethodPost, "/api/v1/translations", `{"key":"a.b","translations":{"en":"x"}}`)

	if w := do(r, http.MethodGet, "/api/v1/translations/a.b", ""); w.Code != http.StatusOK {
		t.Fatalf("show: %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/api/v1/translations/missing", ""); w.Code != http.StatusNotFound {
		t.Fatalf("show missing: %d", w.Code)
	}

	if w := do(r, http.MethodPut, "/api/v1/translations/a.b", `{"translations":{"fr":"y"}}`); w.Code != http.StatusOK {
		t.Fatalf("update: %d", w.Code)
	}
	if svc.lastUpdate.Tags != nil {
		t.Fatalf("absent tags must reach the service as nil")
	}
	_ = do(r, http.MethodPut, "/api/v1/translations/a.b", `{"tags":null}`)
	if svc.lastUpdate.Tags != nil {
		t.Fatalf("null tags must reach the service as nil")
	}
	_ = do(r, http.MethodPut, "/api/v1/translations/a.b", `{"tags":[]}`)
	if svc.lastUpdate.Tags == nil || len(*svc.lastUpdate.Tags) != 0 {
		t.Fatalf("empty tags must reach the service as an empty set")
	}
	if w := do(r, http.MethodPut, "/api/v1/translations/nope", `{"translations":{"fr":"y"}}`); w.Code != http.StatusNotFound {
		t.Fatalf("update missing: %d", w.Code)
	}
	if w := do(r, http.MethodPut, "/api/v1/translations/a.b", `nope`); w.Code != http.StatusBadRequest {
		t.Fatalf("update bad json: %d", w.Code)
	}

	if w := do(r, http.MethodDelete, "/api/v1/translations/a.b", ""); w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	if w := do(r, http.MethodDelete, "/api/v1/translations/a.b", ""); w.Code != http.StatusNotFound {
		t.Fatalf("delete again: %d", w.Code)
	}
}

func TestSearchTranslations_ParsesQuery(t *testing.T) {
	svc := newFakeSvc()
	r := newTestRouter(svc, nil, nil)

	w := do(r, http.MethodGet, "/api/v1/translations?search=pay&locale=en&tag=web&tags=a,b&tags=c&page=2&perPage=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	in := svc.lastSearch
	if in.Search != "pay" || in.Locale != "en" || in.Tag != "web" || in.Page != 2 || in.PerPage != 5 {
		t.Fatalf("input = %+v", in)
	}
	if strings.Join(in.Tags, "|") != "a|b|c" {
		t.Fatalf("tags = %v", in.Tags)
	}
	resp := decode[SearchTranslationsResponse](t, w)
	if resp.Translations == nil || resp.Pagination.PerPage != 15 {
		t.Fatalf("resp = %+v", resp)
	}

	w = do(r, http.MethodGet, "/api/v1/translations?page=two&perPage=x", "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad ints: status = %d", w.Code)
	}
	if f := decode[ErrorResponse](t, w).Fields; f["page"] == "" || f["perPage"] == "" {
		t.Fatalf("fields = %v", f)
	}
}

func TestSearchTranslations_ETag(t *testing.T) {
	svc := newFakeSvc()
	ts := time.Unix(1_700_000_000, 0)
	count := int64(3)
	stats := func(context.Context) (int64, *time.Time, error) { return count, &ts, nil }
	r := newTestRouter(svc, nil, stats)

	w := do(r, http.MethodGet, "/api/v1/translations?locale=en", "")
	etag := w.Header().Get("ETag")
	if !strings.HasPrefix(etag, `W/"translations:3:`) {
		t.Fatalf("ETag = %q", etag)
	}

	w = do(r, http.MethodGet, "/api/v1/translations?locale=en", "", "If-None-Match", etag)
	if w.Code != http.StatusNotModified {
		t.Fatalf("status = %d; want 304", w.Code)
	}
	searches := svc.searches

	w = do(r, http.MethodGet, "/api/v1/translations?locale=fr", "", "If-None-Match", etag)
	if w.Code != http.StatusOK {
		t.Fatalf("different query must not match, got %d", w.Code)
	}

	count = 4
	w = do(r, http.MethodGet, "/api/v1/translations?locale=en", "", "If-None-Match", etag)
	if w.Code != http.StatusOK {
		t.Fatalf("changed data must not match, got %d", w.Code)
	}
	if svc.searches != searches+2 {
		t.Fatalf("searches = %d; want %d", svc.searches, searches+2)
	}
}

func TestExportTranslations(t *testing.T) {
	svc := newFakeSvc()
	r := newTestRouter(svc, nil, nil)

	w := do(r, http.MethodGet, "/api/v1/translations/export?locale=en&tags%5B%5D=web&tags%5B%5D=mobile", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := decode[map[string]string](t, w); got["a.key"] != "[EN] a" {
		t.Fatalf("body = %v", got)
	}
	if strings.Join(svc.lastExport.Tags, ",") != "web,mobile" {
		t.Fatalf("tags = %v", svc.lastExport.Tags)
	}

	if w := do(r, http.MethodGet, "/api/v1/translations/export", ""); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing locale: status = %d", w.Code)
	}
}
