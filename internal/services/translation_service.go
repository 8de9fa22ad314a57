// Package services – TranslationService
//
// This file implements TranslationService, the application component that
// owns translation keys and their per-locale content. It validates input
// with go-playground/validator, canonicalizes locales and tag names, and
// runs every mutation in one database transaction. After a mutation commits
// it bumps the export cache generation before returning, so a caller that
// saw a success never reads an older export afterwards.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// carry the key, locale and pagination parameters where applicable.
package services

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-translation-backend/internal/domain"
	"github.com/tbourn/go-translation-backend/internal/normalize"
	"github.com/tbourn/go-translation-backend/internal/repo"
)

// ExportCache is the export cache as seen by the service.
type ExportCache interface {
	Export(ctx context.Context, locale string, tags []string) (map[string]string, error)
	Invalidate(ctx context.Context) error
}

// CreateInput is the payload of Create.
type CreateInput struct {
	Key          string            `json:"key"          validate:"required,notblank,max=255"`
	Translations map[string]string `json:"translations" validate:"required,min=1,dive,keys,required,max=10,endkeys,notblank"`
	Tags         []string          `json:"tags"         validate:"omitempty,max=100,dive,notblank,max=50"`
}

// UpdateInput is the payload of Update. A non-nil Tags replaces the tag
// set, even when empty; nil leaves tags untouched.
type UpdateInput struct {
	Translations map[string]string `json:"translations" validate:"omitempty,min=1,dive,keys,required,max=10,endkeys,notblank"`
	Tags         *[]string         `json:"tags"         validate:"omitempty,max=100,dive,notblank,max=50"`
}

// SearchInput carries the search filters. Zero Page/PerPage select the
// defaults.
type SearchInput struct {
	Search  string   `json:"search"  validate:"max=255"`
	Locale  string   `json:"locale"  validate:"max=10"`
	Tag     string   `json:"tag"     validate:"max=50"`
	Tags    []string `json:"tags"    validate:"omitempty,max=100,dive,max=50"`
	Page    int      `json:"page"    validate:"min=0"`
	PerPage int      `json:"perPage" validate:"min=0,max=100"`
}

// ExportInput carries the export parameters.
type ExportInput struct {
	Locale string   `json:"locale" validate:"required,notblank,max=10"`
	Tags   []string `json:"tags"   validate:"omitempty,max=100,dive,max=50"`
}

// TranslationService coordinates the repository and the export cache.
type TranslationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Exports serves and invalidates cached exports. May be nil, in which
	// case exports are unavailable and mutations skip invalidation.
	Exports ExportCache
}

// NewTranslationService wires a service.
func NewTranslationService(db *gorm.DB, exports ExportCache) *TranslationService {
	return &TranslationService{DB: db, Exports: exports}
}

var tracer = otel.Tracer("services/TranslationService")

func fail(span trace.Span, err error) error {
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrValidation) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// Search returns one page of keys matching in.
func (s *TranslationService) Search(ctx context.Context, in SearchInput) (*repo.Page, error) {
	ctx, span := tracer.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.String("search.locale", in.Locale),
			attribute.Int("page", in.Page),
			attribute.Int("per_page", in.PerPage),
		),
	)
	defer span.End()

	if err := validateStruct(in); err != nil {
		return nil, fail(span, err)
	}
	page, err := repo.SearchPage(ctx, s.DB, repo.SearchFilters{
		Search:  strings.TrimSpace(in.Search),
		Locale:  normalize.Locale(in.Locale),
		Tag:     normalize.Fold(in.Tag),
		Tags:    normalize.Tags(in.Tags),
		Page:    in.Page,
		PerPage: in.PerPage,
	})
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.Int64("search.total", page.Total))
	return page, nil
}

// Show returns key with translations and tags.
func (s *TranslationService) Show(ctx context.Context, key string) (*domain.TranslationKey, error) {
	ctx, span := tracer.Start(ctx, "Show", trace.WithAttributes(attribute.String("translation.key", key)))
	defer span.End()

	key, err := checkKey(key)
	if err != nil {
		return nil, fail(span, err)
	}
	k, err := repo.FindByKeyWithRelations(ctx, s.DB, key)
	return k, fail(span, err)
}

// Create stores a new key with its translations and tags atomically. An
// existing key yields ErrConflict.
func (s *TranslationService) Create(ctx context.Context, in CreateInput) (*domain.TranslationKey, error) {
	ctx, span := tracer.Start(ctx, "Create", trace.WithAttributes(attribute.String("translation.key", in.Key)))
	defer span.End()

	in.Key = strings.TrimSpace(in.Key)
	if err := validateStruct(in); err != nil {
		return nil, fail(span, err)
	}
	translations, err := normalizeTranslations(in.Translations)
	if err != nil {
		return nil, fail(span, err)
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Inserting the key first makes a concurrent create of the same key
		// fail on the unique index instead of racing on reads.
		k, err := repo.CreateTranslationKey(ctx, tx, in.Key)
		if err != nil {
			return err
		}
		if err := upsertAll(ctx, tx, k.ID, translations); err != nil {
			return err
		}
		return repo.SyncTags(ctx, tx, k.ID, in.Tags)
	})
	if err != nil {
		return nil, fail(span, domain.StoreFailure("create translation", err))
	}
	if err := s.invalidate(ctx); err != nil {
		return nil, fail(span, err)
	}
	k, err := repo.FindByKeyWithRelations(ctx, s.DB, in.Key)
	return k, fail(span, err)
}

// Update upserts the given translations and, when in.Tags is set, replaces
// the tag set. A missing key yields ErrNotFound.
func (s *TranslationService) Update(ctx context.Context, key string, in UpdateInput) (*domain.TranslationKey, error) {
	ctx, span := tracer.Start(ctx, "Update", trace.WithAttributes(attribute.String("translation.key", key)))
	defer span.End()

	key, err := checkKey(key)
	if err != nil {
		return nil, fail(span, err)
	}
	if err := validateStruct(in); err != nil {
		return nil, fail(span, err)
	}
	translations, err := normalizeTranslations(in.Translations)
	if err != nil {
		return nil, fail(span, err)
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, err := repo.TouchTranslationKey(ctx, tx, key)
		if err != nil {
			return err
		}
		if err := upsertAll(ctx, tx, id, translations); err != nil {
			return err
		}
		if in.Tags != nil {
			return repo.SyncTags(ctx, tx, id, *in.Tags)
		}
		return nil
	})
	if err != nil {
		return nil, fail(span, domain.StoreFailure("update translation", err))
	}
	if err := s.invalidate(ctx); err != nil {
		return nil, fail(span, err)
	}
	k, err := repo.FindByKeyWithRelations(ctx, s.DB, key)
	return k, fail(span, err)
}

// Delete removes key with its translations and tag associations.
func (s *TranslationService) Delete(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "Delete", trace.WithAttributes(attribute.String("translation.key", key)))
	defer span.End()

	key, err := checkKey(key)
	if err != nil {
		return fail(span, err)
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := repo.DeleteByKey(ctx, tx, key)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		return fail(span, domain.StoreFailure("delete translation", err))
	}
	return fail(span, s.invalidate(ctx))
}

// Export returns key → content for locale, optionally narrowed to keys
// carrying any of tags.
func (s *TranslationService) Export(ctx context.Context, in ExportInput) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, "Export",
		trace.WithAttributes(
			attribute.String("export.locale", in.Locale),
			attribute.StringSlice("export.tags", in.Tags),
		),
	)
	defer span.End()

	if err := validateStruct(in); err != nil {
		return nil, fail(span, err)
	}
	if s.Exports == nil {
		return nil, fail(span, domain.StoreFailure("export", errors.New("export cache not configured")))
	}
	out, err := s.Exports.Export(ctx, in.Locale, in.Tags)
	if err != nil {
		return nil, fail(span, domain.StoreFailure("export", err))
	}
	span.SetAttributes(attribute.Int("export.size", len(out)))
	return out, nil
}

func (s *TranslationService) invalidate(ctx context.Context) error {
	if s.Exports == nil {
		return nil
	}
	return s.Exports.Invalidate(ctx)
}

// checkKey trims key and rejects blank or oversized keys.
func checkKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	switch {
	case key == "":
		return "", domain.NewValidationError(map[string]string{"key": "is required"})
	case len([]rune(key)) > 255:
		return "", domain.NewValidationError(map[string]string{"key": "must be at most 255 characters"})
	}
	return key, nil
}

type localeContent struct {
	locale, content string
}

// normalizeTranslations folds locales, trims content and orders the pairs
// by locale. Two inputs folding to the same locale are rejected.
func normalizeTranslations(in map[string]string) ([]localeContent, error) {
	out := make([]localeContent, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for loc, content := range in {
		l := normalize.Locale(loc)
		if _, dup := seen[l]; dup {
			return nil, domain.NewValidationError(map[string]string{"translations": "duplicate locale " + l})
		}
		seen[l] = struct{}{}
		out = append(out, localeContent{locale: l, content: strings.TrimSpace(content)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].locale < out[j].locale })
	return out, nil
}

func upsertAll(ctx context.Context, tx *gorm.DB, keyID uint, rows []localeContent) error {
	for _, r := range rows {
		if err := repo.UpsertTranslation(ctx, tx, keyID, r.locale, r.content); err != nil {
			return err
		}
	}
	return nil
}
