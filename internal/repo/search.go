// Search over translation keys.
//
// SearchPage filters keys by a case-insensitive substring of the key or of
// any translation's content, by locale and by tags, and returns one page,
// newest key first. Case folding is Unicode-aware on both drivers: Postgres
// uses LOWER() and SQLite uses the unicode_lower function registered in
// db.go. Translations and tags of the page are loaded in batched queries
// after the page is selected.
package repo

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/tbourn/go-translation-backend/internal/domain"
	"github.com/tbourn/go-translation-backend/internal/normalize"
)

const (
	// DefaultPerPage is used when a search does not set PerPage.
	DefaultPerPage = 15
	// MaxPerPage bounds PerPage.
	MaxPerPage = 100
)

// textMatchSQL matches the key or any content; %[1]s is the lower-case
// function of the dialect.
const textMatchSQL = `(%[1]s(translation_keys.key) LIKE ? ESCAPE '!' OR EXISTS (SELECT 1 FROM translations st WHERE st.translation_key_id = translation_keys.id AND %[1]s(st.content) LIKE ? ESCAPE '!'))`

// EXISTS fragments correlated with the outer translation_keys row.
const (
	localeExistSQL  = `EXISTS (SELECT 1 FROM translations lt WHERE lt.translation_key_id = translation_keys.id AND lt.locale = ?)`
	tagExistSQL     = `EXISTS (SELECT 1 FROM translation_key_tag kt JOIN tags tg ON tg.id = kt.tag_id WHERE kt.translation_key_id = translation_keys.id AND tg.name = ?)`
	tagsExistSQL    = `EXISTS (SELECT 1 FROM translation_key_tag kt JOIN tags tg ON tg.id = kt.tag_id WHERE kt.translation_key_id = translation_keys.id AND tg.name IN ?)`
)

// SearchFilters narrows a search. Empty fields do not filter. Locale, Tag
// and Tags are expected in canonical form.
type SearchFilters struct {
	Search  string
	Locale  string
	Tag     string
	Tags    []string
	Page    int
	PerPage int
}

// Page is one page of search results.
type Page struct {
	Items    []domain.TranslationKey
	Total    int64
	Page     int
	PerPage  int
	LastPage int
}

// HasNext reports whether a later page exists.
func (p *Page) HasNext() bool { return p.Page < p.LastPage }

// escapeLike makes s a literal LIKE operand under ESCAPE '!'.
func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}

// filterScope applies every filter category; categories are AND-ed, and
// the values inside Tags are OR-ed.
func filterScope(f SearchFilters) func(*gorm.DB) *gorm.DB {
	return func(q *gorm.DB) *gorm.DB {
		if s := strings.TrimSpace(f.Search); s != "" {
			like := "%" + escapeLike(normalize.Lower(s)) + "%"
			q = q.Where(fmt.Sprintf(textMatchSQL, lowerFunc(q)), like, like)
		}
		if f.Locale != "" {
			q = q.Where(localeExistSQL, f.Locale)
		}
		if f.Tag != "" {
			q = q.Where(tagExistSQL, f.Tag)
		}
		if len(f.Tags) > 0 {
			q = q.Where(tagsExistSQL, f.Tags)
		}
		return q
	}
}

// SearchPage returns the keys matching f, newest first, with tags attached
// and translations loaded (restricted to f.Locale when set). Page and
// PerPage are clamped to their valid ranges.
func SearchPage(ctx context.Context, db *gorm.DB, f SearchFilters) (*Page, error) {
	if f.PerPage <= 0 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	base := func() *gorm.DB {
		return db.WithContext(ctx).Model(&domain.TranslationKey{}).Scopes(filterScope(f))
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, domain.StoreFailure("count search results", err)
	}

	page := &Page{
		Items:    []domain.TranslationKey{},
		Total:    total,
		Page:     f.Page,
		PerPage:  f.PerPage,
		LastPage: lastPage(total, f.PerPage),
	}
	offset := (f.Page - 1) * f.PerPage
	if total == 0 || int64(offset) >= total {
		return page, nil
	}

	err := base().
		Preload("Translations", func(tx *gorm.DB) *gorm.DB {
			if f.Locale != "" {
				tx = tx.Where("locale = ?", f.Locale)
			}
			return tx.Order("locale ASC")
		}).
		Order("translation_keys.id DESC").
		Offset(offset).
		Limit(f.PerPage).
		Find(&page.Items).Error
	if err != nil {
		return nil, domain.StoreFailure("search translation keys", err)
	}

	ptrs := make([]*domain.TranslationKey, len(page.Items))
	for i := range page.Items {
		ptrs[i] = &page.Items[i]
	}
	if err := attachTags(ctx, db, ptrs); err != nil {
		return nil, err
	}
	return page, nil
}

func lastPage(total int64, perPage int) int {
	if total == 0 {
		return 1
	}
	return int((total + int64(perPage) - 1) / int64(perPage))
}
