// Translation key persistence.
//
// This file holds the GORM queries behind the translation service: key
// lookup and creation, per-locale upserts, tag get-or-create and
// replacement, deletion and the export row query. Functions take the *gorm.DB
// to run on, so callers can pass a transaction.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-translation-backend/internal/domain"
	"github.com/tbourn/go-translation-backend/internal/normalize"
)

// ErrNotFound is returned when a translation key does not exist.
var ErrNotFound = domain.ErrNotFound

// isDuplicate reports whether err is a unique-constraint violation. The
// glebarez driver does not always translate these, so the message is
// checked as well.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}

// FindByKey returns the key row without relations.
func FindByKey(ctx context.Context, db *gorm.DB, key string) (*domain.TranslationKey, error) {
	var k domain.TranslationKey
	err := db.WithContext(ctx).Where("key = ?", key).First(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, domain.StoreFailure("find translation key", err)
	}
	return &k, nil
}

// FindByKeyWithRelations returns the key with its translations ordered by
// locale and its tags ordered by name. Relations cost two extra queries
// regardless of their size.
func FindByKeyWithRelations(ctx context.Context, db *gorm.DB, key string) (*domain.TranslationKey, error) {
	var k domain.TranslationKey
	err := db.WithContext(ctx).
		Preload("Translations", func(tx *gorm.DB) *gorm.DB { return tx.Order("locale ASC") }).
		Where("key = ?", key).
		First(&k).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, domain.StoreFailure("find translation key", err)
	}
	keys := []*domain.TranslationKey{&k}
	if err := attachTags(ctx, db, keys); err != nil {
		return nil, err
	}
	return &k, nil
}

// CreateTranslationKey inserts a new key. A key that already exists yields
// domain.ErrConflict.
func CreateTranslationKey(ctx context.Context, db *gorm.DB, key string) (*domain.TranslationKey, error) {
	now := time.Now().UTC()
	k := &domain.TranslationKey{Key: key, CreatedAt: now, UpdatedAt: now}
	if err := db.WithContext(ctx).Create(k).Error; err != nil {
		if isDuplicate(err) {
			return nil, domain.ErrConflict
		}
		return nil, domain.StoreFailure("create translation key", err)
	}
	return k, nil
}

// TouchTranslationKey bumps updated_at of key and returns its id. Being a
// write, it takes the store's write lock before the caller reads anything.
func TouchTranslationKey(ctx context.Context, db *gorm.DB, key string) (uint, error) {
	res := db.WithContext(ctx).Model(&domain.TranslationKey{}).
		Where("key = ?", key).
		Update("updated_at", time.Now().UTC())
	if res.Error != nil {
		return 0, domain.StoreFailure("touch translation key", res.Error)
	}
	if res.RowsAffected == 0 {
		return 0, ErrNotFound
	}
	var id uint
	if err := db.WithContext(ctx).Model(&domain.TranslationKey{}).
		Where("key = ?", key).Pluck("id", &id).Error; err != nil {
		return 0, domain.StoreFailure("resolve translation key id", err)
	}
	return id, nil
}

// UpsertTranslation writes the content of keyID in locale, replacing any
// previous content for that pair in a single statement.
func UpsertTranslation(ctx context.Context, db *gorm.DB, keyID uint, locale, content string) error {
	now := time.Now().UTC()
	row := &domain.Translation{
		TranslationKeyID: keyID,
		Locale:           locale,
		Content:          content,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "translation_key_id"}, {Name: "locale"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
	}).Create(row).Error
	return domain.StoreFailure("upsert translation", err)
}

// EnsureTags creates the missing tags among names (already canonical) and
// returns name → id for all of them.
func EnsureTags(ctx context.Context, db *gorm.DB, names []string) (map[string]uint, error) {
	ids := make(map[string]uint, len(names))
	if len(names) == 0 {
		return ids, nil
	}
	now := time.Now().UTC()
	rows := make([]domain.Tag, 0, len(names))
	for _, n := range names {
		rows = append(rows, domain.Tag{Name: n, CreatedAt: now, UpdatedAt: now})
	}
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(&rows).Error; err != nil {
		return nil, domain.StoreFailure("insert tags", err)
	}

	var tags []domain.Tag
	if err := db.WithContext(ctx).Where("name IN ?", names).Find(&tags).Error; err != nil {
		return nil, domain.StoreFailure("resolve tags", err)
	}
	for _, t := range tags {
		ids[t.Name] = t.ID
	}
	return ids, nil
}

// SyncTags makes the tag set of keyID exactly the canonical form of names:
// missing tags are created, missing associations inserted, stale ones
// removed. Tags themselves are never deleted.
func SyncTags(ctx context.Context, db *gorm.DB, keyID uint, names []string) error {
	canonical := normalize.Tags(names)
	wanted, err := EnsureTags(ctx, db, canonical)
	if err != nil {
		return err
	}

	var current []uint
	if err := db.WithContext(ctx).Model(&domain.KeyTag{}).
		Where("translation_key_id = ?", keyID).
		Pluck("tag_id", &current).Error; err != nil {
		return domain.StoreFailure("load key tags", err)
	}
	have := make(map[uint]struct{}, len(current))
	for _, id := range current {
		have[id] = struct{}{}
	}
	want := make(map[uint]struct{}, len(wanted))
	for _, id := range wanted {
		want[id] = struct{}{}
	}

	var removed []uint
	for id := range have {
		if _, ok := want[id]; !ok {
			removed = append(removed, id)
		}
	}
	now := time.Now().UTC()
	var added []domain.KeyTag
	for _, n := range canonical {
		id := wanted[n]
		if _, ok := have[id]; !ok {
			added = append(added, domain.KeyTag{TranslationKeyID: keyID, TagID: id, CreatedAt: now})
		}
	}

	if len(removed) > 0 {
		if err := db.WithContext(ctx).
			Where("translation_key_id = ? AND tag_id IN ?", keyID, removed).
			Delete(&domain.KeyTag{}).Error; err != nil {
			return domain.StoreFailure("detach tags", err)
		}
	}
	if len(added) > 0 {
		if err := db.WithContext(ctx).Create(&added).Error; err != nil {
			return domain.StoreFailure("attach tags", err)
		}
	}
	return nil
}

// DeleteByKey removes key with its translations and tag associations.
// It reports false when the key does not exist. Dependents are deleted
// explicitly so the result does not depend on the store enforcing foreign
// keys; run it inside a transaction.
func DeleteByKey(ctx context.Context, db *gorm.DB, key string) (bool, error) {
	ids := db.Model(&domain.TranslationKey{}).Select("id").Where("key = ?", key)
	if err := db.WithContext(ctx).Where("translation_key_id IN (?)", ids).
		Delete(&domain.KeyTag{}).Error; err != nil {
		return false, domain.StoreFailure("delete key tags", err)
	}
	if err := db.WithContext(ctx).Where("translation_key_id IN (?)", ids).
		Delete(&domain.Translation{}).Error; err != nil {
		return false, domain.StoreFailure("delete translations", err)
	}
	res := db.WithContext(ctx).Where("key = ?", key).Delete(&domain.TranslationKey{})
	if res.Error != nil {
		return false, domain.StoreFailure("delete translation key", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetExportRows returns (key, content) for every key translated in locale,
// ordered by key. A non-empty tags set keeps only keys carrying at least one
// of them; each key appears once however many of its tags match.
func GetExportRows(ctx context.Context, db *gorm.DB, locale string, tags []string) ([]domain.ExportRow, error) {
	q := db.WithContext(ctx).
		Table("translations").
		Select("translation_keys.key AS key_name, translations.content AS content").
		Joins("JOIN translation_keys ON translation_keys.id = translations.translation_key_id").
		Where("translations.locale = ?", locale)
	if len(tags) > 0 {
		q = q.Where(tagsExistSQL, tags)
	}

	rows := make([]domain.ExportRow, 0)
	if err := q.Order("translation_keys.key ASC").Scan(&rows).Error; err != nil {
		return nil, domain.StoreFailure("export rows", err)
	}
	return rows, nil
}

// ExportSource serves export rows from db; it satisfies the export cache's
// Source.
type ExportSource struct{ DB *gorm.DB }

func (s ExportSource) ExportRows(ctx context.Context, locale string, tags []string) ([]domain.ExportRow, error) {
	return GetExportRows(ctx, s.DB, locale, tags)
}

// attachTags loads the tags of every key in one query and sets them on
// the keys, ordered by name.
func attachTags(ctx context.Context, db *gorm.DB, keys []*domain.TranslationKey) error {
	if len(keys) == 0 {
		return nil
	}
	byID := make(map[uint]*domain.TranslationKey, len(keys))
	ids := make([]uint, 0, len(keys))
	for _, k := range keys {
		k.Tags = []domain.Tag{}
		byID[k.ID] = k
		ids = append(ids, k.ID)
	}

	var rows []struct {
		TranslationKeyID uint
		ID               uint
		Name             string
	}
	err := db.WithContext(ctx).
		Table("translation_key_tag").
		Select("translation_key_tag.translation_key_id, tags.id, tags.name").
		Joins("JOIN tags ON tags.id = translation_key_tag.tag_id").
		Where("translation_key_tag.translation_key_id IN ?", ids).
		Order("tags.name ASC").
		Scan(&rows).Error
	if err != nil {
		return domain.StoreFailure("load tags", err)
	}
	for _, r := range rows {
		if k, ok := byID[r.TranslationKeyID]; ok {
			k.Tags = append(k.Tags, domain.Tag{ID: r.ID, Name: r.Name})
		}
	}
	return nil
}
