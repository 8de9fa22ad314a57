// Package domain defines the persistence models of the translation
// dictionary: keys, their per-locale translations, tags and the explicit
// key/tag association. These types are mapped with GORM and shared by the
// repository, service and bulk-load layers.
package domain

import "time"

// TranslationKey is the stable, globally unique identifier of one piece of
// localizable text. It owns one Translation per locale and is associated
// with zero or more Tags through KeyTag rows.
//
// Fields:
//   - ID: store-assigned surrogate key.
//   - Key: external identifier used by every lookup (unique, <= 255 chars).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - Translations: owned rows, cascade-deleted with the key.
//   - Tags: populated by the repository from KeyTag; not a GORM relation.
type TranslationKey struct {
	ID        uint      `json:"id"         gorm:"primaryKey"`
	Key       string    `json:"key"        gorm:"type:varchar(255);not null;uniqueIndex:ux_translation_keys_key"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Translations []Translation `json:"translations,omitempty" gorm:"foreignKey:TranslationKeyID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Tags         []Tag         `json:"tags,omitempty"         gorm:"-"`
}

// TableName returns the database table name for TranslationKey.
func (TranslationKey) TableName() string { return "translation_keys" }

// Translation is the text of a key in one locale. At most one row exists
// per (translation_key_id, locale); writes are upserts.
type Translation struct {
	ID               uint      `json:"id"                 gorm:"primaryKey"`
	TranslationKeyID uint      `json:"translation_key_id" gorm:"not null;uniqueIndex:ux_translations_key_locale,priority:1"`
	Locale           string    `json:"locale"             gorm:"type:varchar(10);not null;uniqueIndex:ux_translations_key_locale,priority:2;index:idx_translations_locale"`
	Content          string    `json:"content"            gorm:"type:text;not null"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName returns the database table name for Translation.
func (Translation) TableName() string { return "translations" }

// Tag is a lower-cased, trimmed label. Tags are created lazily on first use
// and are never removed when keys stop referencing them.
type Tag struct {
	ID        uint      `json:"id"   gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"type:varchar(50);not null;uniqueIndex:ux_tags_name"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// TableName returns the database table name for Tag.
func (Tag) TableName() string { return "tags" }

// KeyTag associates a TranslationKey with a Tag. The pair is the primary
// key; idx_key_tag_reverse serves tag → keys lookups. Removing either side
// cascades to the association row.
type KeyTag struct {
	TranslationKeyID uint      `gorm:"primaryKey;autoIncrement:false;index:idx_key_tag_reverse,priority:2"`
	TagID            uint      `gorm:"primaryKey;autoIncrement:false;index:idx_key_tag_reverse,priority:1"`
	CreatedAt        time.Time

	TranslationKey *TranslationKey `gorm:"foreignKey:TranslationKeyID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Tag            *Tag            `gorm:"foreignKey:TagID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for KeyTag.
func (KeyTag) TableName() string { return "translation_key_tag" }

// ExportRow is one (key, content) pair produced for an export.
type ExportRow struct {
	Key     string `gorm:"column:key_name"`
	Content string `gorm:"column:content"`
}

// TagNames returns the names of the key's loaded tags in their loaded order.
func (k *TranslationKey) TagNames() []string {
	out := make([]string, 0, len(k.Tags))
	for _, t := range k.Tags {
		out = append(out, t.Name)
	}
	return out
}

// TranslationMap flattens the loaded translations into locale → content.
func (k *TranslationKey) TranslationMap() map[string]string {
	out := make(map[string]string, len(k.Translations))
	for _, tr := range k.Translations {
		out[tr.Locale] = tr.Content
	}
	return out
}

// CacheGeneration is a named counter kept in the database. The export cache
// reads its generation from here when its entries live in process memory,
// so every process sharing the database sees the same invalidations.
type CacheGeneration struct {
	Name      string    `gorm:"type:varchar(100);primaryKey"`
	Value     int64     `gorm:"not null;default:0"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the database table name for CacheGeneration.
func (CacheGeneration) TableName() string { return "cache_generations" }
