// Package bulk populates the dictionary with large synthetic datasets in
// bounded, independently committed chunks. Every insert skips rows that
// already exist, so re-running a load (or resuming a failed one) never
// duplicates keys, translations or tag associations.
package bulk

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-translation-backend/internal/domain"
	"github.com/tbourn/go-translation-backend/internal/normalize"
	"github.com/tbourn/go-translation-backend/internal/repo"
)

const (
	maxTagsPerKey = 3
	// insertBatch bounds the rows per INSERT statement so a chunk stays
	// below the store's bound-parameter limit.
	insertBatch = 500
)

// Defaults used by the seed command.
var (
	DefaultKeyCount  = 40000
	DefaultChunkSize = 1000
	DefaultLocales   = []string{"en", "fr", "es"}
	DefaultTags      = []string{"web", "mobile", "desktop"}
)

// Config describes one load.
type Config struct {
	KeyCount  int
	ChunkSize int
	Locales   []string
	Tags      []string
}

// normalized folds and dedupes locales and tags, keeping input order.
func (c Config) normalized() Config {
	c.Locales = normalize.Unique(c.Locales)
	c.Tags = normalize.Unique(c.Tags)
	return c
}

// Validate reports the first unmet precondition as domain.ErrConfiguration.
func (c Config) Validate() error {
	c = c.normalized()
	switch {
	case c.KeyCount <= 0:
		return domain.Configuration("key count must be a positive integer")
	case c.ChunkSize <= 0:
		return domain.Configuration("chunk size must be a positive integer")
	case len(c.Locales) == 0:
		return domain.Configuration("at least one locale is required")
	case len(c.Tags) == 0:
		return domain.Configuration("at least one tag is required")
	}
	return nil
}

// Report accumulates counters across chunks. Inserted counts come from
// the store's affected-row counts and are telemetry, not a guarantee.
type Report struct {
	Attempted            int           `json:"attempted"`
	KeysInserted         int64         `json:"keys_inserted"`
	TranslationsInserted int64         `json:"translations_inserted"`
	KeyTagsInserted      int64         `json:"key_tags_inserted"`
	TagsInserted         int64         `json:"tags_inserted"`
	Chunks               int           `json:"chunks"`
	Elapsed              time.Duration `json:"elapsed"`
}

// Progress is reported after every committed chunk.
type Progress struct {
	Chunk  int
	Chunks int
	Start  int
	End    int
	Report Report
}

// Invalidator drops cached exports after data changed.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Loader runs bulk loads against DB.
type Loader struct {
	DB         *gorm.DB
	Sample     Sampler
	Cache      Invalidator
	Logger     zerolog.Logger
	OnProgress func(Progress)
}

// NewLoader returns a Loader with an unseeded sampler and a disabled logger.
func NewLoader(db *gorm.DB, cache Invalidator) *Loader {
	return &Loader{DB: db, Sample: NewSampler(nil), Cache: cache, Logger: zerolog.Nop()}
}

// KeyName returns the generated name of the n-th key.
func KeyName(n int) string { return fmt.Sprintf("translation.key.%06d", n) }

// Content returns the generated text of key in locale.
func Content(locale, key string) string {
	return fmt.Sprintf("[%s] Sample translation for %s", strings.ToUpper(locale), key)
}

var ignoreDuplicates = clause.OnConflict{DoNothing: true}

// Load validates cfg and inserts cfg.KeyCount keys in chunks of
// cfg.ChunkSize. A failing chunk is rolled back and stops the load; chunks
// committed before it stay.
func (l *Loader) Load(ctx context.Context, cfg Config) (Report, error) {
	began := time.Now()
	var rep Report

	if err := cfg.Validate(); err != nil {
		return rep, err
	}
	cfg = cfg.normalized()
	if missing := repo.MissingTables(l.DB.WithContext(ctx)); len(missing) > 0 {
		return rep, domain.Configuration("missing tables: " + strings.Join(missing, ", "))
	}
	sample := l.Sample
	if sample == nil {
		sample = NewSampler(nil)
	}

	tagIDs, inserted, err := l.ensureTags(ctx, cfg.Tags)
	if err != nil {
		return rep, err
	}
	rep.TagsInserted = inserted
	rowsInserted.WithLabelValues("tags").Add(float64(inserted))

	chunks := (cfg.KeyCount + cfg.ChunkSize - 1) / cfg.ChunkSize
	l.Logger.Info().
		Int("keys", cfg.KeyCount).Int("chunk_size", cfg.ChunkSize).Int("chunks", chunks).
		Strs("locales", cfg.Locales).Strs("tags", cfg.Tags).
		Msg("bulk load started")

	for i := 0; i < chunks; i++ {
		if err := ctx.Err(); err != nil {
			rep.Elapsed = time.Since(began)
			return rep, err
		}
		start := i*cfg.ChunkSize + 1
		end := start + cfg.ChunkSize - 1
		if end > cfg.KeyCount {
			end = cfg.KeyCount
		}

		var c chunkCounts
		err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var err error
			c, err = loadChunk(tx, start, end, cfg.Locales, tagIDs, sample)
			return err
		})
		if err != nil {
			rep.Elapsed = time.Since(began)
			return rep, domain.StoreFailure(fmt.Sprintf("chunk %d (%d-%d)", i+1, start, end), err)
		}

		rep.Attempted += end - start + 1
		rep.KeysInserted += c.keys
		rep.TranslationsInserted += c.translations
		rep.KeyTagsInserted += c.keyTags
		rep.Chunks++
		chunksCommitted.Inc()
		rowsInserted.WithLabelValues("translation_keys").Add(float64(c.keys))
		rowsInserted.WithLabelValues("translations").Add(float64(c.translations))
		rowsInserted.WithLabelValues("translation_key_tag").Add(float64(c.keyTags))

		if l.Cache != nil {
			if err := l.Cache.Invalidate(ctx); err != nil {
				rep.Elapsed = time.Since(began)
				return rep, err
			}
		}

		l.Logger.Info().
			Int("chunk", i+1).Int("chunks", chunks).Int("start", start).Int("end", end).
			Int64("keys_inserted", c.keys).Int64("translations_inserted", c.translations).
			Msg("bulk chunk committed")
		if l.OnProgress != nil {
			snap := rep
			snap.Elapsed = time.Since(began)
			l.OnProgress(Progress{Chunk: i + 1, Chunks: chunks, Start: start, End: end, Report: snap})
		}
	}

	rep.Elapsed = time.Since(began)
	l.Logger.Info().
		Int("attempted", rep.Attempted).
		Int64("keys_inserted", rep.KeysInserted).
		Int64("translations_inserted", rep.TranslationsInserted).
		Int64("key_tags_inserted", rep.KeyTagsInserted).
		Dur("elapsed", rep.Elapsed).
		Msg("bulk load finished")
	return rep, nil
}

// ensureTags inserts the configured tags once and resolves them to ids in
// configuration order.
func (l *Loader) ensureTags(ctx context.Context, names []string) ([]uint, int64, error) {
	now := time.Now().UTC()
	rows := make([]domain.Tag, 0, len(names))
	for _, n := range names {
		rows = append(rows, domain.Tag{Name: n, CreatedAt: now, UpdatedAt: now})
	}
	res := l.DB.WithContext(ctx).Clauses(ignoreDuplicates).Create(&rows)
	if res.Error != nil {
		return nil, 0, domain.StoreFailure("insert tags", res.Error)
	}

	var tags []domain.Tag
	if err := l.DB.WithContext(ctx).Where("name IN ?", names).Find(&tags).Error; err != nil {
		return nil, 0, domain.StoreFailure("resolve tags", err)
	}
	byName := make(map[string]uint, len(tags))
	for _, t := range tags {
		byName[t.Name] = t.ID
	}
	ids := make([]uint, 0, len(names))
	for _, n := range names {
		id, ok := byName[n]
		if !ok {
			return nil, 0, domain.StoreFailure("resolve tags", fmt.Errorf("tag %q missing after insert", n))
		}
		ids = append(ids, id)
	}
	return ids, res.RowsAffected, nil
}

type chunkCounts struct {
	keys, translations, keyTags int64
}

// loadChunk writes keys start..end with their translations and tags using
// tx. Existing rows are skipped at every step.
func loadChunk(tx *gorm.DB, start, end int, locales []string, tagIDs []uint, sample Sampler) (chunkCounts, error) {
	var c chunkCounts
	now := time.Now().UTC()

	names := make([]string, 0, end-start+1)
	keys := make([]domain.TranslationKey, 0, end-start+1)
	for n := start; n <= end; n++ {
		name := KeyName(n)
		names = append(names, name)
		keys = append(keys, domain.TranslationKey{Key: name, CreatedAt: now, UpdatedAt: now})
	}
	res := tx.Clauses(ignoreDuplicates).CreateInBatches(&keys, insertBatch)
	if res.Error != nil {
		return c, fmt.Errorf("insert keys: %w", res.Error)
	}
	c.keys = res.RowsAffected

	// Re-read ids by name: keys from an earlier partial run were skipped
	// above and carry no id.
	var found []struct {
		ID  uint
		Key string
	}
	if err := tx.Model(&domain.TranslationKey{}).Select("id", "key").
		Where("key IN ?", names).Scan(&found).Error; err != nil {
		return c, fmt.Errorf("resolve keys: %w", err)
	}
	idByName := make(map[string]uint, len(found))
	for _, f := range found {
		idByName[f.Key] = f.ID
	}

	translations := make([]domain.Translation, 0, len(names)*len(locales))
	keyTags := make([]domain.KeyTag, 0, len(names)*2)
	for _, name := range names {
		id, ok := idByName[name]
		if !ok {
			return c, fmt.Errorf("key %q missing after insert", name)
		}
		for _, loc := range locales {
			translations = append(translations, domain.Translation{
				TranslationKeyID: id,
				Locale:           loc,
				Content:          Content(loc, name),
				CreatedAt:        now,
				UpdatedAt:        now,
			})
		}
		for _, tagID := range pick(tagIDs, tagCount(len(tagIDs), sample), sample) {
			keyTags = append(keyTags, domain.KeyTag{TranslationKeyID: id, TagID: tagID, CreatedAt: now})
		}
	}

	res = tx.Clauses(ignoreDuplicates).CreateInBatches(&translations, insertBatch)
	if res.Error != nil {
		return c, fmt.Errorf("insert translations: %w", res.Error)
	}
	c.translations = res.RowsAffected

	res = tx.Clauses(ignoreDuplicates).CreateInBatches(&keyTags, insertBatch)
	if res.Error != nil {
		return c, fmt.Errorf("insert key tags: %w", res.Error)
	}
	c.keyTags = res.RowsAffected

	// New translations or tags on keys from an earlier run change search
	// results; bump updated_at so the search ETag moves with them.
	if c.translations+c.keyTags > 0 {
		ids := make([]uint, 0, len(found))
		for _, f := range found {
			ids = append(ids, f.ID)
		}
		if err := tx.Model(&domain.TranslationKey{}).Where("id IN ?", ids).
			UpdateColumn("updated_at", now).Error; err != nil {
			return c, fmt.Errorf("touch keys: %w", err)
		}
	}
	return c, nil
}
