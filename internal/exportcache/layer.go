// This file implements Layer, the read-through cache in front of locale
// exports. Entries are keyed by (generation, locale, canonical tag set) and
// the generation counter lives in the Store. Invalidate increments the
// counter; it never deletes entries. Concurrent misses for the same key
// share one database read through singleflight.
package exportcache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/tbourn/go-translation-backend/internal/domain"
	"github.com/tbourn/go-translation-backend/internal/normalize"
)

const (
	// DefaultPrefix namespaces every key the layer writes.
	DefaultPrefix = "translations:export"
	// DefaultTTL bounds how long one export stays cached.
	DefaultTTL = 10 * time.Minute
)

// Source reads export rows from the database. It receives a canonical
// locale and tag set.
type Source interface {
	ExportRows(ctx context.Context, locale string, tags []string) ([]domain.ExportRow, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, locale string, tags []string) ([]domain.ExportRow, error)

// ExportRows implements Source.
func (f SourceFunc) ExportRows(ctx context.Context, locale string, tags []string) ([]domain.ExportRow, error) {
	return f(ctx, locale, tags)
}

// Layer caches exports keyed by (generation, locale, canonical tag set).
//
// Invalidate bumps the generation counter. Export reads the generation
// before it reads the database, so an export that raced a mutation can only
// be written under a generation nobody reads anymore.
type Layer struct {
	store  Store
	source Source
	ttl    time.Duration
	prefix string
	group  singleflight.Group
}

// Option customizes a Layer.
type Option func(*Layer)

// WithTTL sets the entry lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(l *Layer) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(l *Layer) {
		if prefix != "" {
			l.prefix = prefix
		}
	}
}

// New returns a Layer reading misses from source and caching in store.
func New(store Store, source Source, opts ...Option) *Layer {
	l := &Layer{store: store, source: source, ttl: DefaultTTL, prefix: DefaultPrefix}
	for _, o := range opts {
		o(l)
	}
	return l
}

// TTL returns the configured entry lifetime.
func (l *Layer) TTL() time.Duration { return l.ttl }

func (l *Layer) generationKey() string { return l.prefix + ":generation" }

// CacheKey composes the cache key of (locale, tags) under generation gen.
// tags must already be canonical.
func CacheKey(prefix, locale string, gen int64, tags []string) string {
	b, _ := json.Marshal(tags)
	return fmt.Sprintf("%s:%s:g%d:%s", prefix, locale, gen, strconv.FormatUint(xxhash.Sum64(b), 16))
}

// Export returns key → content for locale, restricted to keys carrying any
// of tags when tags is non-empty. Cache failures fall back to the database.
func (l *Layer) Export(ctx context.Context, locale string, tags []string) (map[string]string, error) {
	locale = normalize.Locale(locale)
	canon := normalize.Tags(tags)

	gen, err := l.store.Counter(ctx, l.generationKey())
	if err != nil {
		log.Warn().Err(err).Str("locale", locale).Msg("export cache: generation unavailable, reading database")
		cacheRequests.WithLabelValues("error").Inc()
		return l.load(ctx, locale, canon)
	}
	key := CacheKey(l.prefix, locale, gen, canon)

	raw, found, err := l.store.Get(ctx, key)
	switch {
	case err != nil:
		log.Warn().Err(err).Str("key", key).Msg("export cache: read failed, reading database")
		cacheRequests.WithLabelValues("error").Inc()
		return l.load(ctx, locale, canon)
	case found:
		var out map[string]string
		if err := json.Unmarshal(raw, &out); err == nil {
			cacheRequests.WithLabelValues("hit").Inc()
			return out, nil
		}
		log.Warn().Str("key", key).Msg("export cache: undecodable entry, reloading")
	}

	cacheRequests.WithLabelValues("miss").Inc()
	v, err, _ := l.group.Do(key, func() (any, error) {
		out, err := l.load(ctx, locale, canon)
		if err != nil {
			return nil, err
		}
		if b, err := json.Marshal(out); err == nil {
			if err := l.store.Set(ctx, key, b, l.ttl); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("export cache: write failed")
			}
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return copyMap(v.(map[string]string)), nil
}

func (l *Layer) load(ctx context.Context, locale string, tags []string) (map[string]string, error) {
	rows, err := l.source.ExportRows(ctx, locale, tags)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Content
	}
	return out, nil
}

// Invalidate makes every previously cached export unreachable. Callers
// run it after their transaction commits and before reporting success.
func (l *Layer) Invalidate(ctx context.Context) error {
	if _, err := l.store.Increment(ctx, l.generationKey(), 1); err != nil {
		return domain.StoreFailure("invalidate export cache", err)
	}
	cacheInvalidations.Inc()
	return nil
}

// singleflight hands the same map to every waiter.
func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
