package exportcache

import (
	"time"

	"github.com/tbourn/go-translation-backend/internal/config"
)

const memorySweepInterval = time.Minute

// NewStore builds the Store selected by cfg.Backend. The redis backend keeps
// entries and counters on the server. The memory backend keeps entries in
// process and reads generations from counters, so a writer in another
// process (the seed CLI, a second replica) still invalidates this one.
func NewStore(cfg config.CacheConfig, counters Counters) (Store, error) {
	if cfg.Backend == "redis" {
		rs, err := NewRedisStore(RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		return rs, nil
	}
	return WithSharedCounters(NewMemoryStore(memorySweepInterval), counters), nil
}
