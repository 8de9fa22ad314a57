// Package exportcache serves locale exports of the translation dictionary
// from a shared key/value cache while guaranteeing that no export older than
// the last committed mutation is ever returned.
package exportcache

import (
	"context"
	"sync"
	"time"
)

// Store is the key/value backend behind the export cache. Implementations
// must be safe for concurrent use.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key for ttl; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Counter returns the current value of the counter at key, 0 if unset.
	Counter(ctx context.Context, key string) (int64, error)
	// Increment atomically adds delta to the counter at key.
	Increment(ctx context.Context, key string, delta int64) (int64, error)
	// Close releases resources held by the store.
	Close() error
}

type memoryItem struct {
	value      []byte
	expiration time.Time
}

func (i *memoryItem) expired(now time.Time) bool {
	return !i.expiration.IsZero() && now.After(i.expiration)
}

// MemoryStore is an in-process Store. Expired items are dropped on read and
// by a background janitor.
type MemoryStore struct {
	items sync.Map // map[string]*memoryItem

	mu       sync.Mutex
	counters map[string]int64

	stop     chan struct{}
	stopOnce sync.Once
}

const defaultJanitorInterval = 5 * time.Minute

// NewMemoryStore returns a MemoryStore whose janitor runs every interval
// (5 minutes when interval <= 0). Call Close to stop it.
func NewMemoryStore(interval time.Duration) *MemoryStore {
	if interval <= 0 {
		interval = defaultJanitorInterval
	}
	s := &MemoryStore{
		counters: make(map[string]int64),
		stop:     make(chan struct{}),
	}
	go s.janitor(interval)
	return s
}

func (s *MemoryStore) janitor(interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.sweep(time.Now())
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) sweep(now time.Time) {
	s.items.Range(func(k, v any) bool {
		if it, ok := v.(*memoryItem); ok && it.expired(now) {
			s.items.Delete(k)
		}
		return true
	})
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.items.Load(key)
	if !ok {
		return nil, false, nil
	}
	it := v.(*memoryItem)
	if it.expired(time.Now()) {
		s.items.Delete(key)
		return nil, false, nil
	}
	return it.value, true, nil
}

// Set implements Store.
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	it := &memoryItem{value: value}
	if ttl > 0 {
		it.expiration = time.Now().Add(ttl)
	}
	s.items.Store(key, it)
	return nil
}

// Counter implements Store.
func (s *MemoryStore) Counter(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key], nil
}

// Increment implements Store.
func (s *MemoryStore) Increment(_ context.Context, key string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key] += delta
	return s.counters[key], nil
}

// Len returns the number of stored items, expired ones included.
func (s *MemoryStore) Len() int {
	n := 0
	s.items.Range(func(_, _ any) bool { n++; return true })
	return n
}

// Close stops the janitor. It is safe to call more than once.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// Counters keeps the generation counters of a Layer.
type Counters interface {
	Counter(ctx context.Context, key string) (int64, error)
	Increment(ctx context.Context, key string, delta int64) (int64, error)
}

type sharedCounterStore struct {
	Store
	counters Counters
}

func (s sharedCounterStore) Counter(ctx context.Context, key string) (int64, error) {
	return s.counters.Counter(ctx, key)
}

func (s sharedCounterStore) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	return s.counters.Increment(ctx, key, delta)
}

// WithSharedCounters returns a Store that keeps entries in entries and
// generation counters in counters. Pairing a MemoryStore with counters held
// in the database lets processes that share the database see each other's
// invalidations.
func WithSharedCounters(entries Store, counters Counters) Store {
	return sharedCounterStore{Store: entries, counters: counters}
}
