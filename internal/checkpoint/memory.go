package checkpoint

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps checkpoints in a process-local TTL cache. Entries that are
// not rewritten within the TTL expire, after which the next check treats the
// stream as never delivered.
type MemoryStore struct {
	cache *cache.Cache
}

// NewMemoryStore builds a MemoryStore. ttl <= 0 disables expiry and cleanup <= 0
// disables the background janitor.
func NewMemoryStore(ttl, cleanup time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &MemoryStore{cache: cache.New(ttl, cleanup)}
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	v, found := s.cache.Get(key)
	if !found {
		return 0, false, nil
	}
	ms, ok := v.(int64)
	return ms, ok, nil
}

// Set implements Store. Each write refreshes the key's TTL.
func (s *MemoryStore) Set(ctx context.Context, key string, ms int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.cache.Set(key, ms, cache.DefaultExpiration)
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.cache.Delete(key)
	return nil
}

// Len reports how many checkpoints are held, including expired entries not yet swept.
func (s *MemoryStore) Len() int { return s.cache.ItemCount() }
