package artifact

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type CacheConfig struct {
	MaxEntries int
	TTL        time.Duration
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{MaxEntries: 256, TTL: 5 * time.Minute}
}

type CacheStats struct {
	Hits   uint64
	Misses uint64
}

// CachedStore serves repeated script downloads from memory. Writes and
// deletes go to the origin first and then update the cache.
type CachedStore struct {
	origin Store
	blobs  *expirable.LRU[string, []byte]
	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewCachedStore(origin Store, cfg CacheConfig) *CachedStore {
	def := DefaultCacheConfig()
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = def.MaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}
	return &CachedStore{
		origin: origin,
		blobs:  expirable.NewLRU[string, []byte](cfg.MaxEntries, nil, cfg.TTL),
	}
}

func (s *CachedStore) Put(ctx context.Context, packageID, name string, content []byte) error {
	key, err := objectKey(packageID, name)
	if err != nil {
		return err
	}
	if err := s.origin.Put(ctx, packageID, name, content); err != nil {
		return err
	}
	s.blobs.Add(key, append([]byte(nil), content...))
	return nil
}

func (s *CachedStore) Get(ctx context.Context, packageID, name string) ([]byte, error) {
	key, err := objectKey(packageID, name)
	if err != nil {
		return nil, err
	}
	if raw, ok := s.blobs.Get(key); ok {
		s.hits.Add(1)
		return append([]byte(nil), raw...), nil
	}
	s.misses.Add(1)
	raw, err := s.origin.Get(ctx, packageID, name)
	if err != nil {
		return nil, err
	}
	s.blobs.Add(key, append([]byte(nil), raw...))
	return raw, nil
}

func (s *CachedStore) GetURL(ctx context.Context, packageID, name string) (string, error) {
	return s.origin.GetURL(ctx, packageID, name)
}

func (s *CachedStore) List(ctx context.Context, packageID string) ([]string, error) {
	return s.origin.List(ctx, packageID)
}

func (s *CachedStore) Delete(ctx context.Context, packageID string) error {
	if err := s.origin.Delete(ctx, packageID); err != nil {
		return err
	}
	prefix := strings.TrimSpace(packageID) + "/"
	for _, k := range s.blobs.Keys() {
		if strings.HasPrefix(k, prefix) {
			s.blobs.Remove(k)
		}
	}
	return nil
}

func (s *CachedStore) Stats() CacheStats {
	return CacheStats{Hits: s.hits.Load(), Misses: s.misses.Load()}
}
