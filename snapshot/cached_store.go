package snapshot

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
)

const DefaultCacheSize = 256

// CachedStore keeps recently read snapshots in memory in front of a slower
// backend. Writes go through to the backend and refresh the cache.
type CachedStore struct {
	backend Store
	cache   *lru.Cache
}

var _ Store = (*CachedStore)(nil)

func NewCachedStore(backend Store, size int) (*CachedStore, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "creating snapshot cache")
	}
	return &CachedStore{backend: backend, cache: cache}, nil
}

func (s *CachedStore) Read(ctx context.Context, key Key) ([]byte, error) {
	if v, ok := s.cache.Get(key); ok {
		return append([]byte(nil), v.([]byte)...), nil
	}
	content, err := s.backend.Read(ctx, key)
	if err != nil {
		return nil, err
	}
	s.cache.Add(key, append([]byte(nil), content...))
	return content, nil
}

func (s *CachedStore) Write(ctx context.Context, key Key, content []byte) error {
	if err := s.backend.Write(ctx, key, content); err != nil {
		s.cache.Remove(key)
		return err
	}
	s.cache.Add(key, append([]byte(nil), content...))
	return nil
}
