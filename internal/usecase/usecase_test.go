package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jaennil/guide_helper/backend/tilecache/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newMemoryStore(t *testing.T) cache.TileStore {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	store := cache.NewMemoryStore(cache.WithClock(clock.Now))
	t.Cleanup(func() { store.Close() })
	return store
}

// fakeFetcher serves payloads from a map and counts calls per URL.
type fakeFetcher struct {
	mu       sync.Mutex
	payloads map[string][]byte
	failures map[string]bool
	calls    map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		payloads: make(map[string][]byte),
		failures: make(map[string]bool),
		calls:    make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[url]++
	if f.failures[url] {
		return nil, fmt.Errorf("upstream failure for %s", url)
	}
	if data, ok := f.payloads[url]; ok {
		return data, nil
	}
	return []byte("tile:" + url), nil
}

func (f *fakeFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func newTestUseCase(store cache.TileStore, fetcher Fetcher, quota int64) *TileCacheUseCase {
	return NewTileCacheUseCase(store, fetcher, config.Cache{QuotaBytes: quota, PruneRatio: 0.8}, logger.NewNop())
}

func mustTotal(t *testing.T, store cache.TileStore) int64 {
	t.Helper()
	total, err := store.TotalSize(context.Background())
	if err != nil {
		t.Fatalf("TotalSize failed: %v", err)
	}
	return total
}

func isCached(t *testing.T, store cache.TileStore, url string) bool {
	t.Helper()
	_, exists, err := store.Get(context.Background(), url)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", url, err)
	}
	return exists
}

// failingStore wraps a TileStore and fails selected operations.
type failingStore struct {
	cache.TileStore
	failGet    bool
	failPut    bool
	failTotal  bool
	failDelete bool
}

var errStoreDown = errors.New("store unavailable")

func (s *failingStore) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	if s.failGet {
		return cache.Entry{}, false, errStoreDown
	}
	return s.TileStore.Get(ctx, key)
}

func (s *failingStore) Put(ctx context.Context, key string, data []byte) error {
	if s.failPut {
		return errStoreDown
	}
	return s.TileStore.Put(ctx, key, data)
}

func (s *failingStore) TotalSize(ctx context.Context) (int64, error) {
	if s.failTotal {
		return 0, errStoreDown
	}
	return s.TileStore.TotalSize(ctx)
}

func (s *failingStore) Delete(ctx context.Context, key string) error {
	if s.failDelete {
		return errStoreDown
	}
	return s.TileStore.Delete(ctx, key)
}

func tileKey(i int) string {
	return fmt.Sprintf("https://tile.example.org/10/%d/0.png", i)
}
