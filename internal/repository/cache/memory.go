package cache

import (
	"context"
	"io"
	"sync"
)

// MemoryStore keeps tiles in process memory. Contents do not survive a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	guard openGuard
	opts  options
	data  map[string][]byte
	index *timestampIndex
}

var _ TileStore = (*MemoryStore)(nil)

func NewMemoryStore(opts ...Option) *MemoryStore {
	return &MemoryStore{
		opts: newOptions(opts),
	}
}

func (s *MemoryStore) Open(ctx context.Context) error {
	return s.guard.open(func() (io.Closer, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.data = make(map[string][]byte)
		s.index = newTimestampIndex()
		return nil, nil
	})
}

func (s *MemoryStore) Close() error {
	s.guard.close()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, k string) (Entry, bool, error) {
	if err := s.Open(ctx); err != nil {
		return Entry{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.index.lookup(k)
	if !ok {
		return Entry{}, false, nil
	}

	data := make([]byte, len(s.data[k]))
	copy(data, s.data[k])

	return Entry{
		Key:       k,
		Data:      data,
		Size:      item.size,
		Timestamp: item.timestamp,
	}, true, nil
}

func (s *MemoryStore) Put(ctx context.Context, k string, v []byte) error {
	if err := s.Open(ctx); err != nil {
		return err
	}

	data := make([]byte, len(v))
	copy(data, v)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[k] = data
	s.index.upsert(k, int64(len(data)), s.opts.now())
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, k string) error {
	if err := s.Open(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, k)
	s.index.remove(k)
	return nil
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	if err := s.Open(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[string][]byte)
	s.index.reset()
	return nil
}

func (s *MemoryStore) TotalSize(ctx context.Context) (int64, error) {
	if err := s.Open(ctx); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.index.total, nil
}

func (s *MemoryStore) EntriesByTimestamp(ctx context.Context, limit int) ([]EntryMeta, error) {
	if err := s.Open(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.index.oldest(limit), nil
}
