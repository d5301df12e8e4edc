package cache

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	ErrClosed           = errors.New("tile store is closed")
	ErrUnknownStoreType = errors.New("unknown tile store type")
)

// Entry is one cached tile payload keyed by its fully resolved URL.
type Entry struct {
	Key       string
	Data      []byte
	Size      int64
	Timestamp time.Time
}

// EntryMeta is an Entry without its payload.
type EntryMeta struct {
	Key       string
	Size      int64
	Timestamp time.Time
}

// TileStore is a persistent key/payload store with size accounting.
//
// Every method opens the store on first use. Timestamps are set on Put only; Get never
// refreshes them, so EntriesByTimestamp is insertion order, not access order.
type TileStore interface {
	Open(ctx context.Context) error
	Close() error
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	TotalSize(ctx context.Context) (int64, error)
	// EntriesByTimestamp returns up to limit entries, oldest first. limit <= 0 returns all.
	EntriesByTimestamp(ctx context.Context, limit int) ([]EntryMeta, error)
}

type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used to stamp written entries.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// openGuard runs an open sequence at most once until it succeeds. Concurrent callers
// share the in-flight attempt. fn returns the handle it opened, if any; a handle that
// finishes opening after close has been called is closed again immediately.
type openGuard struct {
	group  singleflight.Group
	mu     sync.RWMutex
	opened bool
	closed bool
}

func (g *openGuard) open(fn func() (io.Closer, error)) error {
	g.mu.RLock()
	opened, closed := g.opened, g.closed
	g.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if opened {
		return nil
	}

	_, err, _ := g.group.Do("open", func() (any, error) {
		g.mu.RLock()
		opened, closed := g.opened, g.closed
		g.mu.RUnlock()
		if closed {
			return nil, ErrClosed
		}
		if opened {
			return nil, nil
		}

		handle, err := fn()
		if err != nil {
			return nil, err
		}

		g.mu.Lock()
		if g.closed {
			g.mu.Unlock()
			if handle != nil {
				handle.Close()
			}
			return nil, ErrClosed
		}
		g.opened = true
		g.mu.Unlock()
		return nil, nil
	})
	return err
}

// close marks the guard closed and reports whether it had been opened.
func (g *openGuard) close() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	wasOpen := g.opened
	g.opened = false
	g.closed = true
	return wasOpen
}
