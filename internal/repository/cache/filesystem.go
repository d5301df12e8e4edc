package cache

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/logger"
)

const (
	tileFileExt = ".tile"
	tmpFileExt  = ".tmp"

	// maxKeyLen bounds the URL header so a corrupt file cannot force a huge allocation.
	maxKeyLen = 64 * 1024
)

var errCorruptTileFile = errors.New("corrupt tile file")

// FilesystemStore keeps one file per tile.
// Structure: {dir}/{hash[:2]}/{hash}.tile, where each file holds the uvarint length of
// the URL, the URL and the payload. File modification time is the entry timestamp.
type FilesystemStore struct {
	mu     sync.RWMutex
	dir    string
	guard  openGuard
	opts   options
	index  *timestampIndex
	owners map[string]string // file path -> key
	logger logger.Logger
}

var _ TileStore = (*FilesystemStore)(nil)

func NewFilesystemStore(dir string, l logger.Logger, opts ...Option) *FilesystemStore {
	return &FilesystemStore{
		dir:    dir,
		opts:   newOptions(opts),
		logger: l,
	}
}

// Open creates the cache directory and rebuilds the in-memory index from the files in it.
func (c *FilesystemStore) Open(ctx context.Context) error {
	return c.guard.open(func() (io.Closer, error) {
		if err := os.MkdirAll(c.dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		c.index = newTimestampIndex()
		c.owners = make(map[string]string)

		err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}

			switch filepath.Ext(path) {
			case tmpFileExt:
				os.Remove(path)
			case tileFileExt:
				c.loadFile(path, d)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scan cache directory: %w", err)
		}

		c.logger.Info("filesystem tile store initialized", "dir", c.dir, "entries", len(c.owners), "size", c.index.total)
		return nil, nil
	})
}

// loadFile indexes one tile file. Unreadable files are removed so they never count toward
// the total size.
func (c *FilesystemStore) loadFile(path string, d fs.DirEntry) {
	info, err := d.Info()
	if err != nil {
		return
	}

	k, headerLen, err := readKey(path)
	if err != nil {
		c.logger.Warn("removing unreadable tile file", "path", path, "error", err)
		os.Remove(path)
		return
	}

	c.index.upsert(k, info.Size()-int64(headerLen), info.ModTime())
	c.owners[path] = k
}

func (c *FilesystemStore) Close() error {
	c.guard.close()
	return nil
}

func (c *FilesystemStore) keyToPath(k string) string {
	hash := fmt.Sprintf("%016x", xxhash.Sum64String(k))
	return filepath.Join(c.dir, hash[:2], hash+tileFileExt)
}

func (c *FilesystemStore) Get(ctx context.Context, k string) (Entry, bool, error) {
	if err := c.Open(ctx); err != nil {
		return Entry{}, false, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	item, ok := c.index.lookup(k)
	if !ok {
		return Entry{}, false, nil
	}

	content, err := os.ReadFile(c.keyToPath(k))
	if err != nil {
		return Entry{}, false, err
	}

	stored, data, err := decodeTileFile(content)
	if err != nil {
		return Entry{}, false, err
	}
	if stored != k {
		return Entry{}, false, nil
	}

	return Entry{
		Key:       k,
		Data:      data,
		Size:      item.size,
		Timestamp: item.timestamp,
	}, true, nil
}

func (c *FilesystemStore) Put(ctx context.Context, k string, v []byte) error {
	if err := c.Open(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	filePath := c.keyToPath(k)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return err
	}

	// Write atomically
	tmpPath := filePath + tmpFileExt
	if err := os.WriteFile(tmpPath, encodeTileFile(k, v), 0644); err != nil {
		os.Remove(tmpPath)
		return err
	}

	now := c.opts.now()
	if err := os.Chtimes(tmpPath, now, now); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return err
	}

	// A hash collision replaces the file of another key.
	if owner, ok := c.owners[filePath]; ok && owner != k {
		c.index.remove(owner)
	}
	c.owners[filePath] = k
	c.index.upsert(k, int64(len(v)), now)
	return nil
}

func (c *FilesystemStore) Delete(ctx context.Context, k string) error {
	if err := c.Open(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index.lookup(k); !ok {
		return nil
	}

	filePath := c.keyToPath(k)
	if err := os.Remove(filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	delete(c.owners, filePath)
	c.index.remove(k)
	return nil
}

func (c *FilesystemStore) Clear(ctx context.Context) error {
	if err := c.Open(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Only tile files and the fan-out directories holding them are removed; the cache
	// directory may be shared with other data.
	var fanout []string
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != c.dir && filepath.Dir(path) == filepath.Clean(c.dir) && isFanoutDir(d.Name()) {
				fanout = append(fanout, path)
			}
			return nil
		}

		switch filepath.Ext(path) {
		case tileFileExt, tmpFileExt:
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to clear cache directory: %w", err)
	}

	for _, dir := range fanout {
		// Fails on directories that still hold foreign files, which is fine.
		os.Remove(dir)
	}

	c.owners = make(map[string]string)
	c.index.reset()
	return nil
}

func (c *FilesystemStore) TotalSize(ctx context.Context) (int64, error) {
	if err := c.Open(ctx); err != nil {
		return 0, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.index.total, nil
}

func (c *FilesystemStore) EntriesByTimestamp(ctx context.Context, limit int) ([]EntryMeta, error) {
	if err := c.Open(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.index.oldest(limit), nil
}

// isFanoutDir reports whether name looks like a two hex digit hash prefix directory.
func isFanoutDir(name string) bool {
	if len(name) != 2 {
		return false
	}
	for _, r := range name {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return false
		}
	}
	return true
}

func encodeTileFile(k string, v []byte) []byte {
	buf := make([]byte, 0, binary.MaxVarintLen64+len(k)+len(v))
	buf = binary.AppendUvarint(buf, uint64(len(k)))
	buf = append(buf, k...)
	return append(buf, v...)
}

func decodeTileFile(content []byte) (string, []byte, error) {
	n, read := binary.Uvarint(content)
	if read <= 0 || n > maxKeyLen || uint64(len(content)-read) < n {
		return "", nil, errCorruptTileFile
	}
	end := read + int(n)
	return string(content[read:end]), content[end:], nil
}

// readKey reads only the URL header of a tile file.
func readKey(path string) (string, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	n, err := binary.ReadUvarint(r)
	if err != nil || n > maxKeyLen {
		return "", 0, errCorruptTileFile
	}

	var sb strings.Builder
	if _, err := io.CopyN(&sb, r, int64(n)); err != nil {
		return "", 0, errCorruptTileFile
	}

	var lenBuf [binary.MaxVarintLen64]byte
	headerLen := binary.PutUvarint(lenBuf[:], n) + int(n)
	return sb.String(), headerLen, nil
}
