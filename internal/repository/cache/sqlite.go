package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jaennil/guide_helper/backend/tilecache/pkg/logger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its configuration in package globals.
var migrateMu sync.Mutex

type SQLiteStore struct {
	path   string
	db     *sql.DB
	guard  openGuard
	opts   options
	logger logger.Logger
}

var _ TileStore = (*SQLiteStore)(nil)

// NewSQLiteStore returns a store backed by the database at path. The database is
// opened and migrated on first use.
func NewSQLiteStore(path string, l logger.Logger, opts ...Option) *SQLiteStore {
	return &SQLiteStore{
		path:   path,
		opts:   newOptions(opts),
		logger: l,
	}
}

func (c *SQLiteStore) Open(ctx context.Context) error {
	return c.guard.open(func() (io.Closer, error) {
		db, err := sql.Open("sqlite3", c.path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}

		// sqlite serializes writers anyway; a single connection also keeps
		// in-memory databases alive and shared.
		db.SetMaxOpenConns(1)

		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping sqlite: %w", err)
		}

		if err := c.runMigrations(ctx, db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}

		c.db = db
		c.logger.Info("sqlite tile store initialized", "path", c.path)
		return db, nil
	})
}

func (c *SQLiteStore) runMigrations(ctx context.Context, db *sql.DB) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())

	err := goose.SetDialect("sqlite3")
	if err != nil {
		return err
	}

	return goose.UpContext(ctx, db, "migrations")
}

func (c *SQLiteStore) Close() error {
	if !c.guard.close() {
		return nil
	}
	return c.db.Close()
}

func (c *SQLiteStore) Get(ctx context.Context, k string) (Entry, bool, error) {
	if err := c.Open(ctx); err != nil {
		return Entry{}, false, err
	}

	query := `SELECT data, size, timestamp
	FROM tiles
	WHERE url = ?`

	var (
		data []byte
		size int64
		ts   int64
	)
	err := c.db.QueryRowContext(ctx, query, k).Scan(&data, &size, &ts)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, false, nil
		}
		c.logger.Error("sqlite tile get failed", "url", k, "error", err)
		return Entry{}, false, err
	}

	return Entry{
		Key:       k,
		Data:      data,
		Size:      size,
		Timestamp: time.Unix(0, ts),
	}, true, nil
}

func (c *SQLiteStore) Put(ctx context.Context, k string, v []byte) error {
	if err := c.Open(ctx); err != nil {
		return err
	}

	c.logger.Debug("sqlite tile put", "url", k, "size", len(v))

	query := `INSERT INTO tiles (url, data, size, timestamp)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		data = excluded.data,
		size = excluded.size,
		timestamp = excluded.timestamp`

	_, err := c.db.ExecContext(ctx, query, k, v, len(v), c.opts.now().UnixNano())
	if err != nil {
		c.logger.Error("sqlite tile put failed", "url", k, "error", err)
		return err
	}

	return nil
}

func (c *SQLiteStore) Delete(ctx context.Context, k string) error {
	if err := c.Open(ctx); err != nil {
		return err
	}

	if _, err := c.db.ExecContext(ctx, `DELETE FROM tiles WHERE url = ?`, k); err != nil {
		c.logger.Error("sqlite tile delete failed", "url", k, "error", err)
		return err
	}
	return nil
}

func (c *SQLiteStore) Clear(ctx context.Context) error {
	if err := c.Open(ctx); err != nil {
		return err
	}

	if _, err := c.db.ExecContext(ctx, `DELETE FROM tiles`); err != nil {
		c.logger.Error("sqlite tile clear failed", "error", err)
		return err
	}
	return nil
}

func (c *SQLiteStore) TotalSize(ctx context.Context) (int64, error) {
	if err := c.Open(ctx); err != nil {
		return 0, err
	}

	var total int64
	err := c.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM tiles`).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (c *SQLiteStore) EntriesByTimestamp(ctx context.Context, limit int) ([]EntryMeta, error) {
	if err := c.Open(ctx); err != nil {
		return nil, err
	}

	// LIMIT -1 means no limit in sqlite.
	if limit <= 0 {
		limit = -1
	}

	query := `SELECT url, size, timestamp
	FROM tiles
	ORDER BY timestamp ASC, url ASC
	LIMIT ?`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []EntryMeta
	for rows.Next() {
		var (
			m  EntryMeta
			ts int64
		)
		if err := rows.Scan(&m.Key, &m.Size, &ts); err != nil {
			return nil, err
		}
		m.Timestamp = time.Unix(0, ts)
		entries = append(entries, m)
	}

	return entries, rows.Err()
}
