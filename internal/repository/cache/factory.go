package cache

import (
	"fmt"

	"github.com/jaennil/guide_helper/backend/tilecache/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/logger"
)

const (
	TypeSQLite     = "sqlite"
	TypeFilesystem = "filesystem"
	TypeMemory     = "memory"
	TypeRedis      = "redis"
)

// NewStore creates an unopened tile store for the configured backend.
func NewStore(storeCfg config.Store, redisCfg config.Redis, l logger.Logger, opts ...Option) (TileStore, error) {
	switch storeCfg.Type {
	case TypeSQLite:
		l.Info("using sqlite tile store", "path", storeCfg.SQLitePath)
		return NewSQLiteStore(storeCfg.SQLitePath, l, opts...), nil
	case TypeFilesystem:
		l.Info("using filesystem tile store", "dir", storeCfg.FilesystemDir)
		return NewFilesystemStore(storeCfg.FilesystemDir, l, opts...), nil
	case TypeMemory:
		l.Info("using memory tile store")
		return NewMemoryStore(opts...), nil
	case TypeRedis:
		l.Info("using redis tile store", "addr", redisCfg.Addr)
		return NewRedisStore(RedisConfig{
			Addr:     redisCfg.Addr,
			Password: redisCfg.Password,
			DB:       redisCfg.DB,
			Prefix:   redisCfg.Prefix,
		}, l, opts...), nil
	default:
		return nil, fmt.Errorf("%w: %s (supported: sqlite, filesystem, memory, redis)", ErrUnknownStoreType, storeCfg.Type)
	}
}
