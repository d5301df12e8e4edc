package usecase

import (
	"context"
	"fmt"

	"github.com/jaennil/guide_helper/backend/tilecache/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultQuotaBytes int64 = 100 * 1024 * 1024
	DefaultPruneRatio       = 0.8

	tracerName = "github.com/jaennil/guide_helper/backend/tilecache/internal/usecase"
)

type Source string

const (
	SourceCache   Source = "cache"
	SourceNetwork Source = "network"
)

type Tile struct {
	Data   []byte
	Source Source
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// TileCacheUseCase is the get-or-fetch entry point of the tile cache.
//
// Its exported methods never return errors: a failing store behaves like an empty cache and
// a failing fetch means the tile is unavailable. Both are logged here and nowhere else.
type TileCacheUseCase struct {
	store      cache.TileStore
	fetcher    Fetcher
	pruner     *Pruner
	quota      int64
	pruneRatio float64
	logger     logger.Logger
	tracer     trace.Tracer
}

func NewTileCacheUseCase(store cache.TileStore, fetcher Fetcher, cfg config.Cache, l logger.Logger) *TileCacheUseCase {
	quota := cfg.QuotaBytes
	if quota <= 0 {
		quota = DefaultQuotaBytes
	}
	ratio := cfg.PruneRatio
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultPruneRatio
	}

	return &TileCacheUseCase{
		store:      store,
		fetcher:    fetcher,
		pruner:     NewPruner(store, l),
		quota:      quota,
		pruneRatio: ratio,
		logger:     l,
		tracer:     otel.Tracer(tracerName),
	}
}

func (uc *TileCacheUseCase) Quota() int64 {
	return uc.quota
}

// pruneTarget is the headroom target, lowered when the incoming tile would not fit under
// the quota even at that level.
func (uc *TileCacheUseCase) pruneTarget(incoming int64) int64 {
	target := int64(float64(uc.quota) * uc.pruneRatio)
	return max(0, min(target, uc.quota-incoming))
}

// GetOrFetch returns the cached tile for url, fetching and caching it on a miss.
// It reports false when the tile is neither cached nor fetchable.
func (uc *TileCacheUseCase) GetOrFetch(ctx context.Context, url string) (Tile, bool) {
	ctx, span := uc.tracer.Start(ctx, "TileCacheUseCase.GetOrFetch",
		trace.WithAttributes(attribute.String("tile.url", url)),
	)
	defer span.End()

	t, err := uc.getOrFetch(ctx, url)
	if err != nil {
		uc.logger.Warn("tile unavailable", "url", url, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "tile unavailable")
		return Tile{}, false
	}

	span.SetAttributes(
		attribute.String("tile.source", string(t.Source)),
		attribute.Int("tile.size", len(t.Data)),
	)
	return t, true
}

func (uc *TileCacheUseCase) getOrFetch(ctx context.Context, url string) (Tile, error) {
	uc.logger.Debug("cache lookup", "url", url)

	entry, exists, err := uc.store.Get(ctx, url)
	if err != nil {
		uc.storageFailed("get", err, "url", url)
	} else if exists {
		metrics.CacheHits.Inc()
		return Tile{Data: entry.Data, Source: SourceCache}, nil
	}
	metrics.CacheMisses.Inc()

	data, err := uc.fetcher.Fetch(ctx, url)
	if err != nil {
		metrics.UpstreamFailures.Inc()
		return Tile{}, fmt.Errorf("fetch: %w", err)
	}

	uc.cacheTile(ctx, url, data)

	return Tile{Data: data, Source: SourceNetwork}, nil
}

// cacheTile makes room within the quota and stores data. A tile larger than the quota is
// still written after the store has been emptied.
func (uc *TileCacheUseCase) cacheTile(ctx context.Context, url string, data []byte) {
	size := int64(len(data))
	uc.logger.Debug("caching tile", "url", url, "size", size)

	total, err := uc.store.TotalSize(ctx)
	if err != nil {
		uc.storageFailed("total_size", err)
	} else if total+size > uc.quota {
		target := uc.pruneTarget(size)
		res, err := uc.pruner.PruneTo(ctx, target)
		if err != nil {
			uc.storageFailed("prune", err, "evicted", res.Evicted)
		} else if res.Remaining+size > uc.quota {
			uc.logger.Warn("tile cache over quota after eviction",
				"quota", uc.quota,
				"remaining", res.Remaining,
				"incoming", size,
			)
		}
	}

	if err := uc.store.Put(ctx, url, data); err != nil {
		uc.storageFailed("put", err, "url", url)
		return
	}
	metrics.CacheStores.Inc()
}

func (uc *TileCacheUseCase) storageFailed(op string, err error, keysAndValues ...any) {
	metrics.CacheStorageErrors.WithLabelValues(op).Inc()
	uc.logger.Error("tile store "+op+" failed", append(keysAndValues, "error", err)...)
}

// TotalSize reports the bytes currently cached, or 0 when the store is unavailable.
func (uc *TileCacheUseCase) TotalSize(ctx context.Context) int64 {
	total, err := uc.store.TotalSize(ctx)
	if err != nil {
		uc.storageFailed("total_size", err)
		return 0
	}
	metrics.CacheSizeBytes.Set(float64(total))
	return total
}

// Clear removes every cached tile and reports whether it succeeded.
func (uc *TileCacheUseCase) Clear(ctx context.Context) bool {
	if err := uc.store.Clear(ctx); err != nil {
		uc.storageFailed("clear", err)
		return false
	}
	metrics.CacheSizeBytes.Set(0)
	uc.logger.Info("tile cache cleared")
	return true
}
