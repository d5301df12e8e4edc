package usecase

import (
	"context"
	"fmt"

	"github.com/jaennil/guide_helper/backend/tilecache/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/metrics"
)

const pruneBatchSize = 64

type PruneResult struct {
	Evicted    int
	FreedBytes int64
	// Remaining is the store size after pruning, as tracked while deleting.
	Remaining int64
}

// Pruner evicts the oldest tiles, by write time, until the store fits a target size.
type Pruner struct {
	store  cache.TileStore
	logger logger.Logger
}

func NewPruner(store cache.TileStore, l logger.Logger) *Pruner {
	return &Pruner{
		store:  store,
		logger: l,
	}
}

// PruneTo deletes entries oldest first until the total size is at most targetBytes or the
// store is empty. Running out of entries is not an error. A failed delete stops pruning and
// the result reports only what was actually removed.
func (p *Pruner) PruneTo(ctx context.Context, targetBytes int64) (PruneResult, error) {
	total, err := p.store.TotalSize(ctx)
	if err != nil {
		return PruneResult{}, fmt.Errorf("failed to read store size: %w", err)
	}

	result := PruneResult{Remaining: total}

prune:
	for result.Remaining > targetBytes {
		batch, err := p.store.EntriesByTimestamp(ctx, pruneBatchSize)
		if err != nil {
			return result, fmt.Errorf("failed to list oldest tiles: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		for _, e := range batch {
			if err := p.store.Delete(ctx, e.Key); err != nil {
				return result, fmt.Errorf("failed to evict tile %s: %w", e.Key, err)
			}

			result.Evicted++
			result.FreedBytes += e.Size
			result.Remaining -= e.Size
			metrics.CacheEvictions.Inc()
			metrics.CacheEvictedBytes.Add(float64(e.Size))

			if result.Remaining <= targetBytes {
				break prune
			}
		}
	}

	p.logger.Info("pruned tile cache",
		"target", targetBytes,
		"evicted", result.Evicted,
		"freed", result.FreedBytes,
		"remaining", result.Remaining,
	)
	return result, nil
}
