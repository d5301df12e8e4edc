package usecase

import (
	"context"

	"github.com/jaennil/guide_helper/backend/tilecache/internal/tile"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type DownloadRequest struct {
	Bounds tile.Bounds
	// Zoom is the current map view zoom; the downloaded levels are derived from it.
	Zoom float64
	// Template overrides the default tile URL template when set.
	Template string
}

type DownloadReport struct {
	Total     int
	Cached    int
	Fetched   int
	Failed    int
	Cancelled bool
	MinZoom   int
	MaxZoom   int
}

// ProgressFunc receives the completed percentage, from 0 to 100.
type ProgressFunc func(percent float64)

type TileGetter interface {
	GetOrFetch(ctx context.Context, url string) (Tile, bool)
}

// AreaDownloadUseCase pre-fetches every tile covering an area so it is available offline.
type AreaDownloadUseCase struct {
	tiles           TileGetter
	defaultTemplate string
	logger          logger.Logger
	tracer          trace.Tracer
}

func NewAreaDownloadUseCase(tiles TileGetter, defaultTemplate string, l logger.Logger) *AreaDownloadUseCase {
	return &AreaDownloadUseCase{
		tiles:           tiles,
		defaultTemplate: defaultTemplate,
		logger:          l,
		tracer:          otel.Tracer(tracerName),
	}
}

// DownloadArea fetches the tiles of req one at a time. Tiles already cached are not fetched
// again and a failed tile does not stop the run. ctx is checked between tiles.
func (uc *AreaDownloadUseCase) DownloadArea(ctx context.Context, req DownloadRequest, onProgress ProgressFunc) DownloadReport {
	if onProgress == nil {
		onProgress = func(float64) {}
	}

	template := req.Template
	if template == "" {
		template = uc.defaultTemplate
	}

	minZoom, maxZoom := tile.ZoomWindow(req.Zoom)
	urls := tile.EnumerateURLs(req.Bounds, minZoom, maxZoom, template)

	report := DownloadReport{
		Total:   len(urls),
		MinZoom: minZoom,
		MaxZoom: maxZoom,
	}

	ctx, span := uc.tracer.Start(ctx, "AreaDownloadUseCase.DownloadArea",
		trace.WithAttributes(
			attribute.Int("download.tiles", report.Total),
			attribute.Int("download.min_zoom", minZoom),
			attribute.Int("download.max_zoom", maxZoom),
		),
	)
	defer span.End()

	center := req.Bounds.Center()
	uc.logger.Info("starting area download",
		"tiles", report.Total,
		"min_zoom", minZoom,
		"max_zoom", maxZoom,
		"center_lat", center.Lat(),
		"center_lng", center.Lon(),
	)

	if len(urls) == 0 {
		onProgress(100)
		return report
	}

	for i, url := range urls {
		if err := ctx.Err(); err != nil {
			report.Cancelled = true
			uc.logger.Info("area download cancelled", "done", i, "total", report.Total)
			break
		}

		t, ok := uc.tiles.GetOrFetch(ctx, url)
		switch {
		case !ok:
			report.Failed++
			metrics.DownloadTiles.WithLabelValues("failed").Inc()
		case t.Source == SourceCache:
			report.Cached++
			metrics.DownloadTiles.WithLabelValues("cached").Inc()
		default:
			report.Fetched++
			metrics.DownloadTiles.WithLabelValues("fetched").Inc()
		}

		onProgress(float64(i+1) / float64(len(urls)) * 100)
	}

	span.SetAttributes(
		attribute.Int("download.cached", report.Cached),
		attribute.Int("download.fetched", report.Fetched),
		attribute.Int("download.failed", report.Failed),
		attribute.Bool("download.cancelled", report.Cancelled),
	)
	uc.logger.Info("area download finished",
		"cached", report.Cached,
		"fetched", report.Fetched,
		"failed", report.Failed,
		"cancelled", report.Cancelled,
	)
	return report
}
