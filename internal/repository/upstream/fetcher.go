package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jaennil/guide_helper/backend/tilecache/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/metrics"
	"golang.org/x/time/rate"
)

var (
	ErrUnexpectedStatus = errors.New("upstream returned unexpected status")
	ErrTileTooLarge     = errors.New("upstream tile exceeds size limit")
)

// HTTPFetcher downloads tile payloads from a remote tile server.
type HTTPFetcher struct {
	httpClient   *http.Client
	userAgent    string
	referer      string
	maxTileBytes int64
	limiter      *rate.Limiter
	logger       logger.Logger
}

func NewHTTPFetcher(cfg config.Upstream, l logger.Logger) *HTTPFetcher {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &HTTPFetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent:    cfg.UserAgent,
		referer:      cfg.Referer,
		maxTileBytes: cfg.MaxTileBytes,
		limiter:      rate.NewLimiter(limit, burst),
		logger:       l,
	}
}

// Fetch returns the tile at url. Anything but a complete 200 response is an error.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for upstream rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// Set required headers for OpenStreetMap tile usage policy
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if f.referer != "" {
		req.Header.Set("Referer", f.referer)
	}

	metrics.UpstreamRequests.Inc()
	start := time.Now()
	resp, err := f.httpClient.Do(req)
	metrics.UpstreamLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tile from upstream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if f.maxTileBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxTileBytes+1)
	}

	tileData, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile data: %w", err)
	}
	if f.maxTileBytes > 0 && int64(len(tileData)) > f.maxTileBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTileTooLarge, f.maxTileBytes)
	}

	f.logger.Debug("fetched tile from upstream", "url", url, "size", len(tileData), "duration", time.Since(start))
	return tileData, nil
}
