package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	v1 "github.com/jaennil/guide_helper/backend/tilecache/internal/infrastructure/http/v1"
	"github.com/jaennil/guide_helper/backend/tilecache/internal/infrastructure/http/v1/handler"
	"github.com/jaennil/guide_helper/backend/tilecache/internal/repository/cache"
	"github.com/jaennil/guide_helper/backend/tilecache/internal/repository/upstream"
	"github.com/jaennil/guide_helper/backend/tilecache/internal/usecase"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/config"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/http_server"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/logger"
	"github.com/jaennil/guide_helper/backend/tilecache/pkg/telemetry"
)

const shutdownTimeout = 30 * time.Second

func Run(cfg *config.Config) {
	l := logger.NewZapLogger(cfg.Logger)
	defer l.Sync()

	l.Info("starting tile cache service", "store", cfg.Store.Type, "port", cfg.HTTP.Server.Port)

	ctx := logger.WithLogger(context.Background(), l)

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.InitTracer(telemetry.Config{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: cfg.Telemetry.ServiceVersion,
			Environment:    cfg.Telemetry.Environment,
			OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		}, l)
		if err != nil {
			l.Fatal("failed to initialize telemetry", "error", err)
		}
		defer func() {
			if err := shutdownTelemetry(context.Background()); err != nil {
				l.Error("failed to shutdown telemetry", "error", err)
			}
		}()
		l.Info("telemetry initialized", "service", cfg.Telemetry.ServiceName)
	}

	store, err := cache.NewStore(cfg.Store, cfg.Redis, l)
	if err != nil {
		l.Fatal("failed to create tile store", "error", err)
	}
	// A store that cannot open now is retried on first use; the cache degrades to
	// pass-through until then.
	if err := store.Open(ctx); err != nil {
		l.Error("failed to open tile store", "type", cfg.Store.Type, "error", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Error("failed to close tile store", "error", err)
		}
	}()

	fetcher := upstream.NewHTTPFetcher(cfg.Upstream, l)
	tileCacheUseCase := usecase.NewTileCacheUseCase(store, fetcher, cfg.Cache, l)
	areaDownloadUseCase := usecase.NewAreaDownloadUseCase(tileCacheUseCase, cfg.Upstream.TileURLTemplate, l)
	downloadJobs := usecase.NewDownloadJobs(areaDownloadUseCase, cfg.Download, l)

	h := handler.NewHandler(validator.New(), tileCacheUseCase, downloadJobs, cfg.Upstream.TileURLTemplate, cfg.Upstream.AllowedTemplateHosts)
	router := v1.NewRouter(h, l, cfg.Telemetry.Enabled)

	httpServer := http_server.NewServer(ctx, cfg.HTTP.Server, router)

	go func() {
		l.Info("starting http server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal("http server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	l.Info("received shutdown signal", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Error("http server shutdown failed", "error", err)
	}

	if err := downloadJobs.Shutdown(shutdownCtx); err != nil {
		l.Warn("timeout waiting for download jobs to stop", "error", err)
	}

	l.Info("application shutdown completed")
}
