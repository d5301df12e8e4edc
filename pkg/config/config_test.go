package config

import (
	"os"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	t.Setenv("HTTP_SERVER_PORT", "8080")
	t.Setenv("LOGGER_LEVEL", "debug")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTP.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %q", cfg.HTTP.Server.Port)
	}
	if cfg.Cache.QuotaBytes != 100*1024*1024 {
		t.Errorf("expected 100 MiB quota, got %d", cfg.Cache.QuotaBytes)
	}
	if cfg.Cache.PruneRatio != 0.8 {
		t.Errorf("expected prune ratio 0.8, got %v", cfg.Cache.PruneRatio)
	}
	if cfg.Store.Type != "sqlite" {
		t.Errorf("expected sqlite store, got %q", cfg.Store.Type)
	}
	if cfg.Upstream.Timeout != 30*time.Second {
		t.Errorf("expected 30s upstream timeout, got %v", cfg.Upstream.Timeout)
	}
	if cfg.Logger.Format != "console" {
		t.Errorf("expected console log format, got %q", cfg.Logger.Format)
	}
	if cfg.Download.MaxConcurrentJobs != 1 {
		t.Errorf("expected 1 concurrent job, got %d", cfg.Download.MaxConcurrentJobs)
	}
}

func TestNew_Overrides(t *testing.T) {
	t.Setenv("HTTP_SERVER_PORT", "9000")
	t.Setenv("LOGGER_LEVEL", "info")
	t.Setenv("STORE_TYPE", "redis")
	t.Setenv("CACHE_QUOTA_BYTES", "1000")
	t.Setenv("UPSTREAM_REQUESTS_PER_SECOND", "2.5")
	t.Setenv("UPSTREAM_TILE_URL_TEMPLATE", "https://{s}.tile.example.org/{z}/{x}/{y}.png")
	t.Setenv("UPSTREAM_ALLOWED_TEMPLATE_HOSTS", "tiles.example.net,{s}.tile.example.com")
	t.Setenv("LOGGER_FORMAT", "json")

	cfg, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Store.Type != "redis" {
		t.Errorf("expected redis store, got %q", cfg.Store.Type)
	}
	if cfg.Cache.QuotaBytes != 1000 {
		t.Errorf("expected quota 1000, got %d", cfg.Cache.QuotaBytes)
	}
	if cfg.Upstream.RequestsPerSecond != 2.5 {
		t.Errorf("expected 2.5 rps, got %v", cfg.Upstream.RequestsPerSecond)
	}
	if cfg.Upstream.TileURLTemplate != "https://{s}.tile.example.org/{z}/{x}/{y}.png" {
		t.Errorf("unexpected template %q", cfg.Upstream.TileURLTemplate)
	}
	hosts := cfg.Upstream.AllowedTemplateHosts
	if len(hosts) != 2 || hosts[0] != "tiles.example.net" || hosts[1] != "{s}.tile.example.com" {
		t.Errorf("unexpected allowed hosts %v", hosts)
	}
	if cfg.Logger.Format != "json" {
		t.Errorf("expected json log format, got %q", cfg.Logger.Format)
	}
}

func TestNew_MissingRequired(t *testing.T) {
	// t.Setenv restores the previous values once the test ends.
	t.Setenv("HTTP_SERVER_PORT", "")
	t.Setenv("LOGGER_LEVEL", "")
	os.Unsetenv("HTTP_SERVER_PORT")
	os.Unsetenv("LOGGER_LEVEL")

	if _, err := New(); err == nil {
		t.Fatal("expected error for missing required variables")
	}
}
