package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type (
	Config struct {
		HTTP      HTTP      `envPrefix:"HTTP_"`
		Logger    Logger    `envPrefix:"LOGGER_"`
		Telemetry Telemetry `envPrefix:"TELEMETRY_"`
		Store     Store     `envPrefix:"STORE_"`
		Redis     Redis     `envPrefix:"REDIS_"`
		Cache     Cache     `envPrefix:"CACHE_"`
		Upstream  Upstream  `envPrefix:"UPSTREAM_"`
		Download  Download  `envPrefix:"DOWNLOAD_"`
	}

	HTTP struct {
		Server  Server        `envPrefix:"SERVER_"`
		Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	}

	Server struct {
		Port         string        `env:"PORT,required"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
		IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	}

	Logger struct {
		Level  string `env:"LEVEL,required"`
		Format string `env:"FORMAT" envDefault:"console"`
	}

	Telemetry struct {
		Enabled        bool   `env:"ENABLED" envDefault:"false"`
		ServiceName    string `env:"SERVICE_NAME" envDefault:"guide-helper-tilecache"`
		ServiceVersion string `env:"SERVICE_VERSION" envDefault:"1.0.0"`
		Environment    string `env:"ENVIRONMENT" envDefault:"production"`
		OTLPEndpoint   string `env:"OTLP_ENDPOINT" envDefault:"otel-collector.observability.svc.cluster.local:4317"`
	}

	// Store selects the persistent backend holding tile payloads.
	Store struct {
		Type          string `env:"TYPE" envDefault:"sqlite"`
		SQLitePath    string `env:"SQLITE_PATH" envDefault:"file:tiles.db?_busy_timeout=5000&_journal_mode=WAL"`
		FilesystemDir string `env:"FILESYSTEM_DIR" envDefault:"./tiles"`
	}

	Redis struct {
		Addr     string `env:"ADDR" envDefault:"localhost:6379"`
		Password string `env:"PASSWORD" envDefault:""`
		DB       int    `env:"DB" envDefault:"0"`
		Prefix   string `env:"PREFIX" envDefault:"tilecache:"`
	}

	Cache struct {
		QuotaBytes int64   `env:"QUOTA_BYTES" envDefault:"104857600"`
		PruneRatio float64 `env:"PRUNE_RATIO" envDefault:"0.8"`
	}

	Upstream struct {
		TileURLTemplate   string        `env:"TILE_URL_TEMPLATE" envDefault:"https://tile.openstreetmap.org/{z}/{x}/{y}.png"`
		UserAgent         string        `env:"USER_AGENT" envDefault:"GuideHelper/1.0 (https://github.com/jaennil/guide_helper)"`
		Referer           string        `env:"REFERER" envDefault:"https://guidehelper.ru.tuna.am"`
		Timeout           time.Duration `env:"TIMEOUT" envDefault:"30s"`
		RequestsPerSecond float64       `env:"REQUESTS_PER_SECOND" envDefault:"0"`
		Burst             int           `env:"BURST" envDefault:"1"`
		MaxTileBytes      int64         `env:"MAX_TILE_BYTES" envDefault:"5242880"`
		// AllowedTemplateHosts lists extra hosts download requests may fetch from, as written
		// in the template (e.g. "{s}.tile.example.org"). The default template host is always allowed.
		AllowedTemplateHosts []string `env:"ALLOWED_TEMPLATE_HOSTS" envSeparator:","`
	}

	Download struct {
		MaxConcurrentJobs int `env:"MAX_CONCURRENT_JOBS" envDefault:"1"`
		JobHistory        int `env:"JOB_HISTORY" envDefault:"32"`
	}
)

func New() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Printf("NOTICE: .env file not found or cannot be loaded: %v\n", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
