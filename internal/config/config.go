package config

import (
	"context"
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// App holds core runtime configuration shared across services.
type App struct {
	Name                    string        `env:"APP_NAME" envDefault:"vocab-arena"`
	Env                     string        `env:"APP_ENV" envDefault:"development"`
	HTTPAddr                string        `env:"HTTP_ADDR" envDefault:"0.0.0.0:8080"`
	GracefulShutdownTimeout time.Duration `env:"GRACEFUL_SHUTDOWN_SECONDS" envDefault:"20s"`

	Store    Store
	Redis    Redis
	Postgres Postgres
	Vocab    Vocab
}

// Store selects the match store backend.
type Store struct {
	// Backend is "memory" or "redis".
	Backend string `env:"MATCH_STORE_BACKEND" envDefault:"memory"`
}

// Redis holds match-store connection configuration (used when Backend=redis).
type Redis struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

// Postgres captures connection info for the duel-result record store.
// Leave Host empty to disable result persistence.
type Postgres struct {
	Host     string `env:"PG_HOST"`
	Port     int    `env:"PG_PORT" envDefault:"5432"`
	User     string `env:"PG_USER"`
	Password string `env:"PG_PASSWORD"`
	Database string `env:"PG_DATABASE"`
	SSLMode  string `env:"PG_SSL_MODE" envDefault:"disable"`
}

// Vocab points at the vocabulary catalog supplied by the surrounding system.
type Vocab struct {
	CatalogPath string `env:"VOCAB_CATALOG_PATH" envDefault:"configs/vocabulary.json"`
}

// Load parses environment variables into App config.
func Load(ctx context.Context) (*App, error) {
	cfg := &App{}
	if err := env.ParseWithOptions(cfg, env.Options{}); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Store.Backend != "memory" && cfg.Store.Backend != "redis" {
		return nil, fmt.Errorf("unknown match store backend %q", cfg.Store.Backend)
	}
	return cfg, nil
}
