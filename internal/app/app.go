package app

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/langduel/vocab-arena/internal/arena"
	"github.com/langduel/vocab-arena/internal/config"
	"github.com/langduel/vocab-arena/internal/db/repository"
	"github.com/langduel/vocab-arena/internal/logging"
	"github.com/langduel/vocab-arena/internal/question"
	"github.com/langduel/vocab-arena/internal/server"
	"github.com/langduel/vocab-arena/internal/vocab"
	"github.com/langduel/vocab-arena/pkg/http/ws"
)

// Application aggregates shared infrastructure (stores, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	http  *http.Server
}

// New bootstraps config, logger, the match store and the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Msg("starting application bootstrap")

	catalog, err := vocab.LoadFile(cfg.Vocab.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load vocabulary catalog: %w", err)
	}
	logger.Info().Int("entries", catalog.Len()).Str("path", cfg.Vocab.CatalogPath).Msg("vocabulary catalog loaded")

	var (
		store       arena.Store
		redisClient *redis.Client
	)
	switch cfg.Store.Backend {
	case "redis":
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		store = arena.NewRedisStore(redisClient, logger)
	default:
		store = arena.NewMemoryStore(logger)
	}
	logger.Info().Str("backend", cfg.Store.Backend).Msg("match store ready")

	// Result persistence is optional; duels run the same without it.
	var (
		pool    *pgxpool.Pool
		results arena.ResultSink
	)
	if cfg.Postgres.Host != "" {
		connString := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=10",
			cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Database, cfg.Postgres.SSLMode)
		pool, err = pgxpool.New(ctx, connString)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		results = repository.NewResultRepository(pool, logger)
		logger.Info().Str("host", cfg.Postgres.Host).Msg("duel result recording enabled")
	} else {
		logger.Warn().Msg("PG_HOST not set; duel results will not be persisted")
	}

	generator := question.NewGenerator(rand.New(rand.NewSource(time.Now().UnixNano())))
	arenaSvc := arena.NewService(store, catalog, generator, logger)
	engine := arena.NewEngine(store, logger)
	hub := ws.NewHub(logger)
	arenaHandler := arena.NewHandler(arenaSvc, engine, store, hub, results, logger)

	apiServer := server.NewHTTPServer(cfg, arenaHandler.HandleWebSocket)

	return &Application{
		cfg:    cfg,
		logger: logger,
		pool:   pool,
		redis:  redisClient,
		http:   apiServer,
	}, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	if a.pool != nil {
		a.pool.Close()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error().Err(err).Msg("redis shutdown error")
		}
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}
