package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/havenos/haven/internal/agent"
	"github.com/havenos/haven/internal/backfill"
	"github.com/havenos/haven/internal/canvas"
	"github.com/havenos/haven/internal/capability"
	"github.com/havenos/haven/internal/config"
	"github.com/havenos/haven/internal/lifecycle"
	"github.com/havenos/haven/internal/opengraph"
	"github.com/havenos/haven/internal/search"
	"github.com/havenos/haven/internal/server"
	"github.com/havenos/haven/internal/storage"
	"github.com/havenos/haven/internal/store"
	"github.com/havenos/haven/internal/store/pgvector"
	"github.com/havenos/haven/internal/websearch"
)

const embeddingCacheTTL = 24 * time.Hour

// app holds every wired service. Commands build one and Close it on exit.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	client   *agent.Client
	invoker  *capability.Invoker
	search   *search.Service
	sweeper  *lifecycle.Sweeper
	backfill *backfill.Runner
	canvases *canvas.Manager
	embedder agent.Embedder
	closers  []func()
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	if err := a.wire(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.Open(ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	a.store = st
	a.closers = append(a.closers, func() { st.Close() })

	if !cfg.HasAPIKey() {
		a.logger.Warn("no model API key configured; agent, search and embedding routes will answer 503")
	}
	a.client = agent.NewClient(cfg.AI.APIKey,
		agent.WithAPIConfig(cfg.AI.Provider, cfg.AI.BaseURL, cfg.AI.Model, cfg.AI.EmbeddingModel),
		agent.WithTimeout(time.Duration(cfg.AI.Timeout)*time.Second),
		agent.WithRetry(cfg.AI.MaxRetries),
		agent.WithRateLimit(cfg.AI.RateLimit.RequestsPerMinute, cfg.AI.RateLimit.BurstSize),
		agent.WithLogger(a.logger),
	)

	kv, err := a.openStorage(ctx)
	if err != nil {
		return err
	}
	a.embedder = agent.WithEmbeddingCache(a.client, cfg.AI.EmbeddingModel, agent.NewEmbeddingCache(kv, embeddingCacheTTL))

	var matcher search.Matcher = st
	if cfg.Database.VectorBackend == "postgres" {
		pg, closePool, err := pgvector.Connect(ctx, cfg.Database.PostgresURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, closePool)
		matcher = pg
	}

	a.invoker = capability.NewInvoker(agent.New(a.client, nil).WithLogger(a.logger),
		capability.WithVision(a.client),
		capability.WithAssets(st),
		capability.WithProfiles(st),
		capability.WithWebSearch(websearch.New(cfg.WebSearch.APIKey, cfg.WebSearch.BaseURL, a.logger)),
		capability.WithLogger(a.logger),
	)

	a.search = search.New(a.embedder, matcher,
		search.WithLimits(cfg.Search.Threshold, cfg.Search.Count),
		search.WithLogger(a.logger),
	)

	if a.sweeper, err = lifecycle.NewSweeper(st, cfg.Lifecycle.AgingDays, cfg.Lifecycle.ArchiveDays, a.logger); err != nil {
		return err
	}

	a.backfill = backfill.New(st, a.client,
		backfill.WithBatchSize(cfg.Backfill.BatchSize),
		backfill.WithConcurrency(cfg.Backfill.Concurrency),
		backfill.WithItemTimeout(time.Duration(cfg.AI.Timeout)*time.Second),
		backfill.WithLogger(a.logger),
	)

	a.canvases = canvas.NewManager(kv, canvas.AnalyzerFunc(a.invoker.AnalyzeImage), a.logger)
	return nil
}

// openStorage returns the key/value backend shared by canvases and the
// embedding cache.
func (a *app) openStorage(ctx context.Context) (storage.Storage, error) {
	switch a.cfg.Canvas.Backend {
	case "memory":
		return storage.NewMemory(), nil
	case "redis":
		r, err := storage.DialRedis(ctx, a.cfg.Canvas.RedisAddr, "haven:")
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { r.Close() })
		return r, nil
	default:
		return storage.NewFileSystem(a.cfg.Canvas.Dir), nil
	}
}

func (a *app) server() *server.Server {
	return server.New(server.Deps{
		Invoker:   a.invoker,
		Store:     a.store,
		Search:    a.search,
		Sweeper:   a.sweeper,
		Backfill:  a.backfill,
		OpenGraph: opengraph.New(opengraph.WithLogger(a.logger)),
		Embedder:  a.embedder,
		Canvases:  a.canvases,
		Logger:    a.logger,
	})
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
