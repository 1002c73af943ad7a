// Package backfill embeds assets that were stored without an embedding.
package backfill

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/havenos/haven/internal/agent"
	"github.com/havenos/haven/internal/store"
)

const (
	DefaultBatchSize = 50
	defaultTimeout   = 60 * time.Second
)

// AssetStore is the store surface the backfill needs.
type AssetStore interface {
	AssetsMissingEmbedding(ctx context.Context, limit int) ([]store.Asset, error)
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
	RecordEmbeddingFailure(ctx context.Context, id string) error
}

// Result reports one backfill run.
type Result struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failedIds,omitempty"`
}

type Runner struct {
	store       AssetStore
	embedder    agent.Embedder
	batchSize   int
	concurrency int
	timeout     time.Duration
	logger      *slog.Logger
}

type Option func(*Runner)

// WithBatchSize caps how many assets one run picks up.
func WithBatchSize(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

// WithConcurrency sets how many assets are embedded at once. The default of
// 1 keeps runs strictly sequential.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithItemTimeout bounds each embed-and-update.
func WithItemTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

func New(st AssetStore, embedder agent.Embedder, opts ...Option) *Runner {
	r := &Runner{
		store:       st,
		embedder:    embedder,
		batchSize:   DefaultBatchSize,
		concurrency: 1,
		timeout:     defaultTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "backfill")
	return r
}

// Run embeds one batch. A failing asset is counted, marked so later runs
// pick it after untried assets, and skipped; only a failure to list assets
// or cancellation of ctx aborts the run.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	assets, err := r.store.AssetsMissingEmbedding(ctx, r.batchSize)
	if err != nil {
		return Result{}, err
	}
	if len(assets) == 0 {
		r.logger.DebugContext(ctx, "no assets need embeddings")
		return Result{}, nil
	}

	r.logger.InfoContext(ctx, "starting embedding backfill",
		"asset_count", len(assets),
		"concurrency", r.concurrency)

	var processed atomic.Int64
	failed := make([]bool, len(assets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, a := range assets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := r.embedOne(gctx, a); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.ErrorContext(gctx, "failed to embed asset",
					"asset_id", a.ID,
					"error", err)
				failed[i] = true
				if err := r.store.RecordEmbeddingFailure(gctx, a.ID); err != nil {
					r.logger.WarnContext(gctx, "failed to record embedding failure",
						"asset_id", a.ID,
						"error", err)
				}
				return nil
			}
			processed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	res := Result{Processed: int(processed.Load())}
	for i, f := range failed {
		if f {
			res.Failed++
			res.FailedIDs = append(res.FailedIDs, assets[i].ID)
		}
	}

	r.logger.InfoContext(ctx, "embedding backfill completed",
		"processed", res.Processed,
		"failed", res.Failed)
	return res, nil
}

func (r *Runner) embedOne(ctx context.Context, a store.Asset) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	vec, err := r.embedder.Embed(ctx, EmbeddingText(a))
	if err != nil {
		return err
	}
	return r.store.UpdateEmbedding(ctx, a.ID, vec)
}

// EmbeddingText is the text embedded for an asset: its name followed by
// its content.
func EmbeddingText(a store.Asset) string {
	return strings.TrimSpace(a.Name + "\n" + a.Content)
}
