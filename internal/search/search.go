// Package search implements semantic asset search: embed the query, then
// rank the user's assets by vector similarity.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/havenos/haven/internal/agent"
	"github.com/havenos/haven/internal/logging"
	"github.com/havenos/haven/internal/store"
	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

const (
	DefaultThreshold = 0.1
	DefaultCount     = 20
)

// Matcher ranks a user's embedded assets against a query vector.
type Matcher interface {
	MatchAssets(ctx context.Context, userID string, query []float32, threshold float64, count int) ([]store.AssetMatch, error)
}

type Response struct {
	Results  []store.AssetMatch `json:"results"`
	Fallback bool               `json:"fallback,omitempty"`
}

type Service struct {
	embedder  agent.Embedder
	matcher   Matcher
	threshold float64
	count     int
	logger    *slog.Logger
}

type Option func(*Service)

func WithLimits(threshold float64, count int) Option {
	return func(s *Service) {
		if threshold >= 0 {
			s.threshold = threshold
		}
		if count > 0 {
			s.count = count
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(embedder agent.Embedder, matcher Matcher, opts ...Option) *Service {
	s := &Service{
		embedder:  embedder,
		matcher:   matcher,
		threshold: DefaultThreshold,
		count:     DefaultCount,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "search")
	return s
}

// Search embeds query and returns matching assets. A backend without a
// similarity function yields an empty result with Fallback set.
func (s *Service) Search(ctx context.Context, userID, query string) (Response, error) {
	query = strings.TrimSpace(query)
	if userID == "" || query == "" {
		return Response{}, havenerr.Invalid("userId and query are required")
	}
	ctx = logging.WithUserID(ctx, userID)

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return Response{}, fmt.Errorf("embedding query: %w", err)
	}

	results, err := s.matcher.MatchAssets(ctx, userID, vec, s.threshold, s.count)
	if errors.Is(err, store.ErrSimilarityUnavailable) {
		s.logger.WarnContext(ctx, "similarity search unavailable, returning fallback",
			"error", err)
		return Response{Results: []store.AssetMatch{}, Fallback: true}, nil
	}
	if err != nil {
		return Response{}, err
	}

	s.logger.InfoContext(ctx, "search completed",
		"dimensions", len(vec),
		"results", len(results))
	return Response{Results: results}, nil
}
