// Package lifecycle moves staging items from fresh to aging to archived.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/havenos/haven/internal/store"
	havenerr "github.com/havenos/haven/pkg/haven/errors"
)

const (
	DefaultAgingDays   = 7
	DefaultArchiveDays = 30
)

// StagingStore is the store operation a sweep needs.
type StagingStore interface {
	SweepStaging(ctx context.Context, c store.SweepCutoffs) (store.SweepResult, error)
}

type Sweeper struct {
	store       StagingStore
	agingDays   int
	archiveDays int
	now         func() time.Time
	logger      *slog.Logger
}

func NewSweeper(st StagingStore, agingDays, archiveDays int, logger *slog.Logger) (*Sweeper, error) {
	if agingDays <= 0 || archiveDays <= agingDays {
		return nil, havenerr.Invalid("need 0 < aging days (%d) < archive days (%d)", agingDays, archiveDays)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:       st,
		agingDays:   agingDays,
		archiveDays: archiveDays,
		now:         time.Now,
		logger:      logger.With("component", "lifecycle"),
	}, nil
}

// Cutoffs returns the aging and archive boundaries relative to now.
func (s *Sweeper) Cutoffs() store.SweepCutoffs {
	now := s.now().UTC()
	return store.SweepCutoffs{
		Aging:   now.AddDate(0, 0, -s.agingDays),
		Archive: now.AddDate(0, 0, -s.archiveDays),
	}
}

// Run performs one sweep.
func (s *Sweeper) Run(ctx context.Context) (store.SweepResult, error) {
	start := time.Now()
	res, err := s.store.SweepStaging(ctx, s.Cutoffs())
	if err != nil {
		s.logger.ErrorContext(ctx, "lifecycle sweep failed",
			"error", err)
		return store.SweepResult{}, err
	}
	s.logger.InfoContext(ctx, "lifecycle sweep completed",
		"aged", res.Aged,
		"archived", res.Archived,
		"duration", time.Since(start))
	return res, nil
}
