package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/caption/internal/coordinator"
)

// Config holds the sweeper configuration.
type Config struct {
	Threshold   int
	Placeholder string
	BatchSize   int           // sessions per sweep (default 100)
	Concurrency int           // coordinator runs in parallel (default 4)
	Interval    time.Duration // pause between sweeps in Run
	DryRun      bool          // list pending sessions without running the coordinator
}

// Pending lists sessions that qualify for a label but have not been attempted.
type Pending interface {
	ListPendingSessions(ctx context.Context, threshold int, placeholder string, limit int) ([]string, error)
}

type Coordinator interface {
	MaybeGenerateAndPersist(ctx context.Context, sessionID string) coordinator.Outcome
}

// Report summarises one sweep.
type Report struct {
	Pending   []string
	Published int
	Skipped   int
	Failed    int
	Duration  time.Duration
}

// Runner re-runs the coordinator for sessions whose trigger event never arrived.
type Runner struct {
	cfg    Config
	store  Pending
	coord  Coordinator
	logger *slog.Logger
}

func NewRunner(cfg Config, s Pending, coord Coordinator, logger *slog.Logger) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Runner{cfg: cfg, store: s, coord: coord, logger: logger}
}

// Sweep processes one batch of pending sessions.
func (r *Runner) Sweep(ctx context.Context) (Report, error) {
	start := time.Now()

	ids, err := r.store.ListPendingSessions(ctx, r.cfg.Threshold, r.cfg.Placeholder, r.cfg.BatchSize)
	if err != nil {
		return Report{}, fmt.Errorf("list pending sessions: %w", err)
	}
	report := Report{Pending: ids}
	if len(ids) == 0 || r.cfg.DryRun {
		report.Duration = time.Since(start)
		return report, nil
	}

	r.logger.Info("backfill sweep starting", "pending", len(ids))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			out := r.coord.MaybeGenerateAndPersist(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			switch out.Reason {
			case coordinator.ReasonPublished:
				report.Published++
			case coordinator.ReasonSkipped:
				report.Skipped++
			default:
				report.Failed++
			}
			return nil
		})
	}
	err = g.Wait()
	report.Duration = time.Since(start)

	r.logger.Info("backfill sweep complete",
		"pending", len(ids),
		"published", report.Published,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	return report, err
}

// Run sweeps immediately and then every Interval until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := r.Sweep(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("backfill sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
