package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/caption/internal/backfill"
	"github.com/MikeSquared-Agency/caption/internal/coordinator"
	"github.com/MikeSquared-Agency/caption/internal/label"
	"github.com/MikeSquared-Agency/caption/internal/notify"
	"github.com/MikeSquared-Agency/caption/internal/store"
)

var (
	backfillDryRun      bool
	backfillBatchSize   int
	backfillConcurrency int
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Label sessions whose trigger event was lost",
	Long: `Backfill runs one sweep over sessions that reached the label threshold but were
never attempted, and runs the label pipeline for each.`,
	RunE: runBackfill,
}

func init() {
	flags := backfillCmd.Flags()
	flags.BoolVar(&backfillDryRun, "dry-run", false, "List pending sessions without labelling them")
	flags.IntVar(&backfillBatchSize, "batch-size", 100, "Maximum sessions per sweep")
	flags.IntVar(&backfillConcurrency, "concurrency", 4, "Sessions labelled in parallel")
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	logger := setupConsoleLogging(cfg.LogLevel)
	ctx := cmd.Context()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	llm := newCompleter(cfg, logger)
	hub := notify.NewHub(notify.DefaultBuffer, logger)
	coord := coordinator.New(db, label.New(llm, cfg.GeneratorTimeout, logger), hub, coordinatorOptions(cfg), logger)
	defer coord.Close()

	runner := backfill.NewRunner(backfill.Config{
		Threshold:   cfg.LabelThreshold,
		Placeholder: cfg.PlaceholderLabel,
		BatchSize:   backfillBatchSize,
		Concurrency: backfillConcurrency,
		DryRun:      backfillDryRun,
	}, db, coord, logger)

	report, err := runner.Sweep(ctx)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if backfillDryRun {
		for _, id := range report.Pending {
			fmt.Fprintln(w, id)
		}
		fmt.Fprintf(w, "%d pending\n", len(report.Pending))
		return nil
	}
	fmt.Fprintf(w, "pending=%d published=%d skipped=%d failed=%d duration=%s\n",
		len(report.Pending), report.Published, report.Skipped, report.Failed, report.Duration.Round(time.Millisecond))
	return nil
}
