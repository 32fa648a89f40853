package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/caption/internal/reconcile"
)

var watchOwner string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow an owner's session labels as they converge",
	Long: `Watch keeps a live view of an owner's session labels. It listens on the live
websocket and re-lists sessions on every event, every reconcile interval, and after
every reconnect. Send SIGUSR1 to pause polling and SIGUSR2 to resume.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchOwner, "owner", "", "Owner id to watch (required)")
	cobra.CheckErr(watchCmd.MarkFlagRequired("owner"))
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if _, err := uuid.Parse(watchOwner); err != nil {
		return fmt.Errorf("--owner must be a uuid: %w", err)
	}
	logger := setupConsoleLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := reconcile.New(reconcile.NewHTTPLister(cfg.APIURL, cfg.APIToken), watchOwner, cfg.ReconcileInterval, logger)
	client.OnChange(func(sessionID, old, new string) {
		if old == "" {
			logger.Info("session", "session_id", sessionID, "label", new)
			return
		}
		logger.Info("label changed", "session_id", sessionID, "old", old, "new", new)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return client.Run(gctx) })
	g.Go(func() error {
		return client.Listen(gctx, reconcile.LiveURL(cfg.APIURL, watchOwner), cfg.APIToken)
	})
	g.Go(func() error {
		pauseResume(gctx, client)
		return nil
	})

	logger.Info("watching", "owner_id", watchOwner, "api", cfg.APIURL, "interval", cfg.ReconcileInterval)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
