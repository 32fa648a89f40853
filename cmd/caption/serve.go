package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/caption/internal/api"
	"github.com/MikeSquared-Agency/caption/internal/backfill"
	"github.com/MikeSquared-Agency/caption/internal/config"
	"github.com/MikeSquared-Agency/caption/internal/coordinator"
	"github.com/MikeSquared-Agency/caption/internal/hermes"
	"github.com/MikeSquared-Agency/caption/internal/label"
	"github.com/MikeSquared-Agency/caption/internal/notify"
	"github.com/MikeSquared-Agency/caption/internal/store"
)

// queueGroup spreads trigger events across instances so each is handled once.
const queueGroup = "caption"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API, the label pipeline and the backfill sweeper",
	RunE:  runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.Int(config.KeyPort, 0, "HTTP port [env CAPTION_PORT]")
	flags.String(config.KeyNatsURL, "", "NATS server URL; empty runs single-instance [env NATS_URL]")
	flags.String(config.KeyProvider, "", "LLM provider (anthropic|openai|gemini|none) [env CAPTION_LLM_PROVIDER]")
	flags.String(config.KeyModel, "", "LLM model name [env CAPTION_MODEL]")
	for _, key := range []string{config.KeyPort, config.KeyNatsURL, config.KeyProvider, config.KeyModel} {
		cobra.CheckErr(viper.BindPFlag(key, flags.Lookup(key)))
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := setupLogging(cfg.LogLevel)
	logger.Info("caption starting", "port", cfg.Port)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	logger.Info("database connected")

	// Label generator
	llm := newCompleter(cfg, logger)
	gen := label.New(llm, cfg.GeneratorTimeout, logger)

	hub := notify.NewHub(notify.DefaultBuffer, logger)

	// Without NATS the API drives the coordinator directly and notifications stay in-process.
	var (
		bus     coordinator.Publisher = hub
		trigger api.Trigger
		coord   *coordinator.Coordinator
	)
	if cfg.NatsURL != "" {
		hc, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer hc.Close()
		logger.Info("NATS connected", "url", cfg.NatsURL)

		relay := notify.NewRelay(hc, hub, logger)
		if err := relay.Forward(); err != nil {
			return fmt.Errorf("subscribe to label events: %w", err)
		}
		bus = relay

		coord = coordinator.New(db, gen, bus, coordinatorOptions(cfg), logger)
		if err := hc.QueueSubscribe(hermes.SubjectMessageStored, queueGroup, coord.HandleMessageStored); err != nil {
			return fmt.Errorf("subscribe to message events: %w", err)
		}
		// Every instance must see deletions to cancel its own in-flight runs.
		if err := hc.Subscribe(hermes.SubjectSessionDeleted, coord.HandleSessionDeleted); err != nil {
			return fmt.Errorf("subscribe to deletion events: %w", err)
		}
		trigger = api.NewBusTrigger(hc, logger)
	} else {
		logger.Warn("NATS_URL not set, running single-instance")
		coord = coordinator.New(db, gen, bus, coordinatorOptions(cfg), logger)
		trigger = coord
	}
	defer coord.Close()

	srv := api.NewServer(api.Config{
		Port:        cfg.Port,
		APIToken:    cfg.APIToken,
		Placeholder: cfg.PlaceholderLabel,
	}, db, trigger, bus, hub, logger)

	sweeper := backfill.NewRunner(backfill.Config{
		Threshold:   cfg.LabelThreshold,
		Placeholder: cfg.PlaceholderLabel,
		Interval:    cfg.BackfillInterval,
	}, db, coord, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		err := sweeper.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	logger.Info("caption ready", "port", cfg.Port)
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("caption stopped")
	return nil
}
