package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/caption/internal/coordinator"
	"github.com/MikeSquared-Agency/caption/internal/label"
	"github.com/MikeSquared-Agency/caption/internal/notify"
	"github.com/MikeSquared-Agency/caption/internal/store"
)

var labelCmd = &cobra.Command{
	Use:   "label <session-id>",
	Short: "Run the label pipeline once for a session",
	Long: `Label runs generate, write, verify for one session against the configured store.
Only eligible sessions are labelled; the outcome explains what happened. No live
observers are notified, clients pick the label up on their next list.`,
	Args: cobra.ExactArgs(1),
	RunE: runLabel,
}

func init() {
	labelCmd.Flags().String("provider", "", "LLM provider (anthropic|openai|gemini|none) [env CAPTION_LLM_PROVIDER]")
}

func runLabel(cmd *cobra.Command, args []string) error {
	sessionID := args[0]
	if _, err := uuid.Parse(sessionID); err != nil {
		return fmt.Errorf("session id must be a uuid: %w", err)
	}
	if p, _ := cmd.Flags().GetString("provider"); p != "" {
		cfg.LLMProvider = p
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
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

	out := coord.MaybeGenerateAndPersist(ctx, sessionID)
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", sessionID, out.Reason, out.Label)
	if !out.Published() && out.Reason != coordinator.ReasonSkipped {
		return fmt.Errorf("label not published: %s", out.Reason)
	}
	return nil
}
