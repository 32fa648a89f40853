package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MikeSquared-Agency/caption/internal/config"
)

var (
	envFile string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "caption",
	Short: "Caption - session label derivation and propagation",
	Long: `Caption names conversations. Once a session has enough messages it derives a short label,
stores it, verifies the write and tells every connected observer.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if err := config.LoadDotEnv(envFile); err != nil {
			return err
		}
		cfg = config.Load()
		cfg.ApplyFlags(viper.GetViper())
		return cfg.Validate()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", ".env", "Load environment variables from this file if it exists")
	flags.String(config.KeyLogLevel, "", "Log level (debug|info|warn|error) [env LOG_LEVEL]")
	flags.String(config.KeyDatabaseURL, "", "postgres://… or sqlite://path [env DATABASE_URL]")
	flags.String(config.KeyAPIURL, "", "Caption API base URL for client commands [env CAPTION_API_URL]")
	flags.String(config.KeyAPIToken, "", "Bearer token for the API [env CAPTION_API_TOKEN]")

	for _, key := range []string{config.KeyLogLevel, config.KeyDatabaseURL, config.KeyAPIURL, config.KeyAPIToken} {
		if err := viper.BindPFlag(key, flags.Lookup(key)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", key, err)
			os.Exit(1)
		}
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(labelCmd)
	rootCmd.AddCommand(backfillCmd)
}
