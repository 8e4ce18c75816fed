// Package cli wires configuration, storage and vendors into the adforge
// commands.
package cli

import (
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/suPer8Hu/adforge/internal/config"
	"github.com/suPer8Hu/adforge/internal/logging"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	envFile string

	cfg    config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "adforge",
	Short:         "AI marketing asset generation backend",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// a missing .env is fine, the environment may already be set
		_ = godotenv.Load(envFile)
		cfg = config.Load()
		logger = logging.New(cfg.AppEnv, cfg.LogLevel)
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
}
