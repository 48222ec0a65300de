package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"psadtagent/internal/config"
	"psadtagent/internal/logging"
)

var (
	// Global flags
	logLevel string
	logJSON  bool
	provider string
	model    string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "psadt-agent",
	Short: "Generate and validate PSADT deployment scripts",
	Long: `psadt-agent turns installer metadata into PowerShell App Deployment
Toolkit scripts. It retrieves PSADT documentation, asks an LLM for a
structured script, and lints the result until it passes.

Configuration is read from .env and the environment; flags override it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		applyFlags(cmd, cfg)
		logger, err = logging.New(cfg.LogLevel, cfg.LogJSON)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// applyFlags lets explicitly set persistent flags win over the environment.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}
	if flags.Changed("log-json") {
		c.LogJSON = logJSON
	}
	if flags.Changed("provider") {
		c.UseProvider(provider)
	}
	if flags.Changed("model") {
		c.LLM.Model = model
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit JSON logs")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "LLM provider (openai, groq, anthropic, gemini, fake)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "LLM model name")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(switchesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// commandContext is cmd.Context, or Background when the command was not
// started through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
