// Package cmd implements the orbit command line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/orbitpay/orbit/internal/config"
	"github.com/orbitpay/orbit/internal/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "orbit",
	Short: "Orbit support assistant",
	Long: `Orbit answers questions about the Orbit payment platform using the
ingested documentation as its knowledge base, with optional web search
fallback for questions the documentation does not cover.

Run without arguments to start an interactive chat.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// loadConfig loads and validates the configuration and builds the
// logger. Shared by every command that touches the backend.
func loadConfig() (*config.Config, log.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level})
	slog.SetDefault(logger)

	return cfg, logger, nil
}

// requireAPIKey fails early with a usable hint when the Gemini API key
// is missing, instead of surfacing a provider error mid-request.
func requireAPIKey() error {
	if os.Getenv("GEMINI_API_KEY") != "" || os.Getenv("GOOGLE_API_KEY") != "" {
		return nil
	}
	fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY environment variable not set")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Please run:")
	fmt.Fprintln(os.Stderr, "  export GEMINI_API_KEY=your-api-key")
	return fmt.Errorf("GEMINI_API_KEY not set")
}
