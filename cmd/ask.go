package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orbitpay/orbit/internal/app"
	"github.com/orbitpay/orbit/internal/rag"
)

var askSessionID string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askSessionID, "session", "s", "",
		"continue an existing session instead of starting a new one")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireAPIKey(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	question := strings.Join(args, " ")
	answer, err := a.Assistant.Ask(ctx, askSessionID, question)
	if err != nil {
		return err
	}

	fmt.Println(answer.Text)
	printCitations(answer.Citations)
	return nil
}

// printCitations lists the sources backing an answer.
func printCitations(citations []rag.Citation) {
	if len(citations) == 0 {
		return
	}
	fmt.Println()
	fmt.Println("Sources:")
	for _, c := range citations {
		label := c.Title
		if label == "" {
			label = c.SourceURI
		}
		line := fmt.Sprintf("  %s %s", c.Ref, label)
		if c.Title != "" && c.SourceURI != "" {
			line += " (" + c.SourceURI + ")"
		}
		if c.Origin == rag.OriginWebSearch {
			line += " [web]"
		}
		fmt.Println(line)
	}
}
