package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/orbitpay/orbit/internal/app"
	"github.com/orbitpay/orbit/internal/assistant"
)

var chatSessionID string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	RunE:  runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatSessionID, "session", "s", "",
		"resume an existing session")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
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

	fmt.Println("Orbit support assistant. Type your question, or 'exit' to quit.")
	fmt.Println()

	sessionID := chatSessionID
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			// EOF (Ctrl+D)
			fmt.Println()
			break
		}
		if ctx.Err() != nil {
			break
		}

		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "exit" || question == "quit" {
			break
		}

		answer, err := a.Assistant.Ask(ctx, sessionID, question)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			if errors.Is(err, assistant.ErrGenerationUnavailable) {
				fmt.Fprintln(os.Stderr, "The answer service is temporarily unavailable, try again shortly.")
				continue
			}
			return err
		}
		// Carry the session forward so follow-up questions keep context.
		sessionID = answer.SessionID

		fmt.Println()
		fmt.Println(answer.Text)
		printCitations(answer.Citations)
		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	if sessionID != "" {
		fmt.Printf("Session: %s (resume with orbit chat --session %s)\n", sessionID, sessionID)
	}
	return nil
}
