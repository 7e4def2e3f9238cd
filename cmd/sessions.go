package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/orbitpay/orbit/internal/app"
	"github.com/orbitpay/orbit/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage conversation sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent sessions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSessionStore(runSessionsList)
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show the turns of a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSessionStore(func(ctx context.Context, store *session.Store) error {
			return runSessionsShow(ctx, store, args[0])
		})
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and its turns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSessionStore(func(ctx context.Context, store *session.Store) error {
			return runSessionsDelete(ctx, store, args[0])
		})
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	rootCmd.AddCommand(sessionsCmd)
}

// withSessionStore opens the database and hands a session store to fn.
// Session commands don't need the model stack, only the database.
func withSessionStore(fn func(context.Context, *session.Store) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := app.SetupDB(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	store := session.NewStore(session.NewPgxQuerier(pool), logger)
	return fn(ctx, store)
}

func runSessionsList(ctx context.Context, store *session.Store) error {
	sessions, err := store.List(ctx, 100)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("No sessions.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tUPDATED")
	for _, sess := range sessions {
		title := sess.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", sess.ID, title, formatTime(sess.UpdatedAt))
	}
	return w.Flush()
}

func runSessionsShow(ctx context.Context, store *session.Store, id string) error {
	if _, err := store.Get(ctx, id); err != nil {
		return err
	}
	turns, err := store.Turns(ctx, id)
	if err != nil {
		return fmt.Errorf("listing turns: %w", err)
	}
	if len(turns) == 0 {
		fmt.Println("No turns.")
		return nil
	}

	for _, turn := range turns {
		fmt.Printf("[%s] %s\n", turn.Role, formatTime(turn.CreatedAt))
		fmt.Println(turn.Content)
		printCitations(turn.Citations)
		fmt.Println()
	}
	return nil
}

func runSessionsDelete(ctx context.Context, store *session.Store, id string) error {
	if err := store.Delete(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Deleted session %s\n", id)
	return nil
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}
