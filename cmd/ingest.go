package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/orbitpay/orbit/internal/app"
	"github.com/orbitpay/orbit/internal/config"
	"github.com/orbitpay/orbit/internal/rag"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <url|file>...",
	Short: "Ingest documents into the knowledge base",
	Long: `Ingest fetches each source, extracts its main content, chunks and
embeds it, and stores the result in the knowledge base. Sources are
web URLs or local file paths. Sources whose content is unchanged since
the last run are skipped.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	if err := requireAPIKey(); err != nil {
		return err
	}

	// Concurrent ingest runs would race on document replacement, so a
	// file lock serializes them across processes.
	dir, err := config.Dir()
	if err != nil {
		return fmt.Errorf("resolving config dir: %w", err)
	}
	lock := flock.New(filepath.Join(dir, "ingest.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring ingest lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another ingest run is in progress")
	}
	defer lock.Unlock()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	report := a.Ingester.IngestAll(ctx, args)
	printReport(report)

	if _, _, failed := report.Counts(); failed > 0 {
		return fmt.Errorf("%d source(s) failed", failed)
	}
	return nil
}

func printReport(report rag.IngestReport) {
	for _, res := range report.Results {
		switch res.Status {
		case rag.StatusIngested:
			fmt.Printf("  ingested  %s (%d chunks)\n", res.SourceURI, res.Chunks)
		case rag.StatusSkipped:
			fmt.Printf("  skipped   %s (unchanged)\n", res.SourceURI)
		case rag.StatusFailed:
			fmt.Printf("  failed    %s: %v\n", res.SourceURI, res.Err)
		}
	}
	ingested, skipped, failed := report.Counts()
	fmt.Printf("\n%d ingested, %d skipped, %d failed\n", ingested, skipped, failed)
}
