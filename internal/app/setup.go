package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/firebase/genkit/go/core/tracing"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/orbitpay/orbit/db"
	"github.com/orbitpay/orbit/internal/assistant"
	"github.com/orbitpay/orbit/internal/config"
	"github.com/orbitpay/orbit/internal/knowledge"
	"github.com/orbitpay/orbit/internal/log"
	"github.com/orbitpay/orbit/internal/rag"
	"github.com/orbitpay/orbit/internal/session"
	"github.com/orbitpay/orbit/internal/webfetch"
	"github.com/orbitpay/orbit/internal/websearch"
)

// Setup creates and initializes the application.
// Returns an App with embedded cleanup; call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	a.otelCleanup = provideOtelShutdown(ctx, cfg, logger)

	pool, err := provideDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.DBPool = pool

	g, err := provideGenkit(ctx)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	aiEmbedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
	if aiEmbedder == nil {
		return nil, fmt.Errorf("embedder %q not found", cfg.EmbedderModel)
	}
	embedder := knowledge.NewEmbedder(aiEmbedder, cfg.EmbedderModel, cfg.EmbedderDimensions, logger)

	a.Knowledge = knowledge.NewStore(knowledge.NewPgxQuerier(pool), embedder, logger)
	a.Sessions = session.NewStore(session.NewPgxQuerier(pool), logger)

	fetcher, err := webfetch.New(webfetch.Config{
		Parallelism: cfg.WebScraper.Parallelism,
		Delay:       time.Duration(cfg.WebScraper.DelayMs) * time.Millisecond,
		Timeout:     time.Duration(cfg.WebScraper.TimeoutMs) * time.Millisecond,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating web fetcher: %w", err)
	}

	// http(s) sources go through the scraper; anything else is read as
	// a local file so static FAQ and policy exports ingest the same way.
	loader := rag.RoutingFetcher{Web: fetcher, File: rag.FileFetcher{}}

	chunker := knowledge.NewChunker(cfg.ChunkTokens, cfg.ChunkOverlapTokens)
	a.Ingester = rag.NewIngester(loader, a.Knowledge, chunker, nil, logger)

	searcher := websearch.New(websearch.Config{
		BaseURL:    cfg.SearXNG.BaseURL,
		Timeout:    time.Duration(cfg.SearXNG.TimeoutMs) * time.Millisecond,
		MaxResults: cfg.SearXNG.MaxResults,
	}, logger)

	retriever := rag.NewRetriever(a.Knowledge, cfg.TopK, cfg.MinScore, logger)
	assembler := rag.NewAssembler(cfg.MaxContextTokens, cfg.FallbackWeight)
	generator := assistant.NewGenerator(g, cfg.GenerationModel, logger)

	a.Assistant = assistant.New(retriever, searcher, assembler, generator, a.Sessions,
		assistant.Config{
			MaxHistoryExchanges: cfg.MaxHistoryTurns,
			AlwaysSearch:        cfg.AlwaysSearch,
		}, logger)

	return a, nil
}

// SetupDB runs migrations and opens a database pool without the rest
// of the pipeline. Commands that only touch stored data use this so
// they work without a model API key.
func SetupDB(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return provideDBPool(ctx, cfg)
}

// provideOtelShutdown sets up OTLP tracing before Genkit
// initialization, so the TracerProvider is ready when flows run.
//
// Traces go to a local collector agent via OTLP HTTP; the agent
// handles authentication and forwarding.
func provideOtelShutdown(ctx context.Context, cfg *config.Config, logger log.Logger) func() {
	tc := cfg.Tracing
	if !tc.Enabled {
		return func() {}
	}

	agentHost := tc.AgentHost
	if agentHost == "" {
		agentHost = "localhost:4318"
	}

	// Set OTEL env vars for Genkit's TracerProvider to pick up.
	// SAFETY: os.Setenv is not concurrent-safe, but this runs exactly
	// once during startup before goroutines are spawned.
	if tc.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", tc.ServiceName)
	}
	if tc.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+tc.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(agentHost),
		otlptracehttp.WithInsecure(), // localhost doesn't need TLS
	)
	if err != nil {
		logger.Warn("creating trace exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("tracing enabled",
		"agent", agentHost,
		"service", tc.ServiceName,
		"environment", tc.Environment,
	)

	shutdown := tracing.TracerProvider().Shutdown

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// provideGenkit initializes Genkit with the Gemini provider.
// Call ordering in Setup ensures tracing is set up first.
func provideGenkit(ctx context.Context) (*genkit.Genkit, error) {
	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, errors.New("initializing genkit with gemini provider")
	}
	return g, nil
}

// provideDBPool runs migrations and creates a PostgreSQL connection
// pool with pgvector types registered on every connection.
func provideDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
