package assistant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/orbitpay/orbit/internal/log"
)

// RetryConfig configures the retry behavior for model calls.
type RetryConfig struct {
	MaxRetries      int           // Maximum number of retry attempts
	InitialInterval time.Duration // Initial backoff interval
	MaxInterval     time.Duration // Maximum backoff interval
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// Generator produces grounded answers through Genkit with retry, rate
// limiting and a circuit breaker around the provider.
//
// Generator is safe for concurrent use by multiple goroutines.
type Generator struct {
	g           *genkit.Genkit
	model       string
	retryConfig RetryConfig
	breaker     *CircuitBreaker
	rateLimiter *rate.Limiter
	logger      log.Logger
}

// NewGenerator creates a Generator for the given model name
// (e.g. "googleai/gemini-2.5-flash").
func NewGenerator(g *genkit.Genkit, model string, logger log.Logger) *Generator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Generator{
		g:           g,
		model:       model,
		retryConfig: DefaultRetryConfig(),
		breaker:     NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		// 10 req/s sustained, burst of 30; matches provider quotas
		rateLimiter: rate.NewLimiter(10, 30),
		logger:      logger,
	}
}

// Generate runs one model call and returns the answer text.
// Failures surface as ErrGenerationUnavailable after retries are
// exhausted or when the circuit is open.
func (gen *Generator) Generate(ctx context.Context, system string, msgs []*ai.Message) (string, error) {
	if err := gen.breaker.Allow(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	resp, err := gen.executeWithRetry(ctx, system, msgs)
	if err != nil {
		gen.breaker.Failure()
		return "", fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		gen.breaker.Failure()
		return "", fmt.Errorf("%w: model returned empty response", ErrGenerationUnavailable)
	}

	gen.breaker.Success()
	return text, nil
}

// executeWithRetry calls the model with exponential backoff.
// Each attempt is rate limited separately so retries also respect
// provider quotas.
func (gen *Generator) executeWithRetry(ctx context.Context, system string, msgs []*ai.Message) (*ai.ModelResponse, error) {
	var lastErr error
	delay := gen.retryConfig.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= gen.retryConfig.MaxRetries; attempt++ {
		if gen.rateLimiter != nil {
			if err := gen.rateLimiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := genkit.Generate(ctx, gen.g,
			ai.WithModelName(gen.model),
			ai.WithSystem(system),
			ai.WithMessages(msgs...),
		)
		if err == nil {
			gen.logger.Debug("generation succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return resp, nil
		}

		lastErr = err

		if !retryableError(err) {
			return nil, fmt.Errorf("generate: %w", err)
		}

		if attempt == gen.retryConfig.MaxRetries {
			break
		}

		gen.logger.Debug("retrying after error",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, gen.retryConfig.MaxInterval)
		}
	}

	return nil, fmt.Errorf("generate after %d retries (elapsed: %v): %w",
		gen.retryConfig.MaxRetries, time.Since(start), lastErr)
}
