package config

import (
	"fmt"
	"strings"
)

const (
	minPort = 1
	maxPort = 65535

	minEmbedderDimensions = 1
	maxEmbedderDimensions = 4096

	maxContextTokensCeiling = 100000
)

var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration for consistency. It returns the
// first violation found, wrapped around a sentinel error.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if strings.TrimSpace(c.GenerationModel) == "" {
		return fmt.Errorf("%w: generation model cannot be empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model cannot be empty", ErrInvalidEmbedderModel)
	}
	if c.EmbedderDimensions < minEmbedderDimensions || c.EmbedderDimensions > maxEmbedderDimensions {
		return fmt.Errorf("%w: %d (must be %d-%d)", ErrInvalidEmbedderDimensions,
			c.EmbedderDimensions, minEmbedderDimensions, maxEmbedderDimensions)
	}

	if c.ChunkTokens <= 0 {
		return fmt.Errorf("%w: chunk_tokens must be positive, got %d", ErrInvalidChunking, c.ChunkTokens)
	}
	if c.ChunkOverlapTokens < 0 {
		return fmt.Errorf("%w: chunk_overlap_tokens cannot be negative, got %d", ErrInvalidChunking, c.ChunkOverlapTokens)
	}
	if c.ChunkOverlapTokens >= c.ChunkTokens {
		return fmt.Errorf("%w: overlap %d must be smaller than chunk size %d",
			ErrInvalidChunking, c.ChunkOverlapTokens, c.ChunkTokens)
	}

	if c.TopK <= 0 {
		return fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidRetrieval, c.TopK)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return fmt.Errorf("%w: min_score %v must be in [0, 1]", ErrInvalidRetrieval, c.MinScore)
	}

	if c.MaxContextTokens <= 0 || c.MaxContextTokens > maxContextTokensCeiling {
		return fmt.Errorf("%w: %d (must be 1-%d)", ErrInvalidContextBudget, c.MaxContextTokens, maxContextTokensCeiling)
	}
	if c.FallbackWeight < 0 || c.FallbackWeight > 1 {
		return fmt.Errorf("%w: %v must be in [0, 1]", ErrInvalidFallbackWeight, c.FallbackWeight)
	}

	if c.MaxHistoryTurns < 0 {
		return fmt.Errorf("%w: max_history_turns cannot be negative, got %d", ErrInvalidRetrieval, c.MaxHistoryTurns)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < minPort || c.PostgresPort > maxPort {
		return fmt.Errorf("%w: %d (must be %d-%d)", ErrInvalidPostgresPort, c.PostgresPort, minPort, maxPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}
