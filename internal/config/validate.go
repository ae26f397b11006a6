package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for problems that must stop startup.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// External capability credentials
	if c.LLM.APIKey == "" {
		errs = append(errs, "LLM_API_KEY is required")
	}
	if c.LLM.GoogleAPIKey == "" {
		errs = append(errs, "GOOGLE_API_KEY is required")
	}
	if c.LLM.EmbeddingDimensions < 1 {
		errs = append(errs, fmt.Sprintf("LLM_EMBEDDING_DIMENSIONS must be positive, got %d", c.LLM.EmbeddingDimensions))
	}

	if len(c.JWT.Secret) < 32 {
		errs = append(errs, "JWT_SECRET must be at least 32 characters")
	}

	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	// Pipeline tuning
	if c.RateLimit.MaxRequestsPerMinute < 1 {
		errs = append(errs, fmt.Sprintf("RATELIMIT_MAX_REQUESTS_PER_MINUTE must be positive, got %d", c.RateLimit.MaxRequestsPerMinute))
	}
	if c.RateLimit.Backend != "memory" && c.RateLimit.Backend != "redis" {
		errs = append(errs, fmt.Sprintf("RATELIMIT_BACKEND must be memory or redis, got %q", c.RateLimit.Backend))
	}
	if c.Retrieval.SimilarityTopK < 1 {
		errs = append(errs, fmt.Sprintf("RETRIEVAL_SIMILARITY_TOP_K must be positive, got %d", c.Retrieval.SimilarityTopK))
	}
	if c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		errs = append(errs, "RETRIEVAL_CHUNK_OVERLAP must be smaller than RETRIEVAL_CHUNK_SIZE")
	}
	if c.Memory.ChatHistoryTokenRatio <= 0 || c.Memory.ChatHistoryTokenRatio > 1 {
		errs = append(errs, fmt.Sprintf("MEMORY_CHAT_HISTORY_TOKEN_RATIO must be in (0, 1], got %g", c.Memory.ChatHistoryTokenRatio))
	}
	if c.Memory.MaxFacts < 1 {
		errs = append(errs, fmt.Sprintf("MEMORY_MAX_FACTS must be positive, got %d", c.Memory.MaxFacts))
	}
	if c.Workflow.Timeout <= 0 {
		errs = append(errs, "WORKFLOW_TIMEOUT must be positive")
	}

	if !c.NATS.Enabled {
		slog.Warn("NATS_ENABLED is false, queries are only accepted over HTTP")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
