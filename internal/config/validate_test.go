package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "finbrain",
			Password: "secret", Name: "finbrain", SSLMode: "disable", MaxConns: 25,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		NATS:  NATSConfig{URL: "nats://localhost:4222", Enabled: true},
		JWT: JWTConfig{
			Secret: "session-secret-that-is-at-least-32-chars",
			Expiry: 24 * time.Hour,
		},
		LLM: LLMConfig{
			APIKey:              "gsk-test",
			BaseURL:             "https://api.groq.com/openai/v1",
			Model:               "openai/gpt-oss-20b",
			GoogleAPIKey:        "google-test",
			EmbeddingModel:      "text-embedding-004",
			EmbeddingDimensions: 768,
		},
		RateLimit: RateLimitConfig{MaxRequestsPerMinute: 30, Backend: "memory"},
		Memory: MemoryConfig{
			TokenLimit: 30000, ChatHistoryTokenRatio: 0.02, TokenFlushSize: 500, MaxFacts: 50,
		},
		Retrieval: RetrievalConfig{SimilarityTopK: 5, ChunkSize: 1024, ChunkOverlap: 200},
		Workflow:  WorkflowConfig{Timeout: 180 * time.Second},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_MissingCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.APIKey = ""
	cfg.LLM.GoogleAPIKey = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected credential errors")
	}
	for _, substr := range []string{"LLM_API_KEY", "GOOGLE_API_KEY"} {
		if !strings.Contains(err.Error(), substr) {
			t.Errorf("expected %q in error: %v", substr, err)
		}
	}
}

func TestValidate_JWTSecretTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.JWT.Secret = "short"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Fatalf("expected JWT_SECRET error, got: %v", err)
	}
}

func TestValidate_RateLimitBackend(t *testing.T) {
	cfg := validConfig()
	cfg.RateLimit.Backend = "memcached"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "RATELIMIT_BACKEND") {
		t.Fatalf("expected RATELIMIT_BACKEND error, got: %v", err)
	}
}

func TestValidate_ChunkOverlap(t *testing.T) {
	cfg := validConfig()
	cfg.Retrieval.ChunkOverlap = cfg.Retrieval.ChunkSize
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "RETRIEVAL_CHUNK_OVERLAP") {
		t.Fatalf("expected RETRIEVAL_CHUNK_OVERLAP error, got: %v", err)
	}
}

func TestValidate_TokenRatio(t *testing.T) {
	cfg := validConfig()
	cfg.Memory.ChatHistoryTokenRatio = 1.5
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "MEMORY_CHAT_HISTORY_TOKEN_RATIO") {
		t.Fatalf("expected token ratio error, got: %v", err)
	}
}

func TestValidate_InvalidPorts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.DB.Port = 99999
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected port validation errors")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("expected SERVER_PORT error in: %v", err)
	}
	if !strings.Contains(err.Error(), "DB_PORT") {
		t.Errorf("expected DB_PORT error in: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 0},
		DB:     DBConfig{Port: 5432},
		Redis:  RedisConfig{Port: 6379},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}
	errStr := err.Error()
	for _, substr := range []string{"LLM_API_KEY", "GOOGLE_API_KEY", "JWT_SECRET", "DB_PASSWORD", "SERVER_PORT", "WORKFLOW_TIMEOUT"} {
		if !strings.Contains(errStr, substr) {
			t.Errorf("expected %q in error: %s", substr, errStr)
		}
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	if cfg.RateLimit.MaxRequestsPerMinute != 30 {
		t.Errorf("max requests per minute = %d, want 30", cfg.RateLimit.MaxRequestsPerMinute)
	}
	if cfg.Retrieval.SimilarityTopK != 5 {
		t.Errorf("similarity top k = %d, want 5", cfg.Retrieval.SimilarityTopK)
	}
	if cfg.Memory.TokenLimit != 30000 || cfg.Memory.MaxFacts != 50 || cfg.Memory.TokenFlushSize != 500 {
		t.Errorf("unexpected memory defaults: %+v", cfg.Memory)
	}
	if cfg.LLM.Model != "openai/gpt-oss-20b" || cfg.LLM.EmbeddingModel != "text-embedding-004" {
		t.Errorf("unexpected model defaults: %+v", cfg.LLM)
	}
	if cfg.Retrieval.DocumentsPath != "./data/documents" {
		t.Errorf("documents path = %q", cfg.Retrieval.DocumentsPath)
	}
}
