package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	JWT       JWTConfig
	LLM       LLMConfig
	RateLimit RateLimitConfig
	Memory    MemoryConfig
	Retrieval RetrievalConfig
	Workflow  WorkflowConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins []string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL     string
	Enabled bool

	// Concurrency is the number of queries the orchestrator researches at once.
	Concurrency int
}

type JWTConfig struct {
	Secret        string
	Expiry        time.Duration
	RefreshExpiry time.Duration
}

// LLMConfig holds credentials for the completion endpoint (any
// OpenAI-compatible API, Groq by default) and the Google embedding model.
type LLMConfig struct {
	APIKey              string
	BaseURL             string
	Model               string
	GoogleAPIKey        string
	EmbeddingModel      string
	EmbeddingDimensions int
}

type RateLimitConfig struct {
	MaxRequestsPerMinute int
	// Backend is "memory" (one process) or "redis" (shared by all replicas).
	Backend        string
	HTTPPerMinute  int
	HTTPWindowSize time.Duration
}

type MemoryConfig struct {
	TokenLimit            int
	ChatHistoryTokenRatio float64
	TokenFlushSize        int
	MaxFacts              int
	SessionTTL            time.Duration
	VectorTopK            int
}

type RetrievalConfig struct {
	SimilarityTopK int
	DocumentsPath  string
	ChunkSize      int
	ChunkOverlap   int
}

type WorkflowConfig struct {
	Timeout            time.Duration
	EnableDeepAnalysis bool
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL:     k.String("nats.url"),
			Enabled: k.Bool("nats.enabled"),

			Concurrency: k.Int("nats.concurrency"),
		},
		JWT: JWTConfig{
			Secret: k.String("jwt.secret"),
		},
		LLM: LLMConfig{
			APIKey:              k.String("llm.api.key"),
			BaseURL:             k.String("llm.base.url"),
			Model:               k.String("llm.model"),
			GoogleAPIKey:        k.String("google.api.key"),
			EmbeddingModel:      k.String("llm.embedding.model"),
			EmbeddingDimensions: k.Int("llm.embedding.dimensions"),
		},
		RateLimit: RateLimitConfig{
			MaxRequestsPerMinute: k.Int("ratelimit.max.requests.per.minute"),
			Backend:              k.String("ratelimit.backend"),
			HTTPPerMinute:        k.Int("ratelimit.http.per.minute"),
		},
		Memory: MemoryConfig{
			TokenLimit:            k.Int("memory.token.limit"),
			ChatHistoryTokenRatio: k.Float64("memory.chat.history.token.ratio"),
			TokenFlushSize:        k.Int("memory.token.flush.size"),
			MaxFacts:              k.Int("memory.max.facts"),
			VectorTopK:            k.Int("memory.vector.top.k"),
		},
		Retrieval: RetrievalConfig{
			SimilarityTopK: k.Int("retrieval.similarity.top.k"),
			DocumentsPath:  k.String("retrieval.documents.path"),
			ChunkSize:      k.Int("retrieval.chunk.size"),
			ChunkOverlap:   k.Int("retrieval.chunk.overlap"),
		},
		Workflow: WorkflowConfig{
			EnableDeepAnalysis: k.Bool("workflow.enable.deep.analysis"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	if origins := k.String("server.cors.origins"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.Server.CORSOrigins = append(cfg.Server.CORSOrigins, o)
			}
		}
	}

	applyDefaults(cfg)

	// Parse durations
	durations := []struct {
		key      string
		fallback string
		dst      *time.Duration
	}{
		{"jwt.expiry", "1h", &cfg.JWT.Expiry},
		{"jwt.refresh.expiry", "168h", &cfg.JWT.RefreshExpiry},
		{"workflow.timeout", "180s", &cfg.Workflow.Timeout},
		{"memory.session.ttl", "24h", &cfg.Memory.SessionTTL},
		{"ratelimit.http.window", "1m", &cfg.RateLimit.HTTPWindowSize},
	}
	for _, d := range durations {
		raw := k.String(d.key)
		if raw == "" {
			raw = d.fallback
		}
		*d.dst, err = time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", d.key, err)
		}
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"http://localhost:3000"}
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "finbrain"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "finbrain"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://localhost:4222"
	}
	if cfg.NATS.Concurrency == 0 {
		cfg.NATS.Concurrency = 2
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "openai/gpt-oss-20b"
	}
	if cfg.LLM.EmbeddingModel == "" {
		cfg.LLM.EmbeddingModel = "text-embedding-004"
	}
	if cfg.LLM.EmbeddingDimensions == 0 {
		cfg.LLM.EmbeddingDimensions = 768
	}
	if cfg.RateLimit.MaxRequestsPerMinute == 0 {
		cfg.RateLimit.MaxRequestsPerMinute = 30
	}
	if cfg.RateLimit.Backend == "" {
		cfg.RateLimit.Backend = "memory"
	}
	if cfg.RateLimit.HTTPPerMinute == 0 {
		cfg.RateLimit.HTTPPerMinute = 60
	}
	if cfg.Memory.TokenLimit == 0 {
		cfg.Memory.TokenLimit = 30000
	}
	if cfg.Memory.ChatHistoryTokenRatio == 0 {
		cfg.Memory.ChatHistoryTokenRatio = 0.02
	}
	if cfg.Memory.TokenFlushSize == 0 {
		cfg.Memory.TokenFlushSize = 500
	}
	if cfg.Memory.MaxFacts == 0 {
		cfg.Memory.MaxFacts = 50
	}
	if cfg.Memory.VectorTopK == 0 {
		cfg.Memory.VectorTopK = 3
	}
	if cfg.Retrieval.SimilarityTopK == 0 {
		cfg.Retrieval.SimilarityTopK = 5
	}
	if cfg.Retrieval.DocumentsPath == "" {
		cfg.Retrieval.DocumentsPath = "./data/documents"
	}
	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = 1024
	}
	if cfg.Retrieval.ChunkOverlap == 0 {
		cfg.Retrieval.ChunkOverlap = 200
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
