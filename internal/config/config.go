// Package config loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Store backends
const (
	BackendPostgres = "postgres"
	BackendQdrant   = "qdrant"
	BackendMemory   = "memory"
)

// Embedding providers
const (
	ProviderOllama = "ollama"
	ProviderMLAPI  = "mlapi"
)

// Config holds all configuration for the retrieval service
type Config struct {
	// Server
	GRPCPort    int    `env:"GRPC_PORT" envDefault:"9090"`
	HTTPPort    int    `env:"HTTP_PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Record store
	StoreBackend      string `env:"STORE_BACKEND" envDefault:"postgres"`
	DatabaseURL       string `env:"DATABASE_URL" envDefault:"postgres://kg:kg@localhost:5432/kg?sslmode=disable"`
	DBMaxConns        int32  `env:"DB_MAX_CONNS" envDefault:"0"`
	MemoryFixturePath string `env:"MEMORY_FIXTURE_PATH"`

	// Qdrant
	QdrantGRPCURL          string `env:"QDRANT_GRPC_URL" envDefault:"localhost:6334"`
	QdrantAPIKey           string `env:"QDRANT_API_KEY"`
	QdrantCollectionPrefix string `env:"QDRANT_COLLECTION_PREFIX" envDefault:"kg_"`

	// Embedding
	EmbeddingProvider    string        `env:"EMBEDDING_PROVIDER" envDefault:"ollama"`
	OllamaURL            string        `env:"OLLAMA_URL" envDefault:"http://localhost:11434"`
	OllamaEmbeddingModel string        `env:"OLLAMA_EMBEDDING_MODEL" envDefault:"all-minilm"`
	MLAPIURL             string        `env:"ML_API_URL" envDefault:"http://localhost:8000/"`
	EmbeddingTimeout     time.Duration `env:"EMBEDDING_TIMEOUT" envDefault:"10s"`
	VectorLength         int           `env:"VECTOR_LENGTH" envDefault:"384"`

	// Retrieval
	RetrievalTimeout       time.Duration  `env:"RETRIEVAL_TIMEOUT" envDefault:"20s"`
	RetrievalMaxParallel   int            `env:"RETRIEVAL_MAX_PARALLEL" envDefault:"16"`
	DefaultMaxCount        int            `env:"DEFAULT_MAX_COUNT" envDefault:"15"`
	DefaultMaxExcerpts     int            `env:"DEFAULT_MAX_EXCERPTS_PER_REPORT" envDefault:"30"`
	StringMatchMinLength   int            `env:"STRING_MATCH_MIN_LENGTH" envDefault:"5"`
	StringMatchMaxCount    int            `env:"STRING_MATCH_MAX_COUNT" envDefault:"5"`
	ChildExcerptsPerReport int            `env:"CHILD_EXCERPTS_PER_REPORT" envDefault:"8"`
	SourceEarliestYear     map[string]int `env:"SOURCE_EARLIEST_YEAR" envDefault:"EIA:2023"`

	// OSTI
	OSTIEnabled bool          `env:"OSTI_ENABLED" envDefault:"true"`
	OSTIBaseURL string        `env:"OSTI_BASE_URL" envDefault:"https://www.osti.gov/api/v1"`
	OSTITimeout time.Duration `env:"OSTI_TIMEOUT" envDefault:"15s"`
}

// Load loads configuration from .env file (if present) and environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unknown backends and providers
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPostgres, BackendQdrant:
	case BackendMemory:
		if c.MemoryFixturePath == "" {
			return fmt.Errorf("MEMORY_FIXTURE_PATH is required for the %s backend", BackendMemory)
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.EmbeddingProvider {
	case ProviderOllama, ProviderMLAPI:
	default:
		return fmt.Errorf("unknown EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}

	if c.RetrievalTimeout <= 0 {
		return fmt.Errorf("RETRIEVAL_TIMEOUT must be positive")
	}
	return nil
}
