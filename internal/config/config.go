// Package config loads service configuration from the environment.
//
// The embedding model identifier and vector dimension live in one place so
// ingestion and query-time code always embed into the same vector space.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all settings consumed by the retrieval pipeline.
type Config struct {
	// Embedding model shared by ingestion and retrieval.
	EmbeddingModel string
	EmbeddingDim   int

	// Generation model and default sampling parameters.
	GenerationModel string
	Temperature     float64
	TopP            float64
	MaxTokens       int

	// Store backend: "postgres", "qdrant" or "memory".
	StoreBackend string

	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	PostgresUser     string
	PostgresPassword string

	QdrantHost string
	QdrantPort int

	// Query expansion strategy: "none", "static" or "llm".
	QueryExpansion string

	ArxivAPIURL string

	HTTPPort       string
	RequestTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults
// for everything except Postgres credentials (validated lazily when the
// postgres backend is selected).
func Load() (*Config, error) {
	cfg := &Config{
		EmbeddingModel:   getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingDim:     getEnvInt("EMBEDDING_DIM", 1536),
		GenerationModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		Temperature:      getEnvFloat("TEMPERATURE", 0.7),
		TopP:             getEnvFloat("TOP_P", 1.0),
		MaxTokens:        getEnvInt("MAX_TOKENS", 200),
		StoreBackend:     getEnv("STORE_BACKEND", "postgres"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", ""),
		PostgresUser:     getEnv("POSTGRES_USER", ""),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		QdrantHost:       getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:       getEnvInt("QDRANT_PORT", 6334),
		QueryExpansion:   getEnv("QUERY_EXPANSION", "none"),
		ArxivAPIURL:      getEnv("ARXIV_API_URL", "http://export.arxiv.org/api/query"),
		HTTPPort:         getEnv("PORT", "8080"),
		RequestTimeout:   time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
	}

	if cfg.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("EMBEDDING_DIM must be positive, got %d", cfg.EmbeddingDim)
	}

	switch cfg.StoreBackend {
	case "postgres", "qdrant", "memory":
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if cfg.StoreBackend == "postgres" {
		if cfg.PostgresDB == "" || cfg.PostgresUser == "" {
			return nil, fmt.Errorf("POSTGRES_DB and POSTGRES_USER must be set for the postgres backend")
		}
	}

	return cfg, nil
}

// PostgresDSN builds a pgx connection string from the Postgres settings.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s",
		c.PostgresUser, c.PostgresPassword, c.PostgresHost, c.PostgresPort, c.PostgresDB)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}
