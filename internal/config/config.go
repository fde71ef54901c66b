package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"pdf-rag-chat/models"
)

const (
	VectorStoreQdrant = "qdrant"
	VectorStoreMemory = "memory"

	ProviderOllama = "ollama"
	ProviderGemini = "gemini"

	SessionModeAccumulate = "accumulate"
	SessionModeReplace    = "replace"
)

type Config struct {
	Port        string   `yaml:"port"`
	GinMode     string   `yaml:"gin_mode"`
	LogLevel    string   `yaml:"log_level"`
	LogFormat   string   `yaml:"log_format"`
	CORSOrigins []string `yaml:"cors_origins"`
	MaxFileSize int64    `yaml:"max_file_size"`

	// Vector index
	VectorStore    string `yaml:"vector_store"`
	QdrantURL      string `yaml:"qdrant_url"`
	QdrantAPIKey   string `yaml:"qdrant_api_key"`
	VectorSize     int    `yaml:"vector_size"`
	VectorDistance string `yaml:"vector_distance"`

	// Language model
	LLMProvider          string        `yaml:"llm_provider"`
	LLMURL               string        `yaml:"llm_url"`
	LLMModel             string        `yaml:"llm_model"`
	EmbeddingModel       string        `yaml:"embedding_model"`
	GeminiAPIKey         string        `yaml:"gemini_api_key"`
	GeminiModel          string        `yaml:"gemini_model"`
	GeminiEmbeddingModel string        `yaml:"gemini_embedding_model"`
	LLMTimeout           time.Duration `yaml:"llm_timeout"`
	LLMRateLimit         float64       `yaml:"llm_rate_limit"`
	EmbedConcurrency     int           `yaml:"embed_concurrency"`

	// Text splitting and retrieval
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	SearchLimit  int `yaml:"search_limit"`

	// Sessions
	SessionMode         string        `yaml:"session_mode"`
	SessionIdleTTL      time.Duration `yaml:"session_idle_ttl"`
	SessionReapInterval time.Duration `yaml:"session_reap_interval"`

	// Redis backed rate limiting, disabled when RedisURL is empty
	RedisURL        string        `yaml:"redis_url"`
	RedisPassword   string        `yaml:"redis_password"`
	RedisDB         int           `yaml:"redis_db"`
	RateLimitReqs   int           `yaml:"rate_limit_requests"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`

	// Tracing, disabled when the endpoint is empty
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	OTelSampleRate float64 `yaml:"otel_sample_ratio"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Port:                 "3000",
		GinMode:              "debug",
		LogFormat:            "json",
		CORSOrigins:          []string{"*"},
		MaxFileSize:          20 << 20,
		VectorStore:          VectorStoreQdrant,
		QdrantURL:            "http://localhost:6333",
		VectorSize:           3072,
		VectorDistance:       "Cosine",
		LLMProvider:          ProviderOllama,
		LLMURL:               "http://localhost:11434",
		LLMModel:             "llama3.2",
		GeminiModel:          "gemini-2.0-flash",
		GeminiEmbeddingModel: "text-embedding-004",
		LLMTimeout:           60 * time.Second,
		EmbedConcurrency:     8,
		ChunkSize:            1000,
		ChunkOverlap:         200,
		SearchLimit:          3,
		SessionMode:          SessionModeAccumulate,
		SessionReapInterval:  5 * time.Minute,
		RateLimitReqs:        100,
		RateLimitWindow:      time.Minute,
		OTelSampleRate:       0.1,
	}
}

// LoadConfig builds the configuration from defaults, an optional YAML file
// named by CONFIG_FILE, and environment variables, in that order.
func LoadConfig() (*Config, error) {
	// Load .env file if exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("error loading .env file: %v", err)
		}
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.GinMode = getEnv("GIN_MODE", cfg.GinMode)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	cfg.CORSOrigins = getEnvList("CORS_ORIGINS", cfg.CORSOrigins)
	cfg.MaxFileSize = getEnvInt64("MAX_FILE_SIZE", cfg.MaxFileSize)

	cfg.VectorStore = getEnv("VECTOR_STORE", cfg.VectorStore)
	cfg.QdrantURL = getEnv("QDRANT_URL", cfg.QdrantURL)
	cfg.QdrantAPIKey = getEnv("QDRANT_API_KEY", cfg.QdrantAPIKey)
	cfg.VectorSize = getEnvInt("VECTOR_SIZE", cfg.VectorSize)
	cfg.VectorDistance = getEnv("VECTOR_DISTANCE", cfg.VectorDistance)

	cfg.LLMProvider = getEnv("LLM_PROVIDER", cfg.LLMProvider)
	cfg.LLMURL = getEnv("LLM_URL", cfg.LLMURL)
	cfg.LLMModel = getEnv("LLM_MODEL", cfg.LLMModel)
	cfg.EmbeddingModel = getEnv("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.GeminiModel = getEnv("GEMINI_MODEL", cfg.GeminiModel)
	cfg.GeminiEmbeddingModel = getEnv("GEMINI_EMBEDDING_MODEL", cfg.GeminiEmbeddingModel)
	cfg.LLMTimeout = getEnvDuration("LLM_TIMEOUT", cfg.LLMTimeout)
	cfg.LLMRateLimit = getEnvFloat64("LLM_RATE_LIMIT", cfg.LLMRateLimit)
	cfg.EmbedConcurrency = getEnvInt("EMBED_CONCURRENCY", cfg.EmbedConcurrency)

	cfg.ChunkSize = getEnvInt("CHUNK_SIZE", cfg.ChunkSize)
	cfg.ChunkOverlap = getEnvInt("CHUNK_OVERLAP", cfg.ChunkOverlap)
	cfg.SearchLimit = getEnvInt("SEARCH_LIMIT", cfg.SearchLimit)

	cfg.SessionMode = getEnv("SESSION_MODE", cfg.SessionMode)
	cfg.SessionIdleTTL = getEnvDuration("SESSION_IDLE_TTL", cfg.SessionIdleTTL)
	cfg.SessionReapInterval = getEnvDuration("SESSION_REAP_INTERVAL", cfg.SessionReapInterval)

	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("REDIS_DB", cfg.RedisDB)
	cfg.RateLimitReqs = getEnvInt("RATE_LIMIT_REQUESTS", cfg.RateLimitReqs)
	cfg.RateLimitWindow = getEnvDuration("RATE_LIMIT_WINDOW", cfg.RateLimitWindow)

	cfg.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.OTelSampleRate = getEnvFloat64("OTEL_SAMPLE_RATIO", cfg.OTelSampleRate)

	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = cfg.LLMModel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be served.
func (c *Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive, got %d", models.ErrInvalidConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: CHUNK_OVERLAP must be in [0, %d), got %d", models.ErrInvalidConfig, c.ChunkSize, c.ChunkOverlap)
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: VECTOR_SIZE must be positive", models.ErrInvalidConfig)
	}
	if c.SearchLimit <= 0 {
		return fmt.Errorf("%w: SEARCH_LIMIT must be positive", models.ErrInvalidConfig)
	}
	if c.EmbedConcurrency <= 0 {
		c.EmbedConcurrency = 1
	}

	switch c.VectorStore {
	case VectorStoreQdrant, VectorStoreMemory:
	default:
		return fmt.Errorf("%w: unknown VECTOR_STORE %q", models.ErrInvalidConfig, c.VectorStore)
	}

	switch c.LLMProvider {
	case ProviderOllama:
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is required for the gemini provider", models.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown LLM_PROVIDER %q", models.ErrInvalidConfig, c.LLMProvider)
	}

	switch c.SessionMode {
	case SessionModeAccumulate, SessionModeReplace:
	default:
		return fmt.Errorf("%w: unknown SESSION_MODE %q", models.ErrInvalidConfig, c.SessionMode)
	}

	if c.SessionIdleTTL < 0 {
		return fmt.Errorf("%w: SESSION_IDLE_TTL must not be negative", models.ErrInvalidConfig)
	}
	if c.SessionIdleTTL > 0 && c.SessionReapInterval <= 0 {
		return fmt.Errorf("%w: SESSION_REAP_INTERVAL must be positive when the reaper is enabled", models.ErrInvalidConfig)
	}
	return nil
}

// ReplaceMode reports whether an upload replaces the session's documents.
func (c *Config) ReplaceMode() bool {
	return c.SessionMode == SessionModeReplace
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s not found", path)
		}
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
