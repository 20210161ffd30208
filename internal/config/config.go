package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Debug          bool          `yaml:"debug"`
}

// RedisConfig holds connection details for the Redis registry.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

// ChromaConfig holds connection details for the Chroma vector store.
type ChromaConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Tenant     string        `yaml:"tenant"`
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

// OpenAIConfig configures the OpenAI-compatible chat and embedding endpoints.
type OpenAIConfig struct {
	BaseURL             string        `yaml:"base_url"`
	APIKeyEnv           string        `yaml:"api_key_env"`
	APIKey              string        `yaml:"-"`
	ChatModel           string        `yaml:"chat_model"`
	EmbeddingModel      string        `yaml:"embedding_model"`
	EmbeddingDimensions int           `yaml:"embedding_dimensions"`
	Timeout             time.Duration `yaml:"timeout"`
}

// ExtractorConfig points at the text extraction service.
type ExtractorConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig configures the local blob store.
type StorageConfig struct {
	Root string `yaml:"root"`
}

// ChunkingConfig configures tokenization and embedding fan-out during ingestion.
type ChunkingConfig struct {
	WindowTokens     int     `yaml:"window_tokens"`
	OverlapFraction  float64 `yaml:"overlap_fraction"`
	EmbedBatchSize   int     `yaml:"embed_batch_size"`
	EmbedConcurrency int     `yaml:"embed_concurrency"`
}

// ContextConfig bounds the context sent to the model each turn.
type ContextConfig struct {
	MaxMessages          int   `yaml:"max_messages"`
	InlineSoftLimitBytes int64 `yaml:"inline_soft_limit_bytes"`
	InlineHardLimitBytes int64 `yaml:"inline_hard_limit_bytes"`
	FetchConcurrency     int   `yaml:"fetch_concurrency"`
}

// RetrievalConfig bounds semantic search.
type RetrievalConfig struct {
	DefaultTopK int `yaml:"default_top_k"`
	MaxTopK     int `yaml:"max_top_k"`
}

// IngestionConfig configures the background ingestion workers.
type IngestionConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

// Config is the root application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Chroma    ChromaConfig    `yaml:"chroma"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Extractor ExtractorConfig `yaml:"extractor"`
	Storage   StorageConfig   `yaml:"storage"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Context   ContextConfig   `yaml:"context"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Ingestion IngestionConfig `yaml:"ingestion"`
}

const megabyte = 1 << 20

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: 120 * time.Second,
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			PoolSize: 10,
		},
		Chroma: ChromaConfig{
			Host:       "localhost",
			Port:       8000,
			Tenant:     "default_tenant",
			Database:   "default_database",
			Collection: "pdf_chunks",
			Timeout:    30 * time.Second,
		},
		OpenAI: OpenAIConfig{
			BaseURL:             "https://api.openai.com/v1",
			APIKeyEnv:           "OPENAI_API_KEY",
			ChatModel:           "gpt-4.1-mini",
			EmbeddingModel:      "text-embedding-3-small",
			EmbeddingDimensions: 1536,
			Timeout:             120 * time.Second,
		},
		Extractor: ExtractorConfig{
			BaseURL: "http://localhost:8001",
			Timeout: 60 * time.Second,
		},
		Storage: StorageConfig{
			Root: "./data",
		},
		Chunking: ChunkingConfig{
			WindowTokens:     512,
			OverlapFraction:  0.20,
			EmbedBatchSize:   64,
			EmbedConcurrency: 4,
		},
		Context: ContextConfig{
			MaxMessages:          20,
			InlineSoftLimitBytes: 5 * megabyte,
			InlineHardLimitBytes: 50 * megabyte,
			FetchConcurrency:     4,
		},
		Retrieval: RetrievalConfig{
			DefaultTopK: 5,
			MaxTopK:     20,
		},
		Ingestion: IngestionConfig{
			Workers:      2,
			PollInterval: 2 * time.Second,
			Timeout:      5 * time.Minute,
		},
	}
}

// Load reads a YAML config from path. A missing file yields defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyEnv(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault loads from CONFIG_PATH, falling back to ./config.yaml.
func LoadDefault() (*Config, string, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// Validate rejects values the services cannot work with.
func (c *Config) Validate() error {
	if c.Chunking.WindowTokens <= 0 {
		return fmt.Errorf("chunking.window_tokens must be positive, got %d", c.Chunking.WindowTokens)
	}
	if c.Chunking.OverlapFraction < 0 || c.Chunking.OverlapFraction >= 1 {
		return fmt.Errorf("chunking.overlap_fraction must be in [0,1), got %v", c.Chunking.OverlapFraction)
	}
	if c.Context.MaxMessages <= 0 {
		return fmt.Errorf("context.max_messages must be positive, got %d", c.Context.MaxMessages)
	}
	if c.Context.InlineSoftLimitBytes > c.Context.InlineHardLimitBytes {
		return fmt.Errorf("context.inline_soft_limit_bytes (%d) exceeds hard limit (%d)",
			c.Context.InlineSoftLimitBytes, c.Context.InlineHardLimitBytes)
	}
	if c.Retrieval.DefaultTopK > c.Retrieval.MaxTopK {
		return fmt.Errorf("retrieval.default_top_k (%d) exceeds max_top_k (%d)",
			c.Retrieval.DefaultTopK, c.Retrieval.MaxTopK)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Server.Addr, "SERVER_ADDR")
	setBool(&cfg.Server.Debug, "LOG_DEBUG")

	setString(&cfg.Redis.Host, "REDIS_HOST")
	setInt(&cfg.Redis.Port, "REDIS_PORT")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")

	setString(&cfg.Chroma.Host, "CHROMA_HOST")
	setInt(&cfg.Chroma.Port, "CHROMA_PORT")
	setString(&cfg.Chroma.Tenant, "CHROMA_TENANT")
	setString(&cfg.Chroma.Database, "CHROMA_DATABASE")
	setString(&cfg.Chroma.Collection, "CHROMA_COLLECTION")

	setString(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.OpenAI.ChatModel, "CHAT_MODEL")
	setString(&cfg.OpenAI.EmbeddingModel, "EMBEDDING_MODEL")

	setString(&cfg.Extractor.BaseURL, "EXTRACTOR_URL")
	setString(&cfg.Storage.Root, "STORAGE_ROOT")
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.OpenAI.APIKeyEnv == "" {
		cfg.OpenAI.APIKeyEnv = def.OpenAI.APIKeyEnv
	}
	cfg.OpenAI.APIKey = os.Getenv(cfg.OpenAI.APIKeyEnv)

	if cfg.Chunking.EmbedBatchSize <= 0 {
		cfg.Chunking.EmbedBatchSize = def.Chunking.EmbedBatchSize
	}
	if cfg.Chunking.EmbedConcurrency <= 0 {
		cfg.Chunking.EmbedConcurrency = def.Chunking.EmbedConcurrency
	}
	if cfg.Context.FetchConcurrency <= 0 {
		cfg.Context.FetchConcurrency = def.Context.FetchConcurrency
	}
	if cfg.Retrieval.DefaultTopK <= 0 {
		cfg.Retrieval.DefaultTopK = def.Retrieval.DefaultTopK
	}
	if cfg.Retrieval.MaxTopK <= 0 {
		cfg.Retrieval.MaxTopK = def.Retrieval.MaxTopK
	}
	if cfg.Ingestion.Workers <= 0 {
		cfg.Ingestion.Workers = def.Ingestion.Workers
	}
	if cfg.Ingestion.PollInterval <= 0 {
		cfg.Ingestion.PollInterval = def.Ingestion.PollInterval
	}
	if cfg.Ingestion.Timeout <= 0 {
		cfg.Ingestion.Timeout = def.Ingestion.Timeout
	}
	if cfg.Server.RequestTimeout <= 0 {
		cfg.Server.RequestTimeout = def.Server.RequestTimeout
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
