package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"semrag/internal/domain"
)

const (
	EmbedderHashing = "hashing"
	EmbedderOpenAI  = "openai"

	StoreMemory = "memory"
	StoreQdrant = "qdrant"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	Attempts    uint   `yaml:"attempts"`
}

// CacheConfig controls the embedding memo in front of the embedder.
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	TTL     time.Duration `yaml:"ttl"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	Dimension int                   `yaml:"dimension"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
	Cache     CacheConfig           `yaml:"cache"`
}

// TokenizerConfig selects the token counter used for chunk budgets.
type TokenizerConfig struct {
	Type     string `yaml:"type"`
	Encoding string `yaml:"encoding"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	domain.ChunkOptions `yaml:",inline"`
	Workers             int           `yaml:"workers"`
	EmbedTimeout        time.Duration `yaml:"embed_timeout"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// SummarizerConfig controls the key-sentence preview of ingested documents.
type SummarizerConfig struct {
	Enabled      bool `yaml:"enabled"`
	MaxSentences int  `yaml:"max_sentences"`
}

type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Dev   bool   `yaml:"dev"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Tokenizer   TokenizerConfig   `yaml:"tokenizer"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// envOverrides are applied on top of the file config.
type envOverrides struct {
	Embedder     string `env:"RAG_EMBEDDER"`
	Tokenizer    string `env:"RAG_TOKENIZER"`
	VectorStore  string `env:"RAG_VECTOR_STORE"`
	QdrantURL    string `env:"RAG_QDRANT_URL"`
	QdrantAPIKey string `env:"RAG_QDRANT_API_KEY"`
	ServerAddr   string `env:"RAG_SERVER_ADDR"`
	LogLevel     string `env:"RAG_LOG_LEVEL"`
	TopK         int    `env:"RAG_TOP_K"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/rag/config.yaml.
// If neither exists, it writes defaults to ~/.config/rag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Resolve loads the config file (path, or the default locations when empty),
// the optional .env file and RAG_* overrides, then validates the result.
func Resolve(path string) (*AppConfig, string, error) {
	// A missing .env is fine; variables may be set externally.
	_ = godotenv.Load()

	var (
		cfg *AppConfig
		err error
	)
	if path == "" {
		cfg, path, err = LoadDefault()
	} else {
		cfg, err = Load(path)
	}
	if err != nil {
		return nil, "", err
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, "", err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, path, nil
}

// ApplyEnv overrides cfg with any RAG_* variables that are set.
func ApplyEnv(cfg *AppConfig) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if o.Embedder != "" {
		cfg.Embedder.Type = o.Embedder
	}
	if o.Tokenizer != "" {
		cfg.Tokenizer.Type = o.Tokenizer
	}
	if o.VectorStore != "" {
		cfg.VectorStore.Type = o.VectorStore
	}
	if o.QdrantURL != "" || o.QdrantAPIKey != "" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if o.QdrantURL != "" {
			cfg.VectorStore.Qdrant.URL = o.QdrantURL
		}
		if o.QdrantAPIKey != "" {
			cfg.VectorStore.Qdrant.APIKey = o.QdrantAPIKey
		}
	}
	if o.ServerAddr != "" {
		cfg.Server.Addr = o.ServerAddr
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.TopK > 0 {
		cfg.Retrieval.TopK = o.TopK
	}
	applyConfigDefaults(cfg)
	return nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	if err := c.Chunker.ChunkOptions.Validate(); err != nil {
		return err
	}
	switch c.Embedder.Type {
	case EmbedderHashing, EmbedderOpenAI:
	default:
		return fmt.Errorf("%w: unknown embedder type %q", domain.ErrInvalidConfig, c.Embedder.Type)
	}
	switch c.VectorStore.Type {
	case StoreMemory:
	case StoreQdrant:
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" {
			return fmt.Errorf("%w: qdrant vector store requires a url", domain.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown vector store type %q", domain.ErrInvalidConfig, c.VectorStore.Type)
	}
	if c.Summarizer.MaxSentences < 0 {
		return fmt.Errorf("%w: summarizer max_sentences must be >= 0, got %d", domain.ErrInvalidConfig, c.Summarizer.MaxSentences)
	}
	if c.Chunker.Workers < 0 {
		return fmt.Errorf("%w: chunker workers must be >= 0, got %d", domain.ErrInvalidConfig, c.Chunker.Workers)
	}
	return nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "rag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	opts := domain.DefaultChunkOptions()
	opts.DocumentID = ""
	return &AppConfig{
		Embedder: EmbedderConfig{
			Type:      EmbedderHashing,
			Dimension: 512,
			Cache:     CacheConfig{Enabled: true, TTL: 30 * time.Minute},
		},
		Tokenizer:   TokenizerConfig{Type: "tiktoken", Encoding: "cl100k_base"},
		Chunker:     ChunkerConfig{ChunkOptions: opts, EmbedTimeout: 10 * time.Second},
		VectorStore: VectorStoreConfig{Type: StoreMemory},
		Retrieval:   RetrievalConfig{TopK: domain.DefaultTopK},
		Summarizer:  SummarizerConfig{Enabled: true, MaxSentences: 2},
		Server:      ServerConfig{Addr: ":8080"},
		Log:         LogConfig{Level: "info"},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = domain.DefaultTopK
	}
	if cfg.Embedder.Type == EmbedderOpenAI {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.Attempts == 0 {
			cfg.Embedder.OpenAI.Attempts = 3
		}
	}
	if cfg.VectorStore.Type == StoreQdrant && cfg.VectorStore.Qdrant != nil {
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "semrag_chunks"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	}
}
