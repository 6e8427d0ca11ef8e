// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete configuration.
type Config struct {
	DataDir   string          `mapstructure:"data_dir" yaml:"data_dir"`
	Chunking  ChunkingConfig  `mapstructure:"chunking" yaml:"chunking"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" yaml:"retrieval"`
	OpenAI    OpenAIConfig    `mapstructure:"openai" yaml:"openai"`
	Ollama    OllamaConfig    `mapstructure:"ollama" yaml:"ollama"`
	Removal   RemovalConfig   `mapstructure:"removal" yaml:"removal"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// ChunkingConfig contains document splitting parameters. These are
// configuration constants, not derived from content.
type ChunkingConfig struct {
	Size    int `mapstructure:"size" yaml:"size"`       // characters per chunk
	Overlap int `mapstructure:"overlap" yaml:"overlap"` // overlapping characters between chunks
}

// RetrievalConfig contains per-collection result counts.
type RetrievalConfig struct {
	DocumentK int `mapstructure:"document_k" yaml:"document_k"` // k for private and shared collections
	HistoryK  int `mapstructure:"history_k" yaml:"history_k"`   // k for chat history collections
}

// OpenAIConfig contains the primary provider configuration.
type OpenAIConfig struct {
	APIKey         string `mapstructure:"api_key" yaml:"api_key"` // falls back to OPENAI_API_KEY
	ChatModel      string `mapstructure:"chat_model" yaml:"chat_model"`
	EmbeddingModel string `mapstructure:"embedding_model" yaml:"embedding_model"`
}

// OllamaConfig contains the secondary provider configuration. An empty
// endpoint disables the provider.
type OllamaConfig struct {
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint"` // falls back to OLLAMA_HOST
	ChatModel      string `mapstructure:"chat_model" yaml:"chat_model"`
	EmbeddingModel string `mapstructure:"embedding_model" yaml:"embedding_model"`
}

// RemovalConfig contains the bounded retry policy for removing
// collection storage and document directories.
type RemovalConfig struct {
	Attempts int           `mapstructure:"attempts" yaml:"attempts"`
	Backoff  time.Duration `mapstructure:"backoff" yaml:"backoff"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Addr      string  `mapstructure:"addr" yaml:"addr"`
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second per client
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	Format string `mapstructure:"format" yaml:"format"` // text, json
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "data",
		Chunking: ChunkingConfig{
			Size:    1000,
			Overlap: 200,
		},
		Retrieval: RetrievalConfig{
			DocumentK: 3,
			HistoryK:  2,
		},
		OpenAI: OpenAIConfig{
			ChatModel:      "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
		},
		Ollama: OllamaConfig{
			ChatModel:      "llama3.2",
			EmbeddingModel: "nomic-embed-text",
		},
		Removal: RemovalConfig{
			Attempts: 3,
			Backoff:  200 * time.Millisecond,
		},
		Server: ServerConfig{
			Addr:      ":8000",
			RateLimit: 25,
			RateBurst: 50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// CollectionsDir returns the directory holding vector collections.
func (c *Config) CollectionsDir() string {
	return filepath.Join(c.DataDir, "collections")
}

// DocumentsDir returns the root of the source document tree.
func (c *Config) DocumentsDir() string {
	return filepath.Join(c.DataDir, "documents")
}

// RegistryPath returns the path of the user registry file.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.DataDir, "users.json")
}

// Load loads configuration from file, falling back to defaults.
// Credentials missing from the file are taken from the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v := viper.New()
			v.SetConfigFile(path)
			v.SetConfigType("yaml")

			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
			if err := v.Unmarshal(cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	// Apply defaults for missing values
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 1000
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 200
	}
	if cfg.Retrieval.DocumentK == 0 {
		cfg.Retrieval.DocumentK = 3
	}
	if cfg.Retrieval.HistoryK == 0 {
		cfg.Retrieval.HistoryK = 2
	}
	if cfg.Removal.Attempts == 0 {
		cfg.Removal.Attempts = 3
	}
	if cfg.Removal.Backoff == 0 {
		cfg.Removal.Backoff = 200 * time.Millisecond
	}

	// Credentials from environment
	if cfg.OpenAI.APIKey == "" {
		cfg.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Ollama.Endpoint == "" {
		cfg.Ollama.Endpoint = os.Getenv("OLLAMA_HOST")
	}

	return cfg, nil
}

// Save saves configuration to file.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("data_dir", cfg.DataDir)
	v.Set("chunking", cfg.Chunking)
	v.Set("retrieval", cfg.Retrieval)
	v.Set("openai", cfg.OpenAI)
	v.Set("ollama", cfg.Ollama)
	v.Set("removal", cfg.Removal)
	v.Set("server", cfg.Server)
	v.Set("logging", cfg.Logging)

	return v.WriteConfig()
}

// Validate validates the configuration.
func Validate(cfg *Config) []error {
	var errs []error

	if cfg.DataDir == "" {
		errs = append(errs, fmt.Errorf("data_dir must be set"))
	}
	if cfg.Chunking.Size <= 0 {
		errs = append(errs, fmt.Errorf("chunking.size must be positive"))
	}
	if cfg.Chunking.Overlap < 0 || cfg.Chunking.Overlap >= cfg.Chunking.Size {
		errs = append(errs, fmt.Errorf("chunking.overlap must be in [0, chunking.size)"))
	}
	if cfg.Retrieval.DocumentK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.document_k must be positive"))
	}
	if cfg.Retrieval.HistoryK <= 0 {
		errs = append(errs, fmt.Errorf("retrieval.history_k must be positive"))
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Errorf("invalid logging level: %s", cfg.Logging.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true, "": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, fmt.Errorf("invalid logging format: %s", cfg.Logging.Format))
	}

	return errs
}
