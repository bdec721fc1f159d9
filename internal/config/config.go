// Package config holds all hearth configuration: a TOML file with
// defaults, plus environment overrides for secrets.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all hearth configuration.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Database   DatabaseConfig   `toml:"database"`
	LLM        LLMConfig        `toml:"llm"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Queue      QueueConfig      `toml:"queue"`
	Checkpoint CheckpointConfig `toml:"checkpoint"`
	Extraction ExtractionConfig `toml:"extraction"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LLMConfig struct {
	Provider     string `toml:"provider"` // "anthropic", "ollama"
	Model        string `toml:"model"`
	OllamaURL    string `toml:"ollama_url"`
	OllamaModel  string `toml:"ollama_model"`
	AnthropicKey string `toml:"anthropic_key"`
}

type EmbeddingConfig struct {
	Provider string `toml:"provider"` // "ollama", "none"
	URL      string `toml:"url"`
	Model    string `toml:"model"` // e.g. "nomic-embed-text"
}

type QueueConfig struct {
	MaxAttempts        int `toml:"max_attempts"`
	RequestTimeoutSecs int `toml:"request_timeout_secs"`
}

type CheckpointConfig struct {
	AutoIntervalSecs int `toml:"auto_interval_secs"`
}

type ExtractionConfig struct {
	TokenBudget int `toml:"token_budget"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 38800,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		LLM: LLMConfig{
			Provider:    "anthropic",
			OllamaURL:   "http://localhost:11434",
			OllamaModel: "llama3.2",
		},
		Embedding: EmbeddingConfig{
			Provider: "ollama",
			URL:      "http://localhost:11434",
			Model:    "nomic-embed-text",
		},
		Queue: QueueConfig{
			MaxAttempts:        3,
			RequestTimeoutSecs: 120,
		},
		Checkpoint: CheckpointConfig{
			AutoIntervalSecs: 60,
		},
		Extraction: ExtractionConfig{
			TokenBudget: 10000,
		},
	}
}

// DefaultPath returns the default config path: ~/.hearth/config.toml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".hearth", "config.toml"), nil
}

// Load reads the config file at path, layered over defaults. A missing
// file is not an error. ANTHROPIC_API_KEY from the environment (or a .env
// file in the working directory) always wins over the file value.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// defaults only
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	// .env is optional; ignore a missing file.
	_ = godotenv.Load()

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.LLM.AnthropicKey = key
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
