// Package llm wraps the external language-model providers behind one
// interface. The core consumes completions as an opaque async service;
// timeouts and cancellation ride on the context.
package llm

import (
	"context"
	"fmt"

	"github.com/hearthmind/hearth/internal/config"
)

// Call is a single completion request: a system prompt, a user prompt, and
// an optional per-call model override.
type Call struct {
	System string
	User   string
	Model  string
}

// Response holds the result of a completion.
type Response struct {
	Content      string
	Provider     string
	TokensUsed   int
	FinishReason string
}

// Client is the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, call Call) (*Response, error)
}

// NewClient creates an LLM client based on the config provider setting.
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic provider requires ANTHROPIC_API_KEY or config")
		}
		model := cfg.Model
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		return NewAnthropic(cfg.AnthropicKey, model), nil
	case "ollama":
		url := cfg.OllamaURL
		if url == "" {
			url = "http://localhost:11434"
		}
		model := cfg.OllamaModel
		if model == "" {
			model = "llama3.2"
		}
		return NewOllama(url, model), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
}
