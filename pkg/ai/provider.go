// Package ai provides the text-generation capability the briefing engine
// consumes.
//
// It defines a provider-agnostic interface with implementations for
// Anthropic (Claude), a local Ollama server and Google Gemini (via Genkit).
// The engine only needs single-shot chat completions; multi-turn state is
// kept by Conversation.
package ai

import (
	"context"
	"log/slog"

	"github.com/koompi/nimmit-assistant/pkg/config"
	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
)

// Message represents a conversation message.
type Message struct {
	Role    string // "user", "assistant", "system"
	Content string
}

// Response from AI provider.
type Response struct {
	Content      string
	StopReason   string // "end_turn", "max_tokens", etc.
	InputTokens  int
	OutputTokens int
}

// Provider interface for AI operations.
type Provider interface {
	// IsAvailable checks if provider is available and configured.
	IsAvailable() bool

	// Chat performs a single chat completion over the given messages.
	Chat(ctx context.Context, messages []Message) (*Response, error)

	// Name returns the provider name.
	Name() string
}

// Provider name constants.
const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderGemini    = "gemini"
)

// Message role constants.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// NewProvider builds the configured provider. API keys resolve from the
// environment, then the OS keyring, then the config file. An empty model
// selects the provider's configured default.
func NewProvider(cfg *config.AIConfig, logger *slog.Logger) (Provider, error) {
	if cfg == nil {
		return nil, nimerrors.NewConfigError("ai", "config is nil")
	}
	if !cfg.Enabled {
		return nil, nimerrors.NewConfigError("ai.enabled", "AI is disabled in configuration")
	}

	temperature := cfg.Temperature
	opts := []ProviderOption{
		WithLogger(logger),
		WithSampling(Sampling{Temperature: &temperature, MaxTokens: cfg.MaxTokens}),
	}
	model := func(fallback string) string {
		if cfg.Model != "" {
			return cfg.Model
		}
		return fallback
	}

	switch cfg.Provider {
	case ProviderAnthropic:
		apiKey := ResolveAPIKey(ProviderAnthropic, cfg.APIKey)
		if apiKey == "" {
			return nil, nimerrors.NewConfigError("ai.api_key",
				"Anthropic API key not set (set ANTHROPIC_API_KEY, store it in the keyring, or set ai.api_key)")
		}
		return NewAnthropicProvider(apiKey, model(cfg.AnthropicModel), opts...), nil

	case ProviderOllama:
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = cfg.OllamaEndpoint
		}
		return NewOllamaProvider(model(cfg.OllamaModel), append(opts, WithBaseURL(endpoint))...), nil

	case ProviderGemini:
		apiKey := ResolveAPIKey(ProviderGemini, cfg.GeminiAPIKey)
		if apiKey == "" {
			apiKey = cfg.APIKey
		}
		if apiKey == "" {
			return nil, nimerrors.NewConfigError("ai.gemini_api_key",
				"Gemini API key not set (set GOOGLE_GENAI_API_KEY, store it in the keyring, or set ai.gemini_api_key)")
		}
		return NewGeminiProvider(apiKey, model(cfg.GeminiModel), opts...), nil

	default:
		return nil, nimerrors.NewConfigError("ai.provider",
			"unsupported AI provider: "+cfg.Provider+" (supported: anthropic, ollama, gemini)")
	}
}
