package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server" toml:"server"`
	Store       StoreConfig       `mapstructure:"store" toml:"store"`
	AI          AIConfig          `mapstructure:"ai" toml:"ai"`
	Briefing    BriefingConfig    `mapstructure:"briefing" toml:"briefing"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance" toml:"maintenance"`
	Auth        AuthConfig        `mapstructure:"auth" toml:"auth"`
}

// ServerConfig holds HTTP and health listener configuration
type ServerConfig struct {
	Addr         string        `mapstructure:"addr" toml:"addr"`               // HTTP API listen address
	HealthAddr   string        `mapstructure:"health_addr" toml:"health_addr"` // gRPC health listener; empty disables
	ReadTimeout  time.Duration `mapstructure:"read_timeout" toml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" toml:"write_timeout"`
}

// StoreConfig holds persistent store configuration
type StoreConfig struct {
	Path string `mapstructure:"path" toml:"path"` // SQLite database file
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Enabled  bool   `mapstructure:"enabled" toml:"enabled"`
	Provider string `mapstructure:"provider" toml:"provider"` // "anthropic", "ollama", "gemini"
	Model    string `mapstructure:"model" toml:"model"`
	APIKey   string `mapstructure:"api_key" toml:"api_key"`   // Provider API key (env var and keyring take precedence)
	Endpoint string `mapstructure:"endpoint" toml:"endpoint"` // Custom endpoint URL (Ollama)

	// Per-provider default models (used when Model is empty)
	AnthropicModel string `mapstructure:"anthropic_model" toml:"anthropic_model"`
	OllamaModel    string `mapstructure:"ollama_model" toml:"ollama_model"`
	OllamaEndpoint string `mapstructure:"ollama_endpoint" toml:"ollama_endpoint"`
	GeminiModel    string `mapstructure:"gemini_model" toml:"gemini_model"`
	GeminiAPIKey   string `mapstructure:"gemini_api_key" toml:"gemini_api_key"`

	Temperature   float64 `mapstructure:"temperature" toml:"temperature"`       // Sampling temperature, 0 to 1
	MaxTokens     int     `mapstructure:"max_tokens" toml:"max_tokens"`         // Reply length cap; 0 keeps the provider default
	RetryAttempts int     `mapstructure:"retry_attempts" toml:"retry_attempts"` // Retries for transient provider failures
}

// BriefingConfig holds conversational intake configuration
type BriefingConfig struct {
	OpeningMessage      string `mapstructure:"opening_message" toml:"opening_message"`
	CategoriesFile      string `mapstructure:"categories_file" toml:"categories_file"` // Optional extra category definitions (YAML)
	ContextMaxItems     int    `mapstructure:"context_max_items" toml:"context_max_items"`
	ContextPreviewChars int    `mapstructure:"context_preview_chars" toml:"context_preview_chars"`
	MaxMessageChars     int    `mapstructure:"max_message_chars" toml:"max_message_chars"`
}

// MaintenanceConfig holds consistency task configuration
type MaintenanceConfig struct {
	Interval           time.Duration `mapstructure:"interval" toml:"interval"` // 0 disables the in-process scheduler
	BriefingInactivity time.Duration `mapstructure:"briefing_inactivity" toml:"briefing_inactivity"`
	StaleJobAge        time.Duration `mapstructure:"stale_job_age" toml:"stale_job_age"`
}

// AuthConfig holds the default bearer-token authenticator configuration
type AuthConfig struct {
	Tokens         map[string]string `mapstructure:"tokens" toml:"tokens"`                   // token -> "id:role"
	SchedulerToken string            `mapstructure:"scheduler_token" toml:"scheduler_token"` // pre-shared maintenance trigger credential
}

// SecurityWarning represents a configuration security issue
type SecurityWarning struct {
	Field   string
	Message string
}

// DefaultOpeningMessage seeds every new briefing session.
const DefaultOpeningMessage = "Hi! I'm here to help you put together a brief for your task. What do you need done?"

// Load loads the configuration from file and environment variables
func Load() (*Config, error) {
	config := &Config{}

	setDefaults()

	if err := viper.Unmarshal(config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if err := expandPaths(config); err != nil {
		return nil, errors.Wrap(err, "failed to expand paths")
	}

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return config, nil
}

// CheckSecurityWarnings returns warnings for secrets stored in the config file.
func CheckSecurityWarnings(config *Config) []SecurityWarning {
	var warnings []SecurityWarning

	if config.AI.APIKey != "" && os.Getenv("NIMMIT_AI_API_KEY") == "" &&
		os.Getenv("ANTHROPIC_API_KEY") == "" {
		warnings = append(warnings, SecurityWarning{
			Field:   "ai.api_key",
			Message: "AI API key is set in config file. For security, use ANTHROPIC_API_KEY, NIMMIT_AI_API_KEY or the OS keyring instead.",
		})
	}

	if config.Auth.SchedulerToken != "" && os.Getenv("NIMMIT_AUTH_SCHEDULER_TOKEN") == "" {
		warnings = append(warnings, SecurityWarning{
			Field:   "auth.scheduler_token",
			Message: "Scheduler token is set in config file. For security, use the NIMMIT_AUTH_SCHEDULER_TOKEN environment variable instead.",
		})
	}

	return warnings
}

// ValidProviders is the list of supported AI providers.
var ValidProviders = []string{"anthropic", "ollama", "gemini"}

// Validate validates the configuration and returns any validation errors.
func (c *Config) Validate() error {
	if c.AI.Enabled && !contains(ValidProviders, c.AI.Provider) {
		return errors.Newf("ai.provider: unsupported provider %q (supported: %s)",
			c.AI.Provider, strings.Join(ValidProviders, ", "))
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 1 {
		return errors.New("ai.temperature: must be between 0 and 1")
	}
	if c.AI.MaxTokens < 0 {
		return errors.New("ai.max_tokens: must not be negative")
	}
	if c.AI.RetryAttempts < 0 {
		return errors.New("ai.retry_attempts: must not be negative")
	}
	if c.Briefing.ContextMaxItems <= 0 {
		return errors.New("briefing.context_max_items: must be positive")
	}
	if c.Briefing.ContextPreviewChars <= 0 {
		return errors.New("briefing.context_preview_chars: must be positive")
	}
	if c.Briefing.MaxMessageChars <= 0 {
		return errors.New("briefing.max_message_chars: must be positive")
	}
	if strings.TrimSpace(c.Briefing.OpeningMessage) == "" {
		return errors.New("briefing.opening_message: must not be empty")
	}
	if c.Maintenance.Interval < 0 {
		return errors.New("maintenance.interval: must not be negative")
	}
	if c.Maintenance.BriefingInactivity <= 0 {
		return errors.New("maintenance.briefing_inactivity: must be positive")
	}
	if c.Maintenance.StaleJobAge <= 0 {
		return errors.New("maintenance.stale_job_age: must be positive")
	}
	for token, subject := range c.Auth.Tokens {
		if token == "" || !strings.Contains(subject, ":") {
			return errors.Newf("auth.tokens: entry %q must map to \"id:role\"", subject)
		}
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fall back to current directory if home dir can't be determined
		homeDir = "."
	}

	// Server defaults
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.health_addr", "")
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 90*time.Second) // generation can be slow

	// Store defaults
	viper.SetDefault("store.path", filepath.Join(homeDir, ".local", "share", "nimmit", "nimmit.db"))

	// AI defaults
	viper.SetDefault("ai.enabled", true)
	viper.SetDefault("ai.provider", "anthropic")
	viper.SetDefault("ai.model", "")
	viper.SetDefault("ai.api_key", "")
	viper.SetDefault("ai.endpoint", "")
	viper.SetDefault("ai.anthropic_model", "claude-sonnet-4-20250514")
	viper.SetDefault("ai.ollama_model", "llama3.2")
	viper.SetDefault("ai.ollama_endpoint", "http://localhost:11434")
	viper.SetDefault("ai.gemini_model", "")
	viper.SetDefault("ai.gemini_api_key", "")
	viper.SetDefault("ai.temperature", 0.3)
	viper.SetDefault("ai.max_tokens", 0)
	viper.SetDefault("ai.retry_attempts", 2)

	// Briefing defaults
	viper.SetDefault("briefing.opening_message", DefaultOpeningMessage)
	viper.SetDefault("briefing.categories_file", "")
	viper.SetDefault("briefing.context_max_items", 5)
	viper.SetDefault("briefing.context_preview_chars", 200)
	viper.SetDefault("briefing.max_message_chars", 4000)

	// Maintenance defaults
	viper.SetDefault("maintenance.interval", time.Hour)
	viper.SetDefault("maintenance.briefing_inactivity", 24*time.Hour)
	viper.SetDefault("maintenance.stale_job_age", 7*24*time.Hour)

	// Auth defaults
	viper.SetDefault("auth.tokens", map[string]string{})
	viper.SetDefault("auth.scheduler_token", "")
}

// expandPaths expands ~ in configured paths
func expandPaths(config *Config) error {
	var err error

	config.Store.Path, err = expandPath(config.Store.Path)
	if err != nil {
		return err
	}

	config.Briefing.CategoriesFile, err = expandPath(config.Briefing.CategoriesFile)
	if err != nil {
		return err
	}

	return nil
}

// expandPath expands ~ to home directory
func expandPath(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, path[1:]), nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
