package ai

import (
	"os"

	"github.com/zalando/go-keyring"
)

// KeyringService is the OS keychain service under which provider API keys
// are stored, one account per provider name.
const KeyringService = "nimmit-ai"

// apiKeyEnvVars lists the environment variables consulted per provider, in order.
var apiKeyEnvVars = map[string][]string{
	ProviderAnthropic: {"ANTHROPIC_API_KEY", "NIMMIT_AI_API_KEY"},
	ProviderGemini:    {"GOOGLE_GENAI_API_KEY", "NIMMIT_AI_GEMINI_API_KEY"},
}

// ResolveAPIKey returns the API key for provider. Environment variables take
// precedence, then the OS keyring, then configKey.
func ResolveAPIKey(provider, configKey string) string {
	for _, name := range apiKeyEnvVars[provider] {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}

	if v, err := keyring.Get(KeyringService, provider); err == nil && v != "" {
		return v
	}

	return configKey
}

// StoreAPIKey saves key for provider in the OS keyring.
func StoreAPIKey(provider, key string) error {
	return keyring.Set(KeyringService, provider, key)
}
