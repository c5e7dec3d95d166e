package errors

import (
	"fmt"
	"strings"
)

// userMessage is the rendered form of an error for a terminal user.
type userMessage struct {
	headline string
	hints    []string
	note     string
	cause    error
}

func (m userMessage) String() string {
	if len(m.hints) == 0 && m.note == "" && m.cause == nil {
		return m.headline
	}

	var b strings.Builder
	b.WriteString(m.headline)
	if len(m.hints) > 0 {
		b.WriteString("\n\nTo fix this:")
		for _, h := range m.hints {
			b.WriteString("\n  • ")
			b.WriteString(h)
		}
	}
	if m.note != "" {
		b.WriteString("\n\n")
		b.WriteString(m.note)
	}
	if m.cause != nil {
		fmt.Fprintf(&b, "\n\nUnderlying error: %v", m.cause)
	}
	return b.String()
}

// briefingPrefixes label client-facing failures by kind.
var briefingPrefixes = map[Kind]string{
	KindUnauthorized: "Not signed in",
	KindForbidden:    "Permission denied",
	KindValidation:   "Invalid request",
	KindNotFound:     "Not found",
}

// FormatUserError renders err for the CLI, adding fix-up hints for the error
// types this module defines. Unknown errors print as-is.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var (
		be      *BriefingError
		cfgErr  *ConfigError
		aiErr   *AIError
		taskErr *TaskError
	)
	switch {
	case As(err, &cfgErr):
		return configMessage(cfgErr).String()
	case As(err, &aiErr):
		return providerMessage(aiErr).String()
	case As(err, &taskErr):
		return userMessage{
			headline: fmt.Sprintf("Maintenance task %q failed: %s", taskErr.Task, taskErr.Message),
			note:     "Tasks are safe to rerun. 'nimmit maintenance list' shows the known tasks.",
			cause:    taskErr.Cause,
		}.String()
	case As(err, &be):
		if prefix, ok := briefingPrefixes[be.Kind]; ok {
			return prefix + ": " + be.Message
		}
		return userMessage{headline: "Internal error: " + be.Message, cause: be.Cause}.String()
	}
	return err.Error()
}

func configMessage(err *ConfigError) userMessage {
	m := userMessage{
		headline: "Configuration error: " + err.Message,
		hints: []string{
			"Check ~/.config/nimmit/config.toml, or the file named by --config or NIMMIT_CONFIG",
			"Run 'nimmit config show' to see the effective settings",
		},
		cause: err.Cause,
	}
	if err.Field != "" {
		m.headline = fmt.Sprintf("Configuration error in %q: %s", err.Field, err.Message)
	}
	return m
}

func providerMessage(err *AIError) userMessage {
	m := userMessage{
		headline: fmt.Sprintf("Model provider %s failed during %s: %s", err.Provider, err.Operation, err.Message),
		cause:    err.Cause,
	}
	switch {
	case err.StatusCode == 401 || err.StatusCode == 403:
		m.hints = []string{
			"Set the provider's API key variable, store it in the OS keyring, or set ai.api_key",
			"Confirm the key can use the configured model",
		}
	case err.StatusCode == 429:
		m.note = "The provider is rate limiting requests. Wait a few minutes and try again."
	case err.StatusCode >= 500:
		m.note = "The provider is having trouble. Try again shortly."
	case err.Retryable:
		m.note = "This looks temporary. Try again."
	}
	return m
}
