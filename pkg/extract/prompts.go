package extract

import (
	"fmt"
	"strings"
	"time"

	"github.com/koompi/nimmit-assistant/pkg/brief"
)

// SystemPromptExtraction instructs the model to turn a conversation into a
// brief. The schema, categories and date are appended per call.
const SystemPromptExtraction = `You extract structured job briefs from conversations between a client and an intake assistant.

Read the whole conversation and capture only what the CLIENT has stated or confirmed.

Guidelines:
- Never invent values. Leave a field out when the client has not given it.
- Later statements override earlier ones.
- "category" must be one of the category ids listed below.
- "deadline" must be an RFC 3339 date (YYYY-MM-DD) or date-time. Resolve relative dates ("next Friday") against today's date.
- "urgency" is one of low, normal, high, urgent, and only when the client expressed it.
- Put category-specific details under "attributes" using the attribute keys listed for the category.
- Background snippets describe the client's history. Use them to disambiguate, never as statements for this job.

You MUST respond with a single JSON object matching this JSON Schema and nothing else:`

// buildSystemPrompt assembles the extraction instructions.
func buildSystemPrompt(schemaJSON string, registry *brief.Registry, today time.Time) string {
	var sb strings.Builder

	sb.WriteString(SystemPromptExtraction)
	sb.WriteString("\n\n")
	sb.WriteString(schemaJSON)
	sb.WriteString("\n\n## Categories\n")

	for _, c := range registry.All() {
		sb.WriteString(fmt.Sprintf("- %s: %s", c.ID(), c.Name()))
		if c.Description() != "" {
			sb.WriteString(" (" + c.Description() + ")")
		}
		sb.WriteString("\n")
		for _, spec := range c.Attributes() {
			sb.WriteString(fmt.Sprintf("  - attributes.%s [%s]: %s", spec.Key, spec.Kind, spec.Label))
			if len(spec.Options) > 0 {
				sb.WriteString(" one of " + strings.Join(spec.Options, ", "))
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString(fmt.Sprintf("\nToday's date is %s.", today.UTC().Format("2006-01-02")))
	return sb.String()
}

// buildUserPrompt renders the transcript and optional background.
func buildUserPrompt(history []brief.Message, snippets string) string {
	var sb strings.Builder

	sb.WriteString("## Conversation\n")
	for _, m := range history {
		speaker := "Assistant"
		if m.Role == brief.RoleUser {
			speaker = "Client"
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", speaker, m.Content))
	}

	if strings.TrimSpace(snippets) != "" {
		sb.WriteString("\n## Background\n")
		sb.WriteString(snippets)
		sb.WriteString("\n")
	}

	sb.WriteString("\nReturn the brief as JSON.")
	return sb.String()
}
