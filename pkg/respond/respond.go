// Package respond produces the assistant's next message in a briefing:
// a deterministic summary once the brief is complete, otherwise a model
// generated follow-up that asks for what is still missing.
package respond

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/koompi/nimmit-assistant/pkg/ai"
	"github.com/koompi/nimmit-assistant/pkg/brief"
	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
	"github.com/koompi/nimmit-assistant/pkg/retrieval"
)

// SystemPromptContinuation frames the intake assistant. The captured and
// missing fields are appended per turn.
const SystemPromptContinuation = `You are Nimmit's job intake assistant. You help a client describe a piece of work so it can be matched with a freelance worker.

Guidelines:
- Be warm, brief and concrete. One or two short paragraphs at most.
- Ask for the missing information in the order listed, at most two items per message.
- Do not repeat questions the client has already answered.
- Never promise prices, workers or delivery dates.
- Do not say the brief is complete; the system decides that.
- Reply in the language the client writes in.`

// Request carries everything needed to generate a continuation reply.
type Request struct {
	ClientID       string
	Messages       []brief.Message
	Context        []retrieval.Item
	ContextSummary string
	Brief          *brief.Brief
	MissingFields  []string
}

// Generator produces assistant replies.
type Generator struct {
	provider ai.Provider
	schema   *brief.Schema
	logger   *slog.Logger
}

// NewGenerator creates a generator using provider for continuation replies.
func NewGenerator(provider ai.Provider, schema *brief.Schema, logger *slog.Logger) *Generator {
	return &Generator{provider: provider, schema: schema, logger: logger}
}

// Summary renders the completion message for b. No model is involved.
func (g *Generator) Summary(b *brief.Brief) string {
	return g.schema.Render(b)
}

// Continue asks the model for the next message of the conversation.
func (g *Generator) Continue(ctx context.Context, req Request) (string, error) {
	conv := ai.NewConversation(g.provider, g.buildSystemPrompt(req))
	for _, m := range req.Messages {
		conv.Add(m.Role, m.Content)
	}

	start := time.Now()
	resp, err := conv.Send(ctx)
	if err != nil {
		if nimerrors.IsAIError(err) {
			return "", err
		}
		return "", nimerrors.NewAIErrorWithCause(g.provider.Name(), "Continue", "failed to generate reply", err)
	}

	g.logDebug("reply generated",
		"client", req.ClientID,
		"missing", len(req.MissingFields),
		"output_tokens", resp.OutputTokens,
		"duration", time.Since(start))

	return strings.TrimSpace(resp.Content), nil
}

func (g *Generator) buildSystemPrompt(req Request) string {
	var sb strings.Builder
	sb.WriteString(SystemPromptContinuation)

	category := ""
	if req.Brief != nil {
		category = req.Brief.Category
	}

	if captured := g.capturedFields(req.Brief); len(captured) > 0 {
		sb.WriteString("\n\n## Captured so far\n")
		for _, line := range captured {
			sb.WriteString("- " + line + "\n")
		}
	}

	if len(req.MissingFields) > 0 {
		sb.WriteString("\n## Still needed (in this order)\n")
		for i, field := range req.MissingFields {
			sb.WriteString(fmt.Sprintf("%d. %s", i+1, g.schema.Label(category, field)))
			if q := g.schema.Question(category, field); q != "" {
				sb.WriteString(" (ask: " + q + ")")
			}
			if field == brief.FieldCategory {
				sb.WriteString(" (one of: " + categoryNames(g.schema.Registry()) + ")")
			}
			sb.WriteString("\n")
		}
	}

	if summary := strings.TrimSpace(req.ContextSummary); summary != "" {
		sb.WriteString("\n## About this client\n")
		sb.WriteString(summary)
		sb.WriteString("\nMention past work only if it helps the client answer.\n")
	}

	return sb.String()
}

func (g *Generator) capturedFields(b *brief.Brief) []string {
	if b == nil {
		return nil
	}
	var lines []string
	add := func(field, value string) {
		if value != "" {
			lines = append(lines, g.schema.Label(b.Category, field)+": "+value)
		}
	}
	add(brief.FieldTitle, b.Title)
	add(brief.FieldDescription, b.Description)
	add(brief.FieldCategory, b.Category)
	add(brief.FieldDeadline, b.Deadline)
	add(brief.FieldUrgency, b.Urgency)

	keys := make([]string, 0, len(b.Attributes))
	for k := range b.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(brief.AttributeField(k), b.Attributes[k])
	}
	return lines
}

func categoryNames(r *brief.Registry) string {
	all := r.All()
	names := make([]string, 0, len(all))
	for _, c := range all {
		names = append(names, c.Name())
	}
	return strings.Join(names, ", ")
}

func (g *Generator) logDebug(msg string, args ...any) {
	if g.logger != nil {
		g.logger.Debug(msg, args...)
	}
}
