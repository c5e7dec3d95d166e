package ai

import (
	"context"
	"encoding/json"
	"strings"

	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
)

const (
	anthropicBaseURL      = "https://api.anthropic.com"
	anthropicMessagesPath = "/v1/messages"
	anthropicAPIVersion   = "2023-06-01"
	anthropicDefaultModel = "claude-sonnet-4-20250514"
	anthropicMaxTokens    = 2048
)

// AnthropicProvider talks to the Claude Messages API.
type AnthropicProvider struct {
	apiKey   string
	model    string
	opts     providerOptions
	endpoint jsonEndpoint
}

// NewAnthropicProvider creates a Claude provider. An empty model selects
// the default.
func NewAnthropicProvider(apiKey, model string, opts ...ProviderOption) *AnthropicProvider {
	if model == "" {
		model = anthropicDefaultModel
	}
	o := applyOptions(opts)
	base := anthropicBaseURL
	if o.baseURL != "" {
		base = strings.TrimRight(o.baseURL, "/")
	}

	return &AnthropicProvider{
		apiKey: apiKey,
		model:  model,
		opts:   o,
		endpoint: jsonEndpoint{
			provider: ProviderAnthropic,
			url:      base + anthropicMessagesPath,
			client:   o.client,
			headers: map[string]string{
				"x-api-key":         apiKey,
				"anthropic-version": anthropicAPIVersion,
			},
			errorMessage: anthropicErrorMessage,
		},
	}
}

func (p *AnthropicProvider) Name() string { return ProviderAnthropic }

func (p *AnthropicProvider) IsAvailable() bool { return p.apiKey != "" }

type claudeTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string       `json:"model"`
	System      string       `json:"system,omitempty"`
	Messages    []claudeTurn `json:"messages"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature *float64     `json:"temperature,omitempty"`
}

type claudeReply struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func anthropicErrorMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	return e.Error.Message
}

// Chat sends one completion request. System messages become the request's
// system prompt.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	if !p.IsAvailable() {
		return nil, nimerrors.NewAIError(ProviderAnthropic, "Chat", "provider not configured")
	}

	system, turns := toClaudeTurns(messages)
	if len(turns) == 0 {
		return nil, nimerrors.NewAIError(ProviderAnthropic, "Chat", "no messages to send")
	}

	maxTokens := p.opts.sampling.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}

	p.opts.logDebug("anthropic chat", "model", p.model, "turns", len(turns))

	var reply claudeReply
	err := p.endpoint.post(ctx, "Chat", claudeRequest{
		Model:       p.model,
		System:      system,
		Messages:    turns,
		MaxTokens:   maxTokens,
		Temperature: p.opts.sampling.Temperature,
	}, &reply)
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range reply.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	p.opts.logDebug("anthropic reply",
		"stop_reason", reply.StopReason,
		"input_tokens", reply.Usage.InputTokens,
		"output_tokens", reply.Usage.OutputTokens)

	return &Response{
		Content:      text.String(),
		StopReason:   reply.StopReason,
		InputTokens:  reply.Usage.InputTokens,
		OutputTokens: reply.Usage.OutputTokens,
	}, nil
}

// toClaudeTurns separates the system prompt from the dialogue. The Messages
// API wants the user to speak first, so assistant turns before the first
// user turn (the session's opening line) move into the system prompt.
func toClaudeTurns(messages []Message) (string, []claudeTurn) {
	var system []string
	turns := make([]claudeTurn, 0, len(messages))

	for _, m := range messages {
		switch {
		case m.Role == RoleSystem:
			system = append(system, m.Content)
		case m.Role == RoleAssistant && len(turns) == 0:
			system = append(system, "You opened the conversation with: "+m.Content)
		default:
			turns = append(turns, claudeTurn{Role: m.Role, Content: m.Content})
		}
	}

	return strings.Join(system, "\n\n"), turns
}
