package ai

import (
	"context"
	"encoding/json"
	"strings"

	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
)

const (
	ollamaDefaultEndpoint = "http://localhost:11434"
	ollamaDefaultModel    = "llama3.2"
	ollamaChatPath        = "/api/chat"
)

// OllamaProvider talks to a local or self-hosted Ollama server. No API key
// is needed.
type OllamaProvider struct {
	baseURL  string
	model    string
	opts     providerOptions
	endpoint jsonEndpoint
}

// NewOllamaProvider creates an Ollama provider. WithBaseURL selects the
// server; it defaults to localhost.
func NewOllamaProvider(model string, opts ...ProviderOption) *OllamaProvider {
	if model == "" {
		model = ollamaDefaultModel
	}
	o := applyOptions(opts)
	base := strings.TrimRight(o.baseURL, "/")
	if base == "" {
		base = ollamaDefaultEndpoint
	}

	return &OllamaProvider{
		baseURL: base,
		model:   model,
		opts:    o,
		endpoint: jsonEndpoint{
			provider:     ProviderOllama,
			url:          base + ollamaChatPath,
			client:       o.client,
			errorMessage: ollamaErrorMessage,
		},
	}
}

func (p *OllamaProvider) Name() string { return ProviderOllama }

func (p *OllamaProvider) IsAvailable() bool { return p.baseURL != "" }

type ollamaTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type ollamaRequest struct {
	Model    string         `json:"model"`
	Messages []ollamaTurn   `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  *ollamaOptions `json:"options,omitempty"`
}

type ollamaReply struct {
	Message         ollamaTurn `json:"message"`
	Done            bool       `json:"done"`
	PromptEvalCount int        `json:"prompt_eval_count,omitempty"`
	EvalCount       int        `json:"eval_count,omitempty"`
}

func ollamaErrorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) != nil {
		return ""
	}
	return e.Error
}

// Chat sends one non-streaming completion request.
func (p *OllamaProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	if !p.IsAvailable() {
		return nil, nimerrors.NewAIError(ProviderOllama, "Chat", "provider not configured")
	}

	req := ollamaRequest{Model: p.model, Messages: make([]ollamaTurn, len(messages))}
	for i, m := range messages {
		req.Messages[i] = ollamaTurn(m)
	}
	if s := p.opts.sampling; s.Temperature != nil || s.MaxTokens > 0 {
		req.Options = &ollamaOptions{Temperature: s.Temperature, NumPredict: s.MaxTokens}
	}

	p.opts.logDebug("ollama chat", "model", p.model, "turns", len(req.Messages))

	var reply ollamaReply
	if err := p.endpoint.post(ctx, "Chat", req, &reply); err != nil {
		return nil, err
	}

	p.opts.logDebug("ollama reply",
		"prompt_tokens", reply.PromptEvalCount,
		"completion_tokens", reply.EvalCount)

	stop := "stop"
	if !reply.Done {
		stop = "incomplete"
	}
	return &Response{
		Content:      reply.Message.Content,
		StopReason:   stop,
		InputTokens:  reply.PromptEvalCount,
		OutputTokens: reply.EvalCount,
	}, nil
}
