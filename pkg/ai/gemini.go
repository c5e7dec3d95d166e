package ai

import (
	"context"
	"strings"
	"sync"

	genai "github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"

	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
)

const geminiDefaultModel = "gemini-2.0-flash"

// GeminiProvider generates through Genkit's Google AI plugin. Sampling
// options are left to the model defaults.
type GeminiProvider struct {
	apiKey    string
	modelName string
	opts      providerOptions

	once    sync.Once
	model   genai.Model
	initErr error
}

// NewGeminiProvider creates a Gemini provider. Genkit is initialised on
// first use.
func NewGeminiProvider(apiKey, modelName string, opts ...ProviderOption) *GeminiProvider {
	if modelName == "" {
		modelName = geminiDefaultModel
	}
	return &GeminiProvider{
		apiKey:    apiKey,
		modelName: modelName,
		opts:      applyOptions(opts),
	}
}

func (p *GeminiProvider) Name() string { return ProviderGemini }

func (p *GeminiProvider) IsAvailable() bool { return p.apiKey != "" }

// resolveModel initialises Genkit once. A model set beforehand (tests)
// is used as is.
func (p *GeminiProvider) resolveModel(ctx context.Context) (genai.Model, error) {
	p.once.Do(func() {
		if p.model != nil {
			return
		}
		if p.apiKey == "" {
			p.initErr = nimerrors.NewAIError(ProviderGemini, "init", "API key not set")
			return
		}

		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{APIKey: p.apiKey}))

		name := p.modelName
		if !strings.Contains(name, "/") {
			name = "googleai/" + name
		}
		p.model = googlegenai.GoogleAIModel(g, name)
		if p.model == nil {
			p.initErr = nimerrors.NewAIError(ProviderGemini, "init", "unknown model: "+name)
			return
		}
		p.opts.logDebug("gemini model resolved", "model", name)
	})
	return p.model, p.initErr
}

// Chat sends one completion request through Genkit.
func (p *GeminiProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	model, err := p.resolveModel(ctx)
	if err != nil {
		return nil, err
	}

	p.opts.logDebug("gemini chat", "model", p.modelName, "turns", len(messages))

	resp, err := model.Generate(ctx, &genai.ModelRequest{Messages: toGenkitMessages(messages)}, nil)
	if err != nil {
		return nil, nimerrors.NewAIErrorWithCause(ProviderGemini, "Chat", "generate failed", err)
	}
	if resp == nil || resp.Message == nil {
		return nil, nimerrors.NewAIError(ProviderGemini, "Chat", "empty response")
	}

	var text strings.Builder
	for _, part := range resp.Message.Content {
		if part.IsText() {
			text.WriteString(part.Text)
		}
	}

	out := &Response{Content: text.String(), StopReason: string(resp.FinishReason)}
	if resp.Usage != nil {
		out.InputTokens = resp.Usage.InputTokens
		out.OutputTokens = resp.Usage.OutputTokens
	}
	return out, nil
}

var genkitRoles = map[string]genai.Role{
	RoleSystem:    genai.RoleSystem,
	RoleUser:      genai.RoleUser,
	RoleAssistant: genai.RoleModel,
}

func toGenkitMessages(messages []Message) []*genai.Message {
	out := make([]*genai.Message, len(messages))
	for i, m := range messages {
		role, ok := genkitRoles[m.Role]
		if !ok {
			role = genai.RoleUser
		}
		out[i] = &genai.Message{
			Role:    role,
			Content: []*genai.Part{genai.NewTextPart(m.Content)},
		}
	}
	return out
}
