package ai

import (
	"context"
	"strings"

	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
)

// Conversation accumulates the turns of a multi-turn exchange and sends
// them, behind an optional system prompt, to a provider.
type Conversation struct {
	provider Provider
	system   string
	turns    []Message
}

// NewConversation starts an empty conversation.
func NewConversation(provider Provider, systemPrompt string) *Conversation {
	return &Conversation{provider: provider, system: systemPrompt}
}

// Add appends a turn. Any role other than assistant is sent as the user.
func (c *Conversation) Add(role, content string) {
	if role != RoleAssistant {
		role = RoleUser
	}
	c.turns = append(c.turns, Message{Role: role, Content: content})
}

// Send asks the provider for the next assistant turn and appends it. A blank
// reply is an error and is not appended.
func (c *Conversation) Send(ctx context.Context) (*Response, error) {
	messages := make([]Message, 0, len(c.turns)+1)
	if c.system != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: c.system})
	}
	messages = append(messages, c.turns...)

	resp, err := c.provider.Chat(ctx, messages)
	if err != nil {
		return nil, err
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return nil, nimerrors.NewAIError(c.provider.Name(), "Send", "model returned an empty reply")
	}

	c.Add(RoleAssistant, resp.Content)
	return resp, nil
}
