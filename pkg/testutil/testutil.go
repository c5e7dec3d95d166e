// Package testutil provides fakes and fixtures shared by package tests.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/koompi/nimmit-assistant/pkg/ai"
	"github.com/koompi/nimmit-assistant/pkg/brief"
	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
	"github.com/koompi/nimmit-assistant/pkg/store"
)

// FixedNow is the reference instant used across tests.
var FixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// Clock is a settable time source safe for concurrent use.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock stopped at t.
func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

// Now returns the clock's current time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// NewStore opens a fresh SQLite store under t.TempDir, closed on cleanup.
func NewStore(t testing.TB, opts ...store.Option) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "nimmit.db"), opts...)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// NewSchema returns a schema over the built-in categories whose clock is
// now.
func NewSchema(t testing.TB, now func() time.Time) *brief.Schema {
	t.Helper()
	reg, err := brief.DefaultRegistry()
	if err != nil {
		t.Fatalf("brief.DefaultRegistry: %v", err)
	}
	return brief.NewSchema(reg, brief.WithClock(now))
}

// CompleteTranslationJSON is a model reply carrying a complete translation
// brief relative to FixedNow.
const CompleteTranslationJSON = `{
  "title": "Menu translation",
  "description": "Translate our restaurant menu",
  "category": "translation",
  "deadline": "2026-03-20",
  "attributes": {"source_language": "Khmer", "target_language": "English", "word_count": 1200}
}`

// PartialDesignJSON is a model reply carrying a design brief that still
// lacks its deadline and file format.
const PartialDesignJSON = `{"description": "A logo for my coffee shop", "category": "Design", "attributes": {"deliverable": "logo"}}`

// FakeProvider is a scripted ai.Provider. Replies are consumed in order;
// when ReplyFunc is set it takes precedence.
type FakeProvider struct {
	mu        sync.Mutex
	Replies   []string
	Err       error
	ReplyFunc func(messages []ai.Message) (string, error)
	calls     [][]ai.Message
}

// NewFakeProvider returns a provider that answers with replies in order.
func NewFakeProvider(replies ...string) *FakeProvider {
	return &FakeProvider{Replies: replies}
}

// IsAvailable always reports true.
func (p *FakeProvider) IsAvailable() bool { return true }

// Name returns "fake".
func (p *FakeProvider) Name() string { return "fake" }

// Chat records the request and returns the next scripted reply.
func (p *FakeProvider) Chat(ctx context.Context, messages []ai.Message) (*ai.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, append([]ai.Message(nil), messages...))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}
	if p.ReplyFunc != nil {
		content, err := p.ReplyFunc(messages)
		if err != nil {
			return nil, err
		}
		return &ai.Response{Content: content, StopReason: "end_turn"}, nil
	}
	if len(p.Replies) == 0 {
		return nil, nimerrors.NewAIError(p.Name(), "Chat", "no scripted reply left")
	}

	content := p.Replies[0]
	p.Replies = p.Replies[1:]
	return &ai.Response{Content: content, StopReason: "end_turn"}, nil
}

// Calls returns a copy of every request the provider received.
func (p *FakeProvider) Calls() [][]ai.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]ai.Message(nil), p.calls...)
}

// CallCount returns how many times Chat was called.
func (p *FakeProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}
