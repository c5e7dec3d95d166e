// Package extract turns a briefing conversation into a structured brief
// using a language model, then validates it against the brief schema.
package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/koompi/nimmit-assistant/pkg/ai"
	"github.com/koompi/nimmit-assistant/pkg/brief"
	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
)

// Result is the outcome of one extraction. IsComplete is true only when
// the schema accepts Brief. Degraded marks a result produced after a model
// failure or unusable output; callers keep what they already had.
type Result struct {
	Brief         *brief.Brief
	IsComplete    bool
	MissingFields []string
	Degraded      bool
}

// Extractor derives a brief from a conversation. Implementations never
// fail: problems yield an incomplete result.
type Extractor interface {
	Extract(ctx context.Context, history []brief.Message, snippets string) Result
}

// ModelExtractor asks an ai.Provider for the brief as JSON.
type ModelExtractor struct {
	provider ai.Provider
	schema   *brief.Schema
	retry    nimerrors.RetryConfig
	logger   *slog.Logger

	schemaJSON string
}

// Option configures a ModelExtractor.
type Option func(*ModelExtractor)

// WithRetryConfig overrides the retry policy for model calls.
func WithRetryConfig(cfg nimerrors.RetryConfig) Option {
	return func(e *ModelExtractor) {
		e.retry = cfg
	}
}

// WithLogger sets the logger for degraded extractions.
func WithLogger(logger *slog.Logger) Option {
	return func(e *ModelExtractor) {
		e.logger = logger
	}
}

// NewModelExtractor creates an extractor that validates against schema.
func NewModelExtractor(provider ai.Provider, schema *brief.Schema, opts ...Option) (*ModelExtractor, error) {
	schemaJSON, err := brief.JSONSchema()
	if err != nil {
		return nil, err
	}
	e := &ModelExtractor{
		provider:   provider,
		schema:     schema,
		retry:      nimerrors.DefaultRetryConfig(),
		schemaJSON: schemaJSON,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Extract implements Extractor.
func (e *ModelExtractor) Extract(ctx context.Context, history []brief.Message, snippets string) Result {
	if !hasUserTurn(history) {
		return Result{MissingFields: baseFields()}
	}

	messages := []ai.Message{
		{Role: ai.RoleSystem, Content: buildSystemPrompt(e.schemaJSON, e.schema.Registry(), e.schema.Now())},
		{Role: ai.RoleUser, Content: buildUserPrompt(history, snippets)},
	}

	retry := e.retry
	if retry.OnRetry == nil {
		retry.OnRetry = func(attempt int, err error, delay time.Duration) {
			e.logDebug("retrying brief extraction", "attempt", attempt, "delay", delay, "error", err)
		}
	}

	start := time.Now()
	resp, err := nimerrors.RetryWithResult(ctx, retry, func() (*ai.Response, error) {
		return e.provider.Chat(ctx, messages)
	})
	if err != nil {
		e.logWarn("brief extraction failed", "provider", e.provider.Name(), "error", err)
		return degraded()
	}

	b, err := parseBrief(resp.Content)
	if err != nil {
		e.logWarn("brief extraction returned unusable output", "provider", e.provider.Name(), "error", err)
		return degraded()
	}

	b = e.schema.Normalize(b)
	if isEmpty(b) {
		b = nil
	}
	v := e.schema.Validate(b)

	e.logDebug("brief extracted",
		"complete", v.Valid,
		"missing", v.MissingFields,
		"duration", time.Since(start))

	return Result{Brief: b, IsComplete: v.Valid, MissingFields: v.MissingFields}
}

func degraded() Result {
	return Result{MissingFields: baseFields(), Degraded: true}
}

func baseFields() []string {
	return append([]string(nil), brief.BaseRequiredFields...)
}

func hasUserTurn(history []brief.Message) bool {
	for _, m := range history {
		if m.Role == brief.RoleUser && strings.TrimSpace(m.Content) != "" {
			return true
		}
	}
	return false
}

// rawBrief accepts attribute values of any JSON scalar type.
type rawBrief struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Urgency     string         `json:"urgency"`
	Deadline    string         `json:"deadline"`
	Attributes  map[string]any `json:"attributes"`
}

// parseBrief decodes the first JSON object found in content.
func parseBrief(content string) (*brief.Brief, error) {
	obj := extractJSONObject(content)
	if obj == "" {
		return nil, nimerrors.New("no JSON object in model output")
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(obj)))
	dec.UseNumber()

	var raw rawBrief
	if err := dec.Decode(&raw); err != nil {
		return nil, nimerrors.Wrapf(err, "failed to parse brief JSON: %s", obj)
	}

	b := &brief.Brief{
		Title:       raw.Title,
		Description: raw.Description,
		Category:    raw.Category,
		Urgency:     raw.Urgency,
		Deadline:    raw.Deadline,
	}
	for k, v := range raw.Attributes {
		if v == nil {
			continue
		}
		switch v.(type) {
		case map[string]any, []any:
			continue
		}
		if b.Attributes == nil {
			b.Attributes = make(map[string]string)
		}
		b.Attributes[k] = fmt.Sprint(v)
	}
	return b, nil
}

// extractJSONObject returns the text between the first '{' and the last
// '}', which strips markdown fences and chatter around the object.
func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return ""
	}
	return content[start : end+1]
}

func isEmpty(b *brief.Brief) bool {
	return b == nil || (b.Title == "" && b.Description == "" && b.Category == "" &&
		b.Urgency == "" && b.Deadline == "" && len(b.Attributes) == 0)
}

func (e *ModelExtractor) logWarn(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}

func (e *ModelExtractor) logDebug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}
