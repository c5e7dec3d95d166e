// Package briefing runs the job-intake conversation. Each client has at
// most one active session; every message is checked against the brief
// schema and the session completes once the brief is valid.
package briefing

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/koompi/nimmit-assistant/pkg/audit"
	"github.com/koompi/nimmit-assistant/pkg/brief"
	"github.com/koompi/nimmit-assistant/pkg/config"
	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
	"github.com/koompi/nimmit-assistant/pkg/extract"
	"github.com/koompi/nimmit-assistant/pkg/models"
	"github.com/koompi/nimmit-assistant/pkg/respond"
	"github.com/koompi/nimmit-assistant/pkg/retrieval"
)

// SessionStore is the persistence the manager needs.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*models.BriefingSession, error)
	GetActiveSession(ctx context.Context, clientID string) (*models.BriefingSession, error)
	FindOrCreateActiveSession(ctx context.Context, candidate *models.BriefingSession) (*models.BriefingSession, bool, error)
	SaveSession(ctx context.Context, sess *models.BriefingSession) error
	AbandonActiveSession(ctx context.Context, clientID string) (string, error)
}

// Responder produces assistant replies.
type Responder interface {
	Summary(b *brief.Brief) string
	Continue(ctx context.Context, req respond.Request) (string, error)
}

// TurnResult is the outcome of one client message. ExtractedBrief is a copy
// of the session's brief. Session is the state after the turn and is not
// part of the wire form.
type TurnResult struct {
	SessionID      string                  `json:"sessionId"`
	Reply          string                  `json:"assistantMessage"`
	ExtractedBrief *brief.Brief            `json:"extractedBrief"`
	IsComplete     bool                    `json:"isComplete"`
	MissingFields  []string                `json:"missingFields"`
	Session        *models.BriefingSession `json:"-"`
}

// Manager owns briefing sessions.
type Manager struct {
	store     SessionStore
	retriever retrieval.Retriever
	extractor extract.Extractor
	responder Responder
	cfg       config.BriefingConfig

	audit  *audit.Recorder
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithAudit records session transitions with r.
func WithAudit(r *audit.Recorder) Option {
	return func(m *Manager) {
		m.audit = r
	}
}

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock overrides the time source used for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager wires a manager. An empty opening message falls back to the
// default.
func NewManager(store SessionStore, retriever retrieval.Retriever, extractor extract.Extractor, responder Responder, cfg config.BriefingConfig, opts ...Option) *Manager {
	if strings.TrimSpace(cfg.OpeningMessage) == "" {
		cfg.OpeningMessage = config.DefaultOpeningMessage
	}
	m := &Manager{
		store:     store,
		retriever: retriever,
		extractor: extractor,
		responder: responder,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send validates message, resolves the client's session and processes the
// turn. Invalid input is rejected before any session is created.
func (m *Manager) Send(ctx context.Context, clientID, message, sessionID string) (*TurnResult, error) {
	const op = "Send"

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, nimerrors.NewValidation(op, "message must not be empty")
	}
	if m.cfg.MaxMessageChars > 0 && utf8.RuneCountInString(message) > m.cfg.MaxMessageChars {
		return nil, nimerrors.NewValidation(op, "message is too long")
	}

	sess, err := m.GetOrCreate(ctx, clientID, sessionID)
	if err != nil {
		return nil, err
	}
	return m.AppendTurn(ctx, sess, message)
}

// GetOrCreate returns the session to use for clientID. A non-empty
// sessionID must name an active session owned by the client.
func (m *Manager) GetOrCreate(ctx context.Context, clientID, sessionID string) (*models.BriefingSession, error) {
	const op = "GetOrCreate"

	if clientID == "" {
		return nil, nimerrors.NewUnauthorized(op, "client identity is required")
	}

	if sessionID != "" {
		sess, err := m.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, nimerrors.NewInternal(op, "failed to load session", err)
		}
		if sess == nil || sess.ClientID != clientID || !sess.IsActive() {
			return nil, nimerrors.NewNotFound(op, "briefing session not found")
		}
		return sess, nil
	}

	candidate := &models.BriefingSession{
		ID:       uuid.New().String(),
		ClientID: clientID,
		Messages: []brief.Message{{
			Role:      brief.RoleAssistant,
			Content:   m.cfg.OpeningMessage,
			Timestamp: m.now().UTC(),
		}},
		MissingFields: append([]string(nil), brief.BaseRequiredFields...),
	}

	sess, created, err := m.store.FindOrCreateActiveSession(ctx, candidate)
	if err != nil {
		return nil, nimerrors.NewInternal(op, "failed to open session", err)
	}
	if created {
		m.logDebug("briefing session created", "client", clientID, "session", sess.ID)
		m.audit.Record(ctx, audit.ActionSessionCreated, sess.ID, clientID,
			map[string]string{"clientId": clientID}, audit.OutcomeSuccess, "")
	}
	return sess, nil
}

// AppendTurn adds the client's message to sess, re-extracts the brief from
// the history and this turn's context, and replies. The user message is
// persisted before a reply is generated, so a generation failure leaves it
// stored. A degraded extraction keeps the previously captured brief.
func (m *Manager) AppendTurn(ctx context.Context, sess *models.BriefingSession, message string) (*TurnResult, error) {
	const op = "AppendTurn"

	if sess == nil || !sess.IsActive() {
		return nil, nimerrors.NewNotFound(op, "briefing session is not active")
	}

	sess.Messages = append(sess.Messages, brief.Message{
		Role:      brief.RoleUser,
		Content:   message,
		Timestamp: m.now().UTC(),
	})
	history := append([]brief.Message(nil), sess.Messages...)

	items := retrieval.Fetch(ctx, m.retriever, sess.ClientID, message, m.logger)
	sess.ContextSummary = retrieval.Summarize(items, m.cfg.ContextPreviewChars)

	result := m.extractor.Extract(ctx, history, sess.ContextSummary)
	if result.Degraded {
		m.logDebug("keeping previous brief after failed extraction", "session", sess.ID)
	} else {
		sess.ExtractedBrief = result.Brief
		sess.MissingFields = result.MissingFields
	}

	if err := m.store.SaveSession(ctx, sess); err != nil {
		return nil, nimerrors.NewInternal(op, "failed to save message", err)
	}
	if !sess.IsActive() {
		return nil, nimerrors.NewNotFound(op, "briefing session is no longer active")
	}

	var reply string
	if result.IsComplete {
		reply = m.responder.Summary(sess.ExtractedBrief)
		sess.Status = models.SessionCompleted
	} else {
		var err error
		reply, err = m.responder.Continue(ctx, respond.Request{
			ClientID:       sess.ClientID,
			Messages:       history,
			Context:        items,
			ContextSummary: sess.ContextSummary,
			Brief:          sess.ExtractedBrief,
			MissingFields:  sess.MissingFields,
		})
		if err != nil {
			return nil, nimerrors.NewInternal(op, "failed to generate reply", err)
		}
	}

	sess.Messages = append(sess.Messages, brief.Message{
		Role:      brief.RoleAssistant,
		Content:   reply,
		Timestamp: m.now().UTC(),
	})

	if err := m.store.SaveSession(ctx, sess); err != nil {
		return nil, nimerrors.NewInternal(op, "failed to save reply", err)
	}

	complete := sess.Status == models.SessionCompleted
	if complete {
		m.logDebug("briefing session completed", "client", sess.ClientID, "session", sess.ID)
		m.audit.Record(ctx, audit.ActionSessionCompleted, sess.ID, sess.ClientID,
			sess.ExtractedBrief, audit.OutcomeSuccess, "")
	}

	return &TurnResult{
		SessionID:      sess.ID,
		Reply:          reply,
		ExtractedBrief: sess.ExtractedBrief.Clone(),
		IsComplete:     complete,
		MissingFields:  sess.MissingFields,
		Session:        sess,
	}, nil
}

// Abandon closes the client's active session. It is a no-op when there is
// none.
func (m *Manager) Abandon(ctx context.Context, clientID string) error {
	const op = "Abandon"

	if clientID == "" {
		return nimerrors.NewUnauthorized(op, "client identity is required")
	}

	id, err := m.store.AbandonActiveSession(ctx, clientID)
	if err != nil {
		return nimerrors.NewInternal(op, "failed to abandon session", err)
	}
	if id != "" {
		m.logDebug("briefing session abandoned", "client", clientID, "session", id)
		m.audit.Record(ctx, audit.ActionSessionAbandoned, id, clientID,
			map[string]string{"clientId": clientID, "reason": "client reset"}, audit.OutcomeSuccess, "")
	}
	return nil
}

// GetActive returns the client's active session, or nil when there is none.
func (m *Manager) GetActive(ctx context.Context, clientID string) (*models.BriefingSession, error) {
	const op = "GetActive"

	if clientID == "" {
		return nil, nimerrors.NewUnauthorized(op, "client identity is required")
	}

	sess, err := m.store.GetActiveSession(ctx, clientID)
	if err != nil {
		return nil, nimerrors.NewInternal(op, "failed to load session", err)
	}
	return sess, nil
}

func (m *Manager) logDebug(msg string, args ...any) {
	if m.logger != nil {
		m.logger.Debug(msg, args...)
	}
}
