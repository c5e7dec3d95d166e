// Package audit writes decision records for state-mutating actions: session
// transitions and maintenance runs.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"

	"github.com/koompi/nimmit-assistant/pkg/models"
)

// Actions recorded in the audit log.
const (
	ActionSessionCreated   = "briefing.session_created"
	ActionSessionCompleted = "briefing.session_completed"
	ActionSessionAbandoned = "briefing.session_abandoned"
	ActionMaintenanceRun   = "maintenance.run"
)

// Outcomes recorded in the audit log.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Writer persists audit entries.
type Writer interface {
	WriteAuditEntry(ctx context.Context, entry *models.AuditEntry) error
}

// Recorder writes audit entries. Write failures are logged, never returned.
type Recorder struct {
	writer Writer
	logger *slog.Logger
}

// NewRecorder creates a recorder. A nil writer yields a recorder that only logs.
func NewRecorder(w Writer, logger *slog.Logger) *Recorder {
	return &Recorder{writer: w, logger: logger}
}

// Record writes one entry. inputs are hashed, not stored.
func (r *Recorder) Record(ctx context.Context, action, subjectID, actor string, inputs any, outcome, details string) {
	if r == nil {
		return
	}

	entry := &models.AuditEntry{
		Action:     action,
		SubjectID:  subjectID,
		Actor:      actor,
		InputsHash: HashInputs(inputs),
		Outcome:    outcome,
		Details:    details,
	}

	r.logDebug("audit", "action", action, "subject", subjectID, "outcome", outcome)

	if r.writer == nil {
		return
	}
	// Audit writes outlive a cancelled request.
	if err := r.writer.WriteAuditEntry(context.WithoutCancel(ctx), entry); err != nil && r.logger != nil {
		r.logger.Warn("failed to write audit entry", "action", action, "subject", subjectID, "error", err)
	}
}

// HashInputs returns the hex SHA-256 of the JSON encoding of inputs.
func HashInputs(inputs any) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (r *Recorder) logDebug(msg string, args ...any) {
	if r.logger != nil {
		r.logger.Debug(msg, args...)
	}
}
