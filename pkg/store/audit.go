package store

import (
	"context"

	"github.com/google/uuid"

	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
	"github.com/koompi/nimmit-assistant/pkg/models"
)

// WriteAuditEntry appends an entry to the audit log. ID and CreatedAt are
// filled in when empty.
func (s *Store) WriteAuditEntry(ctx context.Context, entry *models.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, action, subject_id, actor, inputs_hash, outcome, details, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Action, entry.SubjectID, entry.Actor, entry.InputsHash, entry.Outcome, entry.Details,
		toMillis(entry.CreatedAt))
	if err != nil {
		return nimerrors.NewStoreError("WriteAuditEntry", "insert audit entry", err)
	}
	return nil
}

// ListAuditEntries returns the most recent entries, optionally filtered by
// action (empty matches all), newest first.
func (s *Store) ListAuditEntries(ctx context.Context, action string, limit int) ([]models.AuditEntry, error) {
	query := `SELECT id, action, subject_id, actor, inputs_hash, outcome, details, created_at FROM audit_log`
	var args []any
	if action != "" {
		query += ` WHERE action = ?`
		args = append(args, action)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nimerrors.NewStoreError("ListAuditEntries", "query audit log", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.Action, &e.SubjectID, &e.Actor, &e.InputsHash, &e.Outcome, &e.Details, &createdAt); err != nil {
			return nil, nimerrors.NewStoreError("ListAuditEntries", "scan audit entry", err)
		}
		e.CreatedAt = fromMillis(createdAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, nimerrors.NewStoreError("ListAuditEntries", "iterate audit log", err)
	}
	return entries, nil
}
