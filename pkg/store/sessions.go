package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/koompi/nimmit-assistant/pkg/brief"
	nimerrors "github.com/koompi/nimmit-assistant/pkg/errors"
	"github.com/koompi/nimmit-assistant/pkg/models"
)

const sessionColumns = `id, client_id, status, messages, extracted_brief, missing_fields, context_summary, created_at, updated_at`

// ErrSessionNotFound is returned when saving a session that does not exist.
var ErrSessionNotFound = nimerrors.New("briefing session not found")

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.BriefingSession, error) {
	var (
		sess                 models.BriefingSession
		messages, missing    string
		extracted            sql.NullString
		createdAt, updatedAt int64
	)
	if err := row.Scan(&sess.ID, &sess.ClientID, &sess.Status, &messages, &extracted,
		&missing, &sess.ContextSummary, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(messages), &sess.Messages); err != nil {
		return nil, nimerrors.Wrap(err, "decode messages")
	}
	if err := json.Unmarshal([]byte(missing), &sess.MissingFields); err != nil {
		return nil, nimerrors.Wrap(err, "decode missing fields")
	}
	if extracted.Valid && extracted.String != "" {
		var b brief.Brief
		if err := json.Unmarshal([]byte(extracted.String), &b); err != nil {
			return nil, nimerrors.Wrap(err, "decode extracted brief")
		}
		sess.ExtractedBrief = &b
	}
	if sess.Messages == nil {
		sess.Messages = []brief.Message{}
	}
	sess.CreatedAt = fromMillis(createdAt)
	sess.UpdatedAt = fromMillis(updatedAt)
	return &sess, nil
}

type encodedSession struct {
	messages  string
	extracted sql.NullString
	missing   string
}

func encodeSession(sess *models.BriefingSession) (encodedSession, error) {
	var enc encodedSession

	msgs := sess.Messages
	if msgs == nil {
		msgs = []brief.Message{}
	}
	data, err := json.Marshal(msgs)
	if err != nil {
		return enc, nimerrors.Wrap(err, "encode messages")
	}
	enc.messages = string(data)

	missing := sess.MissingFields
	if missing == nil {
		missing = []string{}
	}
	data, err = json.Marshal(missing)
	if err != nil {
		return enc, nimerrors.Wrap(err, "encode missing fields")
	}
	enc.missing = string(data)

	if sess.ExtractedBrief != nil {
		data, err = json.Marshal(sess.ExtractedBrief)
		if err != nil {
			return enc, nimerrors.Wrap(err, "encode extracted brief")
		}
		enc.extracted = sql.NullString{String: string(data), Valid: true}
	}
	return enc, nil
}

// GetSession returns the session with id, or nil if none exists.
func (s *Store) GetSession(ctx context.Context, id string) (*models.BriefingSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM briefing_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, nimerrors.NewStoreError("GetSession", "query session", err)
	}
	return sess, nil
}

// GetActiveSession returns the client's active session, or nil if none exists.
func (s *Store) GetActiveSession(ctx context.Context, clientID string) (*models.BriefingSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM briefing_sessions WHERE client_id = ? AND status = 'active'`, clientID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, nimerrors.NewStoreError("GetActiveSession", "query session", err)
	}
	return sess, nil
}

// FindOrCreateActiveSession inserts candidate unless the client already has
// an active session, and returns whichever session is active. The boolean is
// true when candidate was inserted. The partial unique index on active
// sessions makes concurrent callers converge on one row.
func (s *Store) FindOrCreateActiveSession(ctx context.Context, candidate *models.BriefingSession) (*models.BriefingSession, bool, error) {
	now := s.now().UTC()
	candidate.Status = models.SessionActive
	candidate.CreatedAt = now
	candidate.UpdatedAt = now

	enc, err := encodeSession(candidate)
	if err != nil {
		return nil, false, nimerrors.NewStoreError("FindOrCreateActiveSession", "encode session", err)
	}

	for attempt := 0; attempt < 3; attempt++ {
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO briefing_sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			candidate.ID, candidate.ClientID, candidate.Status, enc.messages, enc.extracted,
			enc.missing, candidate.ContextSummary, toMillis(now), toMillis(now))
		if err != nil {
			return nil, false, nimerrors.NewStoreError("FindOrCreateActiveSession", "insert session", err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return nil, false, nimerrors.NewStoreError("FindOrCreateActiveSession", "check rows affected", err)
		}
		if n == 1 {
			return candidate, true, nil
		}

		existing, err := s.GetActiveSession(ctx, candidate.ClientID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
		// The active row was closed between our insert and read; try again.
	}

	return nil, false, nimerrors.NewStoreError("FindOrCreateActiveSession",
		"could not settle on an active session", nil)
}

// SaveSession persists the session's messages, brief, missing fields and
// context summary (last write wins). Status is applied only while the stored
// row is still active; sess.Status is updated to the stored value.
func (s *Store) SaveSession(ctx context.Context, sess *models.BriefingSession) error {
	enc, err := encodeSession(sess)
	if err != nil {
		return nimerrors.NewStoreError("SaveSession", "encode session", err)
	}

	now := s.now().UTC()
	var status models.SessionStatus
	err = s.db.QueryRowContext(ctx, `
		UPDATE briefing_sessions
		SET messages = ?, extracted_brief = ?, missing_fields = ?, context_summary = ?,
			status = CASE WHEN status = 'active' THEN ? ELSE status END,
			updated_at = ?
		WHERE id = ?
		RETURNING status`,
		enc.messages, enc.extracted, enc.missing, sess.ContextSummary,
		sess.Status, toMillis(now), sess.ID,
	).Scan(&status)
	if err == sql.ErrNoRows {
		return nimerrors.NewStoreError("SaveSession", "session "+sess.ID, ErrSessionNotFound)
	}
	if err != nil {
		return nimerrors.NewStoreError("SaveSession", "update session", err)
	}

	sess.Status = status
	sess.UpdatedAt = now
	return nil
}

// AbandonActiveSession marks the client's active session abandoned and
// returns its id. An empty id means there was nothing to abandon.
func (s *Store) AbandonActiveSession(ctx context.Context, clientID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		UPDATE briefing_sessions SET status = 'abandoned', updated_at = ?
		WHERE client_id = ? AND status = 'active'
		RETURNING id`,
		toMillis(s.now()), clientID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", nimerrors.NewStoreError("AbandonActiveSession", "update session", err)
	}
	return id, nil
}

// ListInactiveSessionIDs returns active sessions not updated since cutoff.
func (s *Store) ListInactiveSessionIDs(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM briefing_sessions WHERE status = 'active' AND updated_at < ? ORDER BY updated_at`,
		toMillis(cutoff))
	if err != nil {
		return nil, nimerrors.NewStoreError("ListInactiveSessionIDs", "query sessions", err)
	}
	return collectIDs(rows, "ListInactiveSessionIDs")
}

// AbandonSessionIfInactive abandons session id only if it is still active
// and still older than cutoff. It reports whether a row changed.
func (s *Store) AbandonSessionIfInactive(ctx context.Context, id string, cutoff time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE briefing_sessions SET status = 'abandoned', updated_at = ?
		WHERE id = ? AND status = 'active' AND updated_at < ?`,
		toMillis(s.now()), id, toMillis(cutoff))
	if err != nil {
		return false, nimerrors.NewStoreError("AbandonSessionIfInactive", "update session", err)
	}
	return affected(res, "AbandonSessionIfInactive")
}

// ListSessions returns the client's sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, clientID string, limit int) ([]models.BriefingSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM briefing_sessions WHERE client_id = ? ORDER BY created_at DESC LIMIT ?`,
		clientID, limit)
	if err != nil {
		return nil, nimerrors.NewStoreError("ListSessions", "query sessions", err)
	}
	defer rows.Close()

	var out []models.BriefingSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, nimerrors.NewStoreError("ListSessions", "scan session", err)
		}
		out = append(out, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, nimerrors.NewStoreError("ListSessions", "iterate sessions", err)
	}
	return out, nil
}

func collectIDs(rows *sql.Rows, op string) ([]string, error) {
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, nimerrors.NewStoreError(op, "scan id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, nimerrors.NewStoreError(op, "iterate rows", err)
	}
	return ids, nil
}

func affected(res sql.Result, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, nimerrors.NewStoreError(op, "check rows affected", err)
	}
	return n > 0, nil
}
