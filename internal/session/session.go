// Package session persists queue sessions: the frozen case sequence a
// user walks through for one filter context.
package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"caseflow/internal/filterctx"
	"caseflow/internal/storage"
)

// Session is one queue walk. CaseIDs is the candidate sequence frozen
// at start (matched cases minus those already settled); cases settled
// after the freeze are skipped on advance.
type Session struct {
	ID        string
	UserID    string
	Scope     string
	Criteria  filterctx.Criteria
	CaseIDs   []string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry at the given
// instant.
func (s *Session) Expired(at time.Time) bool {
	return !s.ExpiresAt.IsZero() && at.After(s.ExpiresAt)
}

// Store provides session persistence.
type Store struct {
	db  *storage.DB
	now func() time.Time
}

// NewStore builds a session store over the shared database.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock overrides the store clock. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Put inserts or replaces a session.
func (s *Store) Put(ctx context.Context, sess *Session) error {
	if sess == nil || strings.TrimSpace(sess.ID) == "" {
		return fmt.Errorf("session: id must not be empty")
	}

	criteria := sess.Criteria
	if criteria == nil {
		criteria = filterctx.Criteria{}
	}
	criteriaJSON, err := json.Marshal(criteria)
	if err != nil {
		return fmt.Errorf("session: encode criteria: %w", err)
	}
	caseIDs := sess.CaseIDs
	if caseIDs == nil {
		caseIDs = []string{}
	}
	caseIDsJSON, err := json.Marshal(caseIDs)
	if err != nil {
		return fmt.Errorf("session: encode case ids: %w", err)
	}

	_, err = s.db.ExecRetry(ctx, `
INSERT INTO queue_sessions (session_id, user_id, scope, criteria_json, case_ids_json, created_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
    user_id = excluded.user_id,
    scope = excluded.scope,
    criteria_json = excluded.criteria_json,
    case_ids_json = excluded.case_ids_json,
    created_at = excluded.created_at,
    expires_at = excluded.expires_at`,
		sess.ID, sess.UserID, sess.Scope, string(criteriaJSON), string(caseIDsJSON),
		storage.FormatTime(sess.CreatedAt), storage.FormatTime(sess.ExpiresAt))
	if err != nil {
		return fmt.Errorf("session: store %s: %w", sess.ID, err)
	}
	return nil
}

// Get returns the session with the given id. Absent and expired
// sessions both return nil; expired rows are removed on read.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT session_id, user_id, scope, criteria_json, case_ids_json, created_at, expires_at
FROM queue_sessions WHERE session_id = ?`, id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", id, err)
	}
	if sess.Expired(s.now()) {
		if err := s.Delete(ctx, sess.ID); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return sess, nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecRetry(ctx, "DELETE FROM queue_sessions WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("session: delete %s: %w", id, err)
	}
	return nil
}

// PurgeContext removes the user's sessions for a scope, keeping
// exceptID. Starting a queue replaces any earlier session for the same
// context.
func (s *Store) PurgeContext(ctx context.Context, userID, scope, exceptID string) error {
	_, err := s.db.ExecRetry(ctx, `
DELETE FROM queue_sessions
WHERE user_id = ? AND scope = ? AND session_id != ?`, userID, scope, exceptID)
	if err != nil {
		return fmt.Errorf("session: purge context for %s: %w", userID, err)
	}
	return nil
}

// DeleteExpired removes every session past its expiry and returns the
// number removed.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecRetry(ctx,
		"DELETE FROM queue_sessions WHERE expires_at < ?", storage.FormatTime(s.now()))
	if err != nil {
		return 0, fmt.Errorf("session: delete expired: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("session: count expired deletions: %w", err)
	}
	return removed, nil
}

func scanSession(row *sql.Row) (*Session, error) {
	var (
		sess         Session
		criteriaJSON string
		caseIDsJSON  string
		createdAt    string
		expiresAt    string
	)
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.Scope, &criteriaJSON, &caseIDsJSON, &createdAt, &expiresAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(criteriaJSON), &sess.Criteria); err != nil {
		return nil, fmt.Errorf("decode criteria: %w", err)
	}
	if err := json.Unmarshal([]byte(caseIDsJSON), &sess.CaseIDs); err != nil {
		return nil, fmt.Errorf("decode case ids: %w", err)
	}

	var err error
	if sess.CreatedAt, err = storage.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if sess.ExpiresAt, err = storage.ParseTime(expiresAt); err != nil {
		return nil, fmt.Errorf("parse expires_at: %w", err)
	}
	return &sess, nil
}
