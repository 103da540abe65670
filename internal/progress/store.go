// Package progress persists per-user, per-scope case review activity
// and enforces the single active in-progress case per scope.
package progress

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"caseflow/internal/storage"
)

// Record is one ledger row. Scope is the filter-context fingerprint
// key; the empty scope is the global context.
type Record struct {
	ID            int64
	UserID        string
	CaseID        string
	Scope         string
	Status        Status
	SessionID     string
	LastUpdatedAt time.Time
}

// Store provides ledger persistence.
type Store struct {
	db  *storage.DB
	now func() time.Time
}

// NewStore builds a progress store over the shared database.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock overrides the store clock. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// UpsertStatus records status for (userID, caseID, scope), replacing
// any previous status for that triple. Recording in_progress_queue
// atomically demotes the scope's previous in-progress case to
// viewed_in_queue, so the active-case invariant holds even under
// concurrent writers.
func (s *Store) UpsertStatus(ctx context.Context, userID, caseID, scope string, status Status, sessionID string) error {
	now := storage.FormatTime(s.now())
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if status == StatusInProgress {
			if _, err := tx.ExecContext(ctx, `
UPDATE progress_records
SET status = ?, last_updated_at = ?
WHERE user_id = ? AND scope = ? AND status = ? AND case_id != ?`,
				StatusViewed, now, userID, scope, StatusInProgress, caseID); err != nil {
				return fmt.Errorf("demote previous in-progress case: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO progress_records (user_id, case_id, scope, status, session_id, last_updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(user_id, case_id, scope) DO UPDATE SET
    status = excluded.status,
    session_id = excluded.session_id,
    last_updated_at = excluded.last_updated_at`,
			userID, caseID, scope, status, storage.NullableString(sessionID), now); err != nil {
			return fmt.Errorf("upsert progress record: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("progress: record %s for %s/%s: %w", status, userID, caseID, err)
	}
	return nil
}

// DemoteStaleInProgress turns any in-progress record for (userID,
// scope) other than exceptCaseID into viewed_in_queue. Pass an empty
// exceptCaseID to demote all of them. Idempotent.
func (s *Store) DemoteStaleInProgress(ctx context.Context, userID, scope, exceptCaseID string) error {
	_, err := s.db.ExecRetry(ctx, `
UPDATE progress_records
SET status = ?, last_updated_at = ?
WHERE user_id = ? AND scope = ? AND status = ? AND case_id != ?`,
		StatusViewed, storage.FormatTime(s.now()), userID, scope, StatusInProgress, exceptCaseID)
	if err != nil {
		return fmt.Errorf("progress: demote stale in-progress for %s: %w", userID, err)
	}
	return nil
}

// DemoteInProgressAllScopes turns every in-progress record for (userID,
// caseID) into viewed_in_queue regardless of scope. Used when a global
// mark settles a case.
func (s *Store) DemoteInProgressAllScopes(ctx context.Context, userID, caseID string) error {
	_, err := s.db.ExecRetry(ctx, `
UPDATE progress_records
SET status = ?, last_updated_at = ?
WHERE user_id = ? AND case_id = ? AND status = ?`,
		StatusViewed, storage.FormatTime(s.now()), userID, caseID, StatusInProgress)
	if err != nil {
		return fmt.Errorf("progress: demote %s across scopes for %s: %w", caseID, userID, err)
	}
	return nil
}

// FindStatus returns the record for (userID, caseID, scope), or nil.
func (s *Store) FindStatus(ctx context.Context, userID, caseID, scope string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, user_id, case_id, scope, status, session_id, last_updated_at
FROM progress_records
WHERE user_id = ? AND case_id = ? AND scope = ?`,
		userID, caseID, scope)
	return scanRecord(row)
}

// FindActiveInProgress returns the scope's current in-progress record,
// or nil when the scope has none.
func (s *Store) FindActiveInProgress(ctx context.Context, userID, scope string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, user_id, case_id, scope, status, session_id, last_updated_at
FROM progress_records
WHERE user_id = ? AND scope = ? AND status = ?`,
		userID, scope, StatusInProgress)
	return scanRecord(row)
}

// ExcludedCaseIDs returns the ids of cases settled for the scope. A
// terminal record in the global scope excludes the case everywhere, so
// the global scope is always consulted alongside the requested one.
func (s *Store) ExcludedCaseIDs(ctx context.Context, userID, scope string) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT case_id
FROM progress_records
WHERE user_id = ? AND status IN (?, ?) AND scope IN (?, '')`,
		userID, StatusCompleted, StatusSkipped, scope)
	if err != nil {
		return nil, fmt.Errorf("progress: load excluded cases for %s: %w", userID, err)
	}
	defer rows.Close()

	excluded := map[string]struct{}{}
	for rows.Next() {
		var caseID string
		if err := rows.Scan(&caseID); err != nil {
			return nil, fmt.Errorf("progress: scan excluded case: %w", err)
		}
		excluded[caseID] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("progress: iterate excluded cases: %w", err)
	}
	return excluded, nil
}

// IsExcluded reports whether the case is settled for the scope, either
// by a terminal record in that scope or a global one.
func (s *Store) IsExcluded(ctx context.Context, userID, caseID, scope string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(1)
FROM progress_records
WHERE user_id = ? AND case_id = ? AND status IN (?, ?) AND scope IN (?, '')`,
		userID, caseID, StatusCompleted, StatusSkipped, scope).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("progress: check exclusion for %s/%s: %w", userID, caseID, err)
	}
	return count > 0, nil
}

// ListForUser returns every record for the user ordered by scope then
// case id.
func (s *Store) ListForUser(ctx context.Context, userID string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, user_id, case_id, scope, status, session_id, last_updated_at
FROM progress_records
WHERE user_id = ?
ORDER BY scope ASC, case_id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("progress: list records for %s: %w", userID, err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecordFrom(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("progress: iterate records: %w", err)
	}
	return records, nil
}

func scanRecord(row *sql.Row) (*Record, error) {
	record, err := scanRecordFrom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return record, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecordFrom(row rowScanner) (*Record, error) {
	var (
		record    Record
		sessionID sql.NullString
		updatedAt string
	)
	if err := row.Scan(&record.ID, &record.UserID, &record.CaseID, &record.Scope, &record.Status, &sessionID, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("progress: scan record: %w", err)
	}
	record.SessionID = sessionID.String

	var err error
	if record.LastUpdatedAt, err = storage.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("progress: parse last_updated_at: %w", err)
	}
	return &record, nil
}
