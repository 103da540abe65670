// Package queuesvc drives review queue sessions: starting a queue for
// a filter context, advancing through it, and recording case statuses.
package queuesvc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"caseflow/internal/catalog"
	"caseflow/internal/filterctx"
	"caseflow/internal/logging"
	"caseflow/internal/match"
	"caseflow/internal/progress"
	"caseflow/internal/session"
)

// User-facing queue messages.
const (
	MessageNoMatches    = "No cases match the selected filters."
	MessageAllSettled   = "All matching cases have already been completed or skipped."
	MessageQueueDone    = "You have reached the end of the queue."
	defaultSessionTTL   = 6 * time.Hour
	positionEndOfQueue  = -1
	positionUnavailable = -1
)

// QueueState is the outcome of a start or advance operation. Position
// is the zero-based index of the current case in the session's frozen
// candidate sequence, or -1 when no case is presented. Total is the
// length of that sequence.
type QueueState struct {
	SessionID string
	Current   *catalog.Case
	Position  int
	Total     int
	Message   string
}

// Manager coordinates the catalog, progress ledger, and session store.
// All mutations for one user and scope run under a shared lock, so the
// demote-then-record sequences never interleave.
type Manager struct {
	catalog  *catalog.Store
	ledger   *progress.Store
	sessions *session.Store
	logger   *slog.Logger
	ttl      time.Duration
	now      func() time.Time
	newID    func() string
	locks    *contextLocks
}

// Option configures a Manager.
type Option func(*Manager)

// WithSessionTTL sets how long sessions stay resumable.
func WithSessionTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithClock overrides the manager clock. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIDGenerator overrides session id generation. Intended for tests.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) {
		if newID != nil {
			m.newID = newID
		}
	}
}

// NewManager wires a queue manager over the given stores.
func NewManager(catalogStore *catalog.Store, ledger *progress.Store, sessions *session.Store, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		catalog:  catalogStore,
		ledger:   ledger,
		sessions: sessions,
		logger:   logging.Component(logger, "queue"),
		ttl:      defaultSessionTTL,
		now:      time.Now,
		newID:    uuid.NewString,
		locks:    newContextLocks(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start opens a queue session for the user's filter criteria. The
// candidate sequence (matched cases minus settled ones) is frozen into
// the session; earlier sessions for the same context are replaced.
// When nothing matches, no session is created.
func (m *Manager) Start(ctx context.Context, userID string, criteria filterctx.Criteria) (*QueueState, error) {
	scope := filterctx.Compute(criteria).Key()
	unlock := m.locks.lock(userID, scope)
	defer unlock()

	records, err := m.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	matched := match.Cases(criteria, records)
	if len(matched) == 0 {
		m.logger.Info("queue start matched nothing",
			slog.String(logging.FieldUserID, userID),
			slog.String(logging.FieldScope, scope))
		return &QueueState{Position: positionUnavailable, Message: MessageNoMatches}, nil
	}

	excluded, err := m.ledger.ExcludedCaseIDs(ctx, userID, scope)
	if err != nil {
		return nil, err
	}
	candidates := make([]*catalog.Case, 0, len(matched))
	for _, record := range matched {
		if _, settled := excluded[record.ID]; settled {
			continue
		}
		candidates = append(candidates, record)
	}

	now := m.now()
	sess := &session.Session{
		ID:        m.newID(),
		UserID:    userID,
		Scope:     scope,
		Criteria:  criteria,
		CaseIDs:   match.IDs(candidates),
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.sessions.Put(ctx, sess); err != nil {
		return nil, err
	}
	if err := m.sessions.PurgeContext(ctx, userID, scope, sess.ID); err != nil {
		return nil, err
	}

	current, position, err := m.resolveStart(ctx, userID, scope, sess, candidates)
	if err != nil {
		return nil, err
	}

	state := &QueueState{
		SessionID: sess.ID,
		Current:   current,
		Position:  position,
		Total:     len(candidates),
	}
	if current == nil {
		state.Message = MessageAllSettled
	}
	m.logger.Info("queue session started",
		slog.String(logging.FieldUserID, userID),
		slog.String(logging.FieldSessionID, sess.ID),
		slog.String(logging.FieldScope, scope),
		slog.Int("total", state.Total),
		slog.Int("position", state.Position))
	return state, nil
}

// resolveStart picks the case a fresh session presents first. An
// in-progress case keeps its natural position in the candidate
// sequence; it is not moved to the front.
func (m *Manager) resolveStart(ctx context.Context, userID, scope string, sess *session.Session, candidates []*catalog.Case) (*catalog.Case, int, error) {
	if len(candidates) == 0 {
		// Everything matched is settled. Clear any dangling active record.
		if err := m.ledger.DemoteStaleInProgress(ctx, userID, scope, ""); err != nil {
			return nil, positionEndOfQueue, err
		}
		return nil, positionEndOfQueue, nil
	}

	active, err := m.ledger.FindActiveInProgress(ctx, userID, scope)
	if err != nil {
		return nil, positionUnavailable, err
	}
	index := 0
	if active != nil {
		if i := indexOf(sess.CaseIDs, active.CaseID); i >= 0 {
			index = i
		}
	}

	record := candidates[index]
	if err := m.ledger.UpsertStatus(ctx, userID, record.ID, scope, progress.StatusInProgress, sess.ID); err != nil {
		return nil, positionUnavailable, err
	}
	return record, index, nil
}

// Advance moves the session to its next unsettled case, optionally
// recording a status for the case being left. The walk resumes after
// the scope's active case when one exists, otherwise after
// previousCaseID, otherwise from the front of the frozen sequence.
func (m *Manager) Advance(ctx context.Context, userID, sessionID, previousCaseID, previousStatus string) (*QueueState, error) {
	sess, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.UserID != userID {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}

	unlock := m.locks.lock(userID, sess.Scope)
	defer unlock()

	if previousStatus != "" {
		status, err := progress.ParseStatus(previousStatus)
		if err != nil || status == progress.StatusInProgress {
			return nil, fmt.Errorf("%w: %q cannot be recorded on advance", ErrInvalidStatus, previousStatus)
		}
		if previousCaseID == "" {
			return nil, fmt.Errorf("%w: previous case id required with a status", ErrInvalidStatus)
		}
		if err := m.ledger.UpsertStatus(ctx, userID, previousCaseID, sess.Scope, status, sess.ID); err != nil {
			return nil, err
		}
	}

	startIndex, err := m.resumeIndex(ctx, userID, sess, previousCaseID)
	if err != nil {
		return nil, err
	}
	excluded, err := m.ledger.ExcludedCaseIDs(ctx, userID, sess.Scope)
	if err != nil {
		return nil, err
	}

	for i := startIndex; i < len(sess.CaseIDs); i++ {
		caseID := sess.CaseIDs[i]
		if _, settled := excluded[caseID]; settled {
			continue
		}
		record, err := m.catalog.GetByID(ctx, caseID)
		if err != nil {
			return nil, err
		}
		if record == nil {
			// Case removed from the catalog after the session froze.
			continue
		}
		if err := m.ledger.UpsertStatus(ctx, userID, caseID, sess.Scope, progress.StatusInProgress, sess.ID); err != nil {
			return nil, err
		}
		m.logger.Debug("queue advanced",
			slog.String(logging.FieldUserID, userID),
			slog.String(logging.FieldSessionID, sess.ID),
			slog.String(logging.FieldCaseID, caseID),
			slog.Int("position", i))
		return &QueueState{
			SessionID: sess.ID,
			Current:   record,
			Position:  i,
			Total:     len(sess.CaseIDs),
		}, nil
	}

	if err := m.ledger.DemoteStaleInProgress(ctx, userID, sess.Scope, ""); err != nil {
		return nil, err
	}
	m.logger.Info("queue exhausted",
		slog.String(logging.FieldUserID, userID),
		slog.String(logging.FieldSessionID, sess.ID))
	return &QueueState{
		SessionID: sess.ID,
		Position:  positionEndOfQueue,
		Total:     len(sess.CaseIDs),
		Message:   MessageQueueDone,
	}, nil
}

func (m *Manager) resumeIndex(ctx context.Context, userID string, sess *session.Session, previousCaseID string) (int, error) {
	active, err := m.ledger.FindActiveInProgress(ctx, userID, sess.Scope)
	if err != nil {
		return 0, err
	}
	if active != nil {
		if i := indexOf(sess.CaseIDs, active.CaseID); i >= 0 {
			return i + 1, nil
		}
	}
	if previousCaseID != "" {
		if i := indexOf(sess.CaseIDs, previousCaseID); i >= 0 {
			return i + 1, nil
		}
	}
	return 0, nil
}

// MarkStatus records a terminal decision for a case, independent of
// any session walk. Nil or empty criteria record the decision in the
// global context, which settles the case for every filter context and
// demotes any in-progress record it holds elsewhere.
func (m *Manager) MarkStatus(ctx context.Context, userID, caseID, statusValue string, criteria filterctx.Criteria, sessionID string) (*progress.Record, error) {
	status, err := progress.ParseStatus(statusValue)
	if err != nil || !status.IsTerminal() {
		return nil, fmt.Errorf("%w: %q (expected completed or skipped)", ErrInvalidStatus, statusValue)
	}

	record, err := m.catalog.GetByID(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", ErrCaseNotFound, caseID)
	}

	fp := filterctx.Compute(criteria)
	scope := fp.Key()
	unlock := m.locks.lock(userID, scope)
	defer unlock()

	if err := m.ledger.UpsertStatus(ctx, userID, caseID, scope, status, sessionID); err != nil {
		return nil, err
	}
	if fp.IsGlobal() {
		if err := m.ledger.DemoteInProgressAllScopes(ctx, userID, caseID); err != nil {
			return nil, err
		}
	}

	stored, err := m.ledger.FindStatus(ctx, userID, caseID, scope)
	if err != nil {
		return nil, err
	}
	m.logger.Info("case status recorded",
		slog.String(logging.FieldUserID, userID),
		slog.String(logging.FieldCaseID, caseID),
		slog.String(logging.FieldScope, scope),
		slog.String("status", string(status)))
	return stored, nil
}

// SweepExpiredSessions removes sessions past their expiry.
func (m *Manager) SweepExpiredSessions(ctx context.Context) (int64, error) {
	removed, err := m.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		m.logger.Info("expired sessions swept", slog.Int64("removed", removed))
	}
	return removed, nil
}

func indexOf(ids []string, id string) int {
	for i, candidate := range ids {
		if candidate == id {
			return i
		}
	}
	return -1
}
