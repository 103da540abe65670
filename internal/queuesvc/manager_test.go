package queuesvc_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"caseflow/internal/catalog"
	"caseflow/internal/filterctx"
	"caseflow/internal/logging"
	"caseflow/internal/progress"
	"caseflow/internal/queuesvc"
	"caseflow/internal/session"
	"caseflow/internal/storage"
)

type fixture struct {
	manager *queuesvc.Manager
	catalog *catalog.Store
	ledger  *progress.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "caseflow.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	catalogStore := catalog.NewStore(db)
	ledger := progress.NewStore(db)
	sessions := session.NewStore(db)
	manager := queuesvc.NewManager(catalogStore, ledger, sessions, logging.NewNop())
	return &fixture{manager: manager, catalog: catalogStore, ledger: ledger}
}

func (f *fixture) seed(t *testing.T, id string, attrs map[string]string) {
	t.Helper()
	if err := f.catalog.Put(context.Background(), &catalog.Case{ID: id, Title: "Case " + id, Attributes: attrs}); err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func (f *fixture) seedModalities(t *testing.T) {
	f.seed(t, "case-1", map[string]string{"modality": "CT"})
	f.seed(t, "case-2", map[string]string{"modality": "CT"})
	f.seed(t, "case-3", map[string]string{"modality": "MR"})
	f.seed(t, "case-4", map[string]string{"modality": "CT"})
}

func TestStartAndWalkQueueToCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedModalities(t)
	criteria := filterctx.Criteria{"modality": "CT"}

	state, err := f.manager.Start(ctx, "alice", criteria)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if state.SessionID == "" || state.Total != 3 {
		t.Fatalf("unexpected start state: %+v", state)
	}
	if state.Current == nil || state.Current.ID != "case-1" || state.Position != 0 {
		t.Fatalf("expected case-1 at index 0, got %+v", state)
	}

	state, err = f.manager.Advance(ctx, "alice", state.SessionID, "case-1", "completed")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if state.Current == nil || state.Current.ID != "case-2" || state.Position != 1 {
		t.Fatalf("expected case-2 at index 1, got %+v", state)
	}

	state, err = f.manager.Advance(ctx, "alice", state.SessionID, "case-2", "skipped")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if state.Current == nil || state.Current.ID != "case-4" || state.Position != 2 {
		t.Fatalf("expected case-4 at index 2, got %+v", state)
	}

	state, err = f.manager.Advance(ctx, "alice", state.SessionID, "case-4", "completed")
	if err != nil {
		t.Fatalf("Advance to end: %v", err)
	}
	if state.Current != nil || state.Position != -1 || state.Total != 3 {
		t.Fatalf("expected end of queue, got %+v", state)
	}
	if state.Message != queuesvc.MessageQueueDone {
		t.Fatalf("expected end-of-queue message, got %q", state.Message)
	}

	active, err := f.ledger.FindActiveInProgress(ctx, "alice", filterctx.Compute(criteria).Key())
	if err != nil {
		t.Fatalf("FindActiveInProgress: %v", err)
	}
	if active != nil {
		t.Fatalf("no case should stay active after exhaustion: %+v", active)
	}
}

func TestStartWithNoMatchesCreatesNoSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "case-1", map[string]string{"modality": "CT"})

	state, err := f.manager.Start(ctx, "alice", filterctx.Criteria{"modality": "XA"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if state.SessionID != "" || state.Current != nil || state.Total != 0 {
		t.Fatalf("expected empty state, got %+v", state)
	}
	if state.Message != queuesvc.MessageNoMatches {
		t.Fatalf("expected no-match message, got %q", state.Message)
	}
}

func TestStartResumesInProgressCaseAtNaturalPosition(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedModalities(t)
	criteria := filterctx.Criteria{"modality": "CT"}

	first, err := f.manager.Start(ctx, "alice", criteria)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	state, err := f.manager.Advance(ctx, "alice", first.SessionID, "case-1", "completed")
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if state.Current.ID != "case-2" {
		t.Fatalf("expected case-2 active, got %+v", state)
	}

	// A fresh start keeps the active case where it sits in the new
	// sequence instead of promoting it to the front.
	restarted, err := f.manager.Start(ctx, "alice", criteria)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if restarted.SessionID == first.SessionID {
		t.Fatal("restart must mint a new session")
	}
	if restarted.Current == nil || restarted.Current.ID != "case-2" {
		t.Fatalf("expected resumed case-2, got %+v", restarted)
	}
	if restarted.Total != 2 || restarted.Position != 0 {
		t.Fatalf("settled cases leave the candidate sequence: %+v", restarted)
	}

	// The replaced session is gone.
	if _, err := f.manager.Advance(ctx, "alice", first.SessionID, "", ""); !errors.Is(err, queuesvc.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for replaced session, got %v", err)
	}
}

func TestStartWhenEverythingSettled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "case-1", map[string]string{"modality": "CT"})
	criteria := filterctx.Criteria{"modality": "CT"}

	if _, err := f.manager.MarkStatus(ctx, "alice", "case-1", "completed", criteria, ""); err != nil {
		t.Fatalf("MarkStatus: %v", err)
	}

	state, err := f.manager.Start(ctx, "alice", criteria)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if state.SessionID == "" {
		t.Fatal("session is still created when matches exist")
	}
	if state.Current != nil || state.Position != -1 || state.Total != 0 {
		t.Fatalf("expected settled state, got %+v", state)
	}
	if state.Message != queuesvc.MessageAllSettled {
		t.Fatalf("expected settled message, got %q", state.Message)
	}
}

func TestScopedCompletionDoesNotLeakAcrossContexts(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "case-1", map[string]string{"modality": "CT", "region": "head"})
	ctCriteria := filterctx.Criteria{"modality": "CT"}
	headCriteria := filterctx.Criteria{"region": "head"}

	if _, err := f.manager.MarkStatus(ctx, "alice", "case-1", "completed", ctCriteria, ""); err != nil {
		t.Fatalf("MarkStatus: %v", err)
	}

	state, err := f.manager.Start(ctx, "alice", headCriteria)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if state.Current == nil || state.Current.ID != "case-1" {
		t.Fatalf("completion in another context must not exclude the case: %+v", state)
	}
}

func TestGlobalSkipExcludesEverywhere(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "case-1", map[string]string{"modality": "CT"})
	f.seed(t, "case-2", map[string]string{"modality": "CT"})
	criteria := filterctx.Criteria{"modality": "CT"}

	state, err := f.manager.Start(ctx, "alice", criteria)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if state.Current.ID != "case-1" {
		t.Fatalf("expected case-1 active, got %+v", state)
	}

	// Global mark, no criteria: settles the case in every context and
	// demotes its in-progress record.
	if _, err := f.manager.MarkStatus(ctx, "alice", "case-1", "skipped", nil, ""); err != nil {
		t.Fatalf("global MarkStatus: %v", err)
	}

	record, err := f.ledger.FindStatus(ctx, "alice", "case-1", filterctx.Compute(criteria).Key())
	if err != nil {
		t.Fatalf("FindStatus: %v", err)
	}
	if record == nil || record.Status != progress.StatusViewed {
		t.Fatalf("in-progress record must demote on global mark: %+v", record)
	}

	restarted, err := f.manager.Start(ctx, "alice", criteria)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if restarted.Current == nil || restarted.Current.ID != "case-2" {
		t.Fatalf("globally skipped case must never be presented: %+v", restarted)
	}
}

func TestAdvanceValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "case-1", map[string]string{"modality": "CT"})
	criteria := filterctx.Criteria{"modality": "CT"}

	state, err := f.manager.Start(ctx, "alice", criteria)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := f.manager.Advance(ctx, "alice", "no-such-session", "", ""); !errors.Is(err, queuesvc.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := f.manager.Advance(ctx, "mallory", state.SessionID, "", ""); !errors.Is(err, queuesvc.ErrSessionNotFound) {
		t.Fatalf("foreign session must look absent, got %v", err)
	}
	if _, err := f.manager.Advance(ctx, "alice", state.SessionID, "case-1", "done"); !errors.Is(err, queuesvc.ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if _, err := f.manager.Advance(ctx, "alice", state.SessionID, "case-1", "in_progress_queue"); !errors.Is(err, queuesvc.ErrInvalidStatus) {
		t.Fatalf("in_progress_queue is not recordable on advance, got %v", err)
	}
}

func TestAdvanceAcceptsViewedAlias(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "case-1", map[string]string{"modality": "CT"})
	f.seed(t, "case-2", map[string]string{"modality": "CT"})
	criteria := filterctx.Criteria{"modality": "CT"}

	state, err := f.manager.Start(ctx, "alice", criteria)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	state, err = f.manager.Advance(ctx, "alice", state.SessionID, "case-1", "viewed")
	if err != nil {
		t.Fatalf("Advance with viewed: %v", err)
	}
	if state.Current == nil || state.Current.ID != "case-2" {
		t.Fatalf("expected case-2, got %+v", state)
	}

	record, err := f.ledger.FindStatus(ctx, "alice", "case-1", filterctx.Compute(criteria).Key())
	if err != nil || record == nil {
		t.Fatalf("FindStatus: %v %v", record, err)
	}
	if record.Status != progress.StatusViewed {
		t.Fatalf("viewed alias must record viewed_in_queue: %+v", record)
	}
}

func TestMarkStatusValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "case-1", map[string]string{"modality": "CT"})

	if _, err := f.manager.MarkStatus(ctx, "alice", "case-1", "viewed_in_queue", nil, ""); !errors.Is(err, queuesvc.ErrInvalidStatus) {
		t.Fatalf("only terminal statuses are markable, got %v", err)
	}
	if _, err := f.manager.MarkStatus(ctx, "alice", "ghost", "completed", nil, ""); !errors.Is(err, queuesvc.ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound, got %v", err)
	}
}

func TestMarkStatusStampsSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seed(t, "case-1", map[string]string{"modality": "CT"})
	criteria := filterctx.Criteria{"modality": "CT"}

	state, err := f.manager.Start(ctx, "alice", criteria)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	record, err := f.manager.MarkStatus(ctx, "alice", "case-1", "completed", criteria, state.SessionID)
	if err != nil {
		t.Fatalf("MarkStatus: %v", err)
	}
	if record.SessionID != state.SessionID {
		t.Fatalf("expected session stamp %s, got %q", state.SessionID, record.SessionID)
	}
	if record.Status != progress.StatusCompleted {
		t.Fatalf("unexpected status: %+v", record)
	}
}

func TestConcurrentStartsKeepSingleActiveCase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.seedModalities(t)
	criteria := filterctx.Criteria{"modality": "CT"}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.manager.Start(ctx, "alice", criteria); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Start: %v", err)
	}

	scope := filterctx.Compute(criteria).Key()
	records, err := f.ledger.ListForUser(ctx, "alice")
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	active := 0
	for _, record := range records {
		if record.Scope == scope && record.Status == progress.StatusInProgress {
			active++
		}
	}
	if active != 1 {
		t.Fatalf("expected exactly one active case, got %d (%s)", active, dump(records))
	}
}

func dump(records []*progress.Record) string {
	out := ""
	for _, record := range records {
		out += fmt.Sprintf("[%s %s %s]", record.CaseID, record.Scope, record.Status)
	}
	return out
}
