package session_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"caseflow/internal/filterctx"
	"caseflow/internal/session"
	"caseflow/internal/storage"
)

func openStore(t *testing.T) *session.Store {
	t.Helper()
	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "caseflow.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return session.NewStore(db)
}

func TestPutAndGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	now := time.Now()

	criteria := filterctx.Criteria{"modality": "CT"}
	sess := &session.Session{
		ID:        "sess-1",
		UserID:    "alice",
		Scope:     filterctx.Compute(criteria).Key(),
		Criteria:  criteria,
		CaseIDs:   []string{"case-1", "case-2"},
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	if err := store.Put(ctx, sess); err != nil {
		t.Fatalf("Put: %v", err)
	}

	loaded, err := store.Get(ctx, "sess-1")
	if err != nil || loaded == nil {
		t.Fatalf("Get: %v %v", loaded, err)
	}
	if loaded.UserID != "alice" || len(loaded.CaseIDs) != 2 || loaded.CaseIDs[1] != "case-2" {
		t.Fatalf("unexpected session: %+v", loaded)
	}
	if loaded.Criteria["modality"] != "CT" {
		t.Fatalf("criteria not preserved: %+v", loaded.Criteria)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	loaded, err := openStore(t).Get(context.Background(), "absent")
	if err != nil || loaded != nil {
		t.Fatalf("expected nil, got %+v err=%v", loaded, err)
	}
}

func TestGetExpiredSessionIsRemoved(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	current := time.Now()
	store.WithClock(func() time.Time { return current })

	sess := &session.Session{
		ID:        "sess-1",
		UserID:    "alice",
		CaseIDs:   []string{"case-1"},
		CreatedAt: current,
		ExpiresAt: current.Add(time.Minute),
	}
	if err := store.Put(ctx, sess); err != nil {
		t.Fatalf("Put: %v", err)
	}

	current = current.Add(2 * time.Minute)
	loaded, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected expired session to vanish, got %+v", loaded)
	}
}

func TestPurgeContextKeepsReplacement(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	now := time.Now()
	scope := filterctx.Compute(filterctx.Criteria{"modality": "CT"}).Key()

	for _, id := range []string{"old-1", "old-2", "fresh"} {
		err := store.Put(ctx, &session.Session{
			ID: id, UserID: "alice", Scope: scope,
			CreatedAt: now, ExpiresAt: now.Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("Put %s: %v", id, err)
		}
	}
	err := store.Put(ctx, &session.Session{
		ID: "other-user", UserID: "bob", Scope: scope,
		CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Put other-user: %v", err)
	}

	if err := store.PurgeContext(ctx, "alice", scope, "fresh"); err != nil {
		t.Fatalf("PurgeContext: %v", err)
	}

	for id, want := range map[string]bool{"old-1": false, "old-2": false, "fresh": true, "other-user": true} {
		loaded, err := store.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get %s: %v", id, err)
		}
		if (loaded != nil) != want {
			t.Fatalf("session %s presence = %v, want %v", id, loaded != nil, want)
		}
	}
}

func TestDeleteExpired(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	current := time.Now()
	store.WithClock(func() time.Time { return current })

	for id, ttl := range map[string]time.Duration{"live": time.Hour, "dead": time.Minute} {
		err := store.Put(ctx, &session.Session{
			ID: id, UserID: "alice",
			CreatedAt: current, ExpiresAt: current.Add(ttl),
		})
		if err != nil {
			t.Fatalf("Put %s: %v", id, err)
		}
	}

	current = current.Add(30 * time.Minute)
	removed, err := store.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if loaded, err := store.Get(ctx, "live"); err != nil || loaded == nil {
		t.Fatalf("live session must survive: %v %v", loaded, err)
	}
}
