// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"context"
	"testing"

	"caseflow/internal/catalog"
	"caseflow/internal/config"
	"caseflow/internal/storage"
)

// Token authenticates TokenUser in configs built by NewConfig.
const (
	Token     = "test-token"
	TokenUser = "alice"
)

// NewConfig returns a validated config rooted in temp directories with
// a single known bearer token.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Auth.Tokens = map[string]string{Token: TokenUser}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	return &cfg
}

// MustOpenDB opens the config's database and closes it on cleanup.
func MustOpenDB(t *testing.T, cfg *config.Config) *storage.DB {
	t.Helper()
	db, err := storage.Open(context.Background(), cfg.DatabasePath())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// SeedCase inserts a catalog case with the given attributes.
func SeedCase(t *testing.T, db *storage.DB, id string, attrs map[string]string) {
	t.Helper()
	store := catalog.NewStore(db)
	if err := store.Put(context.Background(), &catalog.Case{ID: id, Title: "Case " + id, Attributes: attrs}); err != nil {
		t.Fatalf("seed case %s: %v", id, err)
	}
}
