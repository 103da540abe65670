package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is the current schema version. Bump this when the schema
// changes; existing databases must be rebuilt from the catalog source.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database was created by an
// incompatible version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

func (db *DB) migrate(ctx context.Context) error {
	var tableExists int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("storage: check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return db.createSchema(ctx)
	}

	var version int
	err = db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("storage: read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("storage: database has schema version %d, expected %d: %w", version, schemaVersion, ErrSchemaMismatch)
	}
	return nil
}

func (db *DB) createSchema(ctx context.Context) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin schema transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("storage: create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("storage: record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit schema: %w", err)
	}
	return nil
}
