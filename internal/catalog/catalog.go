// Package catalog stores the case records that review queues draw from.
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"caseflow/internal/storage"
)

// Case is a single reviewable record. Attributes carry the flat
// key/value pairs that filter criteria match against; Content is the
// opaque payload returned to clients.
type Case struct {
	ID         string
	Title      string
	Attributes map[string]string
	Content    json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store provides catalog persistence.
type Store struct {
	db  *storage.DB
	now func() time.Time
}

// NewStore builds a catalog store over the shared database.
func NewStore(db *storage.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// WithClock overrides the store clock. Intended for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Put inserts or updates a case record.
func (s *Store) Put(ctx context.Context, record *Case) error {
	if record == nil || strings.TrimSpace(record.ID) == "" {
		return fmt.Errorf("catalog: case id must not be empty")
	}

	attrs := record.Attributes
	if attrs == nil {
		attrs = map[string]string{}
	}
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("catalog: encode attributes for %s: %w", record.ID, err)
	}
	content := record.Content
	if len(content) == 0 {
		content = json.RawMessage("{}")
	}

	now := storage.FormatTime(s.now())
	_, err = s.db.ExecRetry(ctx, `
INSERT INTO cases (id, title, attributes_json, content_json, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    title = excluded.title,
    attributes_json = excluded.attributes_json,
    content_json = excluded.content_json,
    updated_at = excluded.updated_at`,
		record.ID, record.Title, string(attrsJSON), string(content), now, now)
	if err != nil {
		return fmt.Errorf("catalog: store case %s: %w", record.ID, err)
	}
	return nil
}

// GetByID returns the case with the given id, or nil when absent.
func (s *Store) GetByID(ctx context.Context, id string) (*Case, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, title, attributes_json, content_json, created_at, updated_at
FROM cases WHERE id = ?`, id)

	record, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: load case %s: %w", id, err)
	}
	return record, nil
}

// List returns every case ordered by id.
func (s *Store) List(ctx context.Context) ([]*Case, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, title, attributes_json, content_json, created_at, updated_at
FROM cases ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list cases: %w", err)
	}
	defer rows.Close()

	var records []*Case
	for rows.Next() {
		record, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan case: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate cases: %w", err)
	}
	return records, nil
}

// Count returns the number of stored cases.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM cases").Scan(&count); err != nil {
		return 0, fmt.Errorf("catalog: count cases: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*Case, error) {
	var (
		record    Case
		attrsJSON string
		content   string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&record.ID, &record.Title, &attrsJSON, &content, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(attrsJSON), &record.Attributes); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	record.Content = json.RawMessage(content)

	var err error
	if record.CreatedAt, err = storage.ParseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if record.UpdatedAt, err = storage.ParseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &record, nil
}

// caseDocument is the on-disk import shape. Both the flat form and the
// legacy export form (case_id plus case_metadata) are accepted.
type caseDocument struct {
	ID           string          `json:"id"`
	CaseID       string          `json:"case_id"`
	Title        string          `json:"title"`
	Attributes   map[string]any  `json:"attributes"`
	CaseMetadata map[string]any  `json:"case_metadata"`
	Content      json.RawMessage `json:"content"`
}

// Decode parses a JSON array of case documents ready for Put.
func Decode(data []byte) ([]*Case, error) {
	var docs []caseDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("catalog: decode case documents: %w", err)
	}

	records := make([]*Case, 0, len(docs))
	for i, doc := range docs {
		id := strings.TrimSpace(doc.ID)
		if id == "" {
			id = strings.TrimSpace(doc.CaseID)
		}
		if id == "" {
			return nil, fmt.Errorf("catalog: document %d has no id", i)
		}

		rawAttrs := doc.Attributes
		if rawAttrs == nil {
			rawAttrs = doc.CaseMetadata
		}
		attrs, err := flattenAttributes(rawAttrs)
		if err != nil {
			return nil, fmt.Errorf("catalog: document %s: %w", id, err)
		}

		records = append(records, &Case{
			ID:         id,
			Title:      doc.Title,
			Attributes: attrs,
			Content:    doc.Content,
		})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func flattenAttributes(raw map[string]any) (map[string]string, error) {
	attrs := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
			attrs[key] = ""
		case string:
			attrs[key] = v
		case bool:
			attrs[key] = strconv.FormatBool(v)
		case float64:
			attrs[key] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			return nil, fmt.Errorf("attribute %q is not a scalar", key)
		}
	}
	return attrs, nil
}
