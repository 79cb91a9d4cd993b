// Package sqlitestore is a records.Store on SQLite via mattn/go-sqlite3.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ggoodman/mcp-context-go/records"
	_ "github.com/mattn/go-sqlite3"
)

// Store implements records.Store using SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ records.Store = (*Store)(nil)

// Open opens dsn and runs migrations. An in-memory dsn is pinned to a single
// connection so every query sees the same database.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			organization TEXT NOT NULL,
			object_id TEXT NOT NULL,
			grp TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			content_type TEXT NOT NULL DEFAULT '',
			owner TEXT NOT NULL DEFAULT '',
			public INTEGER NOT NULL DEFAULT 0,
			content BLOB,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (organization, object_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_name ON documents(organization, name, object_id)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_group ON documents(organization, grp, name, object_id)`,
		`CREATE TABLE IF NOT EXISTS chats (
			organization TEXT NOT NULL,
			name TEXT NOT NULL,
			object_id TEXT NOT NULL,
			owner TEXT NOT NULL DEFAULT '',
			messages TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (organization, name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chats_object ON chats(organization, object_id)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const documentColumns = `organization, object_id, grp, name, description, content_type, owner, public, content, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*records.Document, error) {
	var d records.Document
	var updated int64
	if err := row.Scan(&d.Organization, &d.ObjectID, &d.Group, &d.Name, &d.Description,
		&d.ContentType, &d.Owner, &d.Public, &d.Content, &updated); err != nil {
		return nil, err
	}
	d.UpdatedAt = time.Unix(0, updated).UTC()
	return &d, nil
}

func (s *Store) ListDocuments(ctx context.Context, org, group string, offset, limit int) ([]*records.Document, error) {
	group = records.NormalizeGroup(group)
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = -1
	}

	var rows *sql.Rows
	var err error
	if group == "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+documentColumns+` FROM documents WHERE organization = ?
			ORDER BY name, object_id LIMIT ? OFFSET ?`, org, limit, offset)
	} else {
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM documents WHERE organization = ? AND grp = ?)`,
			org, group).Scan(&exists); err != nil {
			return nil, fmt.Errorf("failed to check group %s: %w", group, err)
		}
		if !exists {
			return nil, fmt.Errorf("group %s: %w", group, records.ErrNotFound)
		}
		rows, err = s.db.QueryContext(ctx,
			`SELECT `+documentColumns+` FROM documents WHERE organization = ? AND grp = ?
			ORDER BY name, object_id LIMIT ? OFFSET ?`, org, group, limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	out := make([]*records.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) GetDocument(ctx context.Context, org, objectID string) (*records.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE organization = ? AND object_id = ?`,
		org, objectID)
	d, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", objectID, records.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", objectID, err)
	}
	return d, nil
}

func (s *Store) PutDocument(ctx context.Context, doc *records.Document) error {
	if err := records.PrepareDocument(doc, s.now()); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(organization, object_id) DO UPDATE SET
			grp = excluded.grp,
			name = excluded.name,
			description = excluded.description,
			content_type = excluded.content_type,
			owner = excluded.owner,
			public = excluded.public,
			content = excluded.content,
			updated_at = excluded.updated_at`,
		doc.Organization, doc.ObjectID, doc.Group, doc.Name, doc.Description,
		doc.ContentType, doc.Owner, doc.Public, doc.Content, doc.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to put document %s: %w", doc.ObjectID, err)
	}
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, org, objectID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM documents WHERE organization = ? AND object_id = ?`, org, objectID)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", objectID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("document %s: %w", objectID, records.ErrNotFound)
	}
	return nil
}

func (s *Store) FindChat(ctx context.Context, org, name string) (*records.Chat, error) {
	return s.chat(ctx, name, `SELECT organization, name, object_id, owner, messages, updated_at
		FROM chats WHERE organization = ? AND name = ?`, org, name)
}

func (s *Store) GetChat(ctx context.Context, org, objectID string) (*records.Chat, error) {
	return s.chat(ctx, objectID, `SELECT organization, name, object_id, owner, messages, updated_at
		FROM chats WHERE organization = ? AND object_id = ?`, org, objectID)
}

func (s *Store) chat(ctx context.Context, ref, query string, args ...any) (*records.Chat, error) {
	var c records.Chat
	var messages string
	var updated int64
	err := s.db.QueryRowContext(ctx, query, args...).
		Scan(&c.Organization, &c.Name, &c.ObjectID, &c.Owner, &messages, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("chat %s: %w", ref, records.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chat %s: %w", ref, err)
	}
	if err := json.Unmarshal([]byte(messages), &c.Messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal chat messages: %w", err)
	}
	c.UpdatedAt = time.Unix(0, updated).UTC()
	return &c, nil
}

func (s *Store) PutChat(ctx context.Context, chat *records.Chat) error {
	if err := records.PrepareChat(chat, s.now()); err != nil {
		return err
	}
	messages, err := json.Marshal(chat.Messages)
	if err != nil {
		return fmt.Errorf("failed to marshal chat messages: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chats (organization, name, object_id, owner, messages, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(organization, name) DO UPDATE SET
			object_id = excluded.object_id,
			owner = excluded.owner,
			messages = excluded.messages,
			updated_at = excluded.updated_at`,
		chat.Organization, chat.Name, chat.ObjectID, chat.Owner, string(messages), chat.UpdatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to put chat %s: %w", chat.Name, err)
	}
	return nil
}
