// Package memory is an in-process records.Store. It can seed itself from a
// directory tree and follow changes to it with fsnotify.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ggoodman/mcp-context-go/records"
)

var _ records.Store = (*Store)(nil)

type docKey struct{ org, id string }

type chatKey struct{ org, name string }

// Store keeps documents and chats in maps guarded by a single RWMutex.
// Values are cloned on the way in and on the way out.
type Store struct {
	log *slog.Logger
	now func() time.Time

	mu    sync.RWMutex
	docs  map[docKey]*records.Document
	chats map[chatKey]*records.Chat
	// files maps an absolute source path to the document seeded from it.
	files map[string]docKey
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by directory loading and watching.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// WithClock overrides the time source used for UpdatedAt defaults.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		log:   slog.Default(),
		now:   time.Now,
		docs:  make(map[docKey]*records.Document),
		chats: make(map[chatKey]*records.Chat),
		files: make(map[string]docKey),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) ListDocuments(ctx context.Context, org, group string, offset, limit int) ([]*records.Document, error) {
	group = records.NormalizeGroup(group)

	s.mu.RLock()
	var matched []*records.Document
	for k, d := range s.docs {
		if k.org != org {
			continue
		}
		if group != "" && d.Group != group {
			continue
		}
		matched = append(matched, d)
	}
	s.mu.RUnlock()

	if group != "" && len(matched) == 0 {
		return nil, fmt.Errorf("group %s: %w", group, records.ErrNotFound)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Name != matched[j].Name {
			return matched[i].Name < matched[j].Name
		}
		return matched[i].ObjectID < matched[j].ObjectID
	})

	out := make([]*records.Document, 0)
	if offset < 0 {
		offset = 0
	}
	for i := offset; i < len(matched); i++ {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, matched[i].Clone())
	}
	return out, nil
}

func (s *Store) GetDocument(ctx context.Context, org, objectID string) (*records.Document, error) {
	s.mu.RLock()
	d, ok := s.docs[docKey{org, objectID}]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("document %s: %w", objectID, records.ErrNotFound)
	}
	return d.Clone(), nil
}

func (s *Store) PutDocument(ctx context.Context, doc *records.Document) error {
	if err := records.PrepareDocument(doc, s.now()); err != nil {
		return err
	}
	s.mu.Lock()
	s.docs[docKey{doc.Organization, doc.ObjectID}] = doc.Clone()
	s.mu.Unlock()
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, org, objectID string) error {
	k := docKey{org, objectID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[k]; !ok {
		return fmt.Errorf("document %s: %w", objectID, records.ErrNotFound)
	}
	delete(s.docs, k)
	for p, fk := range s.files {
		if fk == k {
			delete(s.files, p)
		}
	}
	return nil
}

func (s *Store) FindChat(ctx context.Context, org, name string) (*records.Chat, error) {
	s.mu.RLock()
	c, ok := s.chats[chatKey{org, name}]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("chat %s: %w", name, records.ErrNotFound)
	}
	return c.Clone(), nil
}

func (s *Store) GetChat(ctx context.Context, org, objectID string) (*records.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, c := range s.chats {
		if k.org == org && c.ObjectID == objectID {
			return c.Clone(), nil
		}
	}
	return nil, fmt.Errorf("chat %s: %w", objectID, records.ErrNotFound)
}

func (s *Store) PutChat(ctx context.Context, chat *records.Chat) error {
	if err := records.PrepareChat(chat, s.now()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, c := range s.chats {
		if k.org == chat.Organization && c.ObjectID == chat.ObjectID && k.name != chat.Name {
			delete(s.chats, k)
		}
	}
	s.chats[chatKey{chat.Organization, chat.Name}] = chat.Clone()
	return nil
}

// Close drops every record.
func (s *Store) Close() error {
	s.mu.Lock()
	clear(s.docs)
	clear(s.chats)
	clear(s.files)
	s.mu.Unlock()
	return nil
}
