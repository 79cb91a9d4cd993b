// Package records is the catalogue behind the production providers:
// documents grouped by organization and group path, chat sessions, and a
// term-overlap search over document text.
//
// Store has three implementations: records/memory, records/redisstore and
// records/sqlitestore.
package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for a missing document, chat or group.
	ErrNotFound = errors.New("record not found")
	// ErrInvalid is returned when a record lacks its identifying fields.
	ErrInvalid = errors.New("invalid record")
)

// Document is a stored file-like record.
type Document struct {
	Organization string `json:"organization"`
	// Group is the slash-separated group path, e.g. "/Home/Notes".
	Group       string    `json:"group"`
	ObjectID    string    `json:"objectId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ContentType string    `json:"contentType,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	Public      bool      `json:"public,omitempty"`
	Content     []byte    `json:"content,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Clone returns a deep copy.
func (d *Document) Clone() *Document {
	c := *d
	c.Content = append([]byte(nil), d.Content...)
	return &c
}

// IsText reports whether the content should be served as text.
func (d *Document) IsText() bool {
	return IsTextContentType(d.ContentType)
}

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat is a stored chat session, addressed by name within an organization.
type Chat struct {
	Organization string    `json:"organization"`
	ObjectID     string    `json:"objectId"`
	Name         string    `json:"name"`
	Owner        string    `json:"owner,omitempty"`
	Messages     []Message `json:"messages"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Clone returns a deep copy.
func (c *Chat) Clone() *Chat {
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	return &out
}

// Store persists documents and chats.
type Store interface {
	// ListDocuments returns documents of org ordered by name then object id.
	// An empty group lists the whole organization; a non-empty group that
	// holds no documents yields ErrNotFound. limit <= 0 means no limit.
	ListDocuments(ctx context.Context, org, group string, offset, limit int) ([]*Document, error)
	GetDocument(ctx context.Context, org, objectID string) (*Document, error)
	// PutDocument inserts or replaces a document, assigning an object id
	// when it has none.
	PutDocument(ctx context.Context, doc *Document) error
	DeleteDocument(ctx context.Context, org, objectID string) error
	FindChat(ctx context.Context, org, name string) (*Chat, error)
	GetChat(ctx context.Context, org, objectID string) (*Chat, error)
	PutChat(ctx context.Context, chat *Chat) error
	Close() error
}

// PrepareDocument validates doc and fills defaults before a write.
func PrepareDocument(doc *Document, now time.Time) error {
	if doc == nil || doc.Organization == "" {
		return fmt.Errorf("%w: document needs an organization", ErrInvalid)
	}
	if doc.ObjectID == "" {
		doc.ObjectID = uuid.NewString()
	}
	if doc.Name == "" {
		doc.Name = doc.ObjectID
	}
	doc.Group = NormalizeGroup(doc.Group)
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}
	return nil
}

// PrepareChat validates chat and fills defaults before a write.
func PrepareChat(chat *Chat, now time.Time) error {
	if chat == nil || chat.Organization == "" || chat.Name == "" {
		return fmt.Errorf("%w: chat needs an organization and a name", ErrInvalid)
	}
	if chat.ObjectID == "" {
		chat.ObjectID = uuid.NewString()
	}
	if chat.Messages == nil {
		chat.Messages = []Message{}
	}
	if chat.UpdatedAt.IsZero() {
		chat.UpdatedAt = now
	}
	return nil
}

// NormalizeGroup returns group with a single leading slash and no trailing
// one. The empty string stays empty.
func NormalizeGroup(group string) string {
	group = strings.Trim(group, "/")
	if group == "" {
		return ""
	}
	return "/" + group
}

// IsTextContentType reports whether ct is served as text rather than base64.
func IsTextContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.HasPrefix(ct, "text/") ||
		strings.Contains(ct, "json") ||
		strings.Contains(ct, "xml") ||
		strings.Contains(ct, "javascript") ||
		strings.Contains(ct, "csv")
}
