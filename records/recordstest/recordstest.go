// Package recordstest holds a conformance suite shared by every records.Store
// backend.
package recordstest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ggoodman/mcp-context-go/records"
	"github.com/google/go-cmp/cmp"
)

// StoreFactory creates an empty store for one subtest.
type StoreFactory func(t *testing.T) records.Store

// RunStoreTests runs the complete Store suite against factory.
func RunStoreTests(t *testing.T, factory StoreFactory) {
	t.Run("Documents_PutGetRoundTrip", func(t *testing.T) { testPutGet(t, factory) })
	t.Run("Documents_AssignsObjectID", func(t *testing.T) { testAssignsObjectID(t, factory) })
	t.Run("Documents_ReplaceMovesGroup", func(t *testing.T) { testReplaceMovesGroup(t, factory) })
	t.Run("Documents_ListOrderAndPaging", func(t *testing.T) { testListPaging(t, factory) })
	t.Run("Documents_ListUnknownGroup", func(t *testing.T) { testListUnknownGroup(t, factory) })
	t.Run("Documents_OrganizationIsolation", func(t *testing.T) { testOrgIsolation(t, factory) })
	t.Run("Documents_Delete", func(t *testing.T) { testDelete(t, factory) })
	t.Run("Documents_RejectsMissingOrganization", func(t *testing.T) { testRejectsInvalid(t, factory) })
	t.Run("Chats_PutFind", func(t *testing.T) { testChats(t, factory) })
}

var stamp = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func doc(org, group, id, name, body string) *records.Document {
	return &records.Document{
		Organization: org,
		Group:        group,
		ObjectID:     id,
		Name:         name,
		ContentType:  "text/plain",
		Owner:        "alice",
		Content:      []byte(body),
		UpdatedAt:    stamp,
	}
}

func mustPut(t *testing.T, s records.Store, docs ...*records.Document) {
	t.Helper()
	for _, d := range docs {
		if err := s.PutDocument(context.Background(), d); err != nil {
			t.Fatalf("PutDocument(%s): %v", d.ObjectID, err)
		}
	}
}

func ids(docs []*records.Document) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ObjectID)
	}
	return out
}

func testPutGet(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()

	want := doc("acme", "/Home/Notes", "d1", "notes.txt", "hello")
	want.Description = "scratch"
	want.Public = true
	mustPut(t, s, want)

	got, err := s.GetDocument(ctx, "acme", "d1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("document mismatch (-want +got):\n%s", diff)
	}

	got.Content[0] = 'J'
	again, _ := s.GetDocument(ctx, "acme", "d1")
	if string(again.Content) != "hello" {
		t.Fatalf("store shares content with callers: %q", again.Content)
	}

	if _, err := s.GetDocument(ctx, "acme", "nope"); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("missing document: expected ErrNotFound, got %v", err)
	}
}

func testAssignsObjectID(t *testing.T, factory StoreFactory) {
	s := factory(t)
	d := doc("acme", "/Home", "", "unnamed.txt", "x")
	mustPut(t, s, d)
	if d.ObjectID == "" {
		t.Fatalf("expected an object id to be assigned")
	}
	if _, err := s.GetDocument(context.Background(), "acme", d.ObjectID); err != nil {
		t.Fatalf("GetDocument(%s): %v", d.ObjectID, err)
	}
}

func testReplaceMovesGroup(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()
	mustPut(t, s, doc("acme", "/A", "d1", "one", "x"))
	mustPut(t, s, doc("acme", "/B", "d1", "uno", "y"))

	if _, err := s.ListDocuments(ctx, "acme", "/A", 0, 0); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("old group should be empty, got %v", err)
	}
	got, err := s.ListDocuments(ctx, "acme", "/B", 0, 0)
	if err != nil {
		t.Fatalf("ListDocuments(/B): %v", err)
	}
	if len(got) != 1 || got[0].Name != "uno" {
		t.Fatalf("unexpected listing: %+v", got)
	}
	all, _ := s.ListDocuments(ctx, "acme", "", 0, 0)
	if len(all) != 1 {
		t.Fatalf("replace duplicated the document: %v", ids(all))
	}
}

func testListPaging(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()
	mustPut(t, s,
		doc("acme", "/Home", "d3", "charlie", ""),
		doc("acme", "/Home", "d1", "alpha", ""),
		doc("acme", "/Work", "d2", "bravo", ""),
		doc("acme", "/Home", "d0", "alpha", ""),
	)

	tests := []struct {
		name          string
		group         string
		offset, limit int
		want          []string
	}{
		{"all", "", 0, 0, []string{"d0", "d1", "d2", "d3"}},
		{"first page", "", 0, 2, []string{"d0", "d1"}},
		{"second page", "", 2, 2, []string{"d2", "d3"}},
		{"past end", "", 10, 2, []string{}},
		{"group", "/Home", 0, 0, []string{"d0", "d1", "d3"}},
		{"group without slashes", "Home/", 1, 1, []string{"d1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListDocuments(ctx, "acme", tt.group, tt.offset, tt.limit)
			if err != nil {
				t.Fatalf("ListDocuments: %v", err)
			}
			if diff := cmp.Diff(tt.want, ids(got)); diff != "" {
				t.Fatalf("ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func testListUnknownGroup(t *testing.T, factory StoreFactory) {
	s := factory(t)
	_, err := s.ListDocuments(context.Background(), "acme", "/Nowhere", 0, 0)
	if !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	all, err := s.ListDocuments(context.Background(), "acme", "", 0, 0)
	if err != nil || len(all) != 0 {
		t.Fatalf("empty org listing: %v %v", all, err)
	}
}

func testOrgIsolation(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()
	mustPut(t, s, doc("acme", "/Home", "d1", "a", ""), doc("globex", "/Home", "d2", "b", ""))

	got, _ := s.ListDocuments(ctx, "acme", "", 0, 0)
	if diff := cmp.Diff([]string{"d1"}, ids(got)); diff != "" {
		t.Fatalf("acme listing (-want +got):\n%s", diff)
	}
	if _, err := s.GetDocument(ctx, "acme", "d2"); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("cross-org read: expected ErrNotFound, got %v", err)
	}
}

func testDelete(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()
	mustPut(t, s, doc("acme", "/Home", "d1", "a", ""))

	if err := s.DeleteDocument(ctx, "acme", "d1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if _, err := s.GetDocument(ctx, "acme", "d1"); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("deleted document still readable: %v", err)
	}
	if _, err := s.ListDocuments(ctx, "acme", "/Home", 0, 0); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("deleted document still indexed: %v", err)
	}
	if err := s.DeleteDocument(ctx, "acme", "d1"); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func testRejectsInvalid(t *testing.T, factory StoreFactory) {
	s := factory(t)
	err := s.PutDocument(context.Background(), &records.Document{Name: "x"})
	if !errors.Is(err, records.ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func testChats(t *testing.T, factory StoreFactory) {
	s := factory(t)
	ctx := context.Background()

	if _, err := s.FindChat(ctx, "acme", "standup"); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	chat := &records.Chat{
		Organization: "acme",
		ObjectID:     "c1",
		Name:         "standup",
		Owner:        "alice",
		Messages: []records.Message{
			{Role: "user", Content: "hi"},
			{Role: "assistant", Content: "hello"},
		},
		UpdatedAt: stamp,
	}
	if err := s.PutChat(ctx, chat); err != nil {
		t.Fatalf("PutChat: %v", err)
	}
	got, err := s.FindChat(ctx, "acme", "standup")
	if err != nil {
		t.Fatalf("FindChat: %v", err)
	}
	if diff := cmp.Diff(chat, got); diff != "" {
		t.Fatalf("chat mismatch (-want +got):\n%s", diff)
	}

	chat.Messages = append(chat.Messages, records.Message{Role: "user", Content: "bye"})
	if err := s.PutChat(ctx, chat); err != nil {
		t.Fatalf("PutChat(update): %v", err)
	}
	got, _ = s.FindChat(ctx, "acme", "standup")
	if len(got.Messages) != 3 {
		t.Fatalf("expected 3 messages after update, got %d", len(got.Messages))
	}
	byID, err := s.GetChat(ctx, "acme", "c1")
	if err != nil {
		t.Fatalf("GetChat: %v", err)
	}
	if diff := cmp.Diff(got, byID); diff != "" {
		t.Fatalf("GetChat mismatch (-FindChat +GetChat):\n%s", diff)
	}
	if _, err := s.GetChat(ctx, "acme", "c2"); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("unknown chat id: expected ErrNotFound, got %v", err)
	}
	if _, err := s.FindChat(ctx, "globex", "standup"); !errors.Is(err, records.ErrNotFound) {
		t.Fatalf("cross-org chat: expected ErrNotFound, got %v", err)
	}

	if err := s.PutChat(ctx, &records.Chat{Organization: "acme"}); !errors.Is(err, records.ErrInvalid) {
		t.Fatalf("nameless chat: expected ErrInvalid, got %v", err)
	}
}

// Seed writes n plain-text documents named doc-000.. into org under group.
func Seed(t *testing.T, s records.Store, org, group string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		mustPut(t, s, doc(org, group, fmt.Sprintf("id-%03d", i), fmt.Sprintf("doc-%03d", i), ""))
	}
}
