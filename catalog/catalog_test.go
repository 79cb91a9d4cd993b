package catalog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ggoodman/mcp-context-go/auth"
	"github.com/ggoodman/mcp-context-go/contextmarkup"
	"github.com/ggoodman/mcp-context-go/mcp"
	"github.com/ggoodman/mcp-context-go/policy"
	"github.com/ggoodman/mcp-context-go/records"
	"github.com/ggoodman/mcp-context-go/records/memory"
	"github.com/ggoodman/mcp-context-go/resourceuri"
	"github.com/ggoodman/mcp-context-go/sessions"
)

type harness struct {
	t       *testing.T
	store   *memory.Store
	catalog *Catalog
	table   *sessions.Table
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	engine, err := policy.Default(context.Background())
	if err != nil {
		t.Fatalf("policy.Default: %v", err)
	}
	store := memory.New()
	h := &harness{t: t, store: store, table: sessions.NewTable()}
	h.catalog = New(store, engine, opts...)

	h.putDoc(&records.Document{Organization: "acme", Group: "/Home/Notes", ObjectID: "n1", Name: "cats.txt",
		ContentType: "text/plain", Owner: "alice", Description: "about cats",
		Content: []byte("Big cats sleep all day.\n\nLions hunt at night.")})
	h.putDoc(&records.Document{Organization: "acme", Group: "/Home/Notes", ObjectID: "n2", Name: "dogs.md",
		ContentType: "text/markdown", Owner: "alice", Content: []byte("Dogs chase cats.")})
	h.putDoc(&records.Document{Organization: "acme", Group: "/Home/Images", ObjectID: "i1", Name: "logo.png",
		ContentType: "image/png", Owner: "alice", Content: []byte{0x89, 'P', 'N', 'G'}})
	h.putDoc(&records.Document{Organization: "acme", Group: "/Home/Notes", ObjectID: "b1", Name: "bob.txt",
		ContentType: "text/plain", Owner: "bob", Content: []byte("Bob's private cats.")})
	h.putDoc(&records.Document{Organization: "acme", Group: "/Shared", ObjectID: "p1", Name: "handbook.json",
		ContentType: "application/json", Owner: "bob", Public: true, Content: []byte(`{"cats":true}`)})
	h.putDoc(&records.Document{Organization: "globex", Group: "/Home", ObjectID: "g1", Name: "other.txt",
		ContentType: "text/plain", Owner: "alice", Content: []byte("globex cats")})
	if err := store.PutChat(context.Background(), &records.Chat{
		Organization: "acme", ObjectID: "c1", Name: "standup", Owner: "alice",
		Messages: []records.Message{
			{Role: "user", Content: "What did we decide?"},
			{Role: "assistant", Content: `Ship it.<mcp:context type="resource" uri="am7://acme/data.data/n1" ephemeral="true">{"schema":"urn:am7:vector:search-result","data":{}}</mcp:context>`},
		},
	}); err != nil {
		t.Fatalf("PutChat: %v", err)
	}
	return h
}

func (h *harness) putDoc(d *records.Document) {
	h.t.Helper()
	if err := h.store.PutDocument(context.Background(), d); err != nil {
		h.t.Fatalf("PutDocument(%s): %v", d.ObjectID, err)
	}
}

func (h *harness) session(id string, claims map[string]any) *sessions.Session {
	h.t.Helper()
	s, err := h.table.Create(auth.NewUser(id, claims), "2025-06-18", nil, time.Now())
	if err != nil {
		h.t.Fatalf("Create: %v", err)
	}
	return s
}

func (h *harness) alice() *sessions.Session {
	return h.session("alice", map[string]any{"org": "acme"})
}

func (h *harness) call(s *sessions.Session, name string, args any) *mcp.CallToolResult {
	h.t.Helper()
	raw, err := json.Marshal(args)
	if err != nil {
		h.t.Fatalf("marshal args: %v", err)
	}
	res, err := h.catalog.CallTool(context.Background(), s, name, raw)
	if err != nil {
		h.t.Fatalf("CallTool(%s): %v", name, err)
	}
	return res
}

func text(res *mcp.CallToolResult) string {
	if len(res.Content) == 0 {
		return ""
	}
	return res.Content[0].Text
}

func uris(rs []mcp.Resource) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.URI)
	}
	return out
}

func TestListResources(t *testing.T) {
	h := newHarness(t)
	res, err := h.catalog.ListResources(context.Background(), h.alice(), "")
	if err != nil {
		t.Fatalf("ListResources: %v", err)
	}
	want := []string{
		"am7://acme/data.data/n1",
		"am7://acme/data.data/n2",
		"am7://acme/data.data/p1",
		"am7://acme/data.data/i1",
	}
	if diff := cmp.Diff(want, uris(res.Resources)); diff != "" {
		t.Fatalf("uris mismatch (-want +got):\n%s", diff)
	}
	if res.NextCursor != "" {
		t.Fatalf("unexpected cursor %q", res.NextCursor)
	}
	if r := res.Resources[0]; r.Name != "cats.txt" || r.Description != "about cats" || r.MimeType != "text/plain" {
		t.Fatalf("unexpected resource %+v", r)
	}
}

func TestListResourcesPaging(t *testing.T) {
	h := newHarness(t, WithPageSize(2))
	s := h.alice()
	ctx := context.Background()

	// The five acme documents sort as bob, cats, dogs, handbook, logo.
	first, _ := h.catalog.ListResources(ctx, s, "")
	if first.NextCursor != "2" || len(first.Resources) != 1 {
		t.Fatalf("first page: %v next=%q", uris(first.Resources), first.NextCursor)
	}
	second, _ := h.catalog.ListResources(ctx, s, first.NextCursor)
	if second.NextCursor != "4" || len(second.Resources) != 2 {
		t.Fatalf("second page: %v next=%q", uris(second.Resources), second.NextCursor)
	}
	third, _ := h.catalog.ListResources(ctx, s, second.NextCursor)
	if third.NextCursor != "" || len(third.Resources) != 1 {
		t.Fatalf("third page: %v next=%q", uris(third.Resources), third.NextCursor)
	}
}

func TestListResourcesWithoutOrganization(t *testing.T) {
	h := newHarness(t)
	res, err := h.catalog.ListResources(context.Background(), h.session("alice", nil), "")
	if err != nil || len(res.Resources) != 0 {
		t.Fatalf("expected nothing, got %v %v", res.Resources, err)
	}

	h = newHarness(t, WithDefaultOrganization("acme"))
	res, _ = h.catalog.ListResources(context.Background(), h.session("alice", nil), "")
	if len(res.Resources) != 4 {
		t.Fatalf("default organization not applied: %v", uris(res.Resources))
	}
}

func TestReadResource(t *testing.T) {
	h := newHarness(t)
	s := h.alice()
	ctx := context.Background()

	tests := []struct {
		name string
		uri  string
		want []mcp.ResourceContents
	}{
		{"text", "am7://acme/data.data/n2", []mcp.ResourceContents{
			mcp.TextContents("am7://acme/data.data/n2", "text/markdown", "Dogs chase cats."),
		}},
		{"json is text", "am7://acme/data.data/p1", []mcp.ResourceContents{
			mcp.TextContents("am7://acme/data.data/p1", "application/json", `{"cats":true}`),
		}},
		{"binary", "am7://acme/data.data/i1", []mcp.ResourceContents{
			mcp.BlobContents("am7://acme/data.data/i1", "image/png", base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'})),
		}},
		{"denied", "am7://acme/data.data/b1", []mcp.ResourceContents{}},
		{"other organization", "am7://globex/data.data/g1", []mcp.ResourceContents{}},
		{"missing", "am7://acme/data.data/zzz", []mcp.ResourceContents{}},
		{"unparseable", "http://example.com/x", []mcp.ResourceContents{}},
		{"unknown type", "am7://acme/olio.charPerson/x", []mcp.ResourceContents{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := h.catalog.ReadResource(ctx, s, tt.uri)
			if err != nil {
				t.Fatalf("ReadResource: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("contents mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReadResourceNestedOrganization(t *testing.T) {
	h := newHarness(t)
	h.putDoc(&records.Document{Organization: "Development/Team", ObjectID: "d9", Name: "x.txt",
		ContentType: "text/plain", Public: true, Content: []byte("nested")})

	s := h.session("carol", nil)
	got, err := h.catalog.ReadResource(context.Background(), s, "am7://Development/Team/data.data/d9")
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if len(got) != 1 || got[0].Text != "nested" {
		t.Fatalf("unexpected contents %+v", got)
	}
}

func TestReadChatResource(t *testing.T) {
	h := newHarness(t)
	got, err := h.catalog.ReadResource(context.Background(), h.alice(), resourceuri.Chat("acme", "c1"))
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if len(got) != 1 || got[0].MimeType != "application/json" {
		t.Fatalf("unexpected contents %+v", got)
	}
	var chat records.Chat
	if err := json.Unmarshal([]byte(got[0].Text), &chat); err != nil {
		t.Fatalf("decode chat: %v", err)
	}
	if chat.Name != "standup" || len(chat.Messages) != 2 {
		t.Fatalf("unexpected chat %+v", chat)
	}

	bob := h.session("bob", map[string]any{"org": "acme"})
	got, _ = h.catalog.ReadResource(context.Background(), bob, resourceuri.Chat("acme", "c1"))
	if len(got) != 0 {
		t.Fatalf("bob read alice's chat: %+v", got)
	}
}

func TestReadSearchResource(t *testing.T) {
	h := newHarness(t)
	uri, err := resourceuri.VectorSearch("acme", resourceuri.Param{Key: "q", Value: "cats"})
	if err != nil {
		t.Fatalf("VectorSearch: %v", err)
	}
	got, err := h.catalog.ReadResource(context.Background(), h.alice(), uri)
	if err != nil {
		t.Fatalf("ReadResource: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected one content, got %+v", got)
	}
	var hits []searchHit
	if err := json.Unmarshal([]byte(got[0].Text), &hits); err != nil {
		t.Fatalf("decode hits: %v", err)
	}
	var ids []string
	for _, hit := range hits {
		ids = append(ids, hit.ObjectID)
	}
	// bob's private note is filtered out; the public handbook is not.
	if diff := cmp.Diff([]string{"n1", "n2", "p1"}, ids); diff != "" {
		t.Fatalf("hits mismatch (-want +got):\n%s", diff)
	}
}

func TestListResourceTemplates(t *testing.T) {
	h := newHarness(t)
	got, err := h.catalog.ListResourceTemplates(context.Background(), h.alice())
	if err != nil {
		t.Fatalf("ListResourceTemplates: %v", err)
	}
	if diff := cmp.Diff(resourceuri.Descriptors(), got); diff != "" {
		t.Fatalf("templates mismatch (-want +got):\n%s", diff)
	}
}

func TestListTools(t *testing.T) {
	h := newHarness(t)
	tools, err := h.catalog.ListTools(context.Background(), h.alice())
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	want := []string{ToolVectorSearch, ToolDocumentList, ToolDocumentRead, ToolChatHistory, ToolContextFilter}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("tool names (-want +got):\n%s", diff)
	}
	search := tools[0].InputSchema
	if diff := cmp.Diff([]string{"query"}, search.Required); diff != "" {
		t.Fatalf("vector search required (-want +got):\n%s", diff)
	}
	if _, ok := search.Properties["distance"]; !ok {
		t.Fatalf("vector search schema lacks distance: %+v", search.Properties)
	}
}

func TestRequiredArguments(t *testing.T) {
	h := newHarness(t)
	s := h.alice()
	tests := []struct {
		tool string
		want string
	}{
		{ToolVectorSearch, "'query' parameter is required"},
		{ToolDocumentList, "'path' parameter is required"},
		{ToolDocumentRead, "'objectId' parameter is required"},
		{ToolChatHistory, "'chatName' parameter is required"},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			res := h.call(s, tt.tool, map[string]any{})
			if !res.IsError || text(res) != tt.want {
				t.Fatalf("got isError=%v %q", res.IsError, text(res))
			}
		})
	}
}

func TestVectorSearchText(t *testing.T) {
	h := newHarness(t)
	res := h.call(h.alice(), ToolVectorSearch, map[string]any{"query": "big cats", "limit": 2})
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(res))
	}
	want := "Found 1 results for: big cats\n\n" +
		"--- Result 1 ---\n" +
		"Type: data.data\n" +
		"Chunk: 0\n" +
		"Score: 1.0000\n" +
		"Content: Big cats sleep all day.\n\nLions hunt at night.\n\n"
	if diff := cmp.Diff(want, text(res)); diff != "" {
		t.Fatalf("result mismatch (-want +got):\n%s", diff)
	}

	res = h.call(h.alice(), ToolVectorSearch, map[string]any{"query": "big cats", "distance": 0.5})
	if !strings.HasPrefix(text(res), "Found 3 results") {
		t.Fatalf("lower threshold: %s", text(res))
	}
	res = h.call(h.alice(), ToolVectorSearch, map[string]any{"query": "cats", "objectId": "n2"})
	if !strings.HasPrefix(text(res), "Found 1 results") || !strings.Contains(text(res), "Dogs chase cats.") {
		t.Fatalf("objectId scope: %s", text(res))
	}
	res = h.call(h.alice(), ToolVectorSearch, map[string]any{"query": "cats", "type": "olio.charPerson"})
	if !strings.HasPrefix(text(res), "Found 0 results") {
		t.Fatalf("type filter: %s", text(res))
	}
}

func TestVectorSearchMarkup(t *testing.T) {
	h := newHarness(t)
	res := h.call(h.alice(), ToolVectorSearch, map[string]any{"query": "cats", "format": "markup"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", text(res))
	}
	occs := contextmarkup.Parse(text(res))
	if len(occs) != 3 {
		t.Fatalf("expected 3 blocks, got %d in %q", len(occs), text(res))
	}
	filtered := contextmarkup.Filter(text(res), contextmarkup.FilterOptions{})
	if len(filtered.Citations) != 3 {
		t.Fatalf("expected 3 citations, got %d", len(filtered.Citations))
	}
	if got := strings.TrimSpace(filtered.Content); got != "Found 3 results for: cats" {
		t.Fatalf("display text = %q", got)
	}
	if occs[0].URI != "am7://acme/data.data/n1" || !occs[0].Ephemeral {
		t.Fatalf("unexpected first block %+v", occs[0])
	}
}

func TestSearchMarkupEncodeFailure(t *testing.T) {
	_, err := searchMarkup([]searchHit{
		{URI: "am7://acme/data.data/n1", Score: 0.9},
		{URI: "am7://acme/data.data/n2", Score: math.NaN()},
	})
	if err == nil {
		t.Fatalf("expected encode error for NaN score")
	}

	out, err := searchMarkup([]searchHit{{URI: "am7://acme/data.data/n1", Score: 0.9}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contextmarkup.Parse(out)) != 1 {
		t.Fatalf("expected one block in %q", out)
	}
}

func TestDocumentList(t *testing.T) {
	h := newHarness(t)
	s := h.alice()

	res := h.call(s, ToolDocumentList, map[string]any{"path": "/Home/Notes"})
	want := "Documents in /Home/Notes (2 results):\n\n" +
		"- cats.txt [text/plain]\n  objectId: n1\n  description: about cats\n" +
		"- dogs.md [text/markdown]\n  objectId: n2\n"
	if diff := cmp.Diff(want, text(res)); diff != "" {
		t.Fatalf("listing mismatch (-want +got):\n%s", diff)
	}

	res = h.call(s, ToolDocumentList, map[string]any{"path": "Home/Notes", "startRecord": 2, "recordCount": 1})
	if !strings.Contains(text(res), "dogs.md") || strings.Contains(text(res), "cats.txt") {
		t.Fatalf("paging: %s", text(res))
	}

	res = h.call(s, ToolDocumentList, map[string]any{"path": "/Nowhere"})
	if !res.IsError || text(res) != "Group not found: /Nowhere" {
		t.Fatalf("missing group: %v %q", res.IsError, text(res))
	}
}

func TestDocumentRead(t *testing.T) {
	h := newHarness(t)
	s := h.alice()

	tests := []struct {
		name    string
		id      string
		want    string
		isError bool
	}{
		{"text", "n2", "Document: dogs.md\nContent-Type: text/markdown\nObject ID: n2\n\nDogs chase cats.", false},
		{"binary", "i1", "Document: logo.png\nContent-Type: image/png\nObject ID: i1\n\n[Binary content, 4 bytes, base64: iVBORw==]", false},
		{"denied", "b1", "Document not found: b1", true},
		{"missing", "zzz", "Document not found: zzz", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.call(s, ToolDocumentRead, map[string]any{"objectId": tt.id})
			if res.IsError != tt.isError {
				t.Fatalf("isError = %v, want %v (%q)", res.IsError, tt.isError, text(res))
			}
			if diff := cmp.Diff(tt.want, text(res)); diff != "" {
				t.Fatalf("text mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestChatHistory(t *testing.T) {
	h := newHarness(t)
	s := h.alice()

	res := h.call(s, ToolChatHistory, map[string]any{"chatName": "standup"})
	want := "Chat: standup\nMessages: 2\n\nuser: What did we decide?\nassistant: Ship it.\n"
	if diff := cmp.Diff(want, text(res)); diff != "" {
		t.Fatalf("history mismatch (-want +got):\n%s", diff)
	}

	res = h.call(s, ToolChatHistory, map[string]any{"chatName": "standup", "raw": true})
	if !strings.Contains(text(res), "<mcp:context") {
		t.Fatalf("raw history lost markup: %s", text(res))
	}

	res = h.call(s, ToolChatHistory, map[string]any{"chatName": "retro"})
	if !res.IsError || text(res) != "Chat session not found: retro" {
		t.Fatalf("missing chat: %v %q", res.IsError, text(res))
	}

	if err := h.store.PutChat(context.Background(), &records.Chat{Organization: "acme", Name: "empty", Owner: "alice"}); err != nil {
		t.Fatalf("PutChat: %v", err)
	}
	res = h.call(s, ToolChatHistory, map[string]any{"chatName": "empty"})
	if !res.IsError || text(res) != "Chat session has no message history" {
		t.Fatalf("empty chat: %v %q", res.IsError, text(res))
	}
}

func TestContextFilterTool(t *testing.T) {
	h := newHarness(t)
	input := contextmarkup.NewBuilder().
		Reminder("am7://acme/reminder/r1", []map[string]string{{"key": "mood", "value": "calm"}}).
		MediaResource("am7://acme/media/image/m1", "cat").
		Build()

	res := h.call(h.alice(), ToolContextFilter, map[string]any{"text": "Hello " + input})
	var report filterReport
	if err := json.Unmarshal([]byte(text(res)), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if got := strings.TrimSpace(report.Content); got != "Hello" {
		t.Fatalf("content = %q", got)
	}
	want := map[string]int{"citations": 0, "reminders": 1, "keyframes": 0, "metrics": 0, "reasoning": 0, "media": 1}
	if diff := cmp.Diff(want, report.Counts); diff != "" {
		t.Fatalf("counts mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownTool(t *testing.T) {
	h := newHarness(t)
	res := h.call(h.alice(), "am7_nope", map[string]any{})
	if !res.IsError || text(res) != "Unknown tool: am7_nope" {
		t.Fatalf("got %v %q", res.IsError, text(res))
	}
}

type failingAuthorizer struct{}

func (failingAuthorizer) Allow(context.Context, policy.Input) (bool, error) {
	return false, fmt.Errorf("policy backend down")
}

func TestAuthorizerFailureDenies(t *testing.T) {
	h := newHarness(t)
	c := New(h.store, failingAuthorizer{})
	got, err := c.ReadResource(context.Background(), h.alice(), "am7://acme/data.data/n1")
	if err != nil || len(got) != 0 {
		t.Fatalf("expected empty read, got %v %v", got, err)
	}

	c = New(h.store, nil)
	res, _ := c.ListResources(context.Background(), h.alice(), "")
	if len(res.Resources) != 0 {
		t.Fatalf("nil authorizer allowed %v", uris(res.Resources))
	}
}
