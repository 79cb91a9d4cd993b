package catalog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ggoodman/mcp-context-go/contextmarkup"
	"github.com/ggoodman/mcp-context-go/mcp"
	"github.com/ggoodman/mcp-context-go/mcpservice"
	"github.com/ggoodman/mcp-context-go/policy"
	"github.com/ggoodman/mcp-context-go/records"
	"github.com/ggoodman/mcp-context-go/sessions"
)

// Tool names.
const (
	ToolVectorSearch  = "am7_vector_search"
	ToolDocumentList  = "am7_document_list"
	ToolDocumentRead  = "am7_document_read"
	ToolChatHistory   = "am7_chat_history"
	ToolContextFilter = "am7_context_filter"
)

const (
	defaultSearchLimit    = 10
	defaultSearchDistance = 0.6
	defaultRecordCount    = 25
)

// FormatMarkup asks am7_vector_search for mcp:context citation blocks.
const FormatMarkup = "markup"

type vectorSearchArgs struct {
	Query    string   `json:"query" jsonschema:"description=Search query text"`
	Limit    int      `json:"limit,omitempty" jsonschema:"description=Maximum number of results (default: 10),default=10"`
	Distance *float64 `json:"distance,omitempty" jsonschema:"description=Minimum similarity threshold (default: 0.6),default=0.6"`
	Type     string   `json:"type,omitempty" jsonschema:"description=Optional model type filter (e.g. 'data.data')"`
	ObjectID string   `json:"objectId,omitempty" jsonschema:"description=Optional reference document object ID to scope search"`
	Format   string   `json:"format,omitempty" jsonschema:"description=Result format,enum=text,enum=markup"`
}

type documentListArgs struct {
	Path        string `json:"path" jsonschema:"description=Group path (e.g. '/Home/Documents')"`
	Type        string `json:"type,omitempty" jsonschema:"description=Model type (default: 'data.data'),default=data.data"`
	StartRecord int    `json:"startRecord,omitempty" jsonschema:"description=Pagination start index (default: 0),default=0"`
	RecordCount int    `json:"recordCount,omitempty" jsonschema:"description=Number of records to return (default: 25),default=25"`
}

type documentReadArgs struct {
	ObjectID string `json:"objectId" jsonschema:"description=The document's objectId"`
	Type     string `json:"type,omitempty" jsonschema:"description=Model type (default: 'data.data'),default=data.data"`
}

type chatHistoryArgs struct {
	ChatName string `json:"chatName" jsonschema:"description=Name of the chat session to retrieve"`
	Raw      bool   `json:"raw,omitempty" jsonschema:"description=Keep ephemeral context blocks in messages"`
}

type contextFilterArgs struct {
	Text          string `json:"text" jsonschema:"description=Text containing mcp:context markup"`
	ShowEphemeral bool   `json:"showEphemeral,omitempty" jsonschema:"description=Keep ephemeral blocks in the content"`
	RenderMedia   bool   `json:"renderMedia,omitempty" jsonschema:"description=Render inline media references as img elements"`
}

func (c *Catalog) toolDefinitions() []mcpservice.Tool {
	return []mcpservice.Tool{
		mcpservice.NewTool(ToolVectorSearch, c.vectorSearch,
			mcpservice.WithToolDescription("Semantic and keyword hybrid search across vectorized documents in AccountManager7")),
		mcpservice.NewTool(ToolDocumentList, c.documentList,
			mcpservice.WithToolDescription("List documents in a group path within AccountManager7")),
		mcpservice.NewTool(ToolDocumentRead, c.documentRead,
			mcpservice.WithToolDescription("Read a document's content from AccountManager7 by object ID")),
		mcpservice.NewTool(ToolChatHistory, c.chatHistory,
			mcpservice.WithToolDescription("Retrieve formatted chat history from an AccountManager7 chat session")),
		mcpservice.NewTool(ToolContextFilter, c.contextFilter,
			mcpservice.WithToolDescription("Separate mcp:context markup from display text and report what it carried")),
	}
}

func (c *Catalog) ListTools(ctx context.Context, s *sessions.Session) ([]mcp.Tool, error) {
	return c.tools.ListTools(ctx, s)
}

func (c *Catalog) CallTool(ctx context.Context, s *sessions.Session, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	return c.tools.CallTool(ctx, s, name, args)
}

// caller resolves the principal and its organization, or an error result.
func (c *Catalog) caller(s *sessions.Session) (policy.Principal, string, *mcp.CallToolResult) {
	p := c.principal(s)
	org := c.organization(p)
	if org == "" {
		return p, "", mcpservice.Errorf("No organization for principal: %s", p.ID)
	}
	return p, org, nil
}

func (c *Catalog) vectorSearch(ctx context.Context, s *sessions.Session, a vectorSearchArgs) (*mcp.CallToolResult, error) {
	if a.Query == "" {
		return mcpservice.Errorf("'query' parameter is required"), nil
	}
	p, org, errRes := c.caller(s)
	if errRes != nil {
		return errRes, nil
	}
	limit := a.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	minScore := defaultSearchDistance
	if a.Distance != nil {
		minScore = *a.Distance
	}

	var hits []searchHit
	if a.Type == "" || a.Type == typeDocument {
		var err error
		hits, err = c.search(ctx, p, org, a.Query, records.SearchOptions{
			Limit:    limit,
			MinScore: minScore,
			ObjectID: a.ObjectID,
		})
		if err != nil {
			return mcpservice.Errorf("Tool execution failed: %v", err), nil
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d results for: %s\n\n", len(hits), a.Query)

	if a.Format == FormatMarkup {
		blocks, err := searchMarkup(hits)
		if err != nil {
			return mcpservice.Errorf("Tool execution failed: %v", err), nil
		}
		sb.WriteString(blocks)
		return mcpservice.TextResult(sb.String()), nil
	}

	for i, h := range hits {
		fmt.Fprintf(&sb, "--- Result %d ---\n", i+1)
		fmt.Fprintf(&sb, "Type: %s\n", typeDocument)
		fmt.Fprintf(&sb, "Chunk: %d\n", h.Chunk)
		fmt.Fprintf(&sb, "Score: %.4f\n", h.Score)
		fmt.Fprintf(&sb, "Content: %s\n\n", h.Content)
	}
	return mcpservice.TextResult(sb.String()), nil
}

// searchMarkup renders hits as ephemeral search-result blocks.
func searchMarkup(hits []searchHit) (string, error) {
	b := contextmarkup.NewBuilder()
	for _, h := range hits {
		b.Resource(h.URI, contextmarkup.SchemaSearchResult, h, true)
	}
	if err := b.Err(); err != nil {
		return "", err
	}
	return b.Build(), nil
}

func (c *Catalog) documentList(ctx context.Context, s *sessions.Session, a documentListArgs) (*mcp.CallToolResult, error) {
	if a.Path == "" {
		return mcpservice.Errorf("'path' parameter is required"), nil
	}
	p, org, errRes := c.caller(s)
	if errRes != nil {
		return errRes, nil
	}
	if a.Type != "" && a.Type != typeDocument {
		return mcpservice.Errorf("Unsupported type: %s", a.Type), nil
	}
	start := max(a.StartRecord, 0)
	count := a.RecordCount
	if count <= 0 {
		count = defaultRecordCount
	}

	docs, err := c.store.ListDocuments(ctx, org, a.Path, start, count)
	if errors.Is(err, records.ErrNotFound) {
		return mcpservice.Errorf("Group not found: %s", a.Path), nil
	}
	if err != nil {
		c.log.ErrorContext(ctx, "catalog.document_list.err", slog.String("path", a.Path), slog.String("err", err.Error()))
		return mcpservice.Errorf("Failed to list documents: %v", err), nil
	}

	visible := docs[:0]
	for _, d := range docs {
		if c.allowDocument(ctx, p, policy.ActionList, d) {
			visible = append(visible, d)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Documents in %s (%d results):\n\n", a.Path, len(visible))
	for _, d := range visible {
		sb.WriteString("- ")
		sb.WriteString(d.Name)
		if d.ContentType != "" {
			fmt.Fprintf(&sb, " [%s]", d.ContentType)
		}
		fmt.Fprintf(&sb, "\n  objectId: %s", d.ObjectID)
		if d.Description != "" {
			fmt.Fprintf(&sb, "\n  description: %s", d.Description)
		}
		sb.WriteByte('\n')
	}
	return mcpservice.TextResult(sb.String()), nil
}

func (c *Catalog) documentRead(ctx context.Context, s *sessions.Session, a documentReadArgs) (*mcp.CallToolResult, error) {
	if a.ObjectID == "" {
		return mcpservice.Errorf("'objectId' parameter is required"), nil
	}
	p, org, errRes := c.caller(s)
	if errRes != nil {
		return errRes, nil
	}
	if a.Type != "" && a.Type != typeDocument {
		return mcpservice.Errorf("Document not found: %s", a.ObjectID), nil
	}

	d, err := c.store.GetDocument(ctx, org, a.ObjectID)
	if errors.Is(err, records.ErrNotFound) || (err == nil && !c.allowDocument(ctx, p, policy.ActionRead, d)) {
		return mcpservice.Errorf("Document not found: %s", a.ObjectID), nil
	}
	if err != nil {
		c.log.ErrorContext(ctx, "catalog.document_read.err", slog.String("object_id", a.ObjectID), slog.String("err", err.Error()))
		return mcpservice.Errorf("Failed to read document: %v", err), nil
	}

	ct := d.ContentType
	if ct == "" {
		ct = "unknown"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Document: %s\n", d.Name)
	fmt.Fprintf(&sb, "Content-Type: %s\n", ct)
	fmt.Fprintf(&sb, "Object ID: %s\n\n", d.ObjectID)
	switch {
	case len(d.Content) == 0:
		sb.WriteString("[No content]")
	case d.IsText():
		sb.Write(d.Content)
	default:
		fmt.Fprintf(&sb, "[Binary content, %d bytes, base64: %s]", len(d.Content), base64.StdEncoding.EncodeToString(d.Content))
	}
	return mcpservice.TextResult(sb.String()), nil
}

func (c *Catalog) chatHistory(ctx context.Context, s *sessions.Session, a chatHistoryArgs) (*mcp.CallToolResult, error) {
	if a.ChatName == "" {
		return mcpservice.Errorf("'chatName' parameter is required"), nil
	}
	p, org, errRes := c.caller(s)
	if errRes != nil {
		return errRes, nil
	}

	ch, err := c.store.FindChat(ctx, org, a.ChatName)
	if errors.Is(err, records.ErrNotFound) || (err == nil && !c.allowed(ctx, p, policy.ActionRead, chatRecord(ch))) {
		return mcpservice.Errorf("Chat session not found: %s", a.ChatName), nil
	}
	if err != nil {
		c.log.ErrorContext(ctx, "catalog.chat_history.err", slog.String("chat", a.ChatName), slog.String("err", err.Error()))
		return mcpservice.Errorf("Failed to read chat history: %v", err), nil
	}
	if len(ch.Messages) == 0 {
		return mcpservice.Errorf("Chat session has no message history"), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Chat: %s\n", a.ChatName)
	fmt.Fprintf(&sb, "Messages: %d\n\n", len(ch.Messages))
	for _, m := range ch.Messages {
		content := m.Content
		if !a.Raw {
			content = contextmarkup.StripEphemeral(content)
		}
		fmt.Fprintf(&sb, "%s: %s\n", m.Role, content)
	}
	return mcpservice.TextResult(sb.String()), nil
}

// filterReport is the am7_context_filter result body.
type filterReport struct {
	Content string         `json:"content"`
	Counts  map[string]int `json:"counts"`
}

func (c *Catalog) contextFilter(_ context.Context, _ *sessions.Session, a contextFilterArgs) (*mcp.CallToolResult, error) {
	res := contextmarkup.Filter(a.Text, contextmarkup.FilterOptions{
		ShowEphemeral: a.ShowEphemeral,
		RenderMedia:   a.RenderMedia,
	})
	body, err := json.Marshal(filterReport{
		Content: res.Content,
		Counts: map[string]int{
			string(contextmarkup.CategoryCitations): len(res.Citations),
			string(contextmarkup.CategoryReminders): len(res.Reminders),
			string(contextmarkup.CategoryKeyframes): len(res.Keyframes),
			string(contextmarkup.CategoryMetrics):   len(res.Metrics),
			string(contextmarkup.CategoryReasoning): len(res.Reasoning),
			string(contextmarkup.CategoryMedia):     len(res.Media),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode filter report: %w", err)
	}
	return mcpservice.TextResult(string(body)), nil
}
