package catalog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ggoodman/mcp-context-go/mcp"
	"github.com/ggoodman/mcp-context-go/policy"
	"github.com/ggoodman/mcp-context-go/records"
	"github.com/ggoodman/mcp-context-go/resourceuri"
	"github.com/ggoodman/mcp-context-go/sessions"
)

const (
	typeDocument = resourceuri.TypeDocument
	typeChat     = resourceuri.TypeChat
)

func (c *Catalog) ListResources(ctx context.Context, s *sessions.Session, cursor string) (mcp.ListResourcesResult, error) {
	res := mcp.ListResourcesResult{Resources: []mcp.Resource{}}
	p := c.principal(s)
	org := c.organization(p)
	if org == "" {
		return res, nil
	}

	offset := 0
	if cursor != "" {
		if n, err := strconv.Atoi(cursor); err == nil && n > 0 {
			offset = n
		}
	}
	docs, err := c.store.ListDocuments(ctx, org, "", offset, c.pageSize)
	if err != nil {
		return res, fmt.Errorf("failed to list documents: %w", err)
	}
	for _, d := range docs {
		if !c.allowDocument(ctx, p, policy.ActionList, d) {
			continue
		}
		res.Resources = append(res.Resources, mcp.Resource{
			URI:         resourceuri.Document(org, d.ObjectID),
			Name:        d.Name,
			Description: d.Description,
			MimeType:    d.ContentType,
		})
	}
	// Paging follows the store, not the filtered view.
	if len(docs) >= c.pageSize {
		res.NextCursor = strconv.Itoa(offset + c.pageSize)
	}
	return res, nil
}

func (c *Catalog) ListResourceTemplates(context.Context, *sessions.Session) ([]mcp.ResourceTemplate, error) {
	return resourceuri.Descriptors(), nil
}

// ReadResource resolves uri through the resource templates, falling back to
// the general am7 URI grammar for organizations that span several segments.
func (c *Catalog) ReadResource(ctx context.Context, s *sessions.Session, uri string) ([]mcp.ResourceContents, error) {
	p := c.principal(s)
	var (
		contents []mcp.ResourceContents
		err      error
	)
	if m, ok := resourceuri.MatchTemplate(uri); ok {
		org := m.Vars["organization"]
		switch m.Template {
		case resourceuri.TemplateDocument:
			contents, err = c.readDocument(ctx, p, uri, org, m.Vars["objectId"])
		case resourceuri.TemplateChat:
			contents, err = c.readChat(ctx, p, uri, org, m.Vars["objectId"])
		case resourceuri.TemplateVectorSearch:
			contents, err = c.readSearch(ctx, p, uri, org, m.Vars["q"])
		}
	} else if u, perr := resourceuri.Parse(uri); perr == nil {
		switch u.Type {
		case typeDocument:
			contents, err = c.readDocument(ctx, p, uri, u.Organization, u.ID)
		case typeChat:
			contents, err = c.readChat(ctx, p, uri, u.Organization, u.ID)
		}
	}
	if err != nil {
		return nil, err
	}
	if contents == nil {
		c.log.DebugContext(ctx, "catalog.read.miss", slog.String("uri", uri))
		return []mcp.ResourceContents{}, nil
	}
	return contents, nil
}

func (c *Catalog) readDocument(ctx context.Context, p policy.Principal, uri, org, id string) ([]mcp.ResourceContents, error) {
	d, err := c.store.GetDocument(ctx, org, id)
	if errors.Is(err, records.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if !c.allowDocument(ctx, p, policy.ActionRead, d) {
		return nil, nil
	}
	ct := d.ContentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	if records.IsTextContentType(ct) {
		return []mcp.ResourceContents{mcp.TextContents(uri, ct, string(d.Content))}, nil
	}
	if d.Content == nil {
		return nil, nil
	}
	return []mcp.ResourceContents{mcp.BlobContents(uri, ct, base64.StdEncoding.EncodeToString(d.Content))}, nil
}

func (c *Catalog) readChat(ctx context.Context, p policy.Principal, uri, org, id string) ([]mcp.ResourceContents, error) {
	ch, err := c.store.GetChat(ctx, org, id)
	if errors.Is(err, records.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read chat: %w", err)
	}
	if !c.allowed(ctx, p, policy.ActionRead, chatRecord(ch)) {
		return nil, nil
	}
	body, err := json.Marshal(ch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat: %w", err)
	}
	return []mcp.ResourceContents{mcp.TextContents(uri, "application/json", string(body))}, nil
}

// searchHit is the JSON form of a records.Hit.
type searchHit struct {
	URI      string  `json:"uri"`
	ObjectID string  `json:"objectId"`
	Name     string  `json:"name"`
	Chunk    int     `json:"chunk"`
	Score    float64 `json:"score"`
	Content  string  `json:"content"`
}

func (c *Catalog) readSearch(ctx context.Context, p policy.Principal, uri, org, q string) ([]mcp.ResourceContents, error) {
	if q == "" {
		return nil, nil
	}
	hits, err := c.search(ctx, p, org, q, records.SearchOptions{Limit: defaultSearchLimit, MinScore: defaultSearchDistance})
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(hits)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search results: %w", err)
	}
	return []mcp.ResourceContents{mcp.TextContents(uri, "application/json", string(body))}, nil
}

// search runs records.Search over the documents of org the caller may search.
func (c *Catalog) search(ctx context.Context, p policy.Principal, org, q string, opts records.SearchOptions) ([]searchHit, error) {
	docs, err := c.store.ListDocuments(ctx, org, "", 0, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	opts.Allow = func(d *records.Document) bool {
		return c.allowDocument(ctx, p, policy.ActionSearch, d)
	}
	out := make([]searchHit, 0)
	for _, h := range records.Search(docs, q, opts) {
		out = append(out, searchHit{
			URI:      resourceuri.Document(org, h.Document.ObjectID),
			ObjectID: h.Document.ObjectID,
			Name:     h.Document.Name,
			Chunk:    h.Chunk,
			Score:    h.Score,
			Content:  h.Text,
		})
	}
	return out, nil
}
