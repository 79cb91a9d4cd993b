package mcpservice

import (
	"context"
	"strconv"
	"sync"

	"github.com/ggoodman/mcp-context-go/mcp"
	"github.com/ggoodman/mcp-context-go/sessions"
)

// DefaultPageSize is the resources/list page size.
const DefaultPageSize = 50

// ResourceSet serves a mutable set of resources, templates and contents. It
// is safe for concurrent use.
type ResourceSet struct {
	mu        sync.RWMutex
	resources []mcp.Resource
	templates []mcp.ResourceTemplate
	contents  map[string][]mcp.ResourceContents
	pageSize  int
}

// NewResourceSet copies its inputs into a new ResourceSet.
func NewResourceSet(resources []mcp.Resource, templates []mcp.ResourceTemplate, contents map[string][]mcp.ResourceContents) *ResourceSet {
	rs := &ResourceSet{
		resources: append([]mcp.Resource(nil), resources...),
		templates: append([]mcp.ResourceTemplate(nil), templates...),
		contents:  make(map[string][]mcp.ResourceContents, len(contents)),
		pageSize:  DefaultPageSize,
	}
	for uri, c := range contents {
		rs.contents[uri] = append([]mcp.ResourceContents(nil), c...)
	}
	return rs
}

// SetPageSize changes the listing page size. Values below 1 are ignored.
func (rs *ResourceSet) SetPageSize(n int) {
	if n < 1 {
		return
	}
	rs.mu.Lock()
	rs.pageSize = n
	rs.mu.Unlock()
}

// Put adds or replaces a resource and its contents.
func (rs *ResourceSet) Put(r mcp.Resource, contents ...mcp.ResourceContents) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	replaced := false
	for i := range rs.resources {
		if rs.resources[i].URI == r.URI {
			rs.resources[i] = r
			replaced = true
		}
	}
	if !replaced {
		rs.resources = append(rs.resources, r)
	}
	rs.contents[r.URI] = append([]mcp.ResourceContents(nil), contents...)
}

// ListResources pages through the resources. The cursor is the decimal
// offset of the first item; an unparsable cursor restarts from zero.
func (rs *ResourceSet) ListResources(_ context.Context, _ *sessions.Session, cursor string) (mcp.ListResourcesResult, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	start := parseCursor(cursor)
	if start > len(rs.resources) {
		start = len(rs.resources)
	}
	end := min(start+rs.pageSize, len(rs.resources))

	res := mcp.ListResourcesResult{Resources: make([]mcp.Resource, end-start)}
	copy(res.Resources, rs.resources[start:end])
	if end < len(rs.resources) {
		res.NextCursor = strconv.Itoa(end)
	}
	return res, nil
}

// ReadResource returns the stored contents for uri, or an empty slice.
func (rs *ResourceSet) ReadResource(_ context.Context, _ *sessions.Session, uri string) ([]mcp.ResourceContents, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	c := rs.contents[uri]
	out := make([]mcp.ResourceContents, len(c))
	copy(out, c)
	return out, nil
}

// ListResourceTemplates returns all templates.
func (rs *ResourceSet) ListResourceTemplates(context.Context, *sessions.Session) ([]mcp.ResourceTemplate, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]mcp.ResourceTemplate, len(rs.templates))
	copy(out, rs.templates)
	return out, nil
}

func parseCursor(cursor string) int {
	if cursor == "" {
		return 0
	}
	n, err := strconv.Atoi(cursor)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
