package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/ggoodman/mcp-context-go/mcp"
	"github.com/ggoodman/mcp-context-go/sessions"
)

// ResourceProvider answers the resources/* methods for a session.
//
// A returned error is an infrastructure fault and is reported to the client
// as an internal error. A uri that does not resolve, or that the session may
// not see, is not an error: ReadResource returns an empty slice.
type ResourceProvider interface {
	ListResources(ctx context.Context, s *sessions.Session, cursor string) (mcp.ListResourcesResult, error)
	ReadResource(ctx context.Context, s *sessions.Session, uri string) ([]mcp.ResourceContents, error)
	ListResourceTemplates(ctx context.Context, s *sessions.Session) ([]mcp.ResourceTemplate, error)
}

// ToolProvider answers tools/list and tools/call for a session.
//
// CallTool reports business failures (bad arguments, unknown tool, missing
// record) as a result with IsError set. Only faults the caller cannot act on
// should be returned as errors.
type ToolProvider interface {
	ListTools(ctx context.Context, s *sessions.Session) ([]mcp.Tool, error)
	CallTool(ctx context.Context, s *sessions.Session, name string, args json.RawMessage) (*mcp.CallToolResult, error)
}

// emptyProvider stands in for a nil provider.
type emptyProvider struct{}

func (emptyProvider) ListResources(context.Context, *sessions.Session, string) (mcp.ListResourcesResult, error) {
	return mcp.ListResourcesResult{}, nil
}

func (emptyProvider) ReadResource(context.Context, *sessions.Session, string) ([]mcp.ResourceContents, error) {
	return nil, nil
}

func (emptyProvider) ListResourceTemplates(context.Context, *sessions.Session) ([]mcp.ResourceTemplate, error) {
	return nil, nil
}

func (emptyProvider) ListTools(context.Context, *sessions.Session) ([]mcp.Tool, error) {
	return nil, nil
}

func (emptyProvider) CallTool(_ context.Context, _ *sessions.Session, name string, _ json.RawMessage) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: "Unknown tool: " + name}},
		IsError: true,
	}, nil
}
