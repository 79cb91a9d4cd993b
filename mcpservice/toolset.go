package mcpservice

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ggoodman/mcp-context-go/mcp"
	"github.com/ggoodman/mcp-context-go/sessions"
)

// ToolSet serves a mutable set of tools in registration order. It is safe
// for concurrent use.
type ToolSet struct {
	mu       sync.RWMutex
	tools    []mcp.Tool
	handlers map[string]ToolHandler
}

// NewToolSet returns a ToolSet holding tools. On duplicate names the last
// definition wins.
func NewToolSet(tools ...Tool) *ToolSet {
	ts := &ToolSet{handlers: make(map[string]ToolHandler, len(tools))}
	for _, t := range tools {
		ts.put(t)
	}
	return ts
}

// Add registers t unless a tool with the same name exists. It reports
// whether t was added.
func (ts *ToolSet) Add(t Tool) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, exists := ts.handlers[t.Descriptor.Name]; exists {
		return false
	}
	ts.put(t)
	return true
}

// Remove drops the named tool. It reports whether it existed.
func (ts *ToolSet) Remove(name string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, ok := ts.handlers[name]; !ok {
		return false
	}
	delete(ts.handlers, name)
	n := 0
	for _, t := range ts.tools {
		if t.Name != name {
			ts.tools[n] = t
			n++
		}
	}
	ts.tools = ts.tools[:n]
	return true
}

func (ts *ToolSet) put(t Tool) {
	name := t.Descriptor.Name
	if _, exists := ts.handlers[name]; exists {
		for i := range ts.tools {
			if ts.tools[i].Name == name {
				ts.tools[i] = t.Descriptor
			}
		}
	} else {
		ts.tools = append(ts.tools, t.Descriptor)
	}
	ts.handlers[name] = t.Handler
}

// ListTools returns a copy of the descriptors.
func (ts *ToolSet) ListTools(context.Context, *sessions.Session) ([]mcp.Tool, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	out := make([]mcp.Tool, len(ts.tools))
	copy(out, ts.tools)
	return out, nil
}

// CallTool runs the named tool. An unknown name is reported as a failed
// result, not an error.
func (ts *ToolSet) CallTool(ctx context.Context, s *sessions.Session, name string, args json.RawMessage) (*mcp.CallToolResult, error) {
	ts.mu.RLock()
	h := ts.handlers[name]
	ts.mu.RUnlock()
	if h == nil {
		return Errorf("Unknown tool: %s", name), nil
	}
	return h(ctx, s, args)
}
