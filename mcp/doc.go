// Package mcp contains the Model Context Protocol data types used by the
// dispatcher and by resource and tool providers. The structs mirror the wire
// representation (exported fields with json tags) and carry no transport or
// session logic.
//
// Only the subset of the protocol this server speaks is modelled: the
// initialize handshake, ping, resources and tools.
//
// Example (tool result construction):
//
//	res := &mcp.CallToolResult{
//	    Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: "hello"}},
//	}
package mcp
