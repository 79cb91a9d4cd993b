// Package mcpserver is the protocol core: a Dispatcher that validates
// JSON-RPC envelopes, owns the session table and routes MCP methods to a
// ResourceProvider and a ToolProvider.
//
// A Dispatcher knows nothing about transports. Hosts hand it the raw request
// body, the session token the client presented (if any) and the
// authenticated principal, and get back a Result carrying a status, a body
// and the session token to return to the client:
//
//	d := mcpserver.New(resources, tools, mcpserver.WithLogger(log))
//	res := d.Handle(ctx, body, r.Header.Get("Mcp-Session-Id"), user)
//
// The handshake is initialize, which mints a session, followed by
// notifications/initialized. Until the second step completes only ping is
// accepted. Protocol failures become JSON-RPC errors and leave the session
// intact; tool failures are ordinary results with isError set.
package mcpserver
