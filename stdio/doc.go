// Package stdio serves a Dispatcher over a single newline-delimited JSON-RPC
// stream, normally the process's stdin and stdout.
//
//	Connection model : 1 process <-> 1 client
//	Auth             : OS user (implicit principal)
//	Sessions         : the one opened by the client's initialize
//
// Each input line is one message. Each response is written as one line;
// notifications produce no output. The session token returned by initialize
// is remembered and presented on every later message, so stdio clients never
// see an Mcp-Session-Id.
//
//	d := mcpserver.New(cat, cat.Tools())
//	if err := stdio.NewHandler(d).Serve(ctx); err != nil {
//	    log.Fatal(err)
//	}
package stdio
