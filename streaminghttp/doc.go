// Package streaminghttp serves an mcpserver.Dispatcher over HTTP. Each POST
// carries one JSON-RPC message and receives one JSON response; the session
// travels in the Mcp-Session-Id header in both directions.
//
// Status mapping:
//   - 200 for every JSON-RPC response, errors included
//   - 204 for notifications and for DELETE of a session
//   - 401 or 403 with a Bearer challenge when authentication fails
//   - 415 and 406 for unusable Content-Type and Accept headers
//   - 405 for GET, which would open a server-sent event stream this
//     server does not offer
//
// Example:
//
//	d := mcpserver.New(cat, cat)
//	h := streaminghttp.New(d, authenticator, streaminghttp.WithLogger(log))
//	http.ListenAndServe(":8080", h)
package streaminghttp
