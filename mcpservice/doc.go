// Package mcpservice has building blocks for the providers a dispatcher
// routes to.
//
// NewTool turns a typed handler into a Tool whose input schema is reflected
// from the argument struct. NewToolSet serves a fixed set of tools and
// NewResourceSet a fixed set of resources, templates and contents; together
// they make a complete provider pair for servers with static catalogues and
// for protocol tests:
//
//	type EchoArgs struct {
//	    Message string `json:"message" jsonschema:"description=Text to echo"`
//	}
//
//	echo := mcpservice.NewTool("echo",
//	    func(ctx context.Context, s *sessions.Session, a EchoArgs) (*mcp.CallToolResult, error) {
//	        return mcpservice.TextResult("you said: " + a.Message), nil
//	    },
//	    mcpservice.WithToolDescription("Echo a message back to the caller"),
//	)
//	d := mcpserver.New(mcpservice.NewResourceSet(nil, nil, nil), mcpservice.NewToolSet(echo))
package mcpservice
