// Package auth provides the bearer token authentication used by the HTTP
// transport. An Authenticator validates a token string and returns the
// UserInfo that the dispatcher binds to a session as its principal.
//
// Three JWT constructors are available:
//
//	authn, err := auth.NewFromDiscovery(ctx, "https://issuer.example", "https://mcp.example/",
//	    auth.WithRequiredScopes("mcp:read"),
//	)
//	authn, err := auth.NewStatic(ctx, issuer, audience, jwksURI)
//	authn, err := auth.NewHMAC("local", "mcp", []byte(secret))
//
// ErrUnauthorized signals an invalid token (signature, expiry, audience and
// so on). ErrInsufficientScope signals a valid token missing required scopes.
// Transports map them to 401 and 403 respectively.
package auth
