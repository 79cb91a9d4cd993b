// Package catalog serves a records.Store over MCP: documents and chats as
// resources, and the am7_* tools for search, listing, reading and filtering.
// Every record a caller sees has first passed an Authorizer decision.
package catalog

import (
	"context"
	"io"
	"log/slog"

	"github.com/ggoodman/mcp-context-go/mcpservice"
	"github.com/ggoodman/mcp-context-go/policy"
	"github.com/ggoodman/mcp-context-go/records"
	"github.com/ggoodman/mcp-context-go/sessions"
)

// DefaultPageSize is the resources/list page size.
const DefaultPageSize = 50

// DefaultOrgClaim is the token claim naming the caller's organization.
const DefaultOrgClaim = "org"

// Authorizer decides whether a principal may act on a record.
// *policy.Engine satisfies it.
type Authorizer interface {
	Allow(ctx context.Context, input policy.Input) (bool, error)
}

// Catalog implements both the resource and the tool provider interfaces.
type Catalog struct {
	store      records.Store
	authz      Authorizer
	log        *slog.Logger
	pageSize   int
	orgClaim   string
	defaultOrg string
	tools      *mcpservice.ToolSet
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Catalog) {
		if log != nil {
			c.log = log
		}
	}
}

// WithPageSize overrides DefaultPageSize.
func WithPageSize(n int) Option {
	return func(c *Catalog) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithOrgClaim names the claim holding the caller's organization.
func WithOrgClaim(name string) Option {
	return func(c *Catalog) { c.orgClaim = name }
}

// WithDefaultOrganization is used for callers whose principal carries no
// organization claim, such as the stdio transport.
func WithDefaultOrganization(org string) Option {
	return func(c *Catalog) { c.defaultOrg = org }
}

// New returns a Catalog over store. A nil authz denies every record.
func New(store records.Store, authz Authorizer, opts ...Option) *Catalog {
	c := &Catalog{
		store:    store,
		authz:    authz,
		log:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		pageSize: DefaultPageSize,
		orgClaim: DefaultOrgClaim,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tools = mcpservice.NewToolSet(c.toolDefinitions()...)
	return c
}

// principal resolves the caller. Organization falls back to the default.
func (c *Catalog) principal(s *sessions.Session) policy.Principal {
	if s == nil {
		return policy.Principal{}
	}
	p := policy.Principal{ID: s.UserID()}
	if u := s.Principal(); u != nil && c.orgClaim != "" {
		var claims map[string]any
		if err := u.Claims(&claims); err == nil {
			if org, ok := claims[c.orgClaim].(string); ok {
				p.Organization = org
			}
		}
	}
	return p
}

// organization is the organization a caller's listings are scoped to.
func (c *Catalog) organization(p policy.Principal) string {
	if p.Organization != "" {
		return p.Organization
	}
	return c.defaultOrg
}

func (c *Catalog) allowed(ctx context.Context, p policy.Principal, action string, rec policy.Record) bool {
	if c.authz == nil {
		return false
	}
	ok, err := c.authz.Allow(ctx, policy.Input{Principal: p, Action: action, Record: rec})
	if err != nil {
		c.log.ErrorContext(ctx, "catalog.authorize.err",
			slog.String("action", action),
			slog.String("err", err.Error()))
		return false
	}
	return ok
}

func documentRecord(d *records.Document) policy.Record {
	return policy.Record{Organization: d.Organization, Owner: d.Owner, Public: d.Public, Type: typeDocument}
}

func chatRecord(ch *records.Chat) policy.Record {
	return policy.Record{Organization: ch.Organization, Owner: ch.Owner, Type: typeChat}
}

func (c *Catalog) allowDocument(ctx context.Context, p policy.Principal, action string, d *records.Document) bool {
	return c.allowed(ctx, p, action, documentRecord(d))
}
