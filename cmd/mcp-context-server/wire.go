package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ggoodman/mcp-context-go/auth"
	"github.com/ggoodman/mcp-context-go/catalog"
	"github.com/ggoodman/mcp-context-go/internal/config"
	"github.com/ggoodman/mcp-context-go/internal/wellknown"
	"github.com/ggoodman/mcp-context-go/mcpserver"
	"github.com/ggoodman/mcp-context-go/policy"
	"github.com/ggoodman/mcp-context-go/records"
	"github.com/ggoodman/mcp-context-go/records/memory"
	"github.com/ggoodman/mcp-context-go/records/redisstore"
	"github.com/ggoodman/mcp-context-go/records/sqlitestore"
	"github.com/ggoodman/mcp-context-go/streaminghttp"
)

const defaultMCPPath = "/mcp"

// service is everything a transport needs, plus what must be released when
// it stops.
type service struct {
	store      records.Store
	catalog    *catalog.Catalog
	dispatcher *mcpserver.Dispatcher
	cancel     context.CancelFunc
}

func (s *service) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	_ = s.store.Close()
}

// build opens the store, loads the policy and assembles the dispatcher. reg
// may be nil, in which case no metrics are recorded.
func (a *app) build(ctx context.Context, reg prometheus.Registerer) (*service, error) {
	ctx, cancel := context.WithCancel(ctx)
	store, err := a.openStore(ctx)
	if err != nil {
		cancel()
		return nil, err
	}

	var engine *policy.Engine
	if a.cfg.PolicyFile != "" {
		engine, err = policy.NewEngineFromFile(ctx, a.cfg.PolicyFile)
	} else {
		engine, err = policy.Default(ctx)
	}
	if err != nil {
		cancel()
		_ = store.Close()
		return nil, fmt.Errorf("load policy: %w", err)
	}

	cat := catalog.New(store, engine,
		catalog.WithLogger(a.log),
		catalog.WithPageSize(a.cfg.PageSize),
		catalog.WithOrgClaim(a.cfg.OrgClaim),
		catalog.WithDefaultOrganization(a.cfg.Org),
	)
	opts := []mcpserver.Option{
		mcpserver.WithLogger(a.log),
		mcpserver.WithSessionTimeout(a.cfg.SessionTimeout),
	}
	if reg != nil {
		opts = append(opts, mcpserver.WithMetrics(mcpserver.NewMetrics(reg)))
	}
	return &service{
		store:      store,
		catalog:    cat,
		dispatcher: mcpserver.New(cat, cat, opts...),
		cancel:     cancel,
	}, nil
}

func (a *app) openStore(ctx context.Context) (records.Store, error) {
	switch a.cfg.Store {
	case config.StoreRedis:
		opt, err := redis.ParseURL(a.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		return redisstore.New(redisstore.Config{Client: client, KeyPrefix: a.cfg.RedisKeyPrefix})
	case config.StoreSQLite:
		return sqlitestore.Open(a.cfg.SQLiteDSN)
	}

	store := memory.New(memory.WithLogger(a.log))
	if a.cfg.SeedDir == "" {
		return store, nil
	}
	dir, err := filepath.Abs(a.cfg.SeedDir)
	if err != nil {
		return nil, err
	}
	src := memory.DirSource{
		Dir:          dir,
		Organization: a.cfg.Org,
		Owner:        a.cfg.SeedOwner,
		Public:       a.cfg.SeedOwner == "",
	}
	if _, err := store.LoadDir(ctx, src); err != nil {
		return nil, fmt.Errorf("seed %s: %w", dir, err)
	}
	go func() {
		if err := store.Watch(ctx, src); err != nil && !errors.Is(err, context.Canceled) {
			a.log.ErrorContext(ctx, "records.memory.watch.fail", slog.String("err", err.Error()))
		}
	}()
	return store, nil
}

// authenticator returns nil for AuthNone, which the HTTP handler treats as
// anonymous access.
func (a *app) authenticator(ctx context.Context) (auth.Authenticator, error) {
	var opts []auth.AccessTokenAuthOption
	if scopes := a.cfg.RequiredScopes(); len(scopes) > 0 {
		opts = append(opts, auth.WithRequiredScopes(scopes...))
	}
	switch a.cfg.AuthMode {
	case config.AuthHMAC:
		return auth.NewHMAC(a.cfg.Issuer, a.cfg.Audience, []byte(a.cfg.HMACSecret), opts...)
	case config.AuthStatic:
		return auth.NewStatic(ctx, a.cfg.Issuer, a.cfg.Audience, a.cfg.JWKSURI, opts...)
	case config.AuthDiscovery:
		return auth.NewFromDiscovery(ctx, a.cfg.Issuer, a.cfg.Audience, opts...)
	}
	return nil, nil
}

// httpHandler routes the MCP endpoint, /metrics and, when a base URL is
// configured with authentication, the protected resource metadata document.
func (a *app) httpHandler(svc *service, authenticator auth.Authenticator, reg *prometheus.Registry) (http.Handler, error) {
	mcpPath := defaultMCPPath
	hopts := []streaminghttp.Option{streaminghttp.WithLogger(a.log)}
	mux := http.NewServeMux()

	if a.cfg.BaseURL != "" {
		u, err := url.Parse(a.cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL %q: %w", a.cfg.BaseURL, err)
		}
		if p := strings.TrimSuffix(u.Path, "/"); p != "" {
			mcpPath = p
		}
		hopts = append(hopts, streaminghttp.WithRealm(u.String()))
		if authenticator != nil {
			prm, err := wellknown.NewProtectedResource(a.cfg.BaseURL, a.cfg.Issuer, a.cfg.JWKSURI, mcpserver.DefaultServerName, a.cfg.RequiredScopes())
			if err != nil {
				return nil, err
			}
			mux.Handle(prm.Path(), prm)
			hopts = append(hopts, streaminghttp.WithResourceMetadata(prm.DocumentURL()))
		}
	}

	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.Handle(mcpPath, streaminghttp.New(svc.dispatcher, authenticator, hopts...))
	return mux, nil
}
