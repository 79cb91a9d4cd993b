package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ggoodman/mcp-context-go/auth"
	"github.com/ggoodman/mcp-context-go/stdio"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP over a transport.",
	}
	cmd.AddCommand(serveHTTPCmd(a), serveStdioCmd(a))
	return cmd
}

func serveHTTPCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "http",
		Short: "Serve MCP over HTTP, with prometheus metrics at /metrics.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.HTTPAddr = addr
			}
			ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", a.cfg.HTTPAddr, err)
			}
			return a.serveHTTP(cmd.Context(), ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address; overrides MCPCTX_HTTP_ADDR")
	return cmd
}

func (a *app) serveHTTP(ctx context.Context, ln net.Listener) error {
	reg := prometheus.NewRegistry()
	svc, err := a.build(ctx, reg)
	if err != nil {
		return err
	}
	defer svc.Close()

	authenticator, err := a.authenticator(ctx)
	if err != nil {
		return err
	}
	handler, err := a.httpHandler(svc, authenticator, reg)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	a.log.InfoContext(ctx, "serve.http.start", slog.String("addr", ln.Addr().String()), slog.String("auth", a.cfg.AuthMode))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	a.log.InfoContext(ctx, "serve.http.stop")
	return srv.Shutdown(shutdownCtx)
}

func serveStdioCmd(a *app) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "stdio",
		Short: "Serve a single MCP client over stdin and stdout.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := a.build(ctx, nil)
			if err != nil {
				return err
			}
			defer svc.Close()

			opts := []stdio.Option{
				stdio.WithIO(cmd.InOrStdin(), cmd.OutOrStdout()),
				stdio.WithLogger(a.log),
			}
			if user != "" {
				opts = append(opts, stdio.WithUserProvider(stdio.StaticUserProvider(user)))
			}
			if p := a.stdioPrincipal(user); p != nil {
				opts = append(opts, stdio.WithPrincipal(p))
			}
			err = stdio.NewHandler(svc.dispatcher, opts...).Serve(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id of the stdio peer; defaults to the OS user")
	return cmd
}

// stdioPrincipal carries MCPCTX_ORG as the org claim. It returns nil when
// there is no org to carry, leaving identity to the user provider.
func (a *app) stdioPrincipal(user string) auth.UserInfo {
	if a.cfg.Org == "" {
		return nil
	}
	if user == "" {
		id, err := (stdio.OSUserProvider{}).CurrentUserID()
		if err != nil {
			return nil
		}
		user = id
	}
	return auth.NewUser(user, map[string]any{a.cfg.OrgClaim: a.cfg.Org})
}
