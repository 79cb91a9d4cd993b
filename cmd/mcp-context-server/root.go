package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ggoodman/mcp-context-go/internal/config"
	"github.com/ggoodman/mcp-context-go/internal/logctx"
)

// app is the state shared by every subcommand once PersistentPreRunE has run.
type app struct {
	cfg config.Config
	log *slog.Logger

	logLevel string
}

func rootCmd() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   "mcp-context-server",
		Short: "MCP server for organization records and mcp:context markup.",
		Long: `mcp-context-server exposes documents and chats as MCP resources and tools.

Settings come from MCPCTX_* environment variables; flags override the listen
address and the log level.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error); overrides MCPCTX_LOG_LEVEL")

	cmd.AddCommand(
		serveCmd(a),
		filterCmd(),
	)
	return cmd
}

func (a *app) init(logOut io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	level, err := cfg.Level()
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = slog.New(logctx.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: level})))
	return nil
}
