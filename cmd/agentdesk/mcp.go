package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"agentdesk/internal/adapter/mcp"
	"agentdesk/internal/infra/config"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the support desk as MCP tools over stdio",
		Example: `  # claude_desktop_config.json
  # {
  #   "mcpServers": {
  #     "agentdesk": {"command": "agentdesk", "args": ["mcp"]}
  #   }
  # }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			// stdout carries the protocol.
			a, err := newApp(ctx, opts, func(cfg *config.Config) {
				if cfg.Logger.Output == "stdout" {
					cfg.Logger.Output = "stderr"
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			server := mcp.NewServer(version, a.chat, a.log)
			a.log.Info("mcp server listening on stdio")
			return mcp.ServeStdio(ctx, server)
		},
	}
}
