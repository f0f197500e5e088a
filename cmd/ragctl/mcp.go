package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/mcp"
)

func newMCPCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the search_knowledge MCP tool over stdio",
		Long: `Run an MCP server on stdin/stdout exposing search_knowledge, which
forwards queries to the ragd server given by --server.

Logs go to stderr. Register it with an MCP client as:

  {"command": "ragctl", "args": ["mcp", "--server", "http://localhost:8001"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(); err != nil {
				return err
			}
			cfg, err := config.LoadWithFile(root.configPath)
			if err != nil {
				return err
			}
			logger, err := newStderrLogger(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			server, err := mcp.NewServer(&mcp.Config{
				Name:    "ragd",
				Version: version,
				Logger:  logger.Underlying().Named("mcp"),
			}, root.client())
			if err != nil {
				return err
			}
			return server.Run(cmd.Context())
		},
	}
}
