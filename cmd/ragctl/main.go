// Package main implements ragctl, the command-line companion to ragd.
//
// ragctl ingests documents into the vector store, queries a running ragd
// server and serves the search_knowledge MCP tool over stdio.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/fyrsmithlabs/ragd/pkg/client"
)

// version information
var version = "dev"

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	serverURL  string
	configPath string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ragctl",
		Short: "Ingest documents and query the ragd service",
		Long: `ragctl is a command-line interface for ragd.

It loads *crisp.txt documents into the vector store, runs searches against a
running ragd server and exposes the knowledge base to MCP clients.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.serverURL, "server", client.DefaultBaseURL, "ragd server URL")
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/ragd/config.yaml)")

	cmd.AddCommand(newIngestCmd(opts))
	cmd.AddCommand(newSearchCmd(opts))
	cmd.AddCommand(newHealthCmd(opts))
	cmd.AddCommand(newMCPCmd(opts))

	return cmd
}

// loadConfig reads .env, the config file and the environment.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.LoadWithFile(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// newStderrLogger builds a logger that keeps stdout free for command output
// and the MCP protocol.
func newStderrLogger(cfg config.LoggingConfig) (*logging.Logger, error) {
	logCfg, err := logging.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid logging configuration: %w", err)
	}
	logCfg.Output.Stderr = true
	logCfg.Format = "console"
	return logging.NewLogger(logCfg, nil)
}

func (o *rootOptions) client() *client.Client {
	return client.New(o.serverURL)
}
