package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragd/pkg/client"
)

func newSearchCmd(root *rootOptions) *cobra.Command {
	var (
		maxResults   int
		documentType string
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge base through a running ragd server",
		Long: `Search the knowledge base and print the nearest chunks as numbered documents.

Examples:
  ragctl search "why was my ad rejected"
  ragctl search --document-type troubleshooting --max-results 5 pixel not firing
  ragctl search --json "billing"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			results, err := root.client().Search(cmd.Context(), query, maxResults, documentType)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"results": results, "query": query})
			}
			if len(results) == 0 {
				fmt.Fprintln(out, "No relevant documents found")
				return nil
			}
			fmt.Fprintln(out, client.FormatContext(results))
			return nil
		},
	}

	cmd.Flags().IntVarP(&maxResults, "max-results", "n", 3, "maximum number of chunks")
	cmd.Flags().StringVar(&documentType, "document-type", "", "only return chunks with this document_type")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw response")

	return cmd
}

func newHealthCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check ragd server health",
		Long: `Check the health status of the ragd HTTP server.

Examples:
  ragctl health
  ragctl health --server http://localhost:9000`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := root.client().Health(cmd.Context())
			if err != nil {
				return fmt.Errorf("health check against %s failed: %w", root.serverURL, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server Status: %s (%s)\n", status.Status, status.Message)
			return nil
		},
	}
}
