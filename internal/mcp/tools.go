package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/pkg/client"
)

const (
	searchKnowledgeTool = "search_knowledge"
	defaultMaxResults   = 3
)

type searchKnowledgeInput struct {
	Query        string `json:"query" jsonschema:"Question or keywords to look up in the knowledge base"`
	DocumentType string `json:"document_type,omitempty" jsonschema:"Only return chunks tagged with this document type, e.g. troubleshooting"`
	MaxResults   int    `json:"max_results,omitempty" jsonschema:"Maximum number of chunks to return (default: 3)"`
}

type searchKnowledgeOutput struct {
	Query   string `json:"query" jsonschema:"Search query used"`
	Count   int    `json:"count" jsonschema:"Number of chunks found"`
	Context string `json:"context" jsonschema:"Chunks formatted as numbered documents, empty when nothing matched"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        searchKnowledgeTool,
		Description: "Search the ingested knowledge base (troubleshooting guides and policy notes) for passages relevant to a question. Returns the closest chunks as numbered documents ready to quote.",
	}, s.handleSearchKnowledge)
}

func (s *Server) handleSearchKnowledge(ctx context.Context, _ *mcp.CallToolRequest, args searchKnowledgeInput) (_ *mcp.CallToolResult, out searchKnowledgeOutput, err error) {
	start := time.Now()
	defer func() {
		s.metrics.observe(ctx, searchKnowledgeTool, start, out.Count, err)
	}()

	query := strings.TrimSpace(args.Query)
	if query == "" {
		return nil, searchKnowledgeOutput{}, fmt.Errorf("%w: query is required", errInvalidArguments)
	}
	if args.MaxResults < 0 {
		return nil, searchKnowledgeOutput{}, fmt.Errorf("%w: max_results must be positive, got %d", errInvalidArguments, args.MaxResults)
	}
	maxResults := args.MaxResults
	if maxResults == 0 {
		maxResults = defaultMaxResults
	}

	results, err := s.searcher.Search(ctx, query, maxResults, args.DocumentType)
	if err != nil {
		s.logger.Warn("knowledge search failed", zap.String("query", query), zap.Error(err))
		return nil, searchKnowledgeOutput{}, fmt.Errorf("search failed: %w", err)
	}

	output := searchKnowledgeOutput{
		Query:   query,
		Count:   len(results),
		Context: client.FormatContext(results),
	}

	text := output.Context
	if len(results) == 0 {
		text = nothingFound(query, args.DocumentType)
	}

	s.logger.Debug("knowledge search complete",
		zap.String("query", query),
		zap.Int("results", len(results)),
	)

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}, output, nil
}

func nothingFound(query, documentType string) string {
	if documentType != "" {
		return fmt.Sprintf("No relevant documents found for %q with document_type %q.", query, documentType)
	}
	return fmt.Sprintf("No relevant documents found for %q.", query)
}
