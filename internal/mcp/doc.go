// Package mcp exposes the ragd knowledge base to MCP clients.
//
// The server speaks MCP over stdio (github.com/modelcontextprotocol/go-sdk/mcp)
// and registers a single tool, search_knowledge, which forwards queries to a
// running ragd query service and returns the results formatted as prompt
// context.
package mcp
