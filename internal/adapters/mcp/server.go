// Package mcpadapter exposes retrieval and prompt composition as MCP tools.
package mcpadapter

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/source-knowledge/internal/core/domain"
	"github.com/kirillkom/source-knowledge/internal/core/ports"
)

const (
	serverName    = "source-knowledge"
	serverVersion = "0.1.0"
)

type Tools struct {
	retriever   ports.Retriever
	composer    ports.PromptComposer
	defaultTopK int
}

func NewTools(retriever ports.Retriever, composer ports.PromptComposer, defaultTopK int) *Tools {
	if defaultTopK <= 0 {
		defaultTopK = 3
	}
	return &Tools{retriever: retriever, composer: composer, defaultTopK: defaultTopK}
}

// NewServer registers the retrieve and compose_prompt tools.
func NewServer(tools *Tools) *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("retrieve",
		mcp.WithDescription("Return the top-k documents of the knowledge base most similar to the query."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language query")),
		mcp.WithNumber("k", mcp.Description("Number of documents to return")),
	), tools.Retrieve)

	s.AddTool(mcp.NewTool("compose_prompt",
		mcp.WithDescription("Retrieve source knowledge for the query and return the augmented prompt."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Natural language query")),
		mcp.WithNumber("k", mcp.Description("Number of documents to inject")),
	), tools.ComposePrompt)

	return s
}

func (t *Tools) Retrieve(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	_, results, errResult := t.retrieve(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	return jsonResult(map[string]any{"results": results})
}

func (t *Tools) ComposePrompt(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, results, errResult := t.retrieve(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	composed := t.composer.ComposeWithSources(query, results)
	return mcp.NewToolResultText(composed.Text), nil
}

// retrieve returns a tool error result for caller mistakes and store
// failures, so the client model can react to them.
func (t *Tools) retrieve(ctx context.Context, req mcp.CallToolRequest) (string, []domain.RetrievalResult, *mcp.CallToolResult) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return "", nil, mcp.NewToolResultError("query is required")
	}
	k := req.GetInt("k", t.defaultTopK)

	results, err := t.retriever.Retrieve(ctx, query, k)
	if err != nil {
		return "", nil, mcp.NewToolResultError(err.Error())
	}
	return query, results, nil
}

func jsonResult(payload any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}
