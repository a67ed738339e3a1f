package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/source-knowledge/internal/adapters/mcp"
	"github.com/kirillkom/source-knowledge/internal/bootstrap"
	"github.com/kirillkom/source-knowledge/internal/config"
	"github.com/kirillkom/source-knowledge/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	// stdout carries the MCP protocol.
	slog.SetDefault(logging.NewLoggerTo(os.Stderr, "source-knowledge-mcp", cfg.LogLevel))

	app, err := bootstrap.New(context.Background(), cfg, nil)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	tools := mcpadapter.NewTools(app.Retriever, app.Composer, cfg.RAGTopK)
	if err := server.ServeStdio(mcpadapter.NewServer(tools)); err != nil {
		slog.Error("mcp_server_failed", "error", err)
		os.Exit(1)
	}
}
