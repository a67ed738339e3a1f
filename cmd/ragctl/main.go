package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/source-knowledge/internal/bootstrap"
	"github.com/kirillkom/source-knowledge/internal/config"
	"github.com/kirillkom/source-knowledge/internal/observability/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.NewLoggerTo(os.Stderr, "ragctl", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(func(ctx context.Context) (*bootstrap.App, error) {
		return bootstrap.New(ctx, cfg, nil)
	}, logger)
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
