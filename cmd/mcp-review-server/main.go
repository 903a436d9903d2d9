package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"github.com/glaucopicci/api-risa-goya/internal/config"
	"github.com/glaucopicci/api-risa-goya/internal/logging"
	"github.com/glaucopicci/api-risa-goya/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("MCP review server failed")
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("RISA_CONFIG"))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	// stdout carries the protocol
	logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv, err := server.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize relay: %w", err)
	}
	defer srv.Shutdown(context.Background())

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    "risa-review-server",
		Version: "v1.0.0",
	}, nil)

	tool := &mcp.Tool{
		Name:        "review_item",
		Description: "Run the editorial review of a Podio item and post it as a comment (dry_run only returns the text)",
	}
	mcp.AddTool(mcpServer, tool, NewReviewTool(srv).Handle)
	log.Info().Str("tool", tool.Name).Msg("Registered tool")

	log.Info().Msg("Starting MCP review server on stdio")
	if err := mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}
	log.Info().Msg("MCP review server stopped")
	return nil
}
