package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/glaucopicci/api-risa-goya/internal/config"
	"github.com/glaucopicci/api-risa-goya/internal/logging"
	"github.com/glaucopicci/api-risa-goya/internal/server"
	"github.com/glaucopicci/api-risa-goya/internal/webhook"
)

const version = "1.0.0"

var (
	loadDotEnv                   = godotenv.Load
	newServer                    = server.New
	defaultListenServe           = listenAndServe
	stdout             io.Writer = os.Stdout
)

func main() {
	if err := newApp(defaultListenServe).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newApp(serve func(string, http.Handler) error) *cli.App {
	serveAction := func(c *cli.Context) error {
		return run(c.Context, c.String("config"), serve)
	}

	return &cli.App{
		Name:    "risa",
		Usage:   "Editorial review relay for Podio items",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE` (TOML, below the environment)",
			},
		},
		Action: serveAction,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Receive Podio webhooks and post reviews (default)",
				Action: serveAction,
			},
			{
				Name:  "review",
				Usage: "Review one item now, regardless of its status",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:     "item",
						Aliases:  []string{"i"},
						Usage:    "Podio item `ID`",
						Required: true,
					},
					&cli.BoolFlag{
						Name:    "dry-run",
						Aliases: []string{"d"},
						Usage:   "Print the review without posting the comment",
					},
				},
				Action: func(c *cli.Context) error {
					return runReview(c.Context, c.String("config"), c.Int64("item"), c.Bool("dry-run"))
				},
			},
			{
				Name:  "forward-token",
				Usage: "Print a bearer token for the /revisar endpoint",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "ttl",
						Usage: "Token lifetime, 0 for no expiry",
						Value: 365 * 24 * time.Hour,
					},
				},
				Action: func(c *cli.Context) error {
					return runForwardToken(c.String("config"), c.Duration("ttl"))
				},
			},
		},
	}
}

// loadConfig reads .env, then the layered configuration, and sets up logging.
func loadConfig(path string, validate bool) (*config.Config, error) {
	// Load .env file (ignore error if file doesn't exist)
	_ = loadDotEnv()

	if path == "" {
		path = os.Getenv("RISA_CONFIG")
	}

	load := config.Load
	if !validate {
		load = config.LoadUnvalidated
	}
	cfg, err := load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	return cfg, nil
}

func run(ctx context.Context, configPath string, serve func(string, http.Handler) error) error {
	cfg, err := loadConfig(configPath, true)
	if err != nil {
		return err
	}

	log.Info().
		Int("port", cfg.Port).
		Str("model", cfg.OpenAIModel).
		Int64("webhook_id", cfg.PodioWebhookID).
		Str("ready_status", cfg.ReadyStatusLabel).
		Int64("ready_option_id", cfg.ReadyStatusOptionID).
		Bool("oauth_refresh", cfg.HasRefreshCredentials()).
		Int("comment_workers", cfg.CommentWorkers).
		Int("comment_queue", cfg.CommentQueueSize).
		Msg("Starting Risa review relay")

	srv, err := newServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Info().Str("addr", addr).Msg("Server listening")
	log.Info().Msgf("Webhook endpoint: http://localhost%s/webhook", addr)
	if cfg.ForwardSecret != "" {
		log.Info().Msgf("Forwarded events: http://localhost%s/revisar", addr)
	}
	log.Info().Msgf("Health check: http://localhost%s/health", addr)

	if err := serve(addr, srv.Router()); err != nil {
		return fmt.Errorf("server failed to start: %w", err)
	}

	return nil
}

func runReview(ctx context.Context, configPath string, itemID int64, dryRun bool) error {
	if itemID <= 0 {
		return fmt.Errorf("invalid item id: %d", itemID)
	}

	cfg, err := loadConfig(configPath, true)
	if err != nil {
		return err
	}

	srv, err := newServer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	defer srv.Shutdown(ctx)

	if dryRun {
		result, err := srv.Preview(ctx, itemID)
		if err != nil {
			return fmt.Errorf("review of item %d failed: %w", itemID, err)
		}
		fmt.Fprintln(stdout, result.Text)
		return nil
	}

	result, comment, err := srv.ReviewNow(ctx, itemID)
	if err != nil {
		return fmt.Errorf("review of item %d failed: %w", itemID, err)
	}
	if comment == nil {
		fmt.Fprintf(stdout, "Empty review for item %d, nothing posted\n", itemID)
		return nil
	}
	fmt.Fprintln(stdout, result.Text)
	fmt.Fprintf(stdout, "Comment %d posted on item %d\n", comment.CommentID, itemID)
	return nil
}

func runForwardToken(configPath string, ttl time.Duration) error {
	cfg, err := loadConfig(configPath, false)
	if err != nil {
		return err
	}
	if cfg.ForwardSecret == "" {
		return errors.New("FORWARD_SECRET is not set")
	}

	token, err := webhook.SignForwardToken(cfg.ForwardSecret, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, token)
	return nil
}

// listenAndServe serves until SIGINT or SIGTERM, then lets in-flight
// requests finish.
func listenAndServe(addr string, handler http.Handler) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	log.Info().Msg("Server stopped")
	return nil
}
