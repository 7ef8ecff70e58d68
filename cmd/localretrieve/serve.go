package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/localretrieve/localretrieve/internal/config"
	"github.com/localretrieve/localretrieve/internal/engine"
	"github.com/localretrieve/localretrieve/internal/logging"
	"github.com/localretrieve/localretrieve/internal/rpcserver"
)

var (
	servePath       string
	serveConfigPath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP/JSON-RPC server",
	Long: `Start the localretrieve database as a standalone HTTP/JSON-RPC server.

Examples:
  # Start with defaults against an in-memory database
  localretrieve serve

  # Start against a durable logical path
  localretrieve serve --path opfs:/workspace.db

  # Load configuration from a specific file
  localretrieve serve --config /etc/localretrieve/config.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePath, "path", ":memory:", "database logical path")
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "configuration file path (defaults to ~/.config/localretrieve/config.yaml)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(os.Stderr, "received signal %v, shutting down gracefully...\n", sig)
		cancel()
	}()

	if err := run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	fmt.Fprintln(os.Stderr, "server shutdown complete")
	return nil
}

// run loads configuration, opens the database, wires the HTTP/JSON-RPC
// surface, and blocks until ctx is cancelled.
//
// Returns http.ErrServerClosed on graceful shutdown.
func run(ctx context.Context) error {
	cfg, err := config.LoadWithFile(serveConfigPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.NewLogger(logging.NewDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	logger.Info(ctx, "starting localretrieve",
		zap.Int("port", cfg.Server.Port),
		zap.String("path", servePath),
		zap.Duration("shutdown_timeout", cfg.ServerShutdownTimeout()))

	worker := engine.New(cfg, logger)
	if err := worker.Open(ctx, servePath); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout())
		defer shutdownCancel()
		if err := worker.Close(shutdownCtx); err != nil {
			logger.Error(shutdownCtx, "failed to close database cleanly", zap.Error(err))
		}
	}()

	srv := rpcserver.New(cfg, logger, worker)

	logger.Info(ctx, "server configured",
		zap.String("health_endpoint", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port)),
		zap.String("rpc_prefix", "/rpc"))

	return srv.Start(ctx)
}
