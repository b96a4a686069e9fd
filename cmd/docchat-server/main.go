// Package main provides the docchat web gate: it protects the dashboard
// routes and signs browsers in against the identity provider.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/docchat/internal/app"
	"github.com/raphaelgruber/docchat/internal/auth"
	"github.com/raphaelgruber/docchat/internal/client"
	"github.com/raphaelgruber/docchat/internal/config"
	"github.com/raphaelgruber/docchat/internal/metrics"
	"github.com/raphaelgruber/docchat/internal/server"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel())
	defer func() { _ = cleanup() }()

	logger.Info("docchat-server starting",
		"version", version,
		"port", cfg.ServerPort,
		"protected", cfg.ProtectedPrefixes,
	)

	// Browser requests carry their own token; a rejected cookie must not
	// end any other session, so there is no token source or expiry hook.
	c := client.New(client.Options{
		BaseURLs: map[client.Backend]string{
			client.BackendChat:       cfg.ChatServiceURL,
			client.BackendManagement: cfg.ManagementServiceURL,
			client.BackendIngestion:  cfg.IngestionServiceURL,
		},
		Timeout: cfg.ClientTimeout,
		Metrics: metrics.NewCollector(),
		Logger:  logger,
	})

	srv := server.New(server.Options{
		Services:          app.NewServices(c),
		Provider:          auth.NewOAuthProvider(cfg.AuthTokenURL, cfg.AuthClientID, cfg.AuthClientSecret, cfg.AuthScopes, nil),
		ProtectedPrefixes: cfg.ProtectedPrefixes,
		Logger:            logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx, ":"+cfg.ServerPort); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
