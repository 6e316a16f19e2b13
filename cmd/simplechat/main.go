package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aaronba/SimpleChatAgent/internal/backend"
	"github.com/aaronba/SimpleChatAgent/internal/config"
	"github.com/aaronba/SimpleChatAgent/internal/history"
	"github.com/aaronba/SimpleChatAgent/internal/logger"
	"github.com/aaronba/SimpleChatAgent/internal/mcptools"
	"github.com/aaronba/SimpleChatAgent/internal/relay"
	"github.com/aaronba/SimpleChatAgent/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	broker := mcptools.NewBroker(ctx, cfg.MCPServers)
	defer broker.Close()

	invoker, configured, err := backend.Resolve(cfg, broker)
	if err != nil {
		logger.L.Error("failed to resolve backend", "error", err)
		os.Exit(1)
	}
	printBanner(cfg, configured)

	chatRelay := relay.New(invoker, configured)
	store := history.NewStore(cfg.History.DBPath)
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler: server.New(chatRelay, store).Handler(),
	}

	go func() {
		logger.L.Info("starting server", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.L.Error("failed to start server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.L.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.L.Warn("server shutdown error", "error", err)
	}
}

// printBanner reports at startup whether the remote agent service is in use,
// so a misconfigured deployment is obvious from the first log lines.
func printBanner(cfg *config.Config, configured bool) {
	if configured {
		logger.L.Info("azure AI foundry agent service: enabled",
			"endpoint", cfg.Azure.ProjectEndpoint,
			"model", cfg.Azure.ModelDeployment,
			"auth", authMode(cfg))
		return
	}
	logger.L.Warn("azure AI foundry agent service: disabled; echo mode active",
		"hint", "set AZURE_AI_PROJECT_ENDPOINT and AZURE_AI_MODEL_DEPLOYMENT_NAME to enable")
}

func authMode(cfg *config.Config) string {
	if cfg.Azure.APIKey != "" {
		return "api_key"
	}
	return "azure_ad"
}
