// Package backend resolves, once at startup, which reply backend the relay
// talks to: the remote Azure AI Foundry agent when the service is configured,
// or a local echo otherwise.
package backend

import (
	"context"

	"github.com/aaronba/SimpleChatAgent/internal/config"
	"github.com/aaronba/SimpleChatAgent/internal/foundry"
	"github.com/aaronba/SimpleChatAgent/internal/logger"
	"github.com/aaronba/SimpleChatAgent/internal/mcptools"
)

// Invoker turns an input message into a reply. Implementations must be safe
// for concurrent use.
type Invoker interface {
	Invoke(ctx context.Context, text string) (string, error)
}

// Echo is the fallback backend used when no remote service is configured.
// It returns the input unchanged and never fails.
type Echo struct{}

// Invoke returns text verbatim.
func (Echo) Invoke(_ context.Context, text string) (string, error) {
	return text, nil
}

// Resolve picks the backend for this process. The returned bool reports
// whether the remote service is in use.
func Resolve(cfg *config.Config, broker *mcptools.Broker) (Invoker, bool, error) {
	if !cfg.Azure.Configured() {
		logger.L.Info("remote agent service not configured; echo mode enabled")
		return Echo{}, false, nil
	}

	client, err := foundry.NewClient(cfg.Azure, broker)
	if err != nil {
		return nil, false, err
	}
	logger.L.Info("remote agent service enabled",
		"endpoint", cfg.Azure.ProjectEndpoint,
		"model", cfg.Azure.ModelDeployment)
	return client, true, nil
}
