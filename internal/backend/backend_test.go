package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aaronba/SimpleChatAgent/internal/config"
	"github.com/aaronba/SimpleChatAgent/internal/foundry"
	"github.com/aaronba/SimpleChatAgent/internal/mcptools"
)

func TestResolve_EchoWhenUnconfigured(t *testing.T) {
	cfg := &config.Config{}
	broker := mcptools.NewBroker(context.Background(), nil)

	invoker, configured, err := Resolve(cfg, broker)
	require.NoError(t, err)
	require.False(t, configured)
	require.IsType(t, Echo{}, invoker)

	out, err := invoker.Invoke(context.Background(), "Hello")
	require.NoError(t, err)
	require.Equal(t, "Hello", out)
}

func TestResolve_EchoWhenPartiallyConfigured(t *testing.T) {
	cfg := &config.Config{Azure: config.AzureConfig{ProjectEndpoint: "https://example.azure.com"}}
	broker := mcptools.NewBroker(context.Background(), nil)

	_, configured, err := Resolve(cfg, broker)
	require.NoError(t, err)
	require.False(t, configured)
}

func TestResolve_FoundryWhenConfigured(t *testing.T) {
	cfg := &config.Config{Azure: config.AzureConfig{
		ProjectEndpoint: "https://example.azure.com",
		ModelDeployment: "gpt-4o",
		APIKey:          "dummy",
	}}
	broker := mcptools.NewBroker(context.Background(), nil)

	invoker, configured, err := Resolve(cfg, broker)
	require.NoError(t, err)
	require.True(t, configured)
	require.IsType(t, &foundry.Client{}, invoker)
}
