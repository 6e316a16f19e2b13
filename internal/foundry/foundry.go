// Package foundry implements the remote backend against the Azure AI Foundry
// agent service, through its OpenAI-compatible Assistants surface. Each turn
// provisions a short-lived agent, runs it once against the user message, and
// deletes it again; the service offers no cheaper per-message lifecycle.
package foundry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/sashabaranov/go-openai"

	"github.com/aaronba/SimpleChatAgent/internal/config"
	"github.com/aaronba/SimpleChatAgent/internal/logger"
)

// tokenScope is the Entra ID scope for Azure Cognitive Services.
const tokenScope = "https://cognitiveservices.azure.com/.default"

// tokenRefreshMargin forces a new token this long before the cached one
// expires.
const tokenRefreshMargin = 2 * time.Minute

// agentAPI is the subset of the openai client the foundry backend uses; it
// is easy to mock in tests.
type agentAPI interface {
	CreateAssistant(ctx context.Context, request openai.AssistantRequest) (openai.Assistant, error)
	DeleteAssistant(ctx context.Context, assistantID string) (openai.AssistantDeleteResponse, error)
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	DeleteThread(ctx context.Context, threadID string) (openai.ThreadDeleteResponse, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID string, runID string, request openai.SubmitToolOutputsRequest) (openai.Run, error)
}

// ToolSource supplies the tool definitions exposed to the remote agent and
// executes the calls it requests.
type ToolSource interface {
	Tools() []openai.AssistantTool
	Call(ctx context.Context, name, argsJSON string) string
}

// Client talks to the Azure AI Foundry agent service. It is safe for
// concurrent use.
type Client struct {
	cfg   config.AzureConfig
	tools ToolSource

	// api is set once when API-key auth is in use (and by tests).
	api agentAPI

	// Entra ID token auth: tokenAPI is rebuilt whenever the cached token
	// nears expiry.
	cred     azcore.TokenCredential
	mu       sync.Mutex
	token    azcore.AccessToken
	tokenAPI agentAPI

	pollInterval time.Duration
	maxPolls     int
}

// NewClient builds a client for the configured project. With an API key the
// key is sent on every request; without one an Azure CLI credential is tried
// first (the documented "az login" flow), then the default credential chain.
func NewClient(cfg config.AzureConfig, tools ToolSource) (*Client, error) {
	c := &Client{
		cfg:          cfg,
		tools:        tools,
		pollInterval: time.Second,
		maxPolls:     60,
	}

	if cfg.APIKey != "" {
		c.api = newAzureAPI(cfg, cfg.APIKey, openai.APITypeAzure)
		return c, nil
	}

	var chain []azcore.TokenCredential
	if cli, err := azidentity.NewAzureCLICredential(nil); err == nil {
		chain = append(chain, cli)
	} else {
		logger.L.Warn("azure CLI credential unavailable", "error", err)
	}
	if def, err := azidentity.NewDefaultAzureCredential(nil); err == nil {
		chain = append(chain, def)
	} else {
		logger.L.Warn("default azure credential unavailable", "error", err)
	}
	if len(chain) == 0 {
		return nil, errors.New("no azure credential available; run 'az login' or set AZURE_AI_API_KEY")
	}

	cred, err := azidentity.NewChainedTokenCredential(chain, nil)
	if err != nil {
		return nil, fmt.Errorf("build credential chain: %w", err)
	}
	c.cred = cred
	return c, nil
}

func newAzureAPI(cfg config.AzureConfig, secret string, apiType openai.APIType) *openai.Client {
	clientCfg := openai.DefaultAzureConfig(secret, cfg.ProjectEndpoint)
	clientCfg.APIType = apiType
	if cfg.APIVersion != "" {
		clientCfg.APIVersion = cfg.APIVersion
	}
	return openai.NewClientWithConfig(clientCfg)
}

// service returns the API handle, refreshing the Entra ID token when needed.
func (c *Client) service(ctx context.Context) (agentAPI, error) {
	if c.api != nil {
		return c.api, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tokenAPI == nil || time.Until(c.token.ExpiresOn) < tokenRefreshMargin {
		token, err := c.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{tokenScope}})
		if err != nil {
			return nil, fmt.Errorf("acquire azure token: %w", err)
		}
		logger.L.Debug("acquired azure token", "expires_on", token.ExpiresOn)
		c.token = token
		c.tokenAPI = newAzureAPI(c.cfg, token.Token, openai.APITypeAzureAD)
	}
	return c.tokenAPI, nil
}

// Invoke runs one chat turn against the remote agent service: create an
// agent, run it on the message, read the reply, then tear the agent down.
func (c *Client) Invoke(ctx context.Context, text string) (string, error) {
	api, err := c.service(ctx)
	if err != nil {
		return "", err
	}

	assistant, err := api.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        c.cfg.ModelDeployment,
		Name:         ptr(c.cfg.AgentName),
		Instructions: ptr(c.cfg.Instructions),
		Tools:        c.tools.Tools(),
	})
	if err != nil {
		return "", fmt.Errorf("create agent: %w", err)
	}
	// Cleanup must run even when the request context is already canceled.
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		if _, err := api.DeleteAssistant(cleanupCtx, assistant.ID); err != nil {
			logger.L.Warn("failed to delete agent", "assistant_id", assistant.ID, "error", err)
		}
	}()

	thread, err := api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		if _, err := api.DeleteThread(cleanupCtx, thread.ID); err != nil {
			logger.L.Warn("failed to delete thread", "thread_id", thread.ID, "error", err)
		}
	}()

	if _, err := api.CreateMessage(ctx, thread.ID, openai.MessageRequest{
		Role:    "user",
		Content: text,
	}); err != nil {
		return "", fmt.Errorf("create message: %w", err)
	}

	run, err := api.CreateRun(ctx, thread.ID, openai.RunRequest{AssistantID: assistant.ID})
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	final, err := c.driveRun(ctx, api, thread.ID, run)
	if err != nil {
		return "", err
	}
	return readReply(ctx, api, thread.ID, final.ID)
}

func ptr[T any](v T) *T { return &v }
