// Package mcptools aggregates tools from configured MCP servers and exposes
// them to the remote agent as function tools.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sashabaranov/go-openai"

	"github.com/aaronba/SimpleChatAgent/internal/config"
	"github.com/aaronba/SimpleChatAgent/internal/logger"
)

const emptyObjectSchema = `{"type": "object", "properties": {}}`

// MCPClient is the subset of the mcp-go client the broker uses; it is easy
// to mock in tests.
type MCPClient interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Broker routes tool calls requested by the remote agent to the MCP server
// that registered the tool.
type Broker struct {
	clients []MCPClient
	byName  map[string]MCPClient
	tools   []openai.AssistantTool
}

// NewBroker connects to every configured MCP server and registers its tools.
// Servers that fail to connect or initialize are skipped with a log entry;
// a broker with zero tools is valid.
func NewBroker(ctx context.Context, servers []config.MCPServerConfig) *Broker {
	b := &Broker{byName: make(map[string]MCPClient)}

	for _, serverCfg := range servers {
		mcpC, err := newClient(serverCfg)
		if err != nil {
			logger.L.Error("failed to create MCP client", "name", serverCfg.Name, "error", err)
			continue
		}
		if mcpC == nil {
			continue // unsupported type, already logged
		}

		// stdio transports are started by the constructor.
		if serverCfg.Type != config.ClientTypeStdio {
			if err := mcpC.Start(ctx); err != nil {
				logger.L.Error("failed to start MCP client transport", "name", serverCfg.Name, "error", err)
				closeQuietly(mcpC, serverCfg.Name)
				continue
			}
		}

		initReq := mcp.InitializeRequest{
			Params: mcp.InitializeParams{Capabilities: mcp.ClientCapabilities{}},
		}
		if _, err := mcpC.Initialize(ctx, initReq); err != nil {
			logger.L.Error("failed to initialize MCP client", "name", serverCfg.Name, "error", err)
			closeQuietly(mcpC, serverCfg.Name)
			continue
		}
		logger.L.Info("MCP server initialized", "name", serverCfg.Name)
		b.clients = append(b.clients, mcpC)

		b.registerTools(ctx, mcpC, serverCfg.Name)
	}

	if len(b.clients) == 0 && len(servers) > 0 {
		logger.L.Warn("no MCP clients were successfully initialized despite servers configured", "length", len(servers))
	}
	return b
}

func newClient(serverCfg config.MCPServerConfig) (*client.Client, error) {
	switch serverCfg.Type {
	case config.ClientTypeSSE:
		var sseOpts []transport.ClientOption
		if len(serverCfg.Headers) > 0 {
			sseOpts = append(sseOpts, transport.WithHeaders(serverCfg.Headers))
		}
		return client.NewSSEMCPClient(serverCfg.URL, sseOpts...)
	case config.ClientTypeStreamableHTTP:
		var httpOpts []transport.StreamableHTTPCOption
		if len(serverCfg.Headers) > 0 {
			httpOpts = append(httpOpts, transport.WithHTTPHeaders(serverCfg.Headers))
		}
		return client.NewStreamableHttpClient(serverCfg.URL, httpOpts...)
	case config.ClientTypeStdio:
		var env []string
		for k, v := range serverCfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		return client.NewStdioMCPClient(serverCfg.Command, env, serverCfg.Args...)
	case "":
		logger.L.Warn("MCP server type not specified for entry; skipping. Set 'type' to 'sse', 'streamable_http' or 'stdio'.", "name", serverCfg.Name)
		return nil, nil
	default:
		logger.L.Warn("unsupported MCP server type for entry; skipping", "type", serverCfg.Type, "name", serverCfg.Name)
		return nil, nil
	}
}

// registerTools lists the server's tools and registers each one, first
// registration wins on name collisions.
func (b *Broker) registerTools(ctx context.Context, mcpC MCPClient, serverName string) {
	serverTools, err := mcpC.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		logger.L.Warn("failed to list tools for MCP client", "name", serverName, "error", err)
		return
	}
	if serverTools == nil {
		return
	}

	for _, mcpTool := range serverTools.Tools {
		if _, exists := b.byName[mcpTool.Name]; exists {
			logger.L.Warn("tool already registered from another server; skipping", "tool", mcpTool.Name, "name", serverName)
			continue
		}

		b.byName[mcpTool.Name] = mcpC
		b.tools = append(b.tools, openai.AssistantTool{
			Type: openai.AssistantToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        mcpTool.Name,
				Description: mcpTool.Description,
				Parameters:  toolSchema(mcpTool, serverName),
			},
		})
		logger.L.Info("registered tool from MCP server", "tool", mcpTool.Name, "name", serverName)
	}
}

func toolSchema(mcpTool mcp.Tool, serverName string) json.RawMessage {
	if len(mcpTool.RawInputSchema) > 0 && string(mcpTool.RawInputSchema) != "null" {
		return mcpTool.RawInputSchema
	}
	if mcpTool.InputSchema.Type == "" {
		logger.L.Warn("tool from MCP server has an empty schema; using default empty object schema", "tool", mcpTool.Name, "name", serverName)
		return json.RawMessage(emptyObjectSchema)
	}
	schemaBytes, err := json.Marshal(mcpTool.InputSchema)
	if err != nil {
		logger.L.Error("failed to marshal input schema for tool; using empty schema", "tool", mcpTool.Name, "error", err)
		return json.RawMessage(emptyObjectSchema)
	}
	return json.RawMessage(schemaBytes)
}

// Tools returns the aggregated tool definitions in assistant form.
func (b *Broker) Tools() []openai.AssistantTool {
	return b.tools
}

// Call executes a tool requested by the remote agent. Failures are reported
// as the tool output string so the agent can react; they never abort a turn.
func (b *Broker) Call(ctx context.Context, name, argsJSON string) string {
	mcpC, ok := b.byName[name]
	if !ok {
		return "Error: tool not registered: " + name
	}

	var toolArgs map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &toolArgs); err != nil {
			logger.L.Error("failed to unmarshal tool arguments", "tool", name, "error", err)
			return "Error: could not parse arguments for tool " + name
		}
	}

	logger.L.Debug("calling MCP tool", "tool", name, "arguments", toolArgs)
	result, err := mcpC.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: toolArgs},
	})
	if err != nil {
		logger.L.Warn("MCP CallTool failed", "tool", name, "error", err)
		return "Error: tool call failed: " + name
	}
	if result == nil {
		return "Error: tool returned no result: " + name
	}

	text := firstText(result.Content)
	if result.IsError {
		logger.L.Warn("MCP tool executed with IsError=true", "tool", name, "content", result.Content)
		if text == "" {
			return "Tool execution resulted in an error without specific text."
		}
		return text
	}
	if text == "" {
		resultBytes, merr := json.Marshal(result)
		if merr != nil {
			return "Tool executed successfully, but result could not be formatted."
		}
		return string(resultBytes)
	}
	return text
}

func firstText(content []mcp.Content) string {
	for _, item := range content {
		if textContent, ok := item.(mcp.TextContent); ok {
			return textContent.Text
		}
	}
	return ""
}

// Close shuts down every connected MCP client.
func (b *Broker) Close() {
	for _, c := range b.clients {
		if err := c.Close(); err != nil {
			logger.L.Warn("MCP client close error", "error", err)
		}
	}
}

func closeQuietly(c MCPClient, name string) {
	if err := c.Close(); err != nil {
		logger.L.Warn("MCP client close error", "name", name, "error", err)
	}
}
