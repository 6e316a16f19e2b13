package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

// mockMCPClient mirrors MCPClient; unset funcs return zero values.
type mockMCPClient struct {
	InitializeFunc func(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListToolsFunc  func(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallToolFunc   func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	CloseFunc      func() error
}

func (m *mockMCPClient) Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	if m.InitializeFunc != nil {
		return m.InitializeFunc(ctx, req)
	}
	return &mcp.InitializeResult{}, nil
}

func (m *mockMCPClient) ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	if m.ListToolsFunc != nil {
		return m.ListToolsFunc(ctx, req)
	}
	return &mcp.ListToolsResult{}, nil
}

func (m *mockMCPClient) CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if m.CallToolFunc != nil {
		return m.CallToolFunc(ctx, request)
	}
	return &mcp.CallToolResult{}, nil
}

func (m *mockMCPClient) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

func newTestBroker() *Broker {
	return &Broker{byName: make(map[string]MCPClient)}
}

func TestRegisterTools(t *testing.T) {
	b := newTestBroker()
	mockClient := &mockMCPClient{
		ListToolsFunc: func(_ context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
			return &mcp.ListToolsResult{Tools: []mcp.Tool{
				{Name: "get_weather", Description: "Gets weather", RawInputSchema: json.RawMessage(`{"type":"object","properties":{"location":{"type":"string"}}}`)},
				{Name: "no_schema_tool", Description: "Schemaless"},
			}}, nil
		},
	}

	b.registerTools(context.Background(), mockClient, "test-server")

	require.Len(t, b.Tools(), 2)
	require.Equal(t, "get_weather", b.Tools()[0].Function.Name)
	// A tool without a schema gets the default empty object schema.
	require.JSONEq(t, emptyObjectSchema, string(b.Tools()[1].Function.Parameters.(json.RawMessage)))
}

func TestRegisterTools_DuplicateNamesSkipped(t *testing.T) {
	b := newTestBroker()
	listTools := func(_ context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
		return &mcp.ListToolsResult{Tools: []mcp.Tool{{Name: "shared_tool"}}}, nil
	}
	first := &mockMCPClient{ListToolsFunc: listTools}
	second := &mockMCPClient{ListToolsFunc: listTools}

	b.registerTools(context.Background(), first, "server-a")
	b.registerTools(context.Background(), second, "server-b")

	require.Len(t, b.Tools(), 1)
	require.Same(t, first, b.byName["shared_tool"])
}

func TestCall_Success(t *testing.T) {
	b := newTestBroker()
	b.byName["get_weather"] = &mockMCPClient{
		CallToolFunc: func(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			require.Equal(t, "get_weather", request.Params.Name)
			require.Equal(t, map[string]any{"location": "London"}, request.Params.Arguments)
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "The weather in London is sunny."}},
			}, nil
		},
	}

	out := b.Call(context.Background(), "get_weather", `{"location":"London"}`)
	require.Equal(t, "The weather in London is sunny.", out)
}

func TestCall_ToolError(t *testing.T) {
	b := newTestBroker()
	b.byName["broken_tool"] = &mockMCPClient{
		CallToolFunc: func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{mcp.TextContent{Type: "text", Text: "boom"}},
			}, nil
		},
	}

	out := b.Call(context.Background(), "broken_tool", "{}")
	require.Equal(t, "boom", out)
}

func TestCall_TransportFailure(t *testing.T) {
	b := newTestBroker()
	b.byName["flaky_tool"] = &mockMCPClient{
		CallToolFunc: func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return nil, errors.New("connection reset")
		},
	}

	out := b.Call(context.Background(), "flaky_tool", "{}")
	require.Contains(t, out, "tool call failed")
}

func TestCall_UnknownTool(t *testing.T) {
	b := newTestBroker()

	out := b.Call(context.Background(), "missing", "{}")
	require.Contains(t, out, "not registered")
}

func TestCall_BadArguments(t *testing.T) {
	b := newTestBroker()
	b.byName["get_weather"] = &mockMCPClient{}

	out := b.Call(context.Background(), "get_weather", "{not json")
	require.Contains(t, out, "could not parse arguments")
}
