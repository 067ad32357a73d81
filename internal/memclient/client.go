// Package memclient connects to the memory MCP server and exposes it as a
// toolreg.ToolClient.
package memclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/membridge/internal/config"
	"github.com/nextlevelbuilder/membridge/internal/toolreg"
)

// Client wraps an MCP client connection to the memory server.
type Client struct {
	client     *mcpclient.Client
	timeoutSec int
}

// Connect creates the transport, performs the MCP handshake, and returns a
// ready client.
func Connect(ctx context.Context, cfg config.MemoryConfig) (*Client, error) {
	client, err := createClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}

	// SSE/streamable-http need explicit Start; stdio auto-starts.
	if cfg.Transport != "" && cfg.Transport != "stdio" {
		if err := client.Start(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("start transport: %w", err)
		}
	}

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{
		Name:    "membridge",
		Version: "1.0.0",
	}

	if _, err := client.Initialize(ctx, initReq); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("initialize: %w", err)
	}

	timeoutSec := cfg.TimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = 30
	}

	slog.Info("memclient.connected", "transport", transportName(cfg.Transport))
	return &Client{client: client, timeoutSec: timeoutSec}, nil
}

// createClient creates the appropriate MCP client based on transport type.
func createClient(cfg config.MemoryConfig) (*mcpclient.Client, error) {
	switch transportName(cfg.Transport) {
	case "stdio":
		if cfg.Command == "" {
			return nil, fmt.Errorf("stdio transport requires a command")
		}
		return mcpclient.NewStdioMCPClient(cfg.Command, mapToEnvSlice(cfg.Env), cfg.Args...)

	case "sse":
		var opts []transport.ClientOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, mcpclient.WithHeaders(cfg.Headers))
		}
		return mcpclient.NewSSEMCPClient(cfg.URL, opts...)

	case "streamable-http":
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
		}
		return mcpclient.NewStreamableHttpClient(cfg.URL, opts...)

	default:
		return nil, fmt.Errorf("unsupported transport: %q", cfg.Transport)
	}
}

func transportName(t string) string {
	if t == "" {
		return "stdio"
	}
	return t
}

// ListTools discovers the server's tools as canonical descriptors.
func (c *Client) ListTools(ctx context.Context) ([]toolreg.Descriptor, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	result, err := c.client.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	descriptors := make([]toolreg.Descriptor, 0, len(result.Tools))
	for _, tool := range result.Tools {
		schema, err := schemaToMap(tool.InputSchema)
		if err != nil {
			slog.Warn("memclient.schema_decode_failed", "tool", tool.Name, "error", err)
			schema = map[string]interface{}{"type": "object"}
		}
		descriptors = append(descriptors, toolreg.Descriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}
	return descriptors, nil
}

// CallTool invokes a tool and returns the concatenated text content.
// Server-side tool errors come back as an error so the bridge can convert
// them into a model-visible payload.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	req := mcpgo.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	result, err := c.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("call %s: %w", name, err)
	}

	var parts []string
	for _, content := range result.Content {
		if tc, ok := mcpgo.AsTextContent(content); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")

	if result.IsError {
		if text == "" {
			text = "tool execution failed"
		}
		return "", fmt.Errorf("call %s: %s", name, text)
	}
	return text, nil
}

// Ping checks liveness of the server connection.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}

// Close shuts down the MCP connection.
func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(c.timeoutSec)*time.Second)
}

// schemaToMap converts the typed MCP input schema to a plain map via a JSON
// round trip, which is what the registry's dialect projections expect.
func schemaToMap(schema mcpgo.ToolInputSchema) (map[string]interface{}, error) {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{})
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// mapToEnvSlice converts an env map to KEY=VALUE form for stdio transport.
func mapToEnvSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
