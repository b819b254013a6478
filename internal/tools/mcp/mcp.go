// Package mcp bridges external tool processes speaking the Model Context
// Protocol into the assistant's tool registry. Discovered tools are
// namespaced "local__<server>__<tool>" so they can never shadow a native
// tool, and they flow through the same wrapping pipeline as native tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ariahq/aria/internal/tools"
)

// ServerConfig describes one external tool process.
type ServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // stdio, sse, streamable_http
	Command   string            `yaml:"command"`   // stdio only
	Args      []string          `yaml:"args"`      // stdio only
	Env       map[string]string `yaml:"env"`       // stdio only, values env-expanded
	URL       string            `yaml:"url"`       // sse / streamable_http
	Headers   map[string]string `yaml:"headers"`   // sse / streamable_http

	// RequiresApproval marks every tool from this server as approval-gated.
	RequiresApproval bool `yaml:"requires_approval"`
}

// --- bridged tool: adapts one discovered MCP tool into tools.Tool ---

type bridgedTool struct {
	namespacedName string // "local__<server>__<tool>", unique across servers
	description    string
	inputSchema    map[string]any
	approval       bool
	client         mcpclient.MCPClient
	originalName   string // name as the server knows it
	serverName     string
	logger         *slog.Logger
}

func (t *bridgedTool) Name() string                { return t.namespacedName }
func (t *bridgedTool) Description() string         { return t.description }
func (t *bridgedTool) InputSchema() map[string]any { return t.inputSchema }
func (t *bridgedTool) RequiresApproval() bool      { return t.approval }

func (t *bridgedTool) Execute(ctx context.Context, params map[string]any) (*tools.Result, error) {
	t.logger.InfoContext(ctx, "local tool executing",
		slog.String("server", t.serverName),
		slog.String("tool", t.originalName),
	)

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = t.originalName
	callReq.Params.Arguments = params

	callResult, err := t.client.CallTool(ctx, callReq)
	if err != nil {
		return nil, fmt.Errorf("call to %s/%s failed: %w", t.serverName, t.originalName, err)
	}

	output := formatContent(callResult.Content)

	return &tools.Result{
		Output:  output,
		Success: !callResult.IsError,
		Metadata: map[string]any{
			"server":        t.serverName,
			"tool":          t.originalName,
			"content_items": len(callResult.Content),
		},
	}, nil
}

// formatContent flattens MCP content items into a single string.
func formatContent(content []mcp.Content) string {
	var sb strings.Builder
	for i, c := range content {
		if i > 0 {
			sb.WriteString("\n")
		}
		if tc, ok := mcp.AsTextContent(c); ok {
			sb.WriteString(tc.Text)
		} else {
			// Non-text content (image, audio, resource) is serialized as JSON.
			data, _ := json.Marshal(c)
			sb.WriteString(string(data))
		}
	}
	return sb.String()
}

// --- Bridge: manages client lifecycle ---

// Bridge owns the MCP client connections and produces tool adapters for the
// registry. Close it on shutdown.
type Bridge struct {
	clients []mcpclient.MCPClient
	logger  *slog.Logger
}

// NewBridge creates a bridge with no connections yet.
func NewBridge(logger *slog.Logger) *Bridge {
	return &Bridge{logger: logger}
}

// ConnectAndDiscover connects to one tool process, performs the MCP
// initialization handshake, and returns adapters for every tool it exposes.
func (b *Bridge) ConnectAndDiscover(ctx context.Context, cfg ServerConfig) ([]tools.Tool, error) {
	c, err := b.createClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating client for %q: %w", cfg.Name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "aria",
		Version: "0.1.0",
	}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("initialize handshake for %q: %w", cfg.Name, err)
	}

	b.clients = append(b.clients, c)

	listResp, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("listing tools for %q: %w", cfg.Name, err)
	}

	adapted := make([]tools.Tool, 0, len(listResp.Tools))
	for _, t := range listResp.Tools {
		adapted = append(adapted, &bridgedTool{
			namespacedName: fmt.Sprintf("local__%s__%s", cfg.Name, t.Name),
			description:    fmt.Sprintf("[local:%s] %s", cfg.Name, t.Description),
			inputSchema:    convertInputSchema(t.InputSchema),
			approval:       cfg.RequiresApproval,
			client:         c,
			originalName:   t.Name,
			serverName:     cfg.Name,
			logger:         b.logger,
		})
	}

	b.logger.Info("local tool process connected",
		slog.String("server", cfg.Name),
		slog.String("transport", cfg.Transport),
		slog.Int("tools_discovered", len(adapted)),
	)

	return adapted, nil
}

// Close shuts down all client connections.
func (b *Bridge) Close() {
	for _, c := range b.clients {
		if err := c.Close(); err != nil {
			b.logger.Error("closing tool process client", slog.String("error", err.Error()))
		}
	}
}

func (b *Bridge) createClient(cfg ServerConfig) (*mcpclient.Client, error) {
	switch cfg.Transport {
	case "stdio", "":
		env := expandEnvList(cfg.Env)
		return mcpclient.NewStdioMCPClient(cfg.Command, env, cfg.Args...)

	case "sse":
		var opts []transport.ClientOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHeaders(expandEnvMap(cfg.Headers)))
		}
		return mcpclient.NewSSEMCPClient(cfg.URL, opts...)

	case "streamable_http":
		var opts []transport.StreamableHTTPCOption
		if len(cfg.Headers) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(expandEnvMap(cfg.Headers)))
		}
		return mcpclient.NewStreamableHttpClient(cfg.URL, opts...)

	default:
		return nil, fmt.Errorf("unsupported transport: %s", cfg.Transport)
	}
}

// convertInputSchema converts the MCP schema type into the plain map form the
// registry sends to providers.
func convertInputSchema(schema mcp.ToolInputSchema) map[string]any {
	result := map[string]any{
		"type": schema.Type,
	}
	if schema.Properties != nil {
		result["properties"] = schema.Properties
	}
	if len(schema.Required) > 0 {
		reqAny := make([]any, len(schema.Required))
		for i, r := range schema.Required {
			reqAny[i] = r
		}
		result["required"] = reqAny
	}
	return result
}

// expandEnvList converts key→value pairs to "KEY=expanded" entries.
func expandEnvList(m map[string]string) []string {
	env := make([]string, 0, len(m))
	for k, v := range m {
		env = append(env, k+"="+os.ExpandEnv(v))
	}
	return env
}

func expandEnvMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = os.ExpandEnv(v)
	}
	return out
}
