package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/trustgate/trustgate/internal/config"
)

// Transport executes one logical upstream operation. The concrete wire
// protocol is the transport's concern; the client only deals in endpoint
// names and argument maps.
type Transport interface {
	Call(ctx context.Context, endpoint string, args map[string]any) (map[string]any, error)
	Close() error
}

// MCPSession is the subset of mcp.ClientSession methods the MCP
// transport uses. Extracted as an interface for testing.
type MCPSession interface {
	CallTool(ctx context.Context, params *mcp.CallToolParams) (*mcp.CallToolResult, error)
	Close() error
}

// MCPTransport speaks to the platform over an MCP session, mapping
// logical endpoints to tool names.
type MCPTransport struct {
	session MCPSession
	logger  *slog.Logger
}

// NewMCPTransport connects to the platform using the configured
// transport (stdio subprocess or streamable HTTP).
func NewMCPTransport(ctx context.Context, cfg config.UpstreamConfig, logger *slog.Logger) (*MCPTransport, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "trustgate",
		Version: "0.1.0",
	}, nil)

	var transport mcp.Transport
	switch cfg.Transport {
	case "stdio":
		cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcp.CommandTransport{Command: cmd}

	case "http":
		transport = &mcp.StreamableClientTransport{Endpoint: cfg.URL}

	default:
		return nil, fmt.Errorf("unsupported upstream transport: %s", cfg.Transport)
	}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting upstream: %w", err)
	}

	logger.Info("upstream connected", "transport", cfg.Transport)
	return &MCPTransport{session: session, logger: logger}, nil
}

// NewMCPTransportWithSession wraps a pre-connected session (for testing).
func NewMCPTransportWithSession(s MCPSession, logger *slog.Logger) *MCPTransport {
	return &MCPTransport{session: s, logger: logger}
}

// Call invokes the tool named by the endpoint and decodes the first text
// content block as JSON.
func (t *MCPTransport) Call(ctx context.Context, endpoint string, args map[string]any) (map[string]any, error) {
	result, err := t.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      endpoint,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", endpoint, err)
	}
	if result.IsError {
		return nil, fmt.Errorf("%s: %s", endpoint, resultText(result))
	}

	text := resultText(result)
	if text == "" {
		return map[string]any{}, nil
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		// Non-JSON tool output is still a usable payload.
		return map[string]any{"text": text}, nil
	}
	return payload, nil
}

// Close shuts down the session.
func (t *MCPTransport) Close() error {
	if t.session != nil {
		return t.session.Close()
	}
	return nil
}

func resultText(result *mcp.CallToolResult) string {
	for _, c := range result.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}
