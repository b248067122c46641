package tools

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPClient connects to one MCP server over streamable HTTP and calls its
// tools on behalf of agent-defined custom tools (spec.md 4.7) that aren't
// one of the fixed built-ins.
type MCPClient struct {
	client  *mcpsdk.Client
	session *mcpsdk.ClientSession
}

// DialMCP connects to an MCP server at url and discovers nothing up front;
// tool names are resolved lazily on first CallTool, since the agent config
// already names the tools it expects the server to expose.
func DialMCP(ctx context.Context, url string) (*MCPClient, error) {
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "voicecore", Version: "1.0.0"}, nil)
	transport := &mcpsdk.StreamableClientTransport{Endpoint: url}
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp: connect to %q: %w", url, err)
	}
	return &MCPClient{client: client, session: session}, nil
}

// CallTool invokes a named tool and flattens its text content into a single
// string, the shape call.ToolExecutor expects back from Execute.
func (c *MCPClient) CallTool(ctx context.Context, name string, params map[string]string) (string, error) {
	args := make(map[string]any, len(params))
	for k, v := range params {
		args[k] = v
	}
	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("mcp: call %q: %w", name, err)
	}
	var sb strings.Builder
	for _, content := range result.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	if result.IsError {
		return "", fmt.Errorf("mcp: tool %q returned an error: %s", name, sb.String())
	}
	return sb.String(), nil
}

// Close shuts down the underlying session.
func (c *MCPClient) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}
