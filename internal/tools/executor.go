// Package tools implements ToolExecutor (spec.md 4.7): the built-in
// end_call/transfer_call/call_webhook handlers, and a fallback to an
// MCP (Model Context Protocol) server for agent-defined custom tools,
// via github.com/modelcontextprotocol/go-sdk — a dependency the
// teacher carries indirectly but never calls from any reachable code
// path; this package gives it its first real exercise.
package tools

import (
	"context"
	"fmt"

	"github.com/hubenschmidt/voicecore/internal/call"
)

// BuiltinHandler executes one of the fixed built-in tool names.
type BuiltinHandler func(ctx context.Context, params map[string]string) (string, error)

// Executor implements call.ToolExecutor: built-in names are handled
// locally, everything else is delegated to an MCP client if one is
// configured.
type Executor struct {
	builtins map[string]BuiltinHandler
	mcp      *MCPClient // nil if no MCP_TOOL_SERVER_URL configured
}

// New creates an Executor with the standard built-ins wired to hooks,
// plus an optional MCP client for everything else.
func New(hooks call.Webhooks, endCall func(ctx context.Context) error, transferCall func(ctx context.Context, to string) error, mcpClient *MCPClient) *Executor {
	e := &Executor{
		builtins: map[string]BuiltinHandler{},
		mcp:      mcpClient,
	}
	e.builtins["end_call"] = func(ctx context.Context, params map[string]string) (string, error) {
		if endCall != nil {
			if err := endCall(ctx); err != nil {
				return "", err
			}
		}
		return "call ended", nil
	}
	e.builtins["transfer_call"] = func(ctx context.Context, params map[string]string) (string, error) {
		to := params["to"]
		if to == "" {
			return "", fmt.Errorf("transfer_call requires a 'to' param: %w", call.ErrProtocolViolation)
		}
		if transferCall != nil {
			if err := transferCall(ctx, to); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("transferred to %s", to), nil
	}
	e.builtins["call_webhook"] = func(ctx context.Context, params map[string]string) (string, error) {
		event := params["event"]
		if event == "" {
			event = "tool.call_webhook"
		}
		payload := make(map[string]any, len(params))
		for k, v := range params {
			payload[k] = v
		}
		if hooks != nil {
			hooks.Fire(ctx, event, payload)
		}
		return "webhook fired", nil
	}
	return e
}

// Execute implements call.ToolExecutor.
func (e *Executor) Execute(ctx context.Context, name string, params map[string]string) (string, error) {
	if h, ok := e.builtins[name]; ok {
		return h(ctx, params)
	}
	if e.mcp != nil {
		return e.mcp.CallTool(ctx, name, params)
	}
	return "", fmt.Errorf("no handler for tool %q: %w", name, call.ErrProtocolViolation)
}
